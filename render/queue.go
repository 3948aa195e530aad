// Per-stage index queues.
//
// A queue is an (index buffer, counter) pair. Workers push by atomic
// fetch-add on the counter; the host reads sizes between dispatches. Two
// layouts exist: scattered keeps one buffer per stage, gathered keeps one
// shared buffer rebuilt from the per-path kernel field each iteration.

package render

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// AggregatedQueue owns the per-stage queues of one wavefront render.
type AggregatedQueue struct {
	size      int
	gathering bool
	index     []uint32
	counter   [KernelCount]uint32
	hostCount [KernelCount]uint32
	offsets   [KernelCount]uint32
}

// NewAggregatedQueue allocates queue storage for size paths.
func NewAggregatedQueue(size int, gathering bool) *AggregatedQueue {
	n := size * KernelCount
	if gathering {
		n = size
	}
	return &AggregatedQueue{
		size:      size,
		gathering: gathering,
		index:     make([]uint32, n),
	}
}

func (q *AggregatedQueue) Gathering() bool { return q.gathering }

// ClearCounter resets one stage counter (stage < 0 clears all).
func (q *AggregatedQueue) ClearCounter(stage int) {
	if stage < 0 {
		for i := range q.counter {
			atomic.StoreUint32(&q.counter[i], 0)
		}
		return
	}
	atomic.StoreUint32(&q.counter[stage], 0)
}

// Count reads a stage's live counter.
func (q *AggregatedQueue) Count(stage int) uint32 {
	return atomic.LoadUint32(&q.counter[stage])
}

// SetCount force-writes a stage counter (management passes only).
func (q *AggregatedQueue) SetCount(stage int, n uint32) {
	atomic.StoreUint32(&q.counter[stage], n)
}

// Reserve grabs n consecutive slots in a stage with one fetch-add; this is
// the block-local push used by worker chunks.
func (q *AggregatedQueue) Reserve(stage int, n uint32) uint32 {
	return atomic.AddUint32(&q.counter[stage], n) - n
}

// WriteIndex stores a path id at a reserved slot. In the gathered layout
// only the counter matters between gathers; the slot write is skipped.
func (q *AggregatedQueue) WriteIndex(stage int, slot uint32, id uint32) {
	if q.gathering {
		return
	}
	q.index[stage*q.size+int(slot)] = id
}

// writeGathered stores into the shared buffer at the stage's offset; used
// by the gather and tag-sort passes which own the layout.
func (q *AggregatedQueue) writeGathered(stage int, slot uint32, id uint32) {
	q.index[q.offsets[stage]+slot] = id
}

// CatchCounters snapshots the device counters to the host and, in the
// gathered layout, assigns each stage its window in the shared buffer.
func (q *AggregatedQueue) CatchCounters() {
	var prev uint32
	for i := 0; i < KernelCount; i++ {
		q.hostCount[i] = atomic.LoadUint32(&q.counter[i])
		q.offsets[i] = prev
		prev += q.hostCount[i]
	}
}

// HostCount returns the size snapshotted by the last CatchCounters.
func (q *AggregatedQueue) HostCount(stage int) uint32 { return q.hostCount[stage] }

// Indices returns the stage's queue content as of the last CatchCounters
// (and, when gathering, the last gather pass).
func (q *AggregatedQueue) Indices(stage int) []uint32 {
	n := q.hostCount[stage]
	if q.gathering {
		off := q.offsets[stage]
		return q.index[off : off+n]
	}
	base := stage * q.size
	return q.index[base : base+int(n)]
}

// queueWriter batches pushes from one worker chunk and flushes each stage
// with a single counter reservation, minimizing atomic contention.
type queueWriter struct {
	q     *AggregatedQueue
	state *PathStateSOA
	local [KernelCount][]uint32
}

func newQueueWriter(q *AggregatedQueue, state *PathStateSOA) *queueWriter {
	return &queueWriter{q: q, state: state}
}

// push enqueues a path for a stage and records the transition in the
// per-path kernel field when gathering.
func (w *queueWriter) push(stage int, id uint32) {
	w.local[stage] = append(w.local[stage], id)
	if w.q.gathering {
		w.state.WriteKernelIndex(id, uint32(stage))
	}
}

// flush reserves one window per non-empty stage and writes the ids.
func (w *queueWriter) flush() {
	for stage := range w.local {
		ids := w.local[stage]
		if len(ids) == 0 {
			continue
		}
		base := w.q.Reserve(stage, uint32(len(ids)))
		for k, id := range ids {
			w.q.WriteIndex(stage, base+uint32(k), id)
		}
		w.local[stage] = ids[:0]
	}
}

// parallelFor runs fn over [0, n) in contiguous chunks, one goroutine per
// worker. Contiguous chunks keep neighbouring path ids on the same worker,
// the CPU analogue of SIMT coherence.
func parallelFor(n int, fn func(worker, start, end int)) {
	if n <= 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= n {
			break
		}
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			fn(w, start, end)
		}(w, start, end)
	}
	wg.Wait()
}

// Gather rebuilds a stage's index window from the per-path kernel field.
// Each worker counts locally and performs a single block-level reservation,
// honoring the block-local contract of the gather pass.
func (q *AggregatedQueue) Gather(state *PathStateSOA, stage int) {
	if !q.gathering {
		return
	}
	q.ClearCounter(stage)
	parallelFor(q.size, func(worker, start, end int) {
		var local []uint32
		for id := start; id < end; id++ {
			if state.ReadKernelIndex(uint32(id)) == uint32(stage) {
				local = append(local, uint32(id))
			}
		}
		if len(local) == 0 {
			return
		}
		base := q.Reserve(stage, uint32(len(local)))
		for k, id := range local {
			q.writeGathered(stage, base+uint32(k), id)
		}
	})
	q.hostCount[stage] = q.Count(stage)
}

// GatherSortedByTag rebuilds the stage window ordered by material tag using
// a counting sort over the tag counters built during the SAMPLE stage:
// exclusive prefix sum, then scatter.
func (q *AggregatedQueue) GatherSortedByTag(state *PathStateSOA, samples *LightSampleSOA, stage int) {
	if !q.gathering || !samples.UseTagSort() {
		q.Gather(state, stage)
		return
	}
	counters := samples.TagCounters()
	var prev uint32
	for i := range counters {
		now := atomic.LoadUint32(&counters[i])
		atomic.StoreUint32(&counters[i], prev)
		prev += now
	}
	q.hostCount[stage] = prev
	q.SetCount(stage, prev)
	parallelFor(q.size, func(worker, start, end int) {
		for id := start; id < end; id++ {
			if state.ReadKernelIndex(uint32(id)) != uint32(stage) {
				continue
			}
			tag := samples.ReadSurfaceTag(uint32(id))
			slot := atomic.AddUint32(&counters[tag], 1) - 1
			q.writeGathered(stage, slot, uint32(id))
		}
	})
	samples.ResetTags()
}
