package render

import (
	"sort"
	"testing"
)

func TestQueuePushAndSnapshot(t *testing.T) {
	q := NewAggregatedQueue(64, false)
	for i := uint32(0); i < 10; i++ {
		slot := q.Reserve(KernelIntersect, 1)
		q.WriteIndex(KernelIntersect, slot, i)
	}
	q.CatchCounters()
	if q.HostCount(KernelIntersect) != 10 {
		t.Fatalf("count %d, want 10", q.HostCount(KernelIntersect))
	}
	got := append([]uint32(nil), q.Indices(KernelIntersect)...)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, id := range got {
		if id != uint32(i) {
			t.Fatalf("queue content %v", got)
		}
	}
}

func TestQueueWriterBatchesPushes(t *testing.T) {
	spectrum := RGBSpectrum{}
	states := NewPathStateSOA(spectrum, 128, true)
	q := NewAggregatedQueue(128, true)

	// Two writers pushing disjoint id sets must together account for every
	// id exactly once, with one reservation per stage per flush.
	w1 := newQueueWriter(q, states)
	w2 := newQueueWriter(q, states)
	for i := uint32(0); i < 64; i++ {
		w1.push(KernelSample, i)
	}
	for i := uint32(64); i < 128; i++ {
		w2.push(KernelSample, i)
	}
	w1.flush()
	w2.flush()

	if q.Count(KernelSample) != 128 {
		t.Fatalf("counter %d, want 128", q.Count(KernelSample))
	}
	for i := uint32(0); i < 128; i++ {
		if states.ReadKernelIndex(i) != KernelSample {
			t.Fatalf("path %d kernel index %d, want SAMPLE", i, states.ReadKernelIndex(i))
		}
	}
}

func TestGatherRebuildsWindow(t *testing.T) {
	spectrum := RGBSpectrum{}
	states := NewPathStateSOA(spectrum, 256, true)
	q := NewAggregatedQueue(256, true)

	want := map[uint32]bool{}
	for i := uint32(0); i < 256; i++ {
		if i%3 == 0 {
			states.WriteKernelIndex(i, KernelSurface)
			q.Reserve(KernelSurface, 1)
			want[i] = true
		} else {
			states.WriteKernelIndex(i, KernelInvalid)
			q.Reserve(KernelInvalid, 1)
		}
	}
	q.CatchCounters()
	q.Gather(states, KernelSurface)

	got := q.Indices(KernelSurface)
	if len(got) != len(want) {
		t.Fatalf("gathered %d ids, want %d", len(got), len(want))
	}
	seen := map[uint32]bool{}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("gathered id %d is not in SURFACE", id)
		}
		if seen[id] {
			t.Fatalf("id %d gathered twice", id)
		}
		seen[id] = true
	}
}

func TestGatherSortedByTagGroupsMaterials(t *testing.T) {
	spectrum := RGBSpectrum{}
	const n = 128
	const tags = 4
	states := NewPathStateSOA(spectrum, n, true)
	samples := NewLightSampleSOA(spectrum, n, tags)
	q := NewAggregatedQueue(n, true)

	for i := uint32(0); i < n; i++ {
		states.WriteKernelIndex(i, KernelSurface)
		tag := uint32(i) % tags
		samples.WriteSurfaceTag(i, tag)
		samples.IncreaseTag(tag)
		q.Reserve(KernelSurface, 1)
	}
	q.CatchCounters()
	q.GatherSortedByTag(states, samples, KernelSurface)

	window := q.Indices(KernelSurface)
	if len(window) != n {
		t.Fatalf("window size %d, want %d", len(window), n)
	}
	// Tags must be non-decreasing across the window.
	last := uint32(0)
	for k, id := range window {
		tag := samples.ReadSurfaceTag(id)
		if tag < last {
			t.Fatalf("window[%d]: tag %d after tag %d, not sorted", k, tag, last)
		}
		last = tag
	}
	// Counters reset for the next iteration.
	for i, c := range samples.TagCounters() {
		if c != 0 {
			t.Fatalf("tag counter %d not reset: %d", i, c)
		}
	}
}

func TestParallelForCoversRange(t *testing.T) {
	covered := make([]bool, 1000)
	parallelFor(len(covered), func(worker, start, end int) {
		for i := start; i < end; i++ {
			if covered[i] {
				t.Errorf("index %d visited twice", i)
			}
			covered[i] = true
		}
	})
	for i, c := range covered {
		if !c {
			t.Fatalf("index %d not visited", i)
		}
	}
}
