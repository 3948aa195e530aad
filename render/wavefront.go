// Wavefront path tracer.
//
// The path tracer is decomposed into six stage kernels joined by per-stage
// index queues. Each scheduler iteration inspects the queue sizes on the
// host: when the invalid pool exceeds half the state capacity and source
// samples remain, it compacts and generates new paths; otherwise it
// dispatches every non-empty stage. Kernels are mapped over queue windows by
// a worker pool; each worker chunk batches its queue pushes and flushes them
// with one atomic reservation per stage.

package render

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	schedtrace "github.com/render-sim/render-sim/render/trace"
)

// WavefrontConfig parameterizes the wavefront scheduler.
type WavefrontConfig struct {
	Config
	// StateCount is the in-flight path capacity.
	StateCount int
	// Gathering rebuilds per-stage queues from the per-path kernel field
	// instead of scattering indices on every push.
	Gathering bool
	// Compact relocates active paths to low ids before generation.
	Compact bool
	// UseTagSort orders the SURFACE queue by material tag.
	UseTagSort bool
}

// WavefrontPathTracer schedules millions of in-flight paths across the
// stage kernels.
type WavefrontPathTracer struct {
	scene   *Scene
	sampler Sampler
	cfg     WavefrontConfig
	Stats   RenderStats
	Trace   *schedtrace.SchedulerTrace

	// per-render state
	camera     Camera
	film       *Film
	pixelCount int
	states     *PathStateSOA
	samples    *LightSampleSOA
	queue      *AggregatedQueue
}

// NewWavefrontPathTracer builds the integrator for a scene.
func NewWavefrontPathTracer(scene *Scene, sampler Sampler, cfg WavefrontConfig) *WavefrontPathTracer {
	cfg.Normalize()
	if cfg.StateCount < 1 {
		cfg.StateCount = 1 << 18
	}
	return &WavefrontPathTracer{scene: scene, sampler: sampler, cfg: cfg}
}

// launchesPerCommit paces progress reporting.
const launchesPerCommit = 16

// initState allocates the per-render stores and clears the film.
func (w *WavefrontPathTracer) initState(camera Camera) {
	w.camera = camera
	w.film = camera.Film()
	width, height := w.film.Resolution()
	w.pixelCount = width * height

	tagCount := 0
	if w.cfg.UseTagSort {
		tagCount = len(w.scene.Surfaces)
	}
	w.states = NewPathStateSOA(w.scene.Spectrum, w.cfg.StateCount, w.cfg.Gathering)
	w.samples = NewLightSampleSOA(w.scene.Spectrum, w.cfg.StateCount, tagCount)
	w.queue = NewAggregatedQueue(w.cfg.StateCount, w.cfg.Gathering)
	w.sampler.Reset(w.cfg.StateCount)
	w.film.Prepare(nil)
}

// Render executes rendering for a single camera into its film.
func (w *WavefrontPathTracer) Render(camera Camera) error {
	if err := checkLighting(w.scene); err != nil {
		return err
	}
	// Surface unsatisfiable state allocations before any output is
	// produced; per-path anomalies are absorbed locally instead.
	if w.cfg.StateCount > 1<<28 {
		return fmt.Errorf("state count %d: %w", w.cfg.StateCount, ErrStateExhausted)
	}
	start := time.Now()
	w.initState(camera)
	width, height := w.film.Resolution()

	logrus.Infof("Wavefront path tracing: resolution=%dx%d spp=%d state_count=%d gathering=%v compact=%v tag_sort=%v",
		width, height, camera.SPP(), w.cfg.StateCount, w.cfg.Gathering, w.cfg.Compact, w.cfg.UseTagSort)

	shutterSPP := 0
	for _, s := range camera.ShutterSamples() {
		shutterSPP += s.SPP
		w.renderShutterSample(s, shutterSPP)
	}

	logRenderTime("Wavefront rendering", start)
	logrus.Infof("Total iterations %d, %d of them generation.", w.Stats.Iterations, w.Stats.GenerationIterations)
	return nil
}

func (w *WavefrontPathTracer) renderShutterSample(s ShutterSample, shutterSPP int) {
	w.scene.Update(s.Time)
	w.markAllInvalid()

	stateCount := uint32(w.cfg.StateCount)
	launchTotal := s.SPP * w.pixelCount
	remaining := launchTotal
	lastCommitted := remaining
	queuesEmpty := true

	for remaining > 0 || !queuesEmpty {
		w.Stats.Iterations++
		queuesEmpty = true
		w.queue.CatchCounters()

		if w.queue.HostCount(KernelInvalid) > stateCount/2 && remaining > 0 {
			generated := w.refill(remaining, s, shutterSPP, launchTotal)
			remaining -= int(generated)
			queuesEmpty = false
			w.record(schedtrace.ActionGenerate, generated)
			continue
		}

		// Set up every non-empty stage before launching any of them: the
		// gather passes must observe the kernel fields as snapshotted.
		var windows [KernelCount][]uint32
		for stage := KernelIntersect; stage < KernelCount; stage++ {
			if w.queue.HostCount(stage) == 0 {
				continue
			}
			queuesEmpty = false
			windows[stage] = w.setupWorkload(stage)
		}
		for stage := KernelIntersect; stage < KernelCount; stage++ {
			if len(windows[stage]) == 0 {
				continue
			}
			w.launchKernel(stage, windows[stage], s)
		}
		w.record(schedtrace.ActionDispatch, 0)

		if lastCommitted-remaining >= launchesPerCommit*w.pixelCount {
			lastCommitted = remaining
			p := float64(launchTotal-remaining) / float64(launchTotal)
			logrus.Debugf("Shutter sample t=%g progress %.1f%%", s.Time, 100*p)
		}
	}
}

// record appends a scheduler-trace entry when tracing is enabled.
func (w *WavefrontPathTracer) record(action schedtrace.Action, generated uint32) {
	if !w.Trace.Enabled() {
		return
	}
	sizes := make([]uint32, KernelCount)
	for i := 0; i < KernelCount; i++ {
		sizes[i] = w.queue.Count(i)
	}
	w.Trace.Record(schedtrace.IterationRecord{
		Iteration:  w.Stats.Iterations,
		Action:     action,
		QueueSizes: sizes,
		Generated:  generated,
		Compacted:  action == schedtrace.ActionGenerate && w.cfg.Compact,
	})
}

// markAllInvalid initializes the pool: every path id is invalid.
func (w *WavefrontPathTracer) markAllInvalid() {
	w.queue.ClearCounter(-1)
	n := w.cfg.StateCount
	parallelFor(n, func(worker, start, end int) {
		for id := start; id < end; id++ {
			w.queue.WriteIndex(KernelInvalid, uint32(id), uint32(id))
			if w.states.Gathering() {
				w.states.WriteKernelIndex(uint32(id), KernelInvalid)
			}
		}
	})
	w.queue.SetCount(KernelInvalid, uint32(n))
}

// setupWorkload gathers (and optionally tag-sorts) one stage and clears its
// counter; it returns the stable queue window for the launch.
func (w *WavefrontPathTracer) setupWorkload(stage int) []uint32 {
	if w.cfg.Gathering {
		if stage == KernelSurface && w.cfg.UseTagSort {
			w.queue.GatherSortedByTag(w.states, w.samples, stage)
		} else {
			w.queue.Gather(w.states, stage)
		}
		window := w.queue.Indices(stage)
		w.queue.ClearCounter(stage)
		return window
	}
	// Scattered layout: snapshot the window so later pushes into this
	// stage cannot overwrite entries still being consumed.
	window := append([]uint32(nil), w.queue.Indices(stage)...)
	w.queue.ClearCounter(stage)
	return window
}

func (w *WavefrontPathTracer) launchKernel(stage int, ids []uint32, s ShutterSample) {
	w.Stats.KernelDispatches[stage]++
	switch stage {
	case KernelIntersect:
		w.intersectKernel(ids)
	case KernelMiss:
		w.missKernel(ids, s.Time)
	case KernelLight:
		w.lightKernel(ids, s.Time)
	case KernelSample:
		w.sampleLightKernel(ids, s.Time)
	case KernelSurface:
		w.surfaceKernel(ids, s.Time)
	}
}

// refill compacts the pool and generates new paths into INTERSECT.
func (w *WavefrontPathTracer) refill(remaining int, s ShutterSample, shutterSPP, launchTotal int) uint32 {
	w.Stats.GenerationIterations++
	stateCount := uint32(w.cfg.StateCount)

	invalidCount := w.queue.HostCount(KernelInvalid)
	generateCount := uint32(remaining)
	if generateCount > invalidCount {
		generateCount = invalidCount
	}
	validCount := stateCount - invalidCount

	var invalidIDs []uint32
	if w.cfg.Gathering {
		w.queue.Gather(w.states, KernelInvalid)
		invalidIDs = w.queue.Indices(KernelInvalid)
	} else {
		invalidIDs = append([]uint32(nil), w.queue.Indices(KernelInvalid)...)
	}
	w.queue.ClearCounter(KernelInvalid)

	if w.cfg.Compact {
		w.compact(validCount, invalidIDs)
		if !w.cfg.Gathering {
			// After ordering the free pool is [0, invalidCount); keep the
			// ids generation will not consume on the queue.
			for id := generateCount; id < invalidCount; id++ {
				slot := w.queue.Reserve(KernelInvalid, 1)
				w.queue.WriteIndex(KernelInvalid, slot, id)
			}
		}
	} else if !w.cfg.Gathering {
		// Keep the unconsumed invalid ids on the queue.
		for _, id := range invalidIDs[generateCount:] {
			slot := w.queue.Reserve(KernelInvalid, 1)
			w.queue.WriteIndex(KernelInvalid, slot, id)
		}
	}

	baseSPP := shutterSPP - s.SPP
	extraSampleID := launchTotal - remaining
	w.generateKernel(invalidIDs, generateCount, uint32(baseSPP), uint32(extraSampleID), s)
	return generateCount
}

// compact relocates every active path id >= validCount into a free slot
// below it, then packs the active ids at the top of the id range sorted by
// stage so freshly generated paths occupy a contiguous low range.
func (w *WavefrontPathTracer) compact(validCount uint32, invalidIDs []uint32) {
	w.compactActive(validCount, invalidIDs)
	w.orderActive()
}

// compactActive moves actives above the watermark into free slots below it.
// Afterwards every active path occupies an id in [0, validCount).
func (w *WavefrontPathTracer) compactActive(validCount uint32, invalidIDs []uint32) {
	// Free slots below the watermark.
	var empty []uint32
	for _, id := range invalidIDs {
		if id < validCount {
			empty = append(empty, id)
		}
	}
	next := 0
	for stage := KernelIntersect; stage < KernelCount; stage++ {
		if w.queue.HostCount(stage) == 0 {
			continue
		}
		if w.cfg.Gathering {
			w.queue.Gather(w.states, stage)
		}
		ids := w.queue.Indices(stage)
		for k, id := range ids {
			if id < validCount {
				continue
			}
			slot := empty[next]
			next++
			w.movePath(id, slot, stage)
			ids[k] = slot
		}
	}
}

// orderActive packs actives contiguously at [stateCount - active,
// stateCount) grouped by stage so generation can hand out the low ids in
// dispatch order. The refill threshold guarantees the source and target
// ranges cannot overlap.
func (w *WavefrontPathTracer) orderActive() {
	offset := uint32(w.cfg.StateCount)
	for stage := KernelIntersect; stage < KernelCount; stage++ {
		count := w.queue.HostCount(stage)
		if count == 0 {
			continue
		}
		offset -= count
		ids := w.queue.Indices(stage)
		for k, id := range ids {
			target := offset + uint32(k)
			if id == target {
				continue
			}
			w.movePath(id, target, stage)
			ids[k] = target
		}
	}
}

// movePath relocates the full state of a path: SoA fields, the light-sample
// record when it is live, and the sampler stream.
func (w *WavefrontPathTracer) movePath(from, to uint32, stage int) {
	w.states.Move(from, to)
	if !w.cfg.Gathering || stage == KernelSurface {
		w.samples.Move(from, to)
	}
	w.sampler.Save(to, w.sampler.Load(from))
	if w.states.Gathering() {
		w.states.WriteKernelIndex(from, KernelInvalid)
	}
}
