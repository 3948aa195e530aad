// Megakernel path tracer.
//
// The converse of the wavefront decomposition: one fused kernel runs the
// whole path loop. Each worker "block" owns a window of concurrent path
// slots and a private mini-scheduler: per iteration it walks its slots once
// per stage, processing them stage by stage (the block-local analogue of the
// shared-memory sort) and refills invalid slots from a global fetch-add
// workload window. Blocks exit in an undefined order; the image cannot
// depend on it because all output flows through the atomic film.

package render

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// MegakernelConfig parameterizes the fused-kernel integrator.
type MegakernelConfig struct {
	Config
	// BlockSize is the number of concurrent path slots per worker block.
	BlockSize int
	// FetchSize scales the per-block workload window in units of BlockSize.
	FetchSize int
}

// MegakernelPathTracer runs the entire path loop in one kernel per block.
type MegakernelPathTracer struct {
	scene   *Scene
	sampler Sampler
	cfg     MegakernelConfig
	Stats   RenderStats
}

// NewMegakernelPathTracer builds the integrator for a scene.
func NewMegakernelPathTracer(scene *Scene, sampler Sampler, cfg MegakernelConfig) *MegakernelPathTracer {
	cfg.Normalize()
	if cfg.BlockSize < 1 {
		cfg.BlockSize = 64
	}
	if cfg.FetchSize < 1 {
		cfg.FetchSize = 4
	}
	return &MegakernelPathTracer{scene: scene, sampler: sampler, cfg: cfg}
}

// blockSlots is the block-local path state; the megakernel has no global
// queues, only these per-block arrays.
type blockSlots struct {
	kernel   []uint32
	ray      []Ray
	hit      []Hit
	beta     []SampledSpectrum
	pdfBSDF  []float64
	etaScale []float64
	depth    []uint32
	pixel    []uint32
	wlSample []float64
	lightWi  []Vec3
	lightPDF []float64
	lightLd  []SampledSpectrum
}

func newBlockSlots(n int) *blockSlots {
	return &blockSlots{
		kernel:   make([]uint32, n),
		ray:      make([]Ray, n),
		hit:      make([]Hit, n),
		beta:     make([]SampledSpectrum, n),
		pdfBSDF:  make([]float64, n),
		etaScale: make([]float64, n),
		depth:    make([]uint32, n),
		pixel:    make([]uint32, n),
		wlSample: make([]float64, n),
		lightWi:  make([]Vec3, n),
		lightPDF: make([]float64, n),
		lightLd:  make([]SampledSpectrum, n),
	}
}

// Render executes rendering for a single camera into its film.
func (m *MegakernelPathTracer) Render(camera Camera) error {
	if err := checkLighting(m.scene); err != nil {
		return err
	}
	start := time.Now()
	film := camera.Film()
	width, height := film.Resolution()
	pixelCount := width * height
	film.Prepare(nil)

	blocks := runtime.GOMAXPROCS(0)
	m.sampler.Reset(blocks * m.cfg.BlockSize)

	logrus.Infof("Megakernel path tracing: resolution=%dx%d spp=%d block_size=%d blocks=%d",
		width, height, camera.SPP(), m.cfg.BlockSize, blocks)

	shutterSPP := 0
	for _, s := range camera.ShutterSamples() {
		baseSPP := shutterSPP
		shutterSPP += s.SPP
		totalSamples := int64(s.SPP) * int64(pixelCount)
		var nextSample int64

		var wg sync.WaitGroup
		for b := 0; b < blocks; b++ {
			wg.Add(1)
			go func(block int) {
				defer wg.Done()
				m.runBlock(block, camera, film, pixelCount, uint32(baseSPP), s, &nextSample, totalSamples)
			}(b)
		}
		wg.Wait()
	}

	logRenderTime("Megakernel rendering", start)
	return nil
}

// runBlock is the per-block generator plus path machine. The block fetches
// workload windows with one atomic add, fills its invalid slots, and steps
// every live slot stage by stage until both the workload and the slots are
// exhausted.
func (m *MegakernelPathTracer) runBlock(block int, camera Camera, film *Film, pixelCount int, baseSPP uint32, shutter ShutterSample, nextSample *int64, totalSamples int64) {
	B := m.cfg.BlockSize
	slots := newBlockSlots(B)
	base := uint32(block * B)

	var window, windowEnd int64
	workloadDone := false

	anyActive := func() bool {
		for i := 0; i < B; i++ {
			if slots.kernel[i] != KernelInvalid {
				return true
			}
		}
		return false
	}

	for {
		// Refill invalid slots from the workload window. The generator may
		// produce nothing once the global counter is exhausted.
		for i := 0; i < B && !workloadDone; i++ {
			if slots.kernel[i] != KernelInvalid {
				continue
			}
			if window >= windowEnd {
				fetch := int64(B * m.cfg.FetchSize)
				window = atomic.AddInt64(nextSample, fetch) - fetch
				windowEnd = window + fetch
				if windowEnd > totalSamples {
					windowEnd = totalSamples
				}
				if window >= totalSamples {
					workloadDone = true
					break
				}
			}
			m.generateSlot(slots, i, base, camera, pixelCount, baseSPP, shutter, window)
			window++
		}
		if workloadDone && !anyActive() {
			return
		}

		// One block iteration: the slots grouped by stage, in the same
		// order the wavefront dispatches its queues.
		for stage := KernelIntersect; stage < KernelCount; stage++ {
			for i := 0; i < B; i++ {
				if slots.kernel[i] != uint32(stage) {
					continue
				}
				switch stage {
				case KernelIntersect:
					m.intersectSlot(slots, i)
				case KernelMiss:
					m.missSlot(slots, i, film, shutter.Time)
				case KernelLight:
					m.lightSlot(slots, i, film, shutter.Time)
				case KernelSample:
					m.sampleLightSlot(slots, i, base, shutter.Time)
				case KernelSurface:
					m.surfaceSlot(slots, i, base, film, shutter.Time)
				}
			}
		}
	}
}

func (m *MegakernelPathTracer) swlFor(slots *blockSlots, i int) SampledWavelengths {
	spectrum := m.scene.Spectrum
	if spectrum.IsFixed() {
		return spectrum.Sample(0)
	}
	u := slots.wlSample[i]
	swl := spectrum.Sample(math.Abs(u))
	if math.Signbit(u) {
		swl.TerminateSecondary()
	}
	return swl
}

func (m *MegakernelPathTracer) generateSlot(slots *blockSlots, i int, base uint32, camera Camera, pixelCount int, baseSPP uint32, shutter ShutterSample, sample int64) {
	spectrum := m.scene.Spectrum
	pixelID := uint32(sample % int64(pixelCount))
	sampleID := baseSPP + uint32(sample/int64(pixelCount))

	film := camera.Film()
	film.Accumulate(pixelID, [3]float64{}, 1)

	st := m.sampler.Start(pixelID, sampleID)
	var uFilter, uLens [2]float64
	uFilter[0], uFilter[1] = st.GeneratePixel2D()
	uLens = [2]float64{0.5, 0.5}
	if camera.RequiresLensSampling() {
		uLens[0], uLens[1] = st.Generate2D()
	}
	uWavelength := 0.0
	if !spectrum.IsFixed() {
		uWavelength = st.Generate1D()
	}
	m.sampler.Save(base+uint32(i), st)

	cs := camera.GenerateRay(pixelID, shutter.Time, uFilter, uLens)
	slots.ray[i] = cs.Ray
	slots.wlSample[i] = uWavelength
	slots.beta[i] = NewSampledSpectrum(spectrum.Dimension(), shutter.Weight*cs.Weight)
	slots.pdfBSDF[i] = DeltaPDF
	slots.etaScale[i] = 1
	slots.pixel[i] = pixelID
	slots.depth[i] = 0
	slots.kernel[i] = KernelIntersect
	atomic.AddInt64(&m.Stats.PathsGenerated, 1)
}

func (m *MegakernelPathTracer) intersectSlot(slots *blockSlots, i int) {
	geom := m.scene.Geometry
	hit := geom.TraceClosest(slots.ray[i])
	m.Stats.addRays(1)
	slots.hit[i] = hit
	if hit.Miss() {
		if m.scene.LightSampler.Environment() {
			slots.kernel[i] = KernelMiss
		} else {
			slots.kernel[i] = KernelInvalid
		}
		return
	}
	hasSurface, hasLight := geom.InstanceFlags(hit.Instance)
	switch {
	case hasLight:
		slots.kernel[i] = KernelLight
	case hasSurface:
		slots.kernel[i] = KernelSample
	default:
		slots.kernel[i] = KernelInvalid
	}
}

func (m *MegakernelPathTracer) missSlot(slots *blockSlots, i int, film *Film, time float64) {
	spectrum := m.scene.Spectrum
	swl := m.swlFor(slots, i)
	eval := m.scene.LightSampler.EvaluateMiss(slots.ray[i].Direction, &swl, time)
	mis := BalanceHeuristic(slots.pdfBSDF[i], eval.PDF)
	Li := slots.beta[i].MulSpectrum(eval.L).Scale(mis)
	film.Accumulate(slots.pixel[i], spectrum.SRGB(&swl, Li), 0)
	slots.kernel[i] = KernelInvalid
}

func (m *MegakernelPathTracer) lightSlot(slots *blockSlots, i int, film *Film, time float64) {
	spectrum := m.scene.Spectrum
	geom := m.scene.Geometry
	swl := m.swlFor(slots, i)
	it := geom.Interaction(slots.ray[i], slots.hit[i])
	eval := m.scene.LightSampler.EvaluateHit(&it, slots.ray[i].Origin, &swl, time)
	mis := BalanceHeuristic(slots.pdfBSDF[i], eval.PDF)
	Li := slots.beta[i].MulSpectrum(eval.L).Scale(mis)
	film.Accumulate(slots.pixel[i], spectrum.SRGB(&swl, Li), 0)
	if it.HasSurface {
		slots.kernel[i] = KernelSample
	} else {
		slots.kernel[i] = KernelInvalid
	}
}

func (m *MegakernelPathTracer) sampleLightSlot(slots *blockSlots, i int, base uint32, time float64) {
	geom := m.scene.Geometry
	st := m.sampler.Load(base + uint32(i))
	uSel := st.Generate1D()
	var uSurf [2]float64
	uSurf[0], uSurf[1] = st.Generate2D()
	m.sampler.Save(base+uint32(i), st)

	swl := m.swlFor(slots, i)
	it := geom.Interaction(slots.ray[i], slots.hit[i])
	ls := m.scene.LightSampler.Sample(&it, uSel, uSurf, &swl, time)

	occluded := false
	if ls.Eval.PDF > 0 {
		occluded = geom.TraceAny(ls.ShadowRay)
		m.Stats.addShadows(1)
	}
	if occluded || ls.Eval.PDF <= 0 {
		slots.lightLd[i] = SampledSpectrum{Dim: m.scene.Spectrum.Dimension()}
		slots.lightPDF[i] = 0
	} else {
		slots.lightLd[i] = ls.Eval.L
		slots.lightPDF[i] = ls.Eval.PDF
	}
	slots.lightWi[i] = ls.ShadowRay.Direction
	slots.kernel[i] = KernelSurface
}

func (m *MegakernelPathTracer) surfaceSlot(slots *blockSlots, i int, base uint32, film *Film, time float64) {
	spectrum := m.scene.Spectrum
	geom := m.scene.Geometry
	st := m.sampler.Load(base + uint32(i))
	depth := slots.depth[i]
	uLobe := st.Generate1D()
	var uDir [2]float64
	uDir[0], uDir[1] = st.Generate2D()
	uRR := 0.0
	if depth+1 >= uint32(m.cfg.RRDepth) {
		uRR = st.Generate1D()
	}
	m.sampler.Save(base+uint32(i), st)

	ray := slots.ray[i]
	it := geom.Interaction(ray, slots.hit[i])
	swl := m.swlFor(slots, i)
	beta := slots.beta[i]
	wo := ray.Direction.Neg()

	surface := m.scene.SurfaceFor(it.SurfaceTag)
	if surface == nil {
		slots.kernel[i] = KernelInvalid
		return
	}
	closure := surface.Closure(&it, &swl, wo, time)

	if o, ok := closure.Opacity(); ok {
		opacity := clamp(o, 0, 1)
		if uLobe >= opacity {
			slots.ray[i] = it.SpawnRay(ray.Direction)
			slots.pdfBSDF[i] = DeltaPDF
			slots.kernel[i] = KernelIntersect
			return
		}
		uLobe /= opacity
	}

	if closure.Dispersive() {
		swl.TerminateSecondary()
		slots.wlSample[i] = -math.Abs(slots.wlSample[i])
	}

	if slots.lightPDF[i] > 0 {
		eval := closure.Evaluate(wo, slots.lightWi[i], TransportRadiance)
		mis := BalanceHeuristic(slots.lightPDF[i], eval.PDF)
		Li := beta.MulSpectrum(eval.F).MulSpectrum(slots.lightLd[i]).Scale(mis / slots.lightPDF[i])
		film.Accumulate(slots.pixel[i], spectrum.SRGB(&swl, Li), 0)
	}

	ss := closure.Sample(wo, uLobe, uDir, TransportRadiance)
	slots.pdfBSDF[i] = ss.Eval.PDF
	nextRay := it.SpawnRay(ss.Wi)
	invPDF := 0.0
	if ss.Eval.PDF > 0 {
		invPDF = 1 / ss.Eval.PDF
	}
	beta = beta.MulSpectrum(ss.Eval.F).Scale(invPDF)

	if eta, ok := closure.Eta(); ok {
		switch ss.Event {
		case EventEnter:
			slots.etaScale[i] *= sqr(eta)
		case EventExit:
			slots.etaScale[i] /= sqr(eta)
		}
	}

	beta = beta.ZeroIfAnyNaN()
	terminated := false
	if beta.All(func(b float64) bool { return b <= 0 }) {
		terminated = true
	} else if depth+1 >= uint32(m.cfg.RRDepth) {
		q := math.Max(beta.Max()*slots.etaScale[i], 0.05)
		if q < m.cfg.RRThreshold {
			if uRR >= q {
				terminated = true
			} else {
				beta = beta.Scale(1 / q)
			}
		}
	}
	if depth+1 >= uint32(m.cfg.MaxDepth) {
		terminated = true
	}

	if terminated {
		slots.kernel[i] = KernelInvalid
		return
	}
	slots.depth[i] = depth + 1
	slots.beta[i] = beta
	slots.ray[i] = nextRay
	slots.kernel[i] = KernelIntersect
}
