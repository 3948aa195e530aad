// Stochastic progressive photon mapping.
//
// Per progressive iteration: emit photons from the lights through the
// adjoint surface machine, link them into a spatial hash grid, gather from
// the camera with a restricted path tracer that estimates direct lighting
// separately, then shrink the per-pixel (or shared) radius statistics.
// Insertion and gathering never run in the same pass; the gather only
// observes a fully built grid.

package render

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// sppmGamma is the radius-shrinkage exponent of the SPPM update rule.
const sppmGamma = 2.0 / 3.0

// roughnessStop gates where the camera pass gathers photons: the walk stops
// at the first sufficiently rough hit.
const roughnessStop = 0.16

// PhotonMapperConfig parameterizes the photon mapping integrator.
type PhotonMapperConfig struct {
	Config
	// PhotonsPerIteration is the emission count M per progressive pass.
	PhotonsPerIteration int
	// InitialRadius < 0 derives the radius as worldExtent / -InitialRadius.
	InitialRadius float64
	// SharedRadius maintains one global (N, tau, r) triple instead of
	// per-pixel statistics.
	SharedRadius bool
	// Clamp bounds each channel of the per-iteration flux accumulator.
	Clamp float64
}

// photon is one stored light-path vertex.
type photon struct {
	position Vec3
	wi       Vec3
	power    SampledSpectrum
	swl      SampledWavelengths
}

// photonMap is the spatial hash grid over stored photons: each quantized
// cell keeps a singly-linked list head among the photon indices.
type photonMap struct {
	photons []photon
	next    []uint32
	head    []uint32
	count   uint32 // current photon count (atomic)

	gridMin Vec3
	gridLen float64
}

const nilPhoton = ^uint32(0)

func newPhotonMap(capacity int) *photonMap {
	return &photonMap{
		photons: make([]photon, capacity),
		next:    make([]uint32, capacity),
		head:    make([]uint32, capacity),
	}
}

// reset clears the heads and count for the next iteration.
func (p *photonMap) reset() {
	atomic.StoreUint32(&p.count, 0)
	for i := range p.head {
		p.head[i] = nilPhoton
	}
}

// setGrid places the grid origin at the world bounds' minimum, padded by the
// gather radius, and sets the cell side to that radius. The origin derives
// from the world bounding box rather than atomic float min/max over photon
// positions, which some backends implement incorrectly.
func (p *photonMap) setGrid(worldMin Vec3, radius float64) {
	p.gridMin = worldMin.Sub(Vec3{radius, radius, radius})
	p.gridLen = math.Max(radius, 1e-9)
}

// push stores a photon; photons beyond capacity are dropped.
func (p *photonMap) push(position Vec3, swl SampledWavelengths, power SampledSpectrum, wi Vec3) bool {
	idx := atomic.AddUint32(&p.count, 1) - 1
	if int(idx) >= len(p.photons) {
		atomic.StoreUint32(&p.count, uint32(len(p.photons)))
		return false
	}
	p.photons[idx] = photon{position: position, wi: wi, power: power, swl: swl}
	return true
}

func (p *photonMap) total() uint32 {
	n := atomic.LoadUint32(&p.count)
	if int(n) > len(p.photons) {
		return uint32(len(p.photons))
	}
	return n
}

// pointToGrid quantizes a position to integer cell coordinates.
func (p *photonMap) pointToGrid(pos Vec3) [3]int {
	return [3]int{
		int(math.Floor((pos.X - p.gridMin.X) / p.gridLen)),
		int(math.Floor((pos.Y - p.gridMin.Y) / p.gridLen)),
		int(math.Floor((pos.Z - p.gridMin.Z) / p.gridLen)),
	}
}

// gridToIndex hashes cell coordinates into the head table.
func (p *photonMap) gridToIndex(g [3]int) uint32 {
	h := (g[0]*73856093 ^ g[1]*19349663 ^ g[2]*83492791) % len(p.head)
	return uint32((h + len(p.head)) % len(p.head))
}

// link inserts photon idx at the head of its cell list via atomic exchange.
// Races between inserters are safe: each photon is inserted independently
// and only the head is contended.
func (p *photonMap) link(idx uint32) {
	cell := p.gridToIndex(p.pointToGrid(p.photons[idx].position))
	old := atomic.SwapUint32(&p.head[cell], idx)
	p.next[idx] = old
}

// pixelStats is the progressive per-pixel (or shared) SPPM state.
type pixelStats struct {
	shared bool
	radius []float64
	n      []float64 // accumulated photon statistic N_k
	curM   []uint32  // photons gathered this iteration (atomic)
	phi    []uint64  // per-channel flux accumulator (float bits, atomic)
	tau    [][3]float64
	clamp  float64
}

func newPixelStats(pixels int, r0, clampV float64, shared bool) *pixelStats {
	n := pixels
	if shared {
		n = 1
	}
	s := &pixelStats{
		shared: shared,
		radius: make([]float64, n),
		n:      make([]float64, n),
		curM:   make([]uint32, n),
		phi:    make([]uint64, pixels*3),
		tau:    make([][3]float64, pixels),
		clamp:  clampV,
	}
	for i := range s.radius {
		s.radius[i] = r0
	}
	return s
}

func (s *pixelStats) slot(pixel uint32) uint32 {
	if s.shared {
		return 0
	}
	return pixel
}

func (s *pixelStats) radiusFor(pixel uint32) float64 { return s.radius[s.slot(pixel)] }

// maxRadius bounds the grid cell side so a 3×3×3 neighbourhood always
// covers the largest per-pixel gather radius.
func (s *pixelStats) maxRadius() float64 {
	r := s.radius[0]
	for _, v := range s.radius[1:] {
		if v > r {
			r = v
		}
	}
	return r
}

func (s *pixelStats) addPhi(pixel uint32, rgb [3]float64) {
	base := int(pixel) * 3
	for c := 0; c < 3; c++ {
		atomicAddFloat(&s.phi[base+c], rgb[c])
	}
	atomic.AddUint32(&s.curM[s.slot(pixel)], 1)
}

// update applies the SPPM shrinkage after an iteration with M_k gathered
// photons in radius r_k:
//
//	N_{k+1} = N_k + γ·M_k
//	r_{k+1} = r_k · sqrt((N_k + γ·M_k) / (N_k + M_k))
//	τ_{k+1} = (τ_k + φ_k) · (r_{k+1}/r_k)²
func (s *pixelStats) update() {
	pixels := len(s.tau)
	// Radius/N first (one slot when shared).
	ratios := make([]float64, len(s.radius))
	for i := range s.radius {
		m := float64(atomic.LoadUint32(&s.curM[i]))
		ratios[i] = 1
		if m > 0 {
			nNew := s.n[i] + sppmGamma*m
			rNew := s.radius[i] * math.Sqrt(nNew/(s.n[i]+m))
			ratios[i] = (rNew / s.radius[i]) * (rNew / s.radius[i])
			s.n[i] = nNew
			s.radius[i] = rNew
		}
		atomic.StoreUint32(&s.curM[i], 0)
	}
	for p := 0; p < pixels; p++ {
		ratio := ratios[s.slot(uint32(p))]
		for c := 0; c < 3; c++ {
			phi := math.Float64frombits(atomic.LoadUint64(&s.phi[p*3+c]))
			phi = clamp(phi, -s.clamp, s.clamp)
			s.tau[p][c] = (s.tau[p][c] + phi) * ratio
			atomic.StoreUint64(&s.phi[p*3+c], 0)
		}
	}
}

// indirect resolves the stored flux into radiance: τ / (M · π · r²).
func (s *pixelStats) indirect(pixel uint32, photonsPerIter int) [3]float64 {
	r := s.radiusFor(pixel)
	denom := float64(photonsPerIter) * math.Pi * r * r
	t := s.tau[pixel]
	return [3]float64{t[0] / denom, t[1] / denom, t[2] / denom}
}

// PhotonMapper is the stochastic progressive photon mapping integrator.
type PhotonMapper struct {
	scene   *Scene
	sampler Sampler
	cfg     PhotonMapperConfig
	Stats   RenderStats

	photons *photonMap
	pixels  *pixelStats
}

// NewPhotonMapper builds the integrator for a scene.
func NewPhotonMapper(scene *Scene, sampler Sampler, cfg PhotonMapperConfig) *PhotonMapper {
	cfg.Normalize()
	if cfg.PhotonsPerIteration < 10 {
		cfg.PhotonsPerIteration = 200000
	}
	if cfg.InitialRadius == 0 {
		cfg.InitialRadius = -200
	}
	if cfg.Clamp <= 0 {
		cfg.Clamp = 1e6
	}
	return &PhotonMapper{scene: scene, sampler: sampler, cfg: cfg}
}

// Radius exposes the current shared/first-pixel radius for diagnostics.
func (pm *PhotonMapper) Radius(pixel uint32) float64 { return pm.pixels.radiusFor(pixel) }

// Render executes rendering for a single camera into its film. One
// progressive iteration runs per source sample; the indirect estimate is
// resolved into the film after the last iteration.
func (pm *PhotonMapper) Render(camera Camera) error {
	if err := checkLighting(pm.scene); err != nil {
		return err
	}
	if pm.scene.LightSampler.LightCount() == 0 {
		logrus.Warn("No finite lights to emit photons from. Rendering aborted.")
		return ErrNoLights
	}
	start := time.Now()
	film := camera.Film()
	width, height := film.Resolution()
	pixelCount := width * height
	film.Prepare(nil)

	worldMin, worldMax := pm.scene.Geometry.Bounds()
	extent := worldMax.Sub(worldMin)
	r0 := pm.cfg.InitialRadius
	if r0 < 0 {
		side := math.Min(extent.X, math.Min(extent.Y, extent.Z))
		r0 = side / -pm.cfg.InitialRadius
	}

	capacity := pm.cfg.PhotonsPerIteration * pm.cfg.MaxDepth
	pm.photons = newPhotonMap(capacity)
	pm.pixels = newPixelStats(pixelCount, r0, pm.cfg.Clamp, pm.cfg.SharedRadius)
	pm.sampler.Reset(pm.cfg.PhotonsPerIteration + pixelCount)

	logrus.Infof("Photon mapping: resolution=%dx%d spp=%d photons_per_iter=%d r0=%g shared_radius=%v",
		width, height, camera.SPP(), pm.cfg.PhotonsPerIteration, r0, pm.cfg.SharedRadius)

	sampleID := uint32(0)
	totalSPP := 0
	for _, s := range camera.ShutterSamples() {
		pm.scene.Update(s.Time)
		totalSPP += s.SPP
		for i := 0; i < s.SPP; i++ {
			pm.renderIteration(camera, film, pixelCount, sampleID, s)
			sampleID++
		}
	}

	// Draw the indirect estimate on top of the averaged direct light.
	for p := 0; p < pixelCount; p++ {
		L := pm.pixels.indirect(uint32(p), pm.cfg.PhotonsPerIteration)
		scale := float64(totalSPP)
		film.Accumulate(uint32(p), [3]float64{L[0] * scale, L[1] * scale, L[2] * scale}, 0)
	}

	logRenderTime("Photon mapping", start)
	return nil
}

func (pm *PhotonMapper) renderIteration(camera Camera, film *Film, pixelCount int, sampleID uint32, s ShutterSample) {
	worldMin, _ := pm.scene.Geometry.Bounds()

	// 1. Emit photons (adjoint transport).
	pm.photons.reset()
	pm.photons.setGrid(worldMin, pm.pixels.maxRadius())
	parallelFor(pm.cfg.PhotonsPerIteration, func(worker, start, end int) {
		for d := start; d < end; d++ {
			pm.tracePhoton(uint32(d), sampleID, s.Time)
		}
	})

	// 2. Build the grid. Insertions become visible to the gather only after
	// this pass fully completes.
	total := int(pm.photons.total())
	parallelFor(total, func(worker, start, end int) {
		for idx := start; idx < end; idx++ {
			pm.photons.link(uint32(idx))
		}
	})
	pm.Stats.addPhotons(int64(total))

	// 3. Camera gather pass.
	parallelFor(pixelCount, func(worker, start, end int) {
		for p := start; p < end; p++ {
			pm.gatherPixel(camera, film, uint32(p), sampleID, s)
		}
	})

	// 4. Progressive statistics update.
	pm.pixels.update()
	pm.Stats.Iterations++
}

// tracePhoton emits one photon from the lights and records it at every
// non-specular hit past the first bounce (direct light is estimated
// separately by the camera pass).
func (pm *PhotonMapper) tracePhoton(id uint32, sampleID uint32, time float64) {
	spectrum := pm.scene.Spectrum
	geom := pm.scene.Geometry
	st := pm.sampler.Start(id, sampleID)

	uSel := st.Generate1D()
	var uSurf, uDir [2]float64
	uSurf[0], uSurf[1] = st.Generate2D()
	uDir[0], uDir[1] = st.Generate2D()
	uWavelength := 0.0
	if !spectrum.IsFixed() {
		uWavelength = st.Generate1D()
	}
	swl := spectrum.Sample(uWavelength)

	le := pm.scene.LightSampler.SampleLe(uSel, uSurf, uDir, &swl, time)
	if le.Eval.PDF <= 0 {
		return
	}
	// Cosine term cancels against the emission pdf.
	beta := le.Eval.L.Scale(1 / le.Eval.PDF)
	ray := le.Ray

	for depth := 0; depth < pm.cfg.MaxDepth; depth++ {
		wi := ray.Direction.Neg()
		hit := geom.TraceClosest(ray)
		pm.Stats.addRays(1)
		if hit.Miss() {
			return
		}
		hasSurface, _ := geom.InstanceFlags(hit.Instance)
		if !hasSurface {
			return
		}
		it := geom.Interaction(ray, hit)

		uLobe := st.Generate1D()
		var uBsdf [2]float64
		uBsdf[0], uBsdf[1] = st.Generate2D()
		uRR := 0.0
		if depth+1 >= pm.cfg.RRDepth {
			uRR = st.Generate1D()
		}

		surface := pm.scene.SurfaceFor(it.SurfaceTag)
		if surface == nil {
			return
		}
		closure := surface.Closure(&it, &swl, wi, time)

		if depth > 0 && closure.Roughness() > 0 {
			pm.photons.push(it.Point, swl, beta, wi)
		}

		if o, ok := closure.Opacity(); ok {
			opacity := clamp(o, 0, 1)
			if uLobe >= opacity {
				ray = it.SpawnRay(ray.Direction)
				continue
			}
			uLobe /= opacity
		}

		if closure.Dispersive() {
			swl.TerminateSecondary()
		}

		ss := closure.Sample(wi, uLobe, uBsdf, TransportImportance)
		if ss.Eval.PDF <= 0 {
			return
		}
		beta = beta.MulSpectrum(ss.Eval.F).Scale(1 / ss.Eval.PDF)
		ray = it.SpawnRay(ss.Wi)

		beta = beta.ZeroIfAnyNaN()
		if beta.All(func(b float64) bool { return b <= 0 }) {
			return
		}
		if depth+1 >= pm.cfg.RRDepth {
			q := math.Max(beta.Max(), 0.05)
			if q < pm.cfg.RRThreshold {
				if uRR >= q {
					return
				}
				beta = beta.Scale(1 / q)
			}
		}
	}
}

// gatherPixel runs the restricted camera path: direct lighting with MIS up
// to the first rough hit, then a 3×3×3 cell gather around that hit.
func (pm *PhotonMapper) gatherPixel(camera Camera, film *Film, pixel uint32, sampleID uint32, s ShutterSample) {
	spectrum := pm.scene.Spectrum
	geom := pm.scene.Geometry
	sampler := pm.scene.LightSampler
	st := pm.sampler.Start(pixel+uint32(pm.cfg.PhotonsPerIteration), sampleID)

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
	swl := spectrum.Sample(uWavelength)

	cs := camera.GenerateRay(pixel, s.Time, uFilter, uLens)
	beta := NewSampledSpectrum(spectrum.Dimension(), s.Weight*cs.Weight)
	Li := SampledSpectrum{Dim: spectrum.Dimension()}
	ray := cs.Ray
	pdfBSDF := DeltaPDF

	film.Accumulate(pixel, [3]float64{}, 1)

	for depth := 0; depth < pm.cfg.MaxDepth; depth++ {
		wo := ray.Direction.Neg()
		hit := geom.TraceClosest(ray)
		pm.Stats.addRays(1)

		if hit.Miss() {
			if sampler.Environment() {
				eval := sampler.EvaluateMiss(ray.Direction, &swl, s.Time)
				Li = Li.AddSpectrum(beta.MulSpectrum(eval.L).Scale(BalanceHeuristic(pdfBSDF, eval.PDF)))
			}
			break
		}
		it := geom.Interaction(ray, hit)
		if it.HasLight {
			eval := sampler.EvaluateHit(&it, ray.Origin, &swl, s.Time)
			Li = Li.AddSpectrum(beta.MulSpectrum(eval.L).Scale(BalanceHeuristic(pdfBSDF, eval.PDF)))
		}
		if !it.HasSurface {
			break
		}

		uSel := st.Generate1D()
		var uSurf [2]float64
		uSurf[0], uSurf[1] = st.Generate2D()
		uLobe := st.Generate1D()
		var uBsdf [2]float64
		uBsdf[0], uBsdf[1] = st.Generate2D()
		uRR := 0.0
		if depth+1 >= pm.cfg.RRDepth {
			uRR = st.Generate1D()
		}

		ls := sampler.Sample(&it, uSel, uSurf, &swl, s.Time)
		occluded := false
		if ls.Eval.PDF > 0 {
			occluded = geom.TraceAny(ls.ShadowRay)
			pm.Stats.addShadows(1)
		}

		surface := pm.scene.SurfaceFor(it.SurfaceTag)
		if surface == nil {
			break
		}
		closure := surface.Closure(&it, &swl, wo, s.Time)

		stopDirect := false
		if depth+1 >= pm.cfg.RRDepth {
			q := math.Max(beta.Max(), 0.05)
			if q < pm.cfg.RRThreshold && uRR >= q {
				stopDirect = true
			}
		}

		if o, ok := closure.Opacity(); ok {
			opacity := clamp(o, 0, 1)
			if uLobe >= opacity {
				ray = it.SpawnRay(ray.Direction)
				pdfBSDF = DeltaPDF
				continue
			}
			uLobe /= opacity
		}

		if closure.Dispersive() {
			swl.TerminateSecondary()
		}

		if ls.Eval.PDF > 0 && !occluded {
			eval := closure.Evaluate(wo, ls.ShadowRay.Direction, TransportRadiance)
			w := BalanceHeuristic(ls.Eval.PDF, eval.PDF) / ls.Eval.PDF
			Li = Li.AddSpectrum(beta.MulSpectrum(eval.F).MulSpectrum(ls.Eval.L).Scale(w))
		}

		rough := closure.Roughness()
		if rough*rough > roughnessStop || stopDirect {
			pm.gatherPhotons(&it, closure, wo, &swl, beta, pixel)
			// Close the direct estimate with one more bounce so emitters
			// seen through the gather point are not double counted.
			ss := closure.Sample(wo, uLobe, uBsdf, TransportRadiance)
			if ss.Eval.PDF > 0 {
				beta = beta.MulSpectrum(ss.Eval.F).Scale(1 / ss.Eval.PDF).ZeroIfAnyNaN()
				next := it.SpawnRay(ss.Wi)
				nextHit := geom.TraceClosest(next)
				pm.Stats.addRays(1)
				if nextHit.Miss() {
					if sampler.Environment() {
						eval := sampler.EvaluateMiss(next.Direction, &swl, s.Time)
						Li = Li.AddSpectrum(beta.MulSpectrum(eval.L).Scale(BalanceHeuristic(ss.Eval.PDF, eval.PDF)))
					}
				} else {
					nextIt := geom.Interaction(next, nextHit)
					if nextIt.HasLight {
						eval := sampler.EvaluateHit(&nextIt, next.Origin, &swl, s.Time)
						Li = Li.AddSpectrum(beta.MulSpectrum(eval.L).Scale(BalanceHeuristic(ss.Eval.PDF, eval.PDF)))
					}
				}
			}
			break
		}

		ss := closure.Sample(wo, uLobe, uBsdf, TransportRadiance)
		if ss.Eval.PDF <= 0 {
			break
		}
		pdfBSDF = ss.Eval.PDF
		beta = beta.MulSpectrum(ss.Eval.F).Scale(1 / ss.Eval.PDF).ZeroIfAnyNaN()
		if beta.All(func(b float64) bool { return b <= 0 }) {
			break
		}
		ray = it.SpawnRay(ss.Wi)
		if depth+1 >= pm.cfg.RRDepth {
			q := math.Max(beta.Max(), 0.05)
			if q < pm.cfg.RRThreshold {
				beta = beta.Scale(1 / q)
			}
		}
	}

	film.Accumulate(pixel, spectrum.SRGB(&swl, Li), 0)
}

// gatherPhotons sums the flux of photons within the pixel radius from the
// 3×3×3 neighbourhood of the gather point's cell.
func (pm *PhotonMapper) gatherPhotons(it *Interaction, closure Closure, wo Vec3, swl *SampledWavelengths, beta SampledSpectrum, pixel uint32) {
	spectrum := pm.scene.Spectrum
	radius := pm.pixels.radiusFor(pixel)
	grid := pm.photons.pointToGrid(it.Point)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				cell := [3]int{grid[0] + dx, grid[1] + dy, grid[2] + dz}
				idx := atomic.LoadUint32(&pm.photons.head[pm.photons.gridToIndex(cell)])
				for idx != nilPhoton {
					ph := &pm.photons.photons[idx]
					if ph.position.Sub(it.Point).Len() <= radius {
						eval := closure.Evaluate(wo, ph.wi, TransportRadiance)
						wiLocal := it.Shading.ToLocal(ph.wi)
						cos := AbsCosTheta(wiLocal)
						if cos > 1e-9 && eval.PDF >= 0 {
							contrib := beta.MulSpectrum(eval.F).MulSpectrum(ph.power).Scale(1 / cos)
							rgb := spectrum.SRGB(swl, contrib.ZeroIfAnyNaN())
							pm.pixels.addPhi(pixel, rgb)
						}
					}
					idx = pm.photons.next[idx]
				}
			}
		}
	}
}
