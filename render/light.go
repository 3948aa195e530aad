// Emitters and the uniform light sampler.
//
// MIS uses the balance heuristic throughout; a pdf_bsdf of DeltaPDF weights
// the BSDF strategy to effectively one for delta-like directions.

package render

import "math"

// BalanceHeuristic is the MIS weight w(a, b) = a / (a + b).
func BalanceHeuristic(a, b float64) float64 {
	if a <= 0 && b <= 0 {
		return 0
	}
	return a / (a + b)
}

// LightEval is emitted radiance with the solid-angle density of sampling it.
type LightEval struct {
	L   SampledSpectrum
	PDF float64
}

// LightSample is a sampled emitter point with the shadow ray toward it.
type LightSample struct {
	Eval      LightEval
	ShadowRay Ray
}

// LightLeSample is a sampled photon emission.
type LightLeSample struct {
	Eval LightEval
	Ray  Ray
}

// Light is an emitter the sampler can pick.
type Light interface {
	// SampleLi picks a point on the emitter visible from it and returns the
	// incident radiance with its solid-angle pdf.
	SampleLi(it *Interaction, u [2]float64, swl *SampledWavelengths) LightSample
	// EvaluateHit returns the radiance an interaction on this light emits
	// toward origin, with the solid-angle pdf of SampleLi producing it.
	EvaluateHit(it *Interaction, origin Vec3, swl *SampledWavelengths) LightEval
	// SampleLe emits a photon ray; Eval.PDF folds the position, direction
	// and cosine terms so that power is Eval.L / Eval.PDF.
	SampleLe(uSurf, uDir [2]float64, swl *SampledWavelengths) LightLeSample
}

// AreaLight is a diffuse emitter bound to a shape instance.
type AreaLight struct {
	Shape    Shape
	Radiance [3]float64
}

func (a *AreaLight) radiance(swl *SampledWavelengths) SampledSpectrum {
	return albedoAt(swl, a.Radiance, swl.Dim == 3)
}

func (a *AreaLight) SampleLi(it *Interaction, u [2]float64, swl *SampledWavelengths) LightSample {
	p, n := a.Shape.At(u[0], u[1])
	d := p.Sub(it.Point)
	dist2 := d.Dot(d)
	if dist2 == 0 {
		return LightSample{}
	}
	wi := d.Scale(1 / math.Sqrt(dist2))
	cosL := n.Dot(wi.Neg())
	if cosL <= 0 {
		return LightSample{}
	}
	// Area pdf converted to solid angle.
	pdf := dist2 / (cosL * a.Shape.Area())
	return LightSample{
		Eval:      LightEval{L: a.radiance(swl), PDF: pdf},
		ShadowRay: it.SpawnShadowRay(p),
	}
}

func (a *AreaLight) EvaluateHit(it *Interaction, origin Vec3, swl *SampledWavelengths) LightEval {
	d := it.Point.Sub(origin)
	dist2 := d.Dot(d)
	wi := d.Normalize()
	cosL := it.GeoNormal.Dot(wi.Neg())
	if cosL <= 0 {
		return LightEval{L: SampledSpectrum{Dim: swl.Dim}}
	}
	return LightEval{
		L:   a.radiance(swl),
		PDF: dist2 / (cosL * a.Shape.Area()),
	}
}

func (a *AreaLight) SampleLe(uSurf, uDir [2]float64, swl *SampledWavelengths) LightLeSample {
	p, n := a.Shape.At(uSurf[0], uSurf[1])
	frame := NewFrame(n)
	dLocal, dirPDF := sampleCosineHemisphere(uDir[0], uDir[1])
	dir := frame.ToWorld(dLocal)
	cos := CosTheta(dLocal)
	if dirPDF <= 0 || cos <= 0 {
		return LightLeSample{}
	}
	pdf := (1 / a.Shape.Area()) * dirPDF / cos
	return LightLeSample{
		Eval: LightEval{L: a.radiance(swl), PDF: pdf},
		Ray:  NewRay(p, dir),
	}
}

// EnvironmentLight is a uniform environment emitter.
type EnvironmentLight struct {
	Radiance [3]float64
}

const uniformSpherePDF = 1 / (4 * math.Pi)

func (e *EnvironmentLight) radiance(swl *SampledWavelengths) SampledSpectrum {
	return albedoAt(swl, e.Radiance, swl.Dim == 3)
}

func (e *EnvironmentLight) SampleLi(it *Interaction, u [2]float64, swl *SampledWavelengths) LightSample {
	wi := sampleUniformSphere(u[0], u[1])
	r := it.SpawnRay(wi)
	return LightSample{
		Eval:      LightEval{L: e.radiance(swl), PDF: uniformSpherePDF},
		ShadowRay: r,
	}
}

// EvaluateMiss returns the environment radiance seen by an escaped ray.
func (e *EnvironmentLight) EvaluateMiss(wi Vec3, swl *SampledWavelengths) LightEval {
	return LightEval{L: e.radiance(swl), PDF: uniformSpherePDF}
}

// LightSampler selects and evaluates emitters.
type LightSampler interface {
	// Sample picks one light and a point on it; returns a shadow ray,
	// incident radiance and the combined solid-angle pdf.
	Sample(it *Interaction, uSel float64, uSurf [2]float64, swl *SampledWavelengths, time float64) LightSample
	// EvaluateHit handles BSDF-sampled paths that landed on an emitter.
	EvaluateHit(it *Interaction, origin Vec3, swl *SampledWavelengths, time float64) LightEval
	// EvaluateMiss handles escaped rays when an environment exists.
	EvaluateMiss(wi Vec3, swl *SampledWavelengths, time float64) LightEval
	// SampleLe emits a photon from a uniformly selected light.
	SampleLe(uSel float64, uSurf, uDir [2]float64, swl *SampledWavelengths, time float64) LightLeSample
	// Environment reports whether an environment light exists.
	Environment() bool
	// LightCount returns the number of finite lights.
	LightCount() int
}

// UniformLightSampler selects uniformly among all finite lights and the
// environment.
type UniformLightSampler struct {
	Lights []Light
	Env    *EnvironmentLight
}

func (u *UniformLightSampler) selectable() int {
	n := len(u.Lights)
	if u.Env != nil {
		n++
	}
	return n
}

func (u *UniformLightSampler) Sample(it *Interaction, uSel float64, uSurf [2]float64, swl *SampledWavelengths, time float64) LightSample {
	n := u.selectable()
	if n == 0 {
		return LightSample{}
	}
	idx := int(uSel * float64(n))
	if idx >= n {
		idx = n - 1
	}
	var ls LightSample
	if idx == len(u.Lights) {
		ls = u.Env.SampleLi(it, uSurf, swl)
	} else {
		ls = u.Lights[idx].SampleLi(it, uSurf, swl)
	}
	ls.Eval.PDF /= float64(n)
	return ls
}

func (u *UniformLightSampler) EvaluateHit(it *Interaction, origin Vec3, swl *SampledWavelengths, time float64) LightEval {
	if it.LightIndex < 0 || int(it.LightIndex) >= len(u.Lights) {
		return LightEval{L: SampledSpectrum{Dim: swl.Dim}}
	}
	eval := u.Lights[it.LightIndex].EvaluateHit(it, origin, swl)
	eval.PDF /= float64(u.selectable())
	return eval
}

func (u *UniformLightSampler) EvaluateMiss(wi Vec3, swl *SampledWavelengths, time float64) LightEval {
	if u.Env == nil {
		return LightEval{L: SampledSpectrum{Dim: swl.Dim}}
	}
	eval := u.Env.EvaluateMiss(wi, swl)
	eval.PDF /= float64(u.selectable())
	return eval
}

func (u *UniformLightSampler) SampleLe(uSel float64, uSurf, uDir [2]float64, swl *SampledWavelengths, time float64) LightLeSample {
	if len(u.Lights) == 0 {
		return LightLeSample{}
	}
	idx := int(uSel * float64(len(u.Lights)))
	if idx >= len(u.Lights) {
		idx = len(u.Lights) - 1
	}
	le := u.Lights[idx].SampleLe(uSurf, uDir, swl)
	le.Eval.PDF /= float64(len(u.Lights))
	return le
}

func (u *UniformLightSampler) Environment() bool { return u.Env != nil }

func (u *UniformLightSampler) LightCount() int { return len(u.Lights) }
