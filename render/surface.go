// Surface closures.
//
// A surface is dispatched by its tag at an interaction and evaluated through
// the closure contract below. The integrators never look behind the
// interface; the material-tag sort exists purely so neighbouring workers
// dispatch the same concrete type.

package render

import "math"

// TransportMode selects radiance versus importance transport; photon
// emission walks surfaces in the adjoint (importance) mode.
type TransportMode uint8

const (
	TransportRadiance TransportMode = iota
	TransportImportance
)

// SurfaceEvent classifies a sampled bounce.
type SurfaceEvent uint8

const (
	EventReflect SurfaceEvent = iota
	EventThrough
	EventEnter
	EventExit
)

// DeltaPDF is the sentinel density for delta-like directions. Weighted with
// the balance heuristic against any light pdf it yields a MIS weight of
// effectively one.
const DeltaPDF = 1e16

// SurfaceEval is a BSDF evaluation; F includes the |cos θ| projection term.
type SurfaceEval struct {
	F   SampledSpectrum
	PDF float64
}

// SurfaceSample is a sampled BSDF direction.
type SurfaceSample struct {
	Wi    Vec3
	Eval  SurfaceEval
	Event SurfaceEvent
}

// Closure is a surface's BSDF evaluated at one interaction.
type Closure interface {
	Evaluate(wo, wi Vec3, mode TransportMode) SurfaceEval
	Sample(wo Vec3, uLobe float64, uDir [2]float64, mode TransportMode) SurfaceSample
	// Opacity returns the stochastic alpha-test coverage, if the closure
	// participates in alpha testing.
	Opacity() (float64, bool)
	// Eta returns the relative refraction index used by the Russian
	// roulette η² throughput rescale.
	Eta() (float64, bool)
	// Dispersive reports whether this sample must terminate secondary
	// wavelengths.
	Dispersive() bool
	// Roughness gates the photon-map gather stop.
	Roughness() float64
}

// Surface creates closures at interactions; one Surface per material tag.
type Surface interface {
	Closure(it *Interaction, swl *SampledWavelengths, wo Vec3, time float64) Closure
}

// albedoAt projects an RGB albedo onto the sampled wavelengths.
func albedoAt(swl *SampledWavelengths, rgb [3]float64, fixed bool) SampledSpectrum {
	s := SampledSpectrum{Dim: swl.Dim}
	if fixed {
		copy(s.Lanes[:3], rgb[:])
		return s
	}
	for i := 0; i < swl.Dim; i++ {
		c := wavelengthToRGB(swl.Lambda[i])
		sum := c[0] + c[1] + c[2]
		s.Lanes[i] = (rgb[0]*c[0] + rgb[1]*c[1] + rgb[2]*c[2]) / sum
	}
	return s
}

// LambertSurface is a two-sided ideal diffuse reflector.
type LambertSurface struct {
	Albedo [3]float64
}

func (l *LambertSurface) Closure(it *Interaction, swl *SampledWavelengths, wo Vec3, time float64) Closure {
	return &lambertClosure{
		frame:  it.Shading,
		albedo: albedoAt(swl, l.Albedo, swl.Dim == 3),
	}
}

type lambertClosure struct {
	frame  Frame
	albedo SampledSpectrum
}

func (c *lambertClosure) Evaluate(wo, wi Vec3, mode TransportMode) SurfaceEval {
	woL := c.frame.ToLocal(wo)
	wiL := c.frame.ToLocal(wi)
	if CosTheta(woL) <= 0 || CosTheta(wiL) <= 0 {
		return SurfaceEval{F: SampledSpectrum{Dim: c.albedo.Dim}}
	}
	cos := CosTheta(wiL)
	return SurfaceEval{
		F:   c.albedo.Scale(cos / math.Pi),
		PDF: cos / math.Pi,
	}
}

func (c *lambertClosure) Sample(wo Vec3, uLobe float64, uDir [2]float64, mode TransportMode) SurfaceSample {
	woL := c.frame.ToLocal(wo)
	if CosTheta(woL) <= 0 {
		return SurfaceSample{Eval: SurfaceEval{F: SampledSpectrum{Dim: c.albedo.Dim}}}
	}
	wiL, pdf := sampleCosineHemisphere(uDir[0], uDir[1])
	wi := c.frame.ToWorld(wiL)
	return SurfaceSample{
		Wi:    wi,
		Eval:  SurfaceEval{F: c.albedo.Scale(CosTheta(wiL) / math.Pi), PDF: pdf},
		Event: EventReflect,
	}
}

func (c *lambertClosure) Opacity() (float64, bool) { return 0, false }
func (c *lambertClosure) Eta() (float64, bool)     { return 0, false }
func (c *lambertClosure) Dispersive() bool         { return false }
func (c *lambertClosure) Roughness() float64       { return 1 }

// MirrorSurface is an ideal specular reflector.
type MirrorSurface struct {
	Albedo [3]float64
}

func (m *MirrorSurface) Closure(it *Interaction, swl *SampledWavelengths, wo Vec3, time float64) Closure {
	return &mirrorClosure{
		frame:  it.Shading,
		albedo: albedoAt(swl, m.Albedo, swl.Dim == 3),
	}
}

type mirrorClosure struct {
	frame  Frame
	albedo SampledSpectrum
}

func (c *mirrorClosure) Evaluate(wo, wi Vec3, mode TransportMode) SurfaceEval {
	// Delta lobe: zero density against any sampled direction.
	return SurfaceEval{F: SampledSpectrum{Dim: c.albedo.Dim}}
}

func (c *mirrorClosure) Sample(wo Vec3, uLobe float64, uDir [2]float64, mode TransportMode) SurfaceSample {
	wi := Reflect(wo, c.frame.N)
	return SurfaceSample{
		Wi:    wi,
		Eval:  SurfaceEval{F: c.albedo.Scale(DeltaPDF), PDF: DeltaPDF},
		Event: EventReflect,
	}
}

func (c *mirrorClosure) Opacity() (float64, bool) { return 0, false }
func (c *mirrorClosure) Eta() (float64, bool)     { return 0, false }
func (c *mirrorClosure) Dispersive() bool         { return false }
func (c *mirrorClosure) Roughness() float64       { return 0 }

// DielectricSurface is a smooth dielectric; a nonzero Dispersion makes the
// refraction index wavelength dependent (Cauchy-like linear model).
type DielectricSurface struct {
	IOR        float64
	Dispersion float64
}

func (d *DielectricSurface) Closure(it *Interaction, swl *SampledWavelengths, wo Vec3, time float64) Closure {
	eta := d.IOR
	if d.Dispersion != 0 {
		// Evaluate at the primary wavelength; shorter wavelengths bend more.
		eta += d.Dispersion * (550 - swl.Lambda[0]) / (lambdaMax - lambdaMin)
	}
	return &dielectricClosure{
		frame:      it.Shading,
		geoNormal:  it.GeoNormal,
		eta:        eta,
		dispersive: d.Dispersion != 0,
		dim:        swl.Dim,
	}
}

type dielectricClosure struct {
	frame      Frame
	geoNormal  Vec3
	eta        float64
	dispersive bool
	dim        int
}

func (c *dielectricClosure) Evaluate(wo, wi Vec3, mode TransportMode) SurfaceEval {
	return SurfaceEval{F: SampledSpectrum{Dim: c.dim}}
}

func (c *dielectricClosure) Sample(wo Vec3, uLobe float64, uDir [2]float64, mode TransportMode) SurfaceSample {
	entering := wo.Dot(c.geoNormal) > 0
	n := c.frame.N
	eta := c.eta
	if !entering {
		eta = 1 / c.eta
	}
	cosI := wo.Dot(n)
	fr := fresnelDielectric(cosI, eta)
	one := NewSampledSpectrum(c.dim, DeltaPDF)
	if uLobe < fr {
		return SurfaceSample{
			Wi:    Reflect(wo, n),
			Eval:  SurfaceEval{F: one, PDF: DeltaPDF},
			Event: EventReflect,
		}
	}
	wt, ok := Refract(wo, n, eta)
	if !ok {
		return SurfaceSample{
			Wi:    Reflect(wo, n),
			Eval:  SurfaceEval{F: one, PDF: DeltaPDF},
			Event: EventReflect,
		}
	}
	event := EventEnter
	if !entering {
		event = EventExit
	}
	// Radiance transport carries the 1/η² radiance compression through the
	// interface; importance transport (photons) does not.
	f := one
	if mode == TransportRadiance {
		f = f.Scale(1 / (eta * eta))
	}
	return SurfaceSample{
		Wi:    wt,
		Eval:  SurfaceEval{F: f, PDF: DeltaPDF},
		Event: event,
	}
}

func (c *dielectricClosure) Opacity() (float64, bool) { return 0, false }
func (c *dielectricClosure) Eta() (float64, bool)     { return c.eta, true }
func (c *dielectricClosure) Dispersive() bool         { return c.dispersive }
func (c *dielectricClosure) Roughness() float64       { return 0 }

// fresnelDielectric is the unpolarized Fresnel reflectance for a smooth
// interface with relative index eta (transmitted side over incident side).
func fresnelDielectric(cosI, eta float64) float64 {
	cosI = clamp(cosI, -1, 1)
	if cosI < 0 {
		cosI = -cosI
	}
	sin2T := (1 - cosI*cosI) / (eta * eta)
	if sin2T >= 1 {
		return 1
	}
	cosT := math.Sqrt(1 - sin2T)
	rp := (eta*cosI - cosT) / (eta*cosI + cosT)
	rs := (cosI - eta*cosT) / (cosI + eta*cosT)
	return 0.5 * (rp*rp + rs*rs)
}

// OpacitySurface wraps a base surface with stochastic alpha-test coverage.
type OpacitySurface struct {
	Base  Surface
	Alpha float64
}

func (o *OpacitySurface) Closure(it *Interaction, swl *SampledWavelengths, wo Vec3, time float64) Closure {
	return &opacityClosure{
		Closure: o.Base.Closure(it, swl, wo, time),
		alpha:   clamp(o.Alpha, 0, 1),
	}
}

type opacityClosure struct {
	Closure
	alpha float64
}

func (c *opacityClosure) Opacity() (float64, bool) { return c.alpha, true }
