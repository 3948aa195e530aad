// Structure-of-arrays storage for in-flight path state.
//
// All reads and writes are indexed by path id; no field carries cross-path
// dependencies, so any worker may process any queue entry. Fields written by
// one kernel and read by another live here — nothing crosses a kernel
// boundary through locals.

package render

import (
	"math"
	"sync/atomic"
)

// Kernel stages of the wavefront state machine.
const (
	KernelInvalid = iota
	KernelIntersect
	KernelMiss
	KernelLight
	KernelSample
	KernelSurface
	KernelCount
)

// KernelNames indexes stage names for logging and traces.
var KernelNames = [KernelCount]string{
	"INVALID", "INTERSECT", "MISS", "LIGHT", "SAMPLE", "SURFACE",
}

// PathStateSOA holds the per-path fields of the wavefront integrator.
type PathStateSOA struct {
	dim       int
	fixed     bool
	gathering bool

	beta       []float64 // dim-strided
	pdfBSDF    []float64
	etaScale   []float64
	wlSample   []float64 // only when the spectrum is sampled
	kernel     []uint32  // only in the gathered layout
	depth      []uint32
	pixelIndex []uint32
	ray        []Ray
	hit        []Hit
}

// NewPathStateSOA allocates state for size paths.
func NewPathStateSOA(spectrum Spectrum, size int, gathering bool) *PathStateSOA {
	s := &PathStateSOA{
		dim:        spectrum.Dimension(),
		fixed:      spectrum.IsFixed(),
		gathering:  gathering,
		beta:       make([]float64, size*spectrum.Dimension()),
		pdfBSDF:    make([]float64, size),
		etaScale:   make([]float64, size),
		depth:      make([]uint32, size),
		pixelIndex: make([]uint32, size),
		ray:        make([]Ray, size),
		hit:        make([]Hit, size),
	}
	if gathering {
		s.kernel = make([]uint32, size)
	}
	if !s.fixed {
		s.wlSample = make([]float64, size)
	}
	return s
}

func (s *PathStateSOA) Size() int { return len(s.pdfBSDF) }

func (s *PathStateSOA) ReadBeta(i uint32) SampledSpectrum {
	out := SampledSpectrum{Dim: s.dim}
	copy(out.Lanes[:s.dim], s.beta[int(i)*s.dim:])
	return out
}

func (s *PathStateSOA) WriteBeta(i uint32, b SampledSpectrum) {
	copy(s.beta[int(i)*s.dim:int(i+1)*s.dim], b.Lanes[:s.dim])
}

func (s *PathStateSOA) ReadPDFBSDF(i uint32) float64     { return s.pdfBSDF[i] }
func (s *PathStateSOA) WritePDFBSDF(i uint32, p float64) { s.pdfBSDF[i] = p }

// The η² factor tracks throughput compression through refractions across
// bounces; it is never reset mid-path.
func (s *PathStateSOA) ReadEtaScale(i uint32) float64     { return s.etaScale[i] }
func (s *PathStateSOA) WriteEtaScale(i uint32, v float64) { s.etaScale[i] = v }

func (s *PathStateSOA) ReadDepth(i uint32) uint32     { return s.depth[i] }
func (s *PathStateSOA) WriteDepth(i uint32, d uint32) { s.depth[i] = d }

func (s *PathStateSOA) ReadPixelIndex(i uint32) uint32     { return s.pixelIndex[i] }
func (s *PathStateSOA) WritePixelIndex(i uint32, p uint32) { s.pixelIndex[i] = p }

func (s *PathStateSOA) ReadRay(i uint32) Ray     { return s.ray[i] }
func (s *PathStateSOA) WriteRay(i uint32, r Ray) { s.ray[i] = r }

func (s *PathStateSOA) ReadHit(i uint32) Hit     { return s.hit[i] }
func (s *PathStateSOA) WriteHit(i uint32, h Hit) { s.hit[i] = h }

// ReadKernelIndex is valid only in the gathered layout.
func (s *PathStateSOA) ReadKernelIndex(i uint32) uint32 {
	return atomic.LoadUint32(&s.kernel[i])
}

func (s *PathStateSOA) WriteKernelIndex(i uint32, k uint32) {
	atomic.StoreUint32(&s.kernel[i], k)
}

// Gathering reports whether the store carries the per-path kernel field.
func (s *PathStateSOA) Gathering() bool { return s.gathering }

// WriteWavelengthSample stores the wavelength variate; a negative sign
// encodes "secondary wavelengths terminated".
func (s *PathStateSOA) WriteWavelengthSample(i uint32, u float64) {
	if !s.fixed {
		s.wlSample[i] = u
	}
}

func (s *PathStateSOA) ReadWavelengthSample(i uint32) float64 {
	if s.fixed {
		return 0
	}
	return s.wlSample[i]
}

// TerminateSecondaryWavelengths flips the stored sample's sign so later
// reads see only the primary lane.
func (s *PathStateSOA) TerminateSecondaryWavelengths(i uint32) {
	if !s.fixed {
		s.wlSample[i] = -math.Abs(s.wlSample[i])
	}
}

// ReadSWL reconstructs the wavelength bundle for a path.
func (s *PathStateSOA) ReadSWL(spectrum Spectrum, i uint32) (float64, SampledWavelengths) {
	if s.fixed {
		return 0, spectrum.Sample(0)
	}
	u := s.wlSample[i]
	swl := spectrum.Sample(math.Abs(u))
	if math.Signbit(u) {
		swl.TerminateSecondary()
	}
	return math.Abs(u), swl
}

// Move relocates the full field set of a path to a new id (compaction).
func (s *PathStateSOA) Move(from, to uint32) {
	s.WriteBeta(to, s.ReadBeta(from))
	s.pdfBSDF[to] = s.pdfBSDF[from]
	s.etaScale[to] = s.etaScale[from]
	s.ray[to] = s.ray[from]
	s.hit[to] = s.hit[from]
	s.depth[to] = s.depth[from]
	s.pixelIndex[to] = s.pixelIndex[from]
	if s.gathering {
		s.WriteKernelIndex(to, s.ReadKernelIndex(from))
	}
	if !s.fixed {
		s.wlSample[to] = s.wlSample[from]
	}
}

// LightSampleSOA holds the light-sample record attached between the SAMPLE
// and SURFACE stages, plus the per-material counters of the tag sort.
type LightSampleSOA struct {
	dim        int
	useTagSort bool

	emission   []float64 // dim-strided
	wi         []Vec3
	pdf        []float64
	surfaceTag []uint32
	tagCounter []uint32
}

// NewLightSampleSOA allocates records for size paths; tagCount > 0 enables
// the material-tag sort.
func NewLightSampleSOA(spectrum Spectrum, size int, tagCount int) *LightSampleSOA {
	l := &LightSampleSOA{
		dim:      spectrum.Dimension(),
		emission: make([]float64, size*spectrum.Dimension()),
		wi:       make([]Vec3, size),
		pdf:      make([]float64, size),
	}
	if tagCount > 0 {
		l.useTagSort = true
		l.surfaceTag = make([]uint32, size)
		l.tagCounter = make([]uint32, tagCount)
	}
	return l
}

func (l *LightSampleSOA) ReadEmission(i uint32) SampledSpectrum {
	out := SampledSpectrum{Dim: l.dim}
	copy(out.Lanes[:l.dim], l.emission[int(i)*l.dim:])
	return out
}

func (l *LightSampleSOA) WriteEmission(i uint32, s SampledSpectrum) {
	copy(l.emission[int(i)*l.dim:int(i+1)*l.dim], s.Lanes[:l.dim])
}

func (l *LightSampleSOA) ReadWiPDF(i uint32) (Vec3, float64) { return l.wi[i], l.pdf[i] }

func (l *LightSampleSOA) WriteWiPDF(i uint32, wi Vec3, pdf float64) {
	l.wi[i] = wi
	l.pdf[i] = pdf
}

func (l *LightSampleSOA) UseTagSort() bool { return l.useTagSort }

func (l *LightSampleSOA) ReadSurfaceTag(i uint32) uint32 { return l.surfaceTag[i] }

func (l *LightSampleSOA) WriteSurfaceTag(i uint32, tag uint32) { l.surfaceTag[i] = tag }

// IncreaseTag counts one path under a material tag.
func (l *LightSampleSOA) IncreaseTag(tag uint32) {
	atomic.AddUint32(&l.tagCounter[tag], 1)
}

// TagCounters exposes the counter array for the prefix-sum pass.
func (l *LightSampleSOA) TagCounters() []uint32 { return l.tagCounter }

// ResetTags zeroes the counters for the next iteration.
func (l *LightSampleSOA) ResetTags() {
	for i := range l.tagCounter {
		atomic.StoreUint32(&l.tagCounter[i], 0)
	}
}

// Move relocates a record during compaction.
func (l *LightSampleSOA) Move(from, to uint32) {
	l.WriteEmission(to, l.ReadEmission(from))
	l.wi[to] = l.wi[from]
	l.pdf[to] = l.pdf[from]
	if l.useTagSort {
		l.surfaceTag[to] = l.surfaceTag[from]
	}
}
