// Film accumulation.
//
// Kernels from any worker accumulate concurrently, so each channel is an
// atomic float add realized as a compare-and-swap on the bit pattern. The
// resulting image is deterministic up to floating-point non-associativity.

package render

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Film holds per-pixel accumulated radiance and sample weight.
type Film struct {
	width  int
	height int
	// r, g, b, weight interleaved per pixel; every cell is a float64 bit
	// pattern updated by CAS.
	cells []uint64
}

const filmChannels = 4

// NewFilm allocates a film of the given resolution.
func NewFilm(width, height int) *Film {
	return &Film{
		width:  width,
		height: height,
		cells:  make([]uint64, width*height*filmChannels),
	}
}

// Resolution returns (width, height).
func (f *Film) Resolution() (int, int) { return f.width, f.height }

// PixelCount returns width*height.
func (f *Film) PixelCount() int { return f.width * f.height }

// Prepare clears the film and runs cb, mirroring the device-side prepare
// hook of the camera contract.
func (f *Film) Prepare(cb func()) {
	for i := range f.cells {
		atomic.StoreUint64(&f.cells[i], 0)
	}
	if cb != nil {
		cb()
	}
}

// Accumulate atomically adds rgb and the sample weight into the pixel.
func (f *Film) Accumulate(pixel uint32, rgb [3]float64, weight float64) {
	base := int(pixel) * filmChannels
	atomicAddFloat(&f.cells[base+0], rgb[0])
	atomicAddFloat(&f.cells[base+1], rgb[1])
	atomicAddFloat(&f.cells[base+2], rgb[2])
	if weight != 0 {
		atomicAddFloat(&f.cells[base+3], weight)
	}
}

func atomicAddFloat(cell *uint64, v float64) {
	for {
		old := atomic.LoadUint64(cell)
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(cell, old, next) {
			return
		}
	}
}

// Weight returns the accumulated sample weight of a pixel.
func (f *Film) Weight(pixel uint32) float64 {
	return math.Float64frombits(atomic.LoadUint64(&f.cells[int(pixel)*filmChannels+3]))
}

// Pixel returns the weighted mean radiance of a pixel.
func (f *Film) Pixel(pixel uint32) [3]float64 {
	base := int(pixel) * filmChannels
	w := math.Float64frombits(atomic.LoadUint64(&f.cells[base+3]))
	if w == 0 {
		return [3]float64{}
	}
	return [3]float64{
		math.Float64frombits(atomic.LoadUint64(&f.cells[base+0])) / w,
		math.Float64frombits(atomic.LoadUint64(&f.cells[base+1])) / w,
		math.Float64frombits(atomic.LoadUint64(&f.cells[base+2])) / w,
	}
}

// Develop resolves the film into a linear RGB plane, row major.
func (f *Film) Develop() [][3]float64 {
	out := make([][3]float64, f.PixelCount())
	for i := range out {
		out[i] = f.Pixel(uint32(i))
	}
	return out
}

// Luminance returns the Rec.709 luminance of an rgb triple.
func Luminance(rgb [3]float64) float64 {
	return 0.2126*rgb[0] + 0.7152*rgb[1] + 0.0722*rgb[2]
}

// FilmStats summarizes a developed film for reporting and convergence checks.
type FilmStats struct {
	MeanLuminance     float64
	VarianceLuminance float64
	MaxLuminance      float64
	NaNPixels         int
}

// Stats computes luminance statistics over the developed image.
func (f *Film) Stats() FilmStats {
	lum := make([]float64, 0, f.PixelCount())
	nan := 0
	for i := 0; i < f.PixelCount(); i++ {
		p := f.Pixel(uint32(i))
		l := Luminance(p)
		if math.IsNaN(l) {
			nan++
			continue
		}
		lum = append(lum, l)
	}
	if len(lum) == 0 {
		return FilmStats{NaNPixels: nan}
	}
	return FilmStats{
		MeanLuminance:     stat.Mean(lum, nil),
		VarianceLuminance: stat.Variance(lum, nil),
		MaxLuminance:      floats.Max(lum),
		NaNPixels:         nan,
	}
}
