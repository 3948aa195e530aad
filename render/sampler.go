// Deterministic per-path sampling.
//
// Paths suspend at kernel boundaries, so the sampler must support an indexed
// save/load of its stream position. The PCG sampler below derives one stream
// per (pixel, sample index) pair and hashes (stream, dimension) for every
// variate; two renders with the same seed produce bit-for-bit identical
// sample sequences regardless of scheduling.

package render

import (
	"hash/fnv"
	"math"
)

// PathSamplerState is the resumable position of one path's sample stream.
type PathSamplerState struct {
	stream uint64
	dim    uint32
}

// Sampler produces low-discrepancy or pseudorandom variates per path and
// persists stream positions across kernel boundaries.
type Sampler interface {
	// Reset prepares per-slot storage for a render of the given state count.
	Reset(stateCount int)
	// Start begins the stream for (pixel, sampleIndex).
	Start(pixel uint32, sampleIndex uint32) PathSamplerState
	// Load restores the stream saved in the slot.
	Load(slot uint32) PathSamplerState
	// Save persists the stream position into the slot.
	Save(slot uint32, st PathSamplerState)
}

// PCGSampler is a counter-based hash sampler built on the splitmix64
// finalizer (mix64).
type PCGSampler struct {
	seed    uint64
	streams []uint64
	dims    []uint32
}

// NewPCGSampler creates a sampler keyed by seed. The same seed and identical
// configuration MUST produce bit-for-bit identical renders up to film
// accumulation order.
func NewPCGSampler(seed int64) *PCGSampler {
	return &PCGSampler{seed: uint64(seed)}
}

// SeedFor derives a sampler seed for the named subsystem, keeping photon
// emission, camera sampling and test fixtures on isolated streams.
func SeedFor(seed int64, subsystem string) int64 {
	h := fnv.New64a()
	h.Write([]byte(subsystem))
	return seed ^ int64(h.Sum64())
}

func (s *PCGSampler) Reset(stateCount int) {
	if cap(s.streams) < stateCount {
		s.streams = make([]uint64, stateCount)
		s.dims = make([]uint32, stateCount)
	}
	s.streams = s.streams[:stateCount]
	s.dims = s.dims[:stateCount]
}

func (s *PCGSampler) Start(pixel uint32, sampleIndex uint32) PathSamplerState {
	stream := mix64(s.seed ^ (uint64(pixel)<<32 | uint64(sampleIndex)))
	return PathSamplerState{stream: stream}
}

func (s *PCGSampler) Load(slot uint32) PathSamplerState {
	return PathSamplerState{stream: s.streams[slot], dim: s.dims[slot]}
}

func (s *PCGSampler) Save(slot uint32, st PathSamplerState) {
	s.streams[slot] = st.stream
	s.dims[slot] = st.dim
}

// Generate1D draws the next variate in [0, 1).
func (st *PathSamplerState) Generate1D() float64 {
	v := mix64(st.stream + 0x9e3779b97f4a7c15*uint64(st.dim))
	st.dim++
	return float64(v>>11) / float64(1<<53)
}

// Generate2D draws the next two variates.
func (st *PathSamplerState) Generate2D() (float64, float64) {
	return st.Generate1D(), st.Generate1D()
}

// GeneratePixel2D draws the subpixel filter sample.
func (st *PathSamplerState) GeneratePixel2D() (float64, float64) {
	return st.Generate2D()
}

// mix64 is the splitmix64 finalizer; a full-avalanche 64-bit hash.
func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// sampleCosineHemisphere maps two uniform variates to a cosine-weighted
// frame-local direction; pdf is cos θ / π.
func sampleCosineHemisphere(u1, u2 float64) (Vec3, float64) {
	r := math.Sqrt(u1)
	phi := 2 * math.Pi * u2
	x := r * math.Cos(phi)
	y := r * math.Sin(phi)
	z := math.Sqrt(math.Max(0, 1-u1))
	return Vec3{x, y, z}, z / math.Pi
}

// sampleUniformSphere maps two uniform variates to a direction on the unit
// sphere; pdf is 1 / 4π.
func sampleUniformSphere(u1, u2 float64) Vec3 {
	z := 1 - 2*u1
	r := math.Sqrt(math.Max(0, 1-z*z))
	phi := 2 * math.Pi * u2
	return Vec3{r * math.Cos(phi), r * math.Sin(phi), z}
}
