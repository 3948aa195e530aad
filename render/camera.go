// Cameras and shutter sampling.

package render

import "math"

// ShutterSample distributes spp across exposure time for motion blur.
type ShutterSample struct {
	Time   float64
	Weight float64
	SPP    int
}

// CameraSample is a generated primary ray with its filter weight.
type CameraSample struct {
	Ray    Ray
	Pixel  uint32
	Weight float64
}

// Camera generates primary rays into its film.
type Camera interface {
	GenerateRay(pixel uint32, time float64, uFilter [2]float64, uLens [2]float64) CameraSample
	RequiresLensSampling() bool
	Film() *Film
	// ShutterSamples lists the (time, weight, spp) exposure points; total
	// spp is the sum over entries.
	ShutterSamples() []ShutterSample
	SPP() int
}

// PinholeCamera is a thin-lens camera; LensRadius zero makes it a pinhole.
type PinholeCamera struct {
	Position Vec3
	LookAt   Vec3
	Up       Vec3
	FovY     float64 // vertical field of view, degrees
	// Thin lens parameters; zero radius disables lens sampling.
	LensRadius    float64
	FocusDistance float64

	film    *Film
	shutter []ShutterSample

	forward, right, up Vec3
	tanHalfFov         float64
}

// NewPinholeCamera builds a camera with a single full-weight shutter sample.
func NewPinholeCamera(film *Film, position, lookAt, up Vec3, fovY float64, spp int) *PinholeCamera {
	c := &PinholeCamera{
		Position: position,
		LookAt:   lookAt,
		Up:       up,
		FovY:     fovY,
		film:     film,
		shutter:  []ShutterSample{{Time: 0, Weight: 1, SPP: spp}},
	}
	c.setup()
	return c
}

// SetShutter replaces the shutter samples; the per-sample weights multiply
// path throughput at generation.
func (c *PinholeCamera) SetShutter(samples []ShutterSample) { c.shutter = samples }

func (c *PinholeCamera) setup() {
	c.forward = c.LookAt.Sub(c.Position).Normalize()
	c.right = c.forward.Cross(c.Up).Normalize()
	c.up = c.right.Cross(c.forward)
	c.tanHalfFov = math.Tan(c.FovY * math.Pi / 360)
}

func (c *PinholeCamera) GenerateRay(pixel uint32, time float64, uFilter [2]float64, uLens [2]float64) CameraSample {
	w, h := c.film.Resolution()
	px := float64(int(pixel)%w) + uFilter[0]
	py := float64(int(pixel)/w) + uFilter[1]
	ndcX := (2*px/float64(w) - 1) * c.tanHalfFov * float64(w) / float64(h)
	ndcY := (1 - 2*py/float64(h)) * c.tanHalfFov

	origin := c.Position
	dir := c.forward.Add(c.right.Scale(ndcX)).Add(c.up.Scale(ndcY)).Normalize()

	if c.LensRadius > 0 {
		// Concentric-free lens disk sample; focus plane at FocusDistance.
		r := c.LensRadius * math.Sqrt(uLens[0])
		phi := 2 * math.Pi * uLens[1]
		offset := c.right.Scale(r * math.Cos(phi)).Add(c.up.Scale(r * math.Sin(phi)))
		ft := c.FocusDistance / dir.Dot(c.forward)
		focus := origin.Add(dir.Scale(ft))
		origin = origin.Add(offset)
		dir = focus.Sub(origin).Normalize()
	}

	return CameraSample{Ray: NewRay(origin, dir), Pixel: pixel, Weight: 1}
}

func (c *PinholeCamera) RequiresLensSampling() bool { return c.LensRadius > 0 }

func (c *PinholeCamera) Film() *Film { return c.film }

func (c *PinholeCamera) ShutterSamples() []ShutterSample { return c.shutter }

func (c *PinholeCamera) SPP() int {
	spp := 0
	for _, s := range c.shutter {
		spp += s.SPP
	}
	return spp
}
