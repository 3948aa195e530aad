// Rays, hits and surface interactions shared by all integrators.

package render

// rayEpsilon offsets spawned ray origins along the direction of travel to
// avoid self-intersection.
const rayEpsilon = 1e-4

// MissInstance is the sentinel instance id marking a missed ray.
const MissInstance = ^uint32(0)

// Ray is a parametric segment origin + t*direction for t in [TMin, TMax].
// Direction is unit length at generation.
type Ray struct {
	Origin    Vec3
	Direction Vec3
	TMin      float64
	TMax      float64
}

// NewRay builds an unbounded ray with the standard origin offset.
func NewRay(origin, direction Vec3) Ray {
	return Ray{Origin: origin, Direction: direction, TMin: rayEpsilon, TMax: inf}
}

// At returns the point at parameter t.
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// Hit identifies the primitive a ray struck, or a miss.
type Hit struct {
	Instance uint32
	Prim     uint32
	// Barycentric / parametric coordinates of the hit on the primitive.
	U, V     float64
	Distance float64
}

// Miss reports whether the hit is the miss sentinel.
func (h Hit) Miss() bool { return h.Instance == MissInstance }

// MissHit returns the sentinel hit.
func MissHit() Hit { return Hit{Instance: MissInstance} }

// Interaction is a hit promoted to a shading point.
type Interaction struct {
	Point   Vec3
	UV      [2]float64
	Shading Frame
	// Geometric normal; shading falls back to it when the interpolated
	// normal degenerates.
	GeoNormal  Vec3
	Instance   uint32
	SurfaceTag uint32
	LightIndex int32
	HasSurface bool
	HasLight   bool
	// Wavelength-dependent sampling density of the point, when relevant.
	PDF float64
}

// SpawnRay starts a new ray from the interaction along direction d.
func (it *Interaction) SpawnRay(d Vec3) Ray {
	return NewRay(it.Point, d)
}

// SpawnShadowRay starts an occlusion ray from the interaction towards the
// target point, clipped just short of it.
func (it *Interaction) SpawnShadowRay(target Vec3) Ray {
	d := target.Sub(it.Point)
	dist := d.Len()
	r := NewRay(it.Point, d.Scale(1/dist))
	r.TMax = dist - rayEpsilon
	return r
}
