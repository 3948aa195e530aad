// Scene geometry oracle: closest-hit and any-hit queries plus promotion of
// hits to full surface interactions.
//
// Acceleration-structure construction is an external concern; only the ray
// tracing operations are consumed here. The built-in implementation walks
// the instance list directly, which the seed scenes keep small.

package render

import "math"

// Geometry answers ray queries for the current scene time. Both trace calls
// are safe to invoke concurrently for arbitrary in-flight paths.
type Geometry interface {
	// TraceClosest returns the nearest hit within [TMin, TMax], or the
	// miss sentinel.
	TraceClosest(ray Ray) Hit
	// TraceAny reports whether any hit exists; used for shadow rays.
	TraceAny(ray Ray) bool
	// Interaction promotes a hit to a full interaction.
	Interaction(ray Ray, hit Hit) Interaction
	// InstanceFlags returns the surface/light bindings of an instance
	// without building a full interaction.
	InstanceFlags(instance uint32) (hasSurface, hasLight bool)
	// HasLighting reports whether any instance emits or an environment
	// exists.
	HasLighting() bool
	// Bounds returns the world-space bounding box (min, max).
	Bounds() (Vec3, Vec3)
	// Update advances dynamic geometry to the shutter time.
	Update(time float64)
}

// Shape is a primitive an instance can reference.
type Shape interface {
	// Intersect returns (u, v, t, ok) for the closest intersection in
	// [ray.TMin, ray.TMax].
	Intersect(ray Ray) (float64, float64, float64, bool)
	// At evaluates position and geometric normal at primitive coordinates.
	At(u, v float64) (Vec3, Vec3)
	// Area returns the surface area, used by area-light sampling.
	Area() float64
	// Bounds returns the shape's bounding box.
	Bounds() (Vec3, Vec3)
}

// Quad is a parallelogram Origin + u*EdgeU + v*EdgeV, u,v in [0,1].
type Quad struct {
	Origin Vec3
	EdgeU  Vec3
	EdgeV  Vec3
}

func (q Quad) normal() Vec3 { return q.EdgeU.Cross(q.EdgeV).Normalize() }

func (q Quad) Intersect(ray Ray) (float64, float64, float64, bool) {
	n := q.EdgeU.Cross(q.EdgeV)
	denom := ray.Direction.Dot(n)
	if math.Abs(denom) < 1e-12 {
		return 0, 0, 0, false
	}
	t := q.Origin.Sub(ray.Origin).Dot(n) / denom
	if t < ray.TMin || t > ray.TMax {
		return 0, 0, 0, false
	}
	p := ray.At(t).Sub(q.Origin)
	uu := q.EdgeU.Dot(q.EdgeU)
	vv := q.EdgeV.Dot(q.EdgeV)
	u := p.Dot(q.EdgeU) / uu
	v := p.Dot(q.EdgeV) / vv
	if u < 0 || u > 1 || v < 0 || v > 1 {
		return 0, 0, 0, false
	}
	return u, v, t, true
}

func (q Quad) At(u, v float64) (Vec3, Vec3) {
	return q.Origin.Add(q.EdgeU.Scale(u)).Add(q.EdgeV.Scale(v)), q.normal()
}

func (q Quad) Area() float64 { return q.EdgeU.Cross(q.EdgeV).Len() }

func (q Quad) Bounds() (Vec3, Vec3) {
	lo := q.Origin
	hi := q.Origin
	for _, p := range []Vec3{
		q.Origin.Add(q.EdgeU),
		q.Origin.Add(q.EdgeV),
		q.Origin.Add(q.EdgeU).Add(q.EdgeV),
	} {
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	return lo, hi
}

// Sphere is a full sphere; primitive coordinates are the spherical (θ, φ)
// parametrization scaled to [0,1].
type Sphere struct {
	Center Vec3
	Radius float64
}

func (s Sphere) Intersect(ray Ray) (float64, float64, float64, bool) {
	oc := ray.Origin.Sub(s.Center)
	b := oc.Dot(ray.Direction)
	c := oc.Dot(oc) - s.Radius*s.Radius
	disc := b*b - c
	if disc < 0 {
		return 0, 0, 0, false
	}
	sq := math.Sqrt(disc)
	t := -b - sq
	if t < ray.TMin {
		t = -b + sq
	}
	if t < ray.TMin || t > ray.TMax {
		return 0, 0, 0, false
	}
	n := ray.At(t).Sub(s.Center).Normalize()
	u := 0.5 + math.Atan2(n.Y, n.X)/(2*math.Pi)
	v := math.Acos(clamp(n.Z, -1, 1)) / math.Pi
	return u, v, t, true
}

func (s Sphere) At(u, v float64) (Vec3, Vec3) {
	phi := (u - 0.5) * 2 * math.Pi
	theta := v * math.Pi
	n := Vec3{
		math.Sin(theta) * math.Cos(phi),
		math.Sin(theta) * math.Sin(phi),
		math.Cos(theta),
	}
	return s.Center.Add(n.Scale(s.Radius)), n
}

func (s Sphere) Area() float64 { return 4 * math.Pi * s.Radius * s.Radius }

func (s Sphere) Bounds() (Vec3, Vec3) {
	r := Vec3{s.Radius, s.Radius, s.Radius}
	return s.Center.Sub(r), s.Center.Add(r)
}

// Instance places a shape in the scene with its surface and light bindings.
type Instance struct {
	Shape      Shape
	SurfaceTag uint32
	// LightIndex < 0 means the instance does not emit.
	LightIndex int32
	HasSurface bool
}

// SceneGeometry is the built-in geometry oracle over an instance list.
type SceneGeometry struct {
	Instances   []Instance
	environment bool
	boundsMin   Vec3
	boundsMax   Vec3
}

// NewSceneGeometry builds the oracle and caches world bounds.
func NewSceneGeometry(instances []Instance, hasEnvironment bool) *SceneGeometry {
	g := &SceneGeometry{Instances: instances, environment: hasEnvironment}
	g.boundsMin = Vec3{inf, inf, inf}
	g.boundsMax = Vec3{-inf, -inf, -inf}
	for _, inst := range instances {
		lo, hi := inst.Shape.Bounds()
		g.boundsMin = g.boundsMin.Min(lo)
		g.boundsMax = g.boundsMax.Max(hi)
	}
	return g
}

func (g *SceneGeometry) TraceClosest(ray Ray) Hit {
	best := MissHit()
	bestT := ray.TMax
	for i, inst := range g.Instances {
		r := ray
		r.TMax = bestT
		if u, v, t, ok := inst.Shape.Intersect(r); ok {
			bestT = t
			best = Hit{Instance: uint32(i), Prim: 0, U: u, V: v, Distance: t}
		}
	}
	return best
}

func (g *SceneGeometry) TraceAny(ray Ray) bool {
	for _, inst := range g.Instances {
		if _, _, _, ok := inst.Shape.Intersect(ray); ok {
			return true
		}
	}
	return false
}

func (g *SceneGeometry) Interaction(ray Ray, hit Hit) Interaction {
	inst := g.Instances[hit.Instance]
	p, n := inst.Shape.At(hit.U, hit.V)
	// Face the normal against the incoming ray so closures always see wo in
	// the upper hemisphere of the shading frame.
	shading := n
	if ray.Direction.Dot(n) > 0 {
		shading = n.Neg()
	}
	if shading.IsZero() {
		shading = n
	}
	return Interaction{
		Point:      p,
		UV:         [2]float64{hit.U, hit.V},
		Shading:    NewFrame(shading),
		GeoNormal:  n,
		Instance:   hit.Instance,
		SurfaceTag: inst.SurfaceTag,
		LightIndex: inst.LightIndex,
		HasSurface: inst.HasSurface,
		HasLight:   inst.LightIndex >= 0,
	}
}

func (g *SceneGeometry) InstanceFlags(instance uint32) (bool, bool) {
	inst := g.Instances[instance]
	return inst.HasSurface, inst.LightIndex >= 0
}

func (g *SceneGeometry) HasLighting() bool {
	if g.environment {
		return true
	}
	for _, inst := range g.Instances {
		if inst.LightIndex >= 0 {
			return true
		}
	}
	return false
}

func (g *SceneGeometry) Bounds() (Vec3, Vec3) { return g.boundsMin, g.boundsMax }

// Update is a no-op for the static built-in geometry; dynamic oracles
// rebuild their acceleration structure here.
func (g *SceneGeometry) Update(time float64) {}
