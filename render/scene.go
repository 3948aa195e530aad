// Scene bundles the collaborators an integrator consumes.

package render

import "errors"

// ErrNoLights is returned when a render is requested for a scene with no
// emitters; the integrator warns and produces no output.
var ErrNoLights = errors.New("no lights in scene")

// ErrStateExhausted is returned when the path-state store cannot be
// allocated at the requested state count.
var ErrStateExhausted = errors.New("path state store exhausted")

// Scene is the integrator-facing view of a parsed scene graph. Scene
// description parsing and plugin loading happen upstream.
type Scene struct {
	Geometry     Geometry
	Surfaces     []Surface
	LightSampler LightSampler
	Spectrum     Spectrum
}

// Update advances the scene to a shutter time.
func (s *Scene) Update(time float64) {
	s.Geometry.Update(time)
}

// SurfaceFor returns the surface bound to a tag, or nil for an unknown tag
// (the SURFACE kernel treats that as absorption).
func (s *Scene) SurfaceFor(tag uint32) Surface {
	if int(tag) >= len(s.Surfaces) {
		return nil
	}
	return s.Surfaces[tag]
}
