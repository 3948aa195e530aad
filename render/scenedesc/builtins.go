// Built-in named scenes. These mirror the seed test scenes: the Cornell
// box, the furnace (uniform environment over a diffuse sphere), a
// dispersive prism, and a dielectric sphere under an environment map.

package scenedesc

import (
	"fmt"
	"sort"
)

// Builtin returns a named built-in scene description.
func Builtin(name string) (*SceneSpec, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown built-in scene %q", name)
	}
	return fn(), nil
}

// BuiltinNames lists the built-in scenes in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var builtins = map[string]func() *SceneSpec{
	"cornell":    Cornell,
	"furnace":    Furnace,
	"prism":      Prism,
	"env-sphere": EnvSphere,
}

// Cornell is the classic box: diffuse walls, one area light in the ceiling.
func Cornell() *SceneSpec {
	return &SceneSpec{
		Name: "cornell",
		Film: FilmSpec{Width: 512, Height: 512},
		Camera: CameraSpec{
			Position: [3]float64{0, 1, 3.9},
			LookAt:   [3]float64{0, 1, 0},
			Up:       [3]float64{0, 1, 0},
			Fov:      40,
			SPP:      64,
		},
		Surfaces: []SurfaceSpec{
			{Name: "white", Type: "lambert", Albedo: [3]float64{0.73, 0.73, 0.73}},
			{Name: "red", Type: "lambert", Albedo: [3]float64{0.65, 0.05, 0.05}},
			{Name: "green", Type: "lambert", Albedo: [3]float64{0.12, 0.45, 0.15}},
		},
		Instances: []InstanceSpec{
			// floor, ceiling, back, left, right
			{Shape: "quad", Origin: [3]float64{-1, 0, -1}, EdgeU: [3]float64{2, 0, 0}, EdgeV: [3]float64{0, 0, 2}, Surface: "white"},
			{Shape: "quad", Origin: [3]float64{-1, 2, 1}, EdgeU: [3]float64{2, 0, 0}, EdgeV: [3]float64{0, 0, -2}, Surface: "white"},
			{Shape: "quad", Origin: [3]float64{-1, 0, -1}, EdgeU: [3]float64{0, 2, 0}, EdgeV: [3]float64{2, 0, 0}, Surface: "white"},
			{Shape: "quad", Origin: [3]float64{-1, 0, 1}, EdgeU: [3]float64{0, 2, 0}, EdgeV: [3]float64{0, 0, -2}, Surface: "red"},
			{Shape: "quad", Origin: [3]float64{1, 0, -1}, EdgeU: [3]float64{0, 2, 0}, EdgeV: [3]float64{0, 0, 2}, Surface: "green"},
			// ceiling light
			{Shape: "quad", Origin: [3]float64{-0.3, 1.99, -0.3}, EdgeU: [3]float64{0.6, 0, 0}, EdgeV: [3]float64{0, 0, 0.6}, Surface: "white", Emission: [3]float64{17, 14, 8}},
			// contents
			{Shape: "sphere", Center: [3]float64{-0.4, 0.35, -0.3}, Radius: 0.35, Surface: "white"},
			{Shape: "sphere", Center: [3]float64{0.45, 0.3, 0.3}, Radius: 0.3, Surface: "green"},
		},
		Settings: SettingsSpec{
			Integrator: "wavefront", MaxDepth: 10, RRDepth: 4, RRThreshold: 0.95,
			StateCount: 1 << 16, Gathering: true, Compact: true, TagSort: true,
		},
	}
}

// Furnace is the throughput-conservation fixture: a diffuse sphere inside a
// unit uniform environment with no finite lights.
func Furnace() *SceneSpec {
	return &SceneSpec{
		Name: "furnace",
		Film: FilmSpec{Width: 64, Height: 64},
		Camera: CameraSpec{
			Position: [3]float64{0, 0, 4},
			LookAt:   [3]float64{0, 0, 0},
			Fov:      30,
			SPP:      64,
		},
		Surfaces: []SurfaceSpec{
			{Name: "grey", Type: "lambert", Albedo: [3]float64{0.5, 0.5, 0.5}},
		},
		Instances: []InstanceSpec{
			{Shape: "sphere", Center: [3]float64{0, 0, 0}, Radius: 1, Surface: "grey"},
		},
		Environment: &EnvironmentSpec{Radiance: [3]float64{1, 1, 1}},
		Settings: SettingsSpec{
			Integrator: "wavefront", MaxDepth: 16, RRDepth: 16, RRThreshold: 0.95,
			StateCount: 1 << 14, Gathering: true, Compact: true,
		},
	}
}

// Prism puts a dispersive dielectric sphere between a small bright emitter
// and a diffuse screen; rendered spectrally the refracted fan splits per
// channel.
func Prism() *SceneSpec {
	return &SceneSpec{
		Name:     "prism",
		Film:     FilmSpec{Width: 256, Height: 128},
		Spectral: true,
		Camera: CameraSpec{
			Position: [3]float64{0, 0.6, 3},
			LookAt:   [3]float64{0, 0.2, 0},
			Fov:      35,
			SPP:      16,
		},
		Surfaces: []SurfaceSpec{
			{Name: "screen", Type: "lambert", Albedo: [3]float64{0.8, 0.8, 0.8}},
			{Name: "glass", Type: "dielectric", IOR: 1.5, Dispersion: 0.12},
		},
		Instances: []InstanceSpec{
			{Shape: "quad", Origin: [3]float64{-2, -0.5, -2}, EdgeU: [3]float64{4, 0, 0}, EdgeV: [3]float64{0, 0, 4}, Surface: "screen"},
			{Shape: "sphere", Center: [3]float64{0, 0.4, 0}, Radius: 0.4, Surface: "glass"},
			{Shape: "sphere", Center: [3]float64{1.6, 1.6, 0}, Radius: 0.12, Emission: [3]float64{60, 60, 60}},
		},
		Settings: SettingsSpec{
			Integrator: "wavefront", MaxDepth: 12, RRDepth: 6, RRThreshold: 0.95,
			StateCount: 1 << 15, Gathering: true, Compact: true,
		},
	}
}

// EnvSphere is a specular dielectric sphere under a uniform environment.
func EnvSphere() *SceneSpec {
	return &SceneSpec{
		Name: "env-sphere",
		Film: FilmSpec{Width: 128, Height: 128},
		Camera: CameraSpec{
			Position: [3]float64{0, 0.8, 3.2},
			LookAt:   [3]float64{0, 0.4, 0},
			Fov:      35,
			SPP:      16,
		},
		Surfaces: []SurfaceSpec{
			{Name: "floor", Type: "lambert", Albedo: [3]float64{0.6, 0.6, 0.6}},
			{Name: "glass", Type: "dielectric", IOR: 1.5},
		},
		Instances: []InstanceSpec{
			{Shape: "quad", Origin: [3]float64{-3, 0, -3}, EdgeU: [3]float64{6, 0, 0}, EdgeV: [3]float64{0, 0, 6}, Surface: "floor"},
			{Shape: "sphere", Center: [3]float64{0, 0.5, 0}, Radius: 0.5, Surface: "glass"},
		},
		Environment: &EnvironmentSpec{Radiance: [3]float64{0.9, 0.95, 1}},
		Settings: SettingsSpec{
			Integrator: "wavefront", MaxDepth: 12, RRDepth: 6, RRThreshold: 0.95,
			StateCount: 1 << 15, Gathering: true, Compact: true,
		},
	}
}
