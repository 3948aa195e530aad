package render

import "testing"

// Scene fixtures shared across the integrator tests. The scenedesc package
// carries the user-facing builders; these stay local so the tests exercise
// the engine types directly.

// furnaceScene is a grey diffuse sphere inside a unit uniform environment:
// the classic throughput-conservation fixture.
func furnaceScene(albedo float64) *Scene {
	sphere := Sphere{Center: Vec3{}, Radius: 1}
	instances := []Instance{
		{Shape: sphere, SurfaceTag: 0, LightIndex: -1, HasSurface: true},
	}
	env := &EnvironmentLight{Radiance: [3]float64{1, 1, 1}}
	return &Scene{
		Geometry:     NewSceneGeometry(instances, true),
		Surfaces:     []Surface{&LambertSurface{Albedo: [3]float64{albedo, albedo, albedo}}},
		LightSampler: &UniformLightSampler{Env: env},
		Spectrum:     RGBSpectrum{},
	}
}

// boxScene is a small Cornell-style room: diffuse walls, one ceiling light,
// optionally an extra surface on the inner sphere.
func boxScene(inner Surface) *Scene {
	white := &LambertSurface{Albedo: [3]float64{0.73, 0.73, 0.73}}
	surfaces := []Surface{white}
	innerTag := uint32(0)
	if inner != nil {
		surfaces = append(surfaces, inner)
		innerTag = 1
	}

	lightShape := Quad{Origin: Vec3{-0.3, 1.99, -0.3}, EdgeU: Vec3{X: 0.6}, EdgeV: Vec3{Z: 0.6}}
	instances := []Instance{
		{Shape: Quad{Origin: Vec3{-1, 0, -1}, EdgeU: Vec3{X: 2}, EdgeV: Vec3{Z: 2}}, SurfaceTag: 0, LightIndex: -1, HasSurface: true},
		{Shape: Quad{Origin: Vec3{-1, 2, 1}, EdgeU: Vec3{X: 2}, EdgeV: Vec3{Z: -2}}, SurfaceTag: 0, LightIndex: -1, HasSurface: true},
		{Shape: Quad{Origin: Vec3{-1, 0, -1}, EdgeU: Vec3{Y: 2}, EdgeV: Vec3{X: 2}}, SurfaceTag: 0, LightIndex: -1, HasSurface: true},
		{Shape: Quad{Origin: Vec3{-1, 0, 1}, EdgeU: Vec3{Y: 2}, EdgeV: Vec3{Z: -2}}, SurfaceTag: 0, LightIndex: -1, HasSurface: true},
		{Shape: Quad{Origin: Vec3{1, 0, -1}, EdgeU: Vec3{Y: 2}, EdgeV: Vec3{Z: 2}}, SurfaceTag: 0, LightIndex: -1, HasSurface: true},
		{Shape: lightShape, SurfaceTag: 0, LightIndex: 0, HasSurface: true},
		{Shape: Sphere{Center: Vec3{0, 0.5, 0}, Radius: 0.4}, SurfaceTag: innerTag, LightIndex: -1, HasSurface: true},
	}
	lights := []Light{&AreaLight{Shape: lightShape, Radiance: [3]float64{17, 14, 8}}}
	return &Scene{
		Geometry:     NewSceneGeometry(instances, false),
		Surfaces:     surfaces,
		LightSampler: &UniformLightSampler{Lights: lights},
		Spectrum:     RGBSpectrum{},
	}
}

// spectralGlassScene aims the camera at a dispersive dielectric sphere under
// the hero-wavelength spectrum.
func spectralGlassScene() *Scene {
	instances := []Instance{
		{Shape: Sphere{Center: Vec3{0, 0, 0}, Radius: 1}, SurfaceTag: 0, LightIndex: -1, HasSurface: true},
		{Shape: Quad{Origin: Vec3{-4, -2, -4}, EdgeU: Vec3{X: 8}, EdgeV: Vec3{Z: 8}}, SurfaceTag: 1, LightIndex: -1, HasSurface: true},
	}
	env := &EnvironmentLight{Radiance: [3]float64{1, 1, 1}}
	return &Scene{
		Geometry: NewSceneGeometry(instances, true),
		Surfaces: []Surface{
			&DielectricSurface{IOR: 1.5, Dispersion: 0.12},
			&LambertSurface{Albedo: [3]float64{0.7, 0.7, 0.7}},
		},
		LightSampler: &UniformLightSampler{Env: env},
		Spectrum:     HeroWavelengthSpectrum{},
	}
}

func testCamera(scene string, width, height, spp int) *PinholeCamera {
	film := NewFilm(width, height)
	switch scene {
	case "box":
		return NewPinholeCamera(film, Vec3{0, 1, 3.2}, Vec3{0, 1, 0}, Vec3{Y: 1}, 40, spp)
	default:
		return NewPinholeCamera(film, Vec3{0, 0, 4}, Vec3{}, Vec3{Y: 1}, 30, spp)
	}
}

func renderWavefront(t *testing.T, scene *Scene, camera Camera, cfg WavefrontConfig) *WavefrontPathTracer {
	t.Helper()
	it := NewWavefrontPathTracer(scene, NewPCGSampler(cfg.Seed), cfg)
	if err := it.Render(camera); err != nil {
		t.Fatalf("wavefront render: %v", err)
	}
	return it
}

func defaultWavefrontConfig() WavefrontConfig {
	return WavefrontConfig{
		Config:     Config{MaxDepth: 12, RRDepth: 12, RRThreshold: 0.95, Seed: 7},
		StateCount: 1 << 12,
		Gathering:  true,
		Compact:    true,
		UseTagSort: true,
	}
}
