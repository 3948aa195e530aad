// Package testutil provides shared test infrastructure for the renderer.
// It consolidates the assertion helpers and quick scene/integrator
// constructors used by the scenedesc test package.
package testutil

import (
	"math"
	"testing"

	"github.com/render-sim/render-sim/render"
	"github.com/render-sim/render-sim/render/scenedesc"
)

// BuildBuiltin builds a named built-in scene, failing the test on error.
func BuildBuiltin(t *testing.T, name string) (*render.Scene, render.Camera) {
	t.Helper()
	spec, err := scenedesc.Builtin(name)
	if err != nil {
		t.Fatalf("builtin %q: %v", name, err)
	}
	scene, camera, err := spec.Build()
	if err != nil {
		t.Fatalf("build %q: %v", name, err)
	}
	return scene, camera
}

// RenderBuiltin renders a built-in scene with the wavefront integrator at a
// reduced resolution and spp, returning the developed film.
func RenderBuiltin(t *testing.T, name string, width, height, spp int, seed int64) *render.Film {
	t.Helper()
	spec, err := scenedesc.Builtin(name)
	if err != nil {
		t.Fatalf("builtin %q: %v", name, err)
	}
	spec.Film.Width = width
	spec.Film.Height = height
	spec.Camera.SPP = spp
	spec.Settings.Seed = seed
	spec.Settings.StateCount = 1 << 12
	scene, camera, err := spec.Build()
	if err != nil {
		t.Fatalf("build %q: %v", name, err)
	}
	it := render.NewWavefrontPathTracer(scene, render.NewPCGSampler(seed), render.WavefrontConfig{
		Config: render.Config{
			MaxDepth:    spec.Settings.MaxDepth,
			RRDepth:     spec.Settings.RRDepth,
			RRThreshold: spec.Settings.RRThreshold,
			Seed:        seed,
		},
		StateCount: spec.Settings.StateCount,
		Gathering:  spec.Settings.Gathering,
		Compact:    spec.Settings.Compact,
		UseTagSort: spec.Settings.TagSort,
	})
	if err := it.Render(camera); err != nil {
		t.Fatalf("render %q: %v", name, err)
	}
	return camera.Film()
}

// AssertNoNaNs fails when the developed film contains NaN pixels.
func AssertNoNaNs(t *testing.T, film *render.Film) {
	t.Helper()
	for i, px := range film.Develop() {
		for c := 0; c < 3; c++ {
			if math.IsNaN(px[c]) {
				t.Fatalf("pixel %d channel %d is NaN", i, c)
			}
		}
	}
}

// InDelta reports |a-b| <= delta, for callers outside assertion libraries.
func InDelta(a, b, delta float64) bool {
	return math.Abs(a-b) <= delta
}
