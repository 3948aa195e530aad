package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSPPMRadiusLaw(t *testing.T) {
	// After K iterations the radius must match the closed form
	// r_0 · Π sqrt((N_i + γM_i) / (N_i + M_i)).
	const r0 = 1.0
	stats := newPixelStats(1, r0, 1e6, true)

	photonsPerIter := []uint32{100, 250, 80, 500, 1}
	wantR := r0
	var n float64
	for _, m := range photonsPerIter {
		stats.curM[0] = m
		for c := 0; c < 3; c++ {
			stats.phi[c] = math.Float64bits(1.0)
		}
		stats.update()

		mf := float64(m)
		wantR *= math.Sqrt((n + sppmGamma*mf) / (n + mf))
		n += sppmGamma * mf
	}
	assert.InDelta(t, wantR, stats.radius[0], 1e-12, "radius law diverged from the closed form")
	assert.InDelta(t, n, stats.n[0], 1e-9)
}

func TestSPPMTauRescale(t *testing.T) {
	stats := newPixelStats(1, 2.0, 1e6, true)
	stats.curM[0] = 10
	stats.phi[0] = math.Float64bits(5.0)
	rBefore := stats.radius[0]
	stats.update()
	rAfter := stats.radius[0]

	ratio := (rAfter / rBefore) * (rAfter / rBefore)
	assert.InDelta(t, 5.0*ratio, stats.tau[0][0], 1e-12, "tau must rescale by the radius ratio squared")
	// The per-iteration accumulator resets.
	if stats.phi[0] != 0 {
		t.Error("phi not reset after update")
	}
	if stats.curM[0] != 0 {
		t.Error("photon counter not reset after update")
	}
}

func TestSPPMClampBoundsPhi(t *testing.T) {
	stats := newPixelStats(1, 1.0, 2.0, true)
	stats.curM[0] = 1
	stats.phi[0] = math.Float64bits(100.0)
	stats.update()
	if stats.tau[0][0] > 2.0 {
		t.Errorf("tau %v exceeds the clamp", stats.tau[0][0])
	}
}

func TestSPPMRadiusMonotone(t *testing.T) {
	stats := newPixelStats(1, 1.0, 1e6, true)
	last := stats.radius[0]
	for i := 0; i < 8; i++ {
		stats.curM[0] = 1000
		stats.update()
		if stats.radius[0] >= last {
			t.Fatalf("iteration %d: radius %v did not shrink from %v", i, stats.radius[0], last)
		}
		last = stats.radius[0]
	}
}

func TestPhotonMapInsertAndLookup(t *testing.T) {
	pm := newPhotonMap(64)
	pm.reset()
	pm.setGrid(Vec3{-1, -1, -1}, 0.25)

	swl := rgbSWL()
	positions := []Vec3{
		{0, 0, 0}, {0.05, 0, 0}, {0.9, 0.9, 0.9},
	}
	for _, p := range positions {
		if !pm.push(p, swl, NewSampledSpectrum(3, 1), Vec3{0, 0, 1}) {
			t.Fatal("push rejected below capacity")
		}
	}
	for i := uint32(0); i < pm.total(); i++ {
		pm.link(i)
	}

	// Walk the 3×3×3 neighbourhood of the origin cell and count photons in
	// radius; the far photon must not appear.
	found := 0
	grid := pm.pointToGrid(Vec3{0, 0, 0})
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				idx := pm.head[pm.gridToIndex([3]int{grid[0] + dx, grid[1] + dy, grid[2] + dz})]
				for idx != nilPhoton {
					if pm.photons[idx].position.Sub(Vec3{}).Len() <= 0.25 {
						found++
					}
					idx = pm.next[idx]
				}
			}
		}
	}
	if found != 2 {
		t.Errorf("found %d photons near the origin, want 2", found)
	}
}

func TestPhotonMapCapacityDrop(t *testing.T) {
	pm := newPhotonMap(2)
	pm.reset()
	pm.setGrid(Vec3{}, 1)
	swl := rgbSWL()
	pm.push(Vec3{}, swl, NewSampledSpectrum(3, 1), Vec3{0, 0, 1})
	pm.push(Vec3{}, swl, NewSampledSpectrum(3, 1), Vec3{0, 0, 1})
	if pm.push(Vec3{}, swl, NewSampledSpectrum(3, 1), Vec3{0, 0, 1}) {
		t.Error("push above capacity must be dropped")
	}
	if pm.total() != 2 {
		t.Errorf("total %d, want 2", pm.total())
	}
}

func TestPhotonMapperCornellSmoke(t *testing.T) {
	if testing.Short() {
		t.Skip("photon smoke test is slow")
	}
	scene := boxScene(nil)
	camera := testCamera("box", 12, 12, 4)
	pm := NewPhotonMapper(scene, NewPCGSampler(SeedFor(7, "photon")), PhotonMapperConfig{
		Config:              Config{MaxDepth: 6, RRDepth: 3, RRThreshold: 0.95, Seed: 7},
		PhotonsPerIteration: 5000,
		InitialRadius:       -50,
		SharedRadius:        true,
	})
	if err := pm.Render(camera); err != nil {
		t.Fatal(err)
	}

	stats := camera.Film().Stats()
	if stats.NaNPixels != 0 {
		t.Fatalf("%d NaN pixels", stats.NaNPixels)
	}
	if stats.MeanLuminance <= 0 {
		t.Fatal("photon-mapped box must not be black")
	}
	if pm.Stats.PhotonsStored == 0 {
		t.Fatal("no photons stored")
	}
	// The progressive radius must have shrunk across the iterations.
	worldMin, worldMax := scene.Geometry.Bounds()
	extent := worldMax.Sub(worldMin)
	r0 := math.Min(extent.X, math.Min(extent.Y, extent.Z)) / 50
	if pm.Radius(0) >= r0 {
		t.Errorf("radius %v did not shrink from %v", pm.Radius(0), r0)
	}
}

func TestPhotonMapperRequiresFiniteLights(t *testing.T) {
	scene := furnaceScene(0.5) // environment only
	pm := NewPhotonMapper(scene, NewPCGSampler(1), PhotonMapperConfig{
		Config:              Config{MaxDepth: 4, RRThreshold: 0.95},
		PhotonsPerIteration: 100,
	})
	if err := pm.Render(testCamera("furnace", 8, 8, 1)); err != ErrNoLights {
		t.Fatalf("got %v, want ErrNoLights", err)
	}
}
