package render

import (
	"math"
	"testing"
)

func TestSampledSpectrumArithmetic(t *testing.T) {
	a := NewSampledSpectrum(3, 2)
	b := NewSampledSpectrum(3, 0.5)

	sum := a.AddSpectrum(b)
	for i := 0; i < 3; i++ {
		if sum.At(i) != 2.5 {
			t.Errorf("lane %d: got %v, want 2.5", i, sum.At(i))
		}
	}

	prod := a.MulSpectrum(b).Scale(2)
	for i := 0; i < 3; i++ {
		if prod.At(i) != 2 {
			t.Errorf("lane %d: got %v, want 2", i, prod.At(i))
		}
	}

	if got := a.Sum(); got != 6 {
		t.Errorf("Sum: got %v, want 6", got)
	}
	if got := a.Max(); got != 2 {
		t.Errorf("Max: got %v, want 2", got)
	}
}

func TestSampledSpectrumDivByZeroLane(t *testing.T) {
	a := NewSampledSpectrum(3, 1)
	b := NewSampledSpectrum(3, 2)
	b.Set(1, 0)
	q := a.Div(b)
	if q.At(0) != 0.5 || q.At(1) != 0 || q.At(2) != 0.5 {
		t.Errorf("Div: got %v", q.Lanes)
	}
}

func TestZeroIfAnyNaN(t *testing.T) {
	s := NewSampledSpectrum(3, 1)
	s.Set(1, math.NaN())
	scrubbed := s.ZeroIfAnyNaN()
	if !scrubbed.All(func(v float64) bool { return v == 0 }) {
		t.Errorf("NaN lane must scrub the whole spectrum, got %v", scrubbed.Lanes)
	}

	clean := NewSampledSpectrum(3, 0.25)
	if got := clean.ZeroIfAnyNaN(); got != clean {
		t.Errorf("clean spectrum must survive the scrub")
	}
}

func TestSampledSpectrumPredicates(t *testing.T) {
	s := NewSampledSpectrum(4, 0)
	if !s.All(func(v float64) bool { return v <= 0 }) {
		t.Error("zero spectrum must satisfy all ≤ 0")
	}
	s.Set(2, 0.1)
	if s.All(func(v float64) bool { return v <= 0 }) {
		t.Error("non-zero lane must break all ≤ 0")
	}
	if !s.Any(func(v float64) bool { return v > 0 }) {
		t.Error("Any must find the positive lane")
	}
}

func TestRGBSpectrumRoundTrip(t *testing.T) {
	var spec Spectrum = RGBSpectrum{}
	if !spec.IsFixed() || spec.Dimension() != 3 {
		t.Fatalf("RGB spectrum must be fixed with 3 lanes")
	}
	swl := spec.Sample(0.7)
	s := SampledSpectrum{Dim: 3}
	s.Set(0, 0.2)
	s.Set(1, 0.4)
	s.Set(2, 0.8)
	rgb := spec.SRGB(&swl, s)
	if rgb != [3]float64{0.2, 0.4, 0.8} {
		t.Errorf("fixed spectrum lanes are sRGB channels, got %v", rgb)
	}
}

func TestHeroWavelengthSampling(t *testing.T) {
	var spec Spectrum = HeroWavelengthSpectrum{}
	if spec.IsFixed() || spec.Dimension() != 4 {
		t.Fatalf("hero spectrum must be sampled with 4 lanes")
	}
	swl := spec.Sample(0.3)
	for i := 0; i < 4; i++ {
		if swl.Lambda[i] < lambdaMin || swl.Lambda[i] >= lambdaMax {
			t.Errorf("lane %d wavelength %v out of range", i, swl.Lambda[i])
		}
		if swl.PDF[i] <= 0 {
			t.Errorf("lane %d pdf %v must be positive", i, swl.PDF[i])
		}
	}
	if swl.ActiveLanes() != 4 {
		t.Errorf("fresh bundle has %d active lanes, want 4", swl.ActiveLanes())
	}
}

func TestTerminateSecondary(t *testing.T) {
	spec := HeroWavelengthSpectrum{}
	swl := spec.Sample(0.5)
	primaryPDF := swl.PDF[0]

	swl.TerminateSecondary()
	if swl.ActiveLanes() != 1 {
		t.Fatalf("after termination %d lanes active, want 1", swl.ActiveLanes())
	}
	if !swl.SecondaryTerminated() {
		t.Fatal("termination flag not set")
	}
	// The primary pdf is renormalized once; a second call must not touch it.
	want := primaryPDF / 4
	swl.TerminateSecondary()
	if swl.PDF[0] != want {
		t.Errorf("primary pdf %v, want %v (idempotent)", swl.PDF[0], want)
	}
	for i := 1; i < 4; i++ {
		if swl.PDF[i] != 0 {
			t.Errorf("secondary lane %d pdf %v, want 0", i, swl.PDF[i])
		}
	}
}

func TestDispersedLanesSplitIntoChannels(t *testing.T) {
	// A dispersed path carries a single wavelength; paths spread across the
	// refracted fan must land in different channels.
	spec := HeroWavelengthSpectrum{}
	unit := NewSampledSpectrum(4, 1)

	red := spec.Sample(0.8) // ≈640nm hero
	red.TerminateSecondary()
	blue := spec.Sample(0.15) // ≈445nm hero
	blue.TerminateSecondary()

	rgbRed := spec.SRGB(&red, unit)
	rgbBlue := spec.SRGB(&blue, unit)
	if rgbRed[0] <= rgbRed[2] {
		t.Errorf("long-wavelength lane should be red-dominant: %v", rgbRed)
	}
	if rgbBlue[2] <= rgbBlue[0] {
		t.Errorf("short-wavelength lane should be blue-dominant: %v", rgbBlue)
	}
}

func TestNegativeSampleEncodesTermination(t *testing.T) {
	spec := HeroWavelengthSpectrum{}
	live := spec.Sample(0.25)
	// The state store encodes termination as a negative wavelength sample;
	// Sample must treat |u| as the variate.
	dead := spec.Sample(-0.25)
	if dead.Lambda[0] != live.Lambda[0] {
		t.Errorf("primary wavelength changed under sign flip: %v vs %v", dead.Lambda[0], live.Lambda[0])
	}
	if dead.ActiveLanes() != 1 {
		t.Errorf("negative sample must terminate secondaries, %d active", dead.ActiveLanes())
	}
}
