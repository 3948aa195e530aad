package render

import (
	"math"
	"testing"
)

func TestPathStateMoveRelocatesAllFields(t *testing.T) {
	spectrum := HeroWavelengthSpectrum{}
	s := NewPathStateSOA(spectrum, 16, true)

	from, to := uint32(12), uint32(3)
	beta := NewSampledSpectrum(4, 0.25)
	beta.Set(2, 0.5)
	s.WriteBeta(from, beta)
	s.WritePDFBSDF(from, 42)
	s.WriteEtaScale(from, 2.25)
	s.WriteDepth(from, 5)
	s.WritePixelIndex(from, 77)
	s.WriteRay(from, NewRay(Vec3{1, 2, 3}, Vec3{0, 0, 1}))
	s.WriteHit(from, Hit{Instance: 4, U: 0.25, V: 0.75, Distance: 1.5})
	s.WriteKernelIndex(from, KernelSurface)
	s.WriteWavelengthSample(from, 0.6)

	s.Move(from, to)

	if got := s.ReadBeta(to); got != beta {
		t.Errorf("beta: got %v", got)
	}
	if s.ReadPDFBSDF(to) != 42 || s.ReadEtaScale(to) != 2.25 {
		t.Error("pdf/eta scale not moved")
	}
	if s.ReadDepth(to) != 5 || s.ReadPixelIndex(to) != 77 {
		t.Error("depth/pixel not moved")
	}
	if s.ReadRay(to).Origin != (Vec3{1, 2, 3}) {
		t.Error("ray not moved")
	}
	if s.ReadHit(to).Instance != 4 {
		t.Error("hit not moved")
	}
	if s.ReadKernelIndex(to) != KernelSurface {
		t.Error("kernel index not moved")
	}
	if s.ReadWavelengthSample(to) != 0.6 {
		t.Error("wavelength sample not moved")
	}
}

func TestWavelengthSignEncoding(t *testing.T) {
	spectrum := HeroWavelengthSpectrum{}
	s := NewPathStateSOA(spectrum, 4, false)

	s.WriteWavelengthSample(1, 0.4)
	u, swl := s.ReadSWL(spectrum, 1)
	if u != 0.4 || swl.ActiveLanes() != 4 {
		t.Fatalf("fresh sample: u=%v active=%d", u, swl.ActiveLanes())
	}

	s.TerminateSecondaryWavelengths(1)
	u, swl = s.ReadSWL(spectrum, 1)
	if u != 0.4 {
		t.Errorf("termination must keep |u|, got %v", u)
	}
	if swl.ActiveLanes() != 1 {
		t.Errorf("terminated bundle has %d active lanes, want 1", swl.ActiveLanes())
	}
	// Terminating twice stays terminated.
	s.TerminateSecondaryWavelengths(1)
	if math.Signbit(s.ReadWavelengthSample(1)) != true {
		t.Error("sign flag lost on repeated termination")
	}
}

func TestFixedSpectrumSkipsWavelengthStorage(t *testing.T) {
	spectrum := RGBSpectrum{}
	s := NewPathStateSOA(spectrum, 4, false)
	s.WriteWavelengthSample(0, 0.9)
	if s.ReadWavelengthSample(0) != 0 {
		t.Error("fixed spectra carry no wavelength sample")
	}
	_, swl := s.ReadSWL(spectrum, 0)
	if swl.Dim != 3 {
		t.Errorf("fixed bundle dimension %d, want 3", swl.Dim)
	}
}

func TestLightSampleSOA(t *testing.T) {
	spectrum := RGBSpectrum{}
	l := NewLightSampleSOA(spectrum, 8, 0)
	if l.UseTagSort() {
		t.Fatal("tag sort must be disabled for tagCount=0")
	}

	em := NewSampledSpectrum(3, 1.5)
	l.WriteEmission(2, em)
	l.WriteWiPDF(2, Vec3{0, 1, 0}, 0.25)
	if got := l.ReadEmission(2); got != em {
		t.Errorf("emission: got %v", got)
	}
	wi, pdf := l.ReadWiPDF(2)
	if wi != (Vec3{0, 1, 0}) || pdf != 0.25 {
		t.Errorf("wi/pdf: got %v %v", wi, pdf)
	}

	l.Move(2, 5)
	if got := l.ReadEmission(5); got != em {
		t.Error("move lost emission")
	}
}
