package render

import (
	"math"
	"testing"
)

func TestFrameOrthonormal(t *testing.T) {
	normals := []Vec3{
		{0, 0, 1}, {0, 0, -1}, {1, 0, 0}, {0, 1, 0},
		Vec3{1, 2, 3}.Normalize(), Vec3{-0.3, 0.9, -0.1}.Normalize(),
	}
	for _, n := range normals {
		f := NewFrame(n)
		for name, d := range map[string]float64{
			"T·B": f.T.Dot(f.B), "T·N": f.T.Dot(f.N), "B·N": f.B.Dot(f.N),
		} {
			if math.Abs(d) > 1e-9 {
				t.Errorf("n=%v: %s = %v, want 0", n, name, d)
			}
		}
		if math.Abs(f.T.Len()-1) > 1e-9 || math.Abs(f.B.Len()-1) > 1e-9 {
			t.Errorf("n=%v: frame axes not unit length", n)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	f := NewFrame(Vec3{0.3, -0.5, 0.8}.Normalize())
	w := Vec3{0.2, 0.7, -0.4}
	got := f.ToWorld(f.ToLocal(w))
	if got.Sub(w).Len() > 1e-9 {
		t.Errorf("to-local/to-world round trip drifted: %v vs %v", got, w)
	}
}

func TestReflect(t *testing.T) {
	n := Vec3{0, 0, 1}
	wo := Vec3{1, 0, 1}.Normalize()
	r := Reflect(wo, n)
	want := Vec3{-wo.X, 0, wo.Z}
	if r.Sub(want).Len() > 1e-9 {
		t.Errorf("reflect: got %v, want %v", r, want)
	}
}

func TestRefractTotalInternal(t *testing.T) {
	n := Vec3{0, 0, 1}
	// Grazing exit from the dense side triggers total internal reflection.
	wi := Vec3{0.95, 0, 0.3122498999}.Normalize()
	if _, ok := Refract(wi, n, 1/1.5); ok {
		t.Error("expected total internal reflection")
	}
	// Normal incidence always refracts.
	if _, ok := Refract(Vec3{0, 0, 1}, n, 1.5); !ok {
		t.Error("normal incidence must refract")
	}
}

func TestRefractSnell(t *testing.T) {
	n := Vec3{0, 0, 1}
	wi := Vec3{0.5, 0, 0.8660254}.Normalize() // 30° incidence
	wt, ok := Refract(wi, n, 1.5)
	if !ok {
		t.Fatal("refraction failed")
	}
	sinI := math.Sqrt(1 - sqr(wi.Dot(n)))
	sinT := math.Sqrt(1 - sqr(wt.Dot(n.Neg())))
	if math.Abs(sinI-1.5*sinT) > 1e-6 {
		t.Errorf("Snell violated: sin_i=%v, eta*sin_t=%v", sinI, 1.5*sinT)
	}
}
