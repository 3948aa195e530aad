package render

import (
	"math"
	"testing"
)

func TestBalanceHeuristic(t *testing.T) {
	cases := []struct {
		a, b, want float64
	}{
		{1, 1, 0.5},
		{3, 1, 0.75},
		{0, 1, 0},
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := BalanceHeuristic(c.a, c.b); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("w(%v,%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
	// The delta sentinel swamps any light pdf.
	if w := BalanceHeuristic(DeltaPDF, 10); w < 0.999999 {
		t.Errorf("delta-vs-light weight %v, want ≈1", w)
	}
}

func TestAreaLightSampleEvaluateAgree(t *testing.T) {
	shape := Quad{Origin: Vec3{-0.5, 2, -0.5}, EdgeU: Vec3{X: 1}, EdgeV: Vec3{Z: 1}}
	light := &AreaLight{Shape: shape, Radiance: [3]float64{5, 5, 5}}
	swl := rgbSWL()

	it := testInteraction(Vec3{0, 1, 0})
	it.Point = Vec3{0, 0, 0}

	ls := light.SampleLi(&it, [2]float64{0.3, 0.6}, &swl)
	if ls.Eval.PDF <= 0 {
		t.Fatal("sample produced no pdf")
	}

	// Promote the sampled point to an interaction on the light and check
	// the hit evaluation returns the same density.
	p, n := shape.At(0.3, 0.6)
	hitIt := Interaction{Point: p, GeoNormal: n, Shading: NewFrame(n), LightIndex: 0, HasLight: true}
	eval := light.EvaluateHit(&hitIt, it.Point, &swl)
	if math.Abs(eval.PDF-ls.Eval.PDF)/ls.Eval.PDF > 1e-9 {
		t.Errorf("evaluate pdf %v disagrees with sample pdf %v", eval.PDF, ls.Eval.PDF)
	}
	if eval.L.At(0) != 5 {
		t.Errorf("radiance %v, want 5", eval.L.At(0))
	}
}

func TestAreaLightBackfaceDark(t *testing.T) {
	shape := Quad{Origin: Vec3{-0.5, 2, -0.5}, EdgeU: Vec3{X: 1}, EdgeV: Vec3{Z: 1}}
	light := &AreaLight{Shape: shape, Radiance: [3]float64{5, 5, 5}}
	swl := rgbSWL()

	// Quad normal is -Y (EdgeU × EdgeV); a receiver above sees the back.
	it := testInteraction(Vec3{0, -1, 0})
	it.Point = Vec3{0, 4, 0}
	ls := light.SampleLi(&it, [2]float64{0.5, 0.5}, &swl)
	if ls.Eval.PDF != 0 {
		t.Errorf("backface sample pdf %v, want 0", ls.Eval.PDF)
	}
}

func TestAreaLightSampleLePower(t *testing.T) {
	shape := Quad{Origin: Vec3{-0.5, 0, -0.5}, EdgeU: Vec3{Z: 1}, EdgeV: Vec3{X: 1}}
	light := &AreaLight{Shape: shape, Radiance: [3]float64{2, 2, 2}}
	swl := rgbSWL()

	le := light.SampleLe([2]float64{0.4, 0.4}, [2]float64{0.3, 0.7}, &swl)
	if le.Eval.PDF <= 0 {
		t.Fatal("emission sample has no pdf")
	}
	// The pdf folds area, direction and cosine: power L/pdf = L·A·π for a
	// cosine-distributed emitter.
	power := le.Eval.L.At(0) / le.Eval.PDF
	want := 2 * shape.Area() * math.Pi
	if math.Abs(power-want)/want > 1e-9 {
		t.Errorf("photon power %v, want %v", power, want)
	}
	if le.Ray.Direction.Dot(Vec3{0, 1, 0}) <= 0 {
		t.Errorf("emission must leave the front face, dir=%v", le.Ray.Direction)
	}
}

func TestUniformLightSamplerSelection(t *testing.T) {
	shape := Quad{Origin: Vec3{-0.5, 2, -0.5}, EdgeU: Vec3{X: 1}, EdgeV: Vec3{Z: 1}}
	sampler := &UniformLightSampler{
		Lights: []Light{
			&AreaLight{Shape: shape, Radiance: [3]float64{1, 1, 1}},
			&AreaLight{Shape: shape, Radiance: [3]float64{3, 3, 3}},
		},
		Env: &EnvironmentLight{Radiance: [3]float64{0.5, 0.5, 0.5}},
	}
	swl := rgbSWL()
	it := testInteraction(Vec3{0, 1, 0})

	// Selection pdf is folded in: three selectable emitters.
	ls := sampler.Sample(&it, 0.1, [2]float64{0.5, 0.5}, &swl, 0)
	direct := sampler.Lights[0].SampleLi(&it, [2]float64{0.5, 0.5}, &swl)
	if math.Abs(ls.Eval.PDF-direct.Eval.PDF/3)/ls.Eval.PDF > 1e-9 {
		t.Errorf("selection pdf not folded: %v vs %v/3", ls.Eval.PDF, direct.Eval.PDF)
	}

	miss := sampler.EvaluateMiss(Vec3{0, 0, 1}, &swl, 0)
	if math.Abs(miss.PDF-uniformSpherePDF/3) > 1e-12 {
		t.Errorf("miss pdf %v, want %v", miss.PDF, uniformSpherePDF/3)
	}
	if miss.L.At(0) != 0.5 {
		t.Errorf("environment radiance %v, want 0.5", miss.L.At(0))
	}
}

func TestEvaluateHitUnknownIndex(t *testing.T) {
	sampler := &UniformLightSampler{}
	swl := rgbSWL()
	it := testInteraction(Vec3{0, 1, 0})
	it.LightIndex = -1
	eval := sampler.EvaluateHit(&it, Vec3{}, &swl, 0)
	if eval.PDF != 0 || !eval.L.All(func(v float64) bool { return v == 0 }) {
		t.Error("non-emitter hit must evaluate to zero")
	}
}
