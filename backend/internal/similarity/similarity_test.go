package similarity

import (
	"math"
	"testing"
)

func TestCosineIdentical(t *testing.T) {
	a := []float64{1.0, 2.0, 3.0}
	if sim := Cosine(a, a); math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("expected cosine 1.0 for identical vectors, got %f", sim)
	}
}

func TestCosineOrthogonal(t *testing.T) {
	a := []float64{1.0, 0.0}
	b := []float64{0.0, 1.0}
	if sim := Cosine(a, b); math.Abs(sim) > 1e-9 {
		t.Errorf("expected cosine 0.0 for orthogonal vectors, got %f", sim)
	}
}

func TestCosineOpposite(t *testing.T) {
	a := []float64{1.0, 1.0}
	b := []float64{-1.0, -1.0}
	if sim := Cosine(a, b); math.Abs(sim+1.0) > 1e-9 {
		t.Errorf("expected cosine -1.0 for opposite vectors, got %f", sim)
	}
}

func TestCosineLengthMismatch(t *testing.T) {
	if sim := Cosine([]float64{1, 2}, []float64{1, 2, 3}); sim != 0.0 {
		t.Errorf("expected 0.0 for mismatched lengths, got %f", sim)
	}
}

func TestCosineZeroVector(t *testing.T) {
	if sim := Cosine([]float64{0, 0}, []float64{1, 2}); sim != 0.0 {
		t.Errorf("expected 0.0 for zero-norm vector, got %f", sim)
	}
}

func TestRatioIdentical(t *testing.T) {
	if score := Ratio("postgresql", "postgresql"); score != 100 {
		t.Errorf("expected 100 for identical strings, got %d", score)
	}
}

func TestRatioEmpty(t *testing.T) {
	if score := Ratio("", ""); score != 100 {
		t.Errorf("expected 100 for two empty strings, got %d", score)
	}
	if score := Ratio("redis", ""); score != 0 {
		t.Errorf("expected 0 against empty string, got %d", score)
	}
}

func TestRatioCommonVariation(t *testing.T) {
	// "postgres" is an 8-char subsequence of "postgresql":
	// 200*8/18 rounds to 89, above the default 85 resolution threshold.
	score := Ratio("postgres", "postgresql")
	if score != 89 {
		t.Errorf("expected 89 for postgres/postgresql, got %d", score)
	}
}

func TestRatioDisjoint(t *testing.T) {
	if score := Ratio("abc", "xyz"); score != 0 {
		t.Errorf("expected 0 for disjoint strings, got %d", score)
	}
}

func TestRatioSymmetric(t *testing.T) {
	if Ratio("kubernetes", "kubernete") != Ratio("kubernete", "kubernetes") {
		t.Error("expected ratio to be symmetric")
	}
}

func TestRatioCaseSensitive(t *testing.T) {
	if score := Ratio("Redis", "redis"); score == 100 {
		t.Error("expected case-sensitive comparison to score below 100")
	}
}
