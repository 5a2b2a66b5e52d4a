// Package similarity provides the pure scoring functions used by entity
// resolution and decision linking: cosine similarity over embedding vectors
// and a normalized indel ratio for fuzzy name matching.
package similarity

import "math"

// Cosine calculates the cosine similarity between two vectors.
// Returns 0 for mismatched lengths or zero-norm inputs.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Ratio scores how similar two strings are on a 0-100 scale using the
// normalized indel distance: 200*lcs(a,b) / (len(a)+len(b)), rounded.
// Comparison is case-sensitive; callers normalize first.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	lcs := lcsLength(ra, rb)
	return int(math.Round(200.0 * float64(lcs) / float64(total)))
}

// lcsLength computes the longest-common-subsequence length with a
// two-row DP table to keep memory linear in the shorter string.
func lcsLength(a, b []rune) int {
	if len(b) > len(a) {
		a, b = b, a
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
