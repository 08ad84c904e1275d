// Package vector scores and ranks embeddings by cosine similarity.
package vector

import "math"

// CosineSimilarity returns dot(a, b) / (|a| |b|), accumulated in float64.
// A zero-norm vector has similarity 0 with everything. Callers must check
// that the lengths match; extra components of the longer vector are ignored.
func CosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	s := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp rounding drift so identical vectors score exactly within [-1, 1].
	return math.Max(-1, math.Min(1, s))
}

// Round rounds score to the given number of decimal places for display.
func Round(score float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(score*p) / p
}
