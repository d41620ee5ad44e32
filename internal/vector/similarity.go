package vector

import "math"

// Dot returns the inner product of a and b, 0 when their sizes differ.
// For unit vectors it is their cosine similarity.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// CosineDistance returns 1 - cosine similarity of two unit vectors.
func CosineDistance(a, b []float32) float64 {
	return 1 - Dot(a, b)
}

// Similarity maps a cosine distance to a score clamped to [0, 1].
func Similarity(distance float64) float64 {
	return math.Max(0, math.Min(1, 1-distance))
}

// Normalize scales x in place to unit length. A zero vector is left as is.
func Normalize(x []float32) {
	norm := math.Sqrt(Dot(x, x))
	if norm == 0 {
		return
	}
	inv := float32(1 / norm)
	for i := range x {
		x[i] *= inv
	}
}
