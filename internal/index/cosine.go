package index

import "math"

// dot computes the dot product of two equal-length vectors in float64.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// norm computes the L2 norm of v.
func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// cosine returns dot(a,b)/(|a||b|) given precomputed norms. ok is false when
// either norm is zero, in which case the similarity is undefined.
// The result is clamped to [-1, 1] to absorb rounding.
func cosine(a []float32, normA float64, b []float32, normB float64) (float64, bool) {
	if normA == 0 || normB == 0 {
		return 0, false
	}
	s := dot(a, b) / (normA * normB)
	switch {
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	return s, true
}

// Cosine returns the cosine similarity of a and b and whether it is defined.
// Vectors of different lengths are never comparable.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	return cosine(a, norm(a), b, norm(b))
}
