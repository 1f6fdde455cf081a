package vector

// InnerProduct returns the inner product of a and b, or 0 when the lengths differ. For
// L2-normalized vectors it is the cosine similarity.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
