package runner

// Mismatches returns the indices i where |values[i] - expected| <= tolerance
// does not hold. NaN elements always mismatch.
func Mismatches(values []float32, expected, tolerance float32) []int {
	var bad []int
	for i, v := range values {
		diff := v - expected
		if diff < 0 {
			diff = -diff
		}
		if !(diff <= tolerance) {
			bad = append(bad, i)
		}
	}
	return bad
}
