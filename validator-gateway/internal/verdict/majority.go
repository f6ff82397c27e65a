// Package verdict reduces per-sample validator scores to a single decision.
package verdict

// DefaultThreshold is the score above which a sample counts as a positive vote.
const DefaultThreshold = 0.5

// Majority reports whether more than half of scores exceed threshold.
// An empty slice has no majority.
func Majority(scores []float64, threshold float64) bool {
	return 2*CountAbove(scores, threshold) > len(scores)
}

// CountAbove counts scores strictly greater than threshold.
func CountAbove(scores []float64, threshold float64) int {
	n := 0
	for _, s := range scores {
		if s > threshold {
			n++
		}
	}
	return n
}

// AsInt maps a decision to the 0/1 form used in responses.
func AsInt(decision bool) int {
	if decision {
		return 1
	}
	return 0
}
