package evidence

import "math"

// Confidence combines independent source trust weights with a noisy-OR:
// 1 - prod(1 - w). Adding a source never lowers the result.
func Confidence(weights []float64) float64 {
	miss := 1.0
	for _, w := range weights {
		if w <= 0 {
			continue
		}
		if w > 1 {
			w = 1
		}
		miss *= 1 - w
	}
	return math.Round((1-miss)*1e6) / 1e6
}
