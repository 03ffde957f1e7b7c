package store

import (
	"math"
	"strconv"
)

// formatScore renders a ZRANGEBYSCORE bound, preserving Redis's +inf/-inf
// sentinels for open-ended ranges.
func formatScore(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}
