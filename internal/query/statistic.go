package query

import (
	"math"
	"strings"
)

// MaxDecimals caps AdaptiveDecimals.
const MaxDecimals = 8

// AdaptiveDecimals raises base when the data range is small and tightly
// clustered: with both bounds non-zero and max/min < 1000, a smaller
// magnitude below 10^-k (k = 6..1) shows k+2 decimals, capped at MaxDecimals.
func AdaptiveDecimals(base int, dataMin, dataMax *float64) int {
	if dataMin == nil || dataMax == nil || *dataMin == 0 || *dataMax == 0 {
		return base
	}
	lo, hi := math.Abs(*dataMin), math.Abs(*dataMax)
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi/lo >= 1000 {
		return base
	}

	for k := 6; k >= 1; k-- {
		if lo < math.Pow10(-k) {
			return min(max(base, k+2), MaxDecimals)
		}
	}
	return base
}

// LabelWithUnit appends " (<unit>)" to label unless the label already
// carries the parenthesised unit.
func LabelWithUnit(label, unit string, withUnit bool) string {
	suffix := "(" + unit + ")"
	if !withUnit || unit == "" || strings.Contains(label, suffix) {
		return label
	}
	return label + " " + suffix
}

var weightedStatMarkers = []string{"avg_", "count", "utilization", "rate", "expansion_factor"}

// isWeightGoverned reports whether per-bucket values of the statistic must be
// combined as a weighted mean.
func isWeightGoverned(alias string) bool {
	for _, m := range weightedStatMarkers {
		if strings.Contains(alias, m) {
			return true
		}
	}
	return false
}
