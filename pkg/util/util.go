// Package util holds small display helpers.
package util

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// FormatValueFactor picks the engineering scale factor and the suffix the
// netlist grammar uses for it (X is mega, M is milli).
func FormatValueFactor(value float64) (float64, string) {
	abs := math.Abs(value)
	switch {
	case abs >= 1e12:
		return 1e12, "T"
	case abs >= 1e9:
		return 1e9, "G"
	case abs >= 1e6:
		return 1e6, "X"
	case abs >= 1e3:
		return 1e3, "K"
	case abs >= 1 || abs == 0:
		return 1, ""
	case abs >= 1e-3:
		return 1e-3, "M"
	case abs >= 1e-6:
		return 1e-6, "U"
	case abs >= 1e-9:
		return 1e-9, "N"
	case abs >= 1e-12:
		return 1e-12, "P"
	default:
		return 1e-15, "F"
	}
}

// FormatValue renders a value with its engineering suffix and unit.
func FormatValue(value float64, unit string) string {
	factor, suffix := FormatValueFactor(value)
	return fmt.Sprintf("%.4g%s%s", value/factor, suffix, unit)
}

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
