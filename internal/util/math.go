package util

import "math"

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundHalfAwayFromZero rounds like most humans expect: 0.5 -> 1, -0.5 -> -1.
func RoundHalfAwayFromZero(v float64) int {
	return int(math.Round(v))
}

func MeanInt(nums []int) float64 {
	if len(nums) == 0 {
		return 0
	}
	sum := 0
	for _, n := range nums {
		sum += n
	}
	return float64(sum) / float64(len(nums))
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
