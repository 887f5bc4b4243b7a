// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"strconv"
	"strings"
	"time"
)

// AtoiDefault converts s to an int, returning def when s is empty or not
// an integer.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampInt bounds n to [lo, hi].
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// HoursDefault parses s as a positive number of hours ("48", "1.5"). Empty,
// malformed or non-positive input yields def.
func HoursDefault(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	h, err := strconv.ParseFloat(s, 64)
	if err != nil || h <= 0 {
		return def
	}
	return time.Duration(h * float64(time.Hour))
}

// ClampDuration bounds d to [lo, hi].
func ClampDuration(d, lo, hi time.Duration) time.Duration {
	return time.Duration(ClampInt64(int64(d), int64(lo), int64(hi)))
}

// ClampInt64 bounds n to [lo, hi].
func ClampInt64(n, lo, hi int64) int64 {
	return min(max(n, lo), hi)
}
