// Package safemath provides overflow-checked unsigned integer arithmetic.
//
// Every quota mutation routes its size and price arithmetic through this
// package. Results that would wrap around a uint64 are rejected with
// ErrOverflow instead of silently producing a small value.
package safemath

import "errors"

// ErrOverflow is returned when a result does not fit in a uint64.
var ErrOverflow = errors.New("safemath: arithmetic overflow")

// Add returns a+b, or ErrOverflow if the sum wraps.
func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Mul returns a*b, or ErrOverflow if the product wraps.
func Mul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product < a || product < b || product/a != b {
		return 0, ErrOverflow
	}
	return product, nil
}

// SubSaturating returns a-b clamped at zero.
func SubSaturating(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
