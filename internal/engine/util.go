package engine

import "golang.org/x/exp/constraints"

func abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

func clamp[T constraints.Integer](x, lo, hi T) T {
	return min(max(x, lo), hi)
}

// isqrt returns the integer square root of a non-negative n.
func isqrt[T constraints.Integer](n T) T {
	if n < 2 {
		return n
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
