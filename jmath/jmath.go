package jmath

import (
	"math"

	"golang.org/x/exp/constraints"
)

func Abs32(f float32) float32 {
	return float32(math.Abs(float64(f)))
}

func Floor32(f float32) float32 {
	return float32(math.Floor(float64(f)))
}

func Ceil32(f float32) float32 {
	return float32(math.Ceil(float64(f)))
}

func Sin32(f float32) float32 {
	return float32(math.Sin(float64(f)))
}

func Cos32(f float32) float32 {
	return float32(math.Cos(float64(f)))
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
