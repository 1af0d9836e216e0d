package engine

import (
	"fmt"
	"math"
)

// Batched prepends a batch dimension of 1 when the shape has none, and
// replaces a dynamic (non-positive) batch dimension with 1.
func Batched(shape []int, rank int) []int {
	out := append([]int(nil), shape...)
	if len(out) == rank-1 {
		out = append([]int{1}, out...)
	}
	if len(out) > 0 && out[0] <= 0 {
		out[0] = 1
	}
	return out
}

// CopyFloat32 copies src into dst, which must have the same length.
func CopyFloat32(dst, src []float32) error {
	if len(dst) != len(src) {
		return fmt.Errorf("tensor holds %d values, got %d", len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

// CopyUint8 rounds and clamps src into dst.
func CopyUint8(dst []uint8, src []float32) error {
	if len(dst) != len(src) {
		return fmt.Errorf("tensor holds %d values, got %d", len(dst), len(src))
	}
	for i, v := range src {
		dst[i] = uint8(clamp(v, 0, math.MaxUint8))
	}
	return nil
}

// CopyInt8 shifts 0-255 pixel values into the int8 range, then rounds and
// clamps them into dst.
func CopyInt8(dst []int8, src []float32) error {
	if len(dst) != len(src) {
		return fmt.Errorf("tensor holds %d values, got %d", len(dst), len(src))
	}
	for i, v := range src {
		dst[i] = int8(clamp(v-128, math.MinInt8, math.MaxInt8))
	}
	return nil
}

// Float32s widens integer tensor data to float32.
func Float32s[T uint8 | int8 | float32](src []T) []float32 {
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out
}

func clamp(v float32, lo, hi float64) float64 {
	r := math.Round(float64(v))
	if r < lo {
		return lo
	}
	if r > hi {
		return hi
	}
	return r
}
