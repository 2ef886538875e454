package math

import "golang.org/x/exp/constraints"

// ClampByte saturates an integer channel value to 0..255.
func ClampByte[T constraints.Integer](v T) uint8 {
	if v <= 0 {
		return 0
	}
	if uint64(v) >= 0xff {
		return 0xff
	}
	return uint8(v)
}
