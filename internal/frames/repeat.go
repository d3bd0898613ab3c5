package frames

import (
	"errors"
	"fmt"
)

// MaxTiles bounds the length of a repeated sequence.
const MaxTiles = 100_000

// ErrTooManyTiles is returned when a repetition would exceed MaxTiles.
var ErrTooManyTiles = errors.New("too many tiles")

// Repeat returns items followed by count-1 further copies of items. A count
// of one or less returns items itself. Elements are copied by value, so
// pointer elements keep referring to the same underlying resources.
func Repeat[T any](items []T, count int) ([]T, error) {
	if count <= 1 || len(items) == 0 {
		return items, nil
	}
	// Divide instead of multiplying so huge counts cannot overflow.
	if len(items) > MaxTiles/count {
		return nil, fmt.Errorf("%w: %d frames x %d repetitions exceeds %d", ErrTooManyTiles, len(items), count, MaxTiles)
	}
	out := make([]T, 0, len(items)*count)
	for range count {
		out = append(out, items...)
	}
	return out, nil
}
