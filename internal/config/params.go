package config

import (
	"strconv"
	"strings"
)

// Parameter defaults. Bad input falls back to these without an error.
const (
	DefaultFPS         = 10
	DefaultRepetitions = 1
	DefaultItemsPerRow = 1
)

// Params are the per-run numeric parameters.
type Params struct {
	FPS         int
	Repetitions int
	ItemsPerRow int
}

// ParseCount parses a positive integer, returning def for anything that is
// not a whole number of at least one.
func ParseCount(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// ParseParams applies ParseCount to each raw field.
func ParseParams(fps, repetitions, itemsPerRow string) Params {
	return Params{
		FPS:         ParseCount(fps, DefaultFPS),
		Repetitions: ParseCount(repetitions, DefaultRepetitions),
		ItemsPerRow: ParseCount(itemsPerRow, DefaultItemsPerRow),
	}
}
