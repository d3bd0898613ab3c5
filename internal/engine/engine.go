// Package engine adapts ffmpeg into a small byte-level transcoding engine: a
// private virtual filesystem plus one execution request per job.
package engine

import (
	"context"
	"errors"
)

var (
	// ErrLoad means the engine binary could not be resolved or probed. It is
	// permanent for the lifetime of a Loader.
	ErrLoad = errors.New("engine failed to load")
	// ErrExec wraps any failure while writing, running, listing or reading.
	ErrExec = errors.New("engine execution failed")
)

// DirEntry is one entry of a virtual directory listing.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Job is a single execution request against the virtual filesystem.
type Job struct {
	Input  string
	Output string
	// Filter is passed to ffmpeg as the -vf expression when non-empty.
	Filter string
	// AudioOnly maps the first audio stream and drops video.
	AudioOnly bool
}

// Engine is the capability the frame extractor consumes. Paths are virtual
// and absolute ("/input", "/output/x.png").
type Engine interface {
	WriteFile(ctx context.Context, name string, data []byte) error
	CreateDir(ctx context.Context, name string) error
	Exec(ctx context.Context, job Job) error
	ListDir(ctx context.Context, name string) ([]DirEntry, error)
	ReadFile(ctx context.Context, name string) ([]byte, error)
	Close() error
}
