// Package frames turns a video into an ordered set of revocable frame
// handles and repeats that set for printing.
package frames

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"video2pdf/internal/engine"
)

// Fixed locations inside the engine's virtual filesystem.
const (
	InputPath      = "/input"
	OutputDir      = "/output"
	OutputPattern  = OutputDir + "/output_%06d.png"
	SoundtrackPath = "/soundtrack.mp3"
)

// ErrNoFrames means ffmpeg ran but produced no images.
var ErrNoFrames = errors.New("no frames extracted")

// Extractor runs one conversion against an engine and stores the results.
type Extractor struct {
	store *Store

	// Progress, when set, is called after each frame is stored. It may be
	// called from several goroutines.
	Progress func(done, total int)
	// Workers bounds concurrent frame reads. Zero means GOMAXPROCS.
	Workers int
}

func NewExtractor(store *Store) *Extractor {
	return &Extractor{store: store}
}

// Extract samples source at fps frames per second and returns one handle per
// produced image, in the engine's listing order. On error no handles remain
// live.
func (x *Extractor) Extract(ctx context.Context, eng engine.Engine, source []byte, fps int) ([]*Handle, error) {
	if err := eng.WriteFile(ctx, InputPath, source); err != nil {
		return nil, err
	}
	if err := eng.CreateDir(ctx, OutputDir); err != nil {
		return nil, err
	}
	job := engine.Job{
		Input:  InputPath,
		Output: OutputPattern,
		Filter: engine.FrameFilter(fps, engine.ScaleWidth),
	}
	if err := eng.Exec(ctx, job); err != nil {
		return nil, err
	}

	entries, err := eng.ListDir(ctx, OutputDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		names = append(names, e.Name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %w", engine.ErrExec, ErrNoFrames)
	}
	log.Debug("frames listed", "count", len(names), "fps", fps)

	handles := make([]*Handle, len(names))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers())
	for i, name := range names {
		g.Go(func() error {
			data, err := eng.ReadFile(gctx, path.Join(OutputDir, name))
			if err != nil {
				return err
			}
			h, err := x.store.Put(data, "image/png")
			if err != nil {
				return fmt.Errorf("%w: %w", engine.ErrExec, err)
			}
			handles[i] = h
			if x.Progress != nil {
				x.Progress(int(done.Add(1)), len(names))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		x.discard(handles)
		return nil, err
	}
	return handles, nil
}

// ExtractSoundtrack pulls the first audio stream out of the input already
// written by Extract.
func (x *Extractor) ExtractSoundtrack(ctx context.Context, eng engine.Engine) (*Handle, error) {
	job := engine.Job{Input: InputPath, Output: SoundtrackPath, AudioOnly: true}
	if err := eng.Exec(ctx, job); err != nil {
		return nil, err
	}
	data, err := eng.ReadFile(ctx, SoundtrackPath)
	if err != nil {
		return nil, err
	}
	return x.store.Put(data, "audio/mpeg")
}

func (x *Extractor) workers() int {
	if x.Workers > 0 {
		return x.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (x *Extractor) discard(handles []*Handle) {
	var live []*Handle
	for _, h := range handles {
		if h != nil {
			live = append(live, h)
		}
	}
	if _, err := RevokeAll(live); err != nil {
		log.Warn("discarding partial frames", "err", err)
	}
}
