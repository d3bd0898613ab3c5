// Package run orchestrates one video-to-binder conversion: cleanup of the
// previous run, validation, extraction, repetition, layout and printing.
package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"video2pdf/internal/config"
	"video2pdf/internal/engine"
	"video2pdf/internal/frames"
	"video2pdf/internal/layout"
)

// EngineLoader hands out engine instances. *engine.Loader satisfies it.
type EngineLoader interface {
	Load(ctx context.Context) (engine.Engine, error)
}

// Request is one user-initiated conversion. Numeric fields are raw input.
type Request struct {
	Files       []string
	FPS         string
	Repetitions string
	ItemsPerRow string
	// Output is the PDF path; derived from the input name when empty.
	Output string
	// Soundtrack also extracts the audio track for previews.
	Soundtrack bool
}

// Result describes a finished run.
type Result struct {
	ID      string
	Params  config.Params
	Frames  int
	Tiles   int
	Output  string
	Elapsed time.Duration
}

// Controller runs conversions one at a time against a session.
type Controller struct {
	session   *Session
	loader    EngineLoader
	printer   layout.Printer
	notifier  Notifier
	outputDir string
	progress  func(done, total int)

	busy  atomic.Bool
	state atomic.Int32
}

type Option func(*Controller)

func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithOutputDir places derived PDF paths in dir instead of next to the input.
func WithOutputDir(dir string) Option {
	return func(c *Controller) { c.outputDir = dir }
}

// WithProgress reports frame reads during extraction.
func WithProgress(fn func(done, total int)) Option {
	return func(c *Controller) { c.progress = fn }
}

func New(session *Session, loader EngineLoader, printer layout.Printer, opts ...Option) *Controller {
	c := &Controller{
		session:  session,
		loader:   loader,
		printer:  printer,
		notifier: discard{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State is the current phase.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Busy reports whether a run is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Run performs one conversion. A call made while another is in flight
// returns ErrBusy and changes nothing.
func (c *Controller) Run(ctx context.Context, req Request) (res *Result, err error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	id := uuid.NewString()[:8]
	logger := log.With("run", id)
	start := time.Now()
	defer func() {
		if err != nil {
			logger.Error("run failed", "state", c.State(), "err", err)
			c.fail(err)
			return
		}
		c.state.Store(int32(Idle))
	}()

	c.notifier.Notify(Notice{State: Validating, Level: Info, Text: "Converting, please wait..."})
	// Cleanup comes first so a run that fails validation still clears the
	// previous output.
	if err := c.session.cleanup(); err != nil {
		logger.Warn("releasing previous run", "err", err)
	}

	c.state.Store(int32(Validating))
	file, err := selectFile(req.Files)
	if err != nil {
		return nil, err
	}
	params := config.ParseParams(req.FPS, req.Repetitions, req.ItemsPerRow)
	logger.Info("run started", "file", file, "fps", params.FPS, "repetitions", params.Repetitions, "per_row", params.ItemsPerRow)

	source, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	c.setState(Extracting, fmt.Sprintf("Extracting frames at %d fps...", params.FPS))
	handles, soundtrack, err := c.extract(ctx, logger, source, params.FPS, req.Soundtrack)
	if err != nil {
		return nil, err
	}
	c.session.keepFrames(handles, soundtrack, params.FPS)

	c.state.Store(int32(Repeating))
	seq, err := frames.Repeat(handles, params.Repetitions)
	if err != nil {
		return nil, err
	}

	c.setState(Rendering, fmt.Sprintf("Laying out %d tiles...", len(seq)))
	srcs := make([]string, len(seq))
	for i, h := range seq {
		srcs[i] = h.URL()
	}
	doc, err := layout.Render(c.session.Store().Dir(), srcs, params.ItemsPerRow)
	if err != nil {
		return nil, err
	}
	c.session.keepDocument(doc)

	pdf, err := c.printer.Print(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("print: %w", err)
	}
	out, err := c.outputPath(file, req.Output)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	res = &Result{
		ID:      id,
		Params:  params,
		Frames:  len(handles),
		Tiles:   len(seq),
		Output:  out,
		Elapsed: time.Since(start),
	}
	logger.Info("run finished", "frames", res.Frames, "tiles", res.Tiles, "output", out, "elapsed", res.Elapsed.Round(time.Millisecond))
	c.notifier.Notify(Notice{State: Idle, Level: Success, Text: fmt.Sprintf("Printed %d tiles to %s", res.Tiles, out)})
	return res, nil
}

func (c *Controller) extract(ctx context.Context, logger *log.Logger, source []byte, fps int, withSoundtrack bool) ([]*frames.Handle, *frames.Handle, error) {
	eng, err := c.loader.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("closing engine", "err", err)
		}
	}()

	x := frames.NewExtractor(c.session.Store())
	x.Progress = c.progress
	handles, err := x.Extract(ctx, eng, source, fps)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("frames extracted", "count", len(handles))

	if !withSoundtrack {
		return handles, nil, nil
	}
	soundtrack, err := x.ExtractSoundtrack(ctx, eng)
	if err != nil {
		logger.Warn("no soundtrack", "err", err)
		return handles, nil, nil
	}
	return handles, soundtrack, nil
}

func (c *Controller) setState(s State, text string) {
	c.state.Store(int32(s))
	c.notifier.Notify(Notice{State: s, Level: Info, Text: text})
}

func (c *Controller) fail(err error) {
	c.state.Store(int32(Failed))
	n := Notice{State: Failed, Level: Error, Text: "Error: " + err.Error()}
	if errors.Is(err, engine.ErrLoad) {
		n.Text = "ffmpeg failed to load. Check the ffmpeg installation and restart."
		n.Sticky = true
	}
	c.notifier.Notify(n)
	c.state.Store(int32(Idle))
}

func (c *Controller) outputPath(input, requested string) (string, error) {
	out := requested
	if out == "" {
		name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".pdf"
		dir := c.outputDir
		if dir == "" {
			dir = filepath.Dir(input)
		}
		out = filepath.Join(dir, name)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return out, nil
}

func selectFile(files []string) (string, error) {
	switch {
	case len(files) == 0 || strings.TrimSpace(files[0]) == "":
		return "", ErrNoFileSelected
	case len(files) > 1:
		return "", ErrTooManyFiles
	}
	return strings.TrimSpace(files[0]), nil
}
