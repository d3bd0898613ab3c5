package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
)

// Loader resolves the ffmpeg binary once per process and hands out fresh
// engine instances afterwards. A failed probe stays failed.
type Loader struct {
	path    string
	workDir string

	once    sync.Once
	bin     string
	version string
	err     error
}

// NewLoader returns a loader for the given binary (looked up on PATH when
// empty). Engine filesystems are created under workDir.
func NewLoader(ffmpegPath, workDir string) *Loader {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Loader{path: ffmpegPath, workDir: workDir}
}

// Probe performs the one-time load. Every caller after the first gets the
// memoized result.
func (l *Loader) Probe(ctx context.Context) error {
	l.once.Do(func() {
		l.bin, l.version, l.err = probe(context.WithoutCancel(ctx), l.path)
		if l.err != nil {
			log.Error("ffmpeg unavailable", "path", l.path, "err", l.err)
			return
		}
		log.Info("ffmpeg loaded", "bin", l.bin, "version", l.version)
	})
	return l.err
}

// Load returns a new engine instance with an empty filesystem.
func (l *Loader) Load(ctx context.Context) (Engine, error) {
	if err := l.Probe(ctx); err != nil {
		return nil, err
	}
	eng, err := NewFFmpeg(l.bin, l.workDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return eng, nil
}

// Bin is the resolved binary path, empty until a successful Probe.
func (l *Loader) Bin() string {
	return l.bin
}

// Version is the first line of `ffmpeg -version`.
func (l *Loader) Version() string {
	return l.version
}

func probe(ctx context.Context, name string) (string, string, error) {
	bin, err := exec.LookPath(name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrLoad, err)
	}
	out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-version").Output()
	if err != nil {
		return "", "", fmt.Errorf("%w: %s -version: %w", ErrLoad, bin, err)
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	var version string
	if sc.Scan() {
		version = sc.Text()
	}
	return bin, version, nil
}
