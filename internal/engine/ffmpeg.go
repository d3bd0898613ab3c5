package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpeg is an Engine backed by the ffmpeg binary. Its virtual filesystem is
// a private temporary directory removed on Close.
type FFmpeg struct {
	bin  string
	root string
}

// NewFFmpeg creates an engine instance with a fresh filesystem under workDir
// (the OS temp dir when empty).
func NewFFmpeg(bin, workDir string) (*FFmpeg, error) {
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	root, err := os.MkdirTemp(workDir, "engine-*")
	if err != nil {
		return nil, fmt.Errorf("create engine root: %w", err)
	}
	return &FFmpeg{bin: bin, root: root}, nil
}

// resolve maps a virtual path onto the engine root. Cleaning against "/"
// keeps every result inside the root.
func (f *FFmpeg) resolve(name string) string {
	return filepath.Join(f.root, filepath.FromSlash(path.Clean("/"+name)))
}

func (f *FFmpeg) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.WriteFile(f.resolve(name), data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrExec, name, err)
	}
	return nil
}

func (f *FFmpeg) CreateDir(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.resolve(name), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", ErrExec, name, err)
	}
	return nil
}

// ListDir returns the entries of a virtual directory ordered by filename,
// which is the order ffmpeg numbers its image sequence in.
func (f *FFmpeg) ListDir(ctx context.Context, name string) ([]DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrExec, name, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, DirEntry{Name: entry.Name(), IsDir: entry.IsDir()})
	}
	return out, nil
}

func (f *FFmpeg) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrExec, name, err)
	}
	return data, nil
}

// Exec compiles the job into ffmpeg arguments and runs it to completion.
func (f *FFmpeg) Exec(ctx context.Context, job Job) error {
	args := f.args(job)
	log.Debug("running ffmpeg", "args", strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: ffmpeg: %w: %s", ErrExec, err, lastLines(stderr.String(), 5))
	}
	return nil
}

func (f *FFmpeg) args(job Job) []string {
	out := ffmpeg.KwArgs{}
	switch {
	case job.AudioOnly:
		out["map"] = "0:a:0"
		out["acodec"] = "libmp3lame"
		// Preview playback opens a fixed 44.1kHz stereo device.
		out["ar"] = "44100"
		out["ac"] = "2"
	case job.Filter != "":
		out["vf"] = job.Filter
	}
	return ffmpeg.Input(f.resolve(job.Input)).
		Output(f.resolve(job.Output), out).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		OverWriteOutput().
		GetArgs()
}

// Close removes the engine's filesystem.
func (f *FFmpeg) Close() error {
	return os.RemoveAll(f.root)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
