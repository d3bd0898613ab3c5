package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// GenerateTestPattern renders a synthetic testsrc clip of the given length
// and frame rate to out.
func GenerateTestPattern(ctx context.Context, bin, out string, seconds float64, rate int) error {
	if bin == "" {
		bin = "ffmpeg"
	}
	src := fmt.Sprintf("testsrc=duration=%g:size=320x240:rate=%d", seconds, rate)
	args := ffmpeg.Input(src, ffmpeg.KwArgs{"f": "lavfi"}).
		Output(out, ffmpeg.KwArgs{"pix_fmt": "yuv420p"}).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		OverWriteOutput().
		GetArgs()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("generate test pattern: %w: %s", err, lastLines(stderr.String(), 5))
	}
	return nil
}
