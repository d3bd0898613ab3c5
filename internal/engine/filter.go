package engine

import "fmt"

// ScaleWidth is the fixed output width of extracted frames.
const ScaleWidth = 640

// FrameFilter returns the sampling filter: fps decimation followed by a
// width-only downscale that keeps the aspect ratio.
func FrameFilter(fps, width int) string {
	return fmt.Sprintf("fps=%d,scale=%d:-1", fps, width)
}
