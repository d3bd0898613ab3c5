package main

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"video2pdf/internal/frames"
)

// preview plays the last run's frames as block characters.
type preview struct {
	frames  []string
	current int
	playing bool
	fps     int
	audio   *AudioPlayer
}

type previewLoadedMsg struct {
	frames     []string
	fps        int
	soundtrack string
	err        error
}

type tickMsg time.Time

func tick(fps int) tea.Cmd {
	if fps < 1 {
		fps = 1
	}
	return tea.Tick(time.Second/time.Duration(fps), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// loadPreview renders every handle to text sized for a width x height cell
// box. Rendering happens up front so a later run can release the handles
// while the preview keeps playing.
func loadPreview(handles []*frames.Handle, soundtrack *frames.Handle, fps, width, height int) tea.Cmd {
	return func() tea.Msg {
		out := make([]string, len(handles))
		g := new(errgroup.Group)
		g.SetLimit(runtime.NumCPU())
		for i, h := range handles {
			g.Go(func() error {
				if h.Revoked() {
					return fmt.Errorf("frame %s: %w", h.ID(), frames.ErrRevoked)
				}
				frame, err := loadFrameAsASCII(h.Path(), width, height)
				if err != nil {
					return fmt.Errorf("frame %s: %w", h.ID(), err)
				}
				out[i] = frame
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return previewLoadedMsg{err: err}
		}
		msg := previewLoadedMsg{frames: out, fps: fps}
		if soundtrack != nil && !soundtrack.Revoked() {
			msg.soundtrack = soundtrack.Path()
		}
		log.Debug("preview loaded", "frames", len(out), "fps", fps, "audio", msg.soundtrack != "")
		return msg
	}
}

func (p *preview) start(withAudio bool, soundtrack string) {
	p.playing = true
	if !withAudio || soundtrack == "" {
		return
	}
	ap, err := NewAudioPlayer(soundtrack)
	if err != nil {
		log.Warn("preview without audio", "err", err)
		return
	}
	p.audio = ap
	p.audio.Play()
}

func (p *preview) advance() {
	if p.playing && len(p.frames) > 0 {
		p.current = (p.current + 1) % len(p.frames)
		if p.current == 0 && p.audio != nil {
			p.logRestart()
		}
	}
}

func (p *preview) toggle() {
	p.playing = !p.playing
	if p.audio != nil {
		p.audio.Toggle()
	}
}

func (p *preview) reset() {
	p.current = 0
	if p.audio != nil {
		p.logRestart()
	}
}

func (p *preview) logRestart() {
	if err := p.audio.Restart(); err != nil {
		log.Warn("soundtrack", "err", err)
	}
}

func (p *preview) stop() {
	if p.audio != nil {
		p.audio.Close()
		p.audio = nil
	}
}

func (p *preview) view() string {
	if len(p.frames) == 0 {
		return "No frame to display"
	}
	return p.frames[p.current]
}

// loadFrameAsASCII fits the image into the cell box, halving the height
// because terminal cells are about twice as tall as they are wide.
func loadFrameAsASCII(path string, maxWidth, maxHeight int) (string, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", err
	}
	b := img.Bounds()
	width, height := fitCells(b.Dx(), b.Dy(), maxWidth, maxHeight)
	gray := imaging.Grayscale(imaging.Resize(img, width, height, imaging.Box))

	lines := make([]string, height)
	var sb strings.Builder
	for y := range height {
		sb.Reset()
		for x := range width {
			sb.WriteRune(pixelRune(gray.Pix[gray.PixOffset(x, y)]))
		}
		lines[y] = sb.String()
	}
	return strings.Join(lines, "\n"), nil
}

func fitCells(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW < 1 || srcH < 1 {
		return 1, 1
	}
	maxW, maxH = max(maxW, 1), max(maxH, 1)
	w := maxW
	h := srcH * w / srcW / 2
	if h > maxH {
		h = maxH
		w = srcW * h * 2 / srcH
	}
	return max(w, 1), max(h, 1)
}

func pixelRune(pixel uint8) rune {
	switch {
	case pixel < 32:
		return '█'
	case pixel < 64:
		return '▓'
	case pixel < 96:
		return '▒'
	case pixel < 128:
		return '░'
	default:
		return ' '
	}
}
