package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
)

// Soundtracks are extracted as 44.1kHz stereo to match this device.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func audioContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   44100,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("error initializing oto: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// AudioPlayer plays an extracted soundtrack alongside the preview.
type AudioPlayer struct {
	mu      sync.Mutex
	player  *oto.Player
	file    *os.File
	started bool
	paused  bool
}

// NewAudioPlayer opens the MP3 at path. The file is held open, so playback
// survives the soundtrack being released by a later run.
func NewAudioPlayer(path string) (*AudioPlayer, error) {
	ctx, err := audioContext()
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening audio file: %w", err)
	}
	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("error decoding MP3: %w", err)
	}
	return &AudioPlayer{player: ctx.NewPlayer(decoder), file: file}, nil
}

func (ap *AudioPlayer) Play() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	if ap.player == nil {
		return
	}
	ap.started, ap.paused = true, false
	ap.player.Play()
}

func (ap *AudioPlayer) Pause() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	if ap.player == nil || !ap.started || ap.paused {
		return
	}
	ap.paused = true
	ap.player.Pause()
}

// Toggle pauses a playing track and resumes a paused one.
func (ap *AudioPlayer) Toggle() {
	if ap.IsPaused() || !ap.IsStarted() {
		ap.Play()
		return
	}
	ap.Pause()
}

// Restart rewinds to the beginning, keeping the paused state.
func (ap *AudioPlayer) Restart() error {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	if ap.player == nil {
		return nil
	}
	if _, err := ap.player.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind soundtrack: %w", err)
	}
	return nil
}

func (ap *AudioPlayer) IsStarted() bool {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.started
}

func (ap *AudioPlayer) IsPaused() bool {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.started && ap.paused
}

// Close cleans up resources. The oto context lives for the process.
func (ap *AudioPlayer) Close() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	if ap.player != nil {
		ap.player.Close()
		ap.player = nil
	}
	if ap.file != nil {
		ap.file.Close()
		ap.file = nil
	}
}
