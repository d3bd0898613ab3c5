package frames

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"video2pdf/internal/engine"
	"video2pdf/internal/engine/enginetest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestExtractOrderAndJob(t *testing.T) {
	store := newStore(t)
	eng := enginetest.New(12)
	eng.Put("/output/thumbs/", nil)

	x := NewExtractor(store)
	x.Workers = 4
	handles, err := x.Extract(context.Background(), eng, []byte("video"), 5)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(handles) != 12 {
		t.Fatalf("got %d handles, want 12", len(handles))
	}
	for i, h := range handles {
		data, err := os.ReadFile(h.Path())
		if err != nil {
			t.Fatalf("read handle %d: %v", i, err)
		}
		want := "frame-" + strconv.Itoa(i+1)
		if string(data) != want {
			t.Errorf("handle %d holds %q, want %q", i, data, want)
		}
		if h.MIME() != "image/png" {
			t.Errorf("handle %d MIME = %q", i, h.MIME())
		}
	}

	jobs := eng.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	if jobs[0].Filter != "fps=5,scale=640:-1" {
		t.Errorf("filter = %q", jobs[0].Filter)
	}
	if jobs[0].Input != InputPath || jobs[0].Output != OutputPattern {
		t.Errorf("job paths = %q -> %q", jobs[0].Input, jobs[0].Output)
	}
}

func TestExtractKeepsListingOrder(t *testing.T) {
	store := newStore(t)
	eng := enginetest.New(0)
	// Listing order is lexical; the extractor must not renumber it.
	for _, name := range []string{"b.png", "a.png", "c.png"} {
		eng.Put("/output/"+name, []byte(name))
	}

	handles, err := NewExtractor(store).Extract(context.Background(), eng, []byte("video"), 10)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for i, want := range []string{"a.png", "b.png", "c.png"} {
		data, _ := os.ReadFile(handles[i].Path())
		if string(data) != want {
			t.Errorf("handle %d = %q, want %q", i, data, want)
		}
	}
}

func TestExtractExecFailure(t *testing.T) {
	store := newStore(t)
	eng := enginetest.New(3)
	eng.ExecErr = errors.New("moov atom not found")

	handles, err := NewExtractor(store).Extract(context.Background(), eng, []byte("junk"), 10)
	if !errors.Is(err, engine.ErrExec) {
		t.Fatalf("Extract = %v, want ErrExec", err)
	}
	if handles != nil {
		t.Errorf("got handles on failure")
	}
}

func TestExtractNoFrames(t *testing.T) {
	eng := enginetest.New(0)
	_, err := NewExtractor(newStore(t)).Extract(context.Background(), eng, []byte("v"), 10)
	if !errors.Is(err, ErrNoFrames) || !errors.Is(err, engine.ErrExec) {
		t.Errorf("Extract = %v, want ErrNoFrames wrapped in ErrExec", err)
	}
}

func TestExtractReadFailureLeavesNothingLive(t *testing.T) {
	store := newStore(t)
	eng := enginetest.New(8)
	eng.ReadErr = map[string]error{"/output/output_000005.png": errors.New("io error")}

	x := NewExtractor(store)
	x.Workers = 1
	_, err := x.Extract(context.Background(), eng, []byte("v"), 10)
	if !errors.Is(err, engine.ErrExec) {
		t.Fatalf("Extract = %v, want ErrExec", err)
	}
	if store.Live() != 0 {
		t.Errorf("%d handles left live after failure", store.Live())
	}
}

func TestExtractProgress(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
		total int
	)
	x := NewExtractor(newStore(t))
	x.Progress = func(done, n int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		total = n
	}
	if _, err := x.Extract(context.Background(), enginetest.New(6), []byte("v"), 2); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if calls != 6 || total != 6 {
		t.Errorf("progress called %d times with total %d, want 6/6", calls, total)
	}
}

func TestExtractSoundtrack(t *testing.T) {
	store := newStore(t)
	eng := enginetest.New(1)
	x := NewExtractor(store)
	if _, err := x.Extract(context.Background(), eng, []byte("v"), 1); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	h, err := x.ExtractSoundtrack(context.Background(), eng)
	if err != nil {
		t.Fatalf("ExtractSoundtrack: %v", err)
	}
	if h.MIME() != "audio/mpeg" || filepath.Ext(h.Path()) != ".mp3" {
		t.Errorf("soundtrack handle %q %q", h.MIME(), h.Path())
	}
	jobs := eng.Jobs()
	if !jobs[len(jobs)-1].AudioOnly {
		t.Errorf("last job should be audio only")
	}
}

func TestExtractTwoSecondClip(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	ctx := context.Background()
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	if err := engine.GenerateTestPattern(ctx, "", clip, 2, 25); err != nil {
		t.Fatalf("GenerateTestPattern: %v", err)
	}
	source, err := os.ReadFile(clip)
	if err != nil {
		t.Fatal(err)
	}

	eng, err := engine.NewLoader("", dir).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer eng.Close()

	handles, err := NewExtractor(newStore(t)).Extract(ctx, eng, source, 5)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(handles) != 10 {
		t.Fatalf("2s at 5fps gave %d frames, want 10", len(handles))
	}

	seq, err := Repeat(handles, 3)
	if err != nil {
		t.Fatalf("Repeat: %v", err)
	}
	if len(seq) != 30 {
		t.Fatalf("repeated length %d, want 30", len(seq))
	}
	for i := range 10 {
		if seq[i] != seq[i+10] || seq[i] != seq[i+20] {
			t.Errorf("block mismatch at %d", i)
		}
	}
}
