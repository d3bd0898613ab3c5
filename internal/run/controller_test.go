package run

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"video2pdf/internal/engine"
	"video2pdf/internal/engine/enginetest"
	"video2pdf/internal/frames"
	"video2pdf/internal/layout"
)

type fakePrinter struct {
	mu    sync.Mutex
	docs  []*layout.Document
	err   error
	block chan struct{}
}

func (p *fakePrinter) Print(ctx context.Context, doc *layout.Document) ([]byte, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs = append(p.docs, doc)
	if p.err != nil {
		return nil, p.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

type fixture struct {
	session *Session
	loader  *enginetest.Loader
	printer *fakePrinter
	notices *recorder
	ctrl    *Controller
	input   string
	dir     string
}

func newFixture(t *testing.T, frameCount int) *fixture {
	t.Helper()
	dir := t.TempDir()
	session, err := NewSession(filepath.Join(dir, "session"))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	input := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(input, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		session: session,
		loader:  &enginetest.Loader{New: func() *enginetest.Fake { return enginetest.New(frameCount) }},
		printer: &fakePrinter{},
		notices: &recorder{},
		input:   input,
		dir:     dir,
	}
	f.ctrl = New(session, f.loader, f.printer, WithNotifier(f.notices))
	return f
}

func (f *fixture) request() Request {
	return Request{Files: []string{f.input}, FPS: "5", Repetitions: "3", ItemsPerRow: "2"}
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t, 10)
	res, err := f.ctrl.Run(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Frames != 10 || res.Tiles != 30 {
		t.Errorf("frames/tiles = %d/%d, want 10/30", res.Frames, res.Tiles)
	}
	if res.Output != filepath.Join(f.dir, "clip.pdf") {
		t.Errorf("Output = %q", res.Output)
	}
	if data, err := os.ReadFile(res.Output); err != nil || string(data) != "%PDF-1.7 fake" {
		t.Errorf("pdf not written: %v", err)
	}

	last, _, fps := f.session.Last()
	if len(last) != 10 {
		t.Errorf("session keeps %d handles, want the 10 originals", len(last))
	}
	if fps != 5 {
		t.Errorf("session fps = %d", fps)
	}
	if doc := f.session.Document(); doc == nil || doc.Tiles() != 30 {
		t.Errorf("session document = %v", doc)
	}
	if f.ctrl.State() != Idle {
		t.Errorf("state after run = %v", f.ctrl.State())
	}
	if n := f.notices.last(); n.Level != Success {
		t.Errorf("last notice = %+v", n)
	}
	engines := f.loader.Engines()
	if len(engines) != 1 || !engines[0].Closed() {
		t.Errorf("engine not closed after extraction")
	}
	if got := engines[0].Jobs()[0].Filter; got != "fps=5,scale=640:-1" {
		t.Errorf("filter = %q", got)
	}
}

func TestRunNoFileSelected(t *testing.T) {
	f := newFixture(t, 10)
	for _, files := range [][]string{nil, {}, {"  "}} {
		_, err := f.ctrl.Run(context.Background(), Request{Files: files})
		if !errors.Is(err, ErrNoFileSelected) {
			t.Errorf("Run(%q) = %v, want ErrNoFileSelected", files, err)
		}
	}
	if f.loader.Loads() != 0 {
		t.Errorf("engine loaded %d times for a run without a file", f.loader.Loads())
	}
	if n := f.notices.last(); n.Level != Error || n.Sticky {
		t.Errorf("last notice = %+v, want transient error", n)
	}
}

func TestRunTooManyFiles(t *testing.T) {
	f := newFixture(t, 10)
	_, err := f.ctrl.Run(context.Background(), Request{Files: []string{f.input, f.input}})
	if !errors.Is(err, ErrTooManyFiles) {
		t.Errorf("Run = %v, want ErrTooManyFiles", err)
	}
	if f.loader.Loads() != 0 {
		t.Errorf("engine loaded for an invalid request")
	}
}

func TestRunDefaultsBadNumbers(t *testing.T) {
	f := newFixture(t, 4)
	res, err := f.ctrl.Run(context.Background(), Request{Files: []string{f.input}, FPS: "abc", Repetitions: "-5", ItemsPerRow: "0"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Params.FPS != 10 || res.Params.Repetitions != 1 || res.Params.ItemsPerRow != 1 {
		t.Errorf("params = %+v", res.Params)
	}
	if res.Tiles != 4 {
		t.Errorf("tiles = %d, want 4", res.Tiles)
	}
}

func TestSecondRunReleasesFirstExactlyOnce(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()

	if _, err := f.ctrl.Run(ctx, f.request()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstHandles, _, _ := f.session.Last()
	firstDoc := f.session.Document()

	if _, err := f.ctrl.Run(ctx, f.request()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for i, h := range firstHandles {
		if !h.Revoked() {
			t.Errorf("first-run handle %d still live", i)
		}
		if err := h.Revoke(); !errors.Is(err, frames.ErrRevoked) {
			t.Errorf("first-run handle %d was not revoked exactly once: %v", i, err)
		}
	}
	if !firstDoc.Detached() {
		t.Errorf("first-run document not detached")
	}
	if firstDoc.Detach() {
		t.Errorf("first-run document detached again")
	}
	if live := f.session.Store().Live(); live != 6 {
		t.Errorf("store has %d live handles, want the second run's 6", live)
	}
}

func TestFailedValidationStillCleansUp(t *testing.T) {
	f := newFixture(t, 3)
	if _, err := f.ctrl.Run(context.Background(), f.request()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc := f.session.Document()

	if _, err := f.ctrl.Run(context.Background(), Request{}); !errors.Is(err, ErrNoFileSelected) {
		t.Fatalf("Run = %v", err)
	}
	if !doc.Detached() {
		t.Errorf("document survived a failed run")
	}
	if f.session.Store().Live() != 0 {
		t.Errorf("handles survived a failed run")
	}
}

func TestRunEngineLoadFailureIsSticky(t *testing.T) {
	f := newFixture(t, 3)
	f.loader.Err = engine.ErrLoad
	_, err := f.ctrl.Run(context.Background(), f.request())
	if !errors.Is(err, engine.ErrLoad) {
		t.Fatalf("Run = %v, want ErrLoad", err)
	}
	if n := f.notices.last(); !n.Sticky || n.Level != Error {
		t.Errorf("last notice = %+v, want sticky error", n)
	}
}

func TestRunExecFailureRendersNothing(t *testing.T) {
	f := newFixture(t, 3)
	f.loader.New = func() *enginetest.Fake {
		fake := enginetest.New(3)
		fake.ExecErr = errors.New("invalid data found when processing input")
		return fake
	}
	_, err := f.ctrl.Run(context.Background(), f.request())
	if !errors.Is(err, engine.ErrExec) {
		t.Fatalf("Run = %v, want ErrExec", err)
	}
	if len(f.printer.docs) != 0 {
		t.Errorf("printer called after failed extraction")
	}
	if last, _, _ := f.session.Last(); last != nil {
		t.Errorf("session kept handles from a failed run")
	}
}

func TestConcurrentRunIsRejected(t *testing.T) {
	f := newFixture(t, 2)
	f.printer.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Run(context.Background(), f.request())
		done <- err
	}()
	for !f.ctrl.Busy() {
		runtime.Gosched()
	}
	if _, err := f.ctrl.Run(context.Background(), f.request()); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Run = %v, want ErrBusy", err)
	}

	close(f.printer.block)
	if err := <-done; err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if last, _, _ := f.session.Last(); len(last) != 2 {
		t.Errorf("first run's handles were disturbed: %d", len(last))
	}
	if f.loader.Loads() != 1 {
		t.Errorf("engine loaded %d times, want 1", f.loader.Loads())
	}
}

func TestRunExplicitOutput(t *testing.T) {
	f := newFixture(t, 1)
	req := f.request()
	req.Output = filepath.Join(f.dir, "out", "binder.pdf")
	res, err := f.ctrl.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != req.Output {
		t.Errorf("Output = %q", res.Output)
	}
	if _, err := os.Stat(req.Output); err != nil {
		t.Errorf("pdf missing: %v", err)
	}
}

func TestRunSoundtrack(t *testing.T) {
	f := newFixture(t, 2)
	req := f.request()
	req.Soundtrack = true
	if _, err := f.ctrl.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, soundtrack, _ := f.session.Last()
	if soundtrack == nil {
		t.Fatalf("no soundtrack kept")
	}
	if _, err := f.ctrl.Run(context.Background(), f.request()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !soundtrack.Revoked() {
		t.Errorf("soundtrack not released by the next run")
	}
}

func TestRunRejectsOversizedRepetition(t *testing.T) {
	f := newFixture(t, 10)
	for _, reps := range []string{"1000000000000000000", "1000000000"} {
		req := f.request()
		req.Repetitions = reps
		_, err := f.ctrl.Run(context.Background(), req)
		if !errors.Is(err, frames.ErrTooManyTiles) {
			t.Fatalf("Run(repetitions=%s) = %v, want ErrTooManyTiles", reps, err)
		}
		if n := f.notices.last(); n.Level != Error || n.Sticky {
			t.Errorf("last notice = %+v, want transient error", n)
		}
		if f.ctrl.State() != Idle || f.ctrl.Busy() {
			t.Errorf("controller not ready after failure: state %v, busy %v", f.ctrl.State(), f.ctrl.Busy())
		}
	}
	if len(f.printer.docs) != 0 {
		t.Errorf("printer called for a rejected sequence")
	}

	if _, err := f.ctrl.Run(context.Background(), f.request()); err != nil {
		t.Fatalf("Run after rejection: %v", err)
	}
}
