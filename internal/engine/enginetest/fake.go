// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"video2pdf/internal/engine"
)

// Fake is an in-memory engine.Engine. Exec writes Frames numbered images
// matching the job's output pattern, or fails with ExecErr.
type Fake struct {
	Frames  int
	ExecErr error
	// ReadErr fails ReadFile for the named virtual path.
	ReadErr map[string]error

	mu     sync.Mutex
	files  map[string][]byte
	dirs   map[string]bool
	calls  int
	jobs   []engine.Job
	closed bool
}

func New(frames int) *Fake {
	return &Fake{
		Frames: frames,
		files:  make(map[string][]byte),
		dirs:   map[string]bool{"/": true},
	}
}

// Calls is the number of engine operations performed so far.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Jobs returns the executed jobs in order.
func (f *Fake) Jobs() []engine.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Job(nil), f.jobs...)
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Put seeds a file or directory (name ending in "/") into the filesystem.
func (f *Fake) Put(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.HasSuffix(name, "/") {
		f.dirs[path.Clean(name)] = true
		return
	}
	f.files[path.Clean(name)] = data
}

func (f *Fake) WriteFile(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.files[path.Clean(name)] = append([]byte(nil), data...)
	return nil
}

func (f *Fake) CreateDir(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.dirs[path.Clean(name)] = true
	return nil
}

func (f *Fake) Exec(_ context.Context, job engine.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.jobs = append(f.jobs, job)
	if f.ExecErr != nil {
		return fmt.Errorf("%w: %w", engine.ErrExec, f.ExecErr)
	}
	if _, ok := f.files[path.Clean(job.Input)]; !ok {
		return fmt.Errorf("%w: %s: no such file", engine.ErrExec, job.Input)
	}
	if job.AudioOnly {
		f.files[path.Clean(job.Output)] = []byte("mp3")
		return nil
	}
	for i := 1; i <= f.Frames; i++ {
		name := fmt.Sprintf(job.Output, i)
		f.files[path.Clean(name)] = []byte(fmt.Sprintf("frame-%d", i))
	}
	return nil
}

// ListDir lists direct children sorted by name.
func (f *Fake) ListDir(_ context.Context, name string) ([]engine.DirEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	dir := path.Clean(name)
	if !f.dirs[dir] {
		return nil, fmt.Errorf("%w: %s: no such directory", engine.ErrExec, name)
	}
	var out []engine.DirEntry
	for p := range f.files {
		if path.Dir(p) == dir {
			out = append(out, engine.DirEntry{Name: path.Base(p)})
		}
	}
	for p := range f.dirs {
		if p != dir && path.Dir(p) == dir {
			out = append(out, engine.DirEntry{Name: path.Base(p), IsDir: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) ReadFile(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.ReadErr[path.Clean(name)]; err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrExec, err)
	}
	data, ok := f.files[path.Clean(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such file", engine.ErrExec, name)
	}
	return data, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Loader hands out fakes built by New and counts Load calls.
type Loader struct {
	New func() *Fake
	Err error

	mu      sync.Mutex
	loads   int
	engines []*Fake
}

func (l *Loader) Load(context.Context) (engine.Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.Err != nil {
		return nil, l.Err
	}
	f := l.New()
	l.engines = append(l.engines, f)
	return f, nil
}

func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// Engines returns every fake handed out so far.
func (l *Loader) Engines() []*Fake {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Fake(nil), l.engines...)
}
