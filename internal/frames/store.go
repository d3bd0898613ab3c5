package frames

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrRevoked is returned when a handle is revoked a second time.
var ErrRevoked = errors.New("handle already revoked")

// Handle is a revocable reference to one stored resource. The zero value is
// not usable; handles come from Store.Put.
type Handle struct {
	id      string
	path    string
	mime    string
	store   *Store
	revoked atomic.Bool
}

func (h *Handle) ID() string   { return h.id }
func (h *Handle) Path() string { return h.path }
func (h *Handle) MIME() string { return h.mime }

// URL is a file:// URL addressing the resource.
func (h *Handle) URL() string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(h.path)}).String()
}

// Revoked reports whether Revoke has already succeeded.
func (h *Handle) Revoked() bool {
	return h.revoked.Load()
}

// Revoke releases the resource. Only the first call has an effect.
func (h *Handle) Revoke() error {
	if !h.revoked.CompareAndSwap(false, true) {
		return ErrRevoked
	}
	h.store.forget(h.id)
	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", h.path, err)
	}
	return nil
}

// Store materializes byte blobs as files and tracks the live handles.
type Store struct {
	dir string

	mu   sync.Mutex
	live map[string]*Handle
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	return &Store{dir: dir, live: make(map[string]*Handle)}, nil
}

// Dir is the directory resources are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes data to a new file and returns its handle.
func (s *Store) Put(data []byte, mime string) (*Handle, error) {
	id := uuid.NewString()
	p := filepath.Join(s.dir, id+extension(mime))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return nil, fmt.Errorf("store %s: %w", mime, err)
	}
	h := &Handle{id: id, path: p, mime: mime, store: s}

	s.mu.Lock()
	s.live[id] = h
	s.mu.Unlock()
	return h, nil
}

// Live is the number of handles not yet revoked.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Close revokes every live handle and removes the directory.
func (s *Store) Close() error {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.live))
	for _, h := range s.live {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Revoke(); err != nil && !errors.Is(err, ErrRevoked) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Store) forget(id string) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

// RevokeAll revokes every handle in hs and returns how many were revoked by
// this call. Duplicate references to one handle are revoked once.
func RevokeAll(hs []*Handle) (int, error) {
	var (
		n    int
		errs []error
	)
	for _, h := range hs {
		err := h.Revoke()
		switch {
		case err == nil:
			n++
		case errors.Is(err, ErrRevoked):
		default:
			errs = append(errs, err)
		}
	}
	return n, errors.Join(errs...)
}

func extension(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}
