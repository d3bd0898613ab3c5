package run

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"video2pdf/internal/frames"
	"video2pdf/internal/layout"
)

// Session owns what one run leaves behind: the frame handles, the optional
// soundtrack and the printed document. Each new run replaces them after
// releasing the previous ones.
type Session struct {
	store *frames.Store

	mu         sync.Mutex
	handles    []*frames.Handle
	soundtrack *frames.Handle
	doc        *layout.Document
	fps        int
}

// NewSession stores resources under dir.
func NewSession(dir string) (*Session, error) {
	store, err := frames.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	return &Session{store: store}, nil
}

// Store is the session's resource store.
func (s *Session) Store() *frames.Store {
	return s.store
}

// Last returns the previous run's frames (before repetition), its soundtrack
// if any, and the fps they were sampled at.
func (s *Session) Last() ([]*frames.Handle, *frames.Handle, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles, s.soundtrack, s.fps
}

// Document is the previous run's layout document, if any.
func (s *Session) Document() *layout.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *Session) keepFrames(handles []*frames.Handle, soundtrack *frames.Handle, fps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles, s.soundtrack, s.fps = handles, soundtrack, fps
}

func (s *Session) keepDocument(doc *layout.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
}

// cleanup detaches the last document, then revokes the last frames and
// soundtrack, and forgets all of them.
func (s *Session) cleanup() error {
	s.mu.Lock()
	doc, handles, soundtrack := s.doc, s.handles, s.soundtrack
	s.doc, s.handles, s.soundtrack, s.fps = nil, nil, nil, 0
	s.mu.Unlock()

	if doc != nil {
		doc.Detach()
	}
	if soundtrack != nil {
		handles = append(handles[:len(handles):len(handles)], soundtrack)
	}
	n, err := frames.RevokeAll(handles)
	if n > 0 {
		log.Debug("released previous run", "handles", n, "document", doc != nil)
	}
	return err
}

// Close releases the last run and removes the store.
func (s *Session) Close() error {
	return errors.Join(s.cleanup(), s.store.Close())
}
