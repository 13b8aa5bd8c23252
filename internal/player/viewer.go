package player

import (
	"context"
	"sync"

	"github.com/mohaanymo/rainbow/internal/media"
	"github.com/mohaanymo/rainbow/internal/models"
)

// ElementFactory builds a media element suited to a descriptor.
type ElementFactory func(desc models.MediaDescriptor) media.Element

// Viewer owns at most one open session. Opening a descriptor closes the
// previous session first, restoring the page before the next one saves it.
// Session callbacks may call back into the viewer.
type Viewer struct {
	newElement ElementFactory
	base       Options

	mu      sync.Mutex
	current *Session
}

// NewViewer creates a viewer. base supplies every session option except
// Descriptor and Element.
func NewViewer(factory ElementFactory, base Options) *Viewer {
	return &Viewer{newElement: factory, base: base}
}

// Open closes any current session and starts one for desc.
func (v *Viewer) Open(ctx context.Context, desc models.MediaDescriptor) (*Session, error) {
	v.Close()

	opts := v.base
	opts.Descriptor = desc
	opts.Element = v.newElement(desc)
	s, err := NewSession(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	v.mu.Lock()
	prev := v.current
	v.current = s
	v.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return s, nil
}

// Current returns the open session, or nil.
func (v *Viewer) Current() *Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current != nil && v.current.State() == StateClosed {
		v.current = nil
	}
	return v.current
}

// Close closes the current session, if any.
func (v *Viewer) Close() {
	v.mu.Lock()
	s := v.current
	v.current = nil
	v.mu.Unlock()
	if s != nil {
		s.Close()
	}
}
