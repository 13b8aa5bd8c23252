package player

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/mohaanymo/rainbow/internal/media"
	"github.com/mohaanymo/rainbow/internal/models"
)

// TrackOption is one entry of the track selection surface.
type TrackOption struct {
	Kind     models.TrackKind
	ID       string
	Language string
	Label    string
	Current  bool
}

// selectableKinds are the kinds offered for manual selection, in order.
var selectableKinds = []models.TrackKind{models.KindVideo, models.KindAudio}

// TrackCoordinator offers manual audio/video track selection for adaptive
// sources. Track lists are read when the element reports them loaded.
type TrackCoordinator struct {
	el     media.AdaptiveElement
	tracks map[models.TrackKind][]*models.Track
}

// NewTrackCoordinator binds a coordinator to an adaptive element.
func NewTrackCoordinator(el media.AdaptiveElement) *TrackCoordinator {
	return &TrackCoordinator{el: el, tracks: make(map[models.TrackKind][]*models.Track)}
}

// Refresh re-reads the element's track lists.
func (tc *TrackCoordinator) Refresh() {
	for _, kind := range selectableKinds {
		tc.tracks[kind] = tc.el.TracksFor(kind)
	}
}

// Selectable reports whether any kind offers more than one track.
func (tc *TrackCoordinator) Selectable() bool {
	return lo.SomeBy(selectableKinds, func(k models.TrackKind) bool {
		return len(tc.tracks[k]) > 1
	})
}

// Surface lists every track of each selectable kind with the current
// one marked. Kinds with a single track are listed too, so the surface
// shows what is playing.
func (tc *TrackCoordinator) Surface() []TrackOption {
	if !tc.Selectable() {
		return nil
	}
	var out []TrackOption
	for _, kind := range selectableKinds {
		current := tc.el.CurrentTrackFor(kind)
		out = append(out, lo.Map(tc.tracks[kind], func(t *models.Track, _ int) TrackOption {
			return TrackOption{
				Kind:     kind,
				ID:       t.ID,
				Language: t.Language,
				Label:    t.Label(),
				Current:  current != nil && current.ID == t.ID,
			}
		})...)
	}
	return out
}

// Select switches the current track of kind and reseeks in place so the
// element drops buffered media of the old track. A failed switch restores
// the previous track.
func (tc *TrackCoordinator) Select(kind models.TrackKind, id string) error {
	prev := tc.el.CurrentTrackFor(kind)
	if prev != nil && prev.ID == id {
		return nil
	}
	if err := tc.el.SetCurrentTrack(kind, id); err != nil {
		if prev != nil {
			if rerr := tc.el.SetCurrentTrack(kind, prev.ID); rerr != nil {
				err = fmt.Errorf("%w (restore %q: %v)", err, prev.ID, rerr)
			}
		}
		return newError(KindMedia, "select track", err)
	}
	tc.el.Seek(tc.el.CurrentTime())
	return nil
}
