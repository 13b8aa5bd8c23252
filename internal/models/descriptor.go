package models

import (
	"path"
	"strings"
)

// MediaDescriptor identifies one playable item. It is immutable once a
// playback session has started.
type MediaDescriptor struct {
	// ID is the media identifier used as the duration probe key.
	ID           string
	SourceURL    string
	PosterURL    string
	SubtitlesURL string
	// Suffix is the file extension of the source, without the dot.
	Suffix string

	AlternateAvailable bool
	AlternateURL       string
	// Encoding is the native encoding of the source (e.g. "vp8") and
	// AlternateEncoding the one served by AlternateURL.
	Encoding          string
	AlternateEncoding string

	ProbeURL string
}

// Adaptive reports whether the source is an adaptive streaming manifest.
func (d MediaDescriptor) Adaptive() bool {
	switch strings.ToLower(strings.TrimPrefix(d.Suffix, ".")) {
	case "mpd", "m3u8":
		return true
	}
	return false
}

// CanSwitchEncoding reports whether an alternate encoding can be toggled:
// an alternate must exist and differ from the native encoding, and the
// source must not be adaptive.
func (d MediaDescriptor) CanSwitchEncoding() bool {
	if !d.AlternateAvailable || d.AlternateURL == "" || d.Adaptive() {
		return false
	}
	if d.AlternateEncoding != "" && strings.EqualFold(d.Encoding, d.AlternateEncoding) {
		return false
	}
	return true
}

// DescriptorFor builds a descriptor for a bare source URL, deriving the
// suffix from its path.
func DescriptorFor(sourceURL string) MediaDescriptor {
	p := sourceURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return MediaDescriptor{
		ID:        strings.TrimSuffix(path.Base(p), path.Ext(p)),
		SourceURL: sourceURL,
		Suffix:    strings.TrimPrefix(path.Ext(p), "."),
	}
}
