// Package models defines core data structures for playable media.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ManifestType represents the type of adaptive streaming manifest.
type ManifestType int

const (
	ManifestHLS ManifestType = iota
	ManifestDASH
)

func (t ManifestType) String() string {
	switch t {
	case ManifestHLS:
		return "HLS"
	case ManifestDASH:
		return "DASH"
	default:
		return "Unknown"
	}
}

// Manifest is a parsed adaptive streaming manifest.
type Manifest struct {
	URL      string
	Type     ManifestType
	Tracks   []*Track
	Duration time.Duration
}

// TracksFor returns the manifest tracks of the given kind, in manifest order.
func (m *Manifest) TracksFor(kind TrackKind) []*Track {
	var out []*Track
	for _, t := range m.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// TrackKind represents the kind of media track.
type TrackKind int

const (
	KindVideo TrackKind = iota
	KindAudio
	KindSubtitle
)

func (k TrackKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Track is one switchable stream (a DASH adaptation set or an HLS rendition
// group) holding interchangeable representations.
type Track struct {
	ID              string
	Kind            TrackKind
	Language        string
	Name            string
	Representations []*Representation
}

// Label renders the track the way selection surfaces list it: "id (lang)".
func (t *Track) Label() string {
	lang := t.Language
	if lang == "" {
		lang = "und"
	}
	return fmt.Sprintf("%s (%s)", t.ID, lang)
}

// Representation is one encoded rendition of a track.
type Representation struct {
	ID         string
	Codec      string
	Bandwidth  int64
	Resolution Resolution
	FrameRate  FrameRate

	Segments    []*Segment
	InitSegment *Segment

	// Media playlist URL for lazy loading (HLS variants and renditions)
	MediaPlaylistURL string
}

// IsVideo reports whether the representation carries picture dimensions.
// Audio representations have no width.
func (r *Representation) IsVideo() bool {
	return r.Resolution.Width > 0
}

// Resolution represents video dimensions.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	if r.Width == 0 && r.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// LongSide returns max(width, height).
func (r Resolution) LongSide() int {
	return max(r.Width, r.Height)
}

// ShortSide returns min(width, height).
func (r Resolution) ShortSide() int {
	return min(r.Width, r.Height)
}

// QualityLabel returns a human-readable quality label (e.g., "1080p").
func (r Resolution) QualityLabel() string {
	short := r.ShortSide()
	switch {
	case short >= 2160:
		return "4K"
	case short >= 1440:
		return "1440p"
	case short >= 1080:
		return "1080p"
	case short >= 720:
		return "720p"
	case short >= 480:
		return "480p"
	case short > 0:
		return fmt.Sprintf("%dp", short)
	default:
		return ""
	}
}

// FrameRate is a rational frame rate; a zero denominator means 1.
type FrameRate struct {
	Num int
	Den int
}

// FPS returns the frame rate in frames per second, 0 when unknown.
func (f FrameRate) FPS() float64 {
	if f.Num <= 0 {
		return 0
	}
	den := f.Den
	if den <= 0 {
		den = 1
	}
	return float64(f.Num) / float64(den)
}

// Segment represents a media segment of a representation.
type Segment struct {
	Index     int
	URL       string
	Start     time.Duration
	Duration  time.Duration
	ByteRange *ByteRange
}

// ByteRange represents HTTP Range request parameters.
type ByteRange struct {
	Start int64
	End   int64
}

// Codec families, matched by substring on the lowercased codec string.
var (
	audioCodecs    = []string{"mp4a", "aac", "ac-3", "ec-3", "opus", "vorbis", "flac", "mp3"}
	subtitleCodecs = []string{"stpp", "wvtt", "ttml", "webvtt", "vtt", "srt"}
	videoFamilies  = []struct {
		family  string
		needles []string
	}{
		{"av1", []string{"av01", "av1"}},
		{"vp9", []string{"vp09", "vp9"}},
		{"vp8", []string{"vp08", "vp8"}},
		{"avc", []string{"avc1", "avc3", "avc", "h264"}},
		{"hevc", []string{"hvc1", "hev1", "hevc", "h265"}},
	}
)

// VideoCodecFamily maps a codec string ("avc1.64001f", "vp09.00.10.08",
// "av01.0.08M.08") to its family name: av1, vp9, vp8, avc or hevc.
// It returns "" for non-video codecs.
func VideoCodecFamily(codec string) string {
	codec = strings.ToLower(strings.TrimSpace(codec))
	for _, f := range videoFamilies {
		for _, n := range f.needles {
			if strings.HasPrefix(codec, n) {
				return f.family
			}
		}
	}
	return ""
}

// HasAudioCodec reports whether codec names an audio codec.
func HasAudioCodec(codec string) bool {
	return containsAny(codec, audioCodecs)
}

// HasSubtitleCodec reports whether codec names a subtitle format.
func HasSubtitleCodec(codec string) bool {
	return containsAny(codec, subtitleCodecs)
}

func containsAny(codec string, needles []string) bool {
	codec = strings.ToLower(codec)
	for _, n := range needles {
		if strings.Contains(codec, n) {
			return true
		}
	}
	return false
}
