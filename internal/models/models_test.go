package models

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeRanges(t *testing.T) {
	tests := []struct {
		name string
		in   []BufferedRange
		want []BufferedRange
	}{
		{"empty", nil, []BufferedRange{}},
		{"sorted disjoint", []BufferedRange{{0, 5}, {10, 12}}, []BufferedRange{{0, 5}, {10, 12}}},
		{"unsorted", []BufferedRange{{10, 12}, {0, 5}}, []BufferedRange{{0, 5}, {10, 12}}},
		{"overlap merged", []BufferedRange{{0, 5}, {4, 8}}, []BufferedRange{{0, 8}}},
		{"touching kept apart", []BufferedRange{{0, 1}, {1, 2}}, []BufferedRange{{0, 1}, {1, 2}}},
		{"contained", []BufferedRange{{0, 10}, {2, 3}}, []BufferedRange{{0, 10}}},
		{"drops empty and inverted", []BufferedRange{{3, 3}, {5, 4}, {1, 2}}, []BufferedRange{{1, 2}}},
		{"drops non-finite", []BufferedRange{{0, math.Inf(1)}, {math.NaN(), 2}, {6, 7}}, []BufferedRange{{6, 7}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, NormalizeRanges(tt.in)); diff != "" {
				t.Errorf("NormalizeRanges() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCoalesceRanges(t *testing.T) {
	in := []BufferedRange{{5, 8}, {0, 5}, {8, 9}, {12, 14}, {13, 15}}
	want := []BufferedRange{{0, 9}, {12, 15}}
	if diff := cmp.Diff(want, CoalesceRanges(in)); diff != "" {
		t.Errorf("CoalesceRanges() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeRangesDoesNotMutateInput(t *testing.T) {
	in := []BufferedRange{{10, 12}, {0, 5}}
	NormalizeRanges(in)
	assert.Equal(t, []BufferedRange{{10, 12}, {0, 5}}, in)
}

func TestVideoCodecFamily(t *testing.T) {
	tests := []struct {
		codec string
		want  string
	}{
		{"av01.0.08M.08", "av1"},
		{"AV1", "av1"},
		{"vp09.00.10.08", "vp9"},
		{"vp9", "vp9"},
		{"vp8", "vp8"},
		{"avc1.64001f", "avc"},
		{"avc3.4d401e", "avc"},
		{"h264", "avc"},
		{"hvc1.1.6.L93.B0", "hevc"},
		{"mp4a.40.2", ""},
		{"opus", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := VideoCodecFamily(tt.codec); got != tt.want {
			t.Errorf("VideoCodecFamily(%q) = %q, want %q", tt.codec, got, tt.want)
		}
	}
}

func TestResolutionSides(t *testing.T) {
	portrait := Resolution{Width: 720, Height: 1280}
	assert.Equal(t, 1280, portrait.LongSide())
	assert.Equal(t, 720, portrait.ShortSide())
	assert.Equal(t, "720p", portrait.QualityLabel())
	assert.Equal(t, "", Resolution{}.String())
}

func TestFrameRateFPS(t *testing.T) {
	assert.InDelta(t, 29.97, FrameRate{Num: 30000, Den: 1001}.FPS(), 0.01)
	assert.Equal(t, 25.0, FrameRate{Num: 25}.FPS())
	assert.Zero(t, FrameRate{}.FPS())
}

func TestDescriptorFor(t *testing.T) {
	d := DescriptorFor("https://media.example/files/clip.mpd?token=1")
	assert.Equal(t, "clip", d.ID)
	assert.Equal(t, "mpd", d.Suffix)
	assert.True(t, d.Adaptive())
	assert.False(t, d.CanSwitchEncoding())
}

func TestCanSwitchEncoding(t *testing.T) {
	d := MediaDescriptor{Suffix: "mkv", AlternateAvailable: true, AlternateURL: "/vp8/x", AlternateEncoding: "vp8"}
	assert.True(t, d.CanSwitchEncoding())

	d.Encoding = "VP8"
	assert.False(t, d.CanSwitchEncoding(), "already in the alternate encoding")

	d = MediaDescriptor{Suffix: "mkv", AlternateURL: "/vp8/x"}
	assert.False(t, d.CanSwitchEncoding(), "alternate not advertised")
}

func TestTrackLabel(t *testing.T) {
	assert.Equal(t, "2 (en)", (&Track{ID: "2", Language: "en"}).Label())
	assert.Equal(t, "3 (und)", (&Track{ID: "3"}).Label())
}
