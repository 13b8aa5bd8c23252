package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohaanymo/rainbow/internal/models"
)

const sampleMPD = `<?xml version="1.0"?>
<MPD mediaPresentationDuration="PT10S">
  <Period>
    <AdaptationSet id="v" mimeType="video/mp4" frameRate="30">
      <SegmentTemplate media="$RepresentationID$/seg-$Number%05d$.m4s" initialization="$RepresentationID$/init.mp4" timescale="1000" duration="4000" startNumber="1"/>
      <Representation id="av1-1080" codecs="av01.0.08M.08" bandwidth="4000000" width="1920" height="1080"/>
      <Representation id="avc-720" codecs="avc1.64001f" bandwidth="2000000" width="1280" height="720" frameRate="60"/>
    </AdaptationSet>
    <AdaptationSet id="a-en" mimeType="audio/mp4" lang="en" codecs="mp4a.40.2">
      <Representation id="aud" bandwidth="128000">
        <SegmentTemplate media="aud/$Time$.m4s" initialization="aud/init.mp4" timescale="10">
          <SegmentTimeline>
            <S t="0" d="40" r="1"/>
            <S d="20"/>
          </SegmentTimeline>
        </SegmentTemplate>
      </Representation>
    </AdaptationSet>
    <AdaptationSet id="a-de" mimeType="audio/mp4" lang="de" codecs="mp4a.40.2">
      <Representation id="aud-de" bandwidth="96000">
        <SegmentList duration="5" timescale="1">
          <Initialization sourceURL="de/init.mp4" range="0-99"/>
          <SegmentURL media="de/1.m4s"/>
          <SegmentURL media="de/2.m4s"/>
        </SegmentList>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestParseMPD(t *testing.T) {
	m, err := ParseMPD([]byte(sampleMPD), "https://cdn.example/media/manifest.mpd")
	require.NoError(t, err)

	assert.Equal(t, models.ManifestDASH, m.Type)
	assert.Equal(t, 10*time.Second, m.Duration)
	require.Len(t, m.Tracks, 3)

	video := m.TracksFor(models.KindVideo)
	require.Len(t, video, 1)
	require.Len(t, video[0].Representations, 2)

	av1 := video[0].Representations[0]
	assert.Equal(t, "av01.0.08M.08", av1.Codec)
	assert.Equal(t, models.Resolution{Width: 1920, Height: 1080}, av1.Resolution)
	assert.Equal(t, 30.0, av1.FrameRate.FPS(), "frame rate inherited from adaptation set")
	assert.Equal(t, 60.0, video[0].Representations[1].FrameRate.FPS())

	// 10s at 4s per segment: 4+4+2.
	require.Len(t, av1.Segments, 3)
	assert.Equal(t, "https://cdn.example/media/av1-1080/seg-00001.m4s", av1.Segments[0].URL)
	assert.Equal(t, "https://cdn.example/media/av1-1080/seg-00003.m4s", av1.Segments[2].URL)
	assert.Equal(t, 8*time.Second, av1.Segments[2].Start)
	assert.Equal(t, 2*time.Second, av1.Segments[2].Duration)
	require.NotNil(t, av1.InitSegment)
	assert.Equal(t, "https://cdn.example/media/av1-1080/init.mp4", av1.InitSegment.URL)

	audio := m.TracksFor(models.KindAudio)
	require.Len(t, audio, 2)
	assert.Equal(t, "a-en (en)", audio[0].Label())
	assert.Zero(t, audio[0].Representations[0].Resolution)

	timeline := audio[0].Representations[0].Segments
	got := make([]string, 0, len(timeline))
	for _, s := range timeline {
		got = append(got, s.URL)
	}
	want := []string{
		"https://cdn.example/media/aud/0.m4s",
		"https://cdn.example/media/aud/40.m4s",
		"https://cdn.example/media/aud/80.m4s",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("timeline URLs mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 8*time.Second, timeline[2].Start)

	list := audio[1].Representations[0]
	require.Len(t, list.Segments, 2)
	assert.Equal(t, 5*time.Second, list.Segments[1].Start)
	assert.Equal(t, &models.ByteRange{Start: 0, End: 99}, list.InitSegment.ByteRange)
}

func TestParseMPDInvalid(t *testing.T) {
	_, err := ParseMPD([]byte("<MPD"), "https://cdn.example/m.mpd")
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"PT10S", 10 * time.Second},
		{"PT1M30.5S", 90*time.Second + 500*time.Millisecond},
		{"PT2H", 2 * time.Hour},
		{"P1DT1S", 24*time.Hour + time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExpandTemplate(t *testing.T) {
	tests := []struct {
		tmpl string
		want string
	}{
		{"$RepresentationID$/$Number$.m4s", "r1/7.m4s"},
		{"$Number%04d$.m4s", "0007.m4s"},
		{"t-$Time$.m4s", "t-1200.m4s"},
	}
	for _, tt := range tests {
		if got := expandTemplate(tt.tmpl, "r1", 7, 1200); got != tt.want {
			t.Errorf("expandTemplate(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}

func TestParseByteRange(t *testing.T) {
	tests := []struct {
		in   string
		want *models.ByteRange
	}{
		{"100@200", &models.ByteRange{Start: 200, End: 299}},
		{"50", &models.ByteRange{Start: 0, End: 49}},
		{"10-19", &models.ByteRange{Start: 10, End: 19}},
		{"x@1", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseByteRange(tt.in), tt.in)
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"25", 25},
		{"30000/1001", 30000.0 / 1001.0},
		{"29.97", 29.97},
		{"fast", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, parseFrameRate(tt.in).FPS(), 0.001, tt.in)
	}
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://cdn.example/a/b/master.m3u8")
	assert.Equal(t, "https://cdn.example/a/b/v.m3u8", resolveURL(base, "v.m3u8"))
	assert.Equal(t, "https://cdn.example/x.ts", resolveURL(base, "/x.ts"))
	assert.Equal(t, "https://other/x.ts", resolveURL(base, "https://other/x.ts"))
	assert.Equal(t, "v.m3u8", resolveURL(nil, "v.m3u8"))
}

const sampleMaster = `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",LANGUAGE="en",NAME="English",URI="audio/en.m3u8"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",LANGUAGE="fr",NAME="French",URI="audio/fr.m3u8"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="muxed",LANGUAGE="en",NAME="Muxed"
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,CODECS="mp4a.40.2,avc1.640028",FRAME-RATE=60.000,AUDIO="aud"
hi/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1500000,RESOLUTION=1280x720,CODECS="avc1.64001f,mp4a.40.2",FRAME-RATE=30,AUDIO="aud"
lo/index.m3u8
`

const sampleMedia = `#EXTM3U
#EXT-X-TARGETDURATION:4
#EXT-X-MAP:URI="init.mp4"
#EXTINF:4.0,
seg0.m4s
#EXTINF:4.0,
seg1.m4s
#EXT-X-BYTERANGE:1000@0
#EXTINF:1.5,
seg2.m4s
#EXT-X-ENDLIST
`

func TestParseMasterPlaylist(t *testing.T) {
	m, err := ParseMasterPlaylist(sampleMaster, "https://cdn.example/show/master.m3u8")
	require.NoError(t, err)

	video := m.TracksFor(models.KindVideo)
	require.Len(t, video, 1)
	reps := video[0].Representations
	require.Len(t, reps, 2)
	assert.Equal(t, "avc1.640028", reps[0].Codec, "video codec picked out of CODECS")
	assert.Equal(t, int64(5000000), reps[0].Bandwidth)
	assert.Equal(t, 60.0, reps[0].FrameRate.FPS())
	assert.Equal(t, "https://cdn.example/show/lo/index.m3u8", reps[1].MediaPlaylistURL)

	audio := m.TracksFor(models.KindAudio)
	require.Len(t, audio, 2, "rendition without URI is muxed")
	assert.Equal(t, "aud_en_English", audio[0].ID)
	assert.Equal(t, "fr", audio[1].Language)
}

func TestParseMediaPlaylist(t *testing.T) {
	segs, init := ParseMediaPlaylist(sampleMedia, "https://cdn.example/show/hi/index.m3u8")
	require.Len(t, segs, 3)
	require.NotNil(t, init)
	assert.Equal(t, "https://cdn.example/show/hi/init.mp4", init.URL)
	assert.Equal(t, 8*time.Second, segs[2].Start)
	assert.Equal(t, 1500*time.Millisecond, segs[2].Duration)
	assert.Equal(t, &models.ByteRange{Start: 0, End: 999}, segs[2].ByteRange)
	assert.Nil(t, segs[1].ByteRange)
}

func TestHLSParserLoadsMediaPlaylists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/show/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rainbow-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(sampleMaster))
	})
	media := func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(sampleMedia)) }
	for _, p := range []string{"/show/hi/index.m3u8", "/show/lo/index.m3u8", "/show/audio/en.m3u8", "/show/audio/fr.m3u8"} {
		mux.HandleFunc(p, media)
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reg := NewRegistry(srv.Client(), map[string]string{"User-Agent": "rainbow-test"})
	m, err := reg.Parse(context.Background(), srv.URL+"/show/master.m3u8")
	require.NoError(t, err)

	assert.Equal(t, 9500*time.Millisecond, m.Duration)
	for _, track := range m.Tracks {
		for _, rep := range track.Representations {
			assert.Len(t, rep.Segments, 3, rep.ID)
		}
	}
}

func TestHLSParserMediaPlaylistFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nmissing.m3u8\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := NewRegistry(srv.Client(), nil).Parse(context.Background(), srv.URL+"/master.m3u8")
	assert.ErrorContains(t, err, "HTTP 404")
}

func TestRegistryNoParser(t *testing.T) {
	_, err := NewRegistry(nil, nil).Parse(context.Background(), "https://cdn.example/video.mp4")
	assert.ErrorContains(t, err, "no parser found")
}
