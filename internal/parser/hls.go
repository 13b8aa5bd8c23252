package parser

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohaanymo/rainbow/internal/models"
)

// maxPlaylistFetches bounds concurrent media playlist requests.
const maxPlaylistFetches = 4

// HLSParser parses HLS (m3u8) manifests.
type HLSParser struct {
	*fetcher
}

// CanParse checks if URL is an HLS manifest.
func (p *HLSParser) CanParse(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	return strings.Contains(lower, ".m3u8") || strings.Contains(lower, "format=m3u8")
}

// Parse parses an HLS manifest. Master playlists have every referenced
// media playlist loaded so representations carry their segments.
func (p *HLSParser) Parse(ctx context.Context, urlStr string) (*models.Manifest, error) {
	content, err := p.fetch(ctx, urlStr)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}

	if !strings.Contains(content, "#EXT-X-STREAM-INF") {
		return ParseMediaPlaylistManifest(content, urlStr), nil
	}

	manifest, err := ParseMasterPlaylist(content, urlStr)
	if err != nil {
		return nil, err
	}
	if err := p.loadMediaPlaylists(ctx, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// loadMediaPlaylists resolves the segments of every representation that
// references a media playlist.
func (p *HLSParser) loadMediaPlaylists(ctx context.Context, manifest *models.Manifest) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPlaylistFetches)

	for _, track := range manifest.Tracks {
		for _, rep := range track.Representations {
			if rep.MediaPlaylistURL == "" {
				continue
			}
			g.Go(func() error {
				content, err := p.fetch(gctx, rep.MediaPlaylistURL)
				if err != nil {
					return fmt.Errorf("fetch media playlist %s: %w", rep.MediaPlaylistURL, err)
				}
				rep.Segments, rep.InitSegment = ParseMediaPlaylist(content, rep.MediaPlaylistURL)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if video := manifest.TracksFor(models.KindVideo); len(video) > 0 && len(video[0].Representations) > 0 {
		manifest.Duration = totalDuration(video[0].Representations[0].Segments)
	}
	return nil
}

// ParseMasterPlaylist parses a master playlist without fetching media
// playlists. Variants become representations of a single video track;
// EXT-X-MEDIA renditions with a URI become audio or subtitle tracks.
func ParseMasterPlaylist(content string, manifestURL string) (*models.Manifest, error) {
	baseURL, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("parse manifest URL: %w", err)
	}

	manifest := &models.Manifest{
		URL:  baseURL.String(),
		Type: models.ManifestHLS,
	}
	video := &models.Track{ID: "video", Kind: models.KindVideo}

	var currentAttrs map[string]string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			currentAttrs = parseHLSAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))

		case strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			attrs := parseHLSAttributes(strings.TrimPrefix(line, "#EXT-X-MEDIA:"))
			// Renditions without a URI are muxed into the variants.
			if track := parseRendition(attrs, baseURL); track != nil {
				manifest.Tracks = append(manifest.Tracks, track)
			}

		case !strings.HasPrefix(line, "#") && line != "" && currentAttrs != nil:
			rep := parseVariant(currentAttrs)
			rep.MediaPlaylistURL = resolveURL(baseURL, line)
			video.Representations = append(video.Representations, rep)
			currentAttrs = nil
		}
	}

	if len(video.Representations) > 0 {
		manifest.Tracks = append([]*models.Track{video}, manifest.Tracks...)
	}
	return manifest, nil
}

// ParseMediaPlaylistManifest wraps a lone media playlist in a manifest
// with one video track.
func ParseMediaPlaylistManifest(content string, playlistURL string) *models.Manifest {
	segments, initSeg := ParseMediaPlaylist(content, playlistURL)
	return &models.Manifest{
		URL:      playlistURL,
		Type:     models.ManifestHLS,
		Duration: totalDuration(segments),
		Tracks: []*models.Track{{
			ID:   "0",
			Kind: models.KindVideo,
			Representations: []*models.Representation{{
				ID:          "0",
				Segments:    segments,
				InitSegment: initSeg,
			}},
		}},
	}
}

// parseVariant creates a representation from STREAM-INF attributes.
func parseVariant(attrs map[string]string) *models.Representation {
	rep := &models.Representation{}

	if bw, ok := attrs["BANDWIDTH"]; ok {
		rep.Bandwidth, _ = strconv.ParseInt(bw, 10, 64)
	}
	if res, ok := attrs["RESOLUTION"]; ok {
		if w, h, ok := strings.Cut(res, "x"); ok {
			rep.Resolution.Width, _ = strconv.Atoi(w)
			rep.Resolution.Height, _ = strconv.Atoi(h)
		}
	}
	if codecs, ok := attrs["CODECS"]; ok {
		rep.Codec = videoCodecOf(strings.Trim(codecs, "\""))
	}
	if fr, ok := attrs["FRAME-RATE"]; ok {
		rep.FrameRate = parseFrameRate(fr)
	}

	rep.ID = fmt.Sprintf("video_%d_%d", rep.Resolution.Height, rep.Bandwidth)
	return rep
}

// videoCodecOf picks the video entry out of a CODECS list such as
// "avc1.64001f,mp4a.40.2".
func videoCodecOf(codecs string) string {
	parts := strings.Split(codecs, ",")
	for _, c := range parts {
		c = strings.TrimSpace(c)
		if models.VideoCodecFamily(c) != "" {
			return c
		}
	}
	return strings.TrimSpace(parts[0])
}

// parseRendition creates a track from EXT-X-MEDIA attributes.
func parseRendition(attrs map[string]string, baseURL *url.URL) *models.Track {
	uri, ok := attrs["URI"]
	if !ok {
		return nil
	}

	track := &models.Track{}
	switch strings.ToUpper(attrs["TYPE"]) {
	case "AUDIO":
		track.Kind = models.KindAudio
	case "SUBTITLES", "CLOSED-CAPTIONS":
		track.Kind = models.KindSubtitle
	default:
		track.Kind = models.KindVideo
	}
	track.Name = strings.Trim(attrs["NAME"], "\"")
	track.Language = strings.Trim(attrs["LANGUAGE"], "\"")

	groupID := strings.Trim(attrs["GROUP-ID"], "\"")
	track.ID = strings.Trim(strings.Join([]string{groupID, track.Language, track.Name}, "_"), "_")
	if track.ID == "" {
		track.ID = fmt.Sprintf("%s_%s", track.Kind, uri)
	}

	track.Representations = []*models.Representation{{
		ID:               track.ID,
		MediaPlaylistURL: resolveURL(baseURL, strings.Trim(uri, "\"")),
	}}
	return track
}

var attrPattern = regexp.MustCompile(`([A-Z0-9-]+)=("[^"]*"|[^,]*)`)

// parseHLSAttributes parses HLS attribute string.
func parseHLSAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		if len(m) >= 3 {
			attrs[m[1]] = m[2]
		}
	}
	return attrs
}

// ParseMediaPlaylist parses an HLS media playlist and returns segments,
// with start times filled in, and the init segment.
func ParseMediaPlaylist(content string, baseURLStr string) ([]*models.Segment, *models.Segment) {
	baseURL, _ := url.Parse(baseURLStr)
	var segments []*models.Segment
	var initSegment *models.Segment
	var pendingRange *models.ByteRange
	var segmentDuration time.Duration

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			durStr, _, _ := strings.Cut(strings.TrimPrefix(line, "#EXTINF:"), ",")
			if dur, err := strconv.ParseFloat(durStr, 64); err == nil {
				segmentDuration = time.Duration(dur * float64(time.Second))
			}

		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			pendingRange = parseByteRange(strings.TrimPrefix(line, "#EXT-X-BYTERANGE:"))

		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			attrs := parseHLSAttributes(strings.TrimPrefix(line, "#EXT-X-MAP:"))
			if uri, ok := attrs["URI"]; ok {
				initSegment = &models.Segment{
					Index: -1,
					URL:   resolveURL(baseURL, strings.Trim(uri, "\"")),
				}
				if br, ok := attrs["BYTERANGE"]; ok {
					initSegment.ByteRange = parseByteRange(br)
				}
			}

		case !strings.HasPrefix(line, "#") && line != "":
			segments = append(segments, &models.Segment{
				Index:     len(segments),
				URL:       resolveURL(baseURL, line),
				Duration:  segmentDuration,
				ByteRange: pendingRange,
			})
			pendingRange = nil
		}
	}

	assignStarts(segments)
	return segments, initSegment
}

func totalDuration(segments []*models.Segment) time.Duration {
	var d time.Duration
	for _, s := range segments {
		d += s.Duration
	}
	return d
}
