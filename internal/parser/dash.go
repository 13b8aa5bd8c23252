package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mohaanymo/rainbow/internal/models"
)

// DASHParser parses DASH (mpd) manifests.
type DASHParser struct {
	*fetcher
}

// CanParse checks if URL is a DASH manifest.
func (p *DASHParser) CanParse(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	return strings.Contains(lower, ".mpd") || strings.Contains(lower, "format=mpd")
}

// Parse parses a DASH manifest.
func (p *DASHParser) Parse(ctx context.Context, urlStr string) (*models.Manifest, error) {
	content, err := p.fetch(ctx, urlStr)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return ParseMPD([]byte(content), urlStr)
}

// ParseMPD converts an MPD document into a manifest, resolving relative
// URLs against manifestURL.
func ParseMPD(content []byte, manifestURL string) (*models.Manifest, error) {
	baseURL, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("parse manifest URL: %w", err)
	}

	var mpd MPD
	if err := xml.Unmarshal(content, &mpd); err != nil {
		return nil, fmt.Errorf("parse MPD: %w", err)
	}
	return convertMPD(&mpd, baseURL), nil
}

// DASH MPD XML structures

type MPD struct {
	XMLName                   xml.Name `xml:"MPD"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	Periods                   []Period `xml:"Period"`
	BaseURL                   string   `xml:"BaseURL"`
}

type Period struct {
	ID             string          `xml:"id,attr"`
	Duration       string          `xml:"duration,attr"`
	AdaptationSets []AdaptationSet `xml:"AdaptationSet"`
	BaseURL        string          `xml:"BaseURL"`
}

type AdaptationSet struct {
	ID              string           `xml:"id,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	ContentType     string           `xml:"contentType,attr"`
	Lang            string           `xml:"lang,attr"`
	Codecs          string           `xml:"codecs,attr"`
	Width           int              `xml:"width,attr"`
	Height          int              `xml:"height,attr"`
	FrameRate       string           `xml:"frameRate,attr"`
	Label           string           `xml:"Label"`
	Representations []Representation `xml:"Representation"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	BaseURL         string           `xml:"BaseURL"`
}

type Representation struct {
	ID              string           `xml:"id,attr"`
	Bandwidth       int64            `xml:"bandwidth,attr"`
	Width           int              `xml:"width,attr"`
	Height          int              `xml:"height,attr"`
	FrameRate       string           `xml:"frameRate,attr"`
	Codecs          string           `xml:"codecs,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	SegmentList     *SegmentList     `xml:"SegmentList"`
	BaseURL         string           `xml:"BaseURL"`
}

type SegmentTemplate struct {
	Media          string    `xml:"media,attr"`
	Initialization string    `xml:"initialization,attr"`
	Timescale      int       `xml:"timescale,attr"`
	Duration       int       `xml:"duration,attr"`
	StartNumber    int       `xml:"startNumber,attr"`
	Timeline       *Timeline `xml:"SegmentTimeline"`
}

type Timeline struct {
	S []SegmentTime `xml:"S"`
}

type SegmentTime struct {
	T int `xml:"t,attr"`
	D int `xml:"d,attr"`
	R int `xml:"r,attr"`
}

type SegmentList struct {
	Duration       int       `xml:"duration,attr"`
	Timescale      int       `xml:"timescale,attr"`
	Initialization *URLType  `xml:"Initialization"`
	Segments       []URLType `xml:"SegmentURL"`
}

type URLType struct {
	SourceURL string `xml:"sourceURL,attr"`
	Media     string `xml:"media,attr"`
	Range     string `xml:"range,attr"`
}

// convertMPD groups representations by adaptation set into tracks.
func convertMPD(mpd *MPD, baseURL *url.URL) *models.Manifest {
	manifest := &models.Manifest{
		URL:      baseURL.String(),
		Type:     models.ManifestDASH,
		Duration: parseDuration(mpd.MediaPresentationDuration),
	}

	for pi, period := range mpd.Periods {
		periodBase := resolveBase(baseURL, mpd.BaseURL, period.BaseURL)
		periodDuration := manifest.Duration
		if d := parseDuration(period.Duration); d > 0 {
			periodDuration = d
		}

		for ai, as := range period.AdaptationSets {
			asBase := resolveBase(periodBase, as.BaseURL)
			track := &models.Track{
				ID:       as.ID,
				Kind:     detectKind(as.MimeType, as.ContentType, as.Codecs),
				Language: as.Lang,
				Name:     strings.TrimSpace(as.Label),
			}
			if track.ID == "" {
				track.ID = fmt.Sprintf("%d.%d", pi, ai)
			}

			for _, rep := range as.Representations {
				repBase := resolveBase(asBase, rep.BaseURL)
				r := &models.Representation{
					ID:        rep.ID,
					Bandwidth: rep.Bandwidth,
					Codec:     firstNonEmpty(rep.Codecs, as.Codecs),
					FrameRate: parseFrameRate(firstNonEmpty(rep.FrameRate, as.FrameRate)),
				}
				if track.Kind == models.KindVideo {
					r.Resolution = models.Resolution{
						Width:  firstNonZero(rep.Width, as.Width),
						Height: firstNonZero(rep.Height, as.Height),
					}
				}

				tmpl := rep.SegmentTemplate
				if tmpl == nil {
					tmpl = as.SegmentTemplate
				}
				switch {
				case tmpl != nil:
					r.Segments, r.InitSegment = buildSegmentsFromTemplate(tmpl, rep.ID, repBase, periodDuration)
				case rep.SegmentList != nil:
					r.Segments, r.InitSegment = buildSegmentsFromList(rep.SegmentList, repBase)
				case rep.BaseURL != "":
					// Single-file representation (e.g. a WebVTT subtitle).
					r.Segments = []*models.Segment{{Index: 0, URL: repBase.String(), Duration: periodDuration}}
				}
				assignStarts(r.Segments)

				track.Representations = append(track.Representations, r)
			}
			manifest.Tracks = append(manifest.Tracks, track)
		}
	}

	return manifest
}

// buildSegmentsFromTemplate generates segments from a template.
func buildSegmentsFromTemplate(tmpl *SegmentTemplate, repID string, base *url.URL, total time.Duration) ([]*models.Segment, *models.Segment) {
	var segments []*models.Segment
	var initSeg *models.Segment

	if tmpl.Initialization != "" {
		initSeg = &models.Segment{
			Index: -1,
			URL:   resolveURL(base, expandTemplate(tmpl.Initialization, repID, 0, 0)),
		}
	}

	timescale := tmpl.Timescale
	if timescale == 0 {
		timescale = 1
	}
	segNum := tmpl.StartNumber
	if segNum == 0 {
		segNum = 1
	}

	if tmpl.Timeline != nil && len(tmpl.Timeline.S) > 0 {
		currentTime := 0
		for _, s := range tmpl.Timeline.S {
			if s.T > 0 {
				currentTime = s.T
			}
			repeat := s.R + 1
			if s.R < 0 {
				repeat = 1
			}
			for i := 0; i < repeat; i++ {
				segments = append(segments, &models.Segment{
					Index:    len(segments),
					URL:      resolveURL(base, expandTemplate(tmpl.Media, repID, segNum, currentTime)),
					Duration: time.Duration(s.D) * time.Second / time.Duration(timescale),
				})
				segNum++
				currentTime += s.D
			}
		}
		return segments, initSeg
	}

	if tmpl.Duration > 0 {
		segDur := time.Duration(tmpl.Duration) * time.Second / time.Duration(timescale)
		count := 1
		if total > 0 && segDur > 0 {
			count = int(math.Ceil(float64(total) / float64(segDur)))
		}
		for i := 0; i < count; i++ {
			d := segDur
			if rest := total - time.Duration(i)*segDur; total > 0 && rest < segDur {
				d = rest
			}
			segments = append(segments, &models.Segment{
				Index:    i,
				URL:      resolveURL(base, expandTemplate(tmpl.Media, repID, segNum+i, 0)),
				Duration: d,
			})
		}
	}

	return segments, initSeg
}

// buildSegmentsFromList builds segments from explicit list.
func buildSegmentsFromList(list *SegmentList, base *url.URL) ([]*models.Segment, *models.Segment) {
	var segments []*models.Segment
	var initSeg *models.Segment

	if list.Initialization != nil && list.Initialization.SourceURL != "" {
		initSeg = &models.Segment{
			Index: -1,
			URL:   resolveURL(base, list.Initialization.SourceURL),
		}
		if list.Initialization.Range != "" {
			initSeg.ByteRange = parseByteRange(list.Initialization.Range)
		}
	}

	timescale := list.Timescale
	if timescale == 0 {
		timescale = 1
	}
	segDur := time.Duration(list.Duration) * time.Second / time.Duration(timescale)

	for i, seg := range list.Segments {
		s := &models.Segment{
			Index:    i,
			URL:      resolveURL(base, firstNonEmpty(seg.Media, base.String())),
			Duration: segDur,
		}
		if seg.Range != "" {
			s.ByteRange = parseByteRange(seg.Range)
		}
		segments = append(segments, s)
	}

	return segments, initSeg
}

func detectKind(mimeType, contentType, codecs string) models.TrackKind {
	check := strings.ToLower(mimeType + contentType)
	switch {
	case strings.Contains(check, "video"):
		return models.KindVideo
	case strings.Contains(check, "audio"):
		return models.KindAudio
	case strings.Contains(check, "text"), strings.Contains(check, "subtitle"):
		return models.KindSubtitle
	case models.HasAudioCodec(codecs):
		return models.KindAudio
	case models.HasSubtitleCodec(codecs):
		return models.KindSubtitle
	default:
		return models.KindVideo
	}
}

func resolveBase(parent *url.URL, paths ...string) *url.URL {
	result := parent
	for _, p := range paths {
		if p == "" {
			continue
		}
		if rel, err := url.Parse(p); err == nil {
			result = result.ResolveReference(rel)
		}
	}
	return result
}

var numberFormat = regexp.MustCompile(`\$Number%0?(\d+)d\$`)

func expandTemplate(template string, repID string, number int, t int) string {
	result := template
	result = strings.ReplaceAll(result, "$RepresentationID$", repID)
	result = strings.ReplaceAll(result, "$Number$", strconv.Itoa(number))
	result = strings.ReplaceAll(result, "$Time$", strconv.Itoa(t))

	return numberFormat.ReplaceAllStringFunc(result, func(match string) string {
		width, _ := strconv.Atoi(numberFormat.FindStringSubmatch(match)[1])
		return fmt.Sprintf("%0*d", width, number)
	})
}

// parseDuration parses an ISO 8601 duration such as "PT1H2M3.5S".
func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	s = strings.TrimPrefix(s, "P")
	var days float64
	if idx := strings.Index(s, "D"); idx != -1 {
		days, _ = strconv.ParseFloat(s[:idx], 64)
		s = s[idx+1:]
	}
	s = strings.TrimPrefix(s, "T")

	var hours, minutes, seconds float64
	if idx := strings.Index(s, "H"); idx != -1 {
		hours, _ = strconv.ParseFloat(s[:idx], 64)
		s = s[idx+1:]
	}
	if idx := strings.Index(s, "M"); idx != -1 {
		minutes, _ = strconv.ParseFloat(s[:idx], 64)
		s = s[idx+1:]
	}
	if idx := strings.Index(s, "S"); idx != -1 {
		seconds, _ = strconv.ParseFloat(s[:idx], 64)
	}

	total := days*86400 + hours*3600 + minutes*60 + seconds
	return time.Duration(total * float64(time.Second))
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}
