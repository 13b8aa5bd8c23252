package probe

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/mp4"
)

// MaxHeadBytes bounds how far into a stream ReadMovieHeader looks.
const MaxHeadBytes = 8 << 20

// ErrNoMoov is returned when no moov box is found within the head.
var ErrNoMoov = errors.New("probe: no moov box in stream head")

// MovieInfo is what the player needs from a moov box.
type MovieInfo struct {
	// Duration in seconds; 0 when the header leaves it unset.
	Duration float64
	// Codecs holds the sample entry type of every track ("avc1", "vp09", "mp4a", ...).
	Codecs []string
}

// ReadMovieHeader scans top-level boxes of r until it finds moov. Boxes
// before it are skipped. It gives up once MaxHeadBytes have been consumed,
// which is the usual outcome for files with moov at the end.
func ReadMovieHeader(r io.Reader) (*MovieInfo, error) {
	var consumed uint64
	for consumed < MaxHeadBytes {
		hdr, err := mp4.DecodeHeader(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrNoMoov
			}
			return nil, fmt.Errorf("decode box header: %w", err)
		}
		if hdr.Size < uint64(hdr.Hdrlen) {
			return nil, fmt.Errorf("box %s: invalid size %d", hdr.Name, hdr.Size)
		}
		payload := hdr.Size - uint64(hdr.Hdrlen)

		if hdr.Name != "moov" {
			if _, err := io.CopyN(io.Discard, r, int64(payload)); err != nil {
				return nil, ErrNoMoov
			}
			consumed += hdr.Size
			continue
		}
		if payload > MaxHeadBytes {
			return nil, fmt.Errorf("moov too large: %d bytes", payload)
		}

		buf := make([]byte, payload)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read moov: %w", err)
		}
		box, err := mp4.DecodeMoov(hdr, consumed, bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("decode moov: %w", err)
		}
		moov, ok := box.(*mp4.MoovBox)
		if !ok {
			return nil, ErrNoMoov
		}
		return movieInfo(moov), nil
	}
	return nil, ErrNoMoov
}

// InitCodecs returns the sample entry types of an init segment.
func InitCodecs(init []byte) ([]string, error) {
	f, err := mp4.DecodeFile(bytes.NewReader(init))
	if err != nil {
		return nil, fmt.Errorf("parse init segment: %w", err)
	}
	if f.Init == nil || f.Init.Moov == nil {
		return nil, ErrNoMoov
	}
	return movieInfo(f.Init.Moov).Codecs, nil
}

func movieInfo(moov *mp4.MoovBox) *MovieInfo {
	info := &MovieInfo{}
	if mvhd := moov.Mvhd; mvhd != nil && mvhd.Timescale > 0 {
		info.Duration = float64(mvhd.Duration) / float64(mvhd.Timescale)
	}
	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
			continue
		}
		stsd := trak.Mdia.Minf.Stbl.Stsd
		if stsd == nil || len(stsd.Children) == 0 {
			continue
		}
		info.Codecs = append(info.Codecs, stsd.Children[0].Type())
	}
	return info
}
