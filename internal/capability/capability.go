// Package capability decides which adaptive-streaming representations a
// client of a given compatibility tier can decode.
package capability

import (
	"github.com/mohaanymo/rainbow/internal/models"
)

// Tier is an ordinal client capability class: 1 is the most capable,
// 4 the least.
type Tier int

const (
	TierBest    Tier = 1
	TierModern  Tier = 2
	TierBasic   Tier = 3
	TierMinimal Tier = 4
	DefaultTier      = TierBasic
)

// Clamp maps out-of-range values onto the nearest valid tier.
func (t Tier) Clamp() Tier {
	switch {
	case t < TierBest:
		return TierBest
	case t > TierMinimal:
		return TierMinimal
	}
	return t
}

type policy struct {
	codecs   map[string]bool
	maxFPS   float64
	maxLong  int // 0 = unconstrained
	maxShort int
}

const absoluteMaxFPS = 60

var policies = map[Tier]policy{
	TierBest: {
		codecs: map[string]bool{"av1": true, "vp9": true, "vp8": true, "avc": true},
		maxFPS: absoluteMaxFPS,
	},
	TierModern: {
		codecs:   map[string]bool{"vp9": true, "vp8": true, "avc": true},
		maxFPS:   absoluteMaxFPS,
		maxLong:  1920,
		maxShort: 1080,
	},
	TierBasic: {
		codecs:   map[string]bool{"vp8": true, "avc": true},
		maxFPS:   30,
		maxLong:  1280,
		maxShort: 720,
	},
}

func policyFor(t Tier) policy {
	t = t.Clamp()
	if t >= TierBasic {
		return policies[TierBasic]
	}
	return policies[t]
}

// Acceptable reports whether rep can be played at tier. It is a pure
// function of its arguments: adaptive elements may call it speculatively.
// Audio representations (no width) are always acceptable.
func Acceptable(rep models.Representation, tier Tier) bool {
	if !rep.IsVideo() {
		return true
	}
	p := policyFor(tier)

	if !p.codecs[models.VideoCodecFamily(rep.Codec)] {
		return false
	}
	if fps := rep.FrameRate.FPS(); fps > p.maxFPS {
		return false
	}
	if p.maxLong > 0 {
		if rep.Resolution.LongSide() > p.maxLong || rep.Resolution.ShortSide() > p.maxShort {
			return false
		}
	}
	return true
}

// Filter returns Acceptable bound to tier, in the shape adaptive
// elements accept as a representation predicate.
func Filter(tier Tier) func(models.Representation) bool {
	return func(rep models.Representation) bool {
		return Acceptable(rep, tier)
	}
}
