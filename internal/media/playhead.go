package media

import (
	"math"
	"sync"
	"time"
)

// playhead advances with wall-clock time while playing. When it reaches a
// known duration it either wraps (loop) or stops and calls onEnded.
type playhead struct {
	mu       sync.Mutex
	now      func() time.Time
	base     float64
	since    time.Time
	playing  bool
	duration float64
	loop     bool
	timer    *time.Timer
	gen      int
	onEnded  func()
}

func newPlayhead(onEnded func()) *playhead {
	return &playhead{now: time.Now, duration: math.NaN(), onEnded: onEnded}
}

func (p *playhead) position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *playhead) positionLocked() float64 {
	pos := p.base
	if p.playing {
		pos += p.now().Sub(p.since).Seconds()
	}
	if known(p.duration) && pos > p.duration {
		pos = p.duration
	}
	return pos
}

func (p *playhead) paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.playing
}

func (p *playhead) play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	if known(p.duration) && p.base >= p.duration {
		p.base = 0
	}
	p.playing = true
	p.since = p.now()
	p.armLocked()
}

func (p *playhead) pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.base = p.positionLocked()
	p.playing = false
	p.disarmLocked()
}

func (p *playhead) seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	if known(p.duration) && t > p.duration {
		t = p.duration
	}
	p.base = t
	p.since = p.now()
	p.armLocked()
}

func (p *playhead) setDuration(d float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.positionLocked()
	p.since = p.now()
	p.duration = d
	p.armLocked()
}

func (p *playhead) durationValue() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *playhead) setLoop(loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = loop
}

// reset stops playback and rewinds for a new source.
func (p *playhead) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disarmLocked()
	p.playing = false
	p.base = 0
	p.duration = math.NaN()
}

func (p *playhead) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disarmLocked()
	p.playing = false
}

func (p *playhead) armLocked() {
	p.disarmLocked()
	if !p.playing || !known(p.duration) {
		return
	}
	remaining := p.duration - p.positionLocked()
	gen := p.gen
	p.timer = time.AfterFunc(time.Duration(remaining*float64(time.Second)), func() {
		p.reachedEnd(gen)
	})
}

func (p *playhead) disarmLocked() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *playhead) reachedEnd(gen int) {
	p.mu.Lock()
	if gen != p.gen || !p.playing {
		p.mu.Unlock()
		return
	}
	if p.loop {
		p.base = 0
		p.since = p.now()
		p.armLocked()
		p.mu.Unlock()
		return
	}
	p.base = p.duration
	p.playing = false
	p.timer = nil
	p.mu.Unlock()

	if p.onEnded != nil {
		p.onEnded()
	}
}

func known(d float64) bool {
	return d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}
