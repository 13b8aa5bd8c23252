package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mohaanymo/rainbow/internal/player"
)

// fullscreenMsg asks the model to enter or leave the alternate screen.
type fullscreenMsg struct{ on bool }

// Page is the terminal as a player page. Fullscreen maps to the
// alternate screen buffer. Inputs are dispatched by the model from its
// Update loop, never from inside a Page method.
type Page struct {
	mu        sync.Mutex
	state     player.PageState
	send      func(tea.Msg)
	nextID    int
	listeners map[player.InputKind]map[int]func(player.Input)
	barWidth  int
}

// NewPage creates a page in the terminal's default state.
func NewPage() *Page {
	return &Page{
		state:     player.PageState{Overflow: "visible", TouchAction: "auto"},
		listeners: make(map[player.InputKind]map[int]func(player.Input)),
		barWidth:  defaultBarWidth,
	}
}

// attach routes page requests to a running program.
func (p *Page) attach(send func(tea.Msg)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.send = send
}

// post delivers msg to the program without blocking the caller, which may
// hold a session lock the program's Update loop is waiting on.
func (p *Page) post(msg tea.Msg) {
	p.mu.Lock()
	send := p.send
	p.mu.Unlock()
	if send != nil {
		go send(msg)
	}
}

// State implements player.Page.
func (p *Page) State() player.PageState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState implements player.Page.
func (p *Page) SetState(st player.PageState) {
	p.mu.Lock()
	changed := st.Fullscreen != p.state.Fullscreen
	p.state.Overflow = st.Overflow
	p.state.TouchAction = st.TouchAction
	p.mu.Unlock()
	if changed {
		p.post(fullscreenMsg{on: st.Fullscreen})
	}
}

// Listen implements player.Page.
func (p *Page) Listen(kind player.InputKind, fn func(player.Input)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	if p.listeners[kind] == nil {
		p.listeners[kind] = make(map[int]func(player.Input))
	}
	p.listeners[kind][id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners[kind], id)
	}
}

// FullscreenSupported implements player.Page.
func (p *Page) FullscreenSupported() bool { return true }

// RequestFullscreen implements player.Page.
func (p *Page) RequestFullscreen() error {
	p.post(fullscreenMsg{on: true})
	return nil
}

// ExitFullscreen implements player.Page.
func (p *Page) ExitFullscreen() error {
	p.post(fullscreenMsg{on: false})
	return nil
}

// Dispatch delivers in to every listener of its kind.
func (p *Page) Dispatch(in player.Input) {
	p.mu.Lock()
	fns := make([]func(player.Input), 0, len(p.listeners[in.Kind]))
	for _, fn := range p.listeners[in.Kind] {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(in)
	}
}

// applyFullscreen records a completed fullscreen change. It reports
// whether the state changed.
func (p *Page) applyFullscreen(on bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Fullscreen == on {
		return false
	}
	p.state.Fullscreen = on
	return true
}

func (p *Page) setBarWidth(w int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.barWidth = w
}

// Measure reports the scrub track width in cells; the handle is one cell.
func (p *Page) Measure() (trackPx, handlePx float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.barWidth), 1
}
