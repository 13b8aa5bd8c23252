// Package tui hosts a playback session in the terminal: the page is the
// terminal itself, the scrub bar takes mouse drags and keys drive the
// controls.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mohaanymo/rainbow/internal/models"
	"github.com/mohaanymo/rainbow/internal/player"
)

const (
	defaultBarWidth = 70
	seekStep        = 5.0

	// content box border plus padding
	contentTop  = 2
	contentLeft = 3
)

// Messages
type (
	changedMsg struct{}
	closedMsg  struct{}
	openedMsg  struct {
		session *player.Session
		err     error
	}
	tickMsg time.Time
)

// Host adapts session notifications to a bubbletea program. Sessions
// signal through small buffered channels so they never block on the
// program's Update loop.
type Host struct {
	page    *Page
	changed chan struct{}
	closed  chan struct{}
}

// NewHost creates a host with a fresh terminal page.
func NewHost() *Host {
	return &Host{
		page:    NewPage(),
		changed: make(chan struct{}, 1),
		closed:  make(chan struct{}, 1),
	}
}

// Page returns the terminal page.
func (h *Host) Page() *Page { return h.page }

// Options fills in the page, measurement and notification hooks.
func (h *Host) Options(base player.Options) player.Options {
	base.Page = h.page
	base.Measure = h.page.Measure
	base.OnChange = h.onChange
	base.OnClosed = h.onClosed
	return base
}

// Attach routes page requests to p.
func (h *Host) Attach(p *tea.Program) {
	h.page.attach(p.Send)
}

func (h *Host) onChange(player.View) {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

func (h *Host) onClosed() {
	select {
	case h.closed <- struct{}{}:
	default:
	}
}

// ModelConfig tunes what the model shows.
type ModelConfig struct {
	Title        string
	Tier         int
	MaxBandwidth int64
}

// Model is the player TUI model.
type Model struct {
	ctx    context.Context
	viewer *player.Viewer
	host   *Host
	desc   models.MediaDescriptor
	cfg    ModelConfig

	session *player.Session
	view    player.View
	picker  *TrackPicker
	width   int
	height  int
	frame   int
	barRow  int
	err     error
}

// NewModel creates a model that opens desc in viewer once started.
func NewModel(ctx context.Context, viewer *player.Viewer, host *Host, desc models.MediaDescriptor, cfg ModelConfig) *Model {
	if cfg.Title == "" {
		cfg.Title = desc.ID
	}
	return &Model{
		ctx:    ctx,
		viewer: viewer,
		host:   host,
		desc:   desc,
		cfg:    cfg,
		width:  80,
		height: 24,
	}
}

// Err returns the error that ended the program, if any.
func (m *Model) Err() error { return m.err }

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.open(), m.waitChanged(), m.waitClosed(), tick())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case openedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.session = msg.session
		m.refresh()

	case changedMsg:
		m.refresh()
		return m, m.waitChanged()

	case closedMsg:
		m.refresh()
		if m.err == nil && m.view.Err != "" {
			m.err = fmt.Errorf("%s", m.view.Err)
		}
		return m, tea.Quit

	case tickMsg:
		m.frame++
		return m, tick()

	case fullscreenMsg:
		if m.host.page.applyFullscreen(msg.on) {
			m.host.page.Dispatch(player.Input{Kind: player.InputFullscreenChange})
		}
		if msg.on {
			return m, tea.EnterAltScreen
		}
		return m, tea.ExitAltScreen

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.host.page.setBarWidth(barWidth(m.width))
		m.host.page.Dispatch(player.Input{Kind: player.InputResize})

	case tea.BlurMsg:
		if m.session != nil {
			m.session.Leave()
		}

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if key == "ctrl+c" || (key == "q" && m.picker == nil) {
		m.viewer.Close()
		return tea.Quit
	}
	s := m.session
	if s == nil {
		return nil
	}
	s.Activity()

	if m.picker != nil {
		done, chosen := m.picker.Update(msg)
		if done {
			m.picker = nil
		}
		if chosen != nil {
			// Failures are reported through the view's notice.
			_ = s.SelectTrack(chosen.Kind, chosen.ID)
		}
		return nil
	}

	switch key {
	case "esc":
		m.host.page.Dispatch(player.Input{Kind: player.InputKeyUp, Key: "Escape"})
	case " ":
		m.host.page.Dispatch(player.Input{Kind: player.InputKeyUp, Key: "Space"})
	case "m":
		s.MuteToggle()
	case "l":
		s.LoopToggle()
	case "f":
		_ = s.ToggleFullscreen()
	case "t":
		_ = s.ToggleAlternate()
	case "tab":
		if v := s.View(); v.TrackSelectable {
			m.picker = NewTrackPicker(v.Tracks)
		}
	case "left":
		m.seekBy(-seekStep)
	case "right":
		m.seekBy(seekStep)
	}
	return nil
}

func (m *Model) seekBy(delta float64) {
	v := m.session.View()
	if v.Duration <= 0 {
		return
	}
	m.session.Seek((v.CurrentTime + delta) / v.Duration)
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	s := m.session
	if s == nil {
		return
	}
	x := float64(msg.X - contentLeft)
	switch msg.Action {
	case tea.MouseActionPress:
		onBar := msg.Y == m.barRow && x >= 0 && x < float64(barWidth(m.width))
		if msg.Button == tea.MouseButtonLeft && onBar {
			s.PointerDown(x)
			return
		}
		s.Activity()
	case tea.MouseActionMotion:
		s.Activity()
		m.host.page.Dispatch(player.Input{Kind: player.InputPointerMove, X: x})
	case tea.MouseActionRelease:
		m.host.page.Dispatch(player.Input{Kind: player.InputPointerUp, X: x})
	}
}

func (m *Model) refresh() {
	if m.session != nil {
		m.view = m.session.View()
	}
}

func (m *Model) View() string {
	w := clamp(m.width-4, 60, 100)

	header := m.viewHeader(w)
	content, row := m.viewContent(w)
	m.barRow = lipgloss.Height(header) + 1 + contentTop + row

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(content)
	return b.String()
}

func (m *Model) viewHeader(w int) string {
	title := titleStyle.Render("🌈 rainbow")
	subtitle := dimStyle.Render(" - " + truncate(m.cfg.Title, w-20))

	srcLabel := labelStyle.Render("src:")
	srcValue := dimStyle.Render(truncate(m.desc.SourceURL, w-40))
	tierLabel := labelStyle.Render("tier:")
	tierValue := valueStyle.Render(fmt.Sprint(m.cfg.Tier))

	line2 := fmt.Sprintf("%s %s  %s %s", srcLabel, srcValue, tierLabel, tierValue)
	if m.cfg.MaxBandwidth > 0 {
		line2 += fmt.Sprintf("  %s %s", labelStyle.Render("cap:"), valueStyle.Render(formatBandwidth(m.cfg.MaxBandwidth)))
	}

	return headerStyle.Width(w).Render(title + subtitle + "\n" + line2)
}

// viewContent renders the player box and reports the scrub bar's line
// within it.
func (m *Model) viewContent(w int) (string, int) {
	v := m.view
	var lines []string

	lines = append(lines, m.renderStatus())
	if v.Notice != "" {
		lines = append(lines, warningStyle.Render("! "+v.Notice))
	}
	lines = append(lines, "")
	barLine := len(lines)
	lines = append(lines, renderScrub(v, barWidth(m.width)))
	lines = append(lines, m.renderTimes())

	if v.Subtitles != "" || v.Poster != "" {
		lines = append(lines, "")
		if v.Poster != "" {
			lines = append(lines, statLabelStyle.Render("poster: ")+dimStyle.Render(truncate(v.Poster, w-16)))
		}
		if v.Subtitles != "" {
			lines = append(lines, statLabelStyle.Render("subtitles: ")+dimStyle.Render(truncate(v.Subtitles, w-19)))
		}
	}

	lines = append(lines, "")
	switch {
	case m.picker != nil:
		lines = append(lines, m.picker.View())
	case v.ControlsShown:
		lines = append(lines, m.renderHelp()...)
	default:
		lines = append(lines, dimStyle.Render("move the mouse to show controls"))
	}

	return contentStyle.Width(w).Render(strings.Join(lines, "\n")), barLine
}

func (m *Model) renderStatus() string {
	v := m.view
	spin := spinnerStyle.Render(spinner[m.frame%len(spinner)])
	if m.session == nil {
		return spin + dimStyle.Render(" opening...")
	}
	switch v.State {
	case player.StateLoading:
		if v.SwitchPending {
			return spin + warningStyle.Render(" switching source...")
		}
		return spin + dimStyle.Render(" loading...")
	case player.StatePlaying:
		return successStyle.Render("▶ playing")
	case player.StatePaused:
		return normalStyle.Render("⏸ paused")
	case player.StateError:
		return errorStyle.Render("✗ " + v.Err)
	case player.StateClosed:
		if v.Err != "" {
			return errorStyle.Render("✗ " + v.Err)
		}
		return dimStyle.Render("closed")
	}
	return spin
}

func (m *Model) renderTimes() string {
	v := m.view
	var b strings.Builder
	b.WriteString(statValueStyle.Render(v.CurrentLabel))
	b.WriteString(dimStyle.Render(" / "))
	b.WriteString(statLabelStyle.Render(v.DurationLabel))

	flags := []struct {
		on    bool
		style lipgloss.Style
		text  string
	}{
		{v.Looping, loopBadge, "LOOP"},
		{v.Muted, muteBadge, "MUTED"},
		{v.AlternateActive, altBadge, "ALT"},
		{v.Fullscreen, fullBadge, "FULL"},
	}
	for _, f := range flags {
		if f.on {
			b.WriteString(" ")
			b.WriteString(f.style.Render(f.text))
		}
	}
	return b.String()
}

func (m *Model) renderHelp() []string {
	v := m.view
	line1 := keyHelpStyle.Render("space") + " play/pause  " +
		keyHelpStyle.Render("←/→") + " seek  " +
		keyHelpStyle.Render("m") + " mute  " +
		keyHelpStyle.Render("l") + " loop  " +
		keyHelpStyle.Render("f") + " fullscreen"

	var extra []string
	if v.AlternateAvailable {
		extra = append(extra, keyHelpStyle.Render("t")+" switch encoding")
	}
	if v.TrackSelectable {
		extra = append(extra, keyHelpStyle.Render("tab")+" tracks")
	}
	extra = append(extra, keyHelpStyle.Render("esc")+" close", keyHelpStyle.Render("q")+" quit")

	return []string{helpStyle.Render(line1), helpStyle.Render(strings.Join(extra, "  "))}
}

// renderScrub draws the scrub track: played cells up to the handle,
// buffered cells from the range rects and the handle itself.
func renderScrub(v player.View, width int) string {
	if width <= 0 {
		return ""
	}
	handle := clamp(int(math.Round(v.HandleX)), 0, width-1)

	const (
		cellEmpty = iota
		cellBuffered
		cellPlayed
		cellHandle
	)
	class := func(i int) int {
		switch {
		case i == handle:
			return cellHandle
		case i < handle:
			return cellPlayed
		}
		mid := (float64(i) + 0.5) / float64(width) * 100
		for _, r := range v.Buffered {
			if mid >= r.LeftPct && mid < r.LeftPct+r.WidthPct {
				return cellBuffered
			}
		}
		return cellEmpty
	}
	glyphs := map[int]struct {
		s     string
		style lipgloss.Style
	}{
		cellEmpty:    {"░", emptyStyle},
		cellBuffered: {"▒", bufferedStyle},
		cellPlayed:   {"█", playedStyle},
		cellHandle:   {"●", handleStyle},
	}

	var b strings.Builder
	start := 0
	for i := 1; i <= width; i++ {
		if i < width && class(i) == class(start) {
			continue
		}
		g := glyphs[class(start)]
		b.WriteString(g.style.Render(strings.Repeat(g.s, i-start)))
		start = i
	}
	return b.String()
}

// barWidth is the scrub track width in cells for a terminal width.
func barWidth(termWidth int) int {
	return clamp(termWidth-4, 60, 100) - 6
}

func (m *Model) open() tea.Cmd {
	return func() tea.Msg {
		s, err := m.viewer.Open(m.ctx, m.desc)
		return openedMsg{session: s, err: err}
	}
}

func (m *Model) waitChanged() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.host.changed:
			return changedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) waitClosed() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.host.closed:
			return closedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Helpers

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func truncate(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
