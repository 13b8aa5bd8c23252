package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mohaanymo/rainbow/internal/models"
	"github.com/mohaanymo/rainbow/internal/player"
)

// TrackPicker selects one audio or video track from a session's track
// surface. It lives inside the player model rather than its own program.
type TrackPicker struct {
	options      []player.TrackOption
	cursor       int
	scrollOffset int
	visibleRows  int
}

// NewTrackPicker opens a picker with the cursor on the first current
// track.
func NewTrackPicker(options []player.TrackOption) *TrackPicker {
	tp := &TrackPicker{options: options, visibleRows: 10}
	for i, o := range options {
		if o.Current {
			tp.cursor = i
			break
		}
	}
	tp.adjustScroll()
	return tp
}

// Update handles a key. done is set when the picker should close; chosen
// is non-nil when a track was picked.
func (tp *TrackPicker) Update(msg tea.KeyMsg) (done bool, chosen *player.TrackOption) {
	switch msg.String() {
	case "esc", "q", "tab":
		return true, nil

	case "enter":
		if tp.cursor < len(tp.options) {
			o := tp.options[tp.cursor]
			return true, &o
		}
		return true, nil

	case "up", "k":
		if tp.cursor > 0 {
			tp.cursor--
			tp.adjustScroll()
		}

	case "down", "j":
		if tp.cursor < len(tp.options)-1 {
			tp.cursor++
			tp.adjustScroll()
		}
	}
	return false, nil
}

func (tp *TrackPicker) adjustScroll() {
	if tp.cursor < tp.scrollOffset {
		tp.scrollOffset = tp.cursor
	}
	if tp.cursor >= tp.scrollOffset+tp.visibleRows {
		tp.scrollOffset = tp.cursor - tp.visibleRows + 1
	}
}

// View renders the picker.
func (tp *TrackPicker) View() string {
	var b strings.Builder

	if tp.scrollOffset > 0 {
		b.WriteString(dimStyle.Render("  ↑ more tracks above"))
		b.WriteString("\n")
	}

	var lastKind models.TrackKind = -1
	end := min(len(tp.options), tp.scrollOffset+tp.visibleRows)
	for i := tp.scrollOffset; i < end; i++ {
		o := tp.options[i]
		if o.Kind != lastKind {
			if lastKind != -1 {
				b.WriteString("\n")
			}
			b.WriteString(subtitleStyle.Render(sectionTitle(o.Kind)))
			b.WriteString("\n")
			lastKind = o.Kind
		}
		b.WriteString(tp.renderRow(o, i == tp.cursor))
		b.WriteString("\n")
	}

	if end < len(tp.options) {
		b.WriteString(dimStyle.Render("  ↓ more tracks below"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(
		keyHelpStyle.Render("↑/↓") + " navigate  " +
			keyHelpStyle.Render("enter") + " select  " +
			keyHelpStyle.Render("esc") + " back",
	))
	return b.String()
}

func (tp *TrackPicker) renderRow(o player.TrackOption, cursor bool) string {
	var b strings.Builder

	if cursor {
		b.WriteString(selectedStyle.Render("▸ "))
	} else {
		b.WriteString("  ")
	}

	if o.Current {
		b.WriteString(successStyle.Render("(•) "))
	} else {
		b.WriteString(dimStyle.Render("( ) "))
	}

	switch o.Kind {
	case models.KindAudio:
		b.WriteString(audioBadge.Render("AUDIO"))
	default:
		b.WriteString(videoBadge.Render("VIDEO"))
	}
	b.WriteString(" ")
	b.WriteString(normalStyle.Render(o.Label))
	return b.String()
}

func sectionTitle(kind models.TrackKind) string {
	return fmt.Sprintf("%s tracks", strings.ToUpper(kind.String()[:1])+kind.String()[1:])
}

func formatBandwidth(bw int64) string {
	if bw >= 1000000 {
		return fmt.Sprintf("%.1f Mbps", float64(bw)/1000000)
	}
	if bw >= 1000 {
		return fmt.Sprintf("%.0f kbps", float64(bw)/1000)
	}
	return fmt.Sprintf("%d bps", bw)
}
