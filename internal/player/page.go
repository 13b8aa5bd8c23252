package player

// PageState is the page-level state a session changes while open and
// restores on close.
type PageState struct {
	Overflow    string
	TouchAction string
	Fullscreen  bool
}

// InputKind names a page-global input a session can listen to.
type InputKind int

const (
	InputKeyUp InputKind = iota
	InputResize
	InputFullscreenChange
	InputPointerMove
	InputPointerUp
)

func (k InputKind) String() string {
	switch k {
	case InputKeyUp:
		return "keyup"
	case InputResize:
		return "resize"
	case InputFullscreenChange:
		return "fullscreenchange"
	case InputPointerMove:
		return "pointermove"
	case InputPointerUp:
		return "pointerup"
	default:
		return "unknown"
	}
}

// Input is one page input. Key is set for InputKeyUp, X (pixels from the
// scrub track's left edge) for pointer inputs.
type Input struct {
	Kind InputKind
	Key  string
	X    float64
}

// Page is the host surface a session attaches to. Listeners must be
// invoked outside of any call into the Page itself.
type Page interface {
	State() PageState
	SetState(PageState)
	Listen(kind InputKind, fn func(Input)) (cancel func())
	FullscreenSupported() bool
	RequestFullscreen() error
	ExitFullscreen() error
}

// Page state a session applies while it is open.
const (
	OverflowHidden  = "hidden"
	TouchActionNone = "none"
)
