package player

// State is the session lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Open reports whether the session still accepts input.
func (s State) Open() bool {
	return s != StateClosed && s != StateError
}
