package bootstrap

// State is the bootstrap's own lifecycle. Running and Failed are terminal.
type State int32

const (
	NotStarted State = iota
	Initializing
	Running
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is an end state for the bootstrap.
func (s State) Terminal() bool {
	return s == Running || s == Failed
}
