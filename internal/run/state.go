package run

// State is the controller's current phase.
type State int32

const (
	Idle State = iota
	Validating
	Extracting
	Repeating
	Rendering
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Extracting:
		return "extracting"
	case Repeating:
		return "repeating"
	case Rendering:
		return "rendering"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Level is the severity of a notice.
type Level int

const (
	Info Level = iota
	Success
	Error
)

// Notice is a user-facing status message.
type Notice struct {
	State State
	Level Level
	Text  string
	// Sticky notices stay until dismissed.
	Sticky bool
}

// Notifier receives notices as a run progresses.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discard struct{}

func (discard) Notify(Notice) {}
