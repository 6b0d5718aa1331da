package fault

import (
	"github.com/tliron/commonlog"
)

// Action is a handler's decision for a reported error.
type Action int

const (
	// Unwind aborts the current call frame; the caller receives the error
	// as a sentinel value. In the outermost frame it aborts the task.
	Unwind Action = iota
	// Abort aborts the whole task.
	Abort
)

func (a Action) String() string {
	if a == Abort {
		return "abort"
	}
	return "unwind"
}

// Handler receives every error raised by a task.
type Handler interface {
	Handle(e *Error) Action
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(e *Error) Action

// Handle calls f(e).
func (f HandlerFunc) Handle(e *Error) Action {
	return f(e)
}

// LogHandler logs errors and aborts the task for the kinds marked fatal.
type LogHandler struct {
	Fatal map[Kind]bool
	log   commonlog.Logger
}

// NewLogHandler creates a handler that treats the given kinds as fatal.
func NewLogHandler(fatal ...Kind) *LogHandler {
	h := &LogHandler{
		Fatal: make(map[Kind]bool, len(fatal)),
		log:   commonlog.GetLogger("sophia.fault"),
	}
	for _, k := range fatal {
		h.Fatal[k] = true
	}
	return h
}

// Handle logs e and returns Abort for fatal kinds, Unwind otherwise.
func (h *LogHandler) Handle(e *Error) Action {
	if h.Fatal[e.Kind] {
		h.log.Errorf("task %s: %s", e.Task, e.Error())
		return Abort
	}
	h.log.Warningf("task %s: %s", e.Task, e.Error())
	return Unwind
}

// ParseKinds converts configuration strings to kinds, skipping unknown
// entries and reporting them in the second result.
func ParseKinds(names []string) ([]Kind, []string) {
	var kinds []Kind
	var unknown []string
	for _, n := range names {
		k := Kind(n)
		if _, ok := messages[k]; ok {
			kinds = append(kinds, k)
		} else {
			unknown = append(unknown, n)
		}
	}
	return kinds, unknown
}
