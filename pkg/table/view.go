package table

import (
	"github.com/Sternrassler/opsgrid/pkg/columns"
	"github.com/Sternrassler/opsgrid/pkg/pagination"
)

// State is the load state of a controller.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// View is an immutable snapshot of the controller. Rows, Columns and RowCount
// always come from the same fetch.
type View struct {
	State           State
	Generation      uint64
	Filter          pagination.Filter
	Page            int
	PageSize        int
	PageSizeOptions []int
	Rows            []Row
	Columns         []columns.Def
	RowCount        int
	Terminal        bool
	Meta            pagination.Meta
	Err             error
	Selected        []string
	AllSelected     bool
}

// EventKind identifies a controller event.
type EventKind string

const (
	EventLoading     EventKind = "loading"
	EventReady       EventKind = "ready"
	EventFailed      EventKind = "failed"
	EventDiscarded   EventKind = "discarded"
	EventSteppedBack EventKind = "stepped_back"
	EventClamped     EventKind = "clamped"
)

// Event reports a controller transition to an observer.
type Event struct {
	Kind       EventKind
	Generation uint64
	Page       int
	Err        error
}

// Observer receives controller events. It is called from the controller's
// goroutines without locks held and must not block.
type Observer func(Event)
