package radio

import (
	"fmt"
	"strings"
)

// StackState is the kind of radio stack failure.
type StackState string

const (
	// Busy means the stack is tearing down a previous connection. Updates
	// issued in this state are discarded; the next pass retries naturally.
	Busy               StackState = "busy_pending_disconnect"
	NotPublished       StackState = "not_published"
	AlreadyPublished   StackState = "already_published"
	Unsupported        StackState = "unsupported"
	AdapterUnavailable StackState = "adapter_unavailable"
)

// StackError is a radio stack failure with a known state.
type StackError struct {
	State StackState
	Msg   string
}

func (e *StackError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is compares StackError values by State.
func (e *StackError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StackError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrBusy               = &StackError{State: Busy}
	ErrNotPublished       = &StackError{State: NotPublished}
	ErrAlreadyPublished   = &StackError{State: AlreadyPublished}
	ErrUnsupported        = &StackError{State: Unsupported}
	ErrAdapterUnavailable = &StackError{State: AdapterUnavailable}
)

// busyMarkers are fragments stack implementations use when an update races
// a connection teardown.
var busyMarkers = []string{
	"can't update services until ble restart",
	"pending disconnect",
	"in progress",
	"not connected",
	"disconnected",
	"broken pipe",
}

// IsBusyMessage reports whether a stack error message describes the
// transient busy condition.
func IsBusyMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
