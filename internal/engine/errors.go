package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when a run is started while another
	// holds the slot. The existing run is unaffected.
	ErrAlreadyRunning = errors.New("a run is already active")
	// ErrHistoricalFetch wraps a failure to load the replay dataset.
	ErrHistoricalFetch = errors.New("historical data fetch failed")
	// ErrFeed wraps a live feed that terminated with an error.
	ErrFeed = errors.New("live feed failed")
	// ErrNotPausable is returned by Pause/Resume/SetDelay on runs that do
	// not support them.
	ErrNotPausable = errors.New("run does not support this control")
)

// RunError is a failure that ended a run. The wallet keeps its last
// committed state and remains queryable.
type RunError struct {
	RunID string
	Phase string // "fetch", "feed", "tick"
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed during %s: %v", e.RunID, e.Phase, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
