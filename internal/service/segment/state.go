// Package segment turns a continuous stream of audio frames into discrete
// speech segments using an amplitude threshold.
package segment

import "fmt"

// State is the segmenter state.
type State int

const (
	// StateIdle - no segment in progress, silence is discarded.
	StateIdle State = iota
	// StateRecording - a segment is in progress, every frame is appended.
	StateRecording
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}
