// Package session owns the lifecycle of one emergency call: ephemeral
// storage, the capture pipeline and the dialogue thread.
package session

import "fmt"

// State is the lifecycle state of a session.
type State int

const (
	// StateStarting - resources allocated, pipeline not yet running.
	StateStarting State = iota
	// StateListening - frames are flowing through the pipeline.
	StateListening
	// StateStopped - terminal; storage has been removed.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateListening:
		return "LISTENING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}
