// Package action holds the single process-wide Active Action state machine
// (spec §3 "Active Action"). Exactly one Active exists for the process
// lifetime; only the Action Coordinator transitions it, always under its
// mutex, and every other component (Download Worker, Install Driver, Poll
// Loop) only ever reads it or requests a transition through the same lock.
package action

// State is the Active Action's lifecycle state. The zero value is None.
type State uint8

const (
	None State = iota
	Processing
	Downloading
	Installing
	CancelRequested
	Canceled
	Success
	Error
)

func (s State) String() string {
	switch s {
	case None:
		return "None"
	case Processing:
		return "Processing"
	case Downloading:
		return "Downloading"
	case Installing:
		return "Installing"
	case CancelRequested:
		return "CancelRequested"
	case Canceled:
		return "Canceled"
	case Success:
		return "Success"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s ends the action's lifecycle: the coordinator
// may reset to None from any of these.
func (s State) Terminal() bool {
	switch s {
	case Canceled, Success, Error:
		return true
	default:
		return false
	}
}

// InProgress reports whether s means "an action already owns this process"
// (spec §4.4: process_deployment rejects a new deployment when state is at
// or past Processing). Terminal states are excluded: a terminal action is
// either about to be reset to None by whoever concluded it, or parked in
// Success after a do_install=false download until the next Begin; neither
// blocks a new deployment.
func (s State) InProgress() bool {
	return s != None && !s.Terminal()
}

// Cancelable reports whether a cancel request may be honored from s (spec
// §3: "Installing is non-cancelable; once entered, cancel requests are
// rejected").
func (s State) Cancelable() bool {
	return s == Processing || s == Downloading || s == CancelRequested
}
