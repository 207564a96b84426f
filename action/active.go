package action

import "sync"

// Artifact is kept here (rather than in the download package) so that
// Active can hold a reference without creating an import cycle between
// action and download — the coordinator is the only thing that interprets
// Artifact's fields; to action, it's inert payload.
type Artifact struct {
	Name        string
	Version     string
	Size        int64
	SHA1        string
	DownloadURL string
	FeedbackURL string
	// MaintenanceWindow is one of "available", "unavailable", "" (absent)
	// or any other string the server sent (spec §9 open question: unknown
	// values are treated as "unavailable").
	MaintenanceWindow string
	DoInstall         bool
}

// Active is the single process-wide Active Action (spec §3). Every field is
// guarded by mu; State transitions additionally broadcast on cond so that
// process_cancel can block until the worker observes CancelRequested.
type Active struct {
	mu   sync.Mutex
	cond *sync.Cond

	id          string
	state       State
	artifact    *Artifact
	lastOutcome State
	stagedID    string
}

// New returns a fresh Active Action in state None.
func New() *Active {
	a := &Active{}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Snapshot is a consistent, lock-free-to-read copy of Active's fields.
type Snapshot struct {
	ID       string
	State    State
	Artifact *Artifact
}

// Get returns a snapshot of the current state under the lock.
func (a *Active) Get() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{ID: a.id, State: a.state, Artifact: a.artifact}
}

// Begin starts a new action with id, moving None -> Processing. Returns
// false (without mutating anything) if an action is already in progress —
// the caller maps that to the AlreadyInProgress lifecycle error.
func (a *Active) Begin(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.InProgress() {
		return false
	}
	a.id = id
	a.state = Processing
	a.artifact = nil
	a.cond.Broadcast()
	return true
}

// SetArtifact attaches the artifact to the in-progress action (called once
// process_deployment has parsed the deployment resource).
func (a *Active) SetArtifact(art *Artifact) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.artifact = art
}

// Transition moves the action to next unconditionally, broadcasting to any
// waiter (process_cancel blocked on the condvar). Only the coordinator
// (directly, or through the worker/driver callbacks it wires up) calls this.
// Reaching a terminal state records it as LastOutcome.
func (a *Active) Transition(next State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = next
	if next.Terminal() {
		a.lastOutcome = next
	}
	a.cond.Broadcast()
}

// CompareAndTransition moves the action to next only if its current state
// equals expect; reports whether the transition happened. Used at worker/
// driver checkpoints that must not clobber a state change made concurrently
// by the coordinator (e.g. a cancel arriving between the check and the
// transition).
func (a *Active) CompareAndTransition(expect, next State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != expect {
		return false
	}
	a.state = next
	a.cond.Broadcast()
	return true
}

// RequestCancel moves a cancelable action to CancelRequested and reports
// whether it did so; false means the action was already past the point of
// no return (Installing or a terminal state).
func (a *Active) RequestCancel(matchID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.id != matchID {
		return false
	}
	if !a.state.Cancelable() {
		return false
	}
	a.state = CancelRequested
	a.cond.Broadcast()
	return true
}

// WaitUntilTerminalOrInstalling blocks until the action reaches Canceled or
// any other terminal state, or Installing (spec §4.4 process_cancel: "wait
// until the worker observes it and advances to Canceled or another terminal
// state"). Installing is included so that the wait also ends should the
// action reach installation rather than cancellation; the coordinator's
// cancel handler treats that as "rejected".
func (a *Active) WaitUntilTerminalOrInstalling() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	for !a.state.Terminal() && a.state != Installing {
		a.cond.Wait()
	}
	return a.state
}

// Reset returns the action to None, ready for the next deployment. Called
// by the coordinator after cleanup following a terminal outcome.
func (a *Active) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Terminal() {
		a.lastOutcome = a.state
	}
	a.id = ""
	a.state = None
	a.artifact = nil
	a.cond.Broadcast()
}

// Fail resets a non-terminal in-progress action back to None, recording
// Error as its outcome. Used by rejection paths (protocol errors,
// insufficient disk space, transport failures fetching the deployment
// resource) that conclude the action without ever transitioning it through
// the Error state themselves.
func (a *Active) Fail() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastOutcome = Error
	a.id = ""
	a.state = None
	a.artifact = nil
	a.cond.Broadcast()
}

// LastOutcome returns the terminal state the most recently concluded action
// reached (Success, Error or Canceled), or None if no action has completed
// yet. Run-once mode uses this to decide the process exit code (spec §4.3,
// §7 "any of {poll failure, process-deployment failure, download or install
// failure} maps to exit code 1").
func (a *Active) LastOutcome() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastOutcome
}

// WaitUntilIdle blocks until the action is no longer in progress: reset to
// None, or parked in a terminal state (e.g. a retained do_install=false
// bundle awaiting its next Begin). Run-once mode uses this to wait for a
// background Download Worker or Install Driver hand-off spawned by
// process_deployment to actually finish before the process exits (spec
// §4.3: "complete one tick, including any download/install thread spawned").
func (a *Active) WaitUntilIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.state.InProgress() {
		a.cond.Wait()
	}
}

// MarkStaged records id as the action whose bundle is already on disk,
// downloaded but not installed (do_install=false, spec §4.4 "update=skip
// and id unchanged: still-waiting"). StagedID reports it back on a later
// poll so process_deployment can tell a repeat offer of the same action
// apart from a superseding one and skip re-downloading.
func (a *Active) MarkStaged(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stagedID = id
}

// StagedID returns the id most recently passed to MarkStaged, or "" if no
// do_install=false bundle is currently staged.
func (a *Active) StagedID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stagedID
}

// ID returns the current action id under the lock.
func (a *Active) ID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

// State returns the current state under the lock.
func (a *Active) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}
