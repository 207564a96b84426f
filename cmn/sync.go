package cmn

import "sync"

// StopCh is a specialized channel for stopping things: closing it is
// idempotent, so both the poll loop and a background worker can each call
// Close without coordinating who does it first.
type StopCh struct {
	once sync.Once
	ch   chan struct{}
}

// NewStopCh returns a ready-to-use StopCh.
func NewStopCh() *StopCh {
	return &StopCh{ch: make(chan struct{})}
}

// Listen returns the channel to select on; it closes exactly once.
func (sc *StopCh) Listen() <-chan struct{} {
	return sc.ch
}

// Close signals stop. Safe to call more than once or from multiple goroutines.
func (sc *StopCh) Close() {
	sc.once.Do(func() {
		close(sc.ch)
	})
}

// Stopped reports whether Close has already been called.
func (sc *StopCh) Stopped() bool {
	select {
	case <-sc.ch:
		return true
	default:
		return false
	}
}
