package action

import (
	"testing"
	"time"
)

func TestBeginRejectsWhileInProgress(t *testing.T) {
	a := New()
	if !a.Begin("1") {
		t.Fatal("expected first Begin to succeed")
	}
	if a.Begin("2") {
		t.Fatal("expected second Begin to fail while action 1 is in progress")
	}
	if a.ID() != "1" {
		t.Fatalf("expected id to remain 1, got %s", a.ID())
	}
}

func TestBeginSucceedsAfterTerminalReset(t *testing.T) {
	a := New()
	a.Begin("1")
	a.Transition(Success)
	a.Reset()
	if !a.Begin("2") {
		t.Fatal("expected Begin to succeed once the action has been reset")
	}
}

func TestCompareAndTransition(t *testing.T) {
	a := New()
	a.Begin("1")
	if !a.CompareAndTransition(Processing, Downloading) {
		t.Fatal("expected CAS from Processing to Downloading to succeed")
	}
	if a.State() != Downloading {
		t.Fatalf("expected state Downloading, got %s", a.State())
	}
	if a.CompareAndTransition(Processing, Installing) {
		t.Fatal("expected CAS from stale Processing to fail")
	}
}

func TestRequestCancelRejectsWrongID(t *testing.T) {
	a := New()
	a.Begin("1")
	if a.RequestCancel("2") {
		t.Fatal("expected cancel of unrelated action id to be rejected")
	}
	if a.State() != Processing {
		t.Fatalf("expected state to remain Processing, got %s", a.State())
	}
}

func TestRequestCancelRejectsOnceInstalling(t *testing.T) {
	a := New()
	a.Begin("1")
	a.Transition(Installing)
	if a.RequestCancel("1") {
		t.Fatal("expected cancel to be rejected once Installing")
	}
}

func TestWaitUntilTerminalOrInstallingUnblocksOnCancel(t *testing.T) {
	a := New()
	a.Begin("1")
	a.RequestCancel("1")

	done := make(chan State, 1)
	go func() {
		done <- a.WaitUntilTerminalOrInstalling()
	}()

	time.Sleep(10 * time.Millisecond)
	a.Transition(Canceled)

	select {
	case st := <-done:
		if st != Canceled {
			t.Fatalf("expected Canceled, got %s", st)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitUntilTerminalOrInstalling did not unblock")
	}
}

func TestStateInProgress(t *testing.T) {
	cases := []struct {
		s    State
		want bool
	}{
		{None, false},
		{Processing, true},
		{Downloading, true},
		{Installing, true},
		{CancelRequested, true},
		{Canceled, false},
		{Success, false},
		{Error, false},
	}
	for _, tc := range cases {
		if got := tc.s.InProgress(); got != tc.want {
			t.Errorf("%s.InProgress() = %v, want %v", tc.s, got, tc.want)
		}
	}
}

func TestStateCancelable(t *testing.T) {
	for _, s := range []State{Processing, Downloading, CancelRequested} {
		if !s.Cancelable() {
			t.Errorf("%s should be cancelable", s)
		}
	}
	for _, s := range []State{None, Installing, Canceled, Success, Error} {
		if s.Cancelable() {
			t.Errorf("%s should not be cancelable", s)
		}
	}
}
