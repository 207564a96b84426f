package cmn

import "testing"

func TestStopChCloseIsIdempotent(t *testing.T) {
	sc := NewStopCh()
	if sc.Stopped() {
		t.Fatal("expected fresh StopCh to not be stopped")
	}

	sc.Close()
	sc.Close() // must not panic on double-close

	if !sc.Stopped() {
		t.Fatal("expected StopCh to be stopped after Close")
	}

	select {
	case <-sc.Listen():
	default:
		t.Fatal("expected Listen channel to be closed")
	}
}
