package interrupt

import (
	"context"
	"testing"
	"time"
)

func TestFromContextReportsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := FromContext(ctx)
	if h.IsInterrupted() {
		t.Fatalf("expected not interrupted before cancel")
	}
	cancel()
	if !h.IsInterrupted() {
		t.Fatalf("expected interrupted after cancel")
	}
}

func TestFromContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	h := FromContext(ctx)
	time.Sleep(30 * time.Millisecond)
	if !h.IsInterrupted() {
		t.Fatalf("expected interrupted after deadline elapses")
	}
}

func TestFlagIsSticky(t *testing.T) {
	var f Flag
	if f.IsInterrupted() {
		t.Fatalf("expected fresh flag to be clear")
	}
	f.Set()
	if !f.IsInterrupted() {
		t.Fatalf("expected flag set after Set()")
	}
}

func TestNeverNeverInterrupts(t *testing.T) {
	if Never.IsInterrupted() {
		t.Fatalf("expected Never to never report interrupted")
	}
}
