package uiexec

import (
	"errors"
	"testing"
	"time"

	"pkt.systems/inlined/schema"
)

func TestSyncRunsAndReturnsError(t *testing.T) {
	e := New()
	defer e.Close()

	ran := false
	if err := e.Sync(func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !ran {
		t.Fatalf("work did not run")
	}

	want := errors.New("boom")
	if err := e.Sync(func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected work error, got %v", err)
	}
}

func TestSyncPreservesSubmissionOrder(t *testing.T) {
	e := New()
	defer e.Close()

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		e.Async(func() { order = append(order, i) })
	}
	// Sync drains behind the queued work; order is safe to read after.
	if err := e.Sync(func() error { return nil }); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("work ran out of order: %v", order)
		}
	}
}

func TestSyncAfterClose(t *testing.T) {
	e := New()
	e.Close()
	e.Close()

	err := e.Sync(func() error { return nil })
	if !errors.Is(err, schema.ErrExecutorClosed) {
		t.Fatalf("expected ErrExecutorClosed, got %v", err)
	}
}

func TestAsyncAfterCloseDropsWork(t *testing.T) {
	e := New()
	e.Close()

	done := make(chan struct{}, 1)
	e.Async(func() { done <- struct{}{} })

	select {
	case <-done:
		t.Fatalf("work ran after close")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPanicDoesNotKillExecutor(t *testing.T) {
	e := New()
	defer e.Close()

	err := e.Sync(func() error { panic("kaboom") })
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}

	if err := e.Sync(func() error { return nil }); err != nil {
		t.Fatalf("executor unusable after panic: %v", err)
	}
}
