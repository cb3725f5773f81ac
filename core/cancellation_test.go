package orchestration

import (
	"testing"
)

func TestCancellationHandleCancelIsIdempotent(t *testing.T) {
	ctxCancelled := 0
	handle := newCancellationHandle(1, func() { ctxCancelled++ })

	if !handle.Cancel() {
		t.Fatalf("expected first cancel to succeed")
	}
	if handle.Cancel() {
		t.Fatalf("expected second cancel to be a no-op")
	}
	if !handle.Cancelled() {
		t.Fatalf("expected handle to be cancelled")
	}
	if ctxCancelled != 1 {
		t.Fatalf("expected context to be cancelled once, got %d", ctxCancelled)
	}

	select {
	case <-handle.Done():
	default:
		t.Fatalf("expected done channel to be closed")
	}
}

func TestCancellationHandleSuppressesOutputAfterCancel(t *testing.T) {
	handle := newCancellationHandle(1, nil)

	emitted := 0
	if !handle.emit(func() { emitted++ }) {
		t.Fatalf("expected emit before cancel to run")
	}

	handle.Cancel()

	if handle.emit(func() { emitted++ }) {
		t.Fatalf("expected emit after cancel to be suppressed")
	}
	if handle.complete("text", func() { emitted++ }) {
		t.Fatalf("expected completion after cancel to be suppressed")
	}
	if emitted != 1 {
		t.Fatalf("expected one emitted output, got %d", emitted)
	}
	if _, completed := handle.Completed(); completed {
		t.Fatalf("expected cancelled handle not to be completed")
	}
}

func TestCancellationHandleCannotCancelCompletedGeneration(t *testing.T) {
	handle := newCancellationHandle(7, nil)

	if !handle.complete("answer", func() {}) {
		t.Fatalf("expected completion to succeed")
	}
	if handle.Cancel() {
		t.Fatalf("expected cancel after completion to be a no-op")
	}

	text, completed := handle.Completed()
	if !completed || text != "answer" {
		t.Fatalf("expected completed handle with text, got %q %v", text, completed)
	}
	if handle.emit(func() {}) {
		t.Fatalf("expected no output after completion")
	}
}

func TestNilCancellationHandle(t *testing.T) {
	var handle *CancellationHandle

	if handle.Cancel() || handle.Cancelled() || handle.ID() != 0 {
		t.Fatalf("expected nil handle to behave as absent")
	}
	if _, completed := handle.Completed(); completed {
		t.Fatalf("expected nil handle not to be completed")
	}
}
