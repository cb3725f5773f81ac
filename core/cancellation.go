package orchestration

import (
	"context"
	"sync"
	"time"
)

// CancellationHandle identifies one response generation of a call.
//
// The handle is shared by the call actor and the goroutine producing the
// response. Every output of the generation is emitted while holding the
// handle lock, so once Cancel returns nothing more is emitted for it.
type CancellationHandle struct {
	id        uint64
	startedAt time.Time

	mu        sync.Mutex
	cancelled bool
	completed bool
	text      string

	done      chan struct{}
	cancelCtx context.CancelFunc
}

func newCancellationHandle(id uint64, cancelCtx context.CancelFunc) *CancellationHandle {
	if cancelCtx == nil {
		cancelCtx = func() {}
	}
	return &CancellationHandle{
		id:        id,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		cancelCtx: cancelCtx,
	}
}

func (h *CancellationHandle) ID() uint64 {
	if h == nil {
		return 0
	}
	return h.id
}

// Cancel stops the generation. It returns false when the generation was
// already cancelled or had already completed.
func (h *CancellationHandle) Cancel() bool {
	if h == nil {
		return false
	}

	h.mu.Lock()
	if h.cancelled || h.completed {
		h.mu.Unlock()
		return false
	}
	h.cancelled = true
	close(h.done)
	h.mu.Unlock()

	h.cancelCtx()
	return true
}

func (h *CancellationHandle) Cancelled() bool {
	if h == nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Completed reports whether the generation emitted its end of turn, and
// returns the full response text if it did.
func (h *CancellationHandle) Completed() (string, bool) {
	if h == nil {
		return "", false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.text, h.completed
}

// Done is closed when the generation is cancelled.
func (h *CancellationHandle) Done() <-chan struct{} {
	return h.done
}

// emit runs f unless the generation was cancelled or completed.
func (h *CancellationHandle) emit(f func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancelled || h.completed {
		return false
	}
	f()
	return true
}

// complete marks the generation as finished with text and runs f, unless
// the generation was cancelled first.
func (h *CancellationHandle) complete(text string, f func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancelled || h.completed {
		return false
	}
	f()
	h.completed = true
	h.text = text
	h.cancelCtx()
	return true
}
