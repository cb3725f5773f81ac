package store

import (
	"context"
	"errors"
	"testing"

	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/llms"
)

func TestMemoryLoadUnknownCall(t *testing.T) {
	if _, err := NewMemory().Load(context.Background(), "CA404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	memory := NewMemory()

	if _, err := memory.CreateIfAbsent(ctx, "user", "CA1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log := conversations.Log{llms.SystemTurn("sys"), llms.UserTurn("hi")}
	if err := memory.Save(ctx, "CA1", log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log[1].Content = "mutated after save"

	loaded, err := memory.Load(ctx, "CA1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded[1].Content != "hi" {
		t.Fatalf("expected stored log to be isolated from caller, got %+v", loaded)
	}

	again, err := memory.CreateIfAbsent(ctx, "user", "CA1")
	if err != nil || len(again) != 2 {
		t.Fatalf("expected existing session to be returned, got %+v, %v", again, err)
	}
}

func TestMemorySaveUnknownCall(t *testing.T) {
	if err := NewMemory().Save(context.Background(), "CA404", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryGetOrCreateUserIsStablePerPhoneNumber(t *testing.T) {
	ctx := context.Background()
	memory := NewMemory()

	first, _ := memory.GetOrCreateUser(ctx, "+15550100")
	second, _ := memory.GetOrCreateUser(ctx, "+15550100")
	other, _ := memory.GetOrCreateUser(ctx, "")

	if first != second {
		t.Fatalf("expected the same user id for the same phone number")
	}
	if other == first {
		t.Fatalf("expected a different user for the default phone number")
	}
	if defaulted, _ := memory.GetOrCreateUser(ctx, DefaultPhoneNumber); defaulted != other {
		t.Fatalf("expected empty phone number to map to %q", DefaultPhoneNumber)
	}
}
