// Package store defines how conversations and callers are persisted.
//
// The conversation engine awaits every call synchronously, so
// implementations should keep them short.
package store

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-relay/core/conversations"
)

// ErrNotFound is returned when no session exists for a call id
var ErrNotFound = errors.New("session not found")

// DefaultPhoneNumber identifies callers whose number is unknown.
const DefaultPhoneNumber = "default"

type SessionStore interface {
	// Load returns the stored conversation of the call, or ErrNotFound.
	Load(ctx context.Context, callID string) (conversations.Log, error)
	// Save replaces the stored conversation of the call.
	Save(ctx context.Context, callID string, log conversations.Log) error
	// CreateIfAbsent creates an empty session for the call if there is
	// none and returns the stored conversation.
	CreateIfAbsent(ctx context.Context, userID, callID string) (conversations.Log, error)
	// SaveSummary records a summary of the finished call.
	SaveSummary(ctx context.Context, callID string, summary string) error
}

type UserDirectory interface {
	// GetOrCreateUser returns the id of the user with the phone number,
	// creating the user when needed.
	GetOrCreateUser(ctx context.Context, phoneNumber string) (userID string, err error)
}
