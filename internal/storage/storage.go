package storage

import (
	"context"
	"errors"

	"github.com/dgellow/identity-bot/internal/session"
)

// ErrConflict is returned when an optimistic transaction keeps losing to
// concurrent writers.
var ErrConflict = errors.New("concurrent session update")

// Store is the per-(user, conversation) session store.
//
// Every write touching a ProviderSession is a read-modify-write that is atomic
// per key, so an OAuth callback and a chat turn for the same conversation can
// never interleave partial writes.
type Store interface {
	// Get returns a copy of the session, empty if nothing was stored yet
	Get(ctx context.Context, key session.Key) (*session.Session, error)

	// Set replaces one provider's entry
	Set(ctx context.Context, key session.Key, provider string, data session.ProviderSession) error

	// UpdateProvider runs fn on the provider's entry and stores the result.
	// If fn returns an error nothing is written and the error is returned.
	UpdateProvider(ctx context.Context, key session.Key, provider string, fn func(*session.ProviderSession) error) error

	// SetDialog persists the dialog position
	SetDialog(ctx context.Context, key session.Key, state session.DialogState) error

	// Delete removes the whole session
	Delete(ctx context.Context, key session.Key) error

	Close() error
}
