// Package session models the per-(user, conversation) authentication state:
// one ProviderSession per identity provider plus the persisted dialog position.
package session

import (
	"net/url"

	"github.com/dgellow/identity-bot/internal/bot"
)

// Key identifies a session. It is always derived from a conversation
// address, never from caller-asserted identity.
type Key struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// KeyFor returns the session key for a conversation address
func KeyFor(addr bot.Address) Key {
	return Key{
		UserID:         addr.User.ID,
		ConversationID: addr.Conversation.ID,
	}
}

// ID returns a flat identifier usable as a document id or cache key
func (k Key) ID() string {
	return url.QueryEscape(k.UserID) + ":" + url.QueryEscape(k.ConversationID)
}

// State is a position in the identity dialog
type State string

const (
	StateIdle                     State = "idle"
	StateAwaitingAction           State = "awaitingAction"
	StateAwaitingVerificationCode State = "awaitingVerificationCode"
)

// DialogState is the persisted dialog stack. Provider is empty while the
// root dispatcher is active.
type DialogState struct {
	Started  bool   `json:"started,omitempty"`
	Provider string `json:"provider,omitempty"`
	State    State  `json:"state,omitempty"`
}

// InProvider reports whether a provider dialog is active
func (d DialogState) InProvider() bool {
	return d.Provider != ""
}

// Session is everything stored under one Key
type Session struct {
	Providers map[string]ProviderSession `json:"providers,omitempty"`
	Dialog    DialogState                `json:"dialog"`
}

// New returns an empty session
func New() *Session {
	return &Session{Providers: make(map[string]ProviderSession)}
}

// Provider returns the provider's session, zero valued when absent
func (s *Session) Provider(name string) ProviderSession {
	if s == nil || s.Providers == nil {
		return ProviderSession{}
	}
	return s.Providers[name]
}

// SetProvider replaces the provider's session
func (s *Session) SetProvider(name string, ps ProviderSession) {
	if s.Providers == nil {
		s.Providers = make(map[string]ProviderSession)
	}
	s.Providers[name] = ps
}

// Clone returns a deep copy so stores never hand out shared state
func (s *Session) Clone() *Session {
	if s == nil {
		return New()
	}
	out := &Session{
		Providers: make(map[string]ProviderSession, len(s.Providers)),
		Dialog:    s.Dialog,
	}
	for name, ps := range s.Providers {
		out.Providers[name] = ps.Clone()
	}
	return out
}
