// Package oauthstate builds and parses the OAuth "state" value that ties a
// browser redirect back to the conversation that started sign-in.
package oauthstate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgellow/identity-bot/internal/bot"
	"github.com/dgellow/identity-bot/internal/session"
	"github.com/google/uuid"
)

// ErrMalformedState is returned for a state that is missing, not JSON, or
// lacks a security token or a usable address.
var ErrMalformedState = errors.New("malformed oauth state")

// State is the anti-forgery payload round-tripped through the provider
type State struct {
	SecurityToken string      `json:"securityToken"`
	Address       bot.Address `json:"address"`
}

// New mints a state for the conversation with a fresh random security token
func New(addr bot.Address) (State, error) {
	token, err := uuid.NewRandom()
	if err != nil {
		return State{}, fmt.Errorf("generating security token: %w", err)
	}
	return State{
		SecurityToken: token.String(),
		Address:       addr,
	}, nil
}

// Encode serializes the state. The result is stored verbatim in the session
// and compared byte for byte at callback time.
func (s State) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding oauth state: %w", err)
	}
	return string(b), nil
}

// Key returns the session the state belongs to
func (s State) Key() session.Key {
	return session.KeyFor(s.Address)
}

// Parse decodes a raw state query value
func Parse(raw string) (State, error) {
	if raw == "" {
		return State{}, fmt.Errorf("%w: empty", ErrMalformedState)
	}

	var s State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return State{}, fmt.Errorf("%w: not valid JSON", ErrMalformedState)
	}
	if s.SecurityToken == "" {
		return State{}, fmt.Errorf("%w: missing security token", ErrMalformedState)
	}
	if err := s.Address.Validate(); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	return s, nil
}
