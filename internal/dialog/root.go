package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgellow/identity-bot/internal/auth"
	"github.com/dgellow/identity-bot/internal/bot"
	"github.com/dgellow/identity-bot/internal/log"
	"github.com/dgellow/identity-bot/internal/session"
	"github.com/dgellow/identity-bot/internal/storage"
)

// Dispatcher is the entry point for every chat turn. It selects a provider
// and hands the turn to that provider's dialog until the user goes back.
//
// Turns for one conversation must not run concurrently; the caller serializes them.
type Dispatcher struct {
	store    storage.Store
	auth     *auth.Service
	identity *Identity
}

// NewDispatcher creates the root dispatcher
func NewDispatcher(store storage.Store, svc *auth.Service) *Dispatcher {
	return &Dispatcher{
		store:    store,
		auth:     svc,
		identity: NewIdentity(svc),
	}
}

// Handle processes one inbound activity and queues replies on the turn.
// Invokes are rewritten into messages first so both reach the same dialog code.
func (d *Dispatcher) Handle(ctx context.Context, turn *bot.Turn) error {
	if err := turn.Activity.Validate(); err != nil {
		return err
	}
	turn.Activity = turn.Activity.AsMessage()
	key := session.KeyFor(turn.Activity.Address)

	if turn.Activity.OriginalInvoke == nil && strings.EqualFold(strings.TrimSpace(turn.Activity.Text), CommandReset) {
		return d.reset(ctx, turn, key)
	}

	sess, err := d.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	current := sess.Dialog
	next, err := d.route(ctx, turn, key, current)
	if err != nil {
		return err
	}
	if next != current {
		if err := d.store.SetDialog(ctx, key, next); err != nil {
			return fmt.Errorf("saving dialog state: %w", err)
		}
	}
	return nil
}

// reset drops the session so the next turn starts over with the provider prompt
func (d *Dispatcher) reset(ctx context.Context, turn *bot.Turn, key session.Key) error {
	if err := d.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	log.LogInfoWithFields("dialog", "Session reset", map[string]any{
		"conversation": key.ConversationID,
	})
	turn.SendText("I've forgotten your sign-ins for this conversation.")
	return nil
}

func (d *Dispatcher) route(ctx context.Context, turn *bot.Turn, key session.Key, state session.DialogState) (session.DialogState, error) {
	if invoke := turn.Activity.OriginalInvoke; invoke != nil {
		target, err := d.invokeTarget(ctx, key, state)
		if err != nil {
			return state, err
		}
		if target == "" {
			log.LogWarnWithFields("dialog", "Invoke received with no provider dialog", map[string]any{
				"name":         invoke.Name,
				"conversation": key.ConversationID,
			})
			return state, nil
		}
		if target != state.Provider {
			state.Provider = target
			state.State = session.StateAwaitingVerificationCode
		}
		state.Started = true
	}

	if state.InProvider() {
		next, ended, err := d.identity.Continue(ctx, turn, key, state.Provider, state.State)
		if err != nil {
			return state, err
		}
		if !ended {
			state.State = next
			return state, nil
		}
		turn.SendCard(providerPrompt(d.auth.Providers()))
		return session.DialogState{Started: true}, nil
	}

	firstTurn := !state.Started
	if firstTurn {
		state.Started = true
		turn.SendCard(providerPrompt(d.auth.Providers()))
	}

	if name := d.matchProvider(turn.Activity.Text); name != "" {
		next, err := d.identity.Begin(ctx, turn, key, name)
		if err != nil {
			return state, err
		}
		state.Provider = name
		state.State = next
		return state, nil
	}

	// The greeting that opened the conversation is not an error
	if !firstTurn {
		turn.SendText("I didn't understand that.")
		turn.SendCard(providerPrompt(d.auth.Providers()))
	}
	return state, nil
}

// matchProvider finds the first registered provider named in text, ignoring case
func (d *Dispatcher) matchProvider(text string) string {
	text = strings.ToLower(text)
	if text == "" {
		return ""
	}
	for _, name := range d.auth.Providers().Names() {
		if strings.Contains(text, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

// invokeTarget picks the provider an invoke belongs to: the current dialog's
// provider if it awaits a code, otherwise any provider that does.
func (d *Dispatcher) invokeTarget(ctx context.Context, key session.Key, state session.DialogState) (string, error) {
	sess, err := d.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("loading session: %w", err)
	}

	if state.InProvider() && sess.Provider(state.Provider).PendingVerification() {
		return state.Provider, nil
	}
	for _, name := range d.auth.Providers().Names() {
		if sess.Provider(name).PendingVerification() {
			return name, nil
		}
	}
	return state.Provider, nil
}
