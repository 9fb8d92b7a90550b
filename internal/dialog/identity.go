// Package dialog drives the conversation: a root dispatcher that picks an
// identity provider, and a per-provider state machine for sign-in, profile
// display and sign-out.
package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgellow/identity-bot/internal/auth"
	"github.com/dgellow/identity-bot/internal/bot"
	"github.com/dgellow/identity-bot/internal/crypto"
	"github.com/dgellow/identity-bot/internal/idp"
	"github.com/dgellow/identity-bot/internal/log"
	"github.com/dgellow/identity-bot/internal/session"
)

// Identity is the state machine for a single provider's dialog. It holds no
// per-conversation state; the current state is passed in and returned.
type Identity struct {
	auth *auth.Service
}

// NewIdentity creates the provider dialog
func NewIdentity(svc *auth.Service) *Identity {
	return &Identity{auth: svc}
}

// Begin enters the provider's dialog: it shows the profile when signed in, a
// sign-in hint otherwise, followed by the action menu.
func (d *Identity) Begin(ctx context.Context, turn *bot.Turn, key session.Key, providerName string) (session.State, error) {
	p, ok := d.auth.Providers().Get(providerName)
	if !ok {
		return session.StateIdle, fmt.Errorf("%w: %s", auth.ErrUnknownProvider, providerName)
	}
	return d.showProfile(ctx, turn, key, p)
}

// Continue handles one turn inside the provider's dialog. ended is true when
// the user went back to provider selection.
func (d *Identity) Continue(ctx context.Context, turn *bot.Turn, key session.Key, providerName string, state session.State) (next session.State, ended bool, err error) {
	p, ok := d.auth.Providers().Get(providerName)
	if !ok {
		log.LogWarnWithFields("dialog", "Dialog refers to an unregistered provider", map[string]any{
			"provider": providerName,
		})
		return session.StateIdle, true, nil
	}

	msg := turn.Activity
	if msg.OriginalInvoke != nil {
		code, ok := msg.OriginalInvoke.VerificationState()
		if !ok {
			log.LogWarnWithFields("dialog", "Received unrecognized invoke", map[string]any{
				"name": msg.OriginalInvoke.Name,
			})
			return state, false, nil
		}
		next, err := d.verify(ctx, turn, key, p, code)
		return next, false, err
	}

	switch command(msg.Text) {
	case CommandSignIn:
		next, err = d.signIn(ctx, turn, key, p)
		return next, false, err
	case CommandShowProfile:
		next, err = d.showProfile(ctx, turn, key, p)
		return next, false, err
	case CommandSignOut:
		next, err = d.signOut(ctx, turn, key, p)
		return next, false, err
	case CommandBack:
		return session.StateIdle, true, nil
	}

	pending, err := d.auth.PendingVerification(ctx, key, p.Name())
	if err != nil {
		return state, false, err
	}
	if pending || state == session.StateAwaitingVerificationCode {
		next, err = d.verify(ctx, turn, key, p, crypto.FindVerificationCode(msg.Text))
		return next, false, err
	}

	turn.SendText("I didn't understand. Please select an option below.")
	turn.SendCard(actionMenu(p.DisplayName()))
	return session.StateAwaitingAction, false, nil
}

func command(text string) string {
	text = strings.TrimSpace(text)
	for _, c := range []string{CommandSignIn, CommandShowProfile, CommandSignOut, CommandBack} {
		if strings.EqualFold(text, c) {
			return c
		}
	}
	return ""
}

func (d *Identity) signIn(ctx context.Context, turn *bot.Turn, key session.Key, p idp.Provider) (session.State, error) {
	token, err := d.auth.ValidatedToken(ctx, key, p.Name())
	if err != nil {
		return session.StateAwaitingAction, err
	}
	if token != nil {
		turn.SendText(fmt.Sprintf("You're already signed in to %s.", p.DisplayName()))
		turn.SendCard(actionMenu(p.DisplayName()))
		return session.StateAwaitingAction, nil
	}

	signIn, err := d.auth.StartSignIn(ctx, turn.Activity.Address, p.Name())
	if err != nil {
		log.LogErrorWithFields("dialog", "Failed to start sign-in", map[string]any{
			"provider": p.Name(),
			"error":    err.Error(),
		})
		turn.SendText(signInFailed(p))
		turn.SendCard(actionMenu(p.DisplayName()))
		return session.StateAwaitingAction, nil
	}

	turn.SendCard(signInCard(p.DisplayName(), signIn.LinkURL))
	return session.StateAwaitingVerificationCode, nil
}

// verify is the single code-submitted edge, fed by typed text and by the
// signin/verifyState invoke alike.
func (d *Identity) verify(ctx context.Context, turn *bot.Turn, key session.Key, p idp.Provider, code string) (session.State, error) {
	result, err := d.auth.VerifyCode(ctx, key, p.Name(), code)
	if err != nil {
		return session.StateAwaitingVerificationCode, err
	}

	fields := map[string]any{
		"provider":     p.Name(),
		"conversation": key.ConversationID,
		"result":       result.String(),
	}
	switch verr := auth.VerifyError(result); {
	case verr == nil:
		log.LogInfoWithFields("dialog", "Verification code accepted", fields)
	case result == session.VerifyUnexpected:
		log.LogWarnWithFields("dialog", "Unexpected login callback", fields)
	default:
		log.LogWarnWithFields("dialog", "Verification code does not match", fields)
		turn.SendText(signInFailed(p))
		turn.SendCard(actionMenu(p.DisplayName()))
		return session.StateAwaitingAction, nil
	}

	return d.showProfile(ctx, turn, key, p)
}

func (d *Identity) showProfile(ctx context.Context, turn *bot.Turn, key session.Key, p idp.Provider) (session.State, error) {
	token, err := d.auth.ValidatedToken(ctx, key, p.Name())
	if err != nil {
		return session.StateAwaitingAction, err
	}

	if token == nil {
		turn.SendText(fmt.Sprintf("Please sign in to %s so I can access your profile.", p.DisplayName()))
	} else if profile, err := p.Profile(ctx, token.AccessToken, nil); err != nil {
		log.LogErrorWithFields("dialog", "Failed to fetch profile", map[string]any{
			"provider": p.Name(),
			"error":    err.Error(),
		})
		turn.SendText(fmt.Sprintf("Sorry, I couldn't get your %s profile right now.", p.DisplayName()))
	} else {
		turn.SendCard(profileCard(profile.Card()))
	}

	turn.SendCard(actionMenu(p.DisplayName()))
	return session.StateAwaitingAction, nil
}

func (d *Identity) signOut(ctx context.Context, turn *bot.Turn, key session.Key, p idp.Provider) (session.State, error) {
	wasSignedIn, err := d.auth.SignOut(ctx, key, p.Name())
	if err != nil {
		return session.StateAwaitingAction, err
	}

	if wasSignedIn {
		turn.SendText(fmt.Sprintf("You're now signed out of %s.", p.DisplayName()))
	} else {
		turn.SendText(fmt.Sprintf("You're already signed out of %s.", p.DisplayName()))
	}
	turn.SendCard(actionMenu(p.DisplayName()))
	return session.StateAwaitingAction, nil
}

func signInFailed(p idp.Provider) string {
	return fmt.Sprintf("Sorry, there was an error signing in to %s. Please try again.", p.DisplayName())
}
