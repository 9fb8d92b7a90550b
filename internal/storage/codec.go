package storage

import (
	"fmt"
	"time"

	"github.com/dgellow/identity-bot/internal/crypto"
	"github.com/dgellow/identity-bot/internal/session"
)

// tokenDoc is the persisted form of a UserToken. The access token and the
// verification code are encrypted.
type tokenDoc struct {
	AccessToken                    string    `json:"accessToken" firestore:"access_token"`
	ExpirationTime                 time.Time `json:"expirationTime" firestore:"expiration_time"`
	VerificationCode               string    `json:"verificationCode,omitempty" firestore:"verification_code,omitempty"`
	VerificationCodeValidated      bool      `json:"verificationCodeValidated" firestore:"verification_code_validated"`
	VerificationCodeExpirationTime time.Time `json:"verificationCodeExpirationTime" firestore:"verification_code_expiration_time"`
}

type providerDoc struct {
	OAuthState string    `json:"oauthState,omitempty" firestore:"oauth_state"`
	UserToken  *tokenDoc `json:"userToken,omitempty" firestore:"user_token"`
}

type dialogDoc struct {
	Started  bool   `json:"started,omitempty" firestore:"started"`
	Provider string `json:"provider,omitempty" firestore:"provider"`
	State    string `json:"state,omitempty" firestore:"state"`
}

// sessionDoc is one stored session
type sessionDoc struct {
	UserID         string                 `json:"userId" firestore:"user_id"`
	ConversationID string                 `json:"conversationId" firestore:"conversation_id"`
	Providers      map[string]providerDoc `json:"providers" firestore:"providers"`
	Dialog         dialogDoc              `json:"dialog" firestore:"dialog"`
	UpdatedAt      time.Time              `json:"updatedAt" firestore:"updated_at"`
}

type codec struct {
	encryptor crypto.Encryptor
}

func (c codec) encodeProvider(ps session.ProviderSession) (providerDoc, error) {
	doc := providerDoc{OAuthState: ps.OAuthState}
	if ps.UserToken == nil {
		return doc, nil
	}

	accessToken, err := c.encryptor.Encrypt(ps.UserToken.AccessToken)
	if err != nil {
		return providerDoc{}, fmt.Errorf("encrypting access token: %w", err)
	}
	var code string
	if ps.UserToken.VerificationCode != "" {
		code, err = c.encryptor.Encrypt(ps.UserToken.VerificationCode)
		if err != nil {
			return providerDoc{}, fmt.Errorf("encrypting verification code: %w", err)
		}
	}

	doc.UserToken = &tokenDoc{
		AccessToken:                    accessToken,
		ExpirationTime:                 ps.UserToken.ExpirationTime,
		VerificationCode:               code,
		VerificationCodeValidated:      ps.UserToken.VerificationCodeValidated,
		VerificationCodeExpirationTime: ps.UserToken.VerificationCodeExpirationTime,
	}
	return doc, nil
}

func (c codec) decodeProvider(doc providerDoc) (session.ProviderSession, error) {
	ps := session.ProviderSession{OAuthState: doc.OAuthState}
	if doc.UserToken == nil {
		return ps, nil
	}

	accessToken, err := c.encryptor.Decrypt(doc.UserToken.AccessToken)
	if err != nil {
		return session.ProviderSession{}, fmt.Errorf("decrypting access token: %w", err)
	}
	var code string
	if doc.UserToken.VerificationCode != "" {
		code, err = c.encryptor.Decrypt(doc.UserToken.VerificationCode)
		if err != nil {
			return session.ProviderSession{}, fmt.Errorf("decrypting verification code: %w", err)
		}
	}

	ps.UserToken = &session.UserToken{
		AccessToken:                    accessToken,
		ExpirationTime:                 doc.UserToken.ExpirationTime,
		VerificationCode:               code,
		VerificationCodeValidated:      doc.UserToken.VerificationCodeValidated,
		VerificationCodeExpirationTime: doc.UserToken.VerificationCodeExpirationTime,
	}
	return ps, nil
}

func encodeDialog(d session.DialogState) dialogDoc {
	return dialogDoc{Started: d.Started, Provider: d.Provider, State: string(d.State)}
}

func decodeDialog(d dialogDoc) session.DialogState {
	return session.DialogState{Started: d.Started, Provider: d.Provider, State: session.State(d.State)}
}

func (c codec) encodeSession(key session.Key, s *session.Session) (sessionDoc, error) {
	doc := sessionDoc{
		UserID:         key.UserID,
		ConversationID: key.ConversationID,
		Providers:      make(map[string]providerDoc, len(s.Providers)),
		Dialog:         encodeDialog(s.Dialog),
		UpdatedAt:      time.Now().UTC(),
	}
	for name, ps := range s.Providers {
		pd, err := c.encodeProvider(ps)
		if err != nil {
			return sessionDoc{}, fmt.Errorf("provider %s: %w", name, err)
		}
		doc.Providers[name] = pd
	}
	return doc, nil
}

func (c codec) decodeSession(doc sessionDoc) (*session.Session, error) {
	s := session.New()
	s.Dialog = decodeDialog(doc.Dialog)
	for name, pd := range doc.Providers {
		ps, err := c.decodeProvider(pd)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		s.Providers[name] = ps
	}
	return s, nil
}
