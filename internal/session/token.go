package session

import (
	"crypto/subtle"
	"time"
)

// UserToken is a possibly provisional access token. It becomes usable only
// after the verification code issued at callback time is echoed back from chat.
type UserToken struct {
	AccessToken                    string    `json:"accessToken"`
	ExpirationTime                 time.Time `json:"expirationTime"`
	VerificationCode               string    `json:"verificationCode,omitempty"`
	VerificationCodeValidated      bool      `json:"verificationCodeValidated"`
	VerificationCodeExpirationTime time.Time `json:"verificationCodeExpirationTime,omitzero"`
}

// ExpirationTimeMillis returns the access token expiry in milliseconds since epoch
func (t *UserToken) ExpirationTimeMillis() int64 {
	return t.ExpirationTime.UnixMilli()
}

// ProviderSession is the per-provider slice of a Session
type ProviderSession struct {
	OAuthState string     `json:"oauthState,omitempty"`
	UserToken  *UserToken `json:"userToken,omitempty"`
}

// Clone returns a deep copy
func (ps ProviderSession) Clone() ProviderSession {
	if ps.UserToken != nil {
		t := *ps.UserToken
		ps.UserToken = &t
	}
	return ps
}

// ValidatedToken returns the token only if its verification code was
// validated and the code's validity window has not passed.
func (ps ProviderSession) ValidatedToken(now time.Time) *UserToken {
	t := ps.UserToken
	if t == nil || !t.VerificationCodeValidated {
		return nil
	}
	if !now.Before(t.VerificationCodeExpirationTime) {
		return nil
	}
	return t
}

// PendingVerification reports whether a token is waiting for its code
func (ps ProviderSession) PendingVerification() bool {
	t := ps.UserToken
	return t != nil && !t.VerificationCodeValidated && t.VerificationCode != ""
}

// BeginSignIn records a new OAuth state and drops any previous token, so an
// older pending code can never be validated.
func (ps *ProviderSession) BeginSignIn(oauthState string) {
	ps.OAuthState = oauthState
	ps.UserToken = nil
}

// AcceptCallback stores a freshly exchanged token as pending verification and
// consumes the OAuth state.
func (ps *ProviderSession) AcceptCallback(accessToken string, expiresAt time.Time, code string, codeExpiresAt time.Time) {
	ps.OAuthState = ""
	ps.UserToken = &UserToken{
		AccessToken:                    accessToken,
		ExpirationTime:                 expiresAt,
		VerificationCode:               code,
		VerificationCodeValidated:      false,
		VerificationCodeExpirationTime: codeExpiresAt,
	}
}

// SignOut forgets the token
func (ps *ProviderSession) SignOut() {
	ps.UserToken = nil
}

// VerifyResult is the outcome of submitting a verification code
type VerifyResult int

const (
	// VerifyValidated means the code matched and the token is now usable
	VerifyValidated VerifyResult = iota
	// VerifyRejected means the code was wrong or expired; the token was discarded
	VerifyRejected
	// VerifyUnexpected means the token was already validated; nothing changed
	VerifyUnexpected
	// VerifyNoPending means there was no token to verify
	VerifyNoPending
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyValidated:
		return "validated"
	case VerifyRejected:
		return "rejected"
	case VerifyUnexpected:
		return "unexpected"
	case VerifyNoPending:
		return "no_pending"
	default:
		return "unknown"
	}
}

// VerifyCode checks a submitted code against the pending token.
func (ps *ProviderSession) VerifyCode(code string, now time.Time) VerifyResult {
	t := ps.UserToken
	if t == nil {
		return VerifyNoPending
	}
	if t.VerificationCodeValidated {
		return VerifyUnexpected
	}

	matches := t.VerificationCode != "" &&
		subtle.ConstantTimeCompare([]byte(code), []byte(t.VerificationCode)) == 1
	if matches && now.Before(t.VerificationCodeExpirationTime) {
		t.VerificationCodeValidated = true
		t.VerificationCode = ""
		return VerifyValidated
	}

	ps.UserToken = nil
	return VerifyRejected
}
