// Package auth runs the cross-channel sign-in protocol: it starts an OAuth
// flow from a conversation, accepts the provider's browser callback, and
// confirms the verification code that binds the resulting token back to the
// conversation that asked for it.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dgellow/identity-bot/internal/bot"
	"github.com/dgellow/identity-bot/internal/crypto"
	"github.com/dgellow/identity-bot/internal/idp"
	"github.com/dgellow/identity-bot/internal/log"
	"github.com/dgellow/identity-bot/internal/oauthstate"
	"github.com/dgellow/identity-bot/internal/session"
	"github.com/dgellow/identity-bot/internal/storage"
	"github.com/dgellow/identity-bot/internal/urlutil"
)

// StartLinkExpiry is how long a sign-in link stays usable
const StartLinkExpiry = 10 * time.Minute

var (
	// ErrUnknownProvider is returned for provider names not in the registry
	ErrUnknownProvider = errors.New("unknown identity provider")

	// ErrStateMismatch covers a state that does not match the stored one, a
	// missing code, and an error returned by the provider (e.g. consent denied).
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrExchangeFailed is returned when the provider rejects the code or
	// cannot be reached
	ErrExchangeFailed = errors.New("authorization code exchange failed")

	// ErrVerificationMismatch is a wrong or expired verification code
	ErrVerificationMismatch = errors.New("verification code mismatch")

	// ErrUnexpectedVerification is a code submitted for an already validated token
	ErrUnexpectedVerification = errors.New("unexpected verification")

	// ErrInvalidStartLink is a sign-in link that is forged, expired or unusable
	ErrInvalidStartLink = errors.New("invalid sign-in link")
)

// Callback results as recorded in metrics
const (
	ResultSuccess        = "success"
	ResultMalformedState = "malformed_state"
	ResultStateMismatch  = "state_mismatch"
	ResultExchangeFailed = "exchange_failed"
	ResultError          = "error"

	// UnknownProviderLabel replaces provider names that are not registered,
	// which come straight from the request path.
	UnknownProviderLabel = "unknown"
)

// Recorder receives protocol events, typically to export them as metrics
type Recorder interface {
	SignInStarted(provider string)
	CallbackHandled(provider, result string)
	VerificationHandled(provider, result string)
}

type nopRecorder struct{}

func (nopRecorder) SignInStarted(string)               {}
func (nopRecorder) CallbackHandled(string, string)     {}
func (nopRecorder) VerificationHandled(string, string) {}

// CodeGenerator issues verification codes
type CodeGenerator func(now time.Time) (crypto.VerificationCode, error)

// Service coordinates providers and the session store for sign-in
type Service struct {
	store      storage.Store
	providers  *idp.Registry
	baseURL    string
	linkSigner crypto.TokenSigner
	recorder   Recorder
	newCode    CodeGenerator
	now        func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithRecorder reports protocol events to r
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator replaces the random verification code source
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *Service) { s.newCode = gen }
}

// NewService creates the sign-in service
func NewService(store storage.Store, providers *idp.Registry, baseURL string, signingKey []byte, opts ...Option) *Service {
	s := &Service{
		store:      store,
		providers:  providers,
		baseURL:    baseURL,
		linkSigner: crypto.NewTokenSigner(signingKey, StartLinkExpiry),
		recorder:   nopRecorder{},
		newCode:    crypto.GenerateVerificationCode,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Providers returns the provider registry
func (s *Service) Providers() *idp.Registry {
	return s.providers
}

// Now returns the service clock's current time
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) provider(name string) (idp.Provider, error) {
	p, ok := s.providers.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// startLink is the signed payload behind /auth/start
type startLink struct {
	Provider         string `json:"provider"`
	AuthorizationURL string `json:"authorizationUrl"`
}

// SignIn is a started sign-in
type SignIn struct {
	// LinkURL is the bot's own sign-in URL, safe to put in a card
	LinkURL string
	// AuthorizationURL is where LinkURL redirects
	AuthorizationURL string
	// State is the raw state value stored in the session
	State string
}

// StartSignIn mints a state for the conversation, stores it (discarding any
// pending token for the provider) and returns the sign-in link.
func (s *Service) StartSignIn(ctx context.Context, addr bot.Address, providerName string) (SignIn, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return SignIn{}, err
	}

	st, err := oauthstate.New(addr)
	if err != nil {
		return SignIn{}, err
	}
	raw, err := st.Encode()
	if err != nil {
		return SignIn{}, err
	}

	err = s.store.UpdateProvider(ctx, st.Key(), providerName, func(ps *session.ProviderSession) error {
		ps.BeginSignIn(raw)
		return nil
	})
	if err != nil {
		return SignIn{}, fmt.Errorf("storing oauth state: %w", err)
	}

	authURL := p.AuthURL(raw, nil)
	token, err := s.linkSigner.Sign(startLink{Provider: providerName, AuthorizationURL: authURL})
	if err != nil {
		return SignIn{}, fmt.Errorf("signing start link: %w", err)
	}

	link, err := urlutil.WithQuery(s.baseURL, "/auth/start", url.Values{"token": {token}})
	if err != nil {
		return SignIn{}, fmt.Errorf("building start link: %w", err)
	}

	s.recorder.SignInStarted(providerName)
	log.LogInfoWithFields("auth", "Sign-in started", map[string]any{
		"provider":     providerName,
		"conversation": addr.Conversation.ID,
	})

	return SignIn{
		LinkURL:          link,
		AuthorizationURL: authURL,
		State:            raw,
	}, nil
}

// ResolveStartLink verifies a sign-in link token and returns the provider
// authorization URL it points to.
func (s *Service) ResolveStartLink(token string) (string, error) {
	var link startLink
	if err := s.linkSigner.Verify(token, &link); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStartLink, err)
	}
	if _, err := s.provider(link.Provider); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStartLink, err)
	}
	u, err := url.Parse(link.AuthorizationURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: bad authorization url", ErrInvalidStartLink)
	}
	return link.AuthorizationURL, nil
}

// CallbackResult is what the success page shows
type CallbackResult struct {
	Provider         string
	DisplayName      string
	VerificationCode string
	Key              session.Key
}

// HandleCallback completes the browser leg of sign-in. Nothing is stored
// unless the raw state equals the one stored for the conversation it names
// and the code exchange succeeds.
func (s *Service) HandleCallback(ctx context.Context, providerName, rawState, code, oauthErr string) (CallbackResult, error) {
	res, err := s.handleCallback(ctx, providerName, rawState, code, oauthErr)
	label := providerName
	if errors.Is(err, ErrUnknownProvider) {
		label = UnknownProviderLabel
	}
	s.recorder.CallbackHandled(label, callbackResult(err))
	return res, err
}

func (s *Service) handleCallback(ctx context.Context, providerName, rawState, code, oauthErr string) (CallbackResult, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return CallbackResult{}, err
	}

	st, err := oauthstate.Parse(rawState)
	if err != nil {
		return CallbackResult{}, err
	}
	key := st.Key()

	if oauthErr != "" {
		return CallbackResult{}, fmt.Errorf("%w: provider returned %q", ErrStateMismatch, oauthErr)
	}
	if code == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing code", ErrStateMismatch)
	}

	sess, err := s.store.Get(ctx, key)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("loading session: %w", err)
	}
	if !sameState(sess.Provider(providerName).OAuthState, rawState) {
		return CallbackResult{}, fmt.Errorf("%w: state does not match the pending sign-in", ErrStateMismatch)
	}

	token, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	vc, err := s.newCode(s.now())
	if err != nil {
		return CallbackResult{}, err
	}

	// A SignIn that raced the exchange replaced the state; its flow wins.
	err = s.store.UpdateProvider(ctx, key, providerName, func(ps *session.ProviderSession) error {
		if !sameState(ps.OAuthState, rawState) {
			return fmt.Errorf("%w: sign-in restarted during exchange", ErrStateMismatch)
		}
		ps.AcceptCallback(token.AccessToken, token.ExpiresAt, vc.Code, vc.ExpiresAt)
		return nil
	})
	if err != nil {
		return CallbackResult{}, err
	}

	return CallbackResult{
		Provider:         providerName,
		DisplayName:      p.DisplayName(),
		VerificationCode: vc.Code,
		Key:              key,
	}, nil
}

func sameState(stored, received string) bool {
	return stored != "" && subtle.ConstantTimeCompare([]byte(stored), []byte(received)) == 1
}

func callbackResult(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, oauthstate.ErrMalformedState):
		return ResultMalformedState
	case errors.Is(err, ErrStateMismatch):
		return ResultStateMismatch
	case errors.Is(err, ErrExchangeFailed):
		return ResultExchangeFailed
	default:
		return ResultError
	}
}

// VerifyCode checks a code submitted from chat against the provider's
// pending token. A rejected code discards the pending token.
func (s *Service) VerifyCode(ctx context.Context, key session.Key, providerName, code string) (session.VerifyResult, error) {
	var result session.VerifyResult
	err := s.store.UpdateProvider(ctx, key, providerName, func(ps *session.ProviderSession) error {
		result = ps.VerifyCode(code, s.now())
		return nil
	})
	if err != nil {
		return session.VerifyNoPending, fmt.Errorf("verifying code: %w", err)
	}

	s.recorder.VerificationHandled(providerName, result.String())
	return result, nil
}

// VerifyError maps a verification outcome to its error class, nil for success
func VerifyError(r session.VerifyResult) error {
	switch r {
	case session.VerifyValidated:
		return nil
	case session.VerifyUnexpected:
		return ErrUnexpectedVerification
	default:
		return ErrVerificationMismatch
	}
}

// ValidatedToken returns the usable token for a provider, nil when there is none
func (s *Service) ValidatedToken(ctx context.Context, key session.Key, providerName string) (*session.UserToken, error) {
	sess, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return sess.Provider(providerName).ValidatedToken(s.now()), nil
}

// PendingVerification reports whether a token awaits its verification code
func (s *Service) PendingVerification(ctx context.Context, key session.Key, providerName string) (bool, error) {
	sess, err := s.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return sess.Provider(providerName).PendingVerification(), nil
}

// SignOut drops the provider's token. It reports whether a usable
// token was held.
func (s *Service) SignOut(ctx context.Context, key session.Key, providerName string) (bool, error) {
	var wasSignedIn bool
	err := s.store.UpdateProvider(ctx, key, providerName, func(ps *session.ProviderSession) error {
		wasSignedIn = ps.ValidatedToken(s.now()) != nil
		ps.SignOut()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("signing out: %w", err)
	}
	return wasSignedIn, nil
}
