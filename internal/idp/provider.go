// Package idp holds the identity providers a user can link: each one builds
// an authorization URL, redeems a code for an access token and fetches the
// signed-in user's profile.
package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/dgellow/identity-bot/internal/ioutil"
	"golang.org/x/oauth2"
)

// Provider names as used in routes, config and session keys
const (
	NameGoogle    = "google"
	NameAzureADv1 = "azureADv1"
	NameLinkedIn  = "linkedIn"
	NameGitHub    = "github"
)

// defaultTokenLifetime is assumed when a token response carries no expiry
const defaultTokenLifetime = time.Hour

// Token is the result of redeeming an authorization code
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// ProfileCard is the provider-neutral rendering of a profile
type ProfileCard struct {
	Title     string
	Subtitle  string
	Text      string
	ImageURL  string
	ImageAlt  string
	LinkURL   string
	LinkTitle string
}

// Profile is a provider-specific user profile
type Profile interface {
	Card() ProfileCard
}

// Provider abstracts identity provider operations.
type Provider interface {
	// Name is the registry key, e.g. "google" or "azureADv1"
	Name() string

	// DisplayName is shown to users, e.g. "Azure AD"
	DisplayName() string

	// AuthURL builds the authorization URL. extraParams are added first so
	// the provider's own parameters always win.
	AuthURL(state string, extraParams url.Values) string

	// ExchangeCode redeems an authorization code. ExpiresAt is always set.
	ExchangeCode(ctx context.Context, code string) (Token, error)

	// Profile fetches the signed-in user's profile. fields narrows what is
	// requested where the API supports it; nil means the provider defaults.
	Profile(ctx context.Context, accessToken string, fields []string) (Profile, error)
}

// reservedParams are owned by the OAuth client and never taken from extraParams
var reservedParams = []string{"response_type", "client_id", "redirect_uri", "scope", "state"}

// oauthClient is the x/oauth2 plumbing every provider shares
type oauthClient struct {
	config          oauth2.Config
	authOptions     []oauth2.AuthCodeOption
	exchangeOptions []oauth2.AuthCodeOption
	httpClient      *http.Client
	now             func() time.Time
}

func newOAuthClient(config oauth2.Config) oauthClient {
	return oauthClient{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

func (c *oauthClient) authURL(state string, extraParams url.Values) string {
	opts := make([]oauth2.AuthCodeOption, 0, len(extraParams)+len(c.authOptions))
	for key, values := range extraParams {
		if slices.Contains(reservedParams, key) || len(values) == 0 {
			continue
		}
		opts = append(opts, oauth2.SetAuthURLParam(key, values[0]))
	}
	opts = append(opts, c.authOptions...)
	return c.config.AuthCodeURL(state, opts...)
}

func (c *oauthClient) exchange(ctx context.Context, code string) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.config.Exchange(ctx, code, c.exchangeOptions...)
	if err != nil {
		return Token{}, fmt.Errorf("failed to exchange code: %w", err)
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("token response has no access token")
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = c.now().Add(defaultTokenLifetime)
	}
	return Token{AccessToken: tok.AccessToken, ExpiresAt: expiresAt}, nil
}

// getJSON performs an authenticated GET and decodes the JSON body into dest
func (c *oauthClient) getJSON(ctx context.Context, accessToken, endpoint string, dest any) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := c.config.Client(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to get profile: status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, 512))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode profile: %w", err)
	}
	return nil
}
