package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func parseAuthURL(t *testing.T, raw string) (*url.URL, url.Values) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u, u.Query()
}

// tokenServer answers token requests with the given JSON body and records the form
func tokenServer(t *testing.T, body map[string]any, form *url.Values) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if form != nil {
			*form = r.PostForm
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthURL_ExtraParamsNeverOverrideFixedOnes(t *testing.T) {
	p := NewAzureADv1Provider("", "client-id", "secret", "https://bot.example.com/auth/azureADv1/callback", "")

	extra := url.Values{
		"prompt":       {"login"},
		"resource":     {"https://evil.example.com"},
		"redirect_uri": {"https://evil.example.com/cb"},
		"client_id":    {"other"},
		"state":        {"forged"},
	}
	u, q := parseAuthURL(t, p.AuthURL("the-state", extra))

	assert.Equal(t, "login.microsoftonline.com", u.Host)
	assert.Equal(t, "/common/oauth2/authorize", u.Path)
	assert.Equal(t, "login", q.Get("prompt"))
	assert.Equal(t, "https://graph.microsoft.com", q.Get("resource"))
	assert.Equal(t, "https://bot.example.com/auth/azureADv1/callback", q.Get("redirect_uri"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "the-state", q.Get("state"))
	assert.Equal(t, "query", q.Get("response_mode"))
	assert.Equal(t, "code", q.Get("response_type"))
}

func TestGoogleProvider_AuthURL(t *testing.T) {
	p := NewGoogleProvider("client-id", "secret", "https://bot.example.com/auth/google/callback")
	assert.Equal(t, "google", p.Name())
	assert.Equal(t, "Google", p.DisplayName())

	u, q := parseAuthURL(t, p.AuthURL(`{"securityToken":"t"}`, nil))
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, `{"securityToken":"t"}`, q.Get("state"))
	assert.NotEmpty(t, q.Get("nonce"))

	_, q2 := parseAuthURL(t, p.AuthURL("s", nil))
	assert.NotEqual(t, q.Get("nonce"), q2.Get("nonce"), "nonce is fresh per request")
}

func TestExchangeCode(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		body       map[string]any
		wantExpiry func(time.Time) bool
		wantErr    bool
	}{
		{
			name: "expires_in_honoured",
			body: map[string]any{"access_token": "at-1", "token_type": "Bearer", "expires_in": 7200},
			wantExpiry: func(exp time.Time) bool {
				return exp.After(time.Now().Add(time.Hour))
			},
		},
		{
			name: "missing_expiry_defaults_to_one_hour",
			body: map[string]any{"access_token": "at-1", "token_type": "Bearer"},
			wantExpiry: func(exp time.Time) bool {
				return exp.Equal(fixed.Add(time.Hour))
			},
		},
		{
			name:    "error_response",
			body:    map[string]any{"error": "invalid_grant"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var form url.Values
			srv := tokenServer(t, tt.body, &form)

			p := NewGitHubProvider("client-id", "secret", "https://bot.example.com/auth/github/callback")
			p.config.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
			p.now = func() time.Time { return fixed }

			tok, err := p.ExchangeCode(context.Background(), "the-code")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "at-1", tok.AccessToken)
			assert.True(t, tt.wantExpiry(tok.ExpiresAt), "unexpected expiry %v", tok.ExpiresAt)
			assert.Equal(t, "the-code", form.Get("code"))
			assert.Equal(t, "https://bot.example.com/auth/github/callback", form.Get("redirect_uri"))
		})
	}
}

func TestAzureADv1Provider_ExchangeSendsResource(t *testing.T) {
	var form url.Values
	srv := tokenServer(t, map[string]any{"access_token": "at", "token_type": "Bearer", "expires_in": "3599"}, &form)

	p := NewAzureADv1Provider("contoso", "client-id", "secret", "https://bot.example.com/auth/azureADv1/callback", "")
	p.config.Endpoint.TokenURL = srv.URL

	tok, err := p.ExchangeCode(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "https://graph.microsoft.com", form.Get("resource"))
	assert.Equal(t, "secret", form.Get("client_secret"))
	assert.Equal(t, "https://graph.microsoft.com/v1.0/me", p.graphURL)
}

func profileServer(t *testing.T, wantPath string, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, wantPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleProvider_ProfilePicksPrimaryValues(t *testing.T) {
	srv := profileServer(t, "/v1/people/me", map[string]any{
		"names": []map[string]any{
			{"displayName": "Secondary", "metadata": map[string]any{"primary": false}},
			{"displayName": "Ada Lovelace", "metadata": map[string]any{"primary": true}},
		},
		"emailAddresses": []map[string]any{{"value": "ada@example.com"}},
		"photos":         []map[string]any{{"url": "https://photos.example.com/ada.jpg", "metadata": map[string]any{"primary": true}}},
	})

	p := NewGoogleProvider("id", "secret", "https://bot.example.com/cb")
	p.peopleURL = srv.URL + "/v1/people/me"

	profile, err := p.Profile(context.Background(), "at-123", nil)
	require.NoError(t, err)

	card := profile.Card()
	assert.Equal(t, "Ada Lovelace", card.Title)
	assert.Equal(t, "ada@example.com", card.Subtitle, "falls back to the first entry")
	assert.Equal(t, "https://photos.example.com/ada.jpg", card.ImageURL)
	assert.Empty(t, card.LinkURL)
}

func TestAzureADv1Provider_Profile(t *testing.T) {
	srv := profileServer(t, "/v1.0/me", map[string]any{
		"displayName":       "Grace Hopper",
		"userPrincipalName": "grace@contoso.com",
		"jobTitle":          "Rear Admiral",
		"officeLocation":    "Arlington",
	})

	p := NewAzureADv1Provider("", "id", "secret", "https://bot.example.com/cb", "")
	p.graphURL = srv.URL + "/v1.0/me"

	profile, err := p.Profile(context.Background(), "at-123", nil)
	require.NoError(t, err)
	assert.Equal(t, ProfileCard{
		Title:    "Grace Hopper",
		Subtitle: "grace@contoso.com",
		Text:     "Rear Admiral • Arlington",
	}, profile.Card())
}

func TestLinkedInProvider_Profile(t *testing.T) {
	srv := profileServer(t, "/v2/userinfo", map[string]any{
		"sub": "abc", "name": "Alan Turing", "email": "alan@example.com", "picture": "https://media.example.com/a.jpg",
	})

	p := NewLinkedInProvider("id", "secret", "https://bot.example.com/cb")
	p.userInfoURL = srv.URL + "/v2/userinfo"

	profile, err := p.Profile(context.Background(), "at-123", nil)
	require.NoError(t, err)
	card := profile.Card()
	assert.Equal(t, "Alan Turing", card.Title)
	assert.Equal(t, "alan@example.com", card.Subtitle)
	assert.Equal(t, "https://media.example.com/a.jpg", card.ImageURL)
}

func TestGitHubProvider_Profile(t *testing.T) {
	srv := profileServer(t, "/user", map[string]any{
		"id": 42, "login": "octocat", "html_url": "https://github.com/octocat", "location": "San Francisco",
	})

	p := NewGitHubProvider("id", "secret", "https://bot.example.com/cb")
	p.apiBaseURL = srv.URL

	profile, err := p.Profile(context.Background(), "at-123", nil)
	require.NoError(t, err)
	assert.Equal(t, ProfileCard{
		Title:     "octocat",
		Subtitle:  "@octocat",
		Text:      "San Francisco",
		ImageAlt:  "octocat",
		LinkURL:   "https://github.com/octocat",
		LinkTitle: "View on GitHub",
	}, profile.Card())
}

func TestProfile_FieldSelection(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	google := NewGoogleProvider("id", "secret", "https://bot.example.com/cb")
	google.peopleURL = srv.URL + "/v1/people/me"
	azure := NewAzureADv1Provider("", "id", "secret", "https://bot.example.com/cb", "")
	azure.graphURL = srv.URL + "/v1.0/me"

	tests := []struct {
		name     string
		provider Provider
		fields   []string
		want     url.Values
	}{
		{name: "google_defaults", provider: google, want: url.Values{"personFields": {"names,emailAddresses,photos,urls"}}},
		{name: "google_fields", provider: google, fields: []string{"names", "emailAddresses"}, want: url.Values{"personFields": {"names,emailAddresses"}}},
		{name: "azure_defaults", provider: azure, want: url.Values{}},
		{name: "azure_select", provider: azure, fields: []string{"displayName", "mail"}, want: url.Values{"$select": {"displayName,mail"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.provider.Profile(context.Background(), "at-123", tt.fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, gotQuery)
		})
	}
}

func TestProfile_Unauthorized(t *testing.T) {
	srv := profileServer(t, "/user", map[string]any{})

	p := NewGitHubProvider("id", "secret", "https://bot.example.com/cb")
	p.apiBaseURL = srv.URL

	_, err := p.Profile(context.Background(), "wrong-token", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
