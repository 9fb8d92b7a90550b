package idp

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubProvider implements the Provider interface for GitHub OAuth.
// GitHub uses OAuth 2.0 (not OIDC) and has its own API for user info.
type GitHubProvider struct {
	oauthClient
	apiBaseURL string // defaults to https://api.github.com, can be overridden for testing
}

// GitHubProfile represents GitHub's user API response.
type GitHubProfile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
	Bio       string `json:"bio"`
	Company   string `json:"company"`
	Location  string `json:"location"`
}

func (p *GitHubProfile) Card() ProfileCard {
	title := p.Name
	if title == "" {
		title = p.Login
	}
	var details []string
	for _, s := range []string{p.Bio, p.Company, p.Location} {
		if s != "" {
			details = append(details, s)
		}
	}
	card := ProfileCard{
		Title:    title,
		Subtitle: "@" + p.Login,
		Text:     strings.Join(details, " • "),
		ImageURL: p.AvatarURL,
		ImageAlt: p.Login,
	}
	if p.HTMLURL != "" {
		card.LinkURL = p.HTMLURL
		card.LinkTitle = "View on GitHub"
	}
	return card
}

// NewGitHubProvider creates a new GitHub OAuth provider.
func NewGitHubProvider(clientID, clientSecret, redirectURI string) *GitHubProvider {
	return &GitHubProvider{
		oauthClient: newOAuthClient(oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}),
		apiBaseURL: "https://api.github.com",
	}
}

func (p *GitHubProvider) Name() string        { return NameGitHub }
func (p *GitHubProvider) DisplayName() string { return "GitHub" }

func (p *GitHubProvider) AuthURL(state string, extraParams url.Values) string {
	return p.authURL(state, extraParams)
}

func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (Token, error) {
	return p.exchange(ctx, code)
}

// Profile reads /user. GitHub has no field selection, so fields is ignored.
func (p *GitHubProvider) Profile(ctx context.Context, accessToken string, _ []string) (Profile, error) {
	var profile GitHubProfile
	if err := p.getJSON(ctx, accessToken, p.apiBaseURL+"/user", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
