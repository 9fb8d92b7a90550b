package idp

import (
	"context"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
)

// LinkedInProvider signs users in with LinkedIn's OpenID Connect product
// and reads the standard userinfo claims.
type LinkedInProvider struct {
	oauthClient
	userInfoURL string
}

// LinkedInProfile holds the OIDC userinfo claims LinkedIn returns
type LinkedInProfile struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Locale        any    `json:"locale,omitempty"`
}

func (p *LinkedInProfile) Card() ProfileCard {
	return ProfileCard{
		Title:    p.Name,
		Subtitle: p.Email,
		ImageURL: p.Picture,
		ImageAlt: p.Name,
	}
}

// NewLinkedInProvider creates a new LinkedIn OAuth provider.
func NewLinkedInProvider(clientID, clientSecret, redirectURI string) *LinkedInProvider {
	return &LinkedInProvider{
		oauthClient: newOAuthClient(oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     linkedin.Endpoint,
		}),
		userInfoURL: "https://api.linkedin.com/v2/userinfo",
	}
}

func (p *LinkedInProvider) Name() string        { return NameLinkedIn }
func (p *LinkedInProvider) DisplayName() string { return "LinkedIn" }

func (p *LinkedInProvider) AuthURL(state string, extraParams url.Values) string {
	return p.authURL(state, extraParams)
}

func (p *LinkedInProvider) ExchangeCode(ctx context.Context, code string) (Token, error) {
	return p.exchange(ctx, code)
}

// Profile reads the OpenID userinfo claims, which cannot be narrowed, so
// fields is ignored.
func (p *LinkedInProvider) Profile(ctx context.Context, accessToken string, _ []string) (Profile, error) {
	var profile LinkedInProfile
	if err := p.getJSON(ctx, accessToken, p.userInfoURL, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
