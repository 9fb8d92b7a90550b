package idp

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GooglePersonFields are requested from the People API
var GooglePersonFields = []string{"names", "emailAddresses", "photos", "urls"}

// GoogleProvider signs users in with Google and reads their profile from the
// People API.
type GoogleProvider struct {
	oauthClient
	peopleURL string
}

// Google's People API marks one entry per field as primary
type googleFieldMetadata struct {
	Primary bool `json:"primary"`
}

type googlePerson struct {
	Names []struct {
		DisplayName string              `json:"displayName"`
		Metadata    googleFieldMetadata `json:"metadata"`
	} `json:"names"`
	EmailAddresses []struct {
		Value    string              `json:"value"`
		Metadata googleFieldMetadata `json:"metadata"`
	} `json:"emailAddresses"`
	Photos []struct {
		URL      string              `json:"url"`
		Metadata googleFieldMetadata `json:"metadata"`
	} `json:"photos"`
	URLs []struct {
		Value    string              `json:"value"`
		Metadata googleFieldMetadata `json:"metadata"`
	} `json:"urls"`
}

// GoogleProfile is the subset of a Google person shown to the user
type GoogleProfile struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	PhotoURL   string `json:"photoUrl"`
	ProfileURL string `json:"profileUrl"`
}

func (p *GoogleProfile) Card() ProfileCard {
	card := ProfileCard{
		Title:    p.Name,
		Subtitle: p.Email,
		ImageURL: p.PhotoURL,
		ImageAlt: p.Name,
	}
	if p.ProfileURL != "" {
		card.LinkURL = p.ProfileURL
		card.LinkTitle = "View on Google"
	}
	return card
}

// NewGoogleProvider creates a new Google OAuth provider.
func NewGoogleProvider(clientID, clientSecret, redirectURI string) *GoogleProvider {
	c := newOAuthClient(oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint:     google.Endpoint,
	})
	c.authOptions = []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("response_mode", "query"),
	}
	return &GoogleProvider{
		oauthClient: c,
		peopleURL:   "https://people.googleapis.com/v1/people/me",
	}
}

func (p *GoogleProvider) Name() string        { return NameGoogle }
func (p *GoogleProvider) DisplayName() string { return "Google" }

// AuthURL adds a fresh nonce to every request
func (p *GoogleProvider) AuthURL(state string, extraParams url.Values) string {
	params := url.Values{}
	for k, v := range extraParams {
		params[k] = v
	}
	params.Set("nonce", uuid.NewString())
	return p.authURL(state, params)
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (Token, error) {
	return p.exchange(ctx, code)
}

func (p *GoogleProvider) Profile(ctx context.Context, accessToken string, fields []string) (Profile, error) {
	if len(fields) == 0 {
		fields = GooglePersonFields
	}
	endpoint := p.peopleURL + "?personFields=" + url.QueryEscape(strings.Join(fields, ","))

	var person googlePerson
	if err := p.getJSON(ctx, accessToken, endpoint, &person); err != nil {
		return nil, err
	}

	profile := &GoogleProfile{}
	if i := primaryIndex(len(person.Names), func(i int) bool { return person.Names[i].Metadata.Primary }); i >= 0 {
		profile.Name = person.Names[i].DisplayName
	}
	if i := primaryIndex(len(person.EmailAddresses), func(i int) bool { return person.EmailAddresses[i].Metadata.Primary }); i >= 0 {
		profile.Email = person.EmailAddresses[i].Value
	}
	if i := primaryIndex(len(person.Photos), func(i int) bool { return person.Photos[i].Metadata.Primary }); i >= 0 {
		profile.PhotoURL = person.Photos[i].URL
	}
	if i := primaryIndex(len(person.URLs), func(i int) bool { return person.URLs[i].Metadata.Primary }); i >= 0 {
		profile.ProfileURL = person.URLs[i].Value
	}
	return profile, nil
}

// primaryIndex returns the entry flagged primary, else the first, else -1
func primaryIndex(n int, isPrimary func(int) bool) int {
	for i := range n {
		if isPrimary(i) {
			return i
		}
	}
	if n > 0 {
		return 0
	}
	return -1
}
