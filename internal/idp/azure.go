package idp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

const (
	defaultAzureTenant   = "common"
	defaultAzureResource = "https://graph.microsoft.com"
)

// AzureADv1Provider uses the Azure AD v1 endpoints, which take a `resource`
// parameter instead of scopes.
type AzureADv1Provider struct {
	oauthClient
	graphURL string
}

// AzureProfile is read from Microsoft Graph /me
type AzureProfile struct {
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	JobTitle          string `json:"jobTitle"`
	OfficeLocation    string `json:"officeLocation"`
}

func (p *AzureProfile) Card() ProfileCard {
	subtitle := p.Mail
	if subtitle == "" {
		subtitle = p.UserPrincipalName
	}
	var details []string
	for _, s := range []string{p.JobTitle, p.OfficeLocation} {
		if s != "" {
			details = append(details, s)
		}
	}
	return ProfileCard{
		Title:    p.DisplayName,
		Subtitle: subtitle,
		Text:     strings.Join(details, " • "),
	}
}

// NewAzureADv1Provider creates an Azure AD v1 provider. tenantID defaults to
// "common" and resource to Microsoft Graph.
func NewAzureADv1Provider(tenantID, clientID, clientSecret, redirectURI, resource string) *AzureADv1Provider {
	if tenantID == "" {
		tenantID = defaultAzureTenant
	}
	if resource == "" {
		resource = defaultAzureResource
	}

	base := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2", url.PathEscape(tenantID))
	c := newOAuthClient(oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/authorize",
			TokenURL:  base + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	})
	c.authOptions = []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("resource", resource),
	}
	c.exchangeOptions = []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("resource", resource),
	}

	return &AzureADv1Provider{
		oauthClient: c,
		graphURL:    strings.TrimSuffix(resource, "/") + "/v1.0/me",
	}
}

func (p *AzureADv1Provider) Name() string        { return NameAzureADv1 }
func (p *AzureADv1Provider) DisplayName() string { return "Azure AD" }

func (p *AzureADv1Provider) AuthURL(state string, extraParams url.Values) string {
	return p.authURL(state, extraParams)
}

func (p *AzureADv1Provider) ExchangeCode(ctx context.Context, code string) (Token, error) {
	return p.exchange(ctx, code)
}

func (p *AzureADv1Provider) Profile(ctx context.Context, accessToken string, fields []string) (Profile, error) {
	endpoint := p.graphURL
	if len(fields) > 0 {
		endpoint += "?" + url.Values{"$select": {strings.Join(fields, ",")}}.Encode()
	}

	var profile AzureProfile
	if err := p.getJSON(ctx, accessToken, endpoint, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
