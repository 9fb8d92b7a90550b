package idp

import (
	"fmt"

	"github.com/dgellow/identity-bot/internal/config"
	"github.com/dgellow/identity-bot/internal/urlutil"
)

// CallbackPath returns the redirect path registered with a provider
func CallbackPath(name string) string {
	return "/auth/" + name + "/callback"
}

// NewRegistryFromConfig builds a registry holding every configured provider.
// Redirect URIs are derived from baseURL.
func NewRegistryFromConfig(cfg config.ProvidersConfig, baseURL string) (*Registry, error) {
	redirect := func(name string) (string, error) {
		uri, err := urlutil.JoinPath(baseURL, CallbackPath(name))
		if err != nil {
			return "", fmt.Errorf("building redirect URI for %s: %w", name, err)
		}
		return uri, nil
	}

	var providers []Provider

	if c := cfg.Google; c != nil {
		uri, err := redirect(NameGoogle)
		if err != nil {
			return nil, err
		}
		providers = append(providers, NewGoogleProvider(c.ClientID, string(c.ClientSecret), uri))
	}

	if c := cfg.AzureADv1; c != nil {
		uri, err := redirect(NameAzureADv1)
		if err != nil {
			return nil, err
		}
		providers = append(providers, NewAzureADv1Provider(c.TenantID, c.ClientID, string(c.ClientSecret), uri, c.Resource))
	}

	if c := cfg.LinkedIn; c != nil {
		uri, err := redirect(NameLinkedIn)
		if err != nil {
			return nil, err
		}
		providers = append(providers, NewLinkedInProvider(c.ClientID, string(c.ClientSecret), uri))
	}

	if c := cfg.GitHub; c != nil {
		uri, err := redirect(NameGitHub)
		if err != nil {
			return nil, err
		}
		providers = append(providers, NewGitHubProvider(c.ClientID, string(c.ClientSecret), uri))
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no identity providers configured")
	}
	return NewRegistry(providers...)
}
