package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/dgellow/identity-bot/internal/envutil"
	"github.com/dgellow/identity-bot/internal/log"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != Version {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// secretPaths lists fields that must never hold plain text
func secretPaths(rawConfig map[string]any) map[string]any {
	found := map[string]any{}
	if app, ok := rawConfig["app"].(map[string]any); ok {
		if v, ok := app["signingKey"]; ok {
			found["app.signingKey"] = v
		}
	}
	if storage, ok := rawConfig["storage"].(map[string]any); ok {
		for _, name := range []string{"encryptionKey", "redisPassword"} {
			if v, ok := storage[name]; ok {
				found["storage."+name] = v
			}
		}
	}
	if providers, ok := rawConfig["providers"].(map[string]any); ok {
		for name, p := range providers {
			if pm, ok := p.(map[string]any); ok {
				if v, ok := pm["clientSecret"]; ok {
					found["providers."+name+".clientSecret"] = v
				}
			}
		}
	}
	return found
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for path, value := range secretPaths(rawConfig) {
		// Check if it's a string (bad) or a map (good - env ref)
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", path)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", path)
			}
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.App.BaseURL == "" {
		return fmt.Errorf("app.baseURL is required")
	}
	u, err := url.Parse(config.App.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("app.baseURL must be an absolute URL, got %q", config.App.BaseURL)
	}
	// OAuth redirect URIs and the sign-in link are built from baseURL
	if u.Scheme != "https" && !envutil.IsDev() {
		return fmt.Errorf("app.baseURL must use https (set %s=dev for local http)", envutil.EnvVar)
	}
	if config.App.Addr == "" {
		return fmt.Errorf("app.addr is required")
	}
	if len(config.App.SigningKey) < 32 {
		return fmt.Errorf("app.signingKey must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(config.App.SigningKey))
	}
	if config.App.RateLimit.RequestsPerSecond < 0 || config.App.RateLimit.Burst < 0 {
		return fmt.Errorf("app.rateLimit values cannot be negative")
	}

	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	return validateProvidersConfig(&config.Providers)
}

func validateStorageConfig(s *StorageConfig) error {
	if s.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative")
	}

	switch s.Kind {
	case StorageMemory:
		if s.EncryptionKey != "" {
			log.LogWarn("storage.encryptionKey is ignored for memory storage")
		}
		return nil
	case StorageFirestore:
		if s.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	case StorageRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("redisAddr is required when using redis storage")
		}
		if s.RedisDB < 0 {
			return fmt.Errorf("redisDB cannot be negative")
		}
	default:
		return fmt.Errorf("unknown storage kind %q (memory, firestore or redis)", s.Kind)
	}

	if len(s.EncryptionKey) != 32 {
		return fmt.Errorf("encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(s.EncryptionKey))
	}
	return nil
}

func validateProvidersConfig(p *ProvidersConfig) error {
	clients := map[string]*OAuthClientConfig{}
	if p.Google != nil {
		clients[ProviderGoogle] = p.Google
	}
	if p.AzureADv1 != nil {
		clients[ProviderAzureADv1] = &p.AzureADv1.OAuthClientConfig
	}
	if p.LinkedIn != nil {
		clients[ProviderLinkedIn] = p.LinkedIn
	}
	if p.GitHub != nil {
		clients[ProviderGitHub] = p.GitHub
	}

	if len(clients) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	for name, c := range clients {
		if c.ClientID == "" {
			return fmt.Errorf("providers.%s.clientId is required", name)
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("providers.%s.clientSecret is required", name)
		}
	}
	return nil
}
