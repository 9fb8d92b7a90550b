package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Version is the only supported config version
const Version = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the session store backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
	StorageRedis     StorageKind = "redis"
)

// Known provider keys under "providers"
const (
	ProviderGoogle    = "google"
	ProviderAzureADv1 = "azureADv1"
	ProviderLinkedIn  = "linkedIn"
	ProviderGitHub    = "github"
)

// RateLimitConfig bounds requests per client IP on the browser-facing auth routes
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	Burst             int     `json:"burst"`
	// TrustProxyHeaders keys clients on the first X-Forwarded-For hop. Enable
	// only behind a load balancer that overwrites the header.
	TrustProxyHeaders bool `json:"trustProxyHeaders,omitempty"`
}

// AppConfig is the HTTP surface of the bot
type AppConfig struct {
	BaseURL        string          `json:"baseURL"`
	Addr           string          `json:"addr"`
	Name           string          `json:"name"`
	AllowedOrigins []string        `json:"allowedOrigins,omitempty"`
	SigningKey     Secret          `json:"signingKey"`
	RateLimit      RateLimitConfig `json:"rateLimit"`
}

// StorageConfig selects and configures the session store
type StorageConfig struct {
	Kind                StorageKind   `json:"kind"`
	EncryptionKey       Secret        `json:"encryptionKey,omitempty"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
	RedisAddr           string        `json:"redisAddr,omitempty"`
	RedisPassword       Secret        `json:"redisPassword,omitempty"`
	RedisDB             int           `json:"redisDB,omitempty"`
	KeyPrefix           string        `json:"keyPrefix,omitempty"`
	// TTL is how long an untouched session is kept. Zero keeps sessions forever.
	TTL time.Duration `json:"ttl,omitempty"`
}

// OAuthClientConfig holds the credentials of a registered OAuth app
type OAuthClientConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret Secret `json:"clientSecret"`
}

// AzureADv1Config adds the v1 endpoint's tenant and resource
type AzureADv1Config struct {
	OAuthClientConfig
	TenantID string `json:"tenantId,omitempty"`
	Resource string `json:"resource,omitempty"`
}

// ProvidersConfig enables providers by presence
type ProvidersConfig struct {
	Google    *OAuthClientConfig `json:"google,omitempty"`
	AzureADv1 *AzureADv1Config   `json:"azureADv1,omitempty"`
	LinkedIn  *OAuthClientConfig `json:"linkedIn,omitempty"`
	GitHub    *OAuthClientConfig `json:"github,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version   string          `json:"version"`
	App       AppConfig       `json:"app"`
	Storage   StorageConfig   `json:"storage"`
	Providers ProvidersConfig `json:"providers"`
}

// RawConfigValue represents a value that could be a string or env ref.
// This is only used during parsing, not in the final config
type RawConfigValue struct {
	value string
}

// ParseConfigValue parses a JSON value that could be a string or reference object
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	// Try reference object
	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	if envVar, ok := ref["$env"]; ok {
		value := os.Getenv(envVar)
		if value == "" {
			return nil, fmt.Errorf("environment variable %s not set", envVar)
		}
		// Strip surrounding quotes if present (only matching pairs)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		return &RawConfigValue{value: value}, nil
	}

	return nil, fmt.Errorf("unknown reference type in config value")
}

// parseString resolves an optional raw value into dst, naming field in errors
func parseString(raw json.RawMessage, field string, dst *string) error {
	if raw == nil {
		return nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = parsed.value
	return nil
}

func parseSecret(raw json.RawMessage, field string, dst *Secret) error {
	var s string
	if err := parseString(raw, field, &s); err != nil {
		return err
	}
	if raw != nil {
		*dst = Secret(s)
	}
	return nil
}
