package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Defaults applied while parsing
const (
	DefaultAppName             = "identity-bot"
	DefaultFirestoreDatabase   = "(default)"
	DefaultFirestoreCollection = "identity_bot_sessions"
	DefaultKeyPrefix           = "identity-bot:"
	DefaultRequestsPerSecond   = 5
	DefaultBurst               = 10
)

// UnmarshalJSON implements custom unmarshaling for AppConfig
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type rawApp struct {
		BaseURL        json.RawMessage `json:"baseURL"`
		Addr           json.RawMessage `json:"addr"`
		Name           string          `json:"name"`
		AllowedOrigins []string        `json:"allowedOrigins"`
		SigningKey     json.RawMessage `json:"signingKey"`
		RateLimit      RateLimitConfig `json:"rateLimit"`
	}

	var raw rawApp
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Name = raw.Name
	if a.Name == "" {
		a.Name = DefaultAppName
	}
	a.AllowedOrigins = raw.AllowedOrigins
	a.RateLimit = raw.RateLimit
	if a.RateLimit.RequestsPerSecond == 0 {
		a.RateLimit.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if a.RateLimit.Burst == 0 {
		a.RateLimit.Burst = DefaultBurst
	}

	if err := parseString(raw.BaseURL, "baseURL", &a.BaseURL); err != nil {
		return err
	}
	a.BaseURL = strings.TrimSuffix(a.BaseURL, "/")
	if err := parseString(raw.Addr, "addr", &a.Addr); err != nil {
		return err
	}
	return parseSecret(raw.SigningKey, "signingKey", &a.SigningKey)
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                StorageKind     `json:"kind"`
		EncryptionKey       json.RawMessage `json:"encryptionKey"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
		RedisAddr           json.RawMessage `json:"redisAddr"`
		RedisPassword       json.RawMessage `json:"redisPassword"`
		RedisDB             int             `json:"redisDB"`
		KeyPrefix           string          `json:"keyPrefix"`
		TTL                 string          `json:"ttl"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	if s.Kind == "" {
		s.Kind = StorageMemory
	}
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection
	s.RedisDB = raw.RedisDB
	s.KeyPrefix = raw.KeyPrefix

	if raw.TTL != "" {
		ttl, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return fmt.Errorf("parsing ttl: %w", err)
		}
		s.TTL = ttl
	}

	// Apply backend defaults
	switch s.Kind {
	case StorageFirestore:
		if s.FirestoreDatabase == "" {
			s.FirestoreDatabase = DefaultFirestoreDatabase
		}
		if s.FirestoreCollection == "" {
			s.FirestoreCollection = DefaultFirestoreCollection
		}
	case StorageRedis:
		if s.KeyPrefix == "" {
			s.KeyPrefix = DefaultKeyPrefix
		}
	}

	if err := parseSecret(raw.EncryptionKey, "encryptionKey", &s.EncryptionKey); err != nil {
		return err
	}
	if err := parseString(raw.GCPProject, "gcpProject", &s.GCPProject); err != nil {
		return err
	}
	if err := parseString(raw.RedisAddr, "redisAddr", &s.RedisAddr); err != nil {
		return err
	}
	return parseSecret(raw.RedisPassword, "redisPassword", &s.RedisPassword)
}

func (o *OAuthClientConfig) UnmarshalJSON(data []byte) error {
	type rawClient struct {
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
	}

	var raw rawClient
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := parseString(raw.ClientID, "clientId", &o.ClientID); err != nil {
		return err
	}
	return parseSecret(raw.ClientSecret, "clientSecret", &o.ClientSecret)
}

// UnmarshalJSON is needed because the embedded OAuthClientConfig's method
// would otherwise be promoted and swallow the Azure-specific fields.
func (a *AzureADv1Config) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &a.OAuthClientConfig); err != nil {
		return err
	}

	var raw struct {
		TenantID json.RawMessage `json:"tenantId"`
		Resource string          `json:"resource"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Resource = raw.Resource
	return parseString(raw.TenantID, "tenantId", &a.TenantID)
}
