package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_String(t *testing.T) {
	assert.Equal(t, "***", Secret("google-client-secret").String())
	assert.Equal(t, "", Secret("").String())
	assert.Equal(t, "key=***", fmt.Sprintf("key=%s", Secret("signing-key")))
}

func secretConfig() Config {
	return Config{
		Version: Version,
		App: AppConfig{
			BaseURL:    "https://bot.example.com",
			Addr:       ":3978",
			SigningKey: Secret(testSigningKey),
		},
		Storage: StorageConfig{
			Kind:          StorageRedis,
			RedisAddr:     "localhost:6379",
			EncryptionKey: Secret(testEncryptionKey),
			RedisPassword: Secret("redis-pw-12345"),
		},
		Providers: ProvidersConfig{
			Google: &OAuthClientConfig{ClientID: "google-id", ClientSecret: "google-secret"},
			AzureADv1: &AzureADv1Config{
				OAuthClientConfig: OAuthClientConfig{ClientID: "azure-id", ClientSecret: "azure-secret"},
				TenantID:          "common",
			},
		},
	}
}

var plainSecrets = []string{testSigningKey, testEncryptionKey, "redis-pw-12345", "google-secret", "azure-secret"}

func TestSecret_RedactedInJSON(t *testing.T) {
	data, err := json.Marshal(secretConfig())
	require.NoError(t, err)

	for _, s := range plainSecrets {
		assert.NotContains(t, string(data), s)
	}
	assert.Contains(t, string(data), `"clientId":"google-id"`)
	assert.Contains(t, string(data), `"clientSecret":"***"`)
}

func TestSecret_RedactedWhenFormatted(t *testing.T) {
	cfg := secretConfig()

	for _, out := range []string{
		fmt.Sprintf("%v", cfg.App),
		fmt.Sprintf("%+v", cfg.Storage),
		fmt.Sprintf("%v", *cfg.Providers.Google),
		fmt.Sprintf("%+v", *cfg.Providers.AzureADv1),
	} {
		for _, s := range plainSecrets {
			assert.NotContains(t, out, s)
		}
	}
}
