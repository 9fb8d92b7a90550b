package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messages(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Path + ": " + e.Message
	}
	return out
}

func TestValidateBytes(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantValid     bool
		errorContains string
		warnContains  string
	}{
		{
			name: "valid_minimal",
			body: `{"version": "v1",
				"app": {"baseURL": "https://b.example.com", "addr": ":3978", "signingKey": {"$env": "K"}, "allowedOrigins": ["https://x"]},
				"providers": {"google": {"clientId": "id", "clientSecret": {"$env": "S"}}}}`,
			wantValid:    true,
			warnContains: "storage",
		},
		{
			name:          "invalid_json",
			body:          `{`,
			errorContains: "invalid JSON",
		},
		{
			name: "bash_style_secret",
			body: `{"version": "v1",
				"app": {"baseURL": "https://b.example.com", "addr": ":3978", "signingKey": "$SIGNING_KEY"},
				"providers": {"google": {"clientId": "id", "clientSecret": {"$env": "S"}}}}`,
			errorContains: "found bash-style syntax",
			warnContains:  "app.signingKey",
		},
		{
			name: "unknown_provider",
			body: `{"version": "v1",
				"app": {"baseURL": "https://b.example.com", "addr": ":3978", "signingKey": {"$env": "K"}},
				"providers": {"okta": {"clientId": "id", "clientSecret": {"$env": "S"}}}}`,
			errorContains: "unknown provider 'okta'",
		},
		{
			name: "redis_without_encryption_key",
			body: `{"version": "v1",
				"app": {"baseURL": "https://b.example.com", "addr": ":3978", "signingKey": {"$env": "K"}},
				"storage": {"kind": "redis", "redisAddr": "localhost:6379"},
				"providers": {"github": {"clientId": "id", "clientSecret": {"$env": "S"}}}}`,
			errorContains: "encryptionKey is required for redis storage",
		},
		{
			name: "missing_app",
			body: `{"version": "v1",
				"providers": {"github": {"clientId": "id", "clientSecret": {"$env": "S"}}}}`,
			errorContains: "app field is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateBytes([]byte(tt.body))
			require.NotNil(t, result)
			assert.Equal(t, tt.wantValid, result.IsValid(), messages(result.Errors))

			if tt.errorContains != "" {
				assert.Contains(t, strings.Join(messages(result.Errors), "\n"), tt.errorContains)
			}
			if tt.warnContains != "" {
				assert.Contains(t, strings.Join(messages(result.Warnings), "\n"), tt.warnContains)
			}
		})
	}
}

func TestValidateFile_MissingFile(t *testing.T) {
	_, err := ValidateFile("/nonexistent/config.json")
	assert.Error(t, err)
}
