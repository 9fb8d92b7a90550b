package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken is returned for tokens that are malformed or carry a bad signature
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned for correctly signed tokens past their expiry
	ErrTokenExpired = errors.New("token expired")
)

// TokenSigner provides HMAC-signed JSON tokens with optional expiry
type TokenSigner struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenSigner creates a new token signer
func NewTokenSigner(signingKey []byte, ttl time.Duration) TokenSigner {
	return TokenSigner{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// TokenData wraps user data with metadata
type TokenData struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at,omitzero"`
}

// SignData returns the base64 URL-encoded HMAC-SHA256 of data
func SignData(data string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignedData reports whether signature is the HMAC of data under key.
// The comparison is constant time.
func ValidateSignedData(data, signature string, key []byte) bool {
	got, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign marshals data to JSON, signs it with HMAC, and returns a URL-safe token
func (ts *TokenSigner) Sign(v any) (string, error) {
	userData, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	tokenData := TokenData{Data: userData}
	if ts.ttl > 0 {
		tokenData.ExpiresAt = ts.now().Add(ts.ttl)
	}

	jsonData, err := json.Marshal(tokenData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token data: %w", err)
	}

	signature := SignData(string(jsonData), ts.signingKey)
	return base64.RawURLEncoding.EncodeToString(jsonData) + "." + signature, nil
}

// Verify validates the signature, checks expiry, and unmarshals the data
func (ts *TokenSigner) Verify(token string, v any) error {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(signature, ".") {
		return fmt.Errorf("%w: bad format", ErrInvalidToken)
	}

	jsonData, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("%w: failed to decode token data", ErrInvalidToken)
	}

	if !ValidateSignedData(string(jsonData), signature, ts.signingKey) {
		return fmt.Errorf("%w: bad signature", ErrInvalidToken)
	}

	var tokenData TokenData
	if err := json.Unmarshal(jsonData, &tokenData); err != nil {
		return fmt.Errorf("%w: failed to unmarshal token data", ErrInvalidToken)
	}

	if !tokenData.ExpiresAt.IsZero() && ts.now().After(tokenData.ExpiresAt) {
		return ErrTokenExpired
	}

	if err := json.Unmarshal(tokenData.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	return nil
}
