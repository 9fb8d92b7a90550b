package server

import (
	"net/http"
	"strings"

	jsonwriter "github.com/dgellow/identity-bot/internal/json"
	"github.com/dgellow/identity-bot/internal/log"
	"github.com/golang-jwt/jwt/v5"
)

// DecodeIDTokenHandler returns the claims of the bearer JWT without verifying
// its signature. It is a debugging aid for tokens the caller already holds.
func DecodeIDTokenHandler(realm string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			jsonwriter.WriteBearerChallenge(w, realm, "Missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			log.LogDebugWithFields("api", "Failed to decode ID token", map[string]any{
				"error": err.Error(),
			})
			jsonwriter.WriteBadRequest(w, "Token is not a JWT")
			return
		}

		_ = jsonwriter.Write(w, claims)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
