package server

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/dgellow/identity-bot/internal/auth"
	"github.com/dgellow/identity-bot/internal/crypto"
	jsonwriter "github.com/dgellow/identity-bot/internal/json"
	"github.com/dgellow/identity-bot/internal/log"
	"github.com/dgellow/identity-bot/internal/oauthstate"
)

// AuthHandlers serves the browser leg of sign-in
type AuthHandlers struct {
	auth *auth.Service
}

// NewAuthHandlers creates the sign-in HTTP handlers
func NewAuthHandlers(svc *auth.Service) *AuthHandlers {
	return &AuthHandlers{auth: svc}
}

// CallbackHandler handles GET /auth/{provider}/callback
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	providerName := r.PathValue("provider")
	q := r.URL.Query()

	res, err := h.auth.HandleCallback(r.Context(), providerName, q.Get("state"), q.Get("code"), q.Get("error"))
	if err != nil {
		h.callbackFailed(w, providerName, err)
		return
	}

	log.LogInfoWithFields("auth", "OAuth callback accepted, awaiting verification code", map[string]any{
		"provider":     providerName,
		"conversation": res.Key.ConversationID,
	})

	renderPage(w, http.StatusOK, callbackSuccessTemplate, CallbackSuccessData{
		DisplayName:      res.DisplayName,
		VerificationCode: res.VerificationCode,
		ExpiresInMinutes: int(crypto.VerificationCodeTTL.Minutes()),
	})
}

func (h *AuthHandlers) callbackFailed(w http.ResponseWriter, providerName string, err error) {
	fields := map[string]any{"provider": providerName}
	status := http.StatusBadRequest

	switch {
	case errors.Is(err, oauthstate.ErrMalformedState):
		// The raw state is attacker-controlled; only the kind is logged
		log.LogWarnWithFields("auth", "OAuth callback with malformed state", fields)
	case errors.Is(err, auth.ErrUnknownProvider):
		log.LogWarnWithFields("auth", "OAuth callback for unknown provider", fields)
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrStateMismatch):
		fields["error"] = err.Error()
		log.LogWarnWithFields("auth", "OAuth state mismatch", fields)
	case errors.Is(err, auth.ErrExchangeFailed):
		fields["error"] = err.Error()
		log.LogErrorWithFields("auth", "Failed to exchange authorization code", fields)
		status = http.StatusBadGateway
	default:
		fields["error"] = err.Error()
		log.LogErrorWithFields("auth", "OAuth callback failed", fields)
		status = http.StatusInternalServerError
	}

	data := CallbackFailureData{}
	if p, ok := h.auth.Providers().Get(providerName); ok {
		data.DisplayName = p.DisplayName()
	}
	renderPage(w, status, callbackFailureTemplate, data)
}

// StartHandler handles GET /auth/start?token=... by redirecting to the
// provider authorization URL sealed in the token
func (h *AuthHandlers) StartHandler(w http.ResponseWriter, r *http.Request) {
	target, err := h.auth.ResolveStartLink(r.URL.Query().Get("token"))
	if err != nil {
		log.LogWarnWithFields("auth", "Rejected sign-in link", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteBadRequest(w, "Invalid or expired sign-in link")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

func renderPage(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		log.LogError("Failed to render %s: %v", tmpl.Name(), err)
	}
}
