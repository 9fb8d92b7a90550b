package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/callback_success.html
var callbackSuccessTemplateHTML string

//go:embed templates/callback_failure.html
var callbackFailureTemplateHTML string

var callbackSuccessTemplate = template.Must(template.New("callback_success").Parse(callbackSuccessTemplateHTML))
var callbackFailureTemplate = template.Must(template.New("callback_failure").Parse(callbackFailureTemplateHTML))

// CallbackSuccessData is rendered after a successful code exchange
type CallbackSuccessData struct {
	DisplayName      string
	VerificationCode string
	ExpiresInMinutes int
}

// CallbackFailureData is rendered for every callback failure. It carries the
// provider name only; the cause is never shown.
type CallbackFailureData struct {
	DisplayName string
}
