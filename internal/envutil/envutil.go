package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the runtime environment
const EnvVar = "IDENTITY_BOT_ENV"

// IsDev checks if we're running in development mode, where the bot may be
// served over plain http for local testing
func IsDev() bool {
	env := strings.ToLower(os.Getenv(EnvVar))
	return env == "development" || env == "dev"
}
