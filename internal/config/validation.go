package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"
)

var (
	bashStyleRegex        = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)
	bashStyleCaptureRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)
)

var knownProviders = []string{ProviderGoogle, ProviderAzureADv1, ProviderLinkedIn, ProviderGitHub}

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes is ValidateFile for an in-memory document
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", Version)
	} else if version != Version {
		result.addError("version", "unsupported version '%s' - use '%s'", version, Version)
	}

	validateAppStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)
	validateProvidersStructure(rawConfig, result)

	return result
}

func validateAppStructure(rawConfig map[string]any, result *ValidationResult) {
	app, ok := rawConfig["app"].(map[string]any)
	if !ok {
		result.addError("app", "app field is required and must be an object")
		return
	}

	if _, ok := app["baseURL"]; !ok {
		result.addError("app.baseURL", "baseURL is required. Example: \"https://bot.example.com\"")
	}
	if _, ok := app["addr"]; !ok {
		result.addError("app.addr", "addr is required. Example: \":3978\" or \"0.0.0.0:3978\"")
	}
	if key, ok := app["signingKey"]; !ok {
		result.addError("app.signingKey", "signingKey is required. Hint: Must be at least 32 bytes long for HMAC-SHA256")
	} else if err := validateEnvVarReference(key, "signingKey", "app.signingKey"); err != nil {
		result.Errors = append(result.Errors, *err)
	}

	if origins, ok := app["allowedOrigins"].([]any); !ok || len(origins) == 0 {
		result.addWarning("app.allowedOrigins", "no allowed origins configured - cross-origin calls to /api will be rejected")
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		result.addWarning("storage", "no storage configured - sessions will be kept in memory and lost on restart")
		return
	}

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageMemory:
		return
	case StorageFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required for firestore storage")
		}
	case StorageRedis:
		if _, ok := storage["redisAddr"]; !ok {
			result.addError("storage.redisAddr", "redisAddr is required for redis storage. Example: \"localhost:6379\"")
		}
		if pw, ok := storage["redisPassword"]; ok {
			if err := validateEnvVarReference(pw, "redisPassword", "storage.redisPassword"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - use memory, firestore or redis", kind)
		return
	}

	if key, ok := storage["encryptionKey"]; !ok {
		result.addError("storage.encryptionKey", "encryptionKey is required for %s storage. Hint: Must be exactly 32 bytes", kind)
	} else if err := validateEnvVarReference(key, "encryptionKey", "storage.encryptionKey"); err != nil {
		result.Errors = append(result.Errors, *err)
	}

	if ttl, ok := storage["ttl"].(string); ok {
		if _, err := time.ParseDuration(ttl); err != nil {
			result.addError("storage.ttl", "invalid duration '%s'. Example: \"720h\"", ttl)
		}
	}
}

func validateProvidersStructure(rawConfig map[string]any, result *ValidationResult) {
	providers, ok := rawConfig["providers"].(map[string]any)
	if !ok || len(providers) == 0 {
		result.addError("providers", "at least one provider is required. Options: %s", strings.Join(knownProviders, ", "))
		return
	}

	for name, p := range providers {
		path := "providers." + name
		if !slices.Contains(knownProviders, name) {
			result.addError(path, "unknown provider '%s'. Options: %s", name, strings.Join(knownProviders, ", "))
			continue
		}
		pm, ok := p.(map[string]any)
		if !ok {
			result.addError(path, "provider config must be an object")
			continue
		}
		if _, ok := pm["clientId"]; !ok {
			result.addError(path+".clientId", "clientId is required")
		}
		if secret, ok := pm["clientSecret"]; !ok {
			result.addError(path+".clientSecret", "clientSecret is required")
		} else if err := validateEnvVarReference(secret, "clientSecret", path+".clientSecret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleCaptureRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
