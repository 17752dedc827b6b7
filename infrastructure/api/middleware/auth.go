package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the key on write requests.
const APIKeyHeader = "X-API-KEY"

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	apiKeys [][]byte
	enabled bool
}

// NewAuthConfigWithKeys creates a new AuthConfig. Empty keys are ignored and
// an empty list disables authentication.
func NewAuthConfigWithKeys(apiKeys []string) AuthConfig {
	var keys [][]byte
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return AuthConfig{enabled: false}
	}
	return AuthConfig{
		apiKeys: keys,
		enabled: true,
	}
}

// Enabled returns true if authentication is enabled.
func (c AuthConfig) Enabled() bool { return c.enabled }

// Valid reports whether key is one of the configured keys.
func (c AuthConfig) Valid(key string) bool {
	candidate := []byte(key)
	ok := 0
	for _, k := range c.apiKeys {
		ok |= subtle.ConstantTimeCompare(k, candidate)
	}
	return ok == 1
}

// WriteProtect returns a middleware that requires a valid X-API-KEY header on
// mutating requests (POST, PUT, PATCH, DELETE). Reads pass through.
func WriteProtect(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.enabled || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" {
				WriteError(w, r, Unauthorized("X-API-KEY header is required"), nil)
				return
			}
			if !config.Valid(apiKey) {
				WriteError(w, r, Unauthorized("invalid API key"), nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteProtectAuth creates write protection from a slice of API keys.
func WriteProtectAuth(apiKeys []string) func(http.Handler) http.Handler {
	return WriteProtect(NewAuthConfigWithKeys(apiKeys))
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
