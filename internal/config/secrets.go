package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	secretService     = "nestscout"
	openRouterAccount = "openrouter_api_key"
	apiTokenAccount   = "api_token"
)

// SecretStore reads and writes secrets in the platform secret store.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store: macOS Keychain, or a
// 0600 secrets.json file elsewhere.
func NewKeychain() SecretStore { return keychainStore{} }

type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token guarding the HTTP API. The
// NESTSCOUT_API_TOKEN variable wins; otherwise the token is read from the
// secret store, generating and persisting one on first use.
func GetAPIToken(kc SecretStore) (string, error) {
	return apiToken(kc, environ(nil))
}

func apiToken(kc SecretStore, env lookupFunc) (string, error) {
	if t, ok := env(EnvPrefix + "API_TOKEN"); ok && t != "" {
		return t, nil
	}
	if t, err := kc.Get(secretService, apiTokenAccount); err == nil && t != "" {
		return t, nil
	}
	token := uuid.NewString()
	if err := kc.Set(secretService, apiTokenAccount, token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return token, nil
}
