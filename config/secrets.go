package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

// keyringService groups this tool's secrets in the OS keychain.
const keyringService = "job-signals"

// lookupSecret prefers the environment and falls back to the OS keyring,
// where the account name is the upper-cased env var.
func lookupSecret(v *viper.Viper, key string) string {
	if s := env(v, key); s != "" {
		return s
	}
	s, err := keyring.Get(keyringService, strings.ToUpper(key))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// StoreSecret saves value for the env var name in the OS keyring.
func StoreSecret(name, value string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("secret name is empty")
	}
	if strings.TrimSpace(value) == "" {
		return errors.New("secret value is empty")
	}
	return keyring.Set(keyringService, strings.ToUpper(name), value)
}
