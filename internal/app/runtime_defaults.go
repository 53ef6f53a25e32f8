package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/authcore/pkg/crypto"
)

// generatedSecret describes a secret that may be filled with random bytes at startup.
type generatedSecret struct {
	key   string
	bytes int
	field func(*Config) *string
}

var runtimeSecrets = []generatedSecret{
	{key: "auth.jwt.secret", bytes: 48, field: func(c *Config) *string { return &c.Auth.JWT.Secret }},
}

// ApplyRuntimeDefaults fills blank secrets with random values and reports which keys were
// generated. A generated JWT secret does not survive a restart, so every issued access
// token dies with the process.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	generated := make(map[string]bool)
	for _, secret := range runtimeSecrets {
		target := secret.field(cfg)
		if strings.TrimSpace(*target) != "" {
			continue
		}
		value, err := crypto.GenerateToken(secret.bytes)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", secret.key, err)
		}
		*target = value
		generated[secret.key] = true
	}
	return generated, nil
}
