package config

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/yield_service/pkg/secrets"
)

type mapProvider map[string]string

func (m mapProvider) GetSecret(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", secrets.ErrNotFound, key)
}

func withProvider(t *testing.T, p secrets.Provider) {
	t.Helper()
	orig := secretProviderFactory
	secretProviderFactory = func(context.Context, SecretsConfig) (secrets.Provider, error) { return p, nil }
	t.Cleanup(func() { secretProviderFactory = orig })
}

func TestResolveSecretsFromStore(t *testing.T) {
	withProvider(t, mapProvider{
		"JWT_SECRET":             "store-jwt",
		"GATEWAY_WEBHOOK_SECRET": "store-webhook",
	})

	cfg := &Config{Secrets: SecretsConfig{Provider: "aws"}}
	cfg.Gateway.WebhookSecret = "from-env"

	require.NoError(t, resolveSecrets(cfg))
	assert.Equal(t, "store-jwt", cfg.JWT.Secret)
	assert.Equal(t, "from-env", cfg.Gateway.WebhookSecret)
	assert.Empty(t, cfg.Tron.APIKey)
}

func TestResolveSecretsEnvProviderIsNoop(t *testing.T) {
	withProvider(t, mapProvider{"JWT_SECRET": "store-jwt"})

	cfg := &Config{Secrets: SecretsConfig{Provider: "env"}}
	require.NoError(t, resolveSecrets(cfg))
	assert.Empty(t, cfg.JWT.Secret)
}

func TestResolveSecretsUnknownProvider(t *testing.T) {
	cfg := &Config{Secrets: SecretsConfig{Provider: "vault"}}
	assert.Error(t, resolveSecrets(cfg))
}
