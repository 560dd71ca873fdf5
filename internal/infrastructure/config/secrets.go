package config

import (
	"context"
	"fmt"
	"time"

	"github.com/yieldvault/yield_service/pkg/secrets"
)

// secretProviderFactory is replaced in tests
var secretProviderFactory = func(ctx context.Context, cfg SecretsConfig) (secrets.Provider, error) {
	return secrets.NewAWSSecretsManagerProvider(ctx, cfg.Region, cfg.Prefix)
}

// resolveSecrets fills credentials left empty by files and environment from
// the configured secret store
func resolveSecrets(config *Config) error {
	switch config.Secrets.Provider {
	case "", "env":
		return nil
	case "aws":
	default:
		return fmt.Errorf("unknown secrets provider %q", config.Secrets.Provider)
	}

	timeout := time.Duration(config.Secrets.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	provider, err := secretProviderFactory(ctx, config.Secrets)
	if err != nil {
		return fmt.Errorf("failed to create secrets provider: %w", err)
	}

	return secrets.Resolve(ctx, provider, map[string]*string{
		"JWT_SECRET":             &config.JWT.Secret,
		"DATABASE_PASSWORD":      &config.Database.Password,
		"REDIS_PASSWORD":         &config.Redis.Password,
		"GATEWAY_API_KEY":        &config.Gateway.APIKey,
		"GATEWAY_WEBHOOK_SECRET": &config.Gateway.WebhookSecret,
		"TRON_API_KEY":           &config.Tron.APIKey,
		"SENDGRID_API_KEY":       &config.Notification.SendGridAPIKey,
	})
}
