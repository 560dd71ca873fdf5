package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the subset of the Secrets Manager client in use
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerProvider implements Provider using AWS Secrets Manager.
// Key names are prefixed, so JWT_SECRET with prefix "yield/prod/" reads
// the secret "yield/prod/JWT_SECRET".
type AWSSecretsManagerProvider struct {
	client SecretsManagerAPI
	prefix string
}

// NewAWSSecretsManagerProvider loads the default AWS credential chain
func NewAWSSecretsManagerProvider(ctx context.Context, region, prefix string) (*AWSSecretsManagerProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSSecretsManagerProviderWithClient(secretsmanager.NewFromConfig(cfg), prefix), nil
}

func NewAWSSecretsManagerProviderWithClient(client SecretsManagerAPI, prefix string) *AWSSecretsManagerProvider {
	return &AWSSecretsManagerProvider{client: client, prefix: prefix}
}

func (p *AWSSecretsManagerProvider) GetSecret(ctx context.Context, key string) (string, error) {
	result, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.prefix + key),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}

	return aws.ToString(result.SecretString), nil
}

// GetSecretJSON retrieves a secret and unmarshals it as JSON
func (p *AWSSecretsManagerProvider) GetSecretJSON(ctx context.Context, key string, v interface{}) error {
	value, err := p.GetSecret(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), v)
}
