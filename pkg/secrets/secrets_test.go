package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsManager struct {
	values map[string]string
	calls  int
	err    error
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("missing")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestAWSProviderPrefixesKeys(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]string{"yield/prod/JWT_SECRET": "s3cret"}}
	p := NewAWSSecretsManagerProviderWithClient(fake, "yield/prod/")

	v, err := p.GetSecret(context.Background(), "JWT_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	_, err = p.GetSecret(context.Background(), "GATEWAY_API_KEY")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveFillsOnlyEmptyTargets(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]string{
		"JWT_SECRET":      "from-store",
		"GATEWAY_API_KEY": "gw-key",
	}}
	p := NewAWSSecretsManagerProviderWithClient(fake, "")

	jwt := ""
	gateway := "already-set"
	sendgrid := ""
	err := Resolve(context.Background(), p, map[string]*string{
		"JWT_SECRET":       &jwt,
		"GATEWAY_API_KEY":  &gateway,
		"SENDGRID_API_KEY": &sendgrid,
	})
	require.NoError(t, err)

	assert.Equal(t, "from-store", jwt)
	assert.Equal(t, "already-set", gateway)
	assert.Empty(t, sendgrid)
}

func TestResolveStopsOnStoreFailure(t *testing.T) {
	p := NewAWSSecretsManagerProviderWithClient(&fakeSecretsManager{err: errors.New("access denied")}, "")

	target := ""
	err := Resolve(context.Background(), p, map[string]*string{"JWT_SECRET": &target})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCachedProvider(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]string{"K": "v"}}
	cached := NewCachedProvider(NewAWSSecretsManagerProviderWithClient(fake, ""), time.Minute)
	now := time.Now()
	cached.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		v, err := cached.GetSecret(context.Background(), "K")
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, 1, fake.calls)

	now = now.Add(2 * time.Minute)
	_, err := cached.GetSecret(context.Background(), "K")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
}
