package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), Config{
		ServiceVersion: "1.4.2",
		Environment:    "staging",
		Attributes: map[string]string{
			"ledger.asset": "USDT",
			"ledger.chain": "",
		},
	})
	require.NoError(t, err)

	got := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		got[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, DefaultServiceName, got["service.name"])
	assert.Equal(t, "1.4.2", got["service.version"])
	assert.Equal(t, "staging", got["deployment.environment"])
	assert.Equal(t, "USDT", got["ledger.asset"])
	assert.NotContains(t, got, attribute.Key("ledger.chain"))
}

func TestUseTLS(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"production ignores insecure", Config{Environment: "production", Insecure: true}, true},
		{"development insecure", Config{Environment: "development", Insecure: true}, false},
		{"development default", Config{Environment: "development"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.useTLS())
		})
	}
}

func TestNewSamplerFollowsParent(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "ParentBased")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased")
}
