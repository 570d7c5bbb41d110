package observability

import (
	"testing"

	"github.com/smallbiznis/nftcheckout/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "",
		AppVersion:  "1.2.0",
		Environment: "production",
		Observability: config.ObservabilityConfig{
			LogLevel:      "warn",
			OtelEnabled:   true,
			OTLPEndpoint:  "collector:4317",
			OTLPProtocol:  "grpc",
			SamplingRatio: 7,
		},
	})

	assert.Equal(t, "nftcheckout", cfg.ServiceName)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDevelopmentSamplesEverything(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:   "development",
		Observability: config.ObservabilityConfig{OtelEnabled: true, SamplingRatio: 0.1},
	})

	assert.False(t, cfg.OtelEnabled, "no endpoint means no exporter")
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.True(t, cfg.Debug())
}
