package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/awayreply/internal/instrumentation"
)

func TestNewMetricsServer(t *testing.T) {
	tests := []struct {
		name        string
		config      func(t *testing.T) MetricsServerConfig
		errContains string
	}{
		{
			name: "valid config",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{Addr: ":9090", InstrumentationProvider: createTestProvider(t, "prometheus")}
			},
		},
		{
			name: "default addr",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{InstrumentationProvider: createTestProvider(t, "prometheus")}
			},
		},
		{
			name: "nil provider",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{Addr: ":9090"}
			},
			errContains: "instrumentation provider is required",
		},
		{
			name: "disabled provider",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{Addr: ":9090", InstrumentationProvider: createDisabledProvider(t)}
			},
			errContains: "instrumentation provider is not enabled",
		},
		{
			name: "non-prometheus exporter",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{Addr: ":9090", InstrumentationProvider: createTestProvider(t, "stdout")}
			},
			errContains: "requires the prometheus exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewMetricsServer(tt.config(t))
			if tt.errContains != "" {
				assert.ErrorContains(t, err, tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, server)
		})
	}

	server, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: createTestProvider(t, "prometheus")})
	require.NoError(t, err)
	assert.Equal(t, DefaultMetricsAddr, server.Addr())
}

func TestMetricsServer_StartAndShutdown(t *testing.T) {
	provider := createTestProvider(t, "prometheus")
	provider.Metrics().RecordOAuthAuth(context.Background(), instrumentation.OAuthResultSuccess)

	server, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    "127.0.0.1:0",
		InstrumentationProvider: provider,
	})
	require.NoError(t, err)

	ready := make(chan struct{})
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.StartWithReadySignal(ready) }()

	select {
	case <-ready:
	case err := <-serverErr:
		t.Fatalf("metrics server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server start timed out")
	}

	resp, err := http.Get("http://" + server.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + server.Addr() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "oauth_auth")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
	assert.NoError(t, <-serverErr)
}

func TestMetricsServer_ShutdownWithoutStart(t *testing.T) {
	server, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    ":9090",
		InstrumentationProvider: createTestProvider(t, "prometheus"),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))
}

func TestMetricsServer_ListenError(t *testing.T) {
	server, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    "256.0.0.1:bad",
		InstrumentationProvider: createTestProvider(t, "prometheus"),
	})
	require.NoError(t, err)
	assert.ErrorContains(t, server.Start(), "failed to listen")
}

// Helper functions

func createTestProvider(t *testing.T, exporter string) *instrumentation.Provider {
	t.Helper()
	ctx := context.Background()
	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: exporter,
		TracingExporter: "none",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = provider.Shutdown(ctx)
	})
	return provider
}

func createDisabledProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	ctx := context.Background()
	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	require.NoError(t, err)
	return provider
}
