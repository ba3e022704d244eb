package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(url string) *Provider {
	return NewProvider(cfg.AIProviderCfg{Name: "groq", BaseURL: url + "/", APIKey: "key", Model: "m-1"}, logger.NewNop())
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m-1", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "fix it", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"actions\": []}"}}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	out, err := p.Complete(context.Background(), "fix it")
	require.NoError(t, err)

	assert.Equal(t, `{"actions": []}`, out)
	assert.Equal(t, "groq", p.Name())
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"rate limited", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": "slow down"}`))
		}},
		{"no choices", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		}},
		{"not json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestProvider(srv.URL).Complete(context.Background(), "p")
			assert.ErrorIs(t, err, e.ErrUpstreamUnavailable)
		})
	}
}

func TestComplete_RespectsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestProvider(srv.URL).Complete(ctx, "p")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewProviders_KeepsOrder(t *testing.T) {
	providers := NewProviders(&cfg.AICfg{Providers: []cfg.AIProviderCfg{{Name: "groq"}, {Name: "openai"}}}, logger.NewNop())

	require.Len(t, providers, 2)
	assert.Equal(t, "groq", providers[0].Name())
	assert.Equal(t, "openai", providers[1].Name())
}
