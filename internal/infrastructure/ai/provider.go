package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

const (
	systemPrompt = "You are an assistant that fixes marketplace product cards rejected by moderation. " +
		"Reply with a single JSON object and nothing else."
	maxErrorBody = 512
)

// Provider — клиент OpenAI-совместимого API chat completions (Groq, OpenAI, Gemini).
// Таймаут попытки задаёт вызывающий через контекст.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  logger.Logger
}

func NewProvider(cfg cfg.AIProviderCfg, logger logger.Logger) *Provider {
	return &Provider{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{},
		logger:  logger,
	}
}

// NewProviders создаёт цепочку провайдеров в порядке конфигурации.
func NewProviders(cfg *cfg.AICfg, logger logger.Logger) []usecase.FixProvider {
	providers := make([]usecase.FixProvider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, NewProvider(p, logger.With("provider", p.Name)))
	}
	return providers
}

func (p *Provider) Name() string {
	return p.name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete отправляет prompt и возвращает текст первого варианта ответа.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	const op = "ai.Provider.Complete"

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", e.Wrap(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", e.Wrap(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", e.Upstream(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", e.Upstream(op, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", e.Upstream(op, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", e.Upstream(op, fmt.Errorf("empty completion"))
	}

	p.logger.Debugf("completion received: %d chars", len(out.Choices[0].Message.Content))
	return out.Choices[0].Message.Content, nil
}
