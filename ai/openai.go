package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Config represents generation provider configuration. Every supported
// provider speaks the OpenAI-compatible protocol.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, ollama, or any compatible endpoint
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
	Timeout     int     // stream timeout in seconds (default: 300)
}

// providerBaseURLs holds per-provider endpoint defaults, used when
// Config.BaseURL is not set explicitly.
var providerBaseURLs = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"ollama":      "http://localhost:11434/v1",
}

type provider struct {
	client      *openai.Client
	model       string
	name        string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewProvider creates a Provider backed by an OpenAI-compatible endpoint.
func NewProvider(cfg *Config) (Provider, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = providerBaseURLs[cfg.Provider]
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &provider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		name:        cfg.Provider,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
	}, nil
}

func (p *provider) StreamResponse(ctx context.Context, prompt string, history []Message) (<-chan string, <-chan *CallStats, <-chan error) {
	contentChan := make(chan string, 10)
	statsChan := make(chan *CallStats, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(statsChan)
		defer close(errChan)

		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
		for _, m := range history {
			messages = append(messages, convertMessage(m))
		}
		messages = append(messages, convertMessage(UserMessage(prompt)))

		req := openai.ChatCompletionRequest{
			Model:         p.model,
			MaxTokens:     p.maxTokens,
			Temperature:   p.temperature,
			Messages:      messages,
			StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		}

		startTime := time.Now()
		var firstDeltaTime time.Time
		deltaCount := 0

		slog.Debug("generation stream starting", "provider", p.name, "model", p.model, "history", len(history))
		stream, err := p.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			slog.Error("generation stream failed to open", "provider", p.name, "error", err)
			errChan <- classifyError(err)
			return
		}
		defer func() { _ = stream.Close() }()

		stats := &CallStats{}
		finish := func() {
			stats.TotalDurationMs = time.Since(startTime).Milliseconds()
			if !firstDeltaTime.IsZero() {
				stats.ThinkingDurationMs = firstDeltaTime.Sub(startTime).Milliseconds()
				stats.GenerationDurationMs = time.Since(firstDeltaTime).Milliseconds()
			}
			slog.Debug("generation stream completed",
				"provider", p.name,
				"deltas", deltaCount,
				"total_tokens", stats.TotalTokens,
				"duration_ms", stats.TotalDurationMs,
			)
			statsChan <- stats
		}

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				finish()
				return
			}
			if err != nil {
				slog.Error("generation stream receive error", "provider", p.name, "deltas_so_far", deltaCount, "error", err)
				errChan <- classifyError(err)
				return
			}

			if response.Usage != nil && response.Usage.TotalTokens > 0 {
				stats.PromptTokens = response.Usage.PromptTokens
				stats.CompletionTokens = response.Usage.CompletionTokens
				stats.TotalTokens = response.Usage.TotalTokens
			}
			if len(response.Choices) == 0 {
				continue
			}
			choice := response.Choices[0]

			if delta := choice.Delta.Content; delta != "" {
				if firstDeltaTime.IsZero() {
					firstDeltaTime = time.Now()
				}
				deltaCount++
				select {
				case contentChan <- delta:
				case <-ctx.Done():
					slog.Warn("generation stream cancelled during send", "provider", p.name, "deltas", deltaCount)
					return
				}
			}

			if choice.FinishReason == openai.FinishReasonContentFilter {
				errChan <- classifyError(&openai.APIError{Code: "content_filter", Message: "response cut off by content filter"})
				return
			}
		}
	}()

	return contentChan, statsChan, errChan
}

func convertMessage(m Message) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	switch m.Role {
	case "system":
		role = openai.ChatMessageRoleSystem
	case "assistant":
		role = openai.ChatMessageRoleAssistant
	}
	return openai.ChatCompletionMessage{Role: role, Content: m.Content}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
