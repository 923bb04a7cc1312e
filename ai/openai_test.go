package ai

import (
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDefaults(t *testing.T) {
	p, err := NewProvider(&Config{Provider: "openai", Model: "gpt-4o-mini", APIKey: "test"})
	require.NoError(t, err)

	impl, ok := p.(*provider)
	require.True(t, ok)
	assert.Equal(t, 2048, impl.maxTokens)
	assert.InDelta(t, 0.7, impl.temperature, 0.001)
	assert.Equal(t, 5*time.Minute, impl.timeout)
}

func TestNewProviderExplicitConfig(t *testing.T) {
	p, err := NewProvider(&Config{
		Provider:    "ollama",
		Model:       "qwen2.5",
		MaxTokens:   512,
		Temperature: 0.2,
		Timeout:     30,
	})
	require.NoError(t, err)

	impl := p.(*provider)
	assert.Equal(t, 512, impl.maxTokens)
	assert.InDelta(t, 0.2, impl.temperature, 0.001)
	assert.Equal(t, 30*time.Second, impl.timeout)
}

func TestConvertMessage(t *testing.T) {
	assert.Equal(t, openai.ChatMessageRoleSystem, convertMessage(SystemPrompt("be brief")).Role)
	assert.Equal(t, openai.ChatMessageRoleUser, convertMessage(UserMessage("hi")).Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, convertMessage(AssistantMessage("hello")).Role)
	assert.Equal(t, openai.ChatMessageRoleUser, convertMessage(Message{Role: "unknown", Content: "x"}).Role)
	assert.Equal(t, "hi", convertMessage(UserMessage("hi")).Content)
}
