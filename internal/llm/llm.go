// Package llm talks to chat-completion providers for live translation
// and answer hints.
package llm

import (
	"context"
	"fmt"

	"github.com/meetingassist/meeting-core/internal/types"
)

// Provider is a chat-completion backend.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Service wraps a provider with the runtime's prompt templates.
type Service struct {
	provider Provider
}

func NewService(provider Provider) *Service {
	return &Service{provider: provider}
}

// TranslateToChinese translates recognized English speech.
func (s *Service) TranslateToChinese(ctx context.Context, sourceText string) (string, error) {
	system := "You are a real-time translator. Translate English speech into concise and natural Simplified Chinese. Keep original meaning and tone."
	user := fmt.Sprintf("Translate this into Chinese only:\n\n%s", sourceText)
	return s.provider.Complete(ctx, system, user)
}

// SuggestAnswer produces a short speaking hint for a detected question.
func (s *Service) SuggestAnswer(ctx context.Context, profileContext, latestQuestion string) (string, error) {
	system := "You generate concise answer hints for live meetings. Reply in Chinese Markdown bullets with practical speaking suggestions."
	user := fmt.Sprintf(
		"Meeting context:\n%s\n\nDetected question:\n%s\n\nProvide a concise answer suggestion.",
		profileContext, latestQuestion)
	return s.provider.Complete(ctx, system, user)
}

// FromSettings builds a service from the stored LLM settings and API
// key, or nil when no key is configured.
func FromSettings(settings types.LlmSettings, apiKey string) *Service {
	if apiKey == "" {
		return nil
	}

	switch settings.APIFormat {
	case "openai":
		baseURL := settings.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return NewService(NewOpenAICompatClient(nil, apiKey, baseURL, settings.Model))
	default:
		baseURL := settings.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com/v1"
		}
		return NewService(NewClaudeClient(nil, apiKey, baseURL, settings.Model))
	}
}
