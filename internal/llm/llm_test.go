package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetingassist/meeting-core/internal/jsoncodec"
	"github.com/meetingassist/meeting-core/internal/types"
)

func TestClaudeComplete(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotRequest claudeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		body, _ := io.ReadAll(r.Body)
		_ = jsoncodec.Unmarshal(body, &gotRequest)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"你好"},{"type":"text","text":"世界"}]}`))
	}))
	defer server.Close()

	client := NewClaudeClient(server.Client(), "sk-test", server.URL, "claude-3-5-sonnet-latest")
	result, err := client.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)

	assert.Equal(t, "你好\n世界", result)
	assert.Equal(t, "/messages", gotPath)
	assert.Equal(t, "sk-test", gotKey)
	assert.Equal(t, "2023-06-01", gotVersion)
	assert.Equal(t, "claude-3-5-sonnet-latest", gotRequest.Model)
	assert.Equal(t, 512, gotRequest.MaxTokens)
	assert.Equal(t, "system prompt", gotRequest.System)
	require.Len(t, gotRequest.Messages, 1)
	assert.Equal(t, "user", gotRequest.Messages[0].Role)
}

func TestClaudeCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"authentication_error"}}`))
	}))
	defer server.Close()

	client := NewClaudeClient(server.Client(), "bad-key", server.URL, "claude-3-5-sonnet-latest")
	_, err := client.Complete(context.Background(), "s", "u")
	assert.Error(t, err)
}

func TestOpenAICompatComplete(t *testing.T) {
	var gotPath, gotAuth string
	var gotRequest openAIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = jsoncodec.Unmarshal(body, &gotRequest)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  an answer  "}}]}`))
	}))
	defer server.Close()

	client := NewOpenAICompatClient(server.Client(), "sk-oa", server.URL, "gpt-4o-mini")
	result, err := client.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)

	assert.Equal(t, "an answer", result)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-oa", gotAuth)
	require.Len(t, gotRequest.Messages, 2)
	assert.Equal(t, "system", gotRequest.Messages[0].Role)
	assert.Equal(t, "user", gotRequest.Messages[1].Role)
	assert.Equal(t, 0.2, gotRequest.Temperature)
}

func TestOpenAICompatEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewOpenAICompatClient(server.Client(), "k", server.URL, "m")
	result, err := client.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Empty(t, result)
}

type fakeProvider struct {
	lastSystem string
	lastUser   string
	reply      string
}

func (f *fakeProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	return f.reply, nil
}

func TestServicePrompts(t *testing.T) {
	fake := &fakeProvider{reply: "好的"}
	svc := NewService(fake)

	result, err := svc.TranslateToChinese(context.Background(), "good morning")
	require.NoError(t, err)
	assert.Equal(t, "好的", result)
	assert.Contains(t, fake.lastSystem, "real-time translator")
	assert.Contains(t, fake.lastUser, "good morning")

	_, err = svc.SuggestAnswer(context.Background(), "Weekly sync, engineering", "What is the timeline?")
	require.NoError(t, err)
	assert.Contains(t, fake.lastSystem, "answer hints")
	assert.Contains(t, fake.lastUser, "Weekly sync, engineering")
	assert.Contains(t, fake.lastUser, "What is the timeline?")
}

func TestFromSettings(t *testing.T) {
	assert.Nil(t, FromSettings(types.LlmSettings{Provider: "anthropic"}, ""),
		"no API key means no LLM service")

	svc := FromSettings(types.LlmSettings{APIFormat: "openai", Model: "m"}, "key")
	require.NotNil(t, svc)
	_, ok := svc.provider.(*OpenAICompatClient)
	assert.True(t, ok)

	svc = FromSettings(types.LlmSettings{APIFormat: "anthropic", Model: "m"}, "key")
	require.NotNil(t, svc)
	_, ok = svc.provider.(*ClaudeClient)
	assert.True(t, ok)
}
