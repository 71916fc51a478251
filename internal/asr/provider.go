// Package asr streams live audio to speech-recognition providers and
// turns their wire formats into one event shape the session pipeline
// consumes.
package asr

import (
	"fmt"
	"net/http"

	"github.com/meetingassist/meeting-core/internal/secrets"
	"github.com/meetingassist/meeting-core/internal/types"
)

// Event kinds
const (
	KindTranscript  = "transcript"
	KindTranslation = "translation"
)

// Event is one recognition result from any provider.
type Event struct {
	Kind          string
	Text          string
	IsFinal       bool
	SentenceIndex int64
}

// Conn is a live provider stream. SendPCM and Close may be called from
// different goroutines; Events is closed when the provider side ends.
type Conn interface {
	SendPCM(samples []int16) error
	Close() error
	Events() <-chan Event
}

// Connection is the result of provider selection.
type Connection struct {
	Conn           Conn
	Provider       string
	FallbackReason string
}

// ConnectInput carries everything provider selection needs.
type ConnectInput struct {
	PreferredProvider string
	DeepgramKey       string
	Aliyun            *secrets.AliyunSecrets
	SourceLanguage    string
	TargetLanguage    string
	SampleRate        int
	Channels          int
	HTTPClient        *http.Client
}

// ConnectWithFallback connects the preferred provider, falling back from
// Aliyun to Deepgram when Aliyun is unavailable. The fallback reason is
// reported so the host can surface a recoverable warning.
func ConnectWithFallback(input ConnectInput) (*Connection, error) {
	switch input.PreferredProvider {
	case types.ProviderDeepgram:
		if input.DeepgramKey == "" {
			return nil, fmt.Errorf("Deepgram key is required")
		}
		conn, err := ConnectDeepgram(input.DeepgramKey, input.SourceLanguage, input.SampleRate, input.Channels)
		if err != nil {
			return nil, err
		}
		return &Connection{Conn: conn, Provider: types.ProviderDeepgram}, nil

	default: // aliyun preferred
		conn, aliyunErr := connectAliyun(input)
		if aliyunErr == nil {
			return &Connection{Conn: conn, Provider: types.ProviderAliyun}, nil
		}

		if input.DeepgramKey == "" {
			return nil, fmt.Errorf("Aliyun unavailable and Deepgram key missing: %v", aliyunErr)
		}
		fallback, err := ConnectDeepgram(input.DeepgramKey, input.SourceLanguage, input.SampleRate, input.Channels)
		if err != nil {
			return nil, err
		}
		return &Connection{
			Conn:           fallback,
			Provider:       types.ProviderDeepgram,
			FallbackReason: fmt.Sprintf("Aliyun failed, fallback to Deepgram: %v", aliyunErr),
		}, nil
	}
}

func connectAliyun(input ConnectInput) (Conn, error) {
	if input.Aliyun == nil {
		return nil, fmt.Errorf("Aliyun credentials not configured")
	}
	return ConnectTingwu(input.HTTPClient, *input.Aliyun,
		input.SourceLanguage, input.TargetLanguage, input.SampleRate)
}
