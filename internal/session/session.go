// Package session runs the live meeting pipeline: audio pushed by the
// host flows to the ASR provider, recognition results flow back out as
// events, and the finished transcript is persisted on stop.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meetingassist/meeting-core/internal/asr"
	"github.com/meetingassist/meeting-core/internal/audio"
	"github.com/meetingassist/meeting-core/internal/events"
	"github.com/meetingassist/meeting-core/internal/llm"
	"github.com/meetingassist/meeting-core/internal/metrics"
	"github.com/meetingassist/meeting-core/internal/secrets"
	"github.com/meetingassist/meeting-core/internal/storage"
	"github.com/meetingassist/meeting-core/internal/types"
)

// audioQueueDepth bounds buffered audio between the host push and the
// provider socket. When full, the oldest chunk is dropped so live
// latency never grows unbounded.
const audioQueueDepth = 32

// hintTimeout caps one LLM round trip so a slow model cannot stall the
// event loop past the end of the session.
const hintTimeout = 45 * time.Second

// hintDeltaPace spaces streamed hint deltas so the overlay types the
// answer out instead of flashing it in at once.
const hintDeltaPace = 20 * time.Millisecond

// Manager owns at most one live session per runtime.
type Manager struct {
	logger  *zap.Logger
	bus     *events.Bus
	store   *storage.Store
	writer  *storage.TranscriptWriter
	secrets *secrets.Service
	client  *http.Client

	mu     sync.Mutex
	active *liveSession
}

// StartInput carries the host's start_live_session request.
type StartInput struct {
	ProfileID         string `json:"profileId"`
	Title             string `json:"title"`
	PreferredProvider string `json:"preferredProvider"`
	SourceLanguage    string `json:"sourceLanguage"`
	TargetLanguage    string `json:"targetLanguage"`
	SampleRate        int    `json:"sampleRate"`
	Channels          int    `json:"channels"`
}

// StartResult reports how the session actually came up.
type StartResult struct {
	SessionID    string `json:"sessionId"`
	Provider     string `json:"provider"`
	DegradedMode bool   `json:"degradedMode"`
}

// StopResult is the persisted outcome of a finished session.
type StopResult struct {
	SessionID  string  `json:"sessionId"`
	LocalPath  string  `json:"localPath"`
	Duration   float64 `json:"durationSeconds"`
	WordCount  int     `json:"wordCount"`
	SegmentLen int     `json:"segmentCount"`
}

type liveSession struct {
	id        string
	title     string
	provider  string
	degraded  bool
	startedAt time.Time

	conn asr.Conn
	llm  *llm.Service

	profileContext string
	sourceLanguage string

	audioCh chan []int16
	done    chan struct{}
	wg      sync.WaitGroup

	segMu       sync.Mutex
	segments    []types.Segment
	transcript  strings.Builder
	wordCount   int
	lastFinalID string
}

// NewManager wires the session pipeline to its collaborators.
func NewManager(logger *zap.Logger, bus *events.Bus, store *storage.Store,
	writer *storage.TranscriptWriter, sec *secrets.Service, client *http.Client) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		logger:  logger,
		bus:     bus,
		store:   store,
		writer:  writer,
		secrets: sec,
		client:  client,
	}
}

// ErrAlreadyRunning is returned when Start is called while a session is live.
var ErrAlreadyRunning = fmt.Errorf("a live session is already running")

// ErrNoSession is returned by operations that need a live session.
var ErrNoSession = fmt.Errorf("no live session is running")

// Active reports the current session id, or "" when idle.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.id
}

// Start brings up a live session. Provider selection prefers Aliyun and
// falls back to Deepgram; when neither provider is reachable the session
// still starts in degraded mode so the host keeps a consistent lifecycle.
func (m *Manager) Start(input StartInput) (*StartResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrAlreadyRunning
	}

	if input.SampleRate == 0 {
		input.SampleRate = audio.DefaultSampleRate
	}
	if input.Channels == 0 {
		input.Channels = audio.DefaultChannels
	}
	if input.SourceLanguage == "" {
		input.SourceLanguage = "en"
	}
	if input.TargetLanguage == "" {
		input.TargetLanguage = "zh"
	}

	sess := &liveSession{
		id:             uuid.New().String(),
		title:          input.Title,
		startedAt:      time.Now(),
		sourceLanguage: input.SourceLanguage,
		audioCh:        make(chan []int16, audioQueueDepth),
		done:           make(chan struct{}),
	}
	if input.ProfileID != "" {
		profile, err := m.store.GetProfile(input.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("failed to load meeting profile: %w", err)
		}
		sess.profileContext = profileContext(profile)
		if sess.title == "" {
			sess.title = profile.Name
		}
	}
	if sess.title == "" {
		sess.title = "Meeting " + sess.startedAt.Format("2006-01-02 15:04")
	}

	m.bus.Emit(events.SessionState, types.SessionStateEvent{
		SessionID: sess.id,
		State:     types.SessionStarting,
	})

	sess.llm = m.llmService()

	conn, err := m.connectProvider(input)
	if err != nil {
		sess.degraded = true
		m.logger.Warn("live session running without ASR provider",
			zap.String("session_id", sess.id),
			zap.Error(err))
		m.bus.Emit(events.RuntimeError, types.RuntimeErrorEvent{
			Code:        "ASR_UNAVAILABLE",
			Message:     err.Error(),
			Recoverable: true,
			Source:      "asr",
		})
	} else {
		sess.provider = conn.Provider
		sess.conn = conn.Conn
		if conn.FallbackReason != "" {
			m.bus.Emit(events.RuntimeError, types.RuntimeErrorEvent{
				Code:        "ASR_PROVIDER_FALLBACK",
				Message:     conn.FallbackReason,
				Recoverable: true,
				Provider:    conn.Provider,
				Source:      "asr",
			})
		}
	}

	if sess.conn != nil {
		sess.wg.Add(2)
		go m.pumpAudio(sess)
		go m.consumeEvents(sess)
	}

	m.active = sess
	metrics.SessionsActive.Inc()

	m.bus.Emit(events.SessionState, types.SessionStateEvent{
		SessionID:    sess.id,
		State:        types.SessionRunning,
		DegradedMode: sess.degraded,
		Provider:     sess.provider,
	})

	m.logger.Info("live session started",
		zap.String("session_id", sess.id),
		zap.String("provider", sess.provider),
		zap.Bool("degraded", sess.degraded))

	return &StartResult{
		SessionID:    sess.id,
		Provider:     sess.provider,
		DegradedMode: sess.degraded,
	}, nil
}

// PushAudio queues one PCM chunk for the provider. When the queue is
// full the oldest chunk is discarded in favor of the new one.
func (m *Manager) PushAudio(samples []int16) error {
	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()

	if sess == nil {
		return ErrNoSession
	}
	if sess.conn == nil {
		// degraded mode accepts and discards audio
		metrics.RecordAudioChunk(false)
		return nil
	}

	select {
	case sess.audioCh <- samples:
		metrics.RecordAudioChunk(true)
	default:
		select {
		case <-sess.audioCh:
		default:
		}
		select {
		case sess.audioCh <- samples:
			metrics.RecordAudioChunk(true)
		default:
			metrics.RecordAudioChunk(false)
		}
	}
	return nil
}

// Stop tears the session down, persists the transcript, and reports the
// stored record.
func (m *Manager) Stop() (*StopResult, error) {
	m.mu.Lock()
	sess := m.active
	m.active = nil
	m.mu.Unlock()

	if sess == nil {
		return nil, ErrNoSession
	}

	close(sess.done)
	if sess.conn != nil {
		if err := sess.conn.Close(); err != nil {
			m.logger.Warn("failed to close provider stream",
				zap.String("session_id", sess.id),
				zap.Error(err))
		}
	}
	sess.wg.Wait()

	duration := time.Since(sess.startedAt).Seconds()
	metrics.SessionsActive.Dec()
	metrics.SessionDuration.Observe(duration)

	sess.segMu.Lock()
	text := sess.transcript.String()
	segments := append([]types.Segment(nil), sess.segments...)
	wordCount := sess.wordCount
	sess.segMu.Unlock()

	rec := types.TranscriptRecord{
		SessionID: sess.id,
		Title:     sess.title,
		Provider:  sess.provider,
		Duration:  duration,
		WordCount: wordCount,
		CreatedAt: sess.startedAt.UTC().Format(time.RFC3339),
	}

	localPath, err := m.writer.Save(sess.title, rec, text, segments)
	if err != nil {
		m.logger.Error("failed to write transcript file",
			zap.String("session_id", sess.id),
			zap.Error(err))
	} else {
		rec.LocalPath = localPath
	}

	if err := m.store.SaveTranscript(rec); err != nil {
		m.bus.Emit(events.RuntimeError, types.RuntimeErrorEvent{
			Code:        "TRANSCRIPT_PERSIST_FAILED",
			Message:     err.Error(),
			Recoverable: true,
			Source:      "storage",
		})
		m.logger.Error("failed to persist transcript record",
			zap.String("session_id", sess.id),
			zap.Error(err))
	}

	m.bus.Emit(events.SessionState, types.SessionStateEvent{
		SessionID: sess.id,
		State:     types.SessionStopped,
		Provider:  sess.provider,
	})

	m.logger.Info("live session stopped",
		zap.String("session_id", sess.id),
		zap.Float64("duration_seconds", duration),
		zap.Int("segments", len(segments)))

	return &StopResult{
		SessionID:  sess.id,
		LocalPath:  rec.LocalPath,
		Duration:   duration,
		WordCount:  wordCount,
		SegmentLen: len(segments),
	}, nil
}

func (m *Manager) connectProvider(input StartInput) (*asr.Connection, error) {
	deepgramKey, _ := m.secrets.GetKey(types.ProviderDeepgram)
	aliyun, err := m.secrets.AliyunSecrets()
	if err != nil {
		m.logger.Warn("failed to read Aliyun credentials", zap.Error(err))
	}

	return asr.ConnectWithFallback(asr.ConnectInput{
		PreferredProvider: input.PreferredProvider,
		DeepgramKey:       deepgramKey,
		Aliyun:            aliyun,
		SourceLanguage:    input.SourceLanguage,
		TargetLanguage:    input.TargetLanguage,
		SampleRate:        input.SampleRate,
		Channels:          input.Channels,
		HTTPClient:        m.client,
	})
}

func (m *Manager) llmService() *llm.Service {
	prefs, err := m.store.GetPreferences("en-US")
	if err != nil {
		m.logger.Warn("failed to load preferences for LLM setup", zap.Error(err))
		return nil
	}
	secretID := prefs.LlmSettings.Provider
	if secretID == "anthropic" {
		secretID = types.SecretClaude
	}
	apiKey, err := m.secrets.GetKey(secretID)
	if err != nil || apiKey == "" {
		return nil
	}
	return llm.FromSettings(prefs.LlmSettings, apiKey)
}

func (m *Manager) pumpAudio(sess *liveSession) {
	defer sess.wg.Done()
	for {
		select {
		case <-sess.done:
			return
		case samples := <-sess.audioCh:
			if err := sess.conn.SendPCM(samples); err != nil {
				m.logger.Warn("failed to send audio to provider",
					zap.String("session_id", sess.id),
					zap.Error(err))
				return
			}
		}
	}
}

func (m *Manager) consumeEvents(sess *liveSession) {
	defer sess.wg.Done()
	for event := range sess.conn.Events() {
		switch event.Kind {
		case asr.KindTranscript:
			m.handleTranscript(sess, event)
		case asr.KindTranslation:
			m.handleProviderTranslation(sess, event)
		}
	}
}

func (m *Manager) handleTranscript(sess *liveSession, event asr.Event) {
	segmentID := uuid.New().String()
	now := time.Now()

	m.bus.Emit(events.TranscriptSegment, types.TranscriptSegmentEvent{
		ID:          segmentID,
		SessionID:   sess.id,
		Speaker:     types.SpeakerUnknown,
		Text:        event.Text,
		IsFinal:     event.IsFinal,
		TimestampMs: now.UnixMilli(),
		Provider:    sess.provider,
		Source:      types.SourceMicrophone,
	})

	if !event.IsFinal {
		return
	}

	offset := now.Sub(sess.startedAt).Seconds()
	sess.segMu.Lock()
	sess.segments = append(sess.segments, types.Segment{
		Start: offset,
		End:   offset,
		Text:  event.Text,
	})
	if sess.transcript.Len() > 0 {
		sess.transcript.WriteString("\n")
	}
	sess.transcript.WriteString(event.Text)
	sess.wordCount += len(strings.Fields(event.Text))
	sess.lastFinalID = segmentID
	sess.segMu.Unlock()

	if sess.llm == nil {
		return
	}

	// Tingwu streams its own translations; the LLM only fills the gap
	// for providers that transcribe without translating.
	if sess.provider == types.ProviderDeepgram {
		go m.translateSegment(sess, segmentID, event.Text)
	}
	if looksLikeQuestion(event.Text) {
		go m.suggestHint(sess, event.Text)
	}
}

func (m *Manager) handleProviderTranslation(sess *liveSession, event asr.Event) {
	sess.segMu.Lock()
	transcriptID := sess.lastFinalID
	sess.segMu.Unlock()

	m.bus.Emit(events.TranslationSegment, types.TranslationSegmentEvent{
		ID:           uuid.New().String(),
		TranscriptID: transcriptID,
		Text:         event.Text,
		IsFinal:      event.IsFinal,
		TimestampMs:  time.Now().UnixMilli(),
		Provider:     sess.provider,
		Source:       types.TranslationFromAsr,
	})
}

func (m *Manager) translateSegment(sess *liveSession, transcriptID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), hintTimeout)
	defer cancel()

	translated, err := sess.llm.TranslateToChinese(ctx, text)
	if err != nil {
		m.logger.Warn("translation failed",
			zap.String("session_id", sess.id),
			zap.Error(err))
		return
	}

	m.bus.Emit(events.TranslationSegment, types.TranslationSegmentEvent{
		ID:           uuid.New().String(),
		TranscriptID: transcriptID,
		Text:         translated,
		IsFinal:      true,
		TimestampMs:  time.Now().UnixMilli(),
		Provider:     sess.provider,
		Source:       types.TranslationFromLlm,
	})
}

func (m *Manager) suggestHint(sess *liveSession, question string) {
	ctx, cancel := context.WithTimeout(context.Background(), hintTimeout)
	defer cancel()

	answer, err := sess.llm.SuggestAnswer(ctx, sess.profileContext, question)
	if err != nil {
		m.logger.Warn("hint suggestion failed",
			zap.String("session_id", sess.id),
			zap.Error(err))
		m.bus.Emit(events.RuntimeError, types.RuntimeErrorEvent{
			Code:        "HINT_ENGINE_FAILED",
			Message:     fmt.Sprintf("failed to generate answer hint: %v", err),
			Recoverable: true,
			Provider:    sess.provider,
			Source:      "llm",
		})
		return
	}
	m.streamHint(sess, answer)
}

// streamHint paces the full answer out as word-sized deltas so the
// overlay renders it progressively, then closes the hint with a done
// marker under the same id.
func (m *Manager) streamHint(sess *liveSession, answer string) {
	hintID := uuid.New().String()
	for _, token := range strings.Fields(answer) {
		m.bus.Emit(events.HintDelta, types.HintDeltaEvent{
			ID:        hintID,
			SessionID: sess.id,
			Delta:     token + " ",
			Source:    types.TranslationFromLlm,
		})
		time.Sleep(hintDeltaPace)
	}
	m.bus.Emit(events.HintDelta, types.HintDeltaEvent{
		ID:        hintID,
		SessionID: sess.id,
		Done:      true,
		Source:    types.TranslationFromLlm,
	})
}

// looksLikeQuestion is a cheap trigger for answer hints. Only sentences
// that end in a question mark reach the LLM.
func looksLikeQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, "？")
}

func profileContext(profile types.MeetingProfile) string {
	var b strings.Builder
	if profile.Name != "" {
		fmt.Fprintf(&b, "Meeting: %s\n", profile.Name)
	}
	if profile.MeetingType != "" {
		fmt.Fprintf(&b, "Type: %s\n", profile.MeetingType)
	}
	if profile.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", profile.Domain)
	}
	if profile.SelfIntro != "" {
		fmt.Fprintf(&b, "About me: %s\n", profile.SelfIntro)
	}
	if profile.ContextNotes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", profile.ContextNotes)
	}
	for _, att := range profile.Attachments {
		if att.ExtractedText != "" {
			fmt.Fprintf(&b, "Attachment %s:\n%s\n", att.FilePath, att.ExtractedText)
		}
	}
	return b.String()
}
