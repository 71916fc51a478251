package types

// Session lifecycle states
const (
	SessionStarting = "starting"
	SessionRunning  = "running"
	SessionStopped  = "stopped"
	SessionError    = "error"
)

// ASR provider identifiers
const (
	ProviderAliyun   = "aliyun"
	ProviderDeepgram = "deepgram"
)

// Secret provider identifiers
const (
	SecretAliyun    = "aliyun"
	SecretDeepgram  = "deepgram"
	SecretClaude    = "claude"
	SecretGemini    = "gemini"
	SecretOpenAI    = "openai"
	SecretCustomLLM = "custom_llm"
)

// Speaker roles on transcript segments
const (
	SpeakerMe      = "me"
	SpeakerOther   = "other"
	SpeakerUnknown = "unknown"
)

// Segment audio sources
const (
	SourceMicrophone = "microphone"
	SourceSystem     = "system"
)

// Translation origins
const (
	TranslationFromAsr = "asr"
	TranslationFromLlm = "llm"
)

// UserPreferences is the persisted per-user runtime state
type UserPreferences struct {
	Locale              string        `json:"locale"`
	ThemeMode           string        `json:"themeMode"`
	OnboardingCompleted bool          `json:"onboardingCompleted"`
	LlmSettings         LlmSettings   `json:"llmSettings"`
	TeleprompterMode    WindowMode    `json:"teleprompterMode"`
	LiveOverlayLayout   OverlayLayout `json:"liveOverlayLayout"`
}

// LlmSettings selects the hint/translation model
type LlmSettings struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	BaseURL   string `json:"baseUrl,omitempty"`
	APIFormat string `json:"apiFormat"`
}

// WindowMode describes the teleprompter/overlay window behavior
type WindowMode struct {
	AlwaysOnTop  bool    `json:"alwaysOnTop"`
	Transparent  bool    `json:"transparent"`
	Undecorated  bool    `json:"undecorated"`
	ClickThrough bool    `json:"clickThrough"`
	Opacity      float64 `json:"opacity"`
}

// OverlayLayout is the saved geometry of the live overlay window
type OverlayLayout struct {
	Opacity      float64 `json:"opacity"`
	X            int     `json:"x"`
	Y            int     `json:"y"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	AnchorScreen string  `json:"anchorScreen,omitempty"`
}

// Clamp keeps the layout inside the ranges the overlay window accepts
func (l OverlayLayout) Clamp() OverlayLayout {
	l.Opacity = clampFloat(l.Opacity, 0.35, 1.0)
	l.Width = clampInt(l.Width, 560, 1920)
	l.Height = clampInt(l.Height, 260, 1080)
	return l
}

// ClampOpacity keeps a window opacity renderable
func ClampOpacity(v float64) float64 {
	return clampFloat(v, 0.35, 1.0)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultPreferences returns the state a fresh install starts with
func DefaultPreferences(locale string) UserPreferences {
	return UserPreferences{
		Locale:              locale,
		ThemeMode:           "system",
		OnboardingCompleted: false,
		LlmSettings: LlmSettings{
			Provider:  "anthropic",
			Model:     "claude-3-5-sonnet-latest",
			APIFormat: "anthropic",
		},
		TeleprompterMode: WindowMode{
			AlwaysOnTop: true,
			Transparent: true,
			Undecorated: true,
			Opacity:     0.86,
		},
		LiveOverlayLayout: OverlayLayout{
			Opacity: 0.86,
			X:       980,
			Y:       110,
			Width:   920,
			Height:  480,
		},
	}
}

// MeetingProfile holds the prepared context for one recurring meeting
type MeetingProfile struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	MeetingType  string       `json:"meetingType"`
	Domain       string       `json:"domain"`
	Language     string       `json:"language"`
	SelfIntro    string       `json:"selfIntro"`
	ContextNotes string       `json:"contextNotes"`
	Attachments  []Attachment `json:"attachments"`
	CreatedAt    string       `json:"createdAt"`
	UpdatedAt    string       `json:"updatedAt"`
}

// Attachment is a document attached to a meeting profile
type Attachment struct {
	ID            string `json:"id"`
	ProfileID     string `json:"profileId"`
	FilePath      string `json:"filePath"`
	FileType      string `json:"fileType"`
	ExtractedText string `json:"extractedText"`
	CreatedAt     string `json:"createdAt"`
}

// ProviderStatus reports which external providers have stored credentials
type ProviderStatus struct {
	Aliyun    bool `json:"aliyun"`
	Deepgram  bool `json:"deepgram"`
	Claude    bool `json:"claude"`
	Gemini    bool `json:"gemini"`
	OpenAI    bool `json:"openai"`
	CustomLLM bool `json:"customLlm"`
}

// AudioDevice describes one capture device visible to the host
type AudioDevice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

// AudioDeviceList is the result of device enumeration
type AudioDeviceList struct {
	Microphones             []AudioDevice `json:"microphones"`
	SystemLoopbackAvailable bool          `json:"systemLoopbackAvailable"`
	Note                    string        `json:"note,omitempty"`
}

// Segment represents a timestamped piece of transcript
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptRecord is the stored metadata for one finished session
type TranscriptRecord struct {
	SessionID string  `json:"sessionId"`
	Title     string  `json:"title"`
	Provider  string  `json:"provider"`
	LocalPath string  `json:"localPath"`
	DriveURL  string  `json:"driveUrl,omitempty"`
	Duration  float64 `json:"durationSeconds"`
	WordCount int     `json:"wordCount"`
	CreatedAt string  `json:"createdAt"`
}

// SessionStateEvent announces session lifecycle transitions
type SessionStateEvent struct {
	SessionID    string `json:"sessionId"`
	State        string `json:"state"`
	Message      string `json:"message"`
	DegradedMode bool   `json:"degradedMode"`
	Provider     string `json:"provider"`
}

// TranscriptSegmentEvent carries one recognized utterance
type TranscriptSegmentEvent struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionId"`
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	IsFinal     bool   `json:"isFinal"`
	TimestampMs int64  `json:"timestampMs"`
	Provider    string `json:"provider"`
	Source      string `json:"source"`
}

// TranslationSegmentEvent carries the translation of a transcript segment
type TranslationSegmentEvent struct {
	ID           string `json:"id"`
	TranscriptID string `json:"transcriptId"`
	Text         string `json:"text"`
	IsFinal      bool   `json:"isFinal"`
	TimestampMs  int64  `json:"timestampMs"`
	Provider     string `json:"provider"`
	Source       string `json:"source"`
}

// HintDeltaEvent streams answer-hint text as the LLM produces it
type HintDeltaEvent struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Delta     string `json:"delta"`
	Done      bool   `json:"done"`
	Source    string `json:"source"`
}

// RuntimeErrorEvent surfaces recoverable and fatal runtime faults
type RuntimeErrorEvent struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Provider    string `json:"provider,omitempty"`
	Source      string `json:"source"`
}
