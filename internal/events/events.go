// Package events carries unsolicited runtime-to-host notifications. Each
// runtime owns one Bus; the host's registered callback is the only channel
// events leave through.
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/meetingassist/meeting-core/internal/jsoncodec"
	"github.com/meetingassist/meeting-core/internal/metrics"
)

// Event channel names
const (
	SessionState       = "session://state"
	TranscriptSegment  = "transcript://segment"
	TranslationSegment = "translation://segment"
	HintDelta          = "hint://delta"
	RuntimeError       = "runtime://error"
	OverlayMode        = "overlay://mode"
	OverlayLayout      = "overlay://layout"
)

// Callback receives the event name and the serialized event envelope
// {"event": name, "payload": ...}. It may be invoked from any goroutine.
type Callback func(event string, payload []byte)

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Bus is a single-subscriber event dispatcher. The callback slot is
// replaced atomically; a nil callback disables delivery.
type Bus struct {
	mu       sync.Mutex
	callback Callback
	logger   *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// SetCallback replaces the registered callback. Deliveries already in
// flight may still land; none start after this returns.
func (b *Bus) SetCallback(cb Callback) {
	b.mu.Lock()
	b.callback = cb
	b.mu.Unlock()
}

// Emit serializes payload and delivers it to the registered callback, if
// any. Emit never blocks on the host beyond the callback itself.
func (b *Bus) Emit(event string, payload any) {
	b.mu.Lock()
	cb := b.callback
	b.mu.Unlock()
	if cb == nil {
		return
	}

	data, err := jsoncodec.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		b.logger.Error("failed to serialize event payload",
			zap.String("event", event),
			zap.Error(err))
		return
	}

	metrics.RecordEventEmitted(event)
	cb(event, data)
}
