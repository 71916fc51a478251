// Package meetingcore is an embeddable meeting-assistant runtime. A host
// application constructs a Runtime, drives it through a single JSON
// request/response channel, and receives unsolicited events (transcripts,
// translations, hints, session state) through one registered callback.
// The capi directory exposes the same surface over a C ABI for non-Go hosts.
package meetingcore

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meetingassist/meeting-core/internal/config"
	"github.com/meetingassist/meeting-core/internal/events"
	"github.com/meetingassist/meeting-core/internal/logging"
	"github.com/meetingassist/meeting-core/internal/secrets"
	"github.com/meetingassist/meeting-core/internal/session"
	"github.com/meetingassist/meeting-core/internal/storage"
)

// EventCallback receives runtime events. The payload is the serialized
// envelope {"event": name, "payload": ...}. Callbacks may be invoked
// from any goroutine, concurrently with in-flight invokes.
type EventCallback = events.Callback

// Runtime is one embedded meeting-assistant instance. All methods are
// safe for concurrent use; Close must not race other calls on the same
// instance (hosts drain in-flight work first).
type Runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *storage.Store
	secrets  *secrets.Service
	writer   *storage.TranscriptWriter
	sweeper  *storage.Sweeper
	bus      *events.Bus
	sessions *session.Manager

	mu             sync.Mutex
	closed         bool
	overlayVisible bool
}

// New constructs a runtime from a JSON config document. Empty or
// whitespace-only config succeeds with defaults so hosts can come up
// before real configuration exists; malformed JSON fails.
func New(configJSON string) (*Runtime, error) {
	cfg, err := config.Parse(configJSON)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	logger := logging.New(cfg.LogDir, cfg.Debug)

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %v", err)
	}

	bus := events.NewBus(logger)
	sec := secrets.NewService(cfg.DataDir)
	writer := storage.NewTranscriptWriter(cfg.DataDir)

	spillDir := filepath.Join(cfg.DataDir, "spill")
	if err := os.MkdirAll(spillDir, 0755); err != nil {
		logger.Warn("failed to create spill directory", zap.Error(err))
	}
	sweeper := storage.NewSweeper(spillDir, time.Hour, 24*time.Hour, logger)
	sweeper.Start()

	client := &http.Client{Timeout: 30 * time.Second}

	rt := &Runtime{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		secrets:  sec,
		writer:   writer,
		sweeper:  sweeper,
		bus:      bus,
		sessions: session.NewManager(logger, bus, store, writer, sec, client),
	}

	logger.Info("runtime created",
		zap.String("data_dir", cfg.DataDir),
		zap.String("platform", cfg.Platform))
	return rt, nil
}

// SetEventCallback registers the event callback for this runtime. The
// slot is replaced atomically; nil disables delivery. Each runtime's
// callback only ever sees that runtime's events.
func (r *Runtime) SetEventCallback(fn EventCallback) {
	r.bus.SetCallback(fn)
}

// Close stops any live session and releases all resources. Calling
// Close more than once returns an error but is otherwise harmless.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("runtime already closed")
	}
	r.closed = true
	r.mu.Unlock()

	if r.sessions.Active() != "" {
		if _, err := r.sessions.Stop(); err != nil {
			r.logger.Warn("failed to stop session during close", zap.Error(err))
		}
	}

	r.bus.SetCallback(nil)
	r.sweeper.Stop()

	if err := r.store.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %v", err)
	}

	r.logger.Info("runtime closed")
	_ = r.logger.Sync()
	return nil
}

func (r *Runtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
