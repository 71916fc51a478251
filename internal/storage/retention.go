package storage

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically deletes aged files from the runtime's spill
// directory (buffered audio that was never attached to a finished
// session).
type Sweeper struct {
	dir      string
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

func NewSweeper(dir string, interval, maxAge time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		dir:      dir,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs one sweep immediately and then sweeps on the configured
// interval until Stop is called.
func (s *Sweeper) Start() {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the sweeper. Safe to call once.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}

func (s *Sweeper) sweep() {
	now := time.Now()
	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if age := now.Sub(info.ModTime()); age > s.maxAge {
			size := info.Size()
			if err := os.Remove(path); err != nil {
				s.logger.Warn("failed to delete aged spill file",
					zap.String("path", path),
					zap.Error(err))
				return nil
			}
			deletedCount++
			deletedSize += size
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		s.logger.Warn("spill sweep failed", zap.Error(err))
	}

	if deletedCount > 0 {
		s.logger.Info("spill sweep complete",
			zap.Int("deleted", deletedCount),
			zap.Int64("bytes", deletedSize))
	}
}
