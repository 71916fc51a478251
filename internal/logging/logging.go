// Package logging builds the runtime's zap logger. Embedders get a nop
// logger unless the runtime config names a log directory, in which case
// logs go to a size-rotated file so a long-running desktop host does not
// fill the disk.
package logging

import (
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger writing to <logDir>/meeting-core.log, or a nop
// logger when logDir is empty.
func New(logDir string, debug bool) *zap.Logger {
	if logDir == "" {
		return zap.NewNop()
	}

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "meeting-core.log"),
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	})

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, level)
	return zap.New(core)
}
