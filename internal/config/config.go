package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/meetingassist/meeting-core/internal/jsoncodec"
)

// Config is the runtime configuration crossing the boundary as JSON text.
// Every field is optional; an empty document yields a usable runtime so
// hosts can come up before full configuration exists.
type Config struct {
	DataDir  string `json:"dataDir,omitempty"`
	LogDir   string `json:"logDir,omitempty"`
	Platform string `json:"platform,omitempty"`
	Debug    bool   `json:"debug,omitempty"`
}

// Parse decodes config JSON and fills defaults. Whitespace-only input is
// treated the same as an empty document. Malformed JSON is a construction
// failure.
func Parse(configJSON string) (Config, error) {
	var cfg Config
	if trimmed := strings.TrimSpace(configJSON); trimmed != "" {
		if err := jsoncodec.Unmarshal([]byte(trimmed), &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid config JSON: %w", err)
		}
	}

	if cfg.Platform == "" {
		cfg.Platform = runtime.GOOS
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	return cfg, nil
}

// PlatformStyle maps an OS name to the UI style family the host renders.
func PlatformStyle(platform string) string {
	switch platform {
	case "darwin", "macos":
		return "macos"
	case "windows":
		return "windows"
	default:
		return "linux"
	}
}

// DefaultLocale picks the startup locale from the environment.
func DefaultLocale() string {
	if strings.HasPrefix(strings.ToLower(os.Getenv("LANG")), "zh") {
		return "zh-CN"
	}
	return "en-US"
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "meeting-core")
	}
	return filepath.Join(base, "meeting-core")
}
