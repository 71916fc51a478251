package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meetingassist/meeting-core/internal/jsoncodec"
	"github.com/meetingassist/meeting-core/internal/types"
)

// TranscriptWriter saves transcript text and sidecar metadata under a
// dated directory layout: <root>/2025/01/23/.
type TranscriptWriter struct {
	root string
}

func NewTranscriptWriter(dataDir string) *TranscriptWriter {
	return &TranscriptWriter{root: filepath.Join(dataDir, "transcripts")}
}

// Save writes the transcript text plus a metadata JSON and returns the
// path of the text file.
func (w *TranscriptWriter) Save(title string, rec types.TranscriptRecord, text string, segments []types.Segment) (string, error) {
	now := time.Now()
	dateDir := filepath.Join(w.root,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %v", err)
	}

	timestamp := now.Format("20060102_150405")
	baseFilename := fmt.Sprintf("%s_%s", timestamp, sanitizeFilename(title))

	txtPath := filepath.Join(dateDir, baseFilename+".txt")
	metaPath := filepath.Join(dateDir, baseFilename+"_meta.json")

	if err := os.WriteFile(txtPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to save transcript: %v", err)
	}

	metadata := map[string]any{
		"sessionId":       rec.SessionID,
		"title":           title,
		"provider":        rec.Provider,
		"durationSeconds": rec.Duration,
		"wordCount":       rec.WordCount,
		"createdAt":       now.UTC().Format(time.RFC3339),
		"segments":        segments,
	}

	metaJSON, err := jsoncodec.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", fmt.Errorf("failed to save metadata: %v", err)
	}

	return txtPath, nil
}

// sanitizeFilename strips path separators and characters that are invalid
// on common filesystems, and bounds the length.
func sanitizeFilename(name string) string {
	result := filepath.Base(name)
	for _, ch := range []string{"\\", ":", "*", "?", "\"", "<", ">", "|"} {
		result = strings.ReplaceAll(result, ch, "_")
	}
	result = strings.TrimSpace(result)
	if result == "" || result == "." {
		result = "untitled"
	}
	// truncate on rune boundaries so CJK titles stay valid UTF-8
	if runes := []rune(result); len(runes) > 100 {
		result = string(runes[:100])
	}
	return result
}
