// Package export uploads finished transcripts to Google Drive.
package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/meetingassist/meeting-core/internal/jsoncodec"
	"github.com/meetingassist/meeting-core/internal/types"
)

// DriveExporter uploads transcript text and metadata into a dated folder
// tree under one root folder.
type DriveExporter struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveExporter builds a Drive client from stored OAuth credentials.
// The token must already exist; the runtime never runs an interactive
// consent flow (that belongs to the embedding host).
func NewDriveExporter(ctx context.Context, credentialsFile, tokenFile, folderName string) (*DriveExporter, error) {
	credentials, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.ConfigFromJSON(credentials, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("Drive token missing; complete authorization in the host first: %v", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %v", err)
	}

	exporter := &DriveExporter{service: srv, folderName: folderName}
	if err := exporter.ensureFolder(); err != nil {
		return nil, err
	}
	return exporter, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	err = jsoncodec.Decode(f, token)
	return token, err
}

// Upload sends transcript text plus a metadata sidecar and returns the
// shareable metadata link.
func (e *DriveExporter) Upload(rec types.TranscriptRecord, text string, segments []types.Segment) (string, error) {
	now := time.Now()
	folderID, err := e.ensureDateFolder(now)
	if err != nil {
		return "", err
	}

	timestamp := now.Format("20060102_150405")
	baseFilename := fmt.Sprintf("%s_%s", timestamp, rec.Title)

	txtFile := &drive.File{
		Name:    baseFilename + ".txt",
		Parents: []string{folderID},
	}
	_, err = e.service.Files.Create(txtFile).Media(bytes.NewReader([]byte(text))).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload transcript: %v", err)
	}

	metadata := map[string]any{
		"sessionId":       rec.SessionID,
		"title":           rec.Title,
		"provider":        rec.Provider,
		"durationSeconds": rec.Duration,
		"wordCount":       rec.WordCount,
		"createdAt":       rec.CreatedAt,
		"segments":        segments,
	}
	metaJSON, err := jsoncodec.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %v", err)
	}

	metaFile := &drive.File{
		Name:    baseFilename + "_meta.json",
		Parents: []string{folderID},
	}
	createdMeta, err := e.service.Files.Create(metaFile).Media(bytes.NewReader(metaJSON)).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload metadata: %v", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", createdMeta.Id), nil
}

func (e *DriveExporter) ensureFolder() error {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
		e.folderName)

	r, err := e.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Do()
	if err != nil {
		return fmt.Errorf("unable to search for folder: %v", err)
	}
	if len(r.Files) > 0 {
		e.folderID = r.Files[0].Id
		return nil
	}

	folder := &drive.File{
		Name:     e.folderName,
		MimeType: "application/vnd.google-apps.folder",
	}
	file, err := e.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return fmt.Errorf("unable to create folder: %v", err)
	}
	e.folderID = file.Id
	return nil
}

// ensureDateFolder creates nested year/month/day folders.
func (e *DriveExporter) ensureDateFolder(t time.Time) (string, error) {
	yearID, err := e.findOrCreateFolder(fmt.Sprintf("%d", t.Year()), e.folderID)
	if err != nil {
		return "", err
	}
	monthID, err := e.findOrCreateFolder(fmt.Sprintf("%02d", t.Month()), yearID)
	if err != nil {
		return "", err
	}
	return e.findOrCreateFolder(fmt.Sprintf("%02d", t.Day()), monthID)
}

func (e *DriveExporter) findOrCreateFolder(name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='application/vnd.google-apps.folder' and trashed=false",
		name, parentID)

	r, err := e.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Do()
	if err != nil {
		return "", err
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
		Parents:  []string{parentID},
	}
	file, err := e.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}
