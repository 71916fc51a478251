package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/meetingassist/meeting-core/internal/jsoncodec"
	"github.com/meetingassist/meeting-core/internal/types"
)

const schemaVersion = 1

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// Store persists preferences, meeting profiles, attachments and transcript
// metadata in a single SQLite database under the runtime data directory.
type Store struct {
	db *sql.DB
}

// Open creates the data directory if needed, opens the database and runs
// migrations.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "meeting-core.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS schema_meta (
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS preferences (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		meeting_type TEXT NOT NULL,
		domain TEXT NOT NULL,
		language TEXT NOT NULL,
		self_intro TEXT NOT NULL,
		context_notes TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_type TEXT NOT NULL,
		extracted_text TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attachments_profile ON attachments(profile_id);

	CREATE TABLE IF NOT EXISTS transcripts (
		session_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		provider TEXT NOT NULL,
		local_path TEXT NOT NULL,
		drive_url TEXT,
		duration REAL,
		word_count INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	store := &Store{db: db}
	if err := store.migrateIfNeeded(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrateIfNeeded() error {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_meta LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.Exec(`INSERT INTO schema_meta (version) VALUES (?)`, schemaVersion)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %v", err)
	}
	if version < schemaVersion {
		_, err = s.db.Exec(`UPDATE schema_meta SET version = ?`, schemaVersion)
	}
	return err
}

// GetPreferences loads the stored preferences, or defaults when none were
// saved yet.
func (s *Store) GetPreferences(defaultLocale string) (types.UserPreferences, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM preferences WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DefaultPreferences(defaultLocale), nil
	}
	if err != nil {
		return types.UserPreferences{}, fmt.Errorf("failed to load preferences: %v", err)
	}

	var prefs types.UserPreferences
	if err := jsoncodec.Unmarshal([]byte(payload), &prefs); err != nil {
		return types.UserPreferences{}, fmt.Errorf("failed to decode preferences: %v", err)
	}
	return prefs, nil
}

// SavePreferences replaces the stored preferences.
func (s *Store) SavePreferences(prefs types.UserPreferences) error {
	payload, err := jsoncodec.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %v", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO preferences (id, payload) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		string(payload))
	if err != nil {
		return fmt.Errorf("failed to save preferences: %v", err)
	}
	return nil
}

// ListProfiles returns all meeting profiles with their attachments.
func (s *Store) ListProfiles() ([]types.MeetingProfile, error) {
	rows, err := s.db.Query(`
		SELECT id, name, meeting_type, domain, language, self_intro, context_notes, created_at, updated_at
		FROM profiles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %v", err)
	}
	defer rows.Close()

	profiles := []types.MeetingProfile{}
	for rows.Next() {
		var p types.MeetingProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.MeetingType, &p.Domain, &p.Language,
			&p.SelfIntro, &p.ContextNotes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %v", err)
		}
		attachments, err := s.listAttachments(p.ID)
		if err != nil {
			return nil, err
		}
		p.Attachments = attachments
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// GetProfile returns one profile by ID, or ErrNotFound.
func (s *Store) GetProfile(id string) (types.MeetingProfile, error) {
	var p types.MeetingProfile
	err := s.db.QueryRow(`
		SELECT id, name, meeting_type, domain, language, self_intro, context_notes, created_at, updated_at
		FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.MeetingType, &p.Domain, &p.Language,
			&p.SelfIntro, &p.ContextNotes, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.MeetingProfile{}, ErrNotFound
	}
	if err != nil {
		return types.MeetingProfile{}, fmt.Errorf("failed to get profile: %v", err)
	}

	attachments, err := s.listAttachments(p.ID)
	if err != nil {
		return types.MeetingProfile{}, err
	}
	p.Attachments = attachments
	return p, nil
}

// ProfileUpsert is the caller-supplied part of a profile save.
type ProfileUpsert struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	MeetingType  string `json:"meetingType"`
	Domain       string `json:"domain"`
	Language     string `json:"language"`
	SelfIntro    string `json:"selfIntro"`
	ContextNotes string `json:"contextNotes"`
}

// UpsertProfile inserts a new profile or updates an existing one by ID.
func (s *Store) UpsertProfile(input ProfileUpsert) (types.MeetingProfile, error) {
	now := nowISO()

	if input.ID != "" {
		res, err := s.db.Exec(`
			UPDATE profiles
			SET name = ?, meeting_type = ?, domain = ?, language = ?, self_intro = ?, context_notes = ?, updated_at = ?
			WHERE id = ?`,
			input.Name, input.MeetingType, input.Domain, input.Language,
			input.SelfIntro, input.ContextNotes, now, input.ID)
		if err != nil {
			return types.MeetingProfile{}, fmt.Errorf("failed to update profile: %v", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return s.GetProfile(input.ID)
		}
	}

	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO profiles (id, name, meeting_type, domain, language, self_intro, context_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, input.Name, input.MeetingType, input.Domain, input.Language,
		input.SelfIntro, input.ContextNotes, now, now)
	if err != nil {
		return types.MeetingProfile{}, fmt.Errorf("failed to insert profile: %v", err)
	}
	return s.GetProfile(id)
}

// DeleteProfile removes a profile and its attachments. Deleting a missing
// profile is not an error.
func (s *Store) DeleteProfile(id string) error {
	if _, err := s.db.Exec(`DELETE FROM attachments WHERE profile_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete attachments: %v", err)
	}
	if _, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete profile: %v", err)
	}
	return nil
}

// AddAttachment stores an attachment under an existing profile.
func (s *Store) AddAttachment(att types.Attachment) (types.Attachment, error) {
	if _, err := s.GetProfile(att.ProfileID); err != nil {
		return types.Attachment{}, err
	}

	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	if att.CreatedAt == "" {
		att.CreatedAt = nowISO()
	}

	_, err := s.db.Exec(`
		INSERT INTO attachments (id, profile_id, file_path, file_type, extracted_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		att.ID, att.ProfileID, att.FilePath, att.FileType, att.ExtractedText, att.CreatedAt)
	if err != nil {
		return types.Attachment{}, fmt.Errorf("failed to save attachment: %v", err)
	}

	_, err = s.db.Exec(`UPDATE profiles SET updated_at = ? WHERE id = ?`, nowISO(), att.ProfileID)
	if err != nil {
		return types.Attachment{}, fmt.Errorf("failed to touch profile: %v", err)
	}
	return att, nil
}

func (s *Store) listAttachments(profileID string) ([]types.Attachment, error) {
	rows, err := s.db.Query(`
		SELECT id, profile_id, file_path, file_type, extracted_text, created_at
		FROM attachments WHERE profile_id = ? ORDER BY created_at`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %v", err)
	}
	defer rows.Close()

	attachments := []types.Attachment{}
	for rows.Next() {
		var a types.Attachment
		if err := rows.Scan(&a.ID, &a.ProfileID, &a.FilePath, &a.FileType,
			&a.ExtractedText, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %v", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// SaveTranscript records metadata for a finished session.
func (s *Store) SaveTranscript(rec types.TranscriptRecord) error {
	if rec.CreatedAt == "" {
		rec.CreatedAt = nowISO()
	}
	_, err := s.db.Exec(`
		INSERT INTO transcripts (session_id, title, provider, local_path, drive_url, duration, word_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Title, rec.Provider, rec.LocalPath, rec.DriveURL,
		rec.Duration, rec.WordCount, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save transcript metadata: %v", err)
	}
	return nil
}

// GetTranscript retrieves transcript metadata by session ID.
func (s *Store) GetTranscript(sessionID string) (types.TranscriptRecord, error) {
	var rec types.TranscriptRecord
	var driveURL sql.NullString
	err := s.db.QueryRow(`
		SELECT session_id, title, provider, local_path, drive_url, duration, word_count, created_at
		FROM transcripts WHERE session_id = ?`, sessionID).
		Scan(&rec.SessionID, &rec.Title, &rec.Provider, &rec.LocalPath, &driveURL,
			&rec.Duration, &rec.WordCount, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.TranscriptRecord{}, ErrNotFound
	}
	if err != nil {
		return types.TranscriptRecord{}, fmt.Errorf("failed to get transcript: %v", err)
	}
	rec.DriveURL = driveURL.String
	return rec, nil
}

// ListTranscripts returns the most recent transcripts, newest first.
func (s *Store) ListTranscripts(limit int) ([]types.TranscriptRecord, error) {
	rows, err := s.db.Query(`
		SELECT session_id, title, provider, local_path, drive_url, duration, word_count, created_at
		FROM transcripts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %v", err)
	}
	defer rows.Close()

	records := []types.TranscriptRecord{}
	for rows.Next() {
		var rec types.TranscriptRecord
		var driveURL sql.NullString
		if err := rows.Scan(&rec.SessionID, &rec.Title, &rec.Provider, &rec.LocalPath,
			&driveURL, &rec.Duration, &rec.WordCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %v", err)
		}
		rec.DriveURL = driveURL.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SetTranscriptDriveURL records the Drive link after a successful export.
func (s *Store) SetTranscriptDriveURL(sessionID, url string) error {
	res, err := s.db.Exec(`UPDATE transcripts SET drive_url = ? WHERE session_id = ?`, url, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update transcript: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
