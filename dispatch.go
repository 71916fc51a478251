package meetingcore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/meetingassist/meeting-core/internal/audio"
	"github.com/meetingassist/meeting-core/internal/config"
	"github.com/meetingassist/meeting-core/internal/events"
	"github.com/meetingassist/meeting-core/internal/export"
	"github.com/meetingassist/meeting-core/internal/jsoncodec"
	"github.com/meetingassist/meeting-core/internal/metrics"
	"github.com/meetingassist/meeting-core/internal/session"
	"github.com/meetingassist/meeting-core/internal/storage"
	"github.com/meetingassist/meeting-core/internal/types"
)

// InvokeJSON executes one command and always returns a well-formed
// response envelope. Panics in handlers are converted to envelope
// errors; nothing escapes across the boundary.
func (r *Runtime) InvokeJSON(requestJSON string) string {
	start := time.Now()

	var req InvokeRequest
	if err := jsoncodec.Unmarshal([]byte(requestJSON), &req); err != nil {
		metrics.RecordInvoke("", false, time.Since(start).Seconds())
		return errResponse("", CodeInvalidRequest,
			fmt.Sprintf("request is not valid JSON: %v", err)).serialize()
	}
	if req.Command == "" {
		metrics.RecordInvoke("", false, time.Since(start).Seconds())
		return errResponse(req.Nonce, CodeInvalidRequest, "request has no command").serialize()
	}
	if r.isClosed() {
		metrics.RecordInvoke(req.Command, false, time.Since(start).Seconds())
		return errResponse(req.Nonce, CodeInvalidRequest, "runtime is closed").serialize()
	}

	resp := r.dispatch(req)
	resp.Nonce = req.Nonce

	metrics.RecordInvoke(req.Command, resp.OK, time.Since(start).Seconds())
	if !resp.OK {
		r.logger.Debug("invoke failed",
			zap.String("command", req.Command),
			zap.String("code", resp.Error.Code),
			zap.String("message", resp.Error.Message))
	}
	return resp.serialize()
}

func (r *Runtime) dispatch(req InvokeRequest) (resp InvokeResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("command handler panicked",
				zap.String("command", req.Command),
				zap.Any("panic", rec))
			resp = errResponse("", CodeInvalidRequest,
				fmt.Sprintf("internal fault handling %s", req.Command))
		}
	}()

	switch req.Command {
	case "get_bootstrap_state":
		return r.getBootstrapState()
	case "get_user_preferences":
		return r.getUserPreferences()
	case "save_user_preferences":
		return r.saveUserPreferences(req.Payload)
	case "get_llm_settings":
		return r.getLlmSettings()
	case "save_llm_settings":
		return r.saveLlmSettings(req.Payload)
	case "list_meeting_profiles":
		return r.listMeetingProfiles()
	case "save_meeting_profile":
		return r.saveMeetingProfile(req.Payload)
	case "delete_meeting_profile":
		return r.deleteMeetingProfile(req.Payload)
	case "extract_attachment_text":
		return r.extractAttachmentText(req.Payload)
	case "save_provider_secret":
		return r.saveProviderSecret(req.Payload)
	case "save_provider_key":
		return r.saveProviderKey(req.Payload)
	case "list_audio_devices":
		return okResponse("", audio.ListDevices())
	case "start_live_session":
		return r.startLiveSession(req.Payload)
	case "stop_live_session":
		return r.stopLiveSession()
	case "push_audio_chunk":
		return r.pushAudioChunk(req.Payload)
	case "show_live_overlay":
		return r.setOverlayVisible(true)
	case "hide_live_overlay":
		return r.setOverlayVisible(false)
	case "set_live_overlay_mode", "set_teleprompter_mode":
		return r.setOverlayMode(req.Payload)
	case "get_live_overlay_layout":
		return r.getOverlayLayout()
	case "save_live_overlay_layout":
		return r.saveOverlayLayout(req.Payload)
	case "start_live_overlay_drag":
		// dragging is rendered host-side; acknowledging keeps the
		// command surface uniform
		return okResponse("", map[string]bool{"acknowledged": true})
	case "list_transcripts":
		return r.listTranscripts(req.Payload)
	case "get_transcript_text":
		return r.getTranscriptText(req.Payload)
	case "export_transcript":
		return r.exportTranscript(req.Payload)
	default:
		return errResponse("", CodeUnknownCommand,
			fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func decodePayload[T any](payload jsoncodec.Raw) (T, *InvokeResponse) {
	var out T
	if len(payload) == 0 {
		resp := errResponse("", CodeInvalidPayload, "command requires a payload")
		return out, &resp
	}
	if err := jsoncodec.Unmarshal(payload, &out); err != nil {
		resp := errResponse("", CodeInvalidPayload,
			fmt.Sprintf("failed to decode payload: %v", err))
		return out, &resp
	}
	return out, nil
}

func (r *Runtime) storageError(err error) InvokeResponse {
	if errors.Is(err, storage.ErrNotFound) {
		return errResponse("", CodeNotFound, err.Error())
	}
	return errResponse("", CodeStorageFailure, err.Error())
}

type bootstrapState struct {
	Platform        string                `json:"platform"`
	PlatformStyle   string                `json:"platformStyle"`
	Locale          string                `json:"locale"`
	Preferences     types.UserPreferences `json:"preferences"`
	ProviderStatus  types.ProviderStatus  `json:"providerStatus"`
	AudioDevices    types.AudioDeviceList `json:"audioDevices"`
	OverlayVisible  bool                  `json:"overlayVisible"`
	ActiveSessionID string                `json:"activeSessionId,omitempty"`
}

func (r *Runtime) getBootstrapState() InvokeResponse {
	prefs, err := r.store.GetPreferences(config.DefaultLocale())
	if err != nil {
		return r.storageError(err)
	}

	r.mu.Lock()
	visible := r.overlayVisible
	r.mu.Unlock()

	return okResponse("", bootstrapState{
		Platform:        r.cfg.Platform,
		PlatformStyle:   config.PlatformStyle(r.cfg.Platform),
		Locale:          prefs.Locale,
		Preferences:     prefs,
		ProviderStatus:  r.secrets.ProviderStatus(),
		AudioDevices:    audio.ListDevices(),
		OverlayVisible:  visible,
		ActiveSessionID: r.sessions.Active(),
	})
}

func (r *Runtime) getUserPreferences() InvokeResponse {
	prefs, err := r.store.GetPreferences(config.DefaultLocale())
	if err != nil {
		return r.storageError(err)
	}
	return okResponse("", prefs)
}

func (r *Runtime) saveUserPreferences(payload jsoncodec.Raw) InvokeResponse {
	prefs, errResp := decodePayload[types.UserPreferences](payload)
	if errResp != nil {
		return *errResp
	}
	prefs.LiveOverlayLayout = prefs.LiveOverlayLayout.Clamp()
	prefs.TeleprompterMode.Opacity = types.ClampOpacity(prefs.TeleprompterMode.Opacity)
	if err := r.store.SavePreferences(prefs); err != nil {
		return r.storageError(err)
	}
	return okResponse("", prefs)
}

func (r *Runtime) getLlmSettings() InvokeResponse {
	prefs, err := r.store.GetPreferences(config.DefaultLocale())
	if err != nil {
		return r.storageError(err)
	}
	return okResponse("", prefs.LlmSettings)
}

func (r *Runtime) saveLlmSettings(payload jsoncodec.Raw) InvokeResponse {
	settings, errResp := decodePayload[types.LlmSettings](payload)
	if errResp != nil {
		return *errResp
	}
	prefs, err := r.store.GetPreferences(config.DefaultLocale())
	if err != nil {
		return r.storageError(err)
	}
	prefs.LlmSettings = settings
	if err := r.store.SavePreferences(prefs); err != nil {
		return r.storageError(err)
	}
	return okResponse("", settings)
}

func (r *Runtime) listMeetingProfiles() InvokeResponse {
	profiles, err := r.store.ListProfiles()
	if err != nil {
		return r.storageError(err)
	}
	return okResponse("", profiles)
}

func (r *Runtime) saveMeetingProfile(payload jsoncodec.Raw) InvokeResponse {
	input, errResp := decodePayload[storage.ProfileUpsert](payload)
	if errResp != nil {
		return *errResp
	}
	if strings.TrimSpace(input.Name) == "" {
		return errResponse("", CodeInvalidPayload, "profile name is required")
	}
	profile, err := r.store.UpsertProfile(input)
	if err != nil {
		return r.storageError(err)
	}
	return okResponse("", profile)
}

func (r *Runtime) deleteMeetingProfile(payload jsoncodec.Raw) InvokeResponse {
	input, errResp := decodePayload[struct {
		ID string `json:"id"`
	}](payload)
	if errResp != nil {
		return *errResp
	}
	if input.ID == "" {
		return errResponse("", CodeInvalidPayload, "profile id is required")
	}
	if err := r.store.DeleteProfile(input.ID); err != nil {
		return r.storageError(err)
	}
	return okResponse("", map[string]bool{"deleted": true})
}

func (r *Runtime) extractAttachmentText(payload jsoncodec.Raw) InvokeResponse {
	input, errResp := decodePayload[struct {
		ProfileID string `json:"profileId"`
		FilePath  string `json:"filePath"`
	}](payload)
	if errResp != nil {
		return *errResp
	}
	if input.ProfileID == "" || input.FilePath == "" {
		return errResponse("", CodeInvalidPayload, "profileId and filePath are required")
	}

	ext := strings.ToLower(filepath.Ext(input.FilePath))
	att := types.Attachment{
		ProfileID: input.ProfileID,
		FilePath:  input.FilePath,
		FileType:  strings.TrimPrefix(ext, "."),
	}

	switch ext {
	case ".txt", ".md":
		data, err := os.ReadFile(input.FilePath)
		if err != nil {
			return errResponse("", CodeInvalidPayload,
				fmt.Sprintf("failed to read attachment: %v", err))
		}
		att.ExtractedText = string(data)
	case ".pdf":
		text, err := extractPDFText(input.FilePath)
		if err != nil {
			return errResponse("", CodeInvalidPayload,
				fmt.Sprintf("failed to extract pdf text: %v", err))
		}
		att.ExtractedText = text
	default:
		return errResponse("", CodeInvalidPayload,
			fmt.Sprintf("unsupported attachment type: %s", ext))
	}

	saved, err := r.store.AddAttachment(att)
	if err != nil {
		return r.storageError(err)
	}
	return okResponse("", saved)
}

// extractPDFText pulls the plain text out of a PDF. The parser panics
// on some malformed files, so the recover turns those into errors.
func extractPDFText(path string) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Runtime) saveProviderSecret(payload jsoncodec.Raw) InvokeResponse {
	input, errResp := decodePayload[struct {
		Provider string `json:"provider"`
		Field    string `json:"field"`
		Value    string `json:"value"`
	}](payload)
	if errResp != nil {
		return *errResp
	}
	if input.Provider == "" || input.Field == "" {
		return errResponse("", CodeInvalidPayload, "provider and field are required")
	}
	if err := r.secrets.SaveSecret(input.Provider, input.Field, input.Value); err != nil {
		return errResponse("", CodeStorageFailure, err.Error())
	}
	return okResponse("", r.secrets.ProviderStatus())
}

func (r *Runtime) saveProviderKey(payload jsoncodec.Raw) InvokeResponse {
	input, errResp := decodePayload[struct {
		Provider string `json:"provider"`
		APIKey   string `json:"apiKey"`
	}](payload)
	if errResp != nil {
		return *errResp
	}
	if input.Provider == "" {
		return errResponse("", CodeInvalidPayload, "provider is required")
	}
	if err := r.secrets.SaveKey(input.Provider, input.APIKey); err != nil {
		return errResponse("", CodeStorageFailure, err.Error())
	}
	return okResponse("", r.secrets.ProviderStatus())
}

func (r *Runtime) startLiveSession(payload jsoncodec.Raw) InvokeResponse {
	var input session.StartInput
	if len(payload) > 0 {
		if err := jsoncodec.Unmarshal(payload, &input); err != nil {
			return errResponse("", CodeInvalidPayload,
				fmt.Sprintf("failed to decode payload: %v", err))
		}
	}

	result, err := r.sessions.Start(input)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyRunning) {
			return errResponse("", CodeSessionAlreadyRunning, err.Error())
		}
		if errors.Is(err, storage.ErrNotFound) {
			return errResponse("", CodeNotFound, err.Error())
		}
		return errResponse("", CodeProviderUnavailable, err.Error())
	}
	return okResponse("", result)
}

func (r *Runtime) stopLiveSession() InvokeResponse {
	result, err := r.sessions.Stop()
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return errResponse("", CodeNoSession, err.Error())
		}
		return errResponse("", CodeStorageFailure, err.Error())
	}
	return okResponse("", result)
}

func (r *Runtime) pushAudioChunk(payload jsoncodec.Raw) InvokeResponse {
	input, errResp := decodePayload[struct {
		Chunk string `json:"chunk"`
	}](payload)
	if errResp != nil {
		return *errResp
	}
	samples, err := audio.DecodePCM16(input.Chunk)
	if err != nil {
		return errResponse("", CodeInvalidPayload, err.Error())
	}
	if err := r.sessions.PushAudio(samples); err != nil {
		return errResponse("", CodeNoSession, err.Error())
	}
	return okResponse("", map[string]int{"samples": len(samples)})
}

func (r *Runtime) setOverlayVisible(visible bool) InvokeResponse {
	r.mu.Lock()
	r.overlayVisible = visible
	r.mu.Unlock()

	r.bus.Emit(events.OverlayMode, map[string]bool{"visible": visible})
	return okResponse("", map[string]bool{"visible": visible})
}

func (r *Runtime) setOverlayMode(payload jsoncodec.Raw) InvokeResponse {
	mode, errResp := decodePayload[types.WindowMode](payload)
	if errResp != nil {
		return *errResp
	}
	mode.Opacity = types.ClampOpacity(mode.Opacity)

	prefs, err := r.store.GetPreferences(config.DefaultLocale())
	if err != nil {
		return r.storageError(err)
	}
	prefs.TeleprompterMode = mode
	if err := r.store.SavePreferences(prefs); err != nil {
		return r.storageError(err)
	}

	r.bus.Emit(events.OverlayMode, mode)
	return okResponse("", mode)
}

func (r *Runtime) getOverlayLayout() InvokeResponse {
	prefs, err := r.store.GetPreferences(config.DefaultLocale())
	if err != nil {
		return r.storageError(err)
	}
	return okResponse("", prefs.LiveOverlayLayout)
}

func (r *Runtime) saveOverlayLayout(payload jsoncodec.Raw) InvokeResponse {
	layout, errResp := decodePayload[types.OverlayLayout](payload)
	if errResp != nil {
		return *errResp
	}
	layout = layout.Clamp()

	prefs, err := r.store.GetPreferences(config.DefaultLocale())
	if err != nil {
		return r.storageError(err)
	}
	prefs.LiveOverlayLayout = layout
	if err := r.store.SavePreferences(prefs); err != nil {
		return r.storageError(err)
	}

	r.bus.Emit(events.OverlayLayout, layout)
	return okResponse("", layout)
}

func (r *Runtime) listTranscripts(payload jsoncodec.Raw) InvokeResponse {
	limit := 50
	if len(payload) > 0 {
		var input struct {
			Limit int `json:"limit"`
		}
		if err := jsoncodec.Unmarshal(payload, &input); err != nil {
			return errResponse("", CodeInvalidPayload,
				fmt.Sprintf("failed to decode payload: %v", err))
		}
		if input.Limit > 0 {
			limit = input.Limit
		}
	}
	records, err := r.store.ListTranscripts(limit)
	if err != nil {
		return r.storageError(err)
	}
	return okResponse("", records)
}

func (r *Runtime) getTranscriptText(payload jsoncodec.Raw) InvokeResponse {
	input, errResp := decodePayload[struct {
		SessionID string `json:"sessionId"`
	}](payload)
	if errResp != nil {
		return *errResp
	}

	rec, err := r.store.GetTranscript(input.SessionID)
	if err != nil {
		return r.storageError(err)
	}
	if rec.LocalPath == "" {
		return errResponse("", CodeNotFound, "transcript has no stored text")
	}
	text, err := os.ReadFile(rec.LocalPath)
	if err != nil {
		return errResponse("", CodeStorageFailure,
			fmt.Sprintf("failed to read transcript file: %v", err))
	}
	return okResponse("", map[string]string{
		"sessionId": rec.SessionID,
		"text":      string(text),
	})
}

func (r *Runtime) exportTranscript(payload jsoncodec.Raw) InvokeResponse {
	input, errResp := decodePayload[struct {
		SessionID       string `json:"sessionId"`
		CredentialsFile string `json:"credentialsFile"`
		TokenFile       string `json:"tokenFile"`
		FolderName      string `json:"folderName"`
	}](payload)
	if errResp != nil {
		return *errResp
	}

	rec, err := r.store.GetTranscript(input.SessionID)
	if err != nil {
		return r.storageError(err)
	}
	if rec.LocalPath == "" {
		return errResponse("", CodeNotFound, "transcript has no stored text")
	}
	text, err := os.ReadFile(rec.LocalPath)
	if err != nil {
		return errResponse("", CodeStorageFailure,
			fmt.Sprintf("failed to read transcript file: %v", err))
	}

	if input.FolderName == "" {
		input.FolderName = "Meeting Transcripts"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	exporter, err := export.NewDriveExporter(ctx, input.CredentialsFile, input.TokenFile, input.FolderName)
	if err != nil {
		return errResponse("", CodeProviderUnavailable, err.Error())
	}

	url, err := exporter.Upload(rec, string(text), nil)
	if err != nil {
		return errResponse("", CodeProviderUnavailable,
			fmt.Sprintf("failed to upload transcript: %v", err))
	}
	if err := r.store.SetTranscriptDriveURL(rec.SessionID, url); err != nil {
		r.logger.Warn("failed to record Drive URL", zap.Error(err))
	}

	return okResponse("", map[string]string{
		"sessionId": rec.SessionID,
		"driveUrl":  url,
	})
}
