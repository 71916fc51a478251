package meetingcore

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetingassist/meeting-core/internal/audio"
	"github.com/meetingassist/meeting-core/internal/jsoncodec"
	"github.com/meetingassist/meeting-core/internal/types"
)

func TestPreferencesDefaultsAndRoundTrip(t *testing.T) {
	rt := newTestRuntime(t)

	env := invoke(t, rt, "get_user_preferences", nil)
	require.True(t, env.OK)

	var prefs types.UserPreferences
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &prefs))
	assert.Equal(t, "system", prefs.ThemeMode)
	assert.False(t, prefs.OnboardingCompleted)
	assert.Equal(t, "anthropic", prefs.LlmSettings.Provider)

	prefs.ThemeMode = "dark"
	prefs.OnboardingCompleted = true
	env = invoke(t, rt, "save_user_preferences", prefs)
	require.True(t, env.OK)

	env = invoke(t, rt, "get_user_preferences", nil)
	require.True(t, env.OK)
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &prefs))
	assert.Equal(t, "dark", prefs.ThemeMode)
	assert.True(t, prefs.OnboardingCompleted)
}

func TestOverlayLayoutClamping(t *testing.T) {
	rt := newTestRuntime(t)

	env := invoke(t, rt, "save_live_overlay_layout", types.OverlayLayout{
		Opacity: 0.05,
		X:       10,
		Y:       20,
		Width:   99999,
		Height:  1,
	})
	require.True(t, env.OK)

	var layout types.OverlayLayout
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &layout))
	assert.Equal(t, 0.35, layout.Opacity)
	assert.Equal(t, 1920, layout.Width)
	assert.Equal(t, 260, layout.Height)
	assert.Equal(t, 10, layout.X)

	env = invoke(t, rt, "get_live_overlay_layout", nil)
	require.True(t, env.OK)
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &layout))
	assert.Equal(t, 1920, layout.Width)
}

func TestLlmSettingsRoundTrip(t *testing.T) {
	rt := newTestRuntime(t)

	env := invoke(t, rt, "save_llm_settings", types.LlmSettings{
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		APIFormat: "openai",
	})
	require.True(t, env.OK)

	env = invoke(t, rt, "get_llm_settings", nil)
	require.True(t, env.OK)
	var settings types.LlmSettings
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &settings))
	assert.Equal(t, "openai", settings.Provider)
	assert.Equal(t, "gpt-4o-mini", settings.Model)
}

func TestMeetingProfileLifecycle(t *testing.T) {
	rt := newTestRuntime(t)

	env := invoke(t, rt, "list_meeting_profiles", nil)
	require.True(t, env.OK)
	var profiles []types.MeetingProfile
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &profiles))
	assert.Empty(t, profiles)

	env = invoke(t, rt, "save_meeting_profile", map[string]string{
		"name":        "Weekly sync",
		"meetingType": "standup",
		"domain":      "engineering",
	})
	require.True(t, env.OK)
	var profile types.MeetingProfile
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &profile))
	require.NotEmpty(t, profile.ID)

	// update keeps the id
	env = invoke(t, rt, "save_meeting_profile", map[string]string{
		"id":   profile.ID,
		"name": "Weekly sync (renamed)",
	})
	require.True(t, env.OK)
	var updated types.MeetingProfile
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &updated))
	assert.Equal(t, profile.ID, updated.ID)
	assert.Equal(t, "Weekly sync (renamed)", updated.Name)

	env = invoke(t, rt, "list_meeting_profiles", nil)
	require.True(t, env.OK)
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &profiles))
	require.Len(t, profiles, 1)

	env = invoke(t, rt, "delete_meeting_profile", map[string]string{"id": profile.ID})
	require.True(t, env.OK)

	env = invoke(t, rt, "list_meeting_profiles", nil)
	require.True(t, env.OK)
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &profiles))
	assert.Empty(t, profiles)
}

func TestSaveProfileRequiresName(t *testing.T) {
	rt := newTestRuntime(t)
	env := invoke(t, rt, "save_meeting_profile", map[string]string{"name": "   "})
	assert.False(t, env.OK)
	assert.Equal(t, CodeInvalidPayload, env.Error.Code)
}

func saveTestProfile(t *testing.T, rt *Runtime, name string) types.MeetingProfile {
	t.Helper()
	env := invoke(t, rt, "save_meeting_profile", map[string]string{"name": name})
	require.True(t, env.OK)
	var profile types.MeetingProfile
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &profile))
	return profile
}

// writeSamplePDF assembles a one-page PDF around the given text. The
// xref offsets are recorded while writing so the file parses cleanly.
func writeSamplePDF(t *testing.T, path, text string) {
	t.Helper()

	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objects)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, xref)

	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
}

func TestExtractAttachmentTextFromTxt(t *testing.T) {
	rt := newTestRuntime(t)
	profile := saveTestProfile(t, rt, "Notes")

	path := filepath.Join(t.TempDir(), "agenda.txt")
	require.NoError(t, os.WriteFile(path, []byte("ship the beta"), 0644))

	env := invoke(t, rt, "extract_attachment_text", map[string]string{
		"profileId": profile.ID,
		"filePath":  path,
	})
	require.True(t, env.OK)

	var att types.Attachment
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &att))
	assert.Equal(t, "txt", att.FileType)
	assert.Equal(t, "ship the beta", att.ExtractedText)
}

func TestExtractAttachmentTextFromPDF(t *testing.T) {
	rt := newTestRuntime(t)
	profile := saveTestProfile(t, rt, "Review")

	path := filepath.Join(t.TempDir(), "targets.pdf")
	writeSamplePDF(t, path, "Quarterly targets")

	env := invoke(t, rt, "extract_attachment_text", map[string]string{
		"profileId": profile.ID,
		"filePath":  path,
	})
	require.True(t, env.OK, "error: %+v", env.Error)

	var att types.Attachment
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &att))
	assert.Equal(t, "pdf", att.FileType)
	assert.Contains(t, att.ExtractedText, "Quarterly")
	assert.Contains(t, att.ExtractedText, "targets")
}

func TestExtractAttachmentTextRejectsBrokenPDF(t *testing.T) {
	rt := newTestRuntime(t)
	profile := saveTestProfile(t, rt, "Review")

	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0644))

	env := invoke(t, rt, "extract_attachment_text", map[string]string{
		"profileId": profile.ID,
		"filePath":  path,
	})
	require.False(t, env.OK, "a pdf that cannot be parsed must not save silently")
	assert.Equal(t, CodeInvalidPayload, env.Error.Code)
}

func TestExtractAttachmentTextRejectsUnknownType(t *testing.T) {
	rt := newTestRuntime(t)
	profile := saveTestProfile(t, rt, "Review")

	env := invoke(t, rt, "extract_attachment_text", map[string]string{
		"profileId": profile.ID,
		"filePath":  "/tmp/slides.pptx",
	})
	require.False(t, env.OK)
	assert.Equal(t, CodeInvalidPayload, env.Error.Code)
}

func TestProviderSecrets(t *testing.T) {
	rt := newTestRuntime(t)

	env := invoke(t, rt, "save_provider_key", map[string]string{
		"provider": "deepgram",
		"apiKey":   "dg-test-key",
	})
	require.True(t, env.OK)

	env = invoke(t, rt, "save_provider_secret", map[string]string{
		"provider": "aliyun",
		"field":    "access_key_id",
		"value":    "ak-id",
	})
	require.True(t, env.OK)

	var status types.ProviderStatus
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &status))
	assert.True(t, status.Deepgram)
	assert.False(t, status.Claude)
}

func TestListAudioDevices(t *testing.T) {
	rt := newTestRuntime(t)
	env := invoke(t, rt, "list_audio_devices", nil)
	require.True(t, env.OK)

	var devices types.AudioDeviceList
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &devices))
	assert.False(t, devices.SystemLoopbackAvailable)
}

func TestPushAudioWithoutSession(t *testing.T) {
	rt := newTestRuntime(t)

	chunk := base64.StdEncoding.EncodeToString(audio.EncodePCM16([]int16{0, 1, -1, 32767}))
	env := invoke(t, rt, "push_audio_chunk", map[string]string{"chunk": chunk})
	assert.False(t, env.OK)
	assert.Equal(t, CodeNoSession, env.Error.Code)
}

func TestStopWithoutSession(t *testing.T) {
	rt := newTestRuntime(t)
	env := invoke(t, rt, "stop_live_session", nil)
	assert.False(t, env.OK)
	assert.Equal(t, CodeNoSession, env.Error.Code)
}

func TestDegradedSessionLifecycle(t *testing.T) {
	rt := newTestRuntime(t)

	var states []types.SessionStateEvent
	done := make(chan struct{})
	rt.SetEventCallback(func(event string, payload []byte) {
		if event != "session://state" {
			return
		}
		var envelope struct {
			Payload types.SessionStateEvent `json:"payload"`
		}
		if err := jsoncodec.Unmarshal(payload, &envelope); err != nil {
			return
		}
		states = append(states, envelope.Payload)
		if envelope.Payload.State == types.SessionStopped {
			close(done)
		}
	})

	// no provider credentials stored: the session comes up degraded
	env := invoke(t, rt, "start_live_session", map[string]string{"title": "Degraded run"})
	require.True(t, env.OK)

	var started struct {
		SessionID    string `json:"sessionId"`
		DegradedMode bool   `json:"degradedMode"`
	}
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &started))
	assert.True(t, started.DegradedMode)
	require.NotEmpty(t, started.SessionID)

	// starting again must fail while the first session lives
	env = invoke(t, rt, "start_live_session", nil)
	assert.False(t, env.OK)
	assert.Equal(t, CodeSessionAlreadyRunning, env.Error.Code)

	// degraded sessions accept and discard audio
	chunk := base64.StdEncoding.EncodeToString(audio.EncodePCM16(make([]int16, 1600)))
	env = invoke(t, rt, "push_audio_chunk", map[string]string{"chunk": chunk})
	assert.True(t, env.OK)

	env = invoke(t, rt, "stop_live_session", nil)
	require.True(t, env.OK)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("never saw the stopped state event")
	}

	require.GreaterOrEqual(t, len(states), 3)
	assert.Equal(t, types.SessionStarting, states[0].State)
	assert.Equal(t, types.SessionRunning, states[1].State)
	assert.True(t, states[1].DegradedMode)
	assert.Equal(t, types.SessionStopped, states[len(states)-1].State)
}

func TestTranscriptsEmpty(t *testing.T) {
	rt := newTestRuntime(t)

	env := invoke(t, rt, "list_transcripts", nil)
	require.True(t, env.OK)
	var records []types.TranscriptRecord
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &records))
	assert.Empty(t, records)

	env = invoke(t, rt, "get_transcript_text", map[string]string{"sessionId": "nope"})
	assert.False(t, env.OK)
	assert.Equal(t, CodeNotFound, env.Error.Code)
}

func TestSessionTranscriptListedAfterStop(t *testing.T) {
	rt := newTestRuntime(t)

	env := invoke(t, rt, "start_live_session", map[string]string{"title": "Recorded"})
	require.True(t, env.OK)
	env = invoke(t, rt, "stop_live_session", nil)
	require.True(t, env.OK)

	env = invoke(t, rt, "list_transcripts", nil)
	require.True(t, env.OK)
	var records []types.TranscriptRecord
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Recorded", records[0].Title)
}

func TestBootstrapState(t *testing.T) {
	rt := newTestRuntime(t)

	env := invoke(t, rt, "get_bootstrap_state", nil)
	require.True(t, env.OK)

	var state struct {
		Platform       string                `json:"platform"`
		PlatformStyle  string                `json:"platformStyle"`
		Locale         string                `json:"locale"`
		Preferences    types.UserPreferences `json:"preferences"`
		OverlayVisible bool                  `json:"overlayVisible"`
	}
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &state))
	assert.NotEmpty(t, state.Platform)
	assert.NotEmpty(t, state.PlatformStyle)
	assert.NotEmpty(t, state.Locale)
	assert.False(t, state.OverlayVisible)

	invoke(t, rt, "show_live_overlay", nil)
	env = invoke(t, rt, "get_bootstrap_state", nil)
	require.True(t, env.OK)
	require.NoError(t, jsoncodec.Unmarshal(env.Data, &state))
	assert.True(t, state.OverlayVisible)
}

func TestStartOverlayDrag(t *testing.T) {
	rt := newTestRuntime(t)
	env := invoke(t, rt, "start_live_overlay_drag", nil)
	assert.True(t, env.OK)
}
