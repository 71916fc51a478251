package asr

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"

	"github.com/meetingassist/meeting-core/internal/audio"
	"github.com/meetingassist/meeting-core/internal/jsoncodec"
	"github.com/meetingassist/meeting-core/internal/secrets"
)

const tingwuEndpoint = "https://tingwu.cn-beijing.aliyuncs.com"

// TingwuConn streams PCM to an Aliyun Tingwu realtime meeting task. The
// task is created over the signed ROA HTTP API, audio flows over the
// meeting websocket, and Close stops both.
type TingwuConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	events  chan Event

	httpClient   *http.Client
	creds        secrets.AliyunSecrets
	taskID       string
	streamTaskID string

	closeOnce sync.Once
	closeErr  error
}

// ConnectTingwu creates a realtime task, joins its websocket and starts
// the transcription stream.
func ConnectTingwu(client *http.Client, creds secrets.AliyunSecrets, sourceLanguage, targetLanguage string, sampleRate int) (*TingwuConn, error) {
	if client == nil {
		client = http.DefaultClient
	}

	task, err := createTingwuTask(client, creds, sourceLanguage, targetLanguage)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.Dial(task.meetingJoinURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect Aliyun meeting websocket: %v", err)
	}

	tc := &TingwuConn{
		conn:         conn,
		events:       make(chan Event, 256),
		httpClient:   client,
		creds:        creds,
		taskID:       task.taskID,
		streamTaskID: uuid.New().String(),
	}

	start := tc.buildControlPayload("StartTranscription", map[string]any{
		"format":                            "pcm",
		"sample_rate":                       sampleRate,
		"enable_intermediate_result":        true,
		"enable_inverse_text_normalization": true,
	})
	if err := conn.WriteMessage(websocket.TextMessage, start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start Aliyun transcription stream: %v", err)
	}

	go tc.readLoop()
	return tc, nil
}

// SendPCM forwards one chunk of PCM16 audio.
func (tc *TingwuConn) SendPCM(samples []int16) error {
	tc.writeMu.Lock()
	defer tc.writeMu.Unlock()
	if err := tc.conn.WriteMessage(websocket.BinaryMessage, audio.EncodePCM16(samples)); err != nil {
		return fmt.Errorf("failed to send audio chunk to Aliyun Tingwu: %v", err)
	}
	return nil
}

// Close stops the transcription stream, closes the websocket and stops
// the server-side task. Safe to call more than once.
func (tc *TingwuConn) Close() error {
	tc.closeOnce.Do(func() {
		stop := tc.buildControlPayload("StopTranscription", map[string]any{})
		tc.writeMu.Lock()
		tc.conn.WriteMessage(websocket.TextMessage, stop)
		tc.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		tc.writeMu.Unlock()
		tc.conn.Close()

		tc.closeErr = stopTingwuTask(tc.httpClient, tc.creds, tc.taskID)
	})
	return tc.closeErr
}

func (tc *TingwuConn) Events() <-chan Event {
	return tc.events
}

func (tc *TingwuConn) buildControlPayload(name string, payload map[string]any) []byte {
	message := map[string]any{
		"header": map[string]any{
			"appkey":     tc.creds.AppKey,
			"message_id": uuid.New().String(),
			"task_id":    tc.streamTaskID,
			"namespace":  "SpeechTranscriber",
			"name":       name,
		},
		"payload": payload,
	}
	data, _ := jsoncodec.Marshal(message)
	return data
}

func (tc *TingwuConn) readLoop() {
	defer close(tc.events)
	for {
		messageType, message, err := tc.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		for _, event := range parseTingwuEvents(message) {
			tc.events <- event
		}
	}
}

type tingwuMessage struct {
	Header struct {
		Name string `json:"name"`
	} `json:"header"`
	Payload struct {
		Result          string `json:"result"`
		Index           int64  `json:"index"`
		Partial         bool   `json:"partial"`
		TranslateResult []struct {
			Index int64  `json:"index"`
			Text  string `json:"text"`
		} `json:"translate_result"`
	} `json:"payload"`
}

// parseTingwuEvents maps Tingwu stream messages to events. Sentence
// messages yield transcripts (SentenceEnd marks final); ResultTranslated
// yields translations joined across sentence parts.
func parseTingwuEvents(payload []byte) []Event {
	var message tingwuMessage
	if err := jsoncodec.Unmarshal(payload, &message); err != nil {
		return nil
	}

	switch message.Header.Name {
	case "TranscriptionResultChanged", "SentenceBegin", "SentenceEnd":
		text := strings.TrimSpace(message.Payload.Result)
		if text == "" {
			return nil
		}
		return []Event{{
			Kind:          KindTranscript,
			Text:          text,
			IsFinal:       message.Header.Name == "SentenceEnd",
			SentenceIndex: message.Payload.Index,
		}}

	case "ResultTranslated":
		var parts []string
		index := message.Payload.Index
		for _, item := range message.Payload.TranslateResult {
			if index == 0 {
				index = item.Index
			}
			if text := strings.TrimSpace(item.Text); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			return nil
		}
		return []Event{{
			Kind:          KindTranslation,
			Text:          strings.Join(parts, " "),
			IsFinal:       !message.Payload.Partial,
			SentenceIndex: index,
		}}
	}
	return nil
}

type tingwuTask struct {
	taskID         string
	meetingJoinURL string
}

func createTingwuTask(client *http.Client, creds secrets.AliyunSecrets, sourceLanguage, targetLanguage string) (*tingwuTask, error) {
	body, _ := jsoncodec.Marshal(map[string]any{
		"AppKey":               creds.AppKey,
		"TranscriptionEnabled": true,
		"TranslationEnabled":   true,
		"SourceLanguage":       sourceLanguage,
		"TranslationLanguages": []string{targetLanguage},
	})

	resp, err := sendSignedROARequest(client, creds, "PUT", "/openapi/tingwu/v2/tasks",
		map[string]string{"type": "realtime"}, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Aliyun CreateTask response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Aliyun CreateTask failed: %s", payload)
	}

	var parsed struct {
		Data struct {
			TaskID         string `json:"TaskId"`
			MeetingJoinURL string `json:"MeetingJoinUrl"`
		} `json:"Data"`
	}
	if err := jsoncodec.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse Aliyun CreateTask response: %v", err)
	}
	if parsed.Data.TaskID == "" || parsed.Data.MeetingJoinURL == "" {
		return nil, fmt.Errorf("Aliyun CreateTask response missing TaskId or MeetingJoinUrl: %s", payload)
	}

	return &tingwuTask{
		taskID:         parsed.Data.TaskID,
		meetingJoinURL: parsed.Data.MeetingJoinURL,
	}, nil
}

func stopTingwuTask(client *http.Client, creds secrets.AliyunSecrets, taskID string) error {
	body, _ := jsoncodec.Marshal(map[string]any{"TaskId": taskID})
	resp, err := sendSignedROARequest(client, creds, "PUT", "/openapi/tingwu/v2/tasks",
		map[string]string{"operation": "stop", "type": "realtime"}, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Aliyun stop task failed: %s", payload)
	}
	return nil
}

// sendSignedROARequest signs a Tingwu API request with the ACS ROA
// HMAC-SHA1 scheme.
func sendSignedROARequest(client *http.Client, creds secrets.AliyunSecrets, method, path string, query map[string]string, body []byte) (*http.Response, error) {
	const accept = "application/json"
	const contentType = "application/json"
	date := time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")

	sum := md5.Sum(body)
	contentMD5 := base64.StdEncoding.EncodeToString(sum[:])

	acsHeaders := map[string]string{
		"x-acs-signature-method":  "HMAC-SHA1",
		"x-acs-signature-nonce":   uuid.New().String(),
		"x-acs-signature-version": "1.0",
		"x-acs-version":           "2023-09-30",
	}

	resource := canonicalizedResource(path, query)
	stringToSign := strings.Join([]string{
		method, accept, contentMD5, contentType, date,
		canonicalizedHeaders(acsHeaders) + resource,
	}, "\n")

	mac := hmac.New(sha1.New, []byte(creds.AccessKeySecret))
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequest(method, tingwuEndpoint+resource, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to build signed ROA request: %v", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-MD5", contentMD5)
	req.Header.Set("Date", date)
	req.Header.Set("Authorization", fmt.Sprintf("acs %s:%s", creds.AccessKeyID, signature))
	for name, value := range acsHeaders {
		req.Header.Set(name, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send signed ROA request: %v", err)
	}
	return resp, nil
}

func canonicalizedHeaders(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, key := range keys {
		out.WriteString(key)
		out.WriteByte(':')
		out.WriteString(headers[key])
		out.WriteByte('\n')
	}
	return out.String()
}

func canonicalizedResource(path string, query map[string]string) string {
	if len(query) == 0 {
		return path
	}
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+query[key])
	}
	return path + "?" + strings.Join(parts, "&")
}
