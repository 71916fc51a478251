package asr

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/fasthttp/websocket"

	"github.com/meetingassist/meeting-core/internal/audio"
	"github.com/meetingassist/meeting-core/internal/jsoncodec"
)

// DeepgramConn streams linear16 PCM to Deepgram's live listen endpoint.
type DeepgramConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	events  chan Event

	closeOnce sync.Once
	closeErr  error
}

// ConnectDeepgram opens the live websocket and starts the reader.
func ConnectDeepgram(apiKey, language string, sampleRate, channels int) (*DeepgramConn, error) {
	url := fmt.Sprintf(
		"wss://api.deepgram.com/v1/listen?model=nova-2&language=%s&encoding=linear16&sample_rate=%d&channels=%d&interim_results=true&punctuate=true",
		language, sampleRate, channels)

	header := http.Header{}
	header.Set("Authorization", "Token "+apiKey)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open Deepgram websocket (status %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to open Deepgram websocket: %v", err)
	}

	dc := &DeepgramConn{
		conn:   conn,
		events: make(chan Event, 128),
	}
	go dc.readLoop()
	return dc, nil
}

// SendPCM forwards one chunk of PCM16 audio.
func (dc *DeepgramConn) SendPCM(samples []int16) error {
	dc.writeMu.Lock()
	defer dc.writeMu.Unlock()
	if err := dc.conn.WriteMessage(websocket.BinaryMessage, audio.EncodePCM16(samples)); err != nil {
		return fmt.Errorf("failed to send audio chunk to Deepgram: %v", err)
	}
	return nil
}

// Close asks Deepgram to flush and close the stream. Safe to call more
// than once.
func (dc *DeepgramConn) Close() error {
	dc.closeOnce.Do(func() {
		dc.writeMu.Lock()
		err := dc.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		dc.writeMu.Unlock()
		if err != nil {
			dc.closeErr = fmt.Errorf("failed to send CloseStream message: %v", err)
		}
		dc.conn.Close()
	})
	return dc.closeErr
}

func (dc *DeepgramConn) Events() <-chan Event {
	return dc.events
}

func (dc *DeepgramConn) readLoop() {
	defer close(dc.events)
	for {
		messageType, message, err := dc.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if event, ok := parseDeepgramResult(message); ok {
			dc.events <- event
		}
	}
}

type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResult extracts a transcript event from one Results
// message; empty transcripts are skipped.
func parseDeepgramResult(payload []byte) (Event, bool) {
	var result deepgramResult
	if err := jsoncodec.Unmarshal(payload, &result); err != nil {
		return Event{}, false
	}
	if result.Type != "Results" || len(result.Channel.Alternatives) == 0 {
		return Event{}, false
	}

	text := strings.TrimSpace(result.Channel.Alternatives[0].Transcript)
	if text == "" {
		return Event{}, false
	}

	return Event{
		Kind:    KindTranscript,
		Text:    text,
		IsFinal: result.IsFinal,
	}, true
}
