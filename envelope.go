package meetingcore

import "github.com/meetingassist/meeting-core/internal/jsoncodec"

// SchemaVersion is stamped on every response envelope so hosts can
// detect wire-format changes without parsing anything else.
const SchemaVersion = 1

// Error codes carried in response envelopes.
const (
	CodeInvalidRequest        = "invalid_request"
	CodeInvalidPayload        = "invalid_payload"
	CodeUnknownCommand        = "unknown_command"
	CodeNotFound              = "not_found"
	CodeSessionAlreadyRunning = "session_already_running"
	CodeNoSession             = "no_session"
	CodeProviderUnavailable   = "provider_unavailable"
	CodeStorageFailure        = "storage_failure"
)

// InvokeRequest is the shape InvokeJSON accepts. The payload stays raw
// until the command handler knows what to decode it into.
type InvokeRequest struct {
	Command string        `json:"command"`
	Payload jsoncodec.Raw `json:"payload,omitempty"`
	Nonce   string        `json:"nonce,omitempty"`
}

// InvokeError is the error object inside a failed envelope.
type InvokeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InvokeResponse is the envelope every invoke returns.
type InvokeResponse struct {
	OK            bool         `json:"ok"`
	SchemaVersion int          `json:"schemaVersion"`
	Nonce         string       `json:"nonce,omitempty"`
	Data          any          `json:"data,omitempty"`
	Error         *InvokeError `json:"error,omitempty"`
}

func okResponse(nonce string, data any) InvokeResponse {
	return InvokeResponse{OK: true, SchemaVersion: SchemaVersion, Nonce: nonce, Data: data}
}

func errResponse(nonce, code, message string) InvokeResponse {
	return InvokeResponse{
		OK:            false,
		SchemaVersion: SchemaVersion,
		Nonce:         nonce,
		Error:         &InvokeError{Code: code, Message: message},
	}
}

// serializeEnvelopeFallback is returned when the envelope itself cannot
// be serialized. It is valid envelope JSON by construction.
const serializeEnvelopeFallback = `{"ok":false,"schemaVersion":1,"error":{"code":"invalid_request","message":"failed to serialize response"}}`

func (r InvokeResponse) serialize() string {
	data, err := jsoncodec.Marshal(r)
	if err != nil {
		return serializeEnvelopeFallback
	}
	return string(data)
}
