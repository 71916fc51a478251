// Package audio holds the PCM helpers for the session pipeline. The
// runtime does not open capture devices itself; the embedding host
// records audio and pushes PCM16 chunks across the boundary.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/meetingassist/meeting-core/internal/types"
)

// Default capture format expected from the host
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

// DecodePCM16 decodes a base64 payload of little-endian 16-bit PCM.
func DecodePCM16(encoded string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio payload: %v", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(raw))
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, nil
}

// EncodePCM16 converts samples back to the little-endian byte layout the
// streaming providers expect on the wire.
func EncodePCM16(samples []int16) []byte {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	return raw
}

// ListDevices enumerates capture devices. Device access lives in the
// embedding host, so the runtime reports none and says so.
func ListDevices() types.AudioDeviceList {
	return types.AudioDeviceList{
		Microphones:             []types.AudioDevice{},
		SystemLoopbackAvailable: false,
		Note:                    "audio capture is owned by the embedding host; push PCM via push_audio_chunk",
	}
}
