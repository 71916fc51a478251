package audio

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 127, -128, 32767, -32768}

	encoded := base64.StdEncoding.EncodeToString(EncodePCM16(samples))
	decoded, err := DecodePCM16(encoded)
	require.NoError(t, err)
	assert.Equal(t, samples, decoded)
}

func TestDecodeRejectsInvalidBase64(t *testing.T) {
	_, err := DecodePCM16("not base64 !!!")
	assert.Error(t, err)
}

func TestDecodeRejectsOddByteCount(t *testing.T) {
	odd := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	_, err := DecodePCM16(odd)
	assert.Error(t, err)
}

func TestDecodeEmpty(t *testing.T) {
	decoded, err := DecodePCM16("")
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestEncodeLittleEndian(t *testing.T) {
	data := EncodePCM16([]int16{0x0102})
	require.Len(t, data, 2)
	assert.Equal(t, byte(0x02), data[0])
	assert.Equal(t, byte(0x01), data[1])
}

func TestListDevicesShape(t *testing.T) {
	devices := ListDevices()
	assert.False(t, devices.SystemLoopbackAvailable)
	assert.NotEmpty(t, devices.Note)
}
