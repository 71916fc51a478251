package secrets

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetKey(t *testing.T) {
	svc := NewService(t.TempDir())

	require.NoError(t, svc.SaveKey("deepgram", "dg-key"))

	key, err := svc.GetKey("deepgram")
	require.NoError(t, err)
	assert.Equal(t, "dg-key", key)

	// missing provider yields empty, not an error
	key, err = svc.GetKey("openai")
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestSecretFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	dir := t.TempDir()
	svc := NewService(dir)
	require.NoError(t, svc.SaveKey("claude", "sk-ant"))

	info, err := os.Stat(filepath.Join(dir, "secrets.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestAliyunSecretsRequireFullTriplet(t *testing.T) {
	svc := NewService(t.TempDir())

	require.NoError(t, svc.SaveSecret("aliyun", FieldAccessKeyID, "ak-id"))
	require.NoError(t, svc.SaveSecret("aliyun", FieldAccessKeySecret, "ak-secret"))

	creds, err := svc.AliyunSecrets()
	require.NoError(t, err)
	assert.Nil(t, creds, "incomplete triplet must not yield credentials")

	require.NoError(t, svc.SaveSecret("aliyun", FieldAppKey, "app-key"))
	creds, err = svc.AliyunSecrets()
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "ak-id", creds.AccessKeyID)
	assert.Equal(t, "app-key", creds.AppKey)
}

func TestProviderStatus(t *testing.T) {
	svc := NewService(t.TempDir())

	status := svc.ProviderStatus()
	assert.False(t, status.Deepgram)
	assert.False(t, status.Aliyun)

	require.NoError(t, svc.SaveKey("deepgram", "dg"))
	require.NoError(t, svc.SaveSecret("aliyun", FieldAccessKeyID, "a"))
	require.NoError(t, svc.SaveSecret("aliyun", FieldAccessKeySecret, "b"))
	require.NoError(t, svc.SaveSecret("aliyun", FieldAppKey, "c"))

	status = svc.ProviderStatus()
	assert.True(t, status.Deepgram)
	assert.True(t, status.Aliyun)
	assert.False(t, status.OpenAI)
}

func TestOverwriteKey(t *testing.T) {
	svc := NewService(t.TempDir())
	require.NoError(t, svc.SaveKey("deepgram", "first"))
	require.NoError(t, svc.SaveKey("deepgram", "second"))

	key, err := svc.GetKey("deepgram")
	require.NoError(t, err)
	assert.Equal(t, "second", key)
}
