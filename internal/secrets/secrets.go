// Package secrets stores provider credentials in a mode-0600 JSON file
// under the runtime data directory. Platform keychains are the embedding
// host's concern; the file store is the portable core every platform
// shares.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/meetingassist/meeting-core/internal/jsoncodec"
	"github.com/meetingassist/meeting-core/internal/types"
)

// Field names for multi-part provider credentials
const (
	FieldAPIKey          = "api_key"
	FieldAccessKeyID     = "access_key_id"
	FieldAccessKeySecret = "access_key_secret"
	FieldAppKey          = "app_key"
)

// AliyunSecrets is the credential triplet the Tingwu client needs.
type AliyunSecrets struct {
	AccessKeyID     string
	AccessKeySecret string
	AppKey          string
}

// Service reads and writes the secret file. All methods are safe for
// concurrent use.
type Service struct {
	path string
	mu   sync.Mutex
}

func NewService(dataDir string) *Service {
	return &Service{path: filepath.Join(dataDir, "secrets.json")}
}

// SaveKey stores a single-field provider credential under the api_key
// field.
func (s *Service) SaveKey(provider, apiKey string) error {
	return s.SaveSecret(provider, FieldAPIKey, apiKey)
}

// SaveSecret stores one field of a provider credential.
func (s *Service) SaveSecret(provider, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	if state[provider] == nil {
		state[provider] = map[string]string{}
	}
	state[provider][field] = value
	return s.write(state)
}

// GetKey returns a provider's api_key field, or empty when unset.
func (s *Service) GetKey(provider string) (string, error) {
	return s.GetSecret(provider, FieldAPIKey)
}

// GetSecret returns one field of a provider credential, or empty when
// unset.
func (s *Service) GetSecret(provider, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return "", err
	}
	return state[provider][field], nil
}

// AliyunSecrets returns the Tingwu credential triplet when all three
// fields are present, nil otherwise.
func (s *Service) AliyunSecrets() (*AliyunSecrets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return nil, err
	}
	aliyun := state[types.SecretAliyun]
	id := aliyun[FieldAccessKeyID]
	secret := aliyun[FieldAccessKeySecret]
	appKey := aliyun[FieldAppKey]
	if id == "" || secret == "" || appKey == "" {
		return nil, nil
	}
	return &AliyunSecrets{AccessKeyID: id, AccessKeySecret: secret, AppKey: appKey}, nil
}

// ProviderStatus reports which providers have credentials configured.
func (s *Service) ProviderStatus() types.ProviderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return types.ProviderStatus{}
	}

	aliyun := state[types.SecretAliyun]
	return types.ProviderStatus{
		Aliyun: aliyun[FieldAccessKeyID] != "" &&
			aliyun[FieldAccessKeySecret] != "" &&
			aliyun[FieldAppKey] != "",
		Deepgram:  state[types.SecretDeepgram][FieldAPIKey] != "",
		Claude:    state[types.SecretClaude][FieldAPIKey] != "",
		Gemini:    state[types.SecretGemini][FieldAPIKey] != "",
		OpenAI:    state[types.SecretOpenAI][FieldAPIKey] != "",
		CustomLLM: state[types.SecretCustomLLM][FieldAPIKey] != "",
	}
}

func (s *Service) read() (map[string]map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret store: %v", err)
	}

	state := map[string]map[string]string{}
	if err := jsoncodec.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode secret store: %v", err)
	}
	return state, nil
}

func (s *Service) write(state map[string]map[string]string) error {
	data, err := jsoncodec.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode secret store: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create secret directory: %v", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write secret store: %v", err)
	}
	return nil
}
