package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PersistedState はリロードを跨いで保持されるクライアント状態。
// Bearerトークン1つと、セッション内で1回だけ表示する
// オンボーディング確認フラグのみを持つ。
type PersistedState struct {
	Token                  string `yaml:"token"`
	OnboardingAcknowledged bool   `yaml:"onboarding_acknowledged"`
}

// CredentialStore は永続化されたクライアント状態の読み書きインターフェース。
type CredentialStore interface {
	// Load は保存済み状態を読み込む。未保存の場合は空の状態を返す。
	Load() (*PersistedState, error)
	// Save は状態を保存する。
	Save(state *PersistedState) error
	// Clear は保存済み状態を破棄する。未保存でもエラーにはしない。
	Clear() error
}

// FileCredentialStore はYAMLファイルにクライアント状態を保存する。
// トークンは秘密情報のため、ファイルは所有者のみ読み書き可能な権限で作成する。
type FileCredentialStore struct {
	path string
}

// NewFileCredentialStore は指定パスに保存するFileCredentialStoreを生成する。
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// DefaultCredentialPath はユーザー設定ディレクトリ配下の保存先パスを返す。
func DefaultCredentialPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "evalman", "session.yaml"), nil
}

// Load は保存済み状態を読み込む。ファイルが存在しない場合は空の状態を返す。
func (s *FileCredentialStore) Load() (*PersistedState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &PersistedState{}, nil
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var state PersistedState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	return &state, nil
}

// Save は状態をYAMLで書き込む。親ディレクトリが存在しない場合は作成する。
func (s *FileCredentialStore) Save(state *PersistedState) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode credential state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}

// Clear は保存済みファイルを削除する。存在しない場合は何もしない。
func (s *FileCredentialStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}
