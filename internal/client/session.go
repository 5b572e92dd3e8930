package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// SessionPhase はセッションの状態を表す。
type SessionPhase int

const (
	// SessionLoading は保存済みトークンの検証が完了していない初期状態。
	SessionLoading SessionPhase = iota
	// SessionEmpty は有効なセッションが存在しない状態。
	SessionEmpty
	// SessionPopulated は検証済みのユーザーを保持している状態。
	SessionPopulated
)

// String はSessionPhaseの文字列表現を返す。
func (p SessionPhase) String() string {
	switch p {
	case SessionLoading:
		return "loading"
	case SessionEmpty:
		return "empty"
	case SessionPopulated:
		return "populated"
	default:
		return "unknown"
	}
}

// SessionAPI はSessionStoreが必要とするリモート操作。
type SessionAPI interface {
	Login(ctx context.Context, email, password string) (string, *User, error)
	ValidateSession(ctx context.Context, token string) (*User, error)
	Logout(ctx context.Context, token string) error
}

// SessionStore はBearerトークンとログイン中ユーザーの身元を所有する。
// 不変条件: userが非nil ⟺ 保持トークンが直近のロードまたはログイン以降に
// リモートで検証済みであること。
//
// 状態変更（空→保持、保持→空）はトークンと user を常に同時に更新するため、
// 片方だけ設定された中間状態が観測されることはない。
type SessionStore struct {
	api    SessionAPI
	creds  CredentialStore
	logger *slog.Logger

	mu              sync.RWMutex
	phase           SessionPhase
	user            *User
	token           string
	onboardingAcked bool
}

// NewSessionStore はSessionStoreの新しいインスタンスを生成する。
// 初期状態はSessionLoadingで、Restoreの完了によって必ず1回だけ解消される。
func NewSessionStore(api SessionAPI, creds CredentialStore, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		api:    api,
		creds:  creds,
		logger: logger,
		phase:  SessionLoading,
	}
}

// Restore は保存済みトークンの検証によるセッション復元を試みる。
// トークンが存在しない、検証が拒否された、またはネットワークエラーの場合は
// 保存済みトークンを破棄してセッションを空にする（拒否とエラーは区別しない）。
// 結果にかかわらずSessionLoadingは必ず解消される。
func (s *SessionStore) Restore(ctx context.Context) {
	state, err := s.creds.Load()
	if err != nil {
		s.logger.Error("保存済みセッションの読み込みに失敗しました", slog.String("error", err.Error()))
		s.becomeEmpty(false)
		return
	}

	if state.Token == "" {
		s.becomeEmpty(false)
		return
	}

	user, err := s.api.ValidateSession(ctx, state.Token)
	if err != nil {
		s.logger.Info("保存済みセッションは無効でした", slog.String("error", err.Error()))
		s.becomeEmpty(true)
		return
	}

	s.mu.Lock()
	s.phase = SessionPopulated
	s.user = user
	s.token = state.Token
	s.onboardingAcked = state.OnboardingAcknowledged
	s.mu.Unlock()
}

// Login は認証情報をトークンと交換し、セッションを確立する。
// トークンの永続化に成功してからメモリ上の状態を更新するため、
// 失敗時にセッションが部分的に確立されることはない。
func (s *SessionStore) Login(ctx context.Context, email, password string) error {
	token, user, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	if err := s.creds.Save(&PersistedState{Token: token}); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	s.mu.Lock()
	s.phase = SessionPopulated
	s.user = user
	s.token = token
	s.onboardingAcked = false
	s.mu.Unlock()

	return nil
}

// Logout はセッションを破棄する。冪等であり、失敗しない。
// サーバー側のセッション破棄はベストエフォートで行い、
// 結果にかかわらずローカルのトークンとフラグは必ず消去する。
func (s *SessionStore) Logout(ctx context.Context) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token != "" {
		if err := s.api.Logout(ctx, token); err != nil {
			s.logger.Warn("サーバー側セッションの破棄に失敗しました", slog.String("error", err.Error()))
		}
	}

	s.becomeEmpty(true)
}

// becomeEmpty はセッションを空状態に遷移させる。
// clearStoredがtrueの場合は永続化されたトークンも破棄する。
func (s *SessionStore) becomeEmpty(clearStored bool) {
	if clearStored {
		if err := s.creds.Clear(); err != nil {
			s.logger.Warn("保存済みトークンの破棄に失敗しました", slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	s.phase = SessionEmpty
	s.user = nil
	s.token = ""
	s.onboardingAcked = false
	s.mu.Unlock()
}

// Phase は現在のセッション状態を返す。
func (s *SessionStore) Phase() SessionPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// User はログイン中のユーザーを返す。セッションが空の場合はnil。
func (s *SessionStore) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Token は現在のBearerトークンを返す。セッションが空の場合は空文字列。
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// AcknowledgeOnboarding はオンボーディング表示の確認を記録する。
// フラグは現在のセッションに紐付き、ログアウトで消去される。
func (s *SessionStore) AcknowledgeOnboarding() {
	s.mu.Lock()
	s.onboardingAcked = true
	token := s.token
	s.mu.Unlock()

	if token == "" {
		return
	}
	if err := s.creds.Save(&PersistedState{Token: token, OnboardingAcknowledged: true}); err != nil {
		s.logger.Warn("オンボーディングフラグの保存に失敗しました", slog.String("error", err.Error()))
	}
}

// OnboardingAcknowledged は現在のセッションでオンボーディングが確認済みかを返す。
func (s *SessionStore) OnboardingAcknowledged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onboardingAcked
}
