package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/hitoshi/evalman/internal/model"
)

type stubSessionAPI struct {
	loginFn    func(ctx context.Context, email, password string) (string, *User, error)
	validateFn func(ctx context.Context, token string) (*User, error)
	logoutFn   func(ctx context.Context, token string) error
}

func (s *stubSessionAPI) Login(ctx context.Context, email, password string) (string, *User, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubSessionAPI) ValidateSession(ctx context.Context, token string) (*User, error) {
	return s.validateFn(ctx, token)
}

func (s *stubSessionAPI) Logout(ctx context.Context, token string) error {
	if s.logoutFn != nil {
		return s.logoutFn(ctx, token)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tempCredentialStore(t *testing.T) *FileCredentialStore {
	t.Helper()
	return NewFileCredentialStore(filepath.Join(t.TempDir(), "session.yaml"))
}

func TestSessionStore_StartsInLoading(t *testing.T) {
	store := NewSessionStore(&stubSessionAPI{}, tempCredentialStore(t), testLogger())
	if got := store.Phase(); got != SessionLoading {
		t.Errorf("initial phase = %v, want %v", got, SessionLoading)
	}
}

func TestSessionStore_RestoreWithoutStoredToken_BecomesEmpty(t *testing.T) {
	api := &stubSessionAPI{
		validateFn: func(ctx context.Context, token string) (*User, error) {
			t.Error("ValidateSession should not be called without a stored token")
			return nil, nil
		},
	}
	store := NewSessionStore(api, tempCredentialStore(t), testLogger())

	store.Restore(context.Background())

	if got := store.Phase(); got != SessionEmpty {
		t.Errorf("phase = %v, want %v", got, SessionEmpty)
	}
	if store.User() != nil {
		t.Error("expected nil user")
	}
}

func TestSessionStore_RestoreWithValidToken_BecomesPopulated(t *testing.T) {
	creds := tempCredentialStore(t)
	if err := creds.Save(&PersistedState{Token: "stored-token", OnboardingAcknowledged: true}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	api := &stubSessionAPI{
		validateFn: func(ctx context.Context, token string) (*User, error) {
			if token != "stored-token" {
				t.Errorf("validated token = %q, want stored-token", token)
			}
			return &User{ID: "u1", Email: "doc@example.com", Role: model.RoleEvaluator}, nil
		},
	}
	store := NewSessionStore(api, creds, testLogger())

	store.Restore(context.Background())

	if got := store.Phase(); got != SessionPopulated {
		t.Fatalf("phase = %v, want %v", got, SessionPopulated)
	}
	if store.User().Email != "doc@example.com" {
		t.Errorf("user email = %q, want doc@example.com", store.User().Email)
	}
	if store.Token() != "stored-token" {
		t.Errorf("token = %q, want stored-token", store.Token())
	}
	if !store.OnboardingAcknowledged() {
		t.Error("onboarding flag should be restored from persisted state")
	}
}

// 保存済みトークンが拒否された場合、セッションは空になり、
// トークンは破棄され、読み込み中状態は解消される。
func TestSessionStore_RestoreWithRejectedToken_ClearsStoredCredential(t *testing.T) {
	creds := tempCredentialStore(t)
	if err := creds.Save(&PersistedState{Token: "expired-token"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	api := &stubSessionAPI{
		validateFn: func(ctx context.Context, token string) (*User, error) {
			return nil, ErrUnauthorized
		},
	}
	store := NewSessionStore(api, creds, testLogger())

	store.Restore(context.Background())

	if got := store.Phase(); got != SessionEmpty {
		t.Errorf("phase = %v, want %v", got, SessionEmpty)
	}
	if store.User() != nil {
		t.Error("expected nil user after rejected restore")
	}

	state, err := creds.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state.Token != "" {
		t.Errorf("stored token should be cleared, got %q", state.Token)
	}
}

// ネットワークエラーは拒否と同じに扱う。
func TestSessionStore_RestoreWithNetworkError_BecomesEmpty(t *testing.T) {
	creds := tempCredentialStore(t)
	if err := creds.Save(&PersistedState{Token: "some-token"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	api := &stubSessionAPI{
		validateFn: func(ctx context.Context, token string) (*User, error) {
			return nil, errors.New("connection refused")
		},
	}
	store := NewSessionStore(api, creds, testLogger())

	store.Restore(context.Background())

	if got := store.Phase(); got != SessionEmpty {
		t.Errorf("phase = %v, want %v", got, SessionEmpty)
	}
}

func TestSessionStore_LoginSuccess_PersistsTokenAndPopulates(t *testing.T) {
	creds := tempCredentialStore(t)
	api := &stubSessionAPI{
		loginFn: func(ctx context.Context, email, password string) (string, *User, error) {
			return "fresh-token", &User{ID: "u1", Email: email, Role: model.RoleEvaluator}, nil
		},
	}
	store := NewSessionStore(api, creds, testLogger())

	if err := store.Login(context.Background(), "doc@example.com", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if got := store.Phase(); got != SessionPopulated {
		t.Fatalf("phase = %v, want %v", got, SessionPopulated)
	}
	if store.User().Role != model.RoleEvaluator {
		t.Errorf("role = %q, want evaluator", store.User().Role)
	}

	// ログイン済み評価者が管理画面を要求した場合は評価者ホームへ誘導される
	decision := Decide(store.Phase(), store.User().Role, model.RoleAdmin)
	if decision.Kind != DecisionRedirect || decision.Target != RouteEvaluatorHome {
		t.Errorf("gate decision = %+v, want redirect to evaluator home", decision)
	}

	state, err := creds.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state.Token != "fresh-token" {
		t.Errorf("persisted token = %q, want fresh-token", state.Token)
	}
}

func TestSessionStore_LoginFailure_LeavesSessionEmpty(t *testing.T) {
	creds := tempCredentialStore(t)
	api := &stubSessionAPI{
		loginFn: func(ctx context.Context, email, password string) (string, *User, error) {
			return "", nil, ErrInvalidCredentials
		},
	}
	store := NewSessionStore(api, creds, testLogger())
	store.Restore(context.Background())

	err := store.Login(context.Background(), "doc@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	if got := store.Phase(); got != SessionEmpty {
		t.Errorf("phase = %v, want %v", got, SessionEmpty)
	}
	state, _ := creds.Load()
	if state.Token != "" {
		t.Errorf("no token should be persisted on failed login, got %q", state.Token)
	}
}

type failingCredentialStore struct{}

func (failingCredentialStore) Load() (*PersistedState, error) { return &PersistedState{}, nil }
func (failingCredentialStore) Save(*PersistedState) error     { return errors.New("disk full") }
func (failingCredentialStore) Clear() error                   { return nil }

// トークンの永続化に失敗した場合、メモリ上のセッションも確立されない。
// 片方だけ成立した中間状態は観測されない。
func TestSessionStore_LoginPersistFailure_DoesNotPopulate(t *testing.T) {
	api := &stubSessionAPI{
		loginFn: func(ctx context.Context, email, password string) (string, *User, error) {
			return "token", &User{ID: "u1", Role: model.RoleEvaluator}, nil
		},
	}
	store := NewSessionStore(api, failingCredentialStore{}, testLogger())
	store.Restore(context.Background())

	if err := store.Login(context.Background(), "doc@example.com", "secret"); err == nil {
		t.Fatal("expected error when credential persistence fails")
	}

	if got := store.Phase(); got != SessionEmpty {
		t.Errorf("phase = %v, want %v", got, SessionEmpty)
	}
	if store.User() != nil || store.Token() != "" {
		t.Error("session must not be partially established")
	}
}

func TestSessionStore_Logout_ClearsEverythingAndIsIdempotent(t *testing.T) {
	creds := tempCredentialStore(t)
	api := &stubSessionAPI{
		loginFn: func(ctx context.Context, email, password string) (string, *User, error) {
			return "token", &User{ID: "u1", Role: model.RoleEvaluator}, nil
		},
	}
	store := NewSessionStore(api, creds, testLogger())

	if err := store.Login(context.Background(), "doc@example.com", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	store.AcknowledgeOnboarding()

	store.Logout(context.Background())

	if got := store.Phase(); got != SessionEmpty {
		t.Errorf("phase = %v, want %v", got, SessionEmpty)
	}
	if store.User() != nil || store.Token() != "" {
		t.Error("user and token must be cleared on logout")
	}
	if store.OnboardingAcknowledged() {
		t.Error("onboarding flag must be cleared on logout")
	}
	state, _ := creds.Load()
	if state.Token != "" || state.OnboardingAcknowledged {
		t.Errorf("persisted state must be cleared on logout, got %+v", state)
	}

	// 2回目のログアウトも同じ空状態のまま
	store.Logout(context.Background())
	if got := store.Phase(); got != SessionEmpty {
		t.Errorf("phase after second logout = %v, want %v", got, SessionEmpty)
	}
}

// サーバー側セッションの破棄に失敗してもローカルのログアウトは完了する。
func TestSessionStore_Logout_SurvivesRemoteFailure(t *testing.T) {
	creds := tempCredentialStore(t)
	api := &stubSessionAPI{
		loginFn: func(ctx context.Context, email, password string) (string, *User, error) {
			return "token", &User{ID: "u1", Role: model.RoleEvaluator}, nil
		},
		logoutFn: func(ctx context.Context, token string) error {
			return errors.New("server unreachable")
		},
	}
	store := NewSessionStore(api, creds, testLogger())
	if err := store.Login(context.Background(), "doc@example.com", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	store.Logout(context.Background())

	if got := store.Phase(); got != SessionEmpty {
		t.Errorf("phase = %v, want %v", got, SessionEmpty)
	}
}

func TestSessionStore_AcknowledgeOnboarding_Persists(t *testing.T) {
	creds := tempCredentialStore(t)
	api := &stubSessionAPI{
		loginFn: func(ctx context.Context, email, password string) (string, *User, error) {
			return "token", &User{ID: "u1", Role: model.RoleEvaluator}, nil
		},
	}
	store := NewSessionStore(api, creds, testLogger())
	if err := store.Login(context.Background(), "doc@example.com", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if store.OnboardingAcknowledged() {
		t.Error("fresh session should not have onboarding acknowledged")
	}

	store.AcknowledgeOnboarding()

	if !store.OnboardingAcknowledged() {
		t.Error("onboarding flag should be set")
	}
	state, _ := creds.Load()
	if !state.OnboardingAcknowledged {
		t.Error("onboarding flag should be persisted")
	}
	if state.Token != "token" {
		t.Errorf("token must survive the flag update, got %q", state.Token)
	}
}
