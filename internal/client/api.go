// Package client は評価ワークフローのクライアント側コアを提供する。
// セッションの保持と復元、役割に基づくアクセス判定、
// 症例を1件ずつ進める逐次評価ループ（取得→判定入力→提出→前進）を含む。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/evalman/internal/model"
)

// defaultRequestTimeout はAPIリクエストのデフォルトタイムアウト。
const defaultRequestTimeout = 15 * time.Second

var (
	// ErrInvalidCredentials は認証失敗を表す。
	// パスワード誤りとアカウント不存在は区別しない。
	ErrInvalidCredentials = errors.New("メールアドレスまたはパスワードが正しくありません")

	// ErrUnauthorized はセッションの無効・期限切れを表す。
	ErrUnauthorized = errors.New("セッションが無効です")

	// ErrAlreadyEvaluated は同一症例への二重提出の拒否を表す。
	ErrAlreadyEvaluated = errors.New("この症例は既に評価済みです")
)

// User はログイン中のユーザーの身元情報。
type User struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Role  model.Role `json:"role"`
}

// Case は評価対象の1単位。サーバーから発行された後は不変で、
// クライアントは表示と判定のID参照にのみ使用する。
type Case struct {
	ID          string         `json:"id"`
	ImagePath   string         `json:"image_path"`
	OverlayPath string         `json:"overlay_path"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Judgment は1症例に対する評価入力。
// Commentsが空文字列の場合は「コメントなし」として送信される。
type Judgment struct {
	CaseID    string
	Q1        int
	Q2        int
	Comments  string
	ElapsedMs int64
}

// APIClient は評価サーバーAPIのクライアント。
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAPIClient はAPIClientの新しいインスタンスを生成する。
// httpClientがnilの場合はデフォルトタイムアウト付きのクライアントを使用する。
func NewAPIClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Login はメールアドレスとパスワードをBearerトークンと交換する。
// 認証失敗時はErrInvalidCredentialsを返す。
func (c *APIClient) Login(ctx context.Context, email, password string) (string, *User, error) {
	reqBody := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var result struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}

	resp, err := c.do(ctx, http.MethodPost, "/auth/login", "", reqBody)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", nil, ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, c.statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	return result.Token, &result.User, nil
}

// ValidateSession は保存済みトークンの有効性を検証し、ユーザー情報を返す。
// トークンが無効・期限切れの場合はErrUnauthorizedを返す。
func (c *APIClient) ValidateSession(ctx context.Context, token string) (*User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/me", token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}

	return &user, nil
}

// Logout はサーバー側のセッションを破棄する。
// トークンが既に無効でもエラーにはしない（ローカル状態の破棄が主目的のため）。
func (c *APIClient) Logout(ctx context.Context, token string) error {
	resp, err := c.do(ctx, http.MethodPost, "/auth/logout", token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}
	return nil
}

// NextCase は次の未評価症例を取得する。
// 割り当てが残っていない場合は(nil, nil)を返す。
func (c *APIClient) NextCase(ctx context.Context, token string) (*Case, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/evaluations/next-case", token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusOK:
		// fall through to decode
	default:
		return nil, c.statusError(resp)
	}

	var result Case
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode case response: %w", err)
	}
	return &result, nil
}

// Progress は現在の評価進捗スナップショットを取得する。
func (c *APIClient) Progress(ctx context.Context, token string) (*model.Progress, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/evaluations/progress", token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var progress model.Progress
	if err := json.NewDecoder(resp.Body).Decode(&progress); err != nil {
		return nil, fmt.Errorf("failed to decode progress response: %w", err)
	}
	return &progress, nil
}

// SubmitEvaluation は判定を提出する。
// 空文字列のコメントは「コメントなし」として送信する。
// 同一症例への二重提出はErrAlreadyEvaluatedを返す。
func (c *APIClient) SubmitEvaluation(ctx context.Context, token string, judgment Judgment) error {
	reqBody := struct {
		CaseID          string  `json:"case_id"`
		Q1Acceptability int     `json:"q1_acceptability"`
		Q2Confidence    int     `json:"q2_confidence"`
		Comments        *string `json:"comments,omitempty"`
		DurationMs      int64   `json:"duration_ms"`
	}{
		CaseID:          judgment.CaseID,
		Q1Acceptability: judgment.Q1,
		Q2Confidence:    judgment.Q2,
		DurationMs:      judgment.ElapsedMs,
	}
	if judgment.Comments != "" {
		reqBody.Comments = &judgment.Comments
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/evaluations", token, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusConflict:
		return ErrAlreadyEvaluated
	default:
		return c.statusError(resp)
	}
}

// Evaluator は管理者向けの評価者一覧の1行。進捗を含む。
type Evaluator struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// AdminEvaluators は全評価者を進捗付きで取得する。管理者のみ呼び出せる。
func (c *APIClient) AdminEvaluators(ctx context.Context, token string) ([]Evaluator, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/admin/evaluators", token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var evaluators []Evaluator
	if err := json.NewDecoder(resp.Body).Decode(&evaluators); err != nil {
		return nil, fmt.Errorf("failed to decode evaluators response: %w", err)
	}
	return evaluators, nil
}

// AdminStats はプラットフォーム全体の統計を取得する。管理者のみ呼び出せる。
func (c *APIClient) AdminStats(ctx context.Context, token string) (*model.Stats, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/admin/stats", token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var stats model.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats response: %w", err)
	}
	return &stats, nil
}

// do はリクエストの組み立てと実行を行う。
// tokenが空でない場合はAuthorizationヘッダに付与する。
func (c *APIClient) do(ctx context.Context, method, path, token string, reqBody any) (*http.Response, error) {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("APIリクエストの実行に失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// statusError はエラーレスポンスのボディを統一フォーマットとして解釈し、
// メッセージ付きのエラーを組み立てる。
func (c *APIClient) statusError(resp *http.Response) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && json.Unmarshal(data, &body) == nil && body.Code != "" {
		return fmt.Errorf("api error %s (status %d): %s", body.Code, resp.StatusCode, body.Message)
	}
	return fmt.Errorf("api returned status %d", resp.StatusCode)
}
