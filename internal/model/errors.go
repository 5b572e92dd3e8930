// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, evaluation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeCaseNotFound       = "CASE_NOT_FOUND"
	ErrCodeAlreadyEvaluated   = "ALREADY_EVALUATED"
	ErrCodeInvalidScore       = "INVALID_SCORE"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeAdminImmutable     = "ADMIN_IMMUTABLE"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// 「パスワード誤り」と「アカウント不明」を区別しない。情報漏洩防止のため
// どちらの場合も同一のメッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewSessionExpiredError はセッション無効エラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションが無効または期限切れです。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "適切な権限を持つアカウントでログインしてください。",
	}
}

// NewCaseNotFoundError は症例未検出エラーを生成する。
func NewCaseNotFoundError(caseID string) *APIError {
	return &APIError{
		Code:     ErrCodeCaseNotFound,
		Message:  fmt.Sprintf("指定された症例が見つかりません: %s", caseID),
		Category: "evaluation",
		Action:   "症例IDを確認してください。",
	}
}

// NewAlreadyEvaluatedError は二重提出エラーを生成する。
// 同一評価者が同一症例に対して評価を提出できるのは1回のみ。
func NewAlreadyEvaluatedError(caseID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyEvaluated,
		Message:  fmt.Sprintf("この症例は既に評価済みです: %s", caseID),
		Category: "evaluation",
		Action:   "次の症例に進んでください。",
	}
}

// NewInvalidScoreError は評価値の範囲外エラーを生成する。
func NewInvalidScoreError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidScore,
		Message:  fmt.Sprintf("評価値が不正です: %s", reason),
		Category: "validation",
		Action:   "Q1は1〜4、Q2は1〜5の範囲で指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewAdminImmutableError は管理者アカウントへの変更操作エラーを生成する。
func NewAdminImmutableError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminImmutable,
		Message:  "管理者アカウントはこの操作の対象にできません。",
		Category: "validation",
		Action:   "評価者アカウントのみ編集・削除できます。",
	}
}
