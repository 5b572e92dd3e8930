// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/evalman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザーのメールアドレスと表示名を更新する。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、evaluationsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// ListByRole は指定役割のユーザー一覧をメールアドレス昇順で返す。
	ListByRole(ctx context.Context, role model.Role) ([]*model.User, error)

	// CountByRole は指定役割のユーザー数を返す。
	CountByRole(ctx context.Context, role model.Role) (int, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// CaseRepository は症例データの永続化インターフェース。
type CaseRepository interface {
	// FindByID は指定IDの症例を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Case, error)

	// Create は症例を作成する。
	Create(ctx context.Context, c *model.Case) error

	// Count は登録済み症例の総数を返す。
	Count(ctx context.Context) (int, error)

	// FindNextForUser は指定ユーザーが未評価の症例をランダムに1件返す。
	// 全症例が評価済みの場合はnilを返す。
	// 同一評価者に同一症例が二度提供されないことを保証する。
	FindNextForUser(ctx context.Context, userID string) (*model.Case, error)

	// ListUnverified は検証が必要な症例を取得する。
	// verified_atがNULL（未検証）を優先し、次にverified_atが古い順に返す。
	ListUnverified(ctx context.Context, limit int) ([]*model.Case, error)

	// UpdateAssetStatus は症例のアセット検証状態と検証日時を更新する。
	UpdateAssetStatus(ctx context.Context, caseID string, status model.AssetStatus, verifiedAt time.Time) error
}

// EvaluationRepository は評価データの永続化インターフェース。
type EvaluationRepository interface {
	// Create は評価を作成する。
	// 同一(user_id, case_id)の評価が既に存在する場合はErrDuplicateEvaluationを返す。
	Create(ctx context.Context, eval *model.Evaluation) error

	// CountByUserID は指定ユーザーの提出済み評価数を返す。
	CountByUserID(ctx context.Context, userID string) (int, error)

	// Count は全評価数を返す。
	Count(ctx context.Context) (int, error)

	// ExistsByUserAndCase は指定ユーザーが指定症例を評価済みかどうかを返す。
	ExistsByUserAndCase(ctx context.Context, userID, caseID string) (bool, error)

	// ListAll は全評価をユーザー・症例情報と結合して提出日時昇順で返す。
	// CSVエクスポート用。
	ListAll(ctx context.Context) ([]EvaluationExportRow, error)

	// DeleteByUserID は指定ユーザーの全評価を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// EvaluationExportRow はCSVエクスポート用に評価・ユーザー・症例を結合した行。
type EvaluationExportRow struct {
	model.Evaluation
	UserEmail    string
	UserName     string
	CaseMetadata map[string]any
}
