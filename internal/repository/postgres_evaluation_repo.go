package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/evalman/internal/model"
)

// ErrDuplicateEvaluation は同一(user, case)の評価が既に存在することを表す。
// 一意制約違反をドメインエラーとして呼び出し元に通知する。
var ErrDuplicateEvaluation = errors.New("evaluation already exists for this user and case")

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATEコード。
const uniqueViolation = "23505"

// PostgresEvaluationRepo はPostgreSQLを使用した評価リポジトリ。
type PostgresEvaluationRepo struct {
	db *sql.DB
}

// NewPostgresEvaluationRepo はPostgresEvaluationRepoを生成する。
func NewPostgresEvaluationRepo(db *sql.DB) *PostgresEvaluationRepo {
	return &PostgresEvaluationRepo{db: db}
}

// Create は評価を作成する。
// 同一(user_id, case_id)の評価が既に存在する場合はErrDuplicateEvaluationを返す。
// 一意制約uq_evaluations_user_caseがexactly-onceを保証する。
func (r *PostgresEvaluationRepo) Create(ctx context.Context, eval *model.Evaluation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, user_id, case_id, q1_acceptability, q2_confidence, comments, duration_ms, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		eval.ID, eval.UserID, eval.CaseID, eval.Q1Acceptability, eval.Q2Confidence,
		eval.Comments, eval.DurationMs, eval.SubmittedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateEvaluation
		}
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return nil
}

// CountByUserID は指定ユーザーの提出済み評価数を返す。
func (r *PostgresEvaluationRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM evaluations WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count evaluations by user: %w", err)
	}
	return count, nil
}

// Count は全評価数を返す。
func (r *PostgresEvaluationRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM evaluations`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count evaluations: %w", err)
	}
	return count, nil
}

// ExistsByUserAndCase は指定ユーザーが指定症例を評価済みかどうかを返す。
func (r *PostgresEvaluationRepo) ExistsByUserAndCase(ctx context.Context, userID, caseID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM evaluations WHERE user_id = $1 AND case_id = $2)`,
		userID, caseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check evaluation existence: %w", err)
	}
	return exists, nil
}

// ListAll は全評価をユーザー・症例情報と結合して提出日時昇順で返す。
// CSVエクスポート用。
func (r *PostgresEvaluationRepo) ListAll(ctx context.Context) ([]EvaluationExportRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.user_id, e.case_id, e.q1_acceptability, e.q2_confidence,
		        e.comments, e.duration_ms, e.submitted_at,
		        u.email, u.name, c.metadata
		 FROM evaluations e
		 JOIN users u ON u.id = e.user_id
		 JOIN cases c ON c.id = e.case_id
		 ORDER BY e.submitted_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var result []EvaluationExportRow
	for rows.Next() {
		var row EvaluationExportRow
		var metadata []byte
		err := rows.Scan(
			&row.ID, &row.UserID, &row.CaseID, &row.Q1Acceptability, &row.Q2Confidence,
			&row.Comments, &row.DurationMs, &row.SubmittedAt,
			&row.UserEmail, &row.UserName, &metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &row.CaseMetadata); err != nil {
				return nil, fmt.Errorf("failed to decode case metadata: %w", err)
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate evaluations: %w", err)
	}

	return result, nil
}

// DeleteByUserID は指定ユーザーの全評価を削除する。
func (r *PostgresEvaluationRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM evaluations WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete evaluations by user: %w", err)
	}
	return nil
}
