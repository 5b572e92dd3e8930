package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/evalman/internal/model"
)

// PostgresCaseRepo はPostgreSQLを使用した症例リポジトリ。
type PostgresCaseRepo struct {
	db *sql.DB
}

// NewPostgresCaseRepo はPostgresCaseRepoを生成する。
func NewPostgresCaseRepo(db *sql.DB) *PostgresCaseRepo {
	return &PostgresCaseRepo{db: db}
}

// scanCase は1行からCaseを読み取る。metadataはJSONBからデコードする。
func scanCase(scan func(dest ...any) error) (*model.Case, error) {
	c := &model.Case{}
	var metadata []byte
	err := scan(&c.ID, &c.ImagePath, &c.OverlayPath, &metadata, &c.AssetStatus, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode case metadata: %w", err)
		}
	}
	return c, nil
}

// FindByID は指定IDの症例を取得する。見つからない場合はnilを返す。
func (r *PostgresCaseRepo) FindByID(ctx context.Context, id string) (*model.Case, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, image_path, overlay_path, metadata, asset_status, created_at
		 FROM cases WHERE id = $1`,
		id,
	)
	c, err := scanCase(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find case by ID: %w", err)
	}
	return c, nil
}

// Create は症例を作成する。
func (r *PostgresCaseRepo) Create(ctx context.Context, c *model.Case) error {
	var metadata []byte
	if c.Metadata != nil {
		var err error
		metadata, err = json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode case metadata: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cases (id, image_path, overlay_path, metadata, asset_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ImagePath, c.OverlayPath, metadata, c.AssetStatus, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

// Count は登録済み症例の総数を返す。
func (r *PostgresCaseRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM cases`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cases: %w", err)
	}
	return count, nil
}

// FindNextForUser は指定ユーザーが未評価の症例をランダムに1件返す。
// 全症例が評価済みの場合はnilを返す。
// evaluationsテーブルとのNOT EXISTSで同一症例の再提供を防ぐ。
func (r *PostgresCaseRepo) FindNextForUser(ctx context.Context, userID string) (*model.Case, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT c.id, c.image_path, c.overlay_path, c.metadata, c.asset_status, c.created_at
		 FROM cases c
		 WHERE NOT EXISTS (
		     SELECT 1 FROM evaluations e
		     WHERE e.case_id = c.id AND e.user_id = $1
		 )
		 ORDER BY random()
		 LIMIT 1`,
		userID,
	)
	c, err := scanCase(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find next case: %w", err)
	}
	return c, nil
}

// ListUnverified は検証が必要な症例を取得する。
// verified_atがNULL（未検証）を優先し、次にverified_atが古い順に返す。
func (r *PostgresCaseRepo) ListUnverified(ctx context.Context, limit int) ([]*model.Case, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, image_path, overlay_path, metadata, asset_status, created_at
		 FROM cases
		 ORDER BY verified_at ASC NULLS FIRST
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unverified cases: %w", err)
	}
	defer rows.Close()

	var cases []*model.Case
	for rows.Next() {
		c, err := scanCase(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cases: %w", err)
	}

	return cases, nil
}

// UpdateAssetStatus は症例のアセット検証状態と検証日時を更新する。
func (r *PostgresCaseRepo) UpdateAssetStatus(ctx context.Context, caseID string, status model.AssetStatus, verifiedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE cases SET asset_status = $1, verified_at = $2 WHERE id = $3`,
		status, verifiedAt, caseID,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset status: %w", err)
	}
	return nil
}
