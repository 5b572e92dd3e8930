// Package evaluation は評価ワークフローのビジネスロジックを提供する。
// 次症例の払い出し、進捗集計、評価の提出（exactly-once保証）を含む。
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/evalman/internal/model"
	"github.com/hitoshi/evalman/internal/repository"
	"github.com/hitoshi/evalman/internal/security"
)

// SubmitInput は評価提出のリクエスト内容。
type SubmitInput struct {
	CaseID          string
	Q1Acceptability int
	Q2Confidence    int
	Comments        string
	DurationMs      int64
}

// Recorder は評価イベントのメトリクス記録インターフェース。
// metricsパッケージのCollectorが実装する。
type Recorder interface {
	RecordSubmission()
	RecordDuplicateRejected()
}

// nopRecorder はメトリクス未設定時に使用する何もしない実装。
type nopRecorder struct{}

func (nopRecorder) RecordSubmission()        {}
func (nopRecorder) RecordDuplicateRejected() {}

// Service は評価ワークフローに関するビジネスロジックを提供する。
type Service struct {
	caseRepo  repository.CaseRepository
	evalRepo  repository.EvaluationRepository
	sanitizer security.CommentSanitizerService
	recorder  Recorder
}

// NewService はServiceを生成する。
// recorderがnilの場合はメトリクスを記録しない。
func NewService(
	caseRepo repository.CaseRepository,
	evalRepo repository.EvaluationRepository,
	sanitizer security.CommentSanitizerService,
	recorder Recorder,
) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		caseRepo:  caseRepo,
		evalRepo:  evalRepo,
		sanitizer: sanitizer,
		recorder:  recorder,
	}
}

// NextCase は指定ユーザーが未評価の症例を1件返す。
// 全症例が評価済みの場合は(nil, nil)を返す（キュー枯渇）。
// 同一評価者に同一症例が二度提供されないことはリポジトリのクエリが保証する。
func (s *Service) NextCase(ctx context.Context, userID string) (*model.Case, error) {
	c, err := s.caseRepo.FindNextForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find next case: %w", err)
	}
	return c, nil
}

// Progress は指定ユーザーの進捗スナップショットを返す。
// completedは提出済み評価数、totalは登録済み症例の総数。
func (s *Service) Progress(ctx context.Context, userID string) (*model.Progress, error) {
	completed, err := s.evalRepo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed evaluations: %w", err)
	}

	total, err := s.caseRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count cases: %w", err)
	}

	return &model.Progress{Completed: completed, Total: total}, nil
}

// Submit は評価を検証・サニタイズして保存する。
// 検証順序: 値域チェック → 症例の存在チェック → 保存。
// 同一(ユーザー, 症例)への二重提出は一意制約で拒否され、
// AlreadyEvaluatedエラーとして呼び出し元に返る。
func (s *Service) Submit(ctx context.Context, userID string, input SubmitInput) (*model.Evaluation, error) {
	if !model.ValidScores(input.Q1Acceptability, input.Q2Confidence) {
		return nil, model.NewInvalidScoreError(
			fmt.Sprintf("q1=%d q2=%d", input.Q1Acceptability, input.Q2Confidence))
	}
	if input.DurationMs < 0 {
		return nil, model.NewInvalidScoreError(fmt.Sprintf("duration_ms=%d", input.DurationMs))
	}

	c, err := s.caseRepo.FindByID(ctx, input.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to find case: %w", err)
	}
	if c == nil {
		return nil, model.NewCaseNotFoundError(input.CaseID)
	}

	eval := &model.Evaluation{
		ID:              uuid.New().String(),
		UserID:          userID,
		CaseID:          input.CaseID,
		Q1Acceptability: input.Q1Acceptability,
		Q2Confidence:    input.Q2Confidence,
		Comments:        s.sanitizer.Sanitize(input.Comments),
		DurationMs:      input.DurationMs,
		SubmittedAt:     time.Now(),
	}

	if err := s.evalRepo.Create(ctx, eval); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvaluation) {
			s.recorder.RecordDuplicateRejected()
			slog.Warn("duplicate evaluation rejected",
				slog.String("user_id", userID),
				slog.String("case_id", input.CaseID),
			)
			return nil, model.NewAlreadyEvaluatedError(input.CaseID)
		}
		return nil, fmt.Errorf("failed to save evaluation: %w", err)
	}

	s.recorder.RecordSubmission()
	slog.Info("evaluation submitted",
		slog.String("user_id", userID),
		slog.String("case_id", input.CaseID),
		slog.Int("q1", input.Q1Acceptability),
		slog.Int("q2", input.Q2Confidence),
		slog.Int64("duration_ms", input.DurationMs),
	)

	return eval, nil
}
