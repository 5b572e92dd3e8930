// Package admin は管理者向けのビジネスロジックを提供する。
// 評価者アカウントの管理、プラットフォーム統計、症例登録、CSVエクスポートを含む。
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/evalman/internal/auth"
	"github.com/hitoshi/evalman/internal/model"
	"github.com/hitoshi/evalman/internal/repository"
	"github.com/hitoshi/evalman/internal/security"
)

// CreateEvaluatorInput は評価者アカウント作成のリクエスト内容。
type CreateEvaluatorInput struct {
	Email    string
	Name     string
	Password string
}

// UpdateEvaluatorInput は評価者アカウント更新のリクエスト内容。
// 空フィールドは変更しない部分更新。
type UpdateEvaluatorInput struct {
	Email string
	Name  string
}

// CreateCaseInput は症例登録のリクエスト内容。
type CreateCaseInput struct {
	ImagePath   string
	OverlayPath string
	Metadata    map[string]any
}

// Service は管理者操作に関するビジネスロジックを提供する。
type Service struct {
	userRepo   repository.UserRepository
	caseRepo   repository.CaseRepository
	evalRepo   repository.EvaluationRepository
	assetGuard security.AssetGuardService
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	caseRepo repository.CaseRepository,
	evalRepo repository.EvaluationRepository,
	assetGuard security.AssetGuardService,
) *Service {
	return &Service{
		userRepo:   userRepo,
		caseRepo:   caseRepo,
		evalRepo:   evalRepo,
		assetGuard: assetGuard,
	}
}

// Stats はプラットフォーム全体の統計を返す。
// Pending = 症例数 × 評価者数 - 提出済み評価数（下限0）。
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	totalCases, err := s.caseRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count cases: %w", err)
	}

	totalEvaluators, err := s.userRepo.CountByRole(ctx, model.RoleEvaluator)
	if err != nil {
		return nil, fmt.Errorf("failed to count evaluators: %w", err)
	}

	completed, err := s.evalRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count evaluations: %w", err)
	}

	pending := totalCases*totalEvaluators - completed
	if pending < 0 {
		pending = 0
	}

	return &model.Stats{
		TotalCases:           totalCases,
		TotalEvaluators:      totalEvaluators,
		CompletedEvaluations: completed,
		PendingEvaluations:   pending,
	}, nil
}

// ListEvaluators は全評価者を進捗付きで返す。
func (s *Service) ListEvaluators(ctx context.Context) ([]model.EvaluatorProgress, error) {
	evaluators, err := s.userRepo.ListByRole(ctx, model.RoleEvaluator)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluators: %w", err)
	}

	totalCases, err := s.caseRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count cases: %w", err)
	}

	result := make([]model.EvaluatorProgress, 0, len(evaluators))
	for _, evaluator := range evaluators {
		completed, err := s.evalRepo.CountByUserID(ctx, evaluator.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count evaluations for %s: %w", evaluator.ID, err)
		}
		result = append(result, model.EvaluatorProgress{
			ID:        evaluator.ID,
			Email:     evaluator.Email,
			Name:      evaluator.Name,
			Role:      evaluator.Role,
			Completed: completed,
			Total:     totalCases,
		})
	}

	return result, nil
}

// CreateEvaluator は評価者アカウントを作成する。
// メールアドレスが既に登録済みの場合はDuplicateEmailエラーを返す。
func (s *Service) CreateEvaluator(ctx context.Context, input CreateEvaluatorInput) (*model.EvaluatorProgress, error) {
	existing, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email uniqueness: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError(input.Email)
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        input.Email,
		Name:         input.Name,
		Role:         model.RoleEvaluator,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create evaluator: %w", err)
	}

	totalCases, err := s.caseRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count cases: %w", err)
	}

	slog.Info("evaluator created",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return &model.EvaluatorProgress{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		Completed: 0,
		Total:     totalCases,
	}, nil
}

// UpdateEvaluator は評価者アカウントの情報を更新する。
// 管理者アカウントは対象外。メールアドレス変更時は一意性を検証する。
func (s *Service) UpdateEvaluator(ctx context.Context, userID string, input UpdateEvaluatorInput) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if user.Role == model.RoleAdmin {
		return nil, model.NewAdminImmutableError()
	}

	if input.Email != "" && input.Email != user.Email {
		existing, err := s.userRepo.FindByEmail(ctx, input.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to check email uniqueness: %w", err)
		}
		if existing != nil {
			return nil, model.NewDuplicateEmailError(input.Email)
		}
		user.Email = input.Email
	}
	if input.Name != "" {
		user.Name = input.Name
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update evaluator: %w", err)
	}

	slog.Info("evaluator updated", slog.String("user_id", user.ID))
	return user, nil
}

// DeleteEvaluator は評価者アカウントと提出済み評価を削除する。
// 管理者アカウントは削除できない。
func (s *Service) DeleteEvaluator(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	if user.Role == model.RoleAdmin {
		return model.NewAdminImmutableError()
	}

	// evaluations・sessionsはON DELETE CASCADEで削除される
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete evaluator: %w", err)
	}

	slog.Info("evaluator deleted", slog.String("user_id", userID))
	return nil
}

// CreateCase は症例を登録する。
// アセットパスが絶対URLの場合はSSRF検証を行う。相対パスは検証対象外。
func (s *Service) CreateCase(ctx context.Context, input CreateCaseInput) (*model.Case, error) {
	for _, path := range []string{input.ImagePath, input.OverlayPath} {
		if path == "" {
			return nil, fmt.Errorf("asset path is required")
		}
		if isAbsoluteURL(path) {
			if err := s.assetGuard.ValidateURL(path); err != nil {
				return nil, fmt.Errorf("unsafe asset URL %q: %w", path, err)
			}
		}
	}

	c := &model.Case{
		ID:          uuid.New().String(),
		ImagePath:   input.ImagePath,
		OverlayPath: input.OverlayPath,
		Metadata:    input.Metadata,
		AssetStatus: model.AssetStatusUnverified,
		CreatedAt:   time.Now(),
	}

	if err := s.caseRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	slog.Info("case created", slog.String("case_id", c.ID))
	return c, nil
}

// isAbsoluteURL はパスがスキーム付きの絶対URLかどうかを返す。
func isAbsoluteURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
