package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/evalman/internal/model"
	"github.com/hitoshi/evalman/internal/repository"
)

// CaseVerifierService はアセット検証の実行インターフェース。
type CaseVerifierService interface {
	// Verify は指定症例のアセットを検証し、結果に応じて症例状態を更新する。
	Verify(ctx context.Context, c *model.Case) error
}

// batchLimit は1サイクルで検証対象にする症例数の上限。
const batchLimit = 100

// Scheduler はアセット検証のスケジューリングと並列制御を行う。
// 定期ティッカーで検証対象症例を取得し、
// semaphoreパターンで最大並列数を制御しながら検証を実行する。
type Scheduler struct {
	caseRepo       repository.CaseRepository
	verifier       CaseVerifierService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	caseRepo repository.CaseRepository,
	verifier CaseVerifierService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		caseRepo:       caseRepo,
		verifier:       verifier,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("アセット検証スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("検証サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("アセット検証スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("検証サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は検証対象症例を1回取得し、並列で検証を実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	cases, err := s.caseRepo.ListUnverified(ctx, batchLimit)
	if err != nil {
		return err
	}

	if len(cases) == 0 {
		s.logger.Info("検証対象の症例はありません")
		return nil
	}

	s.logger.Info("検証サイクルを開始します",
		slog.Int("case_count", len(cases)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, c := range cases {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(c *model.Case) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.verifier.Verify(ctx, c); err != nil {
				s.logger.Error("症例アセットの検証に失敗しました",
					slog.String("case_id", c.ID),
					slog.String("error", err.Error()),
				)
			}
		}(c)
	}

	wg.Wait()

	s.logger.Info("検証サイクルが完了しました",
		slog.Int("case_count", len(cases)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
