package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/evalman/internal/model"
)

// WorkflowPhase はワークフローカーソルの状態を表す。
type WorkflowPhase int

const (
	// WorkflowLoading は次の症例の取得が完了していない状態。
	WorkflowLoading WorkflowPhase = iota
	// WorkflowActive は評価対象の症例を1件保持している状態。
	WorkflowActive
	// WorkflowExhausted は割り当てが尽きた終端状態。
	// このカーソルの生存期間中は自動で再試行しない。
	WorkflowExhausted
)

// String はWorkflowPhaseの文字列表現を返す。
func (p WorkflowPhase) String() string {
	switch p {
	case WorkflowLoading:
		return "loading"
	case WorkflowActive:
		return "active"
	case WorkflowExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// WorkflowAPI はWorkflowCursorが必要とするリモート操作。
type WorkflowAPI interface {
	NextCase(ctx context.Context, token string) (*Case, error)
	Progress(ctx context.Context, token string) (*model.Progress, error)
}

// TokenSource は認証済みリクエストに使用するトークンの供給元。
// SessionStoreが実装する。トークンは呼び出しの直前に読み取ることで、
// ログアウト後のリクエストが古いトークンを使わないようにする。
type TokenSource interface {
	Token() string
}

// WorkflowCursor は評価者の症例キューを1件ずつ進める状態機械。
//
//	Loading → Active(case) | Exhausted
//
// Advanceは症例と進捗を同時に取得し、両方が揃ってから1回の状態更新として
// 反映する。症例だけ進んで進捗が古い（またはその逆の）中間状態は観測されない。
type WorkflowCursor struct {
	api    WorkflowAPI
	tokens TokenSource
	logger *slog.Logger

	// nowはテストから時刻を差し替えるためのフック。
	now func() time.Time

	mu            sync.Mutex
	phase         WorkflowPhase
	current       *Case
	progress      model.Progress
	caseStartedAt time.Time

	// generationはカーソル破棄後に到着した応答を捨てるための世代番号。
	// Invalidateで進み、古い世代のAdvance結果は反映されない。
	generation uint64
}

// NewWorkflowCursor はWorkflowCursorの新しいインスタンスを生成する。
// 初期状態はWorkflowLoadingで、最初のAdvanceで解消される。
func NewWorkflowCursor(api WorkflowAPI, tokens TokenSource, logger *slog.Logger) *WorkflowCursor {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowCursor{
		api:    api,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
		phase:  WorkflowLoading,
	}
}

// Advance は次の症例と進捗スナップショットを並行して取得し、
// 両方の完了を待ってから状態を遷移させる。
// 症例が返ればActiveに遷移して経過時間の計測を開始し、
// 返らなければExhaustedに遷移する。進捗はどちらの分岐でも更新される。
//
// 取得に失敗した場合は状態を変えずにエラーを返す。
// 既にExhaustedの場合は何もしない（終端状態は自動で再試行しない）。
func (c *WorkflowCursor) Advance(ctx context.Context) error {
	c.mu.Lock()
	if c.phase == WorkflowExhausted {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	c.mu.Unlock()

	token := c.tokens.Token()

	// 症例と進捗を同時に発行し、両方の完了を待つ
	var (
		wg          sync.WaitGroup
		nextCase    *Case
		nextErr     error
		progress    *model.Progress
		progressErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		nextCase, nextErr = c.api.NextCase(ctx, token)
	}()
	go func() {
		defer wg.Done()
		progress, progressErr = c.api.Progress(ctx, token)
	}()
	wg.Wait()

	if nextErr != nil {
		return fmt.Errorf("failed to fetch next case: %w", nextErr)
	}
	if progressErr != nil {
		return fmt.Errorf("failed to fetch progress: %w", progressErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// カーソルが破棄済みなら遅延して到着した結果を捨てる
	if c.generation != gen {
		return nil
	}

	c.progress = *progress
	if nextCase == nil {
		c.phase = WorkflowExhausted
		c.current = nil
		c.logger.Info("評価キューが空になりました",
			slog.Int("completed", progress.Completed),
			slog.Int("total", progress.Total),
		)
		return nil
	}

	c.phase = WorkflowActive
	c.current = nextCase
	c.caseStartedAt = c.now()
	return nil
}

// Invalidate はカーソルを破棄済みとして印付けする。
// 画面の破棄や遷移の後に到着した取得結果が反映されるのを防ぐ。
func (c *WorkflowCursor) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
}

// Phase は現在のワークフロー状態を返す。
func (c *WorkflowCursor) Phase() WorkflowPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Current は評価中の症例を返す。Active以外ではnil。
func (c *WorkflowCursor) Current() *Case {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Progress は直近に取得した進捗スナップショットを返す。
func (c *WorkflowCursor) Progress() model.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// ElapsedMs は現在の症例が表示されてからの経過ミリ秒を返す。
// 計測前の呼び出しや時計の巻き戻りでも負値は返さない。
func (c *WorkflowCursor) ElapsedMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caseStartedAt.IsZero() {
		return 0
	}
	elapsed := c.now().Sub(c.caseStartedAt).Milliseconds()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
