package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotReady は提出の前提条件（必須スコアの選択済み、症例の表示中、
// 他の提出が進行中でない）が満たされていないことを表す。
var ErrNotReady = errors.New("評価を提出できる状態ではありません")

// SubmitAPI はSubmissionPipelineが必要とするリモート操作。
type SubmitAPI interface {
	SubmitEvaluation(ctx context.Context, token string, judgment Judgment) error
}

// SubmissionPipeline は完成した判定の組み立て、送信、カーソル前進を行う。
//
// 同時に送信される判定は最大1件。送信中はフォームのCanSubmitが
// falseになるため、連打しても2件目が送られることはない。
// 送信失敗時はフォームの入力内容をそのまま残し、ユーザーの再操作による
// 再試行に委ねる（自動再送はしない）。
type SubmissionPipeline struct {
	api    SubmitAPI
	tokens TokenSource
	cursor *WorkflowCursor
	form   *JudgmentForm
	logger *slog.Logger
}

// NewSubmissionPipeline はSubmissionPipelineの新しいインスタンスを生成する。
func NewSubmissionPipeline(
	api SubmitAPI,
	tokens TokenSource,
	cursor *WorkflowCursor,
	form *JudgmentForm,
	logger *slog.Logger,
) *SubmissionPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionPipeline{
		api:    api,
		tokens: tokens,
		cursor: cursor,
		form:   form,
		logger: logger,
	}
}

// Submit は表示中の症例に対する判定を送信する。
// 成功時はフォームを消去してからカーソルを前進させる。
// 失敗時はフォームとカーソルを変更せず、再試行可能なエラーを返す。
func (p *SubmissionPipeline) Submit(ctx context.Context) error {
	current := p.cursor.Current()
	if current == nil {
		return ErrNotReady
	}

	// 提出中フラグの獲得に成功した場合のみ送信する（二重提出防止）
	if !p.form.beginSubmit() {
		return ErrNotReady
	}

	judgment := Judgment{
		CaseID:    current.ID,
		Q1:        p.form.Q1(),
		Q2:        p.form.Q2(),
		Comments:  p.form.Comments(),
		ElapsedMs: p.cursor.ElapsedMs(),
	}

	if err := p.api.SubmitEvaluation(ctx, p.tokens.Token(), judgment); err != nil {
		p.form.endSubmit()
		p.logger.Warn("評価の提出に失敗しました",
			slog.String("case_id", judgment.CaseID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to submit evaluation: %w", err)
	}

	p.logger.Info("評価を提出しました",
		slog.String("case_id", judgment.CaseID),
		slog.Int64("elapsed_ms", judgment.ElapsedMs),
	)

	// 成功が確認できたのでフォームを消去し、次の症例へ進む
	p.form.Reset()

	if err := p.cursor.Advance(ctx); err != nil {
		return fmt.Errorf("failed to advance after submission: %w", err)
	}
	return nil
}
