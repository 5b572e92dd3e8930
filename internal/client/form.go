package client

import (
	"fmt"
	"sync"
)

// 判定スコアの許容範囲。
const (
	q1Min = 1
	q1Max = 4
	q2Min = 1
	q2Max = 5
)

// JudgmentForm は表示中の症例に対する判定入力を保持する。
// q1とq2の両方が選択されるまで提出はできない。
// 入力はローカル状態の更新のみで、ネットワーク呼び出しを伴わない。
type JudgmentForm struct {
	mu         sync.Mutex
	q1         int // 0は未選択
	q2         int // 0は未選択
	comments   string
	submitting bool
}

// NewJudgmentForm は空のJudgmentFormを生成する。
func NewJudgmentForm() *JudgmentForm {
	return &JudgmentForm{}
}

// SetQ1 は受容性スコア（1〜4）を選択する。同じ値の再選択は冪等。
func (f *JudgmentForm) SetQ1(v int) error {
	if v < q1Min || v > q1Max {
		return fmt.Errorf("q1 must be between %d and %d, got %d", q1Min, q1Max, v)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.q1 = v
	return nil
}

// SetQ2 は確信度スコア（1〜5）を選択する。同じ値の再選択は冪等。
func (f *JudgmentForm) SetQ2(v int) error {
	if v < q2Min || v > q2Max {
		return fmt.Errorf("q2 must be between %d and %d, got %d", q2Min, q2Max, v)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.q2 = v
	return nil
}

// SetComments は自由記述コメントを更新する。
func (f *JudgmentForm) SetComments(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = text
}

// Q1 は選択中の受容性スコアを返す。未選択の場合は0。
func (f *JudgmentForm) Q1() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q1
}

// Q2 は選択中の確信度スコアを返す。未選択の場合は0。
func (f *JudgmentForm) Q2() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q2
}

// Comments は入力中のコメントを返す。
func (f *JudgmentForm) Comments() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments
}

// CanSubmit は提出可能かどうかを返す。
// 必須スコアが両方選択済みで、かつ提出が進行中でない場合のみtrue。
func (f *JudgmentForm) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q1 != 0 && f.q2 != 0 && !f.submitting
}

// Reset は全フィールドを消去する。
// 提出の成功が確認された後にのみ呼ぶこと。失敗時の再試行に備えて
// 提出前に消去してはならない。
func (f *JudgmentForm) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.q1 = 0
	f.q2 = 0
	f.comments = ""
	f.submitting = false
}

// beginSubmit は提出中フラグの獲得を試みる。
// 既に提出が進行中、または必須スコアが未選択の場合はfalseを返す。
// 獲得に成功した間はCanSubmitがfalseになり、二重提出を防ぐ。
func (f *JudgmentForm) beginSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting || f.q1 == 0 || f.q2 == 0 {
		return false
	}
	f.submitting = true
	return true
}

// endSubmit は提出中フラグを解除する。
// 提出失敗時に呼ばれ、入力内容はそのまま残るため再試行が可能になる。
func (f *JudgmentForm) endSubmit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
}
