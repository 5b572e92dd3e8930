// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CommentSanitizerService は評価者が入力した自由記述コメントをサニタイズし、
// 保存データおよびCSVエクスポートへのHTML/スクリプト混入を防ぐ。
// bluemondayのStrictPolicyで全タグを除去し、プレーンテキストのみを残す。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CommentSanitizerService はコメントのサニタイズ機能のインターフェースを定義する。
// 評価提出時の保存前処理として使用される。
type CommentSanitizerService interface {
	// Sanitize はコメントから全HTMLタグを除去し、前後の空白を取り除いた
	// プレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(comment string) string
}

// commentSanitizer はCommentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type commentSanitizer struct {
	policy *bluemonday.Policy
}

// NewCommentSanitizer はCommentSanitizerServiceの新しいインスタンスを生成する。
// コメントは装飾不要のプレーンテキストとして扱うため、
// 許可タグを一切持たないStrictPolicyを使用する。
func NewCommentSanitizer() *commentSanitizer {
	return &commentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はコメントから全HTMLタグを除去する。
func (s *commentSanitizer) Sanitize(comment string) string {
	if comment == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(comment))
}
