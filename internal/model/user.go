// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleAdmin は管理者。評価者アカウントの管理とCSVエクスポートが可能。
	RoleAdmin Role = "admin"
	// RoleEvaluator は評価者。割り当てられた症例の評価のみ可能。
	RoleEvaluator Role = "evaluator"
)

// Valid はRoleが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEvaluator
}

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// IDは暗号的に安全な乱数から生成された不透明なBearerトークン。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
