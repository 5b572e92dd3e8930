// Package model はドメインモデルを定義する。
package model

import "time"

// AssetStatus は症例画像アセットの検証状態を表す。
type AssetStatus string

const (
	// AssetStatusUnverified は未検証。登録直後の初期状態。
	AssetStatusUnverified AssetStatus = "unverified"
	// AssetStatusOK は検証済みでアセットに到達可能。
	AssetStatusOK AssetStatus = "ok"
	// AssetStatusBroken はアセットに到達できない状態。
	AssetStatusBroken AssetStatus = "broken"
)

// Case は評価対象の1症例を表す。
// クライアントに発行された後は不変であり、クライアントはIDを参照するのみ。
type Case struct {
	ID          string
	ImagePath   string
	OverlayPath string
	Metadata    map[string]any
	AssetStatus AssetStatus
	CreatedAt   time.Time
}

// Evaluation は評価者が1症例に対して提出した判定を表す。
// Q1Acceptabilityは1〜4、Q2Confidenceは1〜5の範囲をとる。
type Evaluation struct {
	ID              string
	UserID          string
	CaseID          string
	Q1Acceptability int
	Q2Confidence    int
	Comments        string
	DurationMs      int64
	SubmittedAt     time.Time
}

// Q1Min・Q1Maxは臨床的受容性評価（Q1）の値域。
const (
	Q1Min = 1
	Q1Max = 4
)

// Q2Min・Q2Maxは確信度評価（Q2）の値域。
const (
	Q2Min = 1
	Q2Max = 5
)

// ValidScores はQ1・Q2が値域内かどうかを返す。
func ValidScores(q1, q2 int) bool {
	return q1 >= Q1Min && q1 <= Q1Max && q2 >= Q2Min && q2 <= Q2Max
}

// Progress は評価者の進捗スナップショットを表す。
// サーバー側が所有し、クライアントは読み取り専用の射影として扱う。
// 不変条件: Completed <= Total。
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// EvaluatorProgress は管理画面向けの評価者と進捗の結合ビュー。
type EvaluatorProgress struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Stats はプラットフォーム全体の統計を表す。
// Pending = TotalCases * TotalEvaluators - CompletedEvaluations（負にはならない）。
type Stats struct {
	TotalCases           int `json:"totalCases"`
	TotalEvaluators      int `json:"totalEvaluators"`
	CompletedEvaluations int `json:"completedEvaluations"`
	PendingEvaluations   int `json:"pendingEvaluations"`
}
