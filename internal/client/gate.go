package client

import "github.com/hitoshi/evalman/internal/model"

// Route はクライアント内の遷移先を表す。
type Route string

const (
	// RouteLogin はログイン画面。
	RouteLogin Route = "login"
	// RouteEvaluatorHome は評価者のホーム（評価ワークフロー画面）。
	RouteEvaluatorHome Route = "evaluate"
	// RouteAdminHome は管理者のホーム（管理画面）。
	RouteAdminHome Route = "admin"
)

// DecisionKind はアクセス判定の種別を表す。
type DecisionKind int

const (
	// DecisionPending はセッション検証中のため判定を保留することを示す。
	DecisionPending DecisionKind = iota
	// DecisionAdmit は表示を許可することを示す。
	DecisionAdmit
	// DecisionRedirect は別ルートへの遷移が必要なことを示す。
	DecisionRedirect
)

// Decision はアクセス判定の結果。判定自体は副作用を持たず、
// DecisionRedirectの場合のみ呼び出し側がTargetへの遷移を実行する。
type Decision struct {
	Kind   DecisionKind
	Target Route
}

// HomeRoute は役割に応じたホームルートを返す。
func HomeRoute(role model.Role) Route {
	if role == model.RoleAdmin {
		return RouteAdminHome
	}
	return RouteEvaluatorHome
}

// Decide は保護された画面へのアクセス可否を判定する純粋関数。
// requiredが空の場合はセッションの有無のみを要求する。
// 役割が一致しない場合はログインではなく相手役割のホームへ誘導する
// （ログイン済みユーザーを再ログインさせないため）。
//
// セッション状態が変わるたびに再評価すること。結果をキャッシュしてはならない。
func Decide(phase SessionPhase, userRole model.Role, required model.Role) Decision {
	switch phase {
	case SessionLoading:
		return Decision{Kind: DecisionPending}
	case SessionEmpty:
		return Decision{Kind: DecisionRedirect, Target: RouteLogin}
	}

	if required != "" && userRole != required {
		return Decision{Kind: DecisionRedirect, Target: HomeRoute(userRole)}
	}
	return Decision{Kind: DecisionAdmit}
}

// DecideLogin はログイン画面自体へのアクセスを判定する。
// セッションが既に確立している場合はログイン画面を見せず、
// 役割に応じたホームへ誘導する。
func DecideLogin(phase SessionPhase, userRole model.Role) Decision {
	switch phase {
	case SessionLoading:
		return Decision{Kind: DecisionPending}
	case SessionPopulated:
		return Decision{Kind: DecisionRedirect, Target: HomeRoute(userRole)}
	}
	return Decision{Kind: DecisionAdmit}
}
