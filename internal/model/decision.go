package model

// DecisionState は保護された画面サーフェスに対する認可判定の状態。
type DecisionState string

const (
	// DecisionPending はセッション復元が未完了で判定を保留している状態。
	DecisionPending DecisionState = "pending"
	// DecisionAllowed はアクセス許可。
	DecisionAllowed DecisionState = "allowed"
	// DecisionDenied はアクセス拒否。理由はDenyReasonで区別する。
	DecisionDenied DecisionState = "denied"
)

// DenyReason はアクセス拒否の理由。
// UIは理由ごとに異なる表示（アクセス拒否 / アップグレード案内）を行うため、
// 判定結果は真偽値ではなく必ず理由付きで返す。
type DenyReason string

const (
	// DenyRoleMismatch は要求ロールと一致しないことによる拒否。
	DenyRoleMismatch DenyReason = "role_mismatch"
	// DenyPermissionMissing は必要パーミッションの欠如による拒否。
	DenyPermissionMissing DenyReason = "permission_missing"
	// DenyTierInsufficient はサブスクリプション階層の不足による拒否。
	DenyTierInsufficient DenyReason = "tier_insufficient"
	// DenyNotAuthenticated は未認証状態での保護サーフェスへのアクセスによる拒否。
	DenyNotAuthenticated DenyReason = "not_authenticated"
)

// AuthzDecision は保護サーフェスの評価結果を表すタグ付きの判定値。
type AuthzDecision struct {
	State  DecisionState
	Reason DenyReason // StateがDecisionDeniedの場合のみ有効
}

// Allowed はアクセス許可の判定を返す。
func Allowed() AuthzDecision {
	return AuthzDecision{State: DecisionAllowed}
}

// Denied は指定された理由でのアクセス拒否の判定を返す。
func Denied(reason DenyReason) AuthzDecision {
	return AuthzDecision{State: DecisionDenied, Reason: reason}
}

// Pending は判定保留の判定を返す。
func Pending() AuthzDecision {
	return AuthzDecision{State: DecisionPending}
}
