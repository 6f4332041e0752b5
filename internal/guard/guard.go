// Package guard は保護されたダッシュボードサーフェスごとの
// アクセス判定を提供する。判定はロールチェック（フォールバック許容）→
// パーミッションチェック→階層チェックの順で評価され、最初に失敗した
// チェックが拒否理由を決定する。
package guard

import (
	"github.com/hitoshi/planboard/internal/access"
	"github.com/hitoshi/planboard/internal/model"
	"github.com/hitoshi/planboard/internal/session"
)

// Requirement は保護サーフェス1つ分のアクセス要件。
// ゼロ値（要件なし）のサーフェスは復元完了後、常に許可される。
type Requirement struct {
	// Role は要求ロール。空の場合はロールチェックをスキップする。
	Role model.Role
	// FallbackRole はRoleと一致しない場合でもアクセスを許可する代替ロール。
	FallbackRole model.Role
	// Permission は必要パーミッション。空の場合はスキップする。
	Permission model.Permission
	// Feature は必要なサブスクリプション機能。空の場合はスキップする。
	Feature model.Feature
}

// Empty は要件が1つも設定されていないかどうかを返す。
func (r Requirement) Empty() bool {
	return r.Role == "" && r.Permission == "" && r.Feature == ""
}

// Evaluate はセッションのスナップショットに対してサーフェスの
// アクセス判定を行う。セッション復元が未完了の間はPendingを返す。
// 判定は評価のたびに行われ、セッションや要件の変化に追従する。
func Evaluate(snap session.Snapshot, req Requirement) model.AuthzDecision {
	if !snap.Loaded {
		return model.Pending()
	}

	if req.Role != "" {
		ok := access.HasRole(snap.User, req.Role)
		if !ok && req.FallbackRole != "" {
			ok = access.HasRole(snap.User, req.FallbackRole)
		}
		if !ok {
			return model.Denied(model.DenyRoleMismatch)
		}
	}

	if req.Permission != "" {
		if !access.HasPermission(snap.User, req.Permission) {
			return model.Denied(model.DenyPermissionMissing)
		}
	}

	if req.Feature != "" {
		if !access.HasTierAccess(snap.Organization, req.Feature) {
			return model.Denied(model.DenyTierInsufficient)
		}
	}

	return model.Allowed()
}
