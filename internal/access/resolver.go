// Package access はロールとサブスクリプション階層に基づく認可判定の
// 純粋関数を提供する。状態を持たず、すべての関数は副作用なしで
// 毎レンダリングごとに安全に呼び出せる。
package access

import (
	"github.com/hitoshi/planboard/internal/model"
	"github.com/hitoshi/planboard/internal/policy"
)

// NormalizeRole は生のロールラベルを正規化ロールに変換する。
// 大文字小文字・エイリアスを許容する全域関数で、未知の入力には
// RoleUnknownを返す。生ラベルの文字列比較はこの関数を通さずに
// 行ってはならない。
func NormalizeRole(raw string) model.Role {
	return policy.RoleForLabel(raw)
}

// HasRole はユーザーが指定ロールを持つかどうかを判定する。
// ユーザーが存在しない場合はfalseを返す。
func HasRole(user *model.User, role model.Role) bool {
	if user == nil {
		return false
	}
	return NormalizeRole(user.RawRole) == role
}

// HasPermission はユーザーが指定パーミッションを持つかどうかを判定する。
// SuperAdminはテーブルに列挙されないパーミッションも含めて
// 全パーミッションを暗黙的に保持する。未ログイン（userがnil）の場合は
// すべてのパーミッションに対してfalseを返す。
func HasPermission(user *model.User, perm model.Permission) bool {
	if user == nil {
		return false
	}
	role := NormalizeRole(user.RawRole)
	if role == model.RoleSuperAdmin {
		return true
	}
	_, ok := policy.RolePermissions(role)[perm]
	return ok
}

// HasTierAccess は組織のサブスクリプション階層で指定機能が
// 利用可能かどうかを判定する。組織が存在しない場合はfalseを返す。
func HasTierAccess(org *model.Organization, feature model.Feature) bool {
	if org == nil {
		return false
	}
	tier := policy.TierForLabel(org.TierLabel)
	_, ok := policy.TierFeatures(tier)[feature]
	return ok
}

// CanAccess はパーミッションと機能の両方の条件を評価する。
// featureが空の場合は階層チェックをスキップする。
func CanAccess(user *model.User, org *model.Organization, perm model.Permission, feature model.Feature) bool {
	if !HasPermission(user, perm) {
		return false
	}
	if feature == "" {
		return true
	}
	return HasTierAccess(org, feature)
}
