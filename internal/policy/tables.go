// Package policy はRBACとサブスクリプション階層の静的ポリシーテーブルを定義する。
// ロール→パーミッション集合、階層→機能集合、ロールラベル→正規化ロールの
// 3つのマッピングのみを持ち、状態や外部依存は一切持たない。
// 未知のキーに対する参照は空集合またはUnknownを返し、決してpanicしない。
package policy

import (
	"strings"

	"github.com/hitoshi/planboard/internal/model"
)

// PermissionSet はパーミッションの集合。
type PermissionSet map[model.Permission]struct{}

// FeatureSet は機能の集合。
type FeatureSet map[model.Feature]struct{}

// rolePermissions はロールごとのパーミッション集合の唯一の定義元。
// SuperAdminはここに列挙せず、Resolver側で全パーミッションを暗黙的に
// 保持する（他のロールには波及しないエスケープハッチ）。
var rolePermissions = map[model.Role]PermissionSet{
	model.RoleOrgAdmin: newPermissionSet(
		model.PermManageUsers,
		model.PermManageProjects,
		model.PermManageBilling,
		model.PermEditTasks,
		model.PermViewReports,
		model.PermExportData,
		model.PermApproveTimesheets,
	),
	model.RoleProjectManager: newPermissionSet(
		model.PermManageProjects,
		model.PermEditTasks,
		model.PermViewReports,
		model.PermExportData,
		model.PermApproveTimesheets,
	),
	model.RoleTeamMember: newPermissionSet(
		model.PermEditTasks,
		model.PermViewReports,
	),
	model.RoleViewer: newPermissionSet(
		model.PermViewReports,
	),
}

// 階層ごとの追加機能。上位階層は下位階層の全機能に差分を加えた
// 和集合として構築するため、Basic ⊂ Professional ⊂ Enterpriseの
// 包含関係が構造的に保証される。
var (
	basicFeatures = newFeatureSet(
		model.FeatureGanttChart,
		model.FeatureTaskTracking,
		model.FeatureBasicReports,
	)
	professionalFeatures = union(basicFeatures, newFeatureSet(
		model.FeatureCriticalPath,
		model.FeatureResourceLeveling,
		model.FeatureEarnedValue,
		model.FeatureAIRecommendations,
		model.FeatureCustomReports,
	))
	enterpriseFeatures = union(professionalFeatures, newFeatureSet(
		model.FeatureFullAICapabilities,
		model.FeatureAPIAccess,
		model.FeaturePortfolioAnalytics,
		model.FeaturePrioritySupport,
	))
)

// tierFeatures は階層ごとの機能集合。
var tierFeatures = map[model.Tier]FeatureSet{
	model.TierBasic:        basicFeatures,
	model.TierProfessional: professionalFeatures,
	model.TierEnterprise:   enterpriseFeatures,
}

// roleAliases は正規化キー（小文字・スペースをアンダースコアに変換）から
// 正規化ロールへのマッピング。snake_caseと人間可読の両形式を受け付ける。
var roleAliases = map[string]model.Role{
	"super_admin":        model.RoleSuperAdmin,
	"superadmin":         model.RoleSuperAdmin,
	"org_admin":          model.RoleOrgAdmin,
	"organization_admin": model.RoleOrgAdmin,
	"project_manager":    model.RoleProjectManager,
	"team_member":        model.RoleTeamMember,
	"member":             model.RoleTeamMember,
	"viewer":             model.RoleViewer,
	"read_only":          model.RoleViewer,
}

// tierAliases は正規化キーから階層へのマッピング。
var tierAliases = map[string]model.Tier{
	"basic":        model.TierBasic,
	"professional": model.TierProfessional,
	"enterprise":   model.TierEnterprise,
}

// RolePermissions はロールのパーミッション集合を返す。
// 未知のロールには空集合を返す。返り値は読み取り専用として扱うこと。
func RolePermissions(role model.Role) PermissionSet {
	if set, ok := rolePermissions[role]; ok {
		return set
	}
	return PermissionSet{}
}

// TierFeatures は階層の機能集合を返す。
// 未知の階層には空集合を返す。返り値は読み取り専用として扱うこと。
func TierFeatures(tier model.Tier) FeatureSet {
	if set, ok := tierFeatures[tier]; ok {
		return set
	}
	return FeatureSet{}
}

// RoleForLabel は生のロールラベルを正規化ロールに解決する。
// 大文字小文字とスペース/アンダースコアの違いを吸収し、
// 認識できないラベルにはRoleUnknownを返す（全域関数）。
func RoleForLabel(raw string) model.Role {
	if role, ok := roleAliases[normalizeKey(raw)]; ok {
		return role
	}
	return model.RoleUnknown
}

// TierForLabel は生の階層ラベルを正規化階層に解決する。
// 認識できないラベルにはTierUnknownを返す。
func TierForLabel(raw string) model.Tier {
	if tier, ok := tierAliases[normalizeKey(raw)]; ok {
		return tier
	}
	return model.TierUnknown
}

// KnownRoleLabels はエイリアステーブルに登録された全ラベルを返す。
// テストでの全域性検証に使用する。
func KnownRoleLabels() []string {
	labels := make([]string, 0, len(roleAliases))
	for label := range roleAliases {
		labels = append(labels, label)
	}
	return labels
}

// normalizeKey はラベルをテーブル参照用のキーに正規化する。
func normalizeKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	return strings.ReplaceAll(key, " ", "_")
}

func newPermissionSet(perms ...model.Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

func newFeatureSet(features ...model.Feature) FeatureSet {
	set := make(FeatureSet, len(features))
	for _, f := range features {
		set[f] = struct{}{}
	}
	return set
}

// union は2つの機能集合の和集合を新しい集合として返す。
func union(a, b FeatureSet) FeatureSet {
	merged := make(FeatureSet, len(a)+len(b))
	for f := range a {
		merged[f] = struct{}{}
	}
	for f := range b {
		merged[f] = struct{}{}
	}
	return merged
}
