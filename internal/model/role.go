package model

// Role は正規化済みのユーザーロールを表す閉じた列挙型。
// リモートAPIが返す生のロールラベルはaccess.NormalizeRoleで
// 必ずこの列挙型に変換してから判定に使用する。
type Role string

const (
	// RoleSuperAdmin は全権限を暗黙的に保持するシステム管理者。
	RoleSuperAdmin Role = "super_admin"
	// RoleOrgAdmin は組織管理者。
	RoleOrgAdmin Role = "org_admin"
	// RoleProjectManager はプロジェクト管理者。
	RoleProjectManager Role = "project_manager"
	// RoleTeamMember は一般メンバー。
	RoleTeamMember Role = "team_member"
	// RoleViewer は閲覧専用ユーザー。
	RoleViewer Role = "viewer"
	// RoleUnknown は認識できないロールラベルに対するフォールバック。
	// 未知の入力でpanicや未定義動作を起こさないための全域性の保証。
	RoleUnknown Role = "unknown"
)

// Tier はサブスクリプション階層を表す閉じた列挙型。
// 機能集合はBasic ⊂ Professional ⊂ Enterpriseの包含関係を持つ。
type Tier string

const (
	// TierBasic は基本プラン。
	TierBasic Tier = "basic"
	// TierProfessional はプロフェッショナルプラン。
	TierProfessional Tier = "professional"
	// TierEnterprise はエンタープライズプラン。
	TierEnterprise Tier = "enterprise"
	// TierUnknown は認識できない階層ラベルに対するフォールバック。
	TierUnknown Tier = "unknown"
)

// Permission はロールに紐づく操作権限の識別子。
type Permission string

// 定義済みパーミッション
const (
	PermManageUsers       Permission = "manage_users"
	PermManageProjects    Permission = "manage_projects"
	PermManageBilling     Permission = "manage_billing"
	PermEditTasks         Permission = "edit_tasks"
	PermViewReports       Permission = "view_reports"
	PermExportData        Permission = "export_data"
	PermApproveTimesheets Permission = "approve_timesheets"
)

// Feature はサブスクリプション階層に紐づく機能の識別子。
type Feature string

// 定義済み機能
const (
	FeatureGanttChart         Feature = "gantt_chart"
	FeatureTaskTracking       Feature = "task_tracking"
	FeatureBasicReports       Feature = "basic_reports"
	FeatureCriticalPath       Feature = "critical_path_analysis"
	FeatureResourceLeveling   Feature = "resource_leveling"
	FeatureEarnedValue        Feature = "earned_value_metrics"
	FeatureAIRecommendations  Feature = "ai_recommendations"
	FeatureCustomReports      Feature = "custom_reports"
	FeatureFullAICapabilities Feature = "full_ai_capabilities"
	FeatureAPIAccess          Feature = "api_access"
	FeaturePortfolioAnalytics Feature = "portfolio_analytics"
	FeaturePrioritySupport    Feature = "priority_support"
)
