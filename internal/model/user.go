// Package model はドメインモデルを定義する。
package model

// User はダッシュボード利用ユーザーを表す。
// RawRoleはリモートAPIが返すロールラベルをそのまま保持する
// （例: "org_admin"、"Org Admin"）。ロール判定には必ず
// access.NormalizeRoleを通した正規化ロールを使用する。
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	RawRole        string `json:"role"`
	OrganizationID string `json:"organization_id"`
}

// Organization はユーザーが所属する組織を表す。
// TierLabelはリモートAPIが返すサブスクリプション階層のラベル
// （例: "professional"）をそのまま保持する。
type Organization struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TierLabel      string `json:"subscription_tier"`
	BillingContact string `json:"billing_contact"`
	Status         string `json:"status"`
}
