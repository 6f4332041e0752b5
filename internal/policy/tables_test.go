package policy

import (
	"testing"

	"github.com/hitoshi/planboard/internal/model"
)

func TestRoleForLabel_AcceptsBothCasingConventions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want model.Role
	}{
		{"snake_case", "org_admin", model.RoleOrgAdmin},
		{"人間可読形式", "Org Admin", model.RoleOrgAdmin},
		{"大文字混じり", "ORG_ADMIN", model.RoleOrgAdmin},
		{"前後の空白", "  project_manager  ", model.RoleProjectManager},
		{"エイリアス member", "member", model.RoleTeamMember},
		{"エイリアス read_only", "Read Only", model.RoleViewer},
		{"super_admin", "Super Admin", model.RoleSuperAdmin},
		{"未知のラベル", "galactic_overlord", model.RoleUnknown},
		{"空文字列", "", model.RoleUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoleForLabel(tt.raw); got != tt.want {
				t.Errorf("RoleForLabel(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRoleForLabel_IdempotentOverAliasTable(t *testing.T) {
	// エイリアステーブル上の全ラベルについて、正規化結果を再度正規化しても
	// 同じロールに解決されることを確認する
	for _, label := range KnownRoleLabels() {
		first := RoleForLabel(label)
		second := RoleForLabel(string(first))
		if first != second {
			t.Errorf("RoleForLabel is not idempotent for %q: first=%q second=%q", label, first, second)
		}
	}
}

func TestRolePermissions_UnknownRoleReturnsEmptySet(t *testing.T) {
	set := RolePermissions(model.RoleUnknown)
	if len(set) != 0 {
		t.Errorf("RolePermissions(RoleUnknown) = %v, want empty set", set)
	}

	// SuperAdminはテーブルに列挙されない（Resolver側のエスケープハッチ）
	if set := RolePermissions(model.RoleSuperAdmin); len(set) != 0 {
		t.Errorf("RolePermissions(RoleSuperAdmin) = %v, want empty set", set)
	}
}

func TestTierFeatures_StrictlyNested(t *testing.T) {
	basic := TierFeatures(model.TierBasic)
	pro := TierFeatures(model.TierProfessional)
	ent := TierFeatures(model.TierEnterprise)

	// Basic ⊆ Professional
	for f := range basic {
		if _, ok := pro[f]; !ok {
			t.Errorf("feature %q in Basic but not in Professional", f)
		}
	}
	// Professional ⊆ Enterprise
	for f := range pro {
		if _, ok := ent[f]; !ok {
			t.Errorf("feature %q in Professional but not in Enterprise", f)
		}
	}

	// 真部分集合であること（各階層に固有の追加機能が存在する）
	if len(basic) >= len(pro) {
		t.Errorf("Professional(%d) must be strictly larger than Basic(%d)", len(pro), len(basic))
	}
	if len(pro) >= len(ent) {
		t.Errorf("Enterprise(%d) must be strictly larger than Professional(%d)", len(ent), len(pro))
	}
}

func TestTierFeatures_UnknownTierReturnsEmptySet(t *testing.T) {
	if set := TierFeatures(model.TierUnknown); len(set) != 0 {
		t.Errorf("TierFeatures(TierUnknown) = %v, want empty set", set)
	}
}

func TestTierForLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want model.Tier
	}{
		{"basic", model.TierBasic},
		{"Professional", model.TierProfessional},
		{"ENTERPRISE", model.TierEnterprise},
		{"free_trial", model.TierUnknown},
		{"", model.TierUnknown},
	}

	for _, tt := range tests {
		if got := TierForLabel(tt.raw); got != tt.want {
			t.Errorf("TierForLabel(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
