package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/planboard/internal/model"
	"github.com/hitoshi/planboard/internal/storage"
)

// --- モック定義 ---

type mockAuthAPI struct {
	loginFn     func(ctx context.Context, email, password string) (model.TokenPair, error)
	logoutFn    func(ctx context.Context, accessToken string) error
	meFn        func(ctx context.Context, accessToken string) (*model.User, error)
	orgFn       func(ctx context.Context, accessToken, orgID string) (*model.Organization, error)
	logoutCalls int
}

func (m *mockAuthAPI) Login(ctx context.Context, email, password string) (model.TokenPair, error) {
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthAPI) Logout(ctx context.Context, accessToken string) error {
	m.logoutCalls++
	if m.logoutFn != nil {
		return m.logoutFn(ctx, accessToken)
	}
	return nil
}

func (m *mockAuthAPI) MeWithToken(ctx context.Context, accessToken string) (*model.User, error) {
	return m.meFn(ctx, accessToken)
}

func (m *mockAuthAPI) OrganizationWithToken(ctx context.Context, accessToken, orgID string) (*model.Organization, error) {
	return m.orgFn(ctx, accessToken, orgID)
}

type mockOrgAPI struct {
	orgFn func(ctx context.Context, orgID string) (*model.Organization, error)
}

func (m *mockOrgAPI) Organization(ctx context.Context, orgID string) (*model.Organization, error) {
	return m.orgFn(ctx, orgID)
}

type mockMetrics struct {
	loginSuccess int
	loginFailure int
	logouts      int
	restored     []bool
}

func (m *mockMetrics) RecordLoginSuccess()                    { m.loginSuccess++ }
func (m *mockMetrics) RecordLoginFailure()                    { m.loginFailure++ }
func (m *mockMetrics) RecordLogout()                          { m.logouts++ }
func (m *mockMetrics) RecordSessionRestored(authenticated bool) { m.restored = append(m.restored, authenticated) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestManager(slots storage.Slots, authAPI AuthAPI, orgAPI OrgAPI) (*Manager, *Store, *mockMetrics) {
	store := NewStore(slots)
	metrics := &mockMetrics{}
	return NewManager(store, authAPI, orgAPI, metrics, testLogger()), store, metrics
}

// --- テスト ---

func TestManager_Login_EstablishesFullSession(t *testing.T) {
	authAPI := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (model.TokenPair, error) {
			if email != "a@x.com" || password != "secret" {
				return model.TokenPair{}, model.NewInvalidCredentialsError()
			}
			return model.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}, nil
		},
		meFn: func(ctx context.Context, accessToken string) (*model.User, error) {
			if accessToken != "access-1" {
				t.Errorf("MeWithToken called with %q, want access-1", accessToken)
			}
			return &model.User{ID: "user-1", Email: "a@x.com", RawRole: "org_admin", OrganizationID: "org-1"}, nil
		},
		orgFn: func(ctx context.Context, accessToken, orgID string) (*model.Organization, error) {
			return &model.Organization{ID: orgID, TierLabel: "professional"}, nil
		},
	}

	mgr, store, metrics := newTestManager(&mockSlots{}, authAPI, &mockOrgAPI{})

	user, err := mgr.Login(context.Background(), "a@x.com", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.RawRole != "org_admin" {
		t.Errorf("user.RawRole = %q, want org_admin", user.RawRole)
	}

	access, refresh, _ := store.BearerTokens()
	if access != "access-1" || refresh != "refresh-1" {
		t.Errorf("tokens = (%q, %q), want both set", access, refresh)
	}

	snap := store.Snapshot()
	if snap.Organization == nil || snap.Organization.ID != "org-1" {
		t.Errorf("organization = %+v, want org-1", snap.Organization)
	}
	if metrics.loginSuccess != 1 {
		t.Errorf("loginSuccess = %d, want 1", metrics.loginSuccess)
	}
}

func TestManager_Login_InvalidCredentialsLeavesStateUntouched(t *testing.T) {
	authAPI := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (model.TokenPair, error) {
			return model.TokenPair{}, model.NewInvalidCredentialsError()
		},
	}

	slots := &mockSlots{}
	mgr, store, metrics := newTestManager(slots, authAPI, &mockOrgAPI{})

	_, err := mgr.Login(context.Background(), "a@x.com", "wrong")
	if !model.IsAuthenticationError(err) {
		t.Fatalf("Login() error = %v, want authentication error", err)
	}

	if store.Snapshot().User != nil {
		t.Error("session mutated on failed login")
	}
	access, refresh, _ := store.BearerTokens()
	if access != "" || refresh != "" {
		t.Error("tokens set on failed login")
	}
	if slots.persisted.User != nil || slots.persisted.AccessToken != "" {
		t.Error("slots persisted on failed login")
	}
	if metrics.loginFailure != 1 {
		t.Errorf("loginFailure = %d, want 1", metrics.loginFailure)
	}
}

func TestManager_Login_AtomicWhenUserFetchFails(t *testing.T) {
	// トークン取得後のユーザー取得失敗でも部分的な状態変更が残らないこと
	authAPI := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (model.TokenPair, error) {
			return model.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}, nil
		},
		meFn: func(ctx context.Context, accessToken string) (*model.User, error) {
			return nil, errors.New("upstream down")
		},
	}

	slots := &mockSlots{}
	mgr, store, _ := newTestManager(slots, authAPI, &mockOrgAPI{})

	if _, err := mgr.Login(context.Background(), "a@x.com", "secret"); err == nil {
		t.Fatal("Login() error = nil, want error")
	}

	access, _, _ := store.BearerTokens()
	if access != "" {
		t.Error("tokens committed despite failed user fetch")
	}
	if slots.persisted.AccessToken != "" {
		t.Error("slots persisted despite failed user fetch")
	}
}

func TestManager_Logout_ClearsLocallyEvenWhenRemoteFails(t *testing.T) {
	authAPI := &mockAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (model.TokenPair, error) {
			return model.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}, nil
		},
		meFn: func(ctx context.Context, accessToken string) (*model.User, error) {
			return &model.User{ID: "user-1"}, nil
		},
		logoutFn: func(ctx context.Context, accessToken string) error {
			return errors.New("network unreachable")
		},
	}

	slots := &mockSlots{}
	mgr, store, metrics := newTestManager(slots, authAPI, &mockOrgAPI{})

	if _, err := mgr.Login(context.Background(), "a@x.com", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	mgr.Logout(context.Background())

	if authAPI.logoutCalls != 1 {
		t.Errorf("remote logout calls = %d, want 1", authAPI.logoutCalls)
	}
	if store.Snapshot().User != nil {
		t.Error("session not cleared after logout with remote failure")
	}
	if slots.clearCalls != 1 {
		t.Errorf("slots.Clear calls = %d, want 1", slots.clearCalls)
	}
	if metrics.logouts != 1 {
		t.Errorf("logouts = %d, want 1", metrics.logouts)
	}
}

func TestManager_Restore_EmptySlots(t *testing.T) {
	mgr, store, metrics := newTestManager(&mockSlots{}, &mockAuthAPI{}, &mockOrgAPI{})

	mgr.Restore(context.Background())

	snap := store.Snapshot()
	if !snap.Loaded {
		t.Error("Loaded = false after Restore")
	}
	if snap.User != nil {
		t.Errorf("user = %+v, want nil", snap.User)
	}
	if len(metrics.restored) != 1 || metrics.restored[0] {
		t.Errorf("restored = %v, want [false]", metrics.restored)
	}
}

func TestManager_Restore_WithPersistedUserFetchesOrganization(t *testing.T) {
	slots := &mockSlots{persisted: storage.PersistedSession{
		User:         &model.User{ID: "user-1", OrganizationID: "org-1"},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}}
	orgAPI := &mockOrgAPI{
		orgFn: func(ctx context.Context, orgID string) (*model.Organization, error) {
			return &model.Organization{ID: orgID, TierLabel: "enterprise"}, nil
		},
	}

	mgr, store, metrics := newTestManager(slots, &mockAuthAPI{}, orgAPI)

	mgr.Restore(context.Background())

	snap := store.Snapshot()
	if !snap.Loaded {
		t.Error("Loaded = false after Restore")
	}
	if snap.User == nil || snap.User.ID != "user-1" {
		t.Errorf("user = %+v, want user-1", snap.User)
	}
	if snap.Organization == nil || snap.Organization.TierLabel != "enterprise" {
		t.Errorf("organization = %+v, want enterprise org", snap.Organization)
	}
	if len(metrics.restored) != 1 || !metrics.restored[0] {
		t.Errorf("restored = %v, want [true]", metrics.restored)
	}
}

func TestManager_Restore_SlotLoadFailureLeavesEmptySession(t *testing.T) {
	slots := &mockSlots{loadErr: errors.New("disk corrupt")}
	mgr, store, _ := newTestManager(slots, &mockAuthAPI{}, &mockOrgAPI{})

	mgr.Restore(context.Background())

	snap := store.Snapshot()
	if !snap.Loaded {
		t.Error("Loaded = false after failed Restore")
	}
	if snap.User != nil {
		t.Error("user present after failed Restore")
	}
}

func TestManager_Restore_OrgFetchFailureClearsSession(t *testing.T) {
	slots := &mockSlots{persisted: storage.PersistedSession{
		User:        &model.User{ID: "user-1", OrganizationID: "org-1"},
		AccessToken: "access-1",
	}}
	orgAPI := &mockOrgAPI{
		orgFn: func(ctx context.Context, orgID string) (*model.Organization, error) {
			return nil, errors.New("upstream down")
		},
	}

	mgr, store, _ := newTestManager(slots, &mockAuthAPI{}, orgAPI)

	mgr.Restore(context.Background())

	snap := store.Snapshot()
	if !snap.Loaded {
		t.Error("Loaded = false after Restore")
	}
	if snap.User != nil {
		t.Error("user present after failed org fetch")
	}
	if slots.clearCalls == 0 {
		t.Error("slots not cleared after failed org fetch")
	}
}

func TestManager_UpdateUserRepersists(t *testing.T) {
	slots := &mockSlots{}
	mgr, store, _ := newTestManager(slots, &mockAuthAPI{}, &mockOrgAPI{})

	updated := &model.User{ID: "user-1", Name: "改名後", RawRole: "project_manager"}
	if err := mgr.UpdateUser(updated); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	if snap := store.Snapshot(); snap.User == nil || snap.User.Name != "改名後" {
		t.Errorf("user = %+v, want updated user", snap.User)
	}
	if slots.persisted.User == nil || slots.persisted.User.Name != "改名後" {
		t.Errorf("persisted user = %+v, want updated user", slots.persisted.User)
	}
}
