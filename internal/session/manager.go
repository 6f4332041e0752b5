package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/planboard/internal/model"
)

// AuthAPI はManagerが必要とするリモート認証APIのインターフェース。
// remote.AuthClientの部分集合として定義する。
type AuthAPI interface {
	// Login は認証エンドポイントを呼び出しトークンペアを取得する。
	Login(ctx context.Context, email, password string) (model.TokenPair, error)
	// Logout はサーバー側のセッションを無効化する（ベストエフォート）。
	Logout(ctx context.Context, accessToken string) error
	// MeWithToken は明示的なトークンで現在のユーザーを取得する。
	// ログイン確立中（ストアへのコミット前）に使用する。
	MeWithToken(ctx context.Context, accessToken string) (*model.User, error)
	// OrganizationWithToken は明示的なトークンで組織を取得する。
	OrganizationWithToken(ctx context.Context, accessToken, orgID string) (*model.Organization, error)
}

// OrgAPI は復元時の組織取得に使用するインターフェース。
// リフレッシュインターセプター経由のクライアントで実装され、
// 失効したトークンの透過的な回復が働く。
type OrgAPI interface {
	Organization(ctx context.Context, orgID string) (*model.Organization, error)
}

// Metrics はManagerが記録するメトリクスのインターフェース。
type Metrics interface {
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordLogout()
	RecordSessionRestored(authenticated bool)
}

// Manager はログイン・ログアウト・セッション復元を編成する。
// Storeへの書き込みはManager（とリフレッシュ経路のコミット）に限定される。
type Manager struct {
	store   *Store
	authAPI AuthAPI
	orgAPI  OrgAPI
	metrics Metrics
	logger  *slog.Logger
}

// NewManager はManagerを生成する。
func NewManager(store *Store, authAPI AuthAPI, orgAPI OrgAPI, metrics Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		authAPI: authAPI,
		orgAPI:  orgAPI,
		metrics: metrics,
		logger:  logger,
	}
}

// Restore は起動時に永続化スロットからセッションを復元する。
// ユーザーが存在する場合は所属組織を取得する（インターセプター経由の
// ため、失効したアクセストークンはここで透過的にリフレッシュされる）。
// いかなる失敗もエラーとして伝播せず、セッションを空にして
// 復元完了（loaded=true）とする。
func (m *Manager) Restore(ctx context.Context) {
	defer m.store.MarkLoaded()

	user, err := m.store.RestoreFromSlots()
	if err != nil {
		m.logger.Warn("セッションの復元に失敗しました",
			slog.String("error", err.Error()),
		)
		if clearErr := m.store.Clear(); clearErr != nil {
			m.logger.Error("セッションスロットのクリアに失敗しました",
				slog.String("error", clearErr.Error()),
			)
		}
		m.metrics.RecordSessionRestored(false)
		return
	}

	if user == nil {
		m.metrics.RecordSessionRestored(false)
		return
	}

	if user.OrganizationID != "" {
		org, err := m.orgAPI.Organization(ctx, user.OrganizationID)
		if err != nil {
			// セッション失効の場合はインターセプターが既にクリア済み。
			// それ以外の失敗も空セッションに倒して復元を完了する。
			m.logger.Warn("復元時の組織取得に失敗しました",
				slog.String("user_id", user.ID),
				slog.String("org_id", user.OrganizationID),
				slog.String("error", err.Error()),
			)
			if !model.IsSessionExpired(err) {
				if clearErr := m.store.Clear(); clearErr != nil {
					m.logger.Error("セッションスロットのクリアに失敗しました",
						slog.String("error", clearErr.Error()),
					)
				}
			}
			m.metrics.RecordSessionRestored(false)
			return
		}
		m.store.SetOrganization(org)
	}

	m.logger.Info("セッションを復元しました",
		slog.String("user_id", user.ID),
		slog.String("org_id", user.OrganizationID),
	)
	m.metrics.RecordSessionRestored(true)
}

// Login は認証エンドポイントでログインし、ユーザーと組織を取得して
// セッションを確立する。確立は原子的で、途中のいずれかの失敗では
// ストアも永続化スロットも一切変更されない。
// 認証情報が不正な場合はINVALID_CREDENTIALSエラーを返す。
func (m *Manager) Login(ctx context.Context, email, password string) (*model.User, error) {
	tokens, err := m.authAPI.Login(ctx, email, password)
	if err != nil {
		m.metrics.RecordLoginFailure()
		return nil, fmt.Errorf("ログインに失敗しました: %w", err)
	}

	// ストアにコミットする前のため、明示的なトークンで取得する
	user, err := m.authAPI.MeWithToken(ctx, tokens.AccessToken)
	if err != nil {
		m.metrics.RecordLoginFailure()
		return nil, fmt.Errorf("ユーザー情報の取得に失敗しました: %w", err)
	}

	var org *model.Organization
	if user.OrganizationID != "" {
		org, err = m.authAPI.OrganizationWithToken(ctx, tokens.AccessToken, user.OrganizationID)
		if err != nil {
			m.metrics.RecordLoginFailure()
			return nil, fmt.Errorf("組織情報の取得に失敗しました: %w", err)
		}
	}

	if err := m.store.SetSession(user, org, tokens); err != nil {
		// メモリ上のセッションは確立済み。永続化失敗は再起動後の
		// 復元ができないだけなので警告に留める。
		m.logger.Warn("セッションの永続化に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	m.logger.Info("ログインしました",
		slog.String("user_id", user.ID),
		slog.String("role", user.RawRole),
	)
	m.metrics.RecordLoginSuccess()
	return user, nil
}

// Logout はサーバー側のセッション無効化をベストエフォートで試み、
// 成否にかかわらずローカルのセッション状態と永続化スロットを
// 無条件にクリアする。ローカルのログアウトは常に成功する。
func (m *Manager) Logout(ctx context.Context) {
	access, _, _ := m.store.BearerTokens()
	if access != "" {
		if err := m.authAPI.Logout(ctx, access); err != nil {
			m.logger.Warn("サーバー側のログアウトに失敗しました（ローカルは継続します）",
				slog.String("error", err.Error()),
			)
		}
	}

	if err := m.store.Clear(); err != nil {
		m.logger.Error("セッションスロットのクリアに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	m.logger.Info("ログアウトしました")
	m.metrics.RecordLogout()
}

// UpdateUser はユーザーを全体置換し、再永続化する。
func (m *Manager) UpdateUser(user *model.User) error {
	if err := m.store.SetUser(user); err != nil {
		return fmt.Errorf("ユーザーの永続化に失敗しました: %w", err)
	}
	return nil
}

// UpdateOrganization は組織を全体置換する。
func (m *Manager) UpdateOrganization(org *model.Organization) {
	m.store.SetOrganization(org)
}

// Snapshot は現在のセッション状態のスナップショットを返す。
func (m *Manager) Snapshot() Snapshot {
	return m.store.Snapshot()
}
