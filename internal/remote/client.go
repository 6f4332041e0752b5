// Package remote はスケジューリングサービス（リモートAPI）のクライアントを提供する。
// 認証エンドポイント用のAuthClientと、セッション確立後の呼び出しに使用する
// DashboardClientに分かれる。後者はトークンリフレッシュインターセプター
// 経由で通信し、失効したアクセストークンを透過的に回復する。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/planboard/internal/model"
)

// userAgent は全リクエストに付与するUser-Agentヘッダー。
const userAgent = "Planboard/1.0 Session Gateway"

// maxErrorBodySize はエラー応答ボディの最大読み取りサイズ。
const maxErrorBodySize = 4096

// loginResponse は認証エンドポイントの応答形式。
type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// AuthClient は認証エンドポイント（ログイン・リフレッシュ・ログアウト）と、
// セッション確立前の明示的トークンによる取得を担当するクライアント。
// インターセプターを経由しない素のHTTPクライアントで通信する
// （リフレッシュ呼び出しが自分自身のリフレッシュを誘発しないため）。
type AuthClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewAuthClient はAuthClientを生成する。
func NewAuthClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *AuthClient {
	return &AuthClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// Login は認証エンドポイントを呼び出し、トークンペアを取得する。
// 認証情報が不正な場合（401）はINVALID_CREDENTIALSエラーを返す。
func (c *AuthClient) Login(ctx context.Context, email, password string) (model.TokenPair, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("リクエストのシリアライズに失敗しました: %w", err)
	}

	resp, err := c.post(ctx, "/auth/login", body)
	if err != nil {
		return model.TokenPair{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return model.TokenPair{}, model.NewInvalidCredentialsError()
	}
	if resp.StatusCode != http.StatusOK {
		return model.TokenPair{}, c.statusError("/auth/login", resp)
	}

	var decoded loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return model.TokenPair{}, fmt.Errorf("ログイン応答のパースに失敗しました: %w", err)
	}
	if decoded.AccessToken == "" {
		return model.TokenPair{}, fmt.Errorf("ログイン応答にアクセストークンが含まれていません")
	}

	return model.TokenPair{
		AccessToken:  decoded.AccessToken,
		RefreshToken: decoded.RefreshToken,
	}, nil
}

// Refresh はリフレッシュトークンを新しいトークンペアに交換する。
// transport.Refresherを実装する。
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	body, err := json.Marshal(map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("リクエストのシリアライズに失敗しました: %w", err)
	}

	resp, err := c.post(ctx, "/auth/refresh", body)
	if err != nil {
		return model.TokenPair{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.TokenPair{}, c.statusError("/auth/refresh", resp)
	}

	var decoded loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return model.TokenPair{}, fmt.Errorf("リフレッシュ応答のパースに失敗しました: %w", err)
	}
	if decoded.AccessToken == "" {
		return model.TokenPair{}, fmt.Errorf("リフレッシュ応答にアクセストークンが含まれていません")
	}

	return model.TokenPair{
		AccessToken:  decoded.AccessToken,
		RefreshToken: decoded.RefreshToken,
	}, nil
}

// Logout はサーバー側のセッションを無効化する。
// 2xx以外の応答はエラーとして返すが、呼び出し元（Manager）は
// 失敗をログに記録するのみで伝播しない。
func (c *AuthClient) Logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ログアウトリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ログアウトエンドポイントがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}

// MeWithToken は明示的なアクセストークンで現在のユーザーを取得する。
// ログイン確立中（ストアへのコミット前）に使用する。
func (c *AuthClient) MeWithToken(ctx context.Context, accessToken string) (*model.User, error) {
	var user model.User
	if err := c.getJSON(ctx, "/auth/me", accessToken, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// OrganizationWithToken は明示的なアクセストークンで組織を取得する。
func (c *AuthClient) OrganizationWithToken(ctx context.Context, accessToken, orgID string) (*model.Organization, error) {
	var org model.Organization
	path := "/organizations/" + url.PathEscape(orgID)
	if err := c.getJSON(ctx, path, accessToken, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// post は認証エンドポイントへのJSON POSTを実行する。
func (c *AuthClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("リモートAPIの呼び出しに失敗しました: %w", err)
	}
	return resp, nil
}

// getJSON は明示的なトークン付きGETを実行し、応答をデコードする。
func (c *AuthClient) getJSON(ctx context.Context, path, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("リモートAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("応答のパースに失敗しました: %w", err)
	}
	return nil
}

// statusError は非期待ステータスの応答をエラーに変換する。
func (c *AuthClient) statusError(path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	c.logger.Error("リモートAPIがエラーステータスを返しました",
		slog.String("path", path),
		slog.Int("http_status", resp.StatusCode),
		slog.String("body", string(body)),
	)
	return fmt.Errorf("リモートAPI %s がステータス %d を返しました", path, resp.StatusCode)
}

// DashboardClient はセッション確立後のダッシュボードAPI呼び出しを担当する
// クライアント。渡されるhttpClientのTransportにはトークンリフレッシュ
// インターセプターが設定されていることを前提とする。
type DashboardClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewDashboardClient はDashboardClientを生成する。
func NewDashboardClient(httpClient *http.Client, baseURL string) *DashboardClient {
	return &DashboardClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Organization は組織を取得する。session.OrgAPIを実装する。
// 復元時に使用され、失効したトークンはインターセプターが回復する。
func (c *DashboardClient) Organization(ctx context.Context, orgID string) (*model.Organization, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/organizations/"+url.PathEscape(orgID), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("組織の取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("組織取得エンドポイントがステータス %d を返しました", resp.StatusCode)
	}

	var org model.Organization
	if err := json.NewDecoder(resp.Body).Decode(&org); err != nil {
		return nil, fmt.Errorf("組織応答のパースに失敗しました: %w", err)
	}
	return &org, nil
}

// Forward はダッシュボードAPIへのリクエストを転送し、応答をそのまま返す。
// プロキシハンドラーから使用する。ボディは再送可能な形で渡すこと。
func (c *DashboardClient) Forward(ctx context.Context, method, path, rawQuery string, body []byte, contentType string) (*http.Response, error) {
	target := c.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("リモートAPIへの転送に失敗しました: %w", err)
	}
	return resp, nil
}
