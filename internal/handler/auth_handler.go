// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/planboard/internal/access"
	"github.com/hitoshi/planboard/internal/middleware"
	"github.com/hitoshi/planboard/internal/model"
	"github.com/hitoshi/planboard/internal/policy"
	"github.com/hitoshi/planboard/internal/session"
)

// SessionServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
// session.Managerの部分集合として定義する。
type SessionServiceInterface interface {
	Login(ctx context.Context, email, password string) (*model.User, error)
	Logout(ctx context.Context)
	Snapshot() session.Snapshot
}

// AuthHandler はログイン・ログアウト・セッション照会のHTTPハンドラー。
type AuthHandler struct {
	service SessionServiceInterface
	logger  *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service SessionServiceInterface, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse は/auth/meと/auth/loginのレスポンスボディ。
// 正規化済みロールとサブスクリプション階層を含むため、
// フロントエンドでの再解釈は不要。
type sessionResponse struct {
	User         *model.User         `json:"user"`
	Organization *model.Organization `json:"organization,omitempty"`
	Role         model.Role          `json:"role"`
	Tier         model.Tier          `json:"tier,omitempty"`
}

// newSessionResponse はユーザーと組織からレスポンスを構築する。
// userは呼び出し元が非nilを保証する。
func newSessionResponse(user *model.User, org *model.Organization) sessionResponse {
	resp := sessionResponse{
		User:         user,
		Organization: org,
		Role:         access.NormalizeRole(user.RawRole),
	}
	if org != nil {
		resp.Tier = policy.TierForLabel(org.TierLabel)
	}
	return resp
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login
// 成功時は確立されたセッションの内容を返す。
// 失敗時はセッション状態を一切変更しない。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, r, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディをJSONとして解釈できません"))
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		middleware.WriteErrorResponse(w, r, http.StatusBadRequest, model.NewInvalidRequestError("emailとpasswordは必須です"))
		return
	}

	user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	h.logger.Info("ログインに成功しました",
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("user_id", user.ID),
	)

	// レスポンスはLoginが返したユーザーから構築する。スナップショットの
	// 再読では直後のログアウト・失効と競合した場合にユーザーが消えている
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newSessionResponse(user, h.service.Snapshot().Organization))
}

// Logout はセッションを終了する。ローカルのログアウトは常に成功する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザーを返す。
// GET /auth/me
// 復元完了前は503、未ログインなら401を返す。
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Snapshot()

	if !snap.Loaded {
		middleware.WriteErrorResponse(w, r, http.StatusServiceUnavailable, model.NewSessionNotReadyError())
		return
	}
	if !snap.Authenticated() {
		middleware.WriteErrorResponse(w, r, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newSessionResponse(snap.User, snap.Organization))
}

// SessionState は起動時のセッション復元状態を返すポーリング用エンドポイント。
// GET /auth/session
// フロントエンドはloadedがtrueになるまで保護画面の描画を保留する。
func (h *AuthHandler) SessionState(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{
		"loaded":        snap.Loaded,
		"authenticated": snap.Authenticated(),
	})
}

// writeAuthError はログイン経路のエラーをHTTPステータスに対応付ける。
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeInvalidCredentials:
			middleware.WriteErrorResponse(w, r, http.StatusUnauthorized, apiErr)
			return
		case model.ErrCodeUpstreamUnavailable:
			middleware.WriteErrorResponse(w, r, http.StatusBadGateway, apiErr)
			return
		}
	}

	h.logger.Error("ログインに失敗しました",
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteErrorResponse(w, r, http.StatusBadGateway, model.NewUpstreamUnavailableError("ログイン処理を完了できませんでした"))
}
