package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, authz, entitlement, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeSessionExpired      = "SESSION_EXPIRED"
	ErrCodeSessionNotReady     = "SESSION_NOT_READY"
	ErrCodeNotAuthenticated    = "NOT_AUTHENTICATED"
	ErrCodeRoleMismatch        = "ROLE_MISMATCH"
	ErrCodePermissionDenied    = "PERMISSION_DENIED"
	ErrCodeTierInsufficient    = "TIER_INSUFFICIENT"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// NewInvalidCredentialsError はログイン認証失敗エラーを生成する。
// セッション状態は一切変更されない（呼び出し元に表示されるのみ）。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewSessionExpiredError はセッション失効エラーを生成する。
// リフレッシュが失敗したか、リフレッシュトークンが存在しない場合に発生し、
// ローカルのセッション状態はすべて破棄済みであることを示す。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewSessionNotReadyError はセッション復元中エラーを生成する。
func NewSessionNotReadyError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotReady,
		Message:  "セッションを復元しています。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNotAuthenticatedError は未ログインエラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewRoleMismatchError はロール不一致による認可エラーを生成する。
// セッションには影響しない（その場のアクセス拒否表示のみ）。
func NewRoleMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeRoleMismatch,
		Message:  "この画面へのアクセスに必要なロールがありません。",
		Category: "authz",
		Action:   "組織の管理者にロールの変更を依頼してください。",
	}
}

// NewPermissionDeniedError はパーミッション欠如による認可エラーを生成する。
func NewPermissionDeniedError(perm Permission) *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  fmt.Sprintf("この操作に必要な権限がありません: %s", perm),
		Category: "authz",
		Action:   "組織の管理者に権限の付与を依頼してください。",
	}
}

// NewTierInsufficientError はサブスクリプション階層不足エラーを生成する。
// UIではアップグレード案内として表示される（セッションには影響しない）。
func NewTierInsufficientError(feature Feature) *APIError {
	return &APIError{
		Code:     ErrCodeTierInsufficient,
		Message:  fmt.Sprintf("この機能は現在のプランでは利用できません: %s", feature),
		Category: "entitlement",
		Action:   "上位プランへのアップグレードをご検討ください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUpstreamUnavailableError はリモートAPI呼び出し失敗エラーを生成する。
func NewUpstreamUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("スケジューリングサービスとの通信に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// codeOf はエラーチェーンからAPIErrorのコードを取り出す。
// APIErrorでない場合は空文字列を返す。
func codeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsAuthenticationError はログイン認証失敗エラーかどうかを判定する。
func IsAuthenticationError(err error) bool {
	return codeOf(err) == ErrCodeInvalidCredentials
}

// IsSessionExpired はセッション失効エラーかどうかを判定する。
func IsSessionExpired(err error) bool {
	return codeOf(err) == ErrCodeSessionExpired
}

// IsAuthorizationError はロール・パーミッションによる認可エラーかどうかを判定する。
func IsAuthorizationError(err error) bool {
	code := codeOf(err)
	return code == ErrCodeRoleMismatch || code == ErrCodePermissionDenied
}

// IsEntitlementError はサブスクリプション階層不足エラーかどうかを判定する。
func IsEntitlementError(err error) bool {
	return codeOf(err) == ErrCodeTierInsufficient
}
