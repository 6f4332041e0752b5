package guard

import (
	"net/http"

	"github.com/hitoshi/planboard/internal/middleware"
	"github.com/hitoshi/planboard/internal/model"
	"github.com/hitoshi/planboard/internal/session"
)

// SnapshotSource は現在のセッションスナップショットの取得元。
// session.Storeの部分集合として定義する。
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// Metrics はガード判定のメトリクス記録のインターフェース。
type Metrics interface {
	RecordGuardDecision(state model.DecisionState, reason model.DenyReason)
}

// NewGuardMiddleware は保護サーフェス1つ分の要件をルートグループに
// 適用するミドルウェアを返す。判定はリクエストごとに再評価される。
//
// 応答の対応:
//   - Pending（復元中）        → 503 SESSION_NOT_READY
//   - 未ログイン（要件あり）    → 401 NOT_AUTHENTICATED
//   - 拒否 RoleMismatch        → 403 ROLE_MISMATCH
//   - 拒否 PermissionMissing   → 403 PERMISSION_DENIED
//   - 拒否 TierInsufficient    → 403 TIER_INSUFFICIENT（アップグレード案内）
//
// 拒否はその場の表示判断でありセッションには影響しない。
func NewGuardMiddleware(source SnapshotSource, req Requirement, metrics Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := source.Snapshot()

			if !snap.Loaded {
				metrics.RecordGuardDecision(model.DecisionPending, "")
				middleware.WriteErrorResponse(w, r, http.StatusServiceUnavailable, model.NewSessionNotReadyError())
				return
			}

			if !snap.Authenticated() && !req.Empty() {
				metrics.RecordGuardDecision(model.DecisionDenied, model.DenyNotAuthenticated)
				middleware.WriteErrorResponse(w, r, http.StatusUnauthorized, model.NewNotAuthenticatedError())
				return
			}

			decision := Evaluate(snap, req)
			metrics.RecordGuardDecision(decision.State, decision.Reason)

			if decision.State != model.DecisionAllowed {
				switch decision.Reason {
				case model.DenyTierInsufficient:
					middleware.WriteErrorResponse(w, r, http.StatusForbidden, model.NewTierInsufficientError(req.Feature))
				case model.DenyPermissionMissing:
					middleware.WriteErrorResponse(w, r, http.StatusForbidden, model.NewPermissionDeniedError(req.Permission))
				default:
					middleware.WriteErrorResponse(w, r, http.StatusForbidden, model.NewRoleMismatchError())
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
