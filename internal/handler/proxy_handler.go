package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/planboard/internal/middleware"
	"github.com/hitoshi/planboard/internal/model"
)

// maxProxyBodyBytes は中継するリクエストボディの上限サイズ。
const maxProxyBodyBytes = 4 << 20 // 4MiB

// ForwarderInterface はプロキシハンドラーが必要とする上流転送の
// インターフェース。remote.DashboardClientの部分集合として定義する。
// 転送はリフレッシュインターセプター経由で行われ、失効した
// アクセストークンは透過的に回復される。
type ForwarderInterface interface {
	Forward(ctx context.Context, method, path, rawQuery string, body []byte, contentType string) (*http.Response, error)
}

// SanitizerInterface はレスポンス中のリッチテキストのサニタイズを行う。
// security.ContentSanitizerServiceの部分集合として定義する。
type SanitizerInterface interface {
	SanitizeJSON(payload []byte) []byte
}

// ProxyMetrics はプロキシが記録するメトリクスのインターフェース。
type ProxyMetrics interface {
	RecordUpstreamStatus(statusCode int)
	RecordProxyLatency(duration time.Duration)
}

// ProxyHandler はガードを通過したリクエストを上流のスケジューリングAPIへ
// 中継するハンドラー。認可はルーティング側のガードミドルウェアが行うため、
// ここでは転送とレスポンスの後処理のみを担当する。
type ProxyHandler struct {
	forwarder ForwarderInterface
	sanitizer SanitizerInterface
	metrics   ProxyMetrics
	logger    *slog.Logger
}

// NewProxyHandler はProxyHandlerを生成する。
func NewProxyHandler(forwarder ForwarderInterface, sanitizer SanitizerInterface, metrics ProxyMetrics, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		forwarder: forwarder,
		sanitizer: sanitizer,
		metrics:   metrics,
		logger:    logger,
	}
}

// ServeHTTP はリクエストを上流へ転送し、レスポンスをそのまま返す。
// 上流のステータスコードは変換せずに中継する。ただしセッション失効は
// 401 SESSION_EXPIREDとして返し、フロントエンドに再ログインを促す。
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBodyBytes+1))
	if err != nil {
		middleware.WriteErrorResponse(w, r, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディを読み取れません"))
		return
	}
	if len(body) > maxProxyBodyBytes {
		middleware.WriteErrorResponse(w, r, http.StatusRequestEntityTooLarge, model.NewInvalidRequestError("リクエストボディが大きすぎます"))
		return
	}

	start := time.Now()
	resp, err := h.forwarder.Forward(r.Context(), r.Method, r.URL.Path, r.URL.RawQuery, body, r.Header.Get("Content-Type"))
	if err != nil {
		if model.IsSessionExpired(err) {
			middleware.WriteErrorResponse(w, r, http.StatusUnauthorized, model.NewSessionExpiredError())
			return
		}
		h.logger.Error("上流へのリクエストに失敗しました",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, r, http.StatusBadGateway, model.NewUpstreamUnavailableError("上流サービスに接続できません"))
		return
	}
	defer resp.Body.Close()

	h.metrics.RecordProxyLatency(time.Since(start))
	h.metrics.RecordUpstreamStatus(resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logger.Error("上流レスポンスの読み取りに失敗しました",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, r, http.StatusBadGateway, model.NewUpstreamUnavailableError("上流レスポンスの読み取りに失敗しました"))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	// JSONレスポンスのリッチテキストフィールドをサニタイズしてから返す
	if strings.HasPrefix(contentType, "application/json") {
		respBody = h.sanitizer.SanitizeJSON(respBody)
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(respBody); err != nil {
		h.logger.Warn("プロキシレスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}
