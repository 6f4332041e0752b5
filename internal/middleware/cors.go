package middleware

import "net/http"

// NewCORSMiddleware は単一のダッシュボードオリジンに対するCORSミドルウェアを返す。
// クッキー（CSRFトークン）を伴うリクエストと共存するため、ワイルドカード(*)は
// 使用せず、許可オリジンと一致するOriginヘッダーにのみCORSヘッダーを付与する。
// Originヘッダーを持たないリクエスト（curl等の直接アクセス）はそのまま通過させる。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// キャッシュがオリジンごとにレスポンスを区別できるようにする
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == allowedOrigin {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allowedOrigin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token, X-Request-ID")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
				h.Set("Access-Control-Max-Age", "86400")
			}

			// OPTIONSプリフライトリクエストには204で応答
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
