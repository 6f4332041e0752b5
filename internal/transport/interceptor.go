// Package transport はリモートAPIへの全呼び出しを包む
// トークンリフレッシュインターセプターを提供する。
// 送信時点の現在のアクセストークンをBearer資格情報として付与し、
// 認可失敗（401）に対して1回限りのリフレッシュ・再送プロトコルを実行する。
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/planboard/internal/model"
)

// defaultRefreshLeeway は先読みリフレッシュの猶予時間のデフォルト値。
const defaultRefreshLeeway = 30 * time.Second

// attemptState は論理呼び出しごとのリトライ状態。
// 可変なフラグではなく明示的な状態として持ち回ることで、
// 「リフレッシュは呼び出しごとに最大1回」を構造的に保証する。
type attemptState int

const (
	// attemptFirst は初回送信。401を受けた場合のみリフレッシュを試みる。
	attemptFirst attemptState = iota
	// attemptRetried はリフレッシュ後の再送済み。以後の401は端末的として伝播する。
	attemptRetried
)

var (
	// errNoRefreshToken はリフレッシュトークンが存在しない状態での認可失敗。
	errNoRefreshToken = errors.New("リフレッシュトークンがありません")
	// errRefreshSuperseded はリフレッシュ中にログアウト等でセッション世代が
	// 進み、結果のコミットが拒否されたことを表す。
	errRefreshSuperseded = errors.New("リフレッシュ結果はセッションの変更により破棄されました")
)

// TokenStore はインターセプターが参照するトークン状態のインターフェース。
// session.Storeの部分集合として定義する。
type TokenStore interface {
	BearerTokens() (access, refresh string, epoch uint64)
	CommitRefreshedTokens(epoch uint64, access, refresh string) (bool, error)
	Clear() error
}

// Refresher はリフレッシュエンドポイント呼び出しのインターフェース。
// remote.AuthClientの部分集合として定義する。
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error)
}

// Metrics はインターセプターが記録するメトリクスのインターフェース。
type Metrics interface {
	RecordRefreshSuccess()
	RecordRefreshFailure()
	RecordRefreshDeduped()
	RecordSessionExpired()
}

// refreshCall は進行中のリフレッシュ1回分の共有ハンドル。
// 同時に複数の呼び出しが401を受けた場合、全員が同一のハンドルを
// 待機することでリフレッシュエンドポイントの呼び出しを1回に絞る。
type refreshCall struct {
	done   chan struct{}
	access string
	err    error
}

// Config はインターセプターの設定。
type Config struct {
	// RefreshLeeway はJWT形式のアクセストークンに対する先読み
	// リフレッシュの猶予時間。失効までの残りがこれを下回ると
	// 送信前にリフレッシュする。0の場合はデフォルト値を使用する。
	RefreshLeeway time.Duration
}

// Interceptor はhttp.RoundTripperとして動作するトークンリフレッシュ
// インターセプター。
type Interceptor struct {
	base      http.RoundTripper
	store     TokenStore
	refresher Refresher
	metrics   Metrics
	logger    *slog.Logger
	leeway    time.Duration
	onExpired func() // セッション失効の通知フック（nil可）

	mu      sync.Mutex
	pending *refreshCall
}

// NewInterceptor はInterceptorを生成する。baseがnilの場合は
// http.DefaultTransportを使用する。
func NewInterceptor(
	base http.RoundTripper,
	store TokenStore,
	refresher Refresher,
	metrics Metrics,
	logger *slog.Logger,
	config Config,
) *Interceptor {
	if base == nil {
		base = http.DefaultTransport
	}
	leeway := config.RefreshLeeway
	if leeway <= 0 {
		leeway = defaultRefreshLeeway
	}
	return &Interceptor{
		base:      base,
		store:     store,
		refresher: refresher,
		metrics:   metrics,
		logger:    logger,
		leeway:    leeway,
	}
}

// SetExpiredHook はセッション失効時に呼び出される通知フックを設定する。
// 配線時に1度だけ呼び出すこと。
func (i *Interceptor) SetExpiredHook(hook func()) {
	i.onExpired = hook
}

// RoundTrip はリクエストに現在のアクセストークンを付与して送信する。
// 401応答に対しては呼び出しごとに最大1回のリフレッシュと再送を行い、
// リフレッシュ不能な場合はセッションを破棄してSESSION_EXPIREDを返す。
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	access, refresh, _ := i.store.BearerTokens()

	// 先読みリフレッシュ: アクセストークンがJWTとして解釈でき、
	// 失効間近であれば401を待たずにリフレッシュする。
	// 不透明トークンはこの判定をスキップし、401検出に任せる。
	if access != "" && refresh != "" && i.nearExpiry(access) {
		refreshed, err := i.sharedRefresh(ctx, access)
		if err != nil {
			return nil, i.refreshFailure(err)
		}
		access = refreshed
	}

	attempt := attemptFirst
	for {
		out := req.Clone(ctx)
		if access != "" {
			out.Header.Set("Authorization", "Bearer "+access)
		}
		if attempt == attemptRetried && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("再送用ボディの取得に失敗しました: %w", err)
			}
			out.Body = body
		}

		resp, err := i.base.RoundTrip(out)
		if err != nil {
			// 認可以外の失敗はそのまま呼び出し元に伝播する
			return nil, err
		}

		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}

		if attempt == attemptRetried {
			// リフレッシュ・再送後の2度目の401は端末的として
			// 再リフレッシュせずに伝播する（無限ループ防止）
			i.logger.Warn("リフレッシュ後の再送でも認可に失敗しました",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
			)
			return resp, nil
		}

		if req.Body != nil && req.GetBody == nil {
			// ボディを再送できない呼び出しはリフレッシュせず401を返す
			i.logger.Warn("ボディが再送不能なため再送をスキップします",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
			)
			return resp, nil
		}

		drainAndClose(resp.Body)

		refreshed, err := i.sharedRefresh(ctx, access)
		if err != nil {
			return nil, i.refreshFailure(err)
		}
		access = refreshed
		attempt = attemptRetried
	}
}

// sharedRefresh はリフレッシュを実行する。進行中のリフレッシュが
// 存在する場合は新たに開始せず、その結果を待機して共有する。
// observedAccessは呼び出し元が401を観測した時点のアクセストークンで、
// 他の呼び出しによるリフレッシュが既に完了している場合は
// 新たなリフレッシュを開始せずに現在のトークンをそのまま返す。
func (i *Interceptor) sharedRefresh(ctx context.Context, observedAccess string) (string, error) {
	i.mu.Lock()
	if call := i.pending; call != nil {
		i.mu.Unlock()
		i.metrics.RecordRefreshDeduped()
		select {
		case <-call.done:
			return call.access, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	// リーダーとして開始する前に、直前に完了した別のリフレッシュを
	// 取りこぼしていないか最新のトークン状態を確認する
	access, refresh, epoch := i.store.BearerTokens()
	if access != observedAccess && access != "" {
		i.mu.Unlock()
		return access, nil
	}
	if refresh == "" {
		i.mu.Unlock()
		return "", errNoRefreshToken
	}

	call := &refreshCall{done: make(chan struct{})}
	i.pending = call
	i.mu.Unlock()

	// リフレッシュは複数の呼び出しが共有する処理のため、個々の
	// リクエストのコンテキスト中断に巻き込まれないよう切り離して実行する
	call.access, call.err = i.doRefresh(context.WithoutCancel(ctx), refresh, epoch)

	i.mu.Lock()
	i.pending = nil
	i.mu.Unlock()
	close(call.done)

	return call.access, call.err
}

// doRefresh はリフレッシュエンドポイントを呼び出し、成功した場合は
// 新しいトークンペアをストアにコミットする。取得時のepochからセッション
// 世代が進んでいた場合、結果は破棄される（ログアウト競合の防止）。
func (i *Interceptor) doRefresh(ctx context.Context, refreshToken string, epoch uint64) (string, error) {
	pair, err := i.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		i.metrics.RecordRefreshFailure()
		return "", fmt.Errorf("トークンのリフレッシュに失敗しました: %w", err)
	}

	committed, persistErr := i.store.CommitRefreshedTokens(epoch, pair.AccessToken, pair.RefreshToken)
	if !committed {
		return "", errRefreshSuperseded
	}
	if persistErr != nil {
		i.logger.Warn("リフレッシュ後のトークン永続化に失敗しました",
			slog.String("error", persistErr.Error()),
		)
	}

	i.metrics.RecordRefreshSuccess()
	return pair.AccessToken, nil
}

// refreshFailure はsharedRefreshの失敗を呼び出し元へのエラーに変換する。
// 呼び出し側のコンテキスト中断はそのリクエスト固有の事情であり、
// セッション自体が回復不能になったわけではないため、失効処理をせずに
// そのまま伝播する。それ以外の失敗（リフレッシュトークン欠如、
// リフレッシュエンドポイントの失敗）はセッションを破棄する。
func (i *Interceptor) refreshFailure(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return i.expireSession(err)
}

// expireSession はセッションを回復不能と判断し、ローカルの
// セッション状態と永続化スロットをすべて破棄する。
// 呼び出し元にはSESSION_EXPIREDエラーが伝播し、UIはログイン画面へ
// 遷移する（既にログイン画面の場合を除く。遷移の判断はUI側で行う）。
func (i *Interceptor) expireSession(cause error) error {
	if err := i.store.Clear(); err != nil {
		i.logger.Error("セッションスロットのクリアに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	i.logger.Warn("セッションが失効しました",
		slog.String("cause", cause.Error()),
	)
	i.metrics.RecordSessionExpired()
	if i.onExpired != nil {
		i.onExpired()
	}

	return fmt.Errorf("%w: %v", model.NewSessionExpiredError(), cause)
}

// nearExpiry はアクセストークンがJWTとして解釈でき、かつ失効までの
// 残り時間が猶予を下回るかどうかを判定する。署名は検証しない
// （検証はリモートサービスの責務であり、ここでは失効時刻のみ参照する）。
func (i *Interceptor) nearExpiry(access string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < i.leeway
}

// drainAndClose は再送前に応答ボディを読み捨てて閉じ、
// コネクションを再利用可能にする。
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
