// Package session はセッション状態の保持とライフサイクル管理を提供する。
// Storeが唯一の共有可変状態であり、書き込みはManagerと
// トークンリフレッシュ経路のコミットに限定される。
package session

import (
	"sync"

	"github.com/hitoshi/planboard/internal/model"
	"github.com/hitoshi/planboard/internal/storage"
)

// Snapshot はある時点のセッション状態の一貫したコピー。
// 読み取り側（Resolver、Guard、ハンドラー）は常にSnapshotを通して
// 完全な形のUser/Organizationを観測し、部分更新を観測しない。
type Snapshot struct {
	User         *model.User
	Organization *model.Organization
	Loaded       bool // 起動時のセッション復元が完了したかどうか
}

// Authenticated はログイン済みかどうかを返す。
func (s Snapshot) Authenticated() bool {
	return s.User != nil
}

// Store は現在のユーザー・組織・トークンペアを保持し、永続化スロットと
// 同期する。ミューテックスで保護され、変更は常にオブジェクト全体の
// 置き換えとして行われる。
//
// epochはClearまたはセッション全置換のたびに進む世代カウンター。
// リフレッシュ応答のコミット時に取得時のepochと照合することで、
// ログアウト後に到着した古いリフレッシュ結果がセッションを
// 復活させることを防ぐ。
type Store struct {
	mu     sync.RWMutex
	slots  storage.Slots
	user   *model.User
	org    *model.Organization
	tokens model.TokenPair
	loaded bool
	epoch  uint64
}

// NewStore は指定の永続化スロットと同期するStoreを生成する。
func NewStore(slots storage.Slots) *Store {
	return &Store{slots: slots}
}

// RestoreFromSlots は永続化スロットからユーザーとトークンを
// メモリに読み込み、復元されたユーザーを返す。
// スロットが空の場合は(nil, nil)を返す。loadedフラグは変更しない
// （組織の取得まで含めた復元完了はManagerがMarkLoadedで通知する）。
func (s *Store) RestoreFromSlots() (*model.User, error) {
	persisted, err := s.slots.Load()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = persisted.User
	s.org = nil
	s.tokens = model.TokenPair{
		AccessToken:  persisted.AccessToken,
		RefreshToken: persisted.RefreshToken,
	}
	return persisted.User, nil
}

// SetSession はログイン成功時にセッション全体を置き換え、永続化する。
// 置き換えによりepochが進み、以前のセッションに対する進行中の
// リフレッシュ結果は無効になる。
func (s *Store) SetSession(user *model.User, org *model.Organization, tokens model.TokenPair) error {
	s.mu.Lock()
	s.user = user
	s.org = org
	s.tokens = tokens
	s.epoch++
	s.mu.Unlock()

	if err := s.slots.SaveUser(user); err != nil {
		return err
	}
	return s.slots.SaveTokens(tokens.AccessToken, tokens.RefreshToken)
}

// SetUser はユーザーを全体置換し、ユーザースロットを再永続化する。
func (s *Store) SetUser(user *model.User) error {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return s.slots.SaveUser(user)
}

// SetOrganization は組織を全体置換する。
// 組織は永続化対象スロットではないためメモリのみ更新する。
func (s *Store) SetOrganization(org *model.Organization) {
	s.mu.Lock()
	s.org = org
	s.mu.Unlock()
}

// MarkLoaded は起動時のセッション復元完了を記録する。
func (s *Store) MarkLoaded() {
	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
}

// Clear はメモリ上のセッション状態を無条件に消去し、
// 永続化スロット3つを同時にクリアする。epochが進むため、
// 進行中のリフレッシュ結果のコミットは以後拒否される。
// メモリの消去はスロットのクリアが失敗しても必ず行われる。
func (s *Store) Clear() error {
	s.mu.Lock()
	s.user = nil
	s.org = nil
	s.tokens = model.TokenPair{}
	s.epoch++
	s.mu.Unlock()

	return s.slots.Clear()
}

// BearerTokens は送信時点の現在のトークンペアと観測epochを返す。
// Authorizationヘッダーは必ずこの値から構築する（クロージャに
// 閉じ込めた古いトークンを使ってはならない）。
func (s *Store) BearerTokens() (access, refresh string, epoch uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken, s.tokens.RefreshToken, s.epoch
}

// CommitRefreshedTokens はリフレッシュ成功時の新しいトークンペアを
// コミットする。取得時のepochと現在のepochが一致しない場合
// （その間にログアウトや再ログインが起きた場合）はコミットを拒否し
// falseを返す。コミット成功時はトークンスロットを再永続化する。
// 永続化の失敗はメモリのコミットを取り消さない（エラーとして返す）。
func (s *Store) CommitRefreshedTokens(epoch uint64, access, refresh string) (bool, error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false, nil
	}
	s.tokens = model.TokenPair{AccessToken: access, RefreshToken: refresh}
	s.mu.Unlock()

	return true, s.slots.SaveTokens(access, refresh)
}

// Snapshot は現在のセッション状態の一貫したコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		User:         s.user,
		Organization: s.org,
		Loaded:       s.loaded,
	}
}
