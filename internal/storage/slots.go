// Package storage はセッションの永続化スロットを提供する。
// 永続化されるのはシリアライズ済みユーザー、アクセストークン、
// リフレッシュトークンの独立した3スロットのみで、クリア時は
// 3つすべてを同時に消去する。
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitoshi/planboard/internal/model"
)

// sessionFileName はセッションスロットを保存するファイル名。
const sessionFileName = "session.json"

// PersistedSession は永続化された3スロットの内容を表す。
// 存在しないスロットはゼロ値になる。
type PersistedSession struct {
	User         *model.User `json:"user,omitempty"`
	AccessToken  string      `json:"access_token,omitempty"`
	RefreshToken string      `json:"refresh_token,omitempty"`
}

// Slots はセッション永続化スロットへのアクセスを抽象化する。
// セッションストア以外のコンポーネントから書き込んではならない。
type Slots interface {
	// Load は永続化されたセッションを読み込む。
	// スロットが存在しない場合は空のPersistedSessionを返す（エラーではない）。
	Load() (*PersistedSession, error)
	// SaveUser はユーザースロットのみを書き換える。
	SaveUser(user *model.User) error
	// SaveTokens はトークン2スロットのみを書き換える。
	SaveTokens(access, refresh string) error
	// Clear は3スロットすべてを同時に消去する。
	// スロットが既に空の場合もエラーにしない。
	Clear() error
}

// FileSlots はローカルファイルにセッションスロットを保存する実装。
// ブラウザのlocalStorageに相当するキースペースを単一のJSONファイル
// （パーミッション0600）として保持する。
type FileSlots struct {
	mu   sync.Mutex
	path string
}

// NewFileSlots は指定ディレクトリ配下にセッションファイルを保存する
// FileSlotsを生成する。ディレクトリが存在しない場合は作成する。
func NewFileSlots(dir string) (*FileSlots, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("状態ディレクトリの作成に失敗しました: %w", err)
	}
	return &FileSlots{path: filepath.Join(dir, sessionFileName)}, nil
}

// Load は永続化されたセッションを読み込む。
func (f *FileSlots) Load() (*PersistedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &PersistedSession{}, nil
		}
		return nil, fmt.Errorf("セッションファイルの読み取りに失敗しました: %w", err)
	}

	var persisted PersistedSession
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("セッションファイルのパースに失敗しました: %w", err)
	}
	return &persisted, nil
}

// SaveUser はユーザースロットのみを書き換える。
func (f *FileSlots) SaveUser(user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.update(func(p *PersistedSession) {
		p.User = user
	})
}

// SaveTokens はトークン2スロットのみを書き換える。
func (f *FileSlots) SaveTokens(access, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.update(func(p *PersistedSession) {
		p.AccessToken = access
		p.RefreshToken = refresh
	})
}

// Clear は3スロットすべてを同時に消去する。
func (f *FileSlots) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("セッションファイルの削除に失敗しました: %w", err)
	}
	return nil
}

// update は現在の内容を読み込み、変更を適用して原子的に書き戻す。
// 呼び出し元がロックを保持していること。
func (f *FileSlots) update(apply func(*PersistedSession)) error {
	persisted := &PersistedSession{}
	if data, err := os.ReadFile(f.path); err == nil {
		// 壊れたファイルは空として扱い、上書きで復旧する
		_ = json.Unmarshal(data, persisted)
	}

	apply(persisted)

	data, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("セッションのシリアライズに失敗しました: %w", err)
	}

	// 部分書き込みを避けるため一時ファイルに書いてからリネームする
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("セッションファイルの書き込みに失敗しました: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("セッションファイルの更新に失敗しました: %w", err)
	}
	return nil
}
