package model

// TokenPair はリモートAPIが発行するアクセストークンと
// リフレッシュトークンの組を表す。両方が空の場合は未ログイン状態。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IsEmpty は両方のトークンが未設定かどうかを返す。
func (t TokenPair) IsEmpty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}
