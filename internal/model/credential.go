package model

import "time"

// ScopeKind はAPIキーの所有者種別を表す。
type ScopeKind string

const (
	ScopeApplication ScopeKind = "application"
	ScopeIdentity    ScopeKind = "identity"
)

// KeyScope はAPIキーの所有スコープ。
type KeyScope struct {
	Kind ScopeKind
	ID   string
}

// APIKey は長期利用のAPIキーのメタデータ。
// 平文は発行時のレスポンスでのみ返し、保存するのはハッシュのみ。
type APIKey struct {
	ID         string
	Scope      KeyScope
	Name       string
	Prefix     string
	KeyHash    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// RefreshCredential はリフレッシュトークンの永続化レコード。
// 同一ログインセッションのトークンは同じChainIDを共有する。
type RefreshCredential struct {
	ID          string
	IdentityID  string
	ChainID     string
	SecretHash  string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
	RevokedAt   *time.Time
	SuccessorID *string
}

// IsExpired はnow時点で期限切れかどうかを返す。
func (c *RefreshCredential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsSuperseded はローテーション済みかどうかを返す。
func (c *RefreshCredential) IsSuperseded() bool {
	return c.SuccessorID != nil
}
