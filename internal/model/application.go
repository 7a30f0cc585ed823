package model

import "time"

// Application はSSOに登録されたクライアントアプリケーションを表す。
type Application struct {
	ID               string
	Name             string
	URL              string
	RedirectURIs     []string // 重複排除済み、登録順を保持
	ClientID         *string
	ClientSecretHash *string
	Blocked          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AuthorizationGrant はアプリケーションとメールアドレスの組に対する認可を表す。
// Blockedはアプリケーション側・アイデンティティ側のブロックとは独立している。
type AuthorizationGrant struct {
	ApplicationID string
	Email         string
	Blocked       bool
	GrantedAt     time.Time
}

// ApplicationWithGrants は管理画面向けにアプリケーションと認可一覧をまとめたもの。
type ApplicationWithGrants struct {
	Application
	Grants []AuthorizationGrant
}

// RemovalLogEntry は認可削除の監査記録。書き込み後は変更しない。
type RemovalLogEntry struct {
	ID              string
	ApplicationID   string
	ApplicationName string
	UserEmail       string // 削除された認可のメールアドレス
	ActorEmail      string
	ActorName       string
	RemovedAt       time.Time
}
