package model

import (
	"net/mail"
	"strings"
	"time"
)

// Role はアイデンティティの権限区分を表す。
type Role string

const (
	RoleMember        Role = "member"
	RoleAdministrator Role = "administrator"
)

// ParseRole は文字列をRoleに変換する。
// 旧クライアントが送る "student" / "admin" も受け付ける。
func ParseRole(s string) (Role, bool) {
	switch s {
	case "member", "student":
		return RoleMember, true
	case "administrator", "admin":
		return RoleAdministrator, true
	default:
		return "", false
	}
}

// Status はアイデンティティの利用状態を表す。
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// ParseStatus は文字列をStatusに変換する。
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusSuspended:
		return Status(s), true
	default:
		return "", false
	}
}

// Identity はSSOに登録された利用者を表す。
// 物理削除は行わず、Statusの遷移で利用停止を表現する。
type Identity struct {
	ID           string
	Name         string
	Email        string // 小文字に正規化済み
	PasswordHash string
	Role         Role
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin は管理者かどうかを返す。
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdministrator
}

// IsActive は利用可能な状態かどうかを返す。
func (i *Identity) IsActive() bool {
	return i.Status == StatusActive
}

// Principal は検証済みアクセストークンから得られる呼び出し元の情報。
type Principal struct {
	IdentityID string
	Email      string
	Role       Role
	SessionID  string
	ExpiresAt  time.Time
}

// IsAdmin はトークン上のロールが管理者かどうかを返す。
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdministrator
}

// NormalizeEmail はメールアドレスを検証し、前後の空白を除いた小文字表現を返す。
// 表示名付きの形式（"Alice <a@example.com>"）は受け付けない。
func NormalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", false
	}
	return email, true
}
