// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/ssogate/internal/model"
)

// IdentityRepository は利用者データの永続化インターフェース。
type IdentityRepository interface {
	// Create はアイデンティティを作成する。メールアドレス重複時はErrDuplicateを返す。
	Create(ctx context.Context, identity *model.Identity) error

	// FindByID は指定IDのアイデンティティを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）で検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Identity, error)

	// List は全アイデンティティを作成日時順に返す。
	List(ctx context.Context) ([]*model.Identity, error)

	// UpdateProfile は表示名とメールアドレスを更新する。
	// 対象が存在しない場合はErrNotFound、メールアドレス重複時はErrDuplicateを返す。
	UpdateProfile(ctx context.Context, id, name, email string, updatedAt time.Time) error

	// UpdateRole はロールを更新する。対象が存在しない場合はErrNotFoundを返す。
	UpdateRole(ctx context.Context, id string, role model.Role, updatedAt time.Time) error

	// UpdateStatus は利用状態を更新する。対象が存在しない場合はErrNotFoundを返す。
	UpdateStatus(ctx context.Context, id string, status model.Status, updatedAt time.Time) error
}

// ApplicationRepository はクライアントアプリケーションの永続化インターフェース。
type ApplicationRepository interface {
	// Create はアプリケーションを作成する。client_id重複時はErrDuplicateを返す。
	Create(ctx context.Context, app *model.Application) error

	// FindByID は指定IDのアプリケーションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)

	// ListWithGrants は全アプリケーションを名前順に、認可一覧付きで返す。
	ListWithGrants(ctx context.Context) ([]model.ApplicationWithGrants, error)

	// Update は名前・URL・リダイレクトURIを更新する。対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, app *model.Application) error

	// UpdateClientCredentials はclient_idとclient_secretのハッシュを更新する。
	UpdateClientCredentials(ctx context.Context, id, clientID, secretHash string, updatedAt time.Time) error

	// SetBlocked はアプリケーションのブロック状態を更新する。対象が存在しない場合はErrNotFoundを返す。
	SetBlocked(ctx context.Context, id string, blocked bool, updatedAt time.Time) error

	// Delete はアプリケーションと、それに紐づく認可・APIキーを同一トランザクションで削除する。
	// 削除された認可の一覧を返す。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) ([]model.AuthorizationGrant, error)
}

// GrantRepository は認可（アプリケーション×メールアドレス）の永続化インターフェース。
type GrantRepository interface {
	// Upsert は認可をblocked=falseで作成または更新する。冪等。
	Upsert(ctx context.Context, grant *model.AuthorizationGrant) (*model.AuthorizationGrant, error)

	// Find は認可を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, applicationID, email string) (*model.AuthorizationGrant, error)

	// SetBlocked は認可のブロック状態を更新する。対象が存在しない場合はErrNotFoundを返す。
	SetBlocked(ctx context.Context, applicationID, email string, blocked bool) error

	// DeleteWithRemovalLog は認可を削除し、同一トランザクションで削除ログを1件追加する。
	// 認可が存在しない場合はErrNotFoundを返し、ログは書き込まない。
	DeleteWithRemovalLog(ctx context.Context, applicationID, email string, entry *model.RemovalLogEntry) error

	// ListAuthorizedApplications はブロックされていない認可があり、
	// かつブロックされていないアプリケーションを名前順に返す。
	ListAuthorizedApplications(ctx context.Context, email string) ([]*model.Application, error)
}

// APIKeyRepository はAPIキーの永続化インターフェース。
type APIKeyRepository interface {
	// Create はAPIキーを作成する。同一スコープ内の名前重複時はErrDuplicateを返す。
	Create(ctx context.Context, key *model.APIKey) error

	// FindByID は指定IDのキーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.APIKey, error)

	// FindByHash はキーハッシュで検索する。見つからない場合はnilを返す。
	FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error)

	// ListByScope はスコープに属するキーを作成日時順に返す。
	ListByScope(ctx context.Context, scope model.KeyScope) ([]*model.APIKey, error)

	// Delete はキーを物理削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// Touch はlast_used_atを更新する。
	Touch(ctx context.Context, id string, usedAt time.Time) error
}

// RefreshCredentialRepository はリフレッシュトークンの永続化インターフェース。
type RefreshCredentialRepository interface {
	// Create はリフレッシュトークンを保存する。
	Create(ctx context.Context, cred *model.RefreshCredential) error

	// FindByID は指定IDのトークンを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.RefreshCredential, error)

	// Rotate はcurrentIDのトークンに後継を設定し、後継トークンを保存する。
	// 未ローテーションかつ未失効の場合のみ成功する（compare-and-swap）。
	// 条件を満たさない場合はErrAlreadyRotatedを返す。
	Rotate(ctx context.Context, currentID string, next *model.RefreshCredential) error

	// RevokeChain はチェーンに属する全トークンを失効させ、失効した件数を返す。冪等。
	RevokeChain(ctx context.Context, chainID string, revokedAt time.Time) (int64, error)

	// RevokeByIdentity はアイデンティティの全トークンを失効させ、失効した件数を返す。
	RevokeByIdentity(ctx context.Context, identityID string, revokedAt time.Time) (int64, error)
}

// RemovalLogRepository は認可削除ログの永続化インターフェース。追記のみ。
type RemovalLogRepository interface {
	// Append はログを1件追加する。
	Append(ctx context.Context, entry *model.RemovalLogEntry) error

	// List は新しい順にログを返す。limitが0以下の場合は全件返す。
	List(ctx context.Context, limit int) ([]*model.RemovalLogEntry, error)
}
