package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/ssogate/internal/model"
)

// PostgresGrantRepo はPostgreSQLを使用した認可リポジトリ。
type PostgresGrantRepo struct {
	db *sql.DB
}

// NewPostgresGrantRepo はPostgresGrantRepoを生成する。
func NewPostgresGrantRepo(db *sql.DB) *PostgresGrantRepo {
	return &PostgresGrantRepo{db: db}
}

// Upsert は認可をblocked=falseで作成または更新する。
// 既存の認可がある場合はblockedのみをfalseに戻し、granted_atは維持する。
func (r *PostgresGrantRepo) Upsert(ctx context.Context, grant *model.AuthorizationGrant) (*model.AuthorizationGrant, error) {
	result := &model.AuthorizationGrant{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO grants (application_id, identity_email, blocked, granted_at)
		 VALUES ($1, $2, false, $3)
		 ON CONFLICT (application_id, identity_email) DO UPDATE SET blocked = false
		 RETURNING application_id, identity_email, blocked, granted_at`,
		grant.ApplicationID, strings.ToLower(grant.Email), grant.GrantedAt,
	).Scan(&result.ApplicationID, &result.Email, &result.Blocked, &result.GrantedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert grant: %w", err)
	}
	return result, nil
}

// Find は認可を取得する。見つからない場合はnilを返す。
func (r *PostgresGrantRepo) Find(ctx context.Context, applicationID, email string) (*model.AuthorizationGrant, error) {
	grant := &model.AuthorizationGrant{}
	err := r.db.QueryRowContext(ctx,
		`SELECT application_id, identity_email, blocked, granted_at
		 FROM grants WHERE application_id = $1 AND identity_email = $2`,
		applicationID, strings.ToLower(email),
	).Scan(&grant.ApplicationID, &grant.Email, &grant.Blocked, &grant.GrantedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find grant: %w", err)
	}
	return grant, nil
}

// SetBlocked は認可のブロック状態を更新する。
func (r *PostgresGrantRepo) SetBlocked(ctx context.Context, applicationID, email string, blocked bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE grants SET blocked = $3 WHERE application_id = $1 AND identity_email = $2`,
		applicationID, strings.ToLower(email), blocked,
	)
	if err != nil {
		return fmt.Errorf("failed to set grant blocked: %w", err)
	}
	return requireAffected(result)
}

// DeleteWithRemovalLog は認可を削除し、同一トランザクションで削除ログを1件追加する。
// DELETEの件数が0の場合はログを書かずにロールバックする。
func (r *PostgresGrantRepo) DeleteWithRemovalLog(ctx context.Context, applicationID, email string, entry *model.RemovalLogEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM grants WHERE application_id = $1 AND identity_email = $2`,
		applicationID, strings.ToLower(email),
	)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	if err := insertRemovalLog(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListAuthorizedApplications はアクセス可能なアプリケーションを名前順に返す。
func (r *PostgresGrantRepo) ListAuthorizedApplications(ctx context.Context, email string) ([]*model.Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.name, a.url, a.redirect_uris, a.client_id, a.client_secret_hash, a.blocked, a.created_at, a.updated_at
		 FROM applications a
		 JOIN grants g ON g.application_id = a.id
		 WHERE g.identity_email = $1 AND g.blocked = false AND a.blocked = false
		 ORDER BY a.name, a.created_at`,
		strings.ToLower(email),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list authorized applications: %w", err)
	}
	defer rows.Close()

	apps := []*model.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

// compile-time interface check
var _ GrantRepository = (*PostgresGrantRepo)(nil)
