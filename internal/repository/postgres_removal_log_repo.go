package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ssogate/internal/model"
)

// execer は*sql.DBと*sql.Txの共通インターフェース。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresRemovalLogRepo はPostgreSQLを使用した削除ログリポジトリ。
type PostgresRemovalLogRepo struct {
	db *sql.DB
}

// NewPostgresRemovalLogRepo はPostgresRemovalLogRepoを生成する。
func NewPostgresRemovalLogRepo(db *sql.DB) *PostgresRemovalLogRepo {
	return &PostgresRemovalLogRepo{db: db}
}

// Append はログを1件追加する。
func (r *PostgresRemovalLogRepo) Append(ctx context.Context, entry *model.RemovalLogEntry) error {
	return insertRemovalLog(ctx, r.db, entry)
}

// List は新しい順にログを返す。limitが0以下の場合は全件返す。
func (r *PostgresRemovalLogRepo) List(ctx context.Context, limit int) ([]*model.RemovalLogEntry, error) {
	query := `SELECT id, application_id, application_name, user_email, actor_email, actor_name, removed_at
		 FROM removal_logs ORDER BY removed_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list removal logs: %w", err)
	}
	defer rows.Close()

	entries := []*model.RemovalLogEntry{}
	for rows.Next() {
		e := &model.RemovalLogEntry{}
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.ApplicationName, &e.UserEmail,
			&e.ActorEmail, &e.ActorName, &e.RemovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan removal log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate removal logs: %w", err)
	}
	return entries, nil
}

// insertRemovalLog は削除ログを挿入する。トランザクション内外の両方から呼ばれる。
func insertRemovalLog(ctx context.Context, exec execer, entry *model.RemovalLogEntry) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO removal_logs (id, application_id, application_name, user_email, actor_email, actor_name, removed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ApplicationID, entry.ApplicationName, entry.UserEmail,
		entry.ActorEmail, entry.ActorName, entry.RemovedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert removal log: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RemovalLogRepository = (*PostgresRemovalLogRepo)(nil)
