package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/ssogate/internal/model"
)

// PostgresAPIKeyRepo はPostgreSQLを使用したAPIキーリポジトリ。
type PostgresAPIKeyRepo struct {
	db *sql.DB
}

// NewPostgresAPIKeyRepo はPostgresAPIKeyRepoを生成する。
func NewPostgresAPIKeyRepo(db *sql.DB) *PostgresAPIKeyRepo {
	return &PostgresAPIKeyRepo{db: db}
}

const apiKeyColumns = `id, scope_kind, scope_id, name, key_prefix, key_hash, created_at, last_used_at`

// Create はAPIキーを作成する。
func (r *PostgresAPIKeyRepo) Create(ctx context.Context, key *model.APIKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, string(key.Scope.Kind), key.Scope.ID, key.Name, key.Prefix, key.KeyHash,
		key.CreatedAt, key.LastUsedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

// FindByID は指定IDのキーを取得する。見つからない場合はnilを返す。
func (r *PostgresAPIKeyRepo) FindByID(ctx context.Context, id string) (*model.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id)
	key, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find api key by ID: %w", err)
	}
	return key, nil
}

// FindByHash はキーハッシュで検索する。見つからない場合はnilを返す。
func (r *PostgresAPIKeyRepo) FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash)
	key, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find api key by hash: %w", err)
	}
	return key, nil
}

// ListByScope はスコープに属するキーを作成日時順に返す。
func (r *PostgresAPIKeyRepo) ListByScope(ctx context.Context, scope model.KeyScope) ([]*model.APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE scope_kind = $1 AND scope_id = $2
		 ORDER BY created_at, name`,
		string(scope.Kind), scope.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	keys := []*model.APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate api keys: %w", err)
	}
	return keys, nil
}

// Delete はキーを物理削除する。
func (r *PostgresAPIKeyRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	return requireAffected(result)
}

// Touch はlast_used_atを更新する。削除済みのキーに対しては何もしない。
func (r *PostgresAPIKeyRepo) Touch(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`,
		id, usedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}

func scanAPIKey(row rowScanner) (*model.APIKey, error) {
	key := &model.APIKey{}
	var kind string
	var lastUsed sql.NullTime
	err := row.Scan(
		&key.ID, &kind, &key.Scope.ID, &key.Name, &key.Prefix, &key.KeyHash,
		&key.CreatedAt, &lastUsed,
	)
	if err != nil {
		return nil, err
	}
	key.Scope.Kind = model.ScopeKind(kind)
	if lastUsed.Valid {
		t := lastUsed.Time
		key.LastUsedAt = &t
	}
	return key, nil
}

// compile-time interface check
var _ APIKeyRepository = (*PostgresAPIKeyRepo)(nil)
