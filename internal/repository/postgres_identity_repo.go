package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/ssogate/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したアイデンティティリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

const identityColumns = `id, name, email, password_hash, role, status, created_at, updated_at`

// Create はアイデンティティを作成する。メールアドレス重複時はErrDuplicateを返す。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		identity.ID, identity.Name, strings.ToLower(identity.Email), identity.PasswordHash,
		string(identity.Role), string(identity.Status), identity.CreatedAt, identity.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// FindByID は指定IDのアイデンティティを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`,
		id,
	)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by ID: %w", err)
	}
	return identity, nil
}

// FindByEmail はメールアドレスで検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)`,
		email,
	)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by email: %w", err)
	}
	return identity, nil
}

// List は全アイデンティティを作成日時順に返す。
func (r *PostgresIdentityRepo) List(ctx context.Context) ([]*model.Identity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities ORDER BY created_at, email`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}
	return identities, nil
}

// UpdateProfile は表示名とメールアドレスを更新する。
func (r *PostgresIdentityRepo) UpdateProfile(ctx context.Context, id, name, email string, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET name = $2, email = $3, updated_at = $4 WHERE id = $1`,
		id, name, strings.ToLower(email), updatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update identity profile: %w", err)
	}
	return requireAffected(result)
}

// UpdateRole はロールを更新する。
func (r *PostgresIdentityRepo) UpdateRole(ctx context.Context, id string, role model.Role, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET role = $2, updated_at = $3 WHERE id = $1`,
		id, string(role), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update identity role: %w", err)
	}
	return requireAffected(result)
}

// UpdateStatus は利用状態を更新する。
func (r *PostgresIdentityRepo) UpdateStatus(ctx context.Context, id string, status model.Status, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update identity status: %w", err)
	}
	return requireAffected(result)
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*model.Identity, error) {
	identity := &model.Identity{}
	var role, status string
	err := row.Scan(
		&identity.ID, &identity.Name, &identity.Email, &identity.PasswordHash,
		&role, &status, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	identity.Role = model.Role(role)
	identity.Status = model.Status(status)
	return identity, nil
}

// requireAffected は更新件数が0の場合にErrNotFoundを返す。
func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
