package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/ssogate/internal/model"
)

// PostgresRefreshCredentialRepo はPostgreSQLを使用したリフレッシュトークンリポジトリ。
type PostgresRefreshCredentialRepo struct {
	db *sql.DB
}

// NewPostgresRefreshCredentialRepo はPostgresRefreshCredentialRepoを生成する。
func NewPostgresRefreshCredentialRepo(db *sql.DB) *PostgresRefreshCredentialRepo {
	return &PostgresRefreshCredentialRepo{db: db}
}

// Create はリフレッシュトークンを保存する。
func (r *PostgresRefreshCredentialRepo) Create(ctx context.Context, cred *model.RefreshCredential) error {
	return insertRefreshCredential(ctx, r.db, cred)
}

// FindByID は指定IDのトークンを取得する。見つからない場合はnilを返す。
func (r *PostgresRefreshCredentialRepo) FindByID(ctx context.Context, id string) (*model.RefreshCredential, error) {
	cred := &model.RefreshCredential{}
	var revokedAt sql.NullTime
	var successorID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, identity_id, chain_id, secret_hash, issued_at, expires_at, revoked, revoked_at, successor_id
		 FROM refresh_credentials WHERE id = $1`,
		id,
	).Scan(&cred.ID, &cred.IdentityID, &cred.ChainID, &cred.SecretHash, &cred.IssuedAt,
		&cred.ExpiresAt, &cred.Revoked, &revokedAt, &successorID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh credential: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		cred.RevokedAt = &t
	}
	if successorID.Valid {
		s := successorID.String
		cred.SuccessorID = &s
	}
	return cred, nil
}

// Rotate はcurrentIDのトークンに後継を設定し、後継トークンを保存する。
// successor_id IS NULLを条件にしたUPDATEで排他し、更新件数0の場合はErrAlreadyRotatedを返す。
func (r *PostgresRefreshCredentialRepo) Rotate(ctx context.Context, currentID string, next *model.RefreshCredential) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE refresh_credentials SET successor_id = $2
		 WHERE id = $1 AND successor_id IS NULL AND revoked = false`,
		currentID, next.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark refresh credential rotated: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyRotated
	}

	if err := insertRefreshCredential(ctx, tx, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RevokeChain はチェーンに属する全トークンを失効させる。
func (r *PostgresRefreshCredentialRepo) RevokeChain(ctx context.Context, chainID string, revokedAt time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE refresh_credentials SET revoked = true, revoked_at = $2
		 WHERE chain_id = $1 AND revoked = false`,
		chainID, revokedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh chain: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// RevokeByIdentity はアイデンティティの全トークンを失効させる。
func (r *PostgresRefreshCredentialRepo) RevokeByIdentity(ctx context.Context, identityID string, revokedAt time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE refresh_credentials SET revoked = true, revoked_at = $2
		 WHERE identity_id = $1 AND revoked = false`,
		identityID, revokedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh credentials: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func insertRefreshCredential(ctx context.Context, exec execer, cred *model.RefreshCredential) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO refresh_credentials (id, identity_id, chain_id, secret_hash, issued_at, expires_at, revoked)
		 VALUES ($1, $2, $3, $4, $5, $6, false)`,
		cred.ID, cred.IdentityID, cred.ChainID, cred.SecretHash, cred.IssuedAt, cred.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh credential: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RefreshCredentialRepository = (*PostgresRefreshCredentialRepo)(nil)
