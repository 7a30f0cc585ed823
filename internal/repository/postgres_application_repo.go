package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/ssogate/internal/model"
	"github.com/lib/pq"
)

// PostgresApplicationRepo はPostgreSQLを使用したアプリケーションリポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

const applicationColumns = `id, name, url, redirect_uris, client_id, client_secret_hash, blocked, created_at, updated_at`

// Create はアプリケーションを作成する。
func (r *PostgresApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (`+applicationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		app.ID, app.Name, app.URL, pq.Array(app.RedirectURIs),
		app.ClientID, app.ClientSecretHash, app.Blocked, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// FindByID は指定IDのアプリケーションを取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`,
		id,
	)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application by ID: %w", err)
	}
	return app, nil
}

// ListWithGrants は全アプリケーションを名前順に、認可一覧付きで返す。
func (r *PostgresApplicationRepo) ListWithGrants(ctx context.Context) ([]model.ApplicationWithGrants, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications ORDER BY name, created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var result []model.ApplicationWithGrants
	index := make(map[string]int)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		index[app.ID] = len(result)
		result = append(result, model.ApplicationWithGrants{
			Application: *app,
			Grants:      []model.AuthorizationGrant{},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}

	if len(result) == 0 {
		return result, nil
	}

	grantRows, err := r.db.QueryContext(ctx,
		`SELECT application_id, identity_email, blocked, granted_at
		 FROM grants ORDER BY granted_at, identity_email`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer grantRows.Close()

	for grantRows.Next() {
		var g model.AuthorizationGrant
		if err := grantRows.Scan(&g.ApplicationID, &g.Email, &g.Blocked, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		if i, ok := index[g.ApplicationID]; ok {
			result[i].Grants = append(result[i].Grants, g)
		}
	}
	if err := grantRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grants: %w", err)
	}

	return result, nil
}

// Update は名前・URL・リダイレクトURIを更新する。
func (r *PostgresApplicationRepo) Update(ctx context.Context, app *model.Application) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET name = $2, url = $3, redirect_uris = $4, updated_at = $5 WHERE id = $1`,
		app.ID, app.Name, app.URL, pq.Array(app.RedirectURIs), app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	return requireAffected(result)
}

// UpdateClientCredentials はclient_idとclient_secretのハッシュを更新する。
func (r *PostgresApplicationRepo) UpdateClientCredentials(ctx context.Context, id, clientID, secretHash string, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET client_id = $2, client_secret_hash = $3, updated_at = $4 WHERE id = $1`,
		id, clientID, secretHash, updatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update client credentials: %w", err)
	}
	return requireAffected(result)
}

// SetBlocked はアプリケーションのブロック状態を更新する。認可は変更しない。
func (r *PostgresApplicationRepo) SetBlocked(ctx context.Context, id string, blocked bool, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET blocked = $2, updated_at = $3 WHERE id = $1`,
		id, blocked, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set application blocked: %w", err)
	}
	return requireAffected(result)
}

// Delete はアプリケーションと、それに紐づく認可・APIキーを同一トランザクションで削除する。
func (r *PostgresApplicationRepo) Delete(ctx context.Context, id string) ([]model.AuthorizationGrant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`DELETE FROM grants WHERE application_id = $1
		 RETURNING application_id, identity_email, blocked, granted_at`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete grants: %w", err)
	}
	removed := []model.AuthorizationGrant{}
	for rows.Next() {
		var g model.AuthorizationGrant
		if err := rows.Scan(&g.ApplicationID, &g.Email, &g.Blocked, &g.GrantedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan deleted grant: %w", err)
		}
		removed = append(removed, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate deleted grants: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM api_keys WHERE scope_kind = $1 AND scope_id = $2`,
		string(model.ScopeApplication), id,
	); err != nil {
		return nil, fmt.Errorf("failed to delete application api keys: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete application: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return removed, nil
}

func scanApplication(row rowScanner) (*model.Application, error) {
	app := &model.Application{}
	var redirects pq.StringArray
	var clientID, secretHash sql.NullString
	err := row.Scan(
		&app.ID, &app.Name, &app.URL, &redirects, &clientID, &secretHash,
		&app.Blocked, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.RedirectURIs = []string(redirects)
	if app.RedirectURIs == nil {
		app.RedirectURIs = []string{}
	}
	if clientID.Valid {
		app.ClientID = &clientID.String
	}
	if secretHash.Valid {
		app.ClientSecretHash = &secretHash.String
	}
	return app, nil
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
