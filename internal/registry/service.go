// Package registry はアプリケーション・認可・ブロック状態・ロールを管理し、アクセス可否を判定する。
package registry

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/ssogate/internal/audit"
	"github.com/hitoshi/ssogate/internal/metrics"
	"github.com/hitoshi/ssogate/internal/model"
	"github.com/hitoshi/ssogate/internal/repository"
	"github.com/hitoshi/ssogate/internal/security"
	"golang.org/x/crypto/bcrypt"
)

// clientSecretBytes はクライアントシークレットの乱数バイト長。
const clientSecretBytes = 32

// RemovalRecorder は削除ログの組み立て・追記・参照に必要なインターフェース。
type RemovalRecorder interface {
	NewRemovalEntry(applicationID, applicationName, userEmail string, actor audit.Actor) *model.RemovalLogEntry
	RecordRemoval(ctx context.Context, applicationID, applicationName, userEmail string, actor audit.Actor) (*model.RemovalLogEntry, error)
	ListRemovals(ctx context.Context, limit int) ([]*model.RemovalLogEntry, error)
}

// Config はレジストリの設定。
type Config struct {
	// AuditApplicationDeletion がtrueの場合、アプリケーション削除で消えた認可ごとに削除ログを残す。
	AuditApplicationDeletion bool
	BcryptCost               int
}

// ApplicationSpec はアプリケーション作成・更新の入力。
type ApplicationSpec struct {
	Name         string
	URL          string
	RedirectURIs []string // 各要素はカンマ・空白・改行区切りでもよい
	ClientID     *string
	ClientSecret *string
}

// ClientCredentials はクライアントシークレット発行結果。Secretは発行時のみ平文で返す。
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// Service はアプリケーションと認可の管理を提供する。
type Service struct {
	identities   repository.IdentityRepository
	applications repository.ApplicationRepository
	grants       repository.GrantRepository
	credentials  repository.RefreshCredentialRepository
	removals     RemovalRecorder
	urls         *security.URLPolicy
	sanitizer    *security.TextSanitizer
	metrics      metrics.MetricsCollector
	config       Config
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	identities repository.IdentityRepository,
	applications repository.ApplicationRepository,
	grants repository.GrantRepository,
	credentials repository.RefreshCredentialRepository,
	removals RemovalRecorder,
	urls *security.URLPolicy,
	collector metrics.MetricsCollector,
	config Config,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		identities:   identities,
		applications: applications,
		grants:       grants,
		credentials:  credentials,
		removals:     removals,
		urls:         urls,
		sanitizer:    security.NewTextSanitizer(),
		metrics:      collector,
		config:       config,
		now:          time.Now,
	}
}

// --- アプリケーション ---

// ListApplications は全アプリケーションを認可一覧付きで返す。管理者のみ。
func (s *Service) ListApplications(ctx context.Context, actor *model.Principal) ([]model.ApplicationWithGrants, error) {
	if _, err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	apps, err := s.applications.ListWithGrants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	if apps == nil {
		apps = []model.ApplicationWithGrants{}
	}
	return apps, nil
}

// GetApplication はアプリケーションを1件返す。管理者のみ。
func (s *Service) GetApplication(ctx context.Context, actor *model.Principal, id string) (*model.Application, error) {
	if _, err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	return s.findApplication(ctx, id)
}

// CreateApplication はアプリケーションを登録する。管理者のみ。
func (s *Service) CreateApplication(ctx context.Context, actor *model.Principal, spec ApplicationSpec) (*model.Application, error) {
	if _, err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}

	name, appURL, redirects, err := s.normalizeSpec(spec)
	if err != nil {
		return nil, err
	}

	now := s.now()
	app := &model.Application{
		ID:           uuid.New().String(),
		Name:         name,
		URL:          appURL,
		RedirectURIs: redirects,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if spec.ClientID != nil && *spec.ClientID != "" {
		clientID := *spec.ClientID
		app.ClientID = &clientID
	}
	if spec.ClientSecret != nil && *spec.ClientSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*spec.ClientSecret), s.config.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash client secret: %w", err)
		}
		h := string(hash)
		app.ClientSecretHash = &h
		if app.ClientID == nil {
			clientID := uuid.New().String()
			app.ClientID = &clientID
		}
	}

	if err := s.applications.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConflictError("Client ID already in use")
		}
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	slog.Info("application created",
		slog.String("application_id", app.ID),
		slog.String("name", app.Name),
	)
	return app, nil
}

// UpdateApplication は名前・URL・リダイレクトURIを置き換える。管理者のみ。
// ClientSecretが指定された場合はクライアント資格情報も更新する。
// ClientSecretなしでClientIDだけを変更しようとした場合はValidationErrorを返す。
func (s *Service) UpdateApplication(ctx context.Context, actor *model.Principal, id string, spec ApplicationSpec) (*model.Application, error) {
	if _, err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	app, err := s.findApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	hasSecret := spec.ClientSecret != nil && *spec.ClientSecret != ""
	if !hasSecret && spec.ClientID != nil && *spec.ClientID != "" &&
		(app.ClientID == nil || *app.ClientID != *spec.ClientID) {
		return nil, model.NewValidationError("client_secret is required to change client_id")
	}

	name, appURL, redirects, err := s.normalizeSpec(spec)
	if err != nil {
		return nil, err
	}

	now := s.now()
	app.Name = name
	app.URL = appURL
	app.RedirectURIs = redirects
	app.UpdatedAt = now

	if err := s.applications.Update(ctx, app); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("Application")
		}
		return nil, fmt.Errorf("failed to update application: %w", err)
	}

	if hasSecret {
		clientID := uuid.New().String()
		if spec.ClientID != nil && *spec.ClientID != "" {
			clientID = *spec.ClientID
		} else if app.ClientID != nil {
			clientID = *app.ClientID
		}
		hash, err := s.storeClientCredentials(ctx, app.ID, clientID, *spec.ClientSecret, now)
		if err != nil {
			return nil, err
		}
		app.ClientID = &clientID
		app.ClientSecretHash = &hash
	}

	return app, nil
}

// DeleteApplication はアプリケーションを削除する。認可とアプリケーションのAPIキーも削除される。管理者のみ。
// AuditApplicationDeletionが有効な場合、削除された認可ごとに削除ログを残す。
func (s *Service) DeleteApplication(ctx context.Context, actor *model.Principal, id string) error {
	admin, err := s.requireAdmin(ctx, actor)
	if err != nil {
		return err
	}
	app, err := s.findApplication(ctx, id)
	if err != nil {
		return err
	}

	removed, err := s.applications.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("Application")
		}
		return fmt.Errorf("failed to delete application: %w", err)
	}

	slog.Info("application deleted",
		slog.String("application_id", app.ID),
		slog.String("name", app.Name),
		slog.Int("grants_removed", len(removed)),
	)

	if !s.config.AuditApplicationDeletion {
		return nil
	}
	actorSnapshot := audit.Actor{Email: admin.Email, Name: admin.Name}
	for _, g := range removed {
		if _, err := s.removals.RecordRemoval(ctx, app.ID, app.Name, g.Email, actorSnapshot); err != nil {
			slog.Error("failed to record cascaded grant removal",
				slog.String("application_id", app.ID),
				slog.String("email", g.Email),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.metrics.RecordGrantRemoval()
	}
	return nil
}

// RotateClientSecret は新しいクライアントシークレットを発行する。管理者のみ。
// client_idが未設定の場合は同時に払い出す。
func (s *Service) RotateClientSecret(ctx context.Context, actor *model.Principal, id string) (*ClientCredentials, error) {
	if _, err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	app, err := s.findApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	clientID := uuid.New().String()
	if app.ClientID != nil && *app.ClientID != "" {
		clientID = *app.ClientID
	}
	secret, err := generateClientSecret()
	if err != nil {
		return nil, err
	}
	if _, err := s.storeClientCredentials(ctx, app.ID, clientID, secret, s.now()); err != nil {
		return nil, err
	}

	slog.Info("client secret rotated", slog.String("application_id", app.ID))
	return &ClientCredentials{ClientID: clientID, ClientSecret: secret}, nil
}

// SetApplicationBlocked はアプリケーションのブロック状態を切り替える。認可は削除しない。管理者のみ。
func (s *Service) SetApplicationBlocked(ctx context.Context, actor *model.Principal, id string, blocked bool) (*model.Application, error) {
	if _, err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	app, err := s.findApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.applications.SetBlocked(ctx, id, blocked, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("Application")
		}
		return nil, fmt.Errorf("failed to set application blocked: %w", err)
	}
	app.Blocked = blocked
	app.UpdatedAt = now
	return app, nil
}

// --- 認可 ---

// AuthorizeIdentity はメールアドレスにアプリケーションへのアクセスを許可する。冪等。管理者のみ。
// 既存の認可がブロックされていた場合はブロックを解除する。未登録のメールアドレスも許可できる。
func (s *Service) AuthorizeIdentity(ctx context.Context, actor *model.Principal, applicationID, email string) (*model.AuthorizationGrant, error) {
	if _, err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	normalized, ok := model.NormalizeEmail(email)
	if !ok {
		return nil, model.NewValidationError("A valid email is required")
	}
	if _, err := s.findApplication(ctx, applicationID); err != nil {
		return nil, err
	}

	grant, err := s.grants.Upsert(ctx, &model.AuthorizationGrant{
		ApplicationID: applicationID,
		Email:         normalized,
		GrantedAt:     s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to authorize identity: %w", err)
	}

	slog.Info("grant authorized",
		slog.String("application_id", applicationID),
		slog.String("email", normalized),
	)
	return grant, nil
}

// RevokeIdentity は認可を削除し、同一トランザクションで削除ログを1件残す。
// 管理者、または本人のみ実行できる。認可が存在しない場合はNotFoundErrorを返し、ログは残さない。
func (s *Service) RevokeIdentity(ctx context.Context, actor *model.Principal, applicationID, email string) error {
	identity, err := s.requireActive(ctx, actor)
	if err != nil {
		return err
	}
	normalized, ok := model.NormalizeEmail(email)
	if !ok {
		return model.NewValidationError("A valid email is required")
	}
	if !identity.IsAdmin() && identity.Email != normalized {
		return model.NewAuthorizationError("You can only remove your own access")
	}

	return s.revoke(ctx, identity, applicationID, normalized)
}

// RemoveSelf は呼び出し元自身の認可を削除する。
// メールアドレスはアクセストークンではなく保存済みのアイデンティティから取る。
func (s *Service) RemoveSelf(ctx context.Context, actor *model.Principal, applicationID string) error {
	identity, err := s.requireActive(ctx, actor)
	if err != nil {
		return err
	}
	return s.revoke(ctx, identity, applicationID, identity.Email)
}

// revoke は認可と削除ログを同一トランザクションで書き込む。
func (s *Service) revoke(ctx context.Context, actor *model.Identity, applicationID, normalized string) error {
	app, err := s.findApplication(ctx, applicationID)
	if err != nil {
		return err
	}

	entry := s.removals.NewRemovalEntry(app.ID, app.Name, normalized, audit.Actor{
		Email: actor.Email,
		Name:  actor.Name,
	})
	if err := s.grants.DeleteWithRemovalLog(ctx, app.ID, normalized, entry); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("Authorization")
		}
		return fmt.Errorf("failed to revoke identity: %w", err)
	}

	s.metrics.RecordGrantRemoval()
	slog.Info("grant_removed",
		slog.String("application_id", app.ID),
		slog.String("email", normalized),
		slog.String("actor_email", actor.Email),
		slog.String("removal_id", entry.ID),
	)
	return nil
}

// SetGrantBlocked は認可のブロック状態を切り替える。削除もログ記録も行わない。管理者のみ。
func (s *Service) SetGrantBlocked(ctx context.Context, actor *model.Principal, applicationID, email string, blocked bool) error {
	if _, err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	normalized, ok := model.NormalizeEmail(email)
	if !ok {
		return model.NewValidationError("A valid email is required")
	}
	if _, err := s.findApplication(ctx, applicationID); err != nil {
		return err
	}

	if err := s.grants.SetBlocked(ctx, applicationID, normalized, blocked); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("Authorization")
		}
		return fmt.Errorf("failed to set grant blocked: %w", err)
	}
	return nil
}

// ListAuthorizedApplications はメールアドレスがアクセスできるアプリケーションを名前順に返す。
// 本人または管理者のみ。対象が停止中の場合は空を返す。
func (s *Service) ListAuthorizedApplications(ctx context.Context, actor *model.Principal, email string) ([]*model.Application, error) {
	identity, err := s.requireActive(ctx, actor)
	if err != nil {
		return nil, err
	}
	normalized, ok := model.NormalizeEmail(email)
	if !ok {
		return nil, model.NewValidationError("A valid email is required")
	}
	if !identity.IsAdmin() && identity.Email != normalized {
		return nil, model.NewAuthorizationError("You can only view your own applications")
	}

	target := identity
	if identity.Email != normalized {
		target, err = s.identities.FindByEmail(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("failed to find identity: %w", err)
		}
	}
	if target != nil && !target.IsActive() {
		return []*model.Application{}, nil
	}

	apps, err := s.grants.ListAuthorizedApplications(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to list authorized applications: %w", err)
	}
	if apps == nil {
		apps = []*model.Application{}
	}
	return apps, nil
}

// CheckAccess はメールアドレスがアプリケーションにアクセスできるかを判定する。
// 利用者が有効、アプリケーションが未ブロック、認可が存在し未ブロックの全てを満たす場合のみnilを返す。
func (s *Service) CheckAccess(ctx context.Context, applicationID, email string) error {
	normalized, ok := model.NormalizeEmail(email)
	if !ok {
		return model.NewValidationError("A valid email is required")
	}

	identity, err := s.identities.FindByEmail(ctx, normalized)
	if err != nil {
		return fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil || !identity.IsActive() {
		return model.NewAuthorizationError("Account is not active")
	}

	app, err := s.findApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Blocked {
		return model.NewAuthorizationError("Application is blocked")
	}

	grant, err := s.grants.Find(ctx, applicationID, normalized)
	if err != nil {
		return fmt.Errorf("failed to find grant: %w", err)
	}
	if grant == nil {
		return model.NewAuthorizationError("Access to this application has not been granted")
	}
	if grant.Blocked {
		return model.NewAuthorizationError("Access to this application is blocked")
	}
	return nil
}

// AuthorizeRedirect はリダイレクト先がアプリケーションに登録済みのURIに含まれるかを検証する。
func (s *Service) AuthorizeRedirect(ctx context.Context, applicationID, redirectURI string) error {
	app, err := s.findApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if !security.RedirectAllowed(redirectURI, app.RedirectURIs) {
		return model.NewValidationError("redirect_uri is not registered for this application")
	}
	return nil
}

// ListRemovals は認可削除ログを新しい順に返す。管理者のみ。
func (s *Service) ListRemovals(ctx context.Context, actor *model.Principal, limit int) ([]*model.RemovalLogEntry, error) {
	if _, err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	entries, err := s.removals.ListRemovals(ctx, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*model.RemovalLogEntry{}
	}
	return entries, nil
}

// --- アイデンティティ ---

// ListIdentities は全アイデンティティを返す。管理者のみ。
func (s *Service) ListIdentities(ctx context.Context, actor *model.Principal) ([]*model.Identity, error) {
	if _, err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	identities, err := s.identities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	if identities == nil {
		identities = []*model.Identity{}
	}
	return identities, nil
}

// SetRole はロールを変更する。"admin" / "student" も受け付ける。管理者のみ。
// 自分自身のロールは変更できない。
func (s *Service) SetRole(ctx context.Context, actor *model.Principal, identityID, role string) (*model.Identity, error) {
	admin, err := s.requireAdmin(ctx, actor)
	if err != nil {
		return nil, err
	}
	parsed, ok := model.ParseRole(role)
	if !ok {
		return nil, model.NewValidationError("Role must be member or administrator")
	}
	if identityID == admin.ID && parsed != admin.Role {
		return nil, model.NewValidationError("You cannot change your own role")
	}

	target, err := s.findIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.identities.UpdateRole(ctx, identityID, parsed, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("User")
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	slog.Info("role changed",
		slog.String("identity_id", identityID),
		slog.String("role", string(parsed)),
		slog.String("actor_id", admin.ID),
	)
	target.Role = parsed
	target.UpdatedAt = now
	return target, nil
}

// SetStatus は利用状態を変更する。停止時は全リフレッシュトークンを失効させる。管理者のみ。
// 自分自身は停止できない。
func (s *Service) SetStatus(ctx context.Context, actor *model.Principal, identityID, status string) (*model.Identity, error) {
	admin, err := s.requireAdmin(ctx, actor)
	if err != nil {
		return nil, err
	}
	parsed, ok := model.ParseStatus(status)
	if !ok {
		return nil, model.NewValidationError("Status must be active or suspended")
	}
	if identityID == admin.ID && parsed == model.StatusSuspended {
		return nil, model.NewValidationError("You cannot suspend yourself")
	}

	target, err := s.findIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.identities.UpdateStatus(ctx, identityID, parsed, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("User")
		}
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	if parsed == model.StatusSuspended {
		n, err := s.credentials.RevokeByIdentity(ctx, identityID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to revoke refresh credentials: %w", err)
		}
		slog.Info("identity suspended",
			slog.String("identity_id", identityID),
			slog.Int64("refresh_revoked", n),
			slog.String("actor_id", admin.ID),
		)
	}

	target.Status = parsed
	target.UpdatedAt = now
	return target, nil
}

// --- 内部処理 ---

// requireActive は呼び出し元を再取得し、有効なアカウントであることを確認する。
// トークン上のロールではなく保存済みの状態を使う。
func (s *Service) requireActive(ctx context.Context, actor *model.Principal) (*model.Identity, error) {
	if actor == nil || actor.IdentityID == "" {
		return nil, model.NewAuthenticationError("Not authenticated")
	}
	identity, err := s.identities.FindByID(ctx, actor.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil || !identity.IsActive() {
		return nil, model.NewAuthenticationError("Account is not active")
	}
	return identity, nil
}

// requireAdmin は呼び出し元が現在も管理者であることを確認する。
func (s *Service) requireAdmin(ctx context.Context, actor *model.Principal) (*model.Identity, error) {
	identity, err := s.requireActive(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !identity.IsAdmin() {
		return nil, model.NewAdminRequiredError()
	}
	return identity, nil
}

func (s *Service) findApplication(ctx context.Context, id string) (*model.Application, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewNotFoundError("Application")
	}
	app, err := s.applications.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	if app == nil {
		return nil, model.NewNotFoundError("Application")
	}
	return app, nil
}

func (s *Service) findIdentity(ctx context.Context, id string) (*model.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewNotFoundError("User")
	}
	identity, err := s.identities.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, model.NewNotFoundError("User")
	}
	return identity, nil
}

// normalizeSpec は名前・URL・リダイレクトURIを検証・正規化する。
func (s *Service) normalizeSpec(spec ApplicationSpec) (string, string, []string, error) {
	name := s.sanitizer.Clean(spec.Name)
	if name == "" {
		return "", "", nil, model.NewValidationError("Application name is required")
	}
	appURL, err := s.urls.NormalizeURL(spec.URL)
	if err != nil {
		return "", "", nil, model.NewValidationError(fmt.Sprintf("Invalid application URL: %v", err))
	}
	redirects, err := s.urls.NormalizeRedirectURIs(spec.RedirectURIs)
	if err != nil {
		return "", "", nil, model.NewValidationError(err.Error())
	}
	return name, appURL, redirects, nil
}

func (s *Service) storeClientCredentials(ctx context.Context, applicationID, clientID, secret string, now time.Time) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.config.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	if err := s.applications.UpdateClientCredentials(ctx, applicationID, clientID, string(hash), now); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", model.NewConflictError("Client ID already in use")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return "", model.NewNotFoundError("Application")
		}
		return "", fmt.Errorf("failed to update client credentials: %w", err)
	}
	return string(hash), nil
}

// generateClientSecret はURLセーフなクライアントシークレットを生成する。
func generateClientSecret() (string, error) {
	b := make([]byte, clientSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
