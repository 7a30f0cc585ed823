// Package auth は登録・ログイン・リフレッシュトークンのローテーション・ログアウトを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/ssogate/internal/metrics"
	"github.com/hitoshi/ssogate/internal/model"
	"github.com/hitoshi/ssogate/internal/repository"
	"github.com/hitoshi/ssogate/internal/security"
)

// TokenType はレスポンスのtoken_typeに返す値。
const TokenType = "bearer"

// dummyPassword は未登録メールアドレスでのログイン時に比較するためのダミー。
const dummyPassword = "ssogate-timing-equalizer"

// TokenIssuer はアクセストークンの発行に必要なインターフェース。
type TokenIssuer interface {
	Issue(identity *model.Identity, sessionID string) (string, time.Time, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	RefreshTTL time.Duration // リフレッシュトークンの有効期間
	BcryptCost int
}

// Session はログイン・リフレッシュ成功時に返す資格情報の組。
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int // アクセストークンの残り秒数
	ExpiresAt    time.Time
	Identity     *model.Identity
}

// RegisterInput は新規登録の入力。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// ProfilePatch はプロフィール更新の入力。nilのフィールドは変更しない。
type ProfilePatch struct {
	Name  *string
	Email *string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	identities  repository.IdentityRepository
	credentials repository.RefreshCredentialRepository
	tokens      TokenIssuer
	sanitizer   *security.TextSanitizer
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(
	identities repository.IdentityRepository,
	credentials repository.RefreshCredentialRepository,
	tokens TokenIssuer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		identities:  identities,
		credentials: credentials,
		tokens:      tokens,
		sanitizer:   security.NewTextSanitizer(),
		metrics:     collector,
		config:      config,
		now:         time.Now,
	}
}

// Register はアイデンティティを作成し、ログインと同じ形式でセッションを発行する。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	name := s.sanitizer.Clean(input.Name)
	if name == "" {
		return nil, model.NewValidationError("Name is required")
	}
	email, ok := model.NormalizeEmail(input.Email)
	if !ok {
		return nil, model.NewValidationError("A valid email is required")
	}
	if len(input.Password) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}

	hash, err := HashPassword(input.Password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	identity := &model.Identity{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleMember,
		Status:       model.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConflictError("Email already registered")
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	slog.Info("identity registered",
		slog.String("identity_id", identity.ID),
		slog.String("email", identity.Email),
	)

	return s.issueSession(ctx, identity, uuid.New().String())
}

// LoginGate は認証成功後、セッション発行前に呼ばれる追加判定。
// エラーを返すとセッションは発行されない。
type LoginGate func(ctx context.Context, identity *model.Identity) error

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
// 未登録・パスワード不一致・停止中のいずれも同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	return s.LoginWithGate(ctx, email, password, nil)
}

// LoginWithGate はLoginと同じ認証を行い、gateが許可した場合のみセッションを発行する。
// SDKログインでアプリケーションへのアクセス可否を確認するために使う。
func (s *Service) LoginWithGate(ctx context.Context, email, password string, gate LoginGate) (*Session, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	identity, err := s.identities.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if identity == nil {
		// 応答時間で登録有無が分からないようにする
		CheckPassword(s.dummyPasswordHash(), password)
		return nil, s.loginFailed(normalized, "unknown_email")
	}
	if !CheckPassword(identity.PasswordHash, password) {
		return nil, s.loginFailed(normalized, "password_mismatch")
	}
	if !identity.IsActive() {
		return nil, s.loginFailed(normalized, "suspended")
	}
	if gate != nil {
		if err := gate(ctx, identity); err != nil {
			s.metrics.RecordLogin(metrics.ResultFailure)
			return nil, err
		}
	}

	session, err := s.issueSession(ctx, identity, uuid.New().String())
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLogin(metrics.ResultSuccess)
	slog.Info("identity logged in", slog.String("identity_id", identity.ID))
	return session, nil
}

// Refresh はリフレッシュトークンをローテーションし、新しい資格情報の組を発行する。
// ローテーション済みのトークンが再提示された場合はチェーン全体を失効させる。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	id, secret, ok := parseRefreshToken(refreshToken)
	if !ok {
		return nil, s.refreshFailed(model.NewRefreshInvalidError("Invalid refresh token"))
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, s.refreshFailed(model.NewRefreshInvalidError("Invalid refresh token"))
	}

	cred, err := s.credentials.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh credential: %w", err)
	}
	if cred == nil || !refreshSecretMatches(secret, cred.SecretHash) {
		return nil, s.refreshFailed(model.NewRefreshInvalidError("Invalid refresh token"))
	}
	if cred.IsSuperseded() {
		s.reuseDetected(ctx, cred)
		return nil, s.refreshFailed(model.NewRefreshInvalidError("Refresh token has already been used"))
	}
	if cred.Revoked {
		return nil, s.refreshFailed(model.NewRefreshInvalidError("Refresh token has been revoked"))
	}
	now := s.now()
	if cred.IsExpired(now) {
		return nil, s.refreshFailed(model.NewRefreshInvalidError("Refresh token has expired"))
	}

	identity, err := s.identities.FindByID(ctx, cred.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil || !identity.IsActive() {
		s.revokeChain(ctx, cred.ChainID)
		return nil, s.refreshFailed(model.NewRefreshInvalidError("Account is not active"))
	}

	next, nextSecret, err := s.newCredential(identity.ID, cred.ChainID, now)
	if err != nil {
		return nil, err
	}
	if err := s.credentials.Rotate(ctx, cred.ID, next); err != nil {
		if errors.Is(err, repository.ErrAlreadyRotated) {
			// 同一トークンの同時リフレッシュで負けた側
			s.reuseDetected(ctx, cred)
			return nil, s.refreshFailed(model.NewRefreshInvalidError("Refresh token has already been used"))
		}
		return nil, fmt.Errorf("failed to rotate refresh credential: %w", err)
	}

	session, err := s.buildSession(identity, cred.ChainID, formatRefreshToken(next.ID, nextSecret))
	if err != nil {
		return nil, err
	}
	s.metrics.RecordRefresh(metrics.ResultSuccess)
	return session, nil
}

// Logout はアクセストークンに紐づくチェーンを失効させる。
// refreshTokenが指定され、同じ利用者のものであればそのチェーンも失効させる。冪等。
func (s *Service) Logout(ctx context.Context, principal *model.Principal, refreshToken string) error {
	if principal == nil {
		return model.NewAuthenticationError("Not authenticated")
	}

	now := s.now()
	if principal.SessionID != "" {
		if _, err := s.credentials.RevokeChain(ctx, principal.SessionID, now); err != nil {
			return fmt.Errorf("failed to revoke session: %w", err)
		}
	}

	if id, _, ok := parseRefreshToken(refreshToken); ok {
		if _, err := uuid.Parse(id); err == nil {
			cred, err := s.credentials.FindByID(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to find refresh credential: %w", err)
			}
			if cred != nil && cred.IdentityID == principal.IdentityID && cred.ChainID != principal.SessionID {
				if _, err := s.credentials.RevokeChain(ctx, cred.ChainID, now); err != nil {
					return fmt.Errorf("failed to revoke refresh chain: %w", err)
				}
			}
		}
	}

	slog.Info("identity logged out",
		slog.String("identity_id", principal.IdentityID),
		slog.String("session_id", principal.SessionID),
	)
	return nil
}

// Me は現在の利用者のプロフィールを返す。
func (s *Service) Me(ctx context.Context, identityID string) (*model.Identity, error) {
	identity, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, model.NewNotFoundError("User")
	}
	return identity, nil
}

// UpdateProfile は表示名・メールアドレスを更新する。
func (s *Service) UpdateProfile(ctx context.Context, identityID string, patch ProfilePatch) (*model.Identity, error) {
	if patch.Name == nil && patch.Email == nil {
		return nil, model.NewValidationError("No fields to update")
	}

	identity, err := s.Me(ctx, identityID)
	if err != nil {
		return nil, err
	}

	name := identity.Name
	if patch.Name != nil {
		name = s.sanitizer.Clean(*patch.Name)
		if name == "" {
			return nil, model.NewValidationError("Name must not be empty")
		}
	}
	email := identity.Email
	if patch.Email != nil {
		normalized, ok := model.NormalizeEmail(*patch.Email)
		if !ok {
			return nil, model.NewValidationError("A valid email is required")
		}
		email = normalized
	}

	now := s.now()
	if err := s.identities.UpdateProfile(ctx, identityID, name, email, now); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConflictError("Email already registered")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("User")
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	identity.Name = name
	identity.Email = email
	identity.UpdatedAt = now
	return identity, nil
}

// issueSession は新しいチェーンの最初のリフレッシュトークンを保存し、セッションを返す。
func (s *Service) issueSession(ctx context.Context, identity *model.Identity, chainID string) (*Session, error) {
	cred, secret, err := s.newCredential(identity.ID, chainID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.credentials.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to save refresh credential: %w", err)
	}
	return s.buildSession(identity, chainID, formatRefreshToken(cred.ID, secret))
}

// buildSession はアクセストークンを発行してSessionを組み立てる。
func (s *Service) buildSession(identity *model.Identity, chainID, refreshToken string) (*Session, error) {
	access, expiresAt, err := s.tokens.Issue(identity, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	expiresIn := int(expiresAt.Sub(s.now()).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &Session{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    TokenType,
		ExpiresIn:    expiresIn,
		ExpiresAt:    expiresAt,
		Identity:     identity,
	}, nil
}

// newCredential はリフレッシュトークンのレコードと平文の秘密を生成する。
func (s *Service) newCredential(identityID, chainID string, now time.Time) (*model.RefreshCredential, string, error) {
	secret, err := newRefreshSecret()
	if err != nil {
		return nil, "", err
	}
	return &model.RefreshCredential{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		ChainID:    chainID,
		SecretHash: hashRefreshSecret(secret),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.config.RefreshTTL),
	}, secret, nil
}

// reuseDetected はローテーション済みトークンの再提示を記録し、チェーンを失効させる。
func (s *Service) reuseDetected(ctx context.Context, cred *model.RefreshCredential) {
	s.metrics.RecordRefreshReuse()
	slog.Warn("refresh_reuse_detected",
		slog.String("identity_id", cred.IdentityID),
		slog.String("chain_id", cred.ChainID),
		slog.String("credential_id", cred.ID),
	)
	s.revokeChain(ctx, cred.ChainID)
}

// revokeChain はチェーンを失効させる。失敗はログのみ。
func (s *Service) revokeChain(ctx context.Context, chainID string) {
	n, err := s.credentials.RevokeChain(ctx, chainID, s.now())
	if err != nil {
		slog.Error("failed to revoke refresh chain",
			slog.String("chain_id", chainID),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.Info("refresh chain revoked",
		slog.String("chain_id", chainID),
		slog.Int64("revoked", n),
	)
}

func (s *Service) loginFailed(email, reason string) error {
	s.metrics.RecordLogin(metrics.ResultFailure)
	slog.Warn("login_failed",
		slog.String("email", email),
		slog.String("reason", reason),
	)
	return model.NewInvalidCredentialsError()
}

func (s *Service) refreshFailed(err *model.APIError) error {
	s.metrics.RecordRefresh(metrics.ResultFailure)
	return err
}

// dummyPasswordHash はサービスと同じコストで生成したダミーハッシュを返す。
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := HashPassword(dummyPassword, s.config.BcryptCost)
		if err != nil {
			slog.Error("failed to prepare dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
