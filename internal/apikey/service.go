// Package apikey は長期利用のAPIキーの発行・一覧・失効・検証を提供する。
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/ssogate/internal/metrics"
	"github.com/hitoshi/ssogate/internal/model"
	"github.com/hitoshi/ssogate/internal/repository"
	"github.com/hitoshi/ssogate/internal/security"
)

const (
	// DefaultPrefix はキー平文の先頭に付ける既定の文字列。
	DefaultPrefix = "sso_live_"
	// keyBytes は乱数部分のバイト長。
	keyBytes = 32
	// displayPrefixLen は表示用に保存する先頭文字数。
	displayPrefixLen = 12
)

// IssuedKey は発行直後のキー。Plaintextはこの時だけ返す。
type IssuedKey struct {
	Key       *model.APIKey
	Plaintext string
}

// Service はAPIキーに関するビジネスロジックを提供する。
type Service struct {
	keys         repository.APIKeyRepository
	identities   repository.IdentityRepository
	applications repository.ApplicationRepository
	sanitizer    *security.TextSanitizer
	metrics      metrics.MetricsCollector
	prefix       string
	now          func() time.Time
}

// NewService はServiceを生成する。prefixが空の場合はDefaultPrefixを使う。
func NewService(
	keys repository.APIKeyRepository,
	identities repository.IdentityRepository,
	applications repository.ApplicationRepository,
	collector metrics.MetricsCollector,
	prefix string,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Service{
		keys:         keys,
		identities:   identities,
		applications: applications,
		sanitizer:    security.NewTextSanitizer(),
		metrics:      collector,
		prefix:       prefix,
		now:          time.Now,
	}
}

// CreateKey はスコープに新しいキーを発行する。
// アイデンティティスコープは呼び出し元自身のみ、アプリケーションスコープは管理者のみ発行できる。
// nameが空の場合は既定の名前を付ける。同一スコープ内で名前が重複する場合はConflictErrorを返す。
func (s *Service) CreateKey(ctx context.Context, actor *model.Principal, scope model.KeyScope, name string) (*IssuedKey, error) {
	caller, err := s.requireActive(ctx, actor)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	name = s.sanitizer.Clean(name)

	switch scope.Kind {
	case model.ScopeIdentity:
		if scope.ID == "" {
			scope.ID = caller.ID
		}
		if scope.ID != caller.ID {
			return nil, model.NewAuthorizationError("You can only create keys for yourself")
		}
		if name == "" {
			name = "key-" + id[:8]
		}
	case model.ScopeApplication:
		if !caller.IsAdmin() {
			return nil, model.NewAdminRequiredError()
		}
		app, err := s.findApplication(ctx, scope.ID)
		if err != nil {
			return nil, err
		}
		if name == "" {
			name = app.Name + " API Key"
		}
	default:
		return nil, model.NewValidationError("Unknown key scope")
	}

	plaintext, err := s.generate()
	if err != nil {
		return nil, err
	}
	key := &model.APIKey{
		ID:        id,
		Scope:     scope,
		Name:      name,
		Prefix:    plaintext[:displayPrefixLen],
		KeyHash:   fingerprint(plaintext),
		CreatedAt: s.now(),
	}
	if err := s.keys.Create(ctx, key); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConflictError("An API key with this name already exists")
		}
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}

	slog.Info("api key created",
		slog.String("key_id", key.ID),
		slog.String("scope_kind", string(scope.Kind)),
		slog.String("scope_id", scope.ID),
	)
	return &IssuedKey{Key: key, Plaintext: plaintext}, nil
}

// ListKeys はスコープに属するキーのメタデータを返す。平文・ハッシュは含めない。
func (s *Service) ListKeys(ctx context.Context, actor *model.Principal, scope model.KeyScope) ([]*model.APIKey, error) {
	caller, err := s.requireActive(ctx, actor)
	if err != nil {
		return nil, err
	}
	switch scope.Kind {
	case model.ScopeIdentity:
		if scope.ID == "" {
			scope.ID = caller.ID
		}
		if scope.ID != caller.ID && !caller.IsAdmin() {
			return nil, model.NewAuthorizationError("You can only list your own keys")
		}
	case model.ScopeApplication:
		if !caller.IsAdmin() {
			return nil, model.NewAdminRequiredError()
		}
		if _, err := s.findApplication(ctx, scope.ID); err != nil {
			return nil, err
		}
	default:
		return nil, model.NewValidationError("Unknown key scope")
	}

	keys, err := s.keys.ListByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	for _, k := range keys {
		k.KeyHash = ""
	}
	if keys == nil {
		keys = []*model.APIKey{}
	}
	return keys, nil
}

// RevokeKey はキーを削除する。所有者（本人のキー）または管理者のみ実行できる。
func (s *Service) RevokeKey(ctx context.Context, actor *model.Principal, id string) error {
	caller, err := s.requireActive(ctx, actor)
	if err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return model.NewNotFoundError("API key")
	}
	key, err := s.keys.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find api key: %w", err)
	}
	if key == nil {
		return model.NewNotFoundError("API key")
	}

	owner := key.Scope.Kind == model.ScopeIdentity && key.Scope.ID == caller.ID
	if !owner && !caller.IsAdmin() {
		// 他人のキーの存在は明かさない
		return model.NewNotFoundError("API key")
	}

	if err := s.keys.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("API key")
		}
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	slog.Info("api key revoked",
		slog.String("key_id", id),
		slog.String("actor_id", caller.ID),
	)
	return nil
}

// Verify は平文のキーを検証し、キーのメタデータを返す。
// 未知のキーと、所有者が利用可能状態でないアイデンティティスコープのキーは
// AuthenticationErrorを返す。成功時はlast_used_atを更新する。
func (s *Service) Verify(ctx context.Context, plaintext string) (*model.APIKey, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" || !strings.HasPrefix(plaintext, s.prefix) {
		s.metrics.RecordAPIKeyVerification(metrics.ResultFailure)
		return nil, model.NewAuthenticationError("Invalid API key")
	}

	key, err := s.keys.FindByHash(ctx, fingerprint(plaintext))
	if err != nil {
		return nil, fmt.Errorf("failed to find api key: %w", err)
	}
	if key == nil {
		s.metrics.RecordAPIKeyVerification(metrics.ResultFailure)
		return nil, model.NewAuthenticationError("Invalid API key")
	}

	if key.Scope.Kind == model.ScopeIdentity {
		owner, err := s.identities.FindByID(ctx, key.Scope.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to find key owner: %w", err)
		}
		if owner == nil || !owner.IsActive() {
			s.metrics.RecordAPIKeyVerification(metrics.ResultFailure)
			return nil, model.NewAuthenticationError("Invalid API key")
		}
	}

	s.metrics.RecordAPIKeyVerification(metrics.ResultSuccess)
	s.Touch(ctx, key.ID)
	key.KeyHash = ""
	return key, nil
}

// Touch はlast_used_atを更新する。失敗はログに残すのみで呼び出し元には返さない。
func (s *Service) Touch(ctx context.Context, id string) {
	if err := s.keys.Touch(ctx, id, s.now()); err != nil {
		slog.Warn("failed to touch api key",
			slog.String("key_id", id),
			slog.String("error", err.Error()),
		)
	}
}

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

// generate はプレフィックス付きのキー平文を生成する。
func (s *Service) generate() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return s.prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// fingerprint はキー平文のSHA-256ハッシュを16進文字列で返す。
func fingerprint(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
