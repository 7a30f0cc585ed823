package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/ssogate/internal/auth"
	"github.com/hitoshi/ssogate/internal/model"
	"github.com/hitoshi/ssogate/internal/repository"
)

// BootstrapInput は初期管理者の作成内容。
type BootstrapInput struct {
	Email      string
	Password   string
	Name       string
	BcryptCost int
}

// BootstrapAdmin はメールアドレスに対応する管理者を用意する。
// 未登録なら管理者として作成し、登録済みなら管理者へ昇格して利用可能状態に戻す。
// 既存アイデンティティのパスワードは変更しない。繰り返し実行しても結果は同じ。
func BootstrapAdmin(ctx context.Context, identities repository.IdentityRepository, input BootstrapInput) (*model.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, errors.New("BOOTSTRAP_ADMIN_EMAIL is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid BOOTSTRAP_ADMIN_EMAIL: %w", err)
	}

	now := time.Now().UTC()

	existing, err := identities.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if existing != nil {
		if existing.Role != model.RoleAdministrator {
			if err := identities.UpdateRole(ctx, existing.ID, model.RoleAdministrator, now); err != nil {
				return nil, fmt.Errorf("failed to promote identity: %w", err)
			}
			existing.Role = model.RoleAdministrator
		}
		if existing.Status != model.StatusActive {
			if err := identities.UpdateStatus(ctx, existing.ID, model.StatusActive, now); err != nil {
				return nil, fmt.Errorf("failed to activate identity: %w", err)
			}
			existing.Status = model.StatusActive
		}
		slog.Info("existing identity promoted to administrator",
			slog.String("identity_id", existing.ID),
		)
		return existing, nil
	}

	if len(input.Password) < auth.MinPasswordLength {
		return nil, fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(input.Password, input.BcryptCost)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = "Administrator"
	}

	identity := &model.Identity{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdministrator,
		Status:       model.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := identities.Create(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to create administrator: %w", err)
	}

	slog.Info("administrator created",
		slog.String("identity_id", identity.ID),
	)
	return identity, nil
}
