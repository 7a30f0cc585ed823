// Package token はアクセストークン（HS256 JWT）の発行と検証を提供する。
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/ssogate/internal/model"
)

// accessTokenType はアクセストークンのtypクレーム値。
const accessTokenType = "access"

// Claims はアクセストークンのクレーム。
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// Config はトークンマネージャーの設定。
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// Manager はアクセストークンの発行と検証を行う。状態は持たない。
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(cfg Config) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    now,
	}
}

// TTL はアクセストークンの有効期間を返す。
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue はidentityとセッションIDに対するアクセストークンを発行する。
func (m *Manager) Issue(identity *model.Identity, sessionID string) (string, time.Time, error) {
	if identity == nil || identity.ID == "" {
		return "", time.Time{}, errors.New("identity is required")
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		Email:     identity.Email,
		Role:      string(identity.Role),
		SessionID: sessionID,
		Type:      accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はアクセストークンを検証し、呼び出し元のPrincipalを返す。
// 期限切れの場合はTokenExpiredError、それ以外の不正はAuthenticationErrorを返す。
// リフレッシュチェーンの状態は参照しない。
func (m *Manager) Verify(raw string) (*model.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, model.NewAuthenticationError("Missing access token")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.NewTokenExpiredError()
		}
		return nil, model.NewAuthenticationError("Invalid access token")
	}

	if claims.Type != accessTokenType {
		return nil, model.NewAuthenticationError("Invalid access token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, model.NewAuthenticationError("Invalid access token")
	}
	role, ok := model.ParseRole(claims.Role)
	if !ok {
		return nil, model.NewAuthenticationError("Invalid access token")
	}

	return &model.Principal{
		IdentityID: claims.Subject,
		Email:      claims.Email,
		Role:       role,
		SessionID:  claims.SessionID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
