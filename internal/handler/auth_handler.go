package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/ssogate/internal/auth"
	"github.com/hitoshi/ssogate/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, input auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	LoginWithGate(ctx context.Context, email, password string, gate auth.LoginGate) (*auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Session, error)
	Logout(ctx context.Context, principal *model.Principal, refreshToken string) error
	Me(ctx context.Context, identityID string) (*model.Identity, error)
	UpdateProfile(ctx context.Context, identityID string, patch auth.ProfilePatch) (*model.Identity, error)
}

// TokenVerifier はアクセストークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(raw string) (*model.Principal, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	verifier TokenVerifier
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, verifier TokenVerifier) *AuthHandler {
	return &AuthHandler{
		service:  service,
		verifier: verifier,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type profileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// verifyResponse はトークン検証結果。無効な場合もステータスは200で返す。
type verifyResponse struct {
	Valid     bool   `json:"valid"`
	ID        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Register は新規登録を処理する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	session, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// Login はメールアドレスとパスワードによるログインを処理する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Refresh はリフレッシュトークンのローテーションを処理する。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	session, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Logout はセッションのリフレッシュトークンを失効させる。ボディのrefresh_tokenは任意。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req refreshRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.Logout(r.Context(), principal, req.RefreshToken); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

// Verify はアクセストークンを検証する。結果は常に200で返す。
// POST /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	principal, err := h.verifier.Verify(req.Token)
	if err != nil {
		writeJSON(w, http.StatusOK, verifyResponse{Valid: false, Error: verifyErrorMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Valid:     true,
		ID:        principal.IdentityID,
		Email:     principal.Email,
		Role:      string(principal.Role),
		ExpiresAt: principal.ExpiresAt.Unix(),
	})
}

// Me は現在のプロフィールを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	identity, err := h.service.Me(r.Context(), principal.IdentityID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// UpdateProfile は表示名・メールアドレスを更新する。
// PUT /auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	identity, err := h.service.UpdateProfile(r.Context(), principal.IdentityID, auth.ProfilePatch{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// verifyErrorMessage は検証失敗の理由をクライアント向けの文字列にする。
func verifyErrorMessage(err error) string {
	if apiErr, ok := err.(*model.APIError); ok {
		return apiErr.Message
	}
	return "Invalid access token"
}
