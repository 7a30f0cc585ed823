package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/ssogate/internal/model"
	"github.com/hitoshi/ssogate/internal/registry"
)

// ApplicationServiceInterface はアプリケーション管理ハンドラーが必要とするサービスインターフェース。
type ApplicationServiceInterface interface {
	ListApplications(ctx context.Context, actor *model.Principal) ([]model.ApplicationWithGrants, error)
	GetApplication(ctx context.Context, actor *model.Principal, id string) (*model.Application, error)
	CreateApplication(ctx context.Context, actor *model.Principal, spec registry.ApplicationSpec) (*model.Application, error)
	UpdateApplication(ctx context.Context, actor *model.Principal, id string, spec registry.ApplicationSpec) (*model.Application, error)
	DeleteApplication(ctx context.Context, actor *model.Principal, id string) error
	RotateClientSecret(ctx context.Context, actor *model.Principal, id string) (*registry.ClientCredentials, error)
	SetApplicationBlocked(ctx context.Context, actor *model.Principal, id string, blocked bool) (*model.Application, error)
	AuthorizeIdentity(ctx context.Context, actor *model.Principal, applicationID, email string) (*model.AuthorizationGrant, error)
	RevokeIdentity(ctx context.Context, actor *model.Principal, applicationID, email string) error
	SetGrantBlocked(ctx context.Context, actor *model.Principal, applicationID, email string, blocked bool) error
}

// ApplicationHandler はアプリケーション管理のHTTPハンドラー。
type ApplicationHandler struct {
	service ApplicationServiceInterface
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service ApplicationServiceInterface) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// redirectList は文字列または文字列配列のどちらでも受け付けるリダイレクトURIの入力。
type redirectList []string

// UnmarshalJSON は "a, b" 形式の文字列と ["a", "b"] 形式の配列の両方を受け付ける。
func (l *redirectList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = redirectList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type applicationRequest struct {
	Name         string       `json:"name"`
	URL          string       `json:"url"`
	RedirectURIs redirectList `json:"redirect_uris"`
	RedirectURL  redirectList `json:"redirect_url"` // 旧クライアント互換
	ClientID     *string      `json:"client_id"`
	ClientSecret *string      `json:"client_secret"`
}

func (req applicationRequest) toSpec() registry.ApplicationSpec {
	uris := append([]string{}, req.RedirectURIs...)
	uris = append(uris, req.RedirectURL...)
	return registry.ApplicationSpec{
		Name:         req.Name,
		URL:          req.URL,
		RedirectURIs: uris,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
	}
}

type blockRequest struct {
	Blocked *bool `json:"blocked"`
}

type grantBlockRequest struct {
	Email   string `json:"email"`
	Blocked *bool  `json:"blocked"`
}

type mappingRequest struct {
	AppID string `json:"app_id"`
	Email string `json:"email"`
}

type clientCredentialsResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// ListApplications は全アプリケーションを認可一覧付きで返す。
// GET /applications
func (h *ApplicationHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	apps, err := h.service.ListApplications(r.Context(), principal)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]applicationResponse, len(apps))
	for i, app := range apps {
		resp[i] = toApplicationWithGrantsResponse(app)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateApplication はアプリケーションを登録する。
// POST /applications
func (h *ApplicationHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req applicationRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	app, err := h.service.CreateApplication(r.Context(), principal, req.toSpec())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// GetApplication はアプリケーションを1件返す。
// GET /applications/{id}
func (h *ApplicationHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	app, err := h.service.GetApplication(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// UpdateApplication はアプリケーションの設定を更新する。
// PUT /applications/{id}
func (h *ApplicationHandler) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req applicationRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	app, err := h.service.UpdateApplication(r.Context(), principal, chi.URLParam(r, "id"), req.toSpec())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// DeleteApplication はアプリケーションを削除する。認可とアプリケーションスコープのAPIキーも削除される。
// DELETE /applications/{id}
func (h *ApplicationHandler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteApplication(r.Context(), principal, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetBlocked はアプリケーション全体のブロック状態を切り替える。
// POST /applications/{id}/block
func (h *ApplicationHandler) SetBlocked(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req blockRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if req.Blocked == nil {
		handleServiceError(w, r, model.NewValidationError("blocked is required"))
		return
	}

	app, err := h.service.SetApplicationBlocked(r.Context(), principal, chi.URLParam(r, "id"), *req.Blocked)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// SetGrantBlocked は特定メールアドレスの認可のブロック状態を切り替える。
// POST /applications/{id}/users/block
func (h *ApplicationHandler) SetGrantBlocked(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req grantBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if req.Blocked == nil {
		handleServiceError(w, r, model.NewValidationError("blocked is required"))
		return
	}

	if err := h.service.SetGrantBlocked(r.Context(), principal, chi.URLParam(r, "id"), req.Email, *req.Blocked); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grantResponse{Email: strings.ToLower(strings.TrimSpace(req.Email)), Blocked: *req.Blocked})
}

// RotateClientSecret はクライアントシークレットを再発行する。平文はこのレスポンスでのみ返す。
// POST /applications/{id}/client-secret
func (h *ApplicationHandler) RotateClientSecret(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	creds, err := h.service.RotateClientSecret(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clientCredentialsResponse{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	})
}

// Map はメールアドレスにアプリケーションへの認可を付与する。既存の認可はブロック解除される。
// POST /map
func (h *ApplicationHandler) Map(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req mappingRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	grant, err := h.service.AuthorizeIdentity(r.Context(), principal, req.AppID, req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grantResponse{
		Email:     grant.Email,
		Blocked:   grant.Blocked,
		GrantedAt: grant.GrantedAt,
	})
}

// Unmap は認可を削除し、削除ログを記録する。
// POST /unmap
func (h *ApplicationHandler) Unmap(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req mappingRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.RevokeIdentity(r.Context(), principal, req.AppID, req.Email); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Access removed"})
}
