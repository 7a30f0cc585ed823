package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/ssogate/internal/model"
)

// UserServiceInterface は利用者管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	ListIdentities(ctx context.Context, actor *model.Principal) ([]*model.Identity, error)
	SetRole(ctx context.Context, actor *model.Principal, identityID, role string) (*model.Identity, error)
	SetStatus(ctx context.Context, actor *model.Principal, identityID, status string) (*model.Identity, error)
	ListAuthorizedApplications(ctx context.Context, actor *model.Principal, email string) ([]*model.Application, error)
	RemoveSelf(ctx context.Context, actor *model.Principal, applicationID string) error
}

// UserHandler は利用者管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// ListUsers は全アイデンティティを返す。管理者のみ。
// GET /users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	identities, err := h.service.ListIdentities(r.Context(), principal)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]identityResponse, len(identities))
	for i, identity := range identities {
		resp[i] = toIdentityResponse(identity)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetRole はロールを変更する。?role= またはボディの {"role": ...} を受け付ける。
// PUT /users/{id}/role
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	role := valueFromQueryOrBody(r, "role")
	identity, err := h.service.SetRole(r.Context(), principal, chi.URLParam(r, "id"), role)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// SetStatus は利用状態を変更する。?status= またはボディの {"status": ...} を受け付ける。
// PUT /users/{id}/status
func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	status := valueFromQueryOrBody(r, "status")
	identity, err := h.service.SetStatus(r.Context(), principal, chi.URLParam(r, "id"), status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// ListAuthorizedApplications はメールアドレスがアクセスできるアプリケーションを返す。本人または管理者のみ。
// GET /user/email/{email}/apps
func (h *UserHandler) ListAuthorizedApplications(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	apps, err := h.service.ListAuthorizedApplications(r.Context(), principal, chi.URLParam(r, "email"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]applicationResponse, len(apps))
	for i, app := range apps {
		resp[i] = toApplicationResponse(app)
	}
	writeJSON(w, http.StatusOK, resp)
}

// RemoveSelf は呼び出し元自身のアプリケーションへの認可を削除する。
// POST /user/apps/{id}/remove
func (h *UserHandler) RemoveSelf(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveSelf(r.Context(), principal, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Access removed"})
}

// valueFromQueryOrBody はクエリパラメータを優先し、無ければJSONボディの同名フィールドを返す。
func valueFromQueryOrBody(r *http.Request, name string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	var body map[string]string
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	return body[name]
}
