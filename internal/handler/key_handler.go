package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/ssogate/internal/apikey"
	"github.com/hitoshi/ssogate/internal/model"
)

// APIKeyServiceInterface はAPIキーハンドラーが必要とするサービスインターフェース。
type APIKeyServiceInterface interface {
	CreateKey(ctx context.Context, actor *model.Principal, scope model.KeyScope, name string) (*apikey.IssuedKey, error)
	ListKeys(ctx context.Context, actor *model.Principal, scope model.KeyScope) ([]*model.APIKey, error)
	RevokeKey(ctx context.Context, actor *model.Principal, id string) error
}

// KeyHandler はAPIキー管理のHTTPハンドラー。
type KeyHandler struct {
	service APIKeyServiceInterface
}

// NewKeyHandler はKeyHandlerを生成する。
func NewKeyHandler(service APIKeyServiceInterface) *KeyHandler {
	return &KeyHandler{service: service}
}

type createKeyRequest struct {
	Name string `json:"name"`
}

// ListOwnKeys は呼び出し元自身のAPIキーを返す。
// GET /keys
func (h *KeyHandler) ListOwnKeys(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	h.list(w, r, principal, model.KeyScope{Kind: model.ScopeIdentity, ID: principal.IdentityID})
}

// CreateOwnKey は呼び出し元自身のAPIキーを発行する。
// POST /keys
func (h *KeyHandler) CreateOwnKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	h.create(w, r, principal, model.KeyScope{Kind: model.ScopeIdentity, ID: principal.IdentityID})
}

// ListApplicationKeys はアプリケーションスコープのAPIキーを返す。
// GET /applications/{id}/api-keys
func (h *KeyHandler) ListApplicationKeys(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	h.list(w, r, principal, model.KeyScope{Kind: model.ScopeApplication, ID: chi.URLParam(r, "id")})
}

// CreateApplicationKey はアプリケーションスコープのAPIキーを発行する。
// POST /applications/{id}/api-keys
func (h *KeyHandler) CreateApplicationKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	h.create(w, r, principal, model.KeyScope{Kind: model.ScopeApplication, ID: chi.URLParam(r, "id")})
}

// RevokeKey はAPIキーを削除する。
// DELETE /keys/{id}
func (h *KeyHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.service.RevokeKey(r.Context(), principal, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *KeyHandler) list(w http.ResponseWriter, r *http.Request, principal *model.Principal, scope model.KeyScope) {
	keys, err := h.service.ListKeys(r.Context(), principal, scope)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]apiKeyResponse, len(keys))
	for i, key := range keys {
		resp[i] = toAPIKeyResponse(key)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *KeyHandler) create(w http.ResponseWriter, r *http.Request, principal *model.Principal, scope model.KeyScope) {
	var req createKeyRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	issued, err := h.service.CreateKey(r.Context(), principal, scope, req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdAPIKeyResponse{
		apiKeyResponse: toAPIKeyResponse(issued.Key),
		Key:            issued.Plaintext,
	})
}
