package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/ssogate/internal/audit"
	"github.com/hitoshi/ssogate/internal/model"
)

// AuditServiceInterface は監査ハンドラーが必要とするサービスインターフェース。
type AuditServiceInterface interface {
	ListRemovals(ctx context.Context, actor *model.Principal, limit int) ([]*model.RemovalLogEntry, error)
}

// AdminHandler は管理者向けの監査APIハンドラー。
type AdminHandler struct {
	service AuditServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AuditServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// ListRemovals は認可削除ログを新しい順に返す。
// limitはaudit.MaxListLimitで切り詰める。
// GET /admin/removals?limit=
func (h *AdminHandler) ListRemovals(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	limit := audit.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			handleServiceError(w, r, model.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = min(n, audit.MaxListLimit)
	}

	entries, err := h.service.ListRemovals(r.Context(), principal, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]removalResponse, len(entries))
	for i, entry := range entries {
		resp[i] = toRemovalResponse(entry)
	}
	writeJSON(w, http.StatusOK, resp)
}
