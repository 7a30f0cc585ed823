package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/ssogate/internal/auth"
	"github.com/hitoshi/ssogate/internal/middleware"
	"github.com/hitoshi/ssogate/internal/model"
)

// AccessChecker はSDKエンドポイントがアプリケーション単位の認可判定に使うインターフェース。
type AccessChecker interface {
	CheckAccess(ctx context.Context, applicationID, email string) error
	AuthorizeRedirect(ctx context.Context, applicationID, redirectURI string) error
}

// SDKHandler はAPIキーで認証される連携アプリケーション向けのHTTPハンドラー。
type SDKHandler struct {
	auth     AuthServiceInterface
	verifier TokenVerifier
	access   AccessChecker
}

// NewSDKHandler はSDKHandlerを生成する。
func NewSDKHandler(service AuthServiceInterface, verifier TokenVerifier, access AccessChecker) *SDKHandler {
	return &SDKHandler{
		auth:     service,
		verifier: verifier,
		access:   access,
	}
}

type sdkLoginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	RedirectURI string `json:"redirect_uri"`
}

type sdkUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type sdkVerifyResponse struct {
	Valid bool     `json:"valid"`
	User  *sdkUser `json:"user,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Login は連携アプリケーションの代理でログインする。
// アプリケーションスコープのキーでは、認可のない利用者にセッションを発行しない。
// POST /sdk/login
func (h *SDKHandler) Login(w http.ResponseWriter, r *http.Request) {
	key, err := middleware.APIKeyFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthenticationError("Missing API key"))
		return
	}

	var req sdkLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	var gate auth.LoginGate
	if key.Scope.Kind == model.ScopeApplication {
		appID := key.Scope.ID
		if req.RedirectURI != "" {
			if err := h.access.AuthorizeRedirect(r.Context(), appID, req.RedirectURI); err != nil {
				handleServiceError(w, r, err)
				return
			}
		}
		gate = func(ctx context.Context, identity *model.Identity) error {
			return h.access.CheckAccess(ctx, appID, identity.Email)
		}
	}

	session, err := h.auth.LoginWithGate(r.Context(), req.Email, req.Password, gate)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Verify はアクセストークンを検証し、アプリケーションスコープのキーでは認可も判定する。
// 結果は常に200で返す。
// GET /sdk/verify?token=
func (h *SDKHandler) Verify(w http.ResponseWriter, r *http.Request) {
	key, err := middleware.APIKeyFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthenticationError("Missing API key"))
		return
	}

	principal, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		writeJSON(w, http.StatusOK, sdkVerifyResponse{Valid: false, Error: verifyErrorMessage(err)})
		return
	}

	// トークン発行後のプロフィール変更や停止を反映するため、保存済みの状態で判定する
	identity, err := h.auth.Me(r.Context(), principal.IdentityID)
	if err != nil {
		if _, ok := err.(*model.APIError); !ok {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sdkVerifyResponse{Valid: false, Error: "Invalid access token"})
		return
	}
	if !identity.IsActive() {
		writeJSON(w, http.StatusOK, sdkVerifyResponse{Valid: false, Error: "Account is not active"})
		return
	}

	if key.Scope.Kind == model.ScopeApplication {
		if err := h.access.CheckAccess(r.Context(), key.Scope.ID, identity.Email); err != nil {
			if _, ok := err.(*model.APIError); !ok {
				handleServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, sdkVerifyResponse{Valid: false, Error: verifyErrorMessage(err)})
			return
		}
	}

	writeJSON(w, http.StatusOK, sdkVerifyResponse{
		Valid: true,
		User: &sdkUser{
			ID:    identity.ID,
			Email: identity.Email,
			Role:  string(identity.Role),
		},
	})
}
