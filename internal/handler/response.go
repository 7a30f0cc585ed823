package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/ssogate/internal/auth"
	"github.com/hitoshi/ssogate/internal/middleware"
	"github.com/hitoshi/ssogate/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// identityResponse はアイデンティティのAPIレスポンス。パスワードハッシュは含めない。
type identityResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// sessionResponse はログイン・リフレッシュのAPIレスポンス。
type sessionResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int              `json:"expires_in"`
	ExpiresAt    time.Time        `json:"expires_at"`
	User         identityResponse `json:"user"`
}

// grantResponse は認可のAPIレスポンス。
type grantResponse struct {
	Email     string    `json:"email"`
	Blocked   bool      `json:"blocked"`
	GrantedAt time.Time `json:"granted_at"`
}

// applicationResponse はアプリケーションのAPIレスポンス。
// クライアントシークレットのハッシュは返さず、設定済みかどうかのみ返す。
type applicationResponse struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	URL              string          `json:"url"`
	RedirectURIs     []string        `json:"redirect_uris"`
	ClientID         string          `json:"client_id"`
	HasClientSecret  bool            `json:"has_client_secret"`
	Blocked          bool            `json:"blocked"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	AuthorizedEmails []string        `json:"authorized_emails,omitempty"`
	AuthorizedUsers  []grantResponse `json:"authorized_users,omitempty"`
}

// apiKeyResponse はAPIキーのメタデータのAPIレスポンス。
type apiKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	ScopeKind  string     `json:"scope_kind"`
	ScopeID    string     `json:"scope_id"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// createdAPIKeyResponse は発行直後のAPIキー。平文はこのレスポンスでのみ返す。
type createdAPIKeyResponse struct {
	apiKeyResponse
	Key string `json:"key"`
}

// removalResponse は認可削除ログのAPIレスポンス。
type removalResponse struct {
	ID              string    `json:"id"`
	ApplicationID   string    `json:"application_id"`
	ApplicationName string    `json:"application_name"`
	UserEmail       string    `json:"user_email"`
	ActorEmail      string    `json:"actor_email"`
	ActorName       string    `json:"actor_name"`
	RemovedAt       time.Time `json:"removed_at"`
}

// messageResponse は処理結果のメッセージのみを返すレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

func toIdentityResponse(identity *model.Identity) identityResponse {
	return identityResponse{
		ID:        identity.ID,
		Name:      identity.Name,
		Email:     identity.Email,
		Role:      string(identity.Role),
		Status:    string(identity.Status),
		CreatedAt: identity.CreatedAt,
	}
}

func toSessionResponse(session *auth.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn,
		ExpiresAt:    session.ExpiresAt,
		User:         toIdentityResponse(session.Identity),
	}
}

func toApplicationResponse(app *model.Application) applicationResponse {
	resp := applicationResponse{
		ID:              app.ID,
		Name:            app.Name,
		URL:             app.URL,
		RedirectURIs:    app.RedirectURIs,
		HasClientSecret: app.ClientSecretHash != nil && *app.ClientSecretHash != "",
		Blocked:         app.Blocked,
		CreatedAt:       app.CreatedAt,
		UpdatedAt:       app.UpdatedAt,
	}
	if resp.RedirectURIs == nil {
		resp.RedirectURIs = []string{}
	}
	if app.ClientID != nil {
		resp.ClientID = *app.ClientID
	}
	return resp
}

func toApplicationWithGrantsResponse(app model.ApplicationWithGrants) applicationResponse {
	resp := toApplicationResponse(&app.Application)
	resp.AuthorizedEmails = make([]string, 0, len(app.Grants))
	resp.AuthorizedUsers = make([]grantResponse, 0, len(app.Grants))
	for _, g := range app.Grants {
		resp.AuthorizedEmails = append(resp.AuthorizedEmails, g.Email)
		resp.AuthorizedUsers = append(resp.AuthorizedUsers, grantResponse{
			Email:     g.Email,
			Blocked:   g.Blocked,
			GrantedAt: g.GrantedAt,
		})
	}
	return resp
}

func toAPIKeyResponse(key *model.APIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:         key.ID,
		Name:       key.Name,
		Prefix:     key.Prefix,
		ScopeKind:  string(key.Scope.Kind),
		ScopeID:    key.Scope.ID,
		CreatedAt:  key.CreatedAt,
		LastUsedAt: key.LastUsedAt,
	}
}

func toRemovalResponse(entry *model.RemovalLogEntry) removalResponse {
	return removalResponse{
		ID:              entry.ID,
		ApplicationID:   entry.ApplicationID,
		ApplicationName: entry.ApplicationName,
		UserEmail:       entry.UserEmail,
		ActorEmail:      entry.ActorEmail,
		ActorName:       entry.ActorName,
		RemovedAt:       entry.RemovedAt,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをデコードする。失敗時はValidationErrorを返す。
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return model.NewValidationError("Invalid request body")
	}
	return nil
}

// decodeOptionalJSON は空ボディを許容してデコードする。
func decodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return model.NewValidationError("Invalid request body")
}

// handleServiceError はサービス層から返されたエラーをレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteError(w, r, err)
}

// requirePrincipal はBearer認証済みの呼び出し元を取得する。取得できない場合は401を書き込む。
func requirePrincipal(w http.ResponseWriter, r *http.Request) (*model.Principal, bool) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthenticationError("Not authenticated"))
		return nil, false
	}
	return principal, true
}
