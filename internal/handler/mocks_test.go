package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/ssogate/internal/apikey"
	"github.com/hitoshi/ssogate/internal/auth"
	"github.com/hitoshi/ssogate/internal/middleware"
	"github.com/hitoshi/ssogate/internal/model"
	"github.com/hitoshi/ssogate/internal/registry"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn      func(ctx context.Context, input auth.RegisterInput) (*auth.Session, error)
	loginFn         func(ctx context.Context, email, password string) (*auth.Session, error)
	loginWithGateFn func(ctx context.Context, email, password string, gate auth.LoginGate) (*auth.Session, error)
	refreshFn       func(ctx context.Context, refreshToken string) (*auth.Session, error)
	logoutFn        func(ctx context.Context, principal *model.Principal, refreshToken string) error
	meFn            func(ctx context.Context, identityID string) (*model.Identity, error)
	updateProfileFn func(ctx context.Context, identityID string, patch auth.ProfilePatch) (*model.Identity, error)
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func (m *mockAuthService) Register(ctx context.Context, input auth.RegisterInput) (*auth.Session, error) {
	return m.registerFn(ctx, input)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthService) LoginWithGate(ctx context.Context, email, password string, gate auth.LoginGate) (*auth.Session, error) {
	return m.loginWithGateFn(ctx, email, password, gate)
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.Session, error) {
	return m.refreshFn(ctx, refreshToken)
}

func (m *mockAuthService) Logout(ctx context.Context, principal *model.Principal, refreshToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, principal, refreshToken)
	}
	return nil
}

func (m *mockAuthService) Me(ctx context.Context, identityID string) (*model.Identity, error) {
	return m.meFn(ctx, identityID)
}

func (m *mockAuthService) UpdateProfile(ctx context.Context, identityID string, patch auth.ProfilePatch) (*model.Identity, error) {
	return m.updateProfileFn(ctx, identityID, patch)
}

type mockTokenVerifier struct {
	verifyFn func(raw string) (*model.Principal, error)
}

func (m *mockTokenVerifier) Verify(raw string) (*model.Principal, error) {
	return m.verifyFn(raw)
}

// staticVerifier は "admin-token" と "member-token" のみを受け付ける検証器を返す。
func staticVerifier() *mockTokenVerifier {
	return &mockTokenVerifier{
		verifyFn: func(raw string) (*model.Principal, error) {
			switch raw {
			case "admin-token":
				return adminPrincipal(), nil
			case "member-token":
				return memberPrincipal(), nil
			case "expired-token":
				return nil, model.NewTokenExpiredError()
			default:
				return nil, model.NewAuthenticationError("Invalid access token")
			}
		},
	}
}

type mockRegistry struct {
	listApplicationsFn           func(ctx context.Context, actor *model.Principal) ([]model.ApplicationWithGrants, error)
	getApplicationFn             func(ctx context.Context, actor *model.Principal, id string) (*model.Application, error)
	createApplicationFn          func(ctx context.Context, actor *model.Principal, spec registry.ApplicationSpec) (*model.Application, error)
	updateApplicationFn          func(ctx context.Context, actor *model.Principal, id string, spec registry.ApplicationSpec) (*model.Application, error)
	deleteApplicationFn          func(ctx context.Context, actor *model.Principal, id string) error
	rotateClientSecretFn         func(ctx context.Context, actor *model.Principal, id string) (*registry.ClientCredentials, error)
	setApplicationBlockedFn      func(ctx context.Context, actor *model.Principal, id string, blocked bool) (*model.Application, error)
	authorizeIdentityFn          func(ctx context.Context, actor *model.Principal, applicationID, email string) (*model.AuthorizationGrant, error)
	revokeIdentityFn             func(ctx context.Context, actor *model.Principal, applicationID, email string) error
	removeSelfFn                 func(ctx context.Context, actor *model.Principal, applicationID string) error
	setGrantBlockedFn            func(ctx context.Context, actor *model.Principal, applicationID, email string, blocked bool) error
	listIdentitiesFn             func(ctx context.Context, actor *model.Principal) ([]*model.Identity, error)
	setRoleFn                    func(ctx context.Context, actor *model.Principal, identityID, role string) (*model.Identity, error)
	setStatusFn                  func(ctx context.Context, actor *model.Principal, identityID, status string) (*model.Identity, error)
	listAuthorizedApplicationsFn func(ctx context.Context, actor *model.Principal, email string) ([]*model.Application, error)
	listRemovalsFn               func(ctx context.Context, actor *model.Principal, limit int) ([]*model.RemovalLogEntry, error)
	checkAccessFn                func(ctx context.Context, applicationID, email string) error
	authorizeRedirectFn          func(ctx context.Context, applicationID, redirectURI string) error
}

var _ RegistryService = (*mockRegistry)(nil)

func (m *mockRegistry) ListApplications(ctx context.Context, actor *model.Principal) ([]model.ApplicationWithGrants, error) {
	return m.listApplicationsFn(ctx, actor)
}

func (m *mockRegistry) GetApplication(ctx context.Context, actor *model.Principal, id string) (*model.Application, error) {
	return m.getApplicationFn(ctx, actor, id)
}

func (m *mockRegistry) CreateApplication(ctx context.Context, actor *model.Principal, spec registry.ApplicationSpec) (*model.Application, error) {
	return m.createApplicationFn(ctx, actor, spec)
}

func (m *mockRegistry) UpdateApplication(ctx context.Context, actor *model.Principal, id string, spec registry.ApplicationSpec) (*model.Application, error) {
	return m.updateApplicationFn(ctx, actor, id, spec)
}

func (m *mockRegistry) DeleteApplication(ctx context.Context, actor *model.Principal, id string) error {
	return m.deleteApplicationFn(ctx, actor, id)
}

func (m *mockRegistry) RotateClientSecret(ctx context.Context, actor *model.Principal, id string) (*registry.ClientCredentials, error) {
	return m.rotateClientSecretFn(ctx, actor, id)
}

func (m *mockRegistry) SetApplicationBlocked(ctx context.Context, actor *model.Principal, id string, blocked bool) (*model.Application, error) {
	return m.setApplicationBlockedFn(ctx, actor, id, blocked)
}

func (m *mockRegistry) AuthorizeIdentity(ctx context.Context, actor *model.Principal, applicationID, email string) (*model.AuthorizationGrant, error) {
	return m.authorizeIdentityFn(ctx, actor, applicationID, email)
}

func (m *mockRegistry) RevokeIdentity(ctx context.Context, actor *model.Principal, applicationID, email string) error {
	return m.revokeIdentityFn(ctx, actor, applicationID, email)
}

func (m *mockRegistry) RemoveSelf(ctx context.Context, actor *model.Principal, applicationID string) error {
	return m.removeSelfFn(ctx, actor, applicationID)
}

func (m *mockRegistry) SetGrantBlocked(ctx context.Context, actor *model.Principal, applicationID, email string, blocked bool) error {
	return m.setGrantBlockedFn(ctx, actor, applicationID, email, blocked)
}

func (m *mockRegistry) ListIdentities(ctx context.Context, actor *model.Principal) ([]*model.Identity, error) {
	return m.listIdentitiesFn(ctx, actor)
}

func (m *mockRegistry) SetRole(ctx context.Context, actor *model.Principal, identityID, role string) (*model.Identity, error) {
	return m.setRoleFn(ctx, actor, identityID, role)
}

func (m *mockRegistry) SetStatus(ctx context.Context, actor *model.Principal, identityID, status string) (*model.Identity, error) {
	return m.setStatusFn(ctx, actor, identityID, status)
}

func (m *mockRegistry) ListAuthorizedApplications(ctx context.Context, actor *model.Principal, email string) ([]*model.Application, error) {
	return m.listAuthorizedApplicationsFn(ctx, actor, email)
}

func (m *mockRegistry) ListRemovals(ctx context.Context, actor *model.Principal, limit int) ([]*model.RemovalLogEntry, error) {
	return m.listRemovalsFn(ctx, actor, limit)
}

func (m *mockRegistry) CheckAccess(ctx context.Context, applicationID, email string) error {
	return m.checkAccessFn(ctx, applicationID, email)
}

func (m *mockRegistry) AuthorizeRedirect(ctx context.Context, applicationID, redirectURI string) error {
	if m.authorizeRedirectFn != nil {
		return m.authorizeRedirectFn(ctx, applicationID, redirectURI)
	}
	return nil
}

type mockAPIKeyService struct {
	createKeyFn func(ctx context.Context, actor *model.Principal, scope model.KeyScope, name string) (*apikey.IssuedKey, error)
	listKeysFn  func(ctx context.Context, actor *model.Principal, scope model.KeyScope) ([]*model.APIKey, error)
	revokeKeyFn func(ctx context.Context, actor *model.Principal, id string) error
	verifyFn    func(ctx context.Context, plaintext string) (*model.APIKey, error)
}

var (
	_ APIKeyServiceInterface    = (*mockAPIKeyService)(nil)
	_ middleware.APIKeyVerifier = (*mockAPIKeyService)(nil)
)

func (m *mockAPIKeyService) CreateKey(ctx context.Context, actor *model.Principal, scope model.KeyScope, name string) (*apikey.IssuedKey, error) {
	return m.createKeyFn(ctx, actor, scope, name)
}

func (m *mockAPIKeyService) ListKeys(ctx context.Context, actor *model.Principal, scope model.KeyScope) ([]*model.APIKey, error) {
	return m.listKeysFn(ctx, actor, scope)
}

func (m *mockAPIKeyService) RevokeKey(ctx context.Context, actor *model.Principal, id string) error {
	return m.revokeKeyFn(ctx, actor, id)
}

func (m *mockAPIKeyService) Verify(ctx context.Context, plaintext string) (*model.APIKey, error) {
	return m.verifyFn(ctx, plaintext)
}

// --- ヘルパー ---

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func adminPrincipal() *model.Principal {
	return &model.Principal{
		IdentityID: "11111111-1111-1111-1111-111111111111",
		Email:      "admin@example.com",
		Role:       model.RoleAdministrator,
		ExpiresAt:  testNow.Add(15 * time.Minute),
	}
}

func memberPrincipal() *model.Principal {
	return &model.Principal{
		IdentityID: "22222222-2222-2222-2222-222222222222",
		Email:      "alice@example.edu",
		Role:       model.RoleMember,
		ExpiresAt:  testNow.Add(15 * time.Minute),
	}
}

func aliceIdentity() *model.Identity {
	return &model.Identity{
		ID:           "22222222-2222-2222-2222-222222222222",
		Name:         "Alice",
		Email:        "alice@example.edu",
		PasswordHash: "$2a$04$secret",
		Role:         model.RoleMember,
		Status:       model.StatusActive,
		CreatedAt:    testNow,
	}
}

func aliceSession() *auth.Session {
	return &auth.Session{
		AccessToken:  "access.jwt",
		RefreshToken: "rt-id.rt-secret",
		TokenType:    auth.TokenType,
		ExpiresIn:    900,
		ExpiresAt:    testNow.Add(15 * time.Minute),
		Identity:     aliceIdentity(),
	}
}

// withPrincipal はBearer認証済みのリクエストを作る。
func withPrincipal(req *http.Request, principal *model.Principal) *http.Request {
	return req.WithContext(middleware.ContextWithPrincipal(req.Context(), principal))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v (body=%q)", err, w.Body.String())
	}
	return v
}
