package accountapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore/credstoremem"
	"github.com/Abraxas-365/gatekeeper/pkg/errx/errxfiber"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/account/accountapi"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/account/accountsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/captcha"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/federation"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/otp/otpinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/otp/otpsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/ratelimit"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/revocation"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/token"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usermem"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const secret = "test-secret-that-is-long-enough-for-hs256"

type fixture struct {
	now   time.Time
	users *usermem.Directory
	app   *fiber.App
}

type fixedCaptcha struct{}

func (fixedCaptcha) Generate() (string, string) { return "10 + 11 + 12", "33" }

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	store := credstoremem.NewWithClock(clock)
	f.users = usermem.NewDirectory()
	history := usermem.NewLoginHistory()
	codec := token.NewCodec(secret, time.Hour, 24*time.Hour, token.WithClock(clock))
	ledger := revocation.NewLedger(store, 24*time.Hour)
	gate := auth.NewGate(codec, ledger)
	captchas := captcha.NewService(fixedCaptcha{}, store, 1, time.Minute)
	limiter := ratelimit.NewLimiter(store, captchas, limit, ratelimit.WithClock(clock))

	fed := federation.NewClient(store)
	fed.Register(federation.Yandex(federation.Credentials{ClientID: "cid", ClientSecret: "csecret"}))

	svc := accountsrv.NewService(accountsrv.Deps{
		Users:      f.users,
		Hasher:     userinfra.NewBcryptHasher(bcrypt.MinCost),
		History:    history,
		Codec:      codec,
		Ledger:     ledger,
		Gate:       gate,
		TwoFactor:  otpsrv.NewTwoFactorService(otpinfra.NewCredstoreSecretRepository(store), "gatekeeper", otpsrv.WithClock(clock)),
		Federation: fed,
		Captchas:   captchas,
		Audit:      authinfra.NewLogxAuditService(nil),
	}, accountsrv.WithClock(clock))

	f.app = fiber.New(fiber.Config{ErrorHandler: errxfiber.ErrorHandler})
	accountapi.NewAccountHandlers(svc, captchas, fed.Providers).
		RegisterRoutes(f.app, auth.NewAuthMiddleware(gate, limiter))
	return f
}

type response struct {
	status int
	header http.Header
	body   map[string]any
}

func (f *fixture) call(t *testing.T, method, path, bearer string, body any) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, header: resp.Header}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && json.Valid(raw) {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

func (f *fixture) signUp(t *testing.T, login string) (userID, sessionToken, refreshToken string) {
	t.Helper()
	resp := f.call(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"login": login, "email": login + "@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, resp.status, resp.body)
	userID = resp.body["id"].(string)
	assert.NotContains(t, resp.body, "password_hash")

	resp = f.call(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login": login, "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	return userID, resp.body["token"].(string), resp.body["refresh_token"].(string)
}

// promote makes login an administrator directly in the directory and signs
// in again so the token carries the role.
func (f *fixture) promote(t *testing.T, login string) string {
	t.Helper()
	ctx := context.Background()
	promoted, err := f.users.FindByLoginOrEmail(ctx, login)
	require.NoError(t, err)
	role, err := f.users.FindRoleByID(ctx, iam.RoleAdministratorID)
	require.NoError(t, err)
	require.NoError(t, promoted.SetRole(role, f.now))
	require.NoError(t, f.users.Update(ctx, promoted))

	resp := f.call(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"login": login, "password": "correct-horse"})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	return resp.body["token"].(string)
}

func TestAPI_SessionLifecycle(t *testing.T) {
	f := newFixture(t, 10)
	userID, session, refresh := f.signUp(t, "alice")

	resp := f.call(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login": "alice", "password": "nope-nope-nope",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, "USER_INVALID_CREDENTIALS", resp.body["code"])

	resp = f.call(t, http.MethodPost, "/v1/auth/validate-token", session, nil)
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, userID, resp.body["user_id"])

	resp = f.call(t, http.MethodPost, "/v1/auth/logout", session, nil)
	assert.Equal(t, http.StatusNoContent, resp.status)

	resp = f.call(t, http.MethodPost, "/v1/auth/validate-token", session, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, "IAM_TOKEN_REVOKED", resp.body["code"])

	resp = f.call(t, http.MethodPost, "/v1/auth/refresh-token", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, refresh, resp.body["refresh_token"])

	resp = f.call(t, http.MethodPost, "/v1/auth/validate-token", resp.body["token"].(string), nil)
	assert.Equal(t, http.StatusOK, resp.status)
}

func TestAPI_RegisterValidation(t *testing.T) {
	f := newFixture(t, 10)
	f.signUp(t, "alice")

	resp := f.call(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"login": "alice", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, resp.status)

	resp = f.call(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"login": "bob", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "VALIDATION", resp.body["type"])
}

func TestAPI_ValidateTokenIsRateLimited(t *testing.T) {
	f := newFixture(t, 2)
	_, session, _ := f.signUp(t, "alice")

	for i := 0; i < 2; i++ {
		resp := f.call(t, http.MethodPost, "/v1/auth/validate-token", session, nil)
		require.Equal(t, http.StatusOK, resp.status)
	}

	resp := f.call(t, http.MethodPost, "/v1/auth/validate-token", session, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.status)
	assert.Equal(t, true, resp.body["retryable"])
	details, _ := resp.body["details"].(map[string]any)
	assert.Equal(t, "10 + 11 + 12", details["captcha"])

	// The next minute starts a new bucket.
	f.now = f.now.Add(time.Minute)
	resp = f.call(t, http.MethodPost, "/v1/auth/validate-token", session, nil)
	assert.Equal(t, http.StatusOK, resp.status)
}

func TestAPI_Captcha(t *testing.T) {
	f := newFixture(t, 10)
	_, session, _ := f.signUp(t, "alice")

	resp := f.call(t, http.MethodGet, "/v1/captcha", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = f.call(t, http.MethodGet, "/v1/captcha", session, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "10 + 11 + 12", resp.body["captcha"])

	// Registration from the challenged IP needs the answer.
	resp = f.call(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"login": "bob", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.status)
	assert.Equal(t, "CAPTCHA_NOT_VALID", resp.body["code"])

	resp = f.call(t, http.MethodPost, "/v1/captcha", session, map[string]string{"answer": "33"})
	require.Equal(t, http.StatusOK, resp.status, resp.body)

	resp = f.call(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"login": "bob", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusCreated, resp.status)
}

func TestAPI_UserRoutes(t *testing.T) {
	f := newFixture(t, 10)
	aliceID, alice, _ := f.signUp(t, "alice")
	bobID, bob, _ := f.signUp(t, "bob")

	resp := f.call(t, http.MethodGet, "/v1/users/"+aliceID, alice, nil)
	assert.Equal(t, http.StatusOK, resp.status)

	resp = f.call(t, http.MethodGet, "/v1/users/"+aliceID, bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = f.call(t, http.MethodGet, "/v1/users", alice, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = f.call(t, http.MethodGet, "/v1/users/"+aliceID+"/login-history", alice, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["items"], 1)

	// Promote alice directly in the directory; her next token carries the role.
	admin := f.promote(t, "alice")

	resp = f.call(t, http.MethodGet, "/v1/users?page=1&page_size=1", admin, nil)
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Len(t, resp.body["items"], 1)

	resp = f.call(t, http.MethodPut, "/v1/users/"+bobID+"/roles", admin, map[string]string{"role_id": iam.RoleRootID.String()})
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, "USER_ROOT_PROTECTED", resp.body["code"])

	resp = f.call(t, http.MethodDelete, "/v1/users/"+bobID, admin, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.NotEmpty(t, resp.body["deleted_at"])

	resp = f.call(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"login": "bob", "password": "correct-horse"})
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, "USER_ACCOUNT_BLOCKED", resp.body["code"])

	resp = f.call(t, http.MethodDelete, "/v1/users/"+aliceID, bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)
}

func TestAPI_TwoFactorEnrollment(t *testing.T) {
	f := newFixture(t, 10)
	aliceID, alice, _ := f.signUp(t, "alice")

	resp := f.call(t, http.MethodPost, "/v1/users/"+aliceID+"/two-auth/sync", alice, nil)
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Contains(t, resp.body["provisioning_uri"], "otpauth://totp/")

	resp = f.call(t, http.MethodPost, "/v1/users/"+aliceID+"/two-auth/check", alice, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.status)
}

func TestAPI_OAuth(t *testing.T) {
	f := newFixture(t, 10)

	resp := f.call(t, http.MethodGet, "/v1/oauth/providers", "", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, []any{"yandex"}, resp.body["providers"])

	resp = f.call(t, http.MethodGet, "/v1/oauth/login?name=Yandex", "", nil)
	require.Equal(t, http.StatusFound, resp.status)
	location, err := url.Parse(resp.header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "oauth.yandex.ru", location.Host)
	assert.NotEmpty(t, location.Query().Get("state"))

	resp = f.call(t, http.MethodGet, "/v1/oauth/login?name=github", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = f.call(t, http.MethodGet, "/v1/oauth/callback?name=yandex&code=abc&state=forged", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "FEDERATION_INVALID_STATE", resp.body["code"])
}

func TestAPI_ValidateTokenFromBody(t *testing.T) {
	f := newFixture(t, 10)
	_, alice, _ := f.signUp(t, "alice")
	bobID, bob, _ := f.signUp(t, "bob")

	resp := f.call(t, http.MethodPost, "/v1/auth/validate-token", alice, map[string]string{"token": bob})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, bobID, resp.body["user_id"])

	resp = f.call(t, http.MethodPost, "/v1/auth/validate-token", alice, map[string]string{"token": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.status)
}

func TestAPI_ChangePassword(t *testing.T) {
	f := newFixture(t, 10)
	_, alice, _ := f.signUp(t, "alice")

	resp := f.call(t, http.MethodPost, "/v1/auth/change-password", "", map[string]string{
		"current_password": "correct-horse", "password": "battery-staple",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = f.call(t, http.MethodPost, "/v1/auth/change-password", alice, map[string]string{
		"current_password": "wrong-horse", "password": "battery-staple",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.status)
	assert.Equal(t, "USER_WRONG_PASSWORD", resp.body["code"])

	resp = f.call(t, http.MethodPost, "/v1/auth/change-password", alice, map[string]string{
		"current_password": "correct-horse", "password": "battery-staple",
	})
	require.Equal(t, http.StatusNoContent, resp.status, resp.body)

	resp = f.call(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"login": "alice", "password": "battery-staple"})
	assert.Equal(t, http.StatusOK, resp.status)
}

func TestAPI_AdminManagesUsers(t *testing.T) {
	f := newFixture(t, 10)
	f.signUp(t, "alice")
	_, bob, _ := f.signUp(t, "bob")
	admin := f.promote(t, "alice")

	newUser := map[string]string{
		"login": "carol", "email": "carol@example.com", "password": "correct-horse", "role_id": iam.RoleUserID.String(),
	}
	resp := f.call(t, http.MethodPost, "/v1/users", bob, newUser)
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = f.call(t, http.MethodPost, "/v1/users", admin, newUser)
	require.Equal(t, http.StatusCreated, resp.status, resp.body)
	carolID := resp.body["id"].(string)
	assert.Equal(t, iam.RoleUserName, resp.body["role_name"])

	resp = f.call(t, http.MethodPost, "/v1/users", admin, newUser)
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "USER_ALREADY_EXISTS", resp.body["code"])

	resp = f.call(t, http.MethodPut, "/v1/users/"+carolID, admin, map[string]string{
		"login": "caroline", "email": "caroline@example.com", "role_id": iam.RoleAdministratorID.String(),
	})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, "caroline", resp.body["login"])
	assert.Equal(t, iam.RoleAdministratorName, resp.body["role_name"])

	resp = f.call(t, http.MethodPut, "/v1/users/"+carolID, admin, map[string]string{"login": "bob"})
	assert.Equal(t, http.StatusConflict, resp.status)

	resp = f.call(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"login": "caroline", "password": "correct-horse"})
	assert.Equal(t, http.StatusOK, resp.status)
}

func TestAPI_Roles(t *testing.T) {
	f := newFixture(t, 10)
	f.signUp(t, "alice")
	bobID, bob, _ := f.signUp(t, "bob")
	admin := f.promote(t, "alice")

	resp := f.call(t, http.MethodGet, "/v1/roles", bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = f.call(t, http.MethodGet, "/v1/roles", admin, nil)
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Len(t, resp.body["items"], 3)

	resp = f.call(t, http.MethodPost, "/v1/roles", admin, map[string]string{"name": "editor"})
	require.Equal(t, http.StatusCreated, resp.status, resp.body)
	editorID := resp.body["id"].(string)

	resp = f.call(t, http.MethodPost, "/v1/roles", admin, map[string]string{"name": "EDITOR"})
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "USER_ROLE_ALREADY_EXISTS", resp.body["code"])

	resp = f.call(t, http.MethodPut, "/v1/roles/"+editorID, admin, map[string]string{"name": "writer", "description": "writes"})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, "writer", resp.body["name"])

	resp = f.call(t, http.MethodPut, "/v1/users/"+bobID+"/roles", admin, map[string]string{"role_id": editorID})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, "writer", resp.body["role_name"])

	resp = f.call(t, http.MethodDelete, "/v1/roles/"+editorID, admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.status)
	assert.Equal(t, "USER_ROLE_IN_USE", resp.body["code"])

	resp = f.call(t, http.MethodPut, "/v1/users/"+bobID+"/roles", admin, map[string]string{"role_id": iam.RoleUserID.String()})
	require.Equal(t, http.StatusOK, resp.status, resp.body)

	resp = f.call(t, http.MethodDelete, "/v1/roles/"+editorID, admin, nil)
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.NotEmpty(t, resp.body["deleted_at"])

	resp = f.call(t, http.MethodGet, "/v1/roles/"+editorID, admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = f.call(t, http.MethodDelete, "/v1/roles/"+iam.RoleUserID.String(), admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.status)
	assert.Equal(t, "USER_BUILT_IN_ROLE", resp.body["code"])
}

func TestAPI_DisableTwoFactorNeedsCode(t *testing.T) {
	f := newFixture(t, 10)
	aliceID, alice, _ := f.signUp(t, "alice")

	resp := f.call(t, http.MethodDelete, "/v1/users/"+aliceID+"/two-auth", alice, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = f.call(t, http.MethodDelete, "/v1/users/"+aliceID+"/two-auth", alice, map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.status)
	assert.Equal(t, "OTP_NOT_ENROLLED", resp.body["code"])
}
