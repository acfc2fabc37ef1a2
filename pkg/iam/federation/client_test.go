package federation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore/credstoremem"
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/federation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is an OAuth2 server with a token and a user-info endpoint.
type fakeProvider struct {
	tokenStatus int
	tokenBody   map[string]any
	userInfo    any
	gotInfoAuth string
	gotInfoQry  url.Values
	gotTokenReq url.Values
}

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.gotTokenReq = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_ = json.NewEncoder(w).Encode(f.tokenBody)
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		f.gotInfoAuth = r.Header.Get("Authorization")
		f.gotInfoQry = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.userInfo)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func pointAt(p federation.Provider, srv *httptest.Server) federation.Provider {
	p.AuthURL = srv.URL + "/authorize"
	p.TokenURL = srv.URL + "/token"
	p.UserInfoURL = srv.URL + "/info"
	return p
}

func newClient(t *testing.T, providers ...federation.Provider) *federation.Client {
	t.Helper()
	c := federation.NewClient(credstoremem.New())
	for _, p := range providers {
		c.Register(p)
	}
	return c
}

var creds = federation.Credentials{ClientID: "cid", ClientSecret: "csecret"}

func TestAuthCodeURL_GeneratesStateAndProviderParams(t *testing.T) {
	c := newClient(t, federation.VK(creds, "https://auth.example.com"))

	raw, state, err := c.AuthCodeURL(context.Background(), "vk", "")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "oauth.vk.com", u.Host)
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "popup", q.Get("display"))
	assert.Equal(t, "5.131", q.Get("v"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://auth.example.com/v1/oauth/callback?name=vk", q.Get("redirect_uri"))

	_, second, err := c.AuthCodeURL(context.Background(), "vk", "")
	require.NoError(t, err)
	assert.NotEqual(t, state, second)
}

func TestAuthCodeURL_KeepsSuppliedState(t *testing.T) {
	c := newClient(t, federation.Yandex(creds))

	_, state, err := c.AuthCodeURL(context.Background(), "yandex", "my-state")
	require.NoError(t, err)
	assert.Equal(t, "my-state", state)
}

func TestUnknownProvider(t *testing.T) {
	c := newClient(t)

	_, _, err := c.AuthCodeURL(context.Background(), "github", "")
	assert.True(t, errx.HasCode(err, federation.CodeProviderNotFound))
}

func TestExchange_Yandex(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{
		tokenStatus: http.StatusOK,
		tokenBody:   map[string]any{"access_token": "ya-token", "token_type": "bearer"},
		userInfo:    map[string]any{"id": "1130000012345", "login": "ivan", "default_email": "ivan@yandex.ru"},
	}
	c := newClient(t, pointAt(federation.Yandex(creds), fp.server(t)))

	_, state, err := c.AuthCodeURL(ctx, "yandex", "")
	require.NoError(t, err)

	id, err := c.Exchange(ctx, "yandex", "the-code", state)
	require.NoError(t, err)
	assert.Equal(t, federation.Identity{
		Provider:       "yandex",
		ProviderUserID: "1130000012345",
		Login:          "ivan",
		Email:          "ivan@yandex.ru",
	}, *id)

	assert.Equal(t, "OAuth ya-token", fp.gotInfoAuth)
	assert.Equal(t, "json", fp.gotInfoQry.Get("format"))
	assert.Equal(t, "authorization_code", fp.gotTokenReq.Get("grant_type"))
	assert.Equal(t, "the-code", fp.gotTokenReq.Get("code"))
	assert.Equal(t, "cid", fp.gotTokenReq.Get("client_id"))
	assert.Equal(t, "csecret", fp.gotTokenReq.Get("client_secret"))

	// State is single-use.
	_, err = c.Exchange(ctx, "yandex", "the-code", state)
	assert.True(t, errx.HasCode(err, federation.CodeInvalidState))
}

func TestExchange_VKUsesUserIDFromTokenResponse(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{
		tokenStatus: http.StatusOK,
		tokenBody:   map[string]any{"access_token": "vk-token", "expires_in": 86400, "user_id": 777},
		userInfo:    map[string]any{"response": []map[string]any{{"id": 777, "screen_name": "durov"}}},
	}
	c := newClient(t, pointAt(federation.VK(creds, "http://localhost"), fp.server(t)))

	_, state, err := c.AuthCodeURL(ctx, "vk", "")
	require.NoError(t, err)

	id, err := c.Exchange(ctx, "vk", "code", state)
	require.NoError(t, err)
	assert.Equal(t, "777", id.ProviderUserID)
	assert.Equal(t, "durov", id.Login)
	assert.Equal(t, "777", fp.gotInfoQry.Get("user_ids"))
	assert.Equal(t, "5.131", fp.gotInfoQry.Get("v"))
	assert.Equal(t, "http://localhost/v1/oauth/callback?name=vk", fp.gotTokenReq.Get("redirect_uri"))
}

func TestExchange_ProviderErrorCarriesMessage(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{
		tokenStatus: http.StatusBadRequest,
		tokenBody:   map[string]any{"error": "invalid_grant", "error_description": "Code has expired"},
	}
	c := newClient(t, pointAt(federation.Mail(creds, "http://localhost"), fp.server(t)))

	_, state, err := c.AuthCodeURL(ctx, "mail", "")
	require.NoError(t, err)

	_, err = c.Exchange(ctx, "mail", "stale", state)
	require.True(t, errx.HasCode(err, federation.CodeProviderError))
	assert.True(t, errx.IsType(err, errx.TypeFederation))

	var e *errx.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Code has expired", e.Message)
	assert.Equal(t, "invalid_grant", e.Details["provider_error"])
}

func TestExchange_MissingProviderUserID(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{
		tokenStatus: http.StatusOK,
		tokenBody:   map[string]any{"access_token": "t", "token_type": "bearer"},
		userInfo:    map[string]any{"nickname": "ghost", "email": "ghost@mail.ru"},
	}
	c := newClient(t, pointAt(federation.Mail(creds, "http://localhost"), fp.server(t)))

	_, state, err := c.AuthCodeURL(ctx, "mail", "")
	require.NoError(t, err)

	_, err = c.Exchange(ctx, "mail", "code", state)
	assert.True(t, errx.HasCode(err, federation.CodeMissingProviderUserID))
}

func TestExchange_StateBoundToProvider(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, federation.Yandex(creds), federation.VK(creds, "http://localhost"))

	_, state, err := c.AuthCodeURL(ctx, "yandex", "")
	require.NoError(t, err)

	_, err = c.Exchange(ctx, "vk", "code", state)
	assert.True(t, errx.HasCode(err, federation.CodeInvalidState))

	_, err = c.Exchange(ctx, "yandex", "code", "")
	assert.True(t, errx.HasCode(err, federation.CodeInvalidState))
}

func TestExchange_StateExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := credstoremem.NewWithClock(func() time.Time { return now })
	c := federation.NewClient(store, federation.WithStateTTL(time.Minute))
	c.Register(federation.Yandex(creds))

	_, state, err := c.AuthCodeURL(ctx, "yandex", "")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Exchange(ctx, "yandex", "code", state)
	assert.True(t, errx.HasCode(err, federation.CodeInvalidState))
}
