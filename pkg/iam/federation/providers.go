package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"golang.org/x/oauth2"
)

// Provider is one row of the provider strategy table: its endpoints plus the
// two hooks that differ between providers.
type Provider struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	// RedirectURL is sent on the authorize and token requests when set.
	RedirectURL string

	// RedirectParams adds provider-specific authorize parameters.
	RedirectParams func(p *Provider) url.Values
	// FetchUser retrieves and normalizes the user behind tok.
	FetchUser func(ctx context.Context, hc *http.Client, p *Provider, tok *oauth2.Token) (*Identity, error)
}

func (p *Provider) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Credentials is a registered OAuth client at a provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// CallbackURL returns the callback address for provider under appAddress.
func CallbackURL(appAddress, provider string) string {
	return fmt.Sprintf("%s/v1/oauth/callback?name=%s", appAddress, url.QueryEscape(provider))
}

const vkAPIVersion = "5.131"

// Yandex returns the Yandex ID provider.
func Yandex(c Credentials) Provider {
	return Provider{
		Name:         string(iam.OAuthProviderYandex),
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		AuthURL:      "https://oauth.yandex.ru/authorize",
		TokenURL:     "https://oauth.yandex.ru/token",
		UserInfoURL:  "https://login.yandex.ru/info",
		RedirectParams: func(*Provider) url.Values {
			return url.Values{"display": {"popup"}}
		},
		FetchUser: fetchYandexUser,
	}
}

// Mail returns the Mail.ru provider. Mail.ru requires redirect_uri on both
// legs of the flow.
func Mail(c Credentials, appAddress string) Provider {
	name := string(iam.OAuthProviderMail)
	return Provider{
		Name:         name,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		AuthURL:      "https://oauth.mail.ru/login",
		TokenURL:     "https://oauth.mail.ru/token",
		UserInfoURL:  "https://oauth.mail.ru/userinfo",
		RedirectURL:  CallbackURL(appAddress, name),
		RedirectParams: func(*Provider) url.Values {
			return url.Values{"display": {"popup"}}
		},
		FetchUser: fetchMailUser,
	}
}

// VK returns the VK ID provider.
func VK(c Credentials, appAddress string) Provider {
	name := string(iam.OAuthProviderVK)
	return Provider{
		Name:         name,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		AuthURL:      "https://oauth.vk.com/authorize",
		TokenURL:     "https://oauth.vk.com/access_token",
		UserInfoURL:  "https://api.vk.com/method/users.get",
		RedirectURL:  CallbackURL(appAddress, name),
		RedirectParams: func(*Provider) url.Values {
			return url.Values{"display": {"popup"}, "v": {vkAPIVersion}}
		},
		FetchUser: fetchVKUser,
	}
}

// ============================================================================
// User info hooks
// ============================================================================

func fetchYandexUser(ctx context.Context, hc *http.Client, p *Provider, tok *oauth2.Token) (*Identity, error) {
	var body struct {
		ID           string `json:"id"`
		Login        string `json:"login"`
		DefaultEmail string `json:"default_email"`
	}
	header := http.Header{"Authorization": {"OAuth " + tok.AccessToken}}
	if err := getJSON(ctx, hc, p, url.Values{"format": {"json"}}, header, &body); err != nil {
		return nil, err
	}
	return &Identity{
		Provider:       p.Name,
		ProviderUserID: body.ID,
		Login:          body.Login,
		Email:          body.DefaultEmail,
	}, nil
}

func fetchMailUser(ctx context.Context, hc *http.Client, p *Provider, tok *oauth2.Token) (*Identity, error) {
	var body struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Nickname string `json:"nickname"`
		Error    string `json:"error"`
	}
	if err := getJSON(ctx, hc, p, url.Values{"access_token": {tok.AccessToken}}, nil, &body); err != nil {
		return nil, err
	}
	if body.Error != "" {
		return nil, ErrProviderError(p.Name, body.Error, nil)
	}
	return &Identity{
		Provider:       p.Name,
		ProviderUserID: body.ID,
		Login:          body.Nickname,
		Email:          body.Email,
	}, nil
}

func fetchVKUser(ctx context.Context, hc *http.Client, p *Provider, tok *oauth2.Token) (*Identity, error) {
	query := url.Values{
		"access_token": {tok.AccessToken},
		"v":            {vkAPIVersion},
	}
	if uid := extraString(tok, "user_id"); uid != "" {
		query.Set("user_ids", uid)
	}

	var body struct {
		Response []struct {
			ID         int64  `json:"id"`
			ScreenName string `json:"screen_name"`
		} `json:"response"`
		Error *struct {
			Message string `json:"error_msg"`
		} `json:"error"`
	}
	if err := getJSON(ctx, hc, p, query, nil, &body); err != nil {
		return nil, err
	}
	if body.Error != nil {
		return nil, ErrProviderError(p.Name, body.Error.Message, nil)
	}
	if len(body.Response) == 0 || body.Response[0].ID == 0 {
		return &Identity{Provider: p.Name}, nil
	}

	id := strconv.FormatInt(body.Response[0].ID, 10)
	login := body.Response[0].ScreenName
	if login == "" {
		login = "id" + id
	}
	return &Identity{
		Provider:       p.Name,
		ProviderUserID: id,
		Login:          login,
		Email:          extraString(tok, "email"),
	}, nil
}

// extraString reads a token response field that may be a JSON string or number.
func extraString(tok *oauth2.Token, key string) string {
	switch v := tok.Extra(key).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func getJSON(ctx context.Context, hc *http.Client, p *Provider, query url.Values, header http.Header, out any) error {
	u, err := url.Parse(p.UserInfoURL)
	if err != nil {
		return ErrUserInfoFailed(p.Name, err)
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ErrUserInfoFailed(p.Name, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return ErrUserInfoFailed(p.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ErrUserInfoFailed(p.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrUserInfoFailed(p.Name, fmt.Errorf("status %d", resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return ErrUserInfoFailed(p.Name, err)
	}
	return nil
}
