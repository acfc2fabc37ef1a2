package federation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"golang.org/x/oauth2"
)

const (
	defaultStateTTL    = 10 * time.Minute
	defaultHTTPTimeout = 10 * time.Second
	stateBytes         = 32
)

// Client runs the authorization-code flow against any registered provider.
type Client struct {
	mu         sync.RWMutex
	providers  map[string]*Provider
	store      credstore.Store
	httpClient *http.Client
	stateTTL   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for token and user-info calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithStateTTL sets how long an issued state token stays redeemable.
func WithStateTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.stateTTL = d
		}
	}
}

// NewClient creates a client that keeps anti-forgery state in store.
func NewClient(store credstore.Store, opts ...Option) *Client {
	c := &Client{
		providers:  make(map[string]*Provider),
		store:      store,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		stateTTL:   defaultStateTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces a provider under its name.
func (c *Client) Register(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.Name] = &p
}

// Providers lists the registered provider names.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for n := range c.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Client) provider(name string) (*Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[name]
	if !ok {
		return nil, ErrProviderNotFound(name)
	}
	return p, nil
}

func stateKey(state string) string { return "oauth_state:" + state }

// NewState returns a random URL-safe anti-forgery token.
func NewState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthCodeURL builds the provider authorization URL. When state is empty a
// fresh one is generated. The state is remembered so Exchange can verify it.
func (c *Client) AuthCodeURL(ctx context.Context, name, state string) (string, string, error) {
	p, err := c.provider(name)
	if err != nil {
		return "", "", err
	}

	if state == "" {
		if state, err = NewState(); err != nil {
			return "", "", err
		}
	}
	if err := c.store.Set(ctx, stateKey(state), p.Name, c.stateTTL); err != nil {
		return "", "", err
	}

	var opts []oauth2.AuthCodeOption
	if p.RedirectParams != nil {
		for k, vs := range p.RedirectParams(p) {
			for _, v := range vs {
				opts = append(opts, oauth2.SetAuthURLParam(k, v))
			}
		}
	}
	return p.oauthConfig().AuthCodeURL(state, opts...), state, nil
}

// Exchange redeems an authorization code and returns the normalized identity.
// The state must have been issued by AuthCodeURL for the same provider; it is
// consumed whether or not the exchange succeeds.
func (c *Client) Exchange(ctx context.Context, name, code, state string) (*Identity, error) {
	p, err := c.provider(name)
	if err != nil {
		return nil, err
	}

	if state == "" {
		return nil, ErrInvalidState().WithDetail("provider", p.Name)
	}
	issuedFor, ok, err := c.store.Pop(ctx, stateKey(state))
	if err != nil {
		return nil, err
	}
	if !ok || issuedFor != p.Name {
		return nil, ErrInvalidState().WithDetail("provider", p.Name)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := p.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, exchangeError(p.Name, err)
	}

	identity, err := p.FetchUser(ctx, c.httpClient, p, tok)
	if err != nil {
		return nil, err
	}
	if identity.ProviderUserID == "" {
		return nil, ErrMissingProviderUserID(p.Name)
	}
	identity.Provider = p.Name

	logx.WithContext(ctx).WithFields(logx.Fields{
		"provider":         p.Name,
		"provider_user_id": identity.ProviderUserID,
	}).Info("federated identity resolved")
	return identity, nil
}

// exchangeError turns an oauth2 failure into a federation error carrying the
// provider's description when it sent one.
func exchangeError(provider string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		e := ErrProviderError(provider, msg, err)
		if re.ErrorCode != "" {
			e.WithDetail("provider_error", re.ErrorCode)
		}
		return e
	}
	return ErrProviderError(provider, "", err)
}
