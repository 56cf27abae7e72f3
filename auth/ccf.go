package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"golang.org/x/oauth2"
)

type ccf struct {
	mu  sync.Mutex
	cur *oauth2.Token

	cfg    oauth2.Config
	client *http.Client
	now    func() time.Time
}

// ClientCredentialsFlow creates a TokenSource which retrieves tokens through
// the client credentials grant flow.
// If client is nil, [http.DefaultClient] is used instead.
// Note that the client credentials flow does not have refresh tokens, so the
// tokens are not stored across processes.
func ClientCredentialsFlow(cfg oauth2.Config, client *http.Client) TokenSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &ccf{
		cfg:    cfg,
		client: client,
		now:    time.Now,
	}
}

// Token retrieves a token value, running the flow again if the current token
// has expired.
// The result is always non-nil if the error is nil.
func (c *ccf) Token(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil && (c.cur.Expiry.IsZero() || c.now().Before(c.cur.Expiry)) {
		return c.cur, nil
	}
	return c.flowLocked(ctx)
}

// Refresh forces a refresh of the token if its current value is identical
// to old in the sense of [Equal].
// The result is the refreshed token.
func (c *ccf) Refresh(ctx context.Context, old *oauth2.Token) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !Equal(c.cur, old) {
		return c.cur, nil
	}
	return c.flowLocked(ctx)
}

// tokenResponse is the token endpoint response. Twitch adds message and
// status on errors; OAuth2 servers in general use error and
// error_description.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`

	Message string `json:"message"`
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Detail  string `json:"error_description"`
}

func (c *ccf) flowLocked(ctx context.Context) (*oauth2.Token, error) {
	v := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"client_credentials"},
	}
	if len(c.cfg.Scopes) > 0 {
		v.Set("scope", strings.Join(c.cfg.Scopes, " "))
	}
	slog.LogAttrs(ctx, slog.LevelDebug-4, "ccf refresh ### THIS MESSAGE CONTAINS SECRETS ###", slog.Any("values", v))
	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Endpoint.TokenURL, strings.NewReader(v.Encode()))
	if err != nil {
		return nil, fmt.Errorf("couldn't create client credentials request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client credentials request failed: %w", err)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("couldn't read token response body: %w", err)
	}
	var d tokenResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("couldn't decode token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := d.Message
		if msg == "" {
			msg = strings.TrimSpace(d.Error + " " + d.Detail)
		}
		return nil, fmt.Errorf("client credentials failed: %s (%s)", msg, resp.Status)
	}
	slog.InfoContext(ctx, "client credentials", slog.String("token_url", c.cfg.Endpoint.TokenURL), slog.Int64("expires_in", d.ExpiresIn))
	tok := &oauth2.Token{
		AccessToken: d.AccessToken,
		TokenType:   d.TokenType,
	}
	if d.ExpiresIn > 0 {
		// Renew a little early so that requests in flight don't race expiry.
		tok.Expiry = c.now().Add(time.Duration(d.ExpiresIn)*time.Second - time.Minute)
	}
	c.cur = tok
	return c.cur, nil
}
