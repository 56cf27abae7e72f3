// Package twitch is a small client for the Twitch Helix API, enough to follow
// streamers and announce when they go live.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"golang.org/x/oauth2"

	"github.com/nanachan-bot/nanachan/auth"
)

// ErrNeedRefresh is an error indicating that the access token needs to be refreshed.
// It must be checked using [errors.Is].
var ErrNeedRefresh = errors.New("need refresh")

// Client holds the context for requests to the Twitch API.
type Client struct {
	// HTTP is the HTTP client for performing requests.
	// If nil, http.DefaultClient is used.
	HTTP *http.Client
	// ID is the application's client ID.
	ID string
	// Tokens provides app access tokens.
	Tokens auth.TokenSource
	// Base overrides https://api.twitch.tv/ in tests.
	Base string
}

// reqjson performs an HTTP GET request and decodes the response as JSON.
// If the access token is rejected, it is refreshed once and the request
// retried. The response body is truncated to 2 MB.
// The result is the pagination cursor, if any.
func reqjson[Resp any](ctx context.Context, client Client, url string, u *Resp) (string, error) {
	tok, err := client.Tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("couldn't get Twitch token: %w", err)
	}
	pag, err := reqonce(ctx, client, tok, url, u)
	if errors.Is(err, ErrNeedRefresh) {
		tok, err = client.Tokens.Refresh(ctx, tok)
		if err != nil {
			return "", fmt.Errorf("couldn't refresh Twitch token: %w", err)
		}
		pag, err = reqonce(ctx, client, tok, url, u)
	}
	return pag, err
}

func reqonce[Resp any](ctx context.Context, client Client, tok *oauth2.Token, url string, u *Resp) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("couldn't make request: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Client-Id", client.ID)
	hc := client.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("couldn't GET: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("couldn't read response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK: // do nothing
	case http.StatusUnauthorized:
		return "", fmt.Errorf("request failed: %s (%w)", b, ErrNeedRefresh)
	default:
		return "", fmt.Errorf("request failed: %s (%s)", b, resp.Status)
	}
	r := struct {
		Data       jsontext.Value `json:"data"`
		Pagination struct {
			Cursor string `json:"cursor"`
		} `json:"pagination"`
	}{}
	if err := json.Unmarshal(b, &r); err != nil {
		return "", fmt.Errorf("couldn't decode JSON response: %w", err)
	}
	if err := json.Unmarshal(r.Data, u); err != nil {
		return "", fmt.Errorf("couldn't decode JSON data: %w", err)
	}
	return r.Pagination.Cursor, nil
}

// apiurl creates an api.twitch.tv URL for the given endpoint and with the
// given URL parameters.
func (client Client) apiurl(ep string, values url.Values) string {
	base := client.Base
	if base == "" {
		base = "https://api.twitch.tv/"
	}
	u, err := url.JoinPath(base, ep)
	if err != nil {
		panic("twitch: bad url join with " + ep)
	}
	if len(values) == 0 {
		return u
	}
	return u + "?" + values.Encode()
}
