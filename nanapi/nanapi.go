// Package nanapi is a client for the nanapi backend, which owns profiles,
// waicolle game state, and AMQ accounts.
package nanapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"golang.org/x/oauth2"

	"github.com/nanachan-bot/nanachan/auth"
	"github.com/nanachan-bot/nanachan/metrics"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)

// Error is an error response from nanapi.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("nanapi: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("nanapi: %d %s", e.Status, e.Detail)
}

// Is matches the sentinel errors by status.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	}
	return false
}

// Client is a nanapi client.
type Client struct {
	// HTTP is the client for requests. If nil, http.DefaultClient is used.
	HTTP *http.Client
	// Base is the API base URL.
	Base string
	// Tokens provides bearer tokens.
	Tokens auth.TokenSource
	// Latency observes request durations labeled by service. It may be nil.
	Latency metrics.Observer
}

// call performs a request with a JSON body and decodes the JSON response
// into resp, refreshing the token and retrying once if it is rejected.
// Either body or resp may be nil.
func call[Resp any](ctx context.Context, c *Client, method, path string, query url.Values, body any, resp *Resp) error {
	var b []byte
	if body != nil {
		var err error
		b, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("couldn't encode %s %s body: %w", method, path, err)
		}
	}
	tok, err := c.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("couldn't get nanapi token: %w", err)
	}
	start := time.Now()
	defer func() { metrics.Observe(c.Latency, time.Since(start).Seconds(), "nanapi") }()
	err = do(ctx, c, tok, method, path, query, b, resp)
	var e *Error
	if errors.As(err, &e) && e.Status == http.StatusUnauthorized {
		tok, err = c.Tokens.Refresh(ctx, tok)
		if err != nil {
			return fmt.Errorf("couldn't refresh nanapi token: %w", err)
		}
		err = do(ctx, c, tok, method, path, query, b, resp)
	}
	return err
}

func do[Resp any](ctx context.Context, c *Client, tok *oauth2.Token, method, path string, query url.Values, body []byte, resp *Resp) error {
	u := strings.TrimSuffix(c.Base, "/") + path
	if len(query) != 0 {
		u += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("couldn't make request: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	r, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("couldn't %s %s: %w", method, path, err)
	}
	p, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	r.Body.Close()
	if err != nil {
		return fmt.Errorf("couldn't read %s %s response: %w", method, path, err)
	}
	if r.StatusCode >= 300 {
		e := &Error{Status: r.StatusCode}
		var d struct {
			Detail any `json:"detail"`
		}
		if json.Unmarshal(p, &d) == nil {
			switch v := d.Detail.(type) {
			case string:
				e.Detail = v
			case nil: // do nothing
			default:
				// Validation errors are structured.
				b, _ := json.Marshal(v)
				e.Detail = string(b)
			}
		}
		return e
	}
	if resp == nil || r.StatusCode == http.StatusNoContent || len(p) == 0 {
		return nil
	}
	if err := json.Unmarshal(p, resp); err != nil {
		return fmt.Errorf("couldn't decode %s %s response: %w", method, path, err)
	}
	return nil
}

// none is the response type for endpoints whose body is unused.
type none struct{}
