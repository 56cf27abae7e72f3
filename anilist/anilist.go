// Package anilist is a client for the AniList GraphQL API.
package anilist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/nanachan-bot/nanachan/cache"
)

// Endpoint is the public AniList API endpoint.
const Endpoint = "https://graphql.anilist.co"

var (
	// ErrRateLimited is returned when AniList rejects a request for rate limits.
	ErrRateLimited = errors.New("anilist rate limit exceeded")
	// ErrNotFound is returned when a search has no results.
	ErrNotFound = errors.New("no results")
)

// Client queries AniList.
type Client struct {
	// HTTP is the client for requests. If nil, http.DefaultClient is used.
	HTTP *http.Client
	// Endpoint is the GraphQL endpoint. If empty, [Endpoint] is used.
	Endpoint string
	// Cache holds responses. It may be nil.
	Cache *cache.Cache
	// TTL is the lifetime of cached responses.
	TTL time.Duration
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type response struct {
	Data   jsontext.Value `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

// query runs a GraphQL query and decodes its data into r.
// Results are cached under key.
func query[T any](ctx context.Context, c *Client, key, q string, vars map[string]any, r *T) error {
	if ok, err := cache.Get(c.Cache, key, r); err == nil && ok {
		return nil
	}
	body, err := json.Marshal(request{Query: q, Variables: vars})
	if err != nil {
		return fmt.Errorf("couldn't encode query: %w", err)
	}
	ep := c.Endpoint
	if ep == "" {
		ep = Endpoint
	}
	req, err := http.NewRequestWithContext(ctx, "POST", ep, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("couldn't make request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("couldn't query AniList: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("couldn't read AniList response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	var gr response
	if err := json.Unmarshal(b, &gr); err != nil {
		return fmt.Errorf("couldn't decode AniList response (%s): %w", resp.Status, err)
	}
	if len(gr.Errors) != 0 {
		e := gr.Errors[0]
		switch e.Status {
		case http.StatusTooManyRequests:
			return ErrRateLimited
		case http.StatusNotFound:
			return ErrNotFound
		}
		return fmt.Errorf("AniList query failed: %s (%d)", e.Message, e.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("AniList query failed: %s", resp.Status)
	}
	if err := json.Unmarshal(gr.Data, r); err != nil {
		return fmt.Errorf("couldn't decode AniList data: %w", err)
	}
	// Cache failures only cost a repeat request.
	cache.Set(c.Cache, key, *r, c.TTL)
	return nil
}

func cacheKey(kind, search string) string {
	return "anilist:" + kind + ":" + strings.ToLower(strings.TrimSpace(search))
}
