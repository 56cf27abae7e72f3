// Package saucenao is a client for SauceNAO reverse image search.
package saucenao

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/go-json-experiment/json"
)

// ErrRateLimited is returned when SauceNAO rejects a search for rate limits.
var ErrRateLimited = errors.New("saucenao rate limit exceeded")

// Client searches SauceNAO.
type Client struct {
	// HTTP is the client for requests. If nil, http.DefaultClient is used.
	HTTP *http.Client
	// Key is the API key.
	Key string
	// MinSimilarity filters results less similar than this percentage.
	MinSimilarity float64
	// Base overrides https://saucenao.com in tests.
	Base string
}

// Result is a single search match.
type Result struct {
	Similarity float64
	Thumbnail  string
	IndexName  string
	Title      string
	Author     string
	URLs       []string
	Source     string
}

type result struct {
	Header struct {
		Similarity string `json:"similarity"`
		Thumbnail  string `json:"thumbnail"`
		IndexName  string `json:"index_name"`
	} `json:"header"`
	Data struct {
		ExtURLs    []string `json:"ext_urls"`
		Title      string   `json:"title"`
		Source     string   `json:"source"`
		MemberName string   `json:"member_name"`
		Creator    any      `json:"creator"`
		Author     string   `json:"author_name"`
		EngName    string   `json:"eng_name"`
		Material   string   `json:"material"`
	} `json:"data"`
}

type response struct {
	Header struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"header"`
	Results []result `json:"results"`
}

func (r *result) result() Result {
	s, _ := strconv.ParseFloat(r.Header.Similarity, 64)
	d := &r.Data
	out := Result{
		Similarity: s,
		Thumbnail:  r.Header.Thumbnail,
		IndexName:  r.Header.IndexName,
		Title:      cmp.Or(d.Title, d.EngName, d.Material),
		URLs:       d.ExtURLs,
		Source:     d.Source,
	}
	switch c := d.Creator.(type) {
	case string:
		out.Author = c
	case []any:
		if len(c) > 0 {
			out.Author, _ = c[0].(string)
		}
	}
	out.Author = cmp.Or(out.Author, d.MemberName, d.Author)
	return out
}

// Search looks up an image by URL.
// Results are sorted by descending similarity and exclude those below
// MinSimilarity.
func (c *Client) Search(ctx context.Context, imageURL string) ([]Result, error) {
	v := url.Values{
		"output_type": {"2"},
		"api_key":     {c.Key},
		"db":          {"999"},
		"numres":      {"8"},
		"url":         {imageURL},
	}
	base := cmp.Or(c.Base, "https://saucenao.com")
	req, err := http.NewRequestWithContext(ctx, "GET", base+"/search.php?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't make request: %w", err)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't search SauceNAO: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("couldn't read SauceNAO response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK: // do nothing
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("SauceNAO search failed: %s", resp.Status)
	}
	var r response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("couldn't decode SauceNAO response: %w", err)
	}
	if r.Header.Status != 0 {
		return nil, fmt.Errorf("SauceNAO search failed: %s (status %d)", r.Header.Message, r.Header.Status)
	}
	res := make([]Result, 0, len(r.Results))
	for i := range r.Results {
		x := r.Results[i].result()
		if x.Similarity < c.MinSimilarity {
			continue
		}
		res = append(res, x)
	}
	slices.SortStableFunc(res, func(a, b Result) int { return cmp.Compare(b.Similarity, a.Similarity) })
	return res, nil
}
