package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type tokenServer struct {
	status int
	body   string
	hits   atomic.Int32

	mu   sync.Mutex
	form url.Values
}

func (s *tokenServer) lastForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	r.ParseForm()
	s.mu.Lock()
	s.form = r.PostForm
	s.mu.Unlock()
	w.WriteHeader(s.status)
	io.WriteString(w, s.body)
}

func hostCCF(t *testing.T, srv *tokenServer) oauth2.Config {
	t.Helper()
	var mux http.ServeMux
	mux.Handle("POST /oauth2/token", srv)
	hs := httptest.NewServer(&mux)
	t.Cleanup(hs.Close)
	tokenURL, err := url.JoinPath(hs.URL, "/oauth2/token")
	if err != nil {
		panic(err)
	}
	return oauth2.Config{
		ClientID:     "bocchi",
		ClientSecret: "ryo",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		Scopes:       []string{"waicolle", "profiles"},
	}
}

func TestCCF(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := &tokenServer{status: 200, body: `{"access_token":"nijika","expires_in":5011271,"token_type":"bearer"}`}
	cfg := hostCCF(t, srv)
	src := ClientCredentialsFlow(cfg, &http.Client{Timeout: 30 * time.Second})
	tok, err := src.Token(ctx)
	if err != nil {
		t.Fatalf("couldn't get token: %v", err)
	}
	if tok.AccessToken != "nijika" {
		t.Errorf("wrong access token: want %q, got %q", "nijika", tok.AccessToken)
	}
	if tok.Expiry.IsZero() {
		t.Errorf("token has no expiry")
	}
	if got := srv.lastForm().Get("scope"); got != "waicolle profiles" {
		t.Errorf("wrong scope: %q", got)
	}
	if got := srv.lastForm().Get("grant_type"); got != "client_credentials" {
		t.Errorf("wrong grant type: %q", got)
	}
	// A second call must reuse the token.
	if _, err := src.Token(ctx); err != nil {
		t.Errorf("couldn't get token again: %v", err)
	}
	if n := srv.hits.Load(); n != 1 {
		t.Errorf("wrong number of token requests: want 1, got %d", n)
	}
}

func TestCCFRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := &tokenServer{status: 200, body: `{"access_token":"nijika","token_type":"bearer"}`}
	cfg := hostCCF(t, srv)
	src := ClientCredentialsFlow(cfg, nil)
	tok, err := src.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Refreshing a stale token returns the current one without a request.
	stale := &oauth2.Token{AccessToken: "kita"}
	if _, err := src.Refresh(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if n := srv.hits.Load(); n != 1 {
		t.Errorf("stale refresh made a request: %d hits", n)
	}
	if _, err := src.Refresh(ctx, tok); err != nil {
		t.Fatal(err)
	}
	if n := srv.hits.Load(); n != 2 {
		t.Errorf("refresh of current token didn't make a request: %d hits", n)
	}
}

func TestCCFExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := &tokenServer{status: 200, body: `{"access_token":"nijika","expires_in":3600,"token_type":"bearer"}`}
	cfg := hostCCF(t, srv)
	src := ClientCredentialsFlow(cfg, nil).(*ccf)
	now := time.Unix(1700000000, 0)
	src.now = func() time.Time { return now }
	if _, err := src.Token(ctx); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := src.Token(ctx); err != nil {
		t.Fatal(err)
	}
	if n := srv.hits.Load(); n != 2 {
		t.Errorf("expired token wasn't renewed: %d hits", n)
	}
}

func TestCCFError(t *testing.T) {
	t.Parallel()
	srv := &tokenServer{status: 400, body: `{"error":"invalid_client","error_description":"bad secret"}`}
	cfg := hostCCF(t, srv)
	src := ClientCredentialsFlow(cfg, nil)
	if _, err := src.Token(context.Background()); err == nil {
		t.Errorf("no error from failed flow")
	}
}

func TestEqual(t *testing.T) {
	a := &oauth2.Token{AccessToken: "a"}
	b := &oauth2.Token{AccessToken: "a"}
	if !Equal(a, b) || !Equal(nil, nil) {
		t.Errorf("equal tokens compared unequal")
	}
	if Equal(a, nil) || Equal(a, &oauth2.Token{AccessToken: "b"}) {
		t.Errorf("unequal tokens compared equal")
	}
}
