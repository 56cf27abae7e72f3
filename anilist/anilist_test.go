package anilist

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"

	"github.com/nanachan-bot/nanachan/cache"
)

const mediaResp = `{"data":{"Page":{"media":[{
	"id": 130003,
	"type": "ANIME",
	"format": "TV",
	"status": "FINISHED",
	"episodes": 12,
	"siteUrl": "https://anilist.co/anime/130003",
	"averageScore": 88,
	"genres": ["Comedy", "Music"],
	"description": "Hitori Gotou is a <i>high school</i> girl.<br><br>\nShe plays guitar.",
	"title": {"romaji": "Bocchi the Rock!", "english": "BOCCHI THE ROCK!", "native": "ぼっち・ざ・ろっく！"},
	"coverImage": {"large": "https://img/bocchi.png", "color": "#e4a1c9"},
	"startDate": {"year": 2022, "month": 10, "day": 9},
	"season": "FALL",
	"seasonYear": 2022
}]}}}`

func server(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32, chan request) {
	t.Helper()
	var hits atomic.Int32
	reqs := make(chan request, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		b, _ := io.ReadAll(r.Body)
		var q request
		if err := json.Unmarshal(b, &q); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		reqs <- q
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, reqs
}

func TestMedia(t *testing.T) {
	srv, _, reqs := server(t, 200, mediaResp)
	cl := Client{HTTP: srv.Client(), Endpoint: srv.URL}
	m, err := cl.Media(context.Background(), Anime, "bocchi")
	if err != nil {
		t.Fatal(err)
	}
	q := <-reqs
	if diff := cmp.Diff(map[string]any{"search": "bocchi", "type": "ANIME"}, q.Variables); diff != "" {
		t.Errorf("wrong variables (-want +got):\n%s", diff)
	}
	if len(m) != 1 {
		t.Fatalf("wrong number of results: want 1, got %d", len(m))
	}
	want := Media{
		ID:           130003,
		Type:         Anime,
		Format:       "TV",
		Status:       "FINISHED",
		Episodes:     12,
		SiteURL:      "https://anilist.co/anime/130003",
		AverageScore: 88,
		Genres:       []string{"Comedy", "Music"},
		Description:  "Hitori Gotou is a <i>high school</i> girl.<br><br>\nShe plays guitar.",
		Title:        Title{Romaji: "Bocchi the Rock!", English: "BOCCHI THE ROCK!", Native: "ぼっち・ざ・ろっく！"},
		CoverImage:   Image{Large: "https://img/bocchi.png", Color: "#e4a1c9"},
		StartDate:    Date{Year: 2022, Month: 10, Day: 9},
		Season:       "FALL",
		SeasonYear:   2022,
	}
	if diff := cmp.Diff(want, m[0]); diff != "" {
		t.Errorf("wrong media (-want +got):\n%s", diff)
	}
}

func TestCached(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	srv, hits, _ := server(t, 200, mediaResp)
	cl := Client{HTTP: srv.Client(), Endpoint: srv.URL, Cache: cache.New(db), TTL: time.Hour}
	for _, s := range []string{"bocchi", "Bocchi ", "BOCCHI"} {
		if _, err := cl.Media(context.Background(), Anime, s); err != nil {
			t.Fatal(err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("wrong number of requests: want 1, got %d", n)
	}
	// Different kinds don't share entries.
	if _, err := cl.Media(context.Background(), Manga, "bocchi"); err != nil {
		t.Fatal(err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("manga search hit anime cache: %d requests", n)
	}
}

func TestErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"ratelimit", 429, `{"errors":[{"message":"Too Many Requests.","status":429}],"data":null}`, ErrRateLimited},
		{"ratelimit-nobody", 429, ``, ErrRateLimited},
		{"notfound", 404, `{"errors":[{"message":"Not Found.","status":404}],"data":{"Page":null}}`, ErrNotFound},
		{"empty", 200, `{"data":{"Page":{"characters":[]}}}`, ErrNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv, _, _ := server(t, c.status, c.body)
			cl := Client{HTTP: srv.Client(), Endpoint: srv.URL}
			_, err := cl.Character(context.Background(), "ryo")
			if !errors.Is(err, c.want) {
				t.Errorf("wrong error: want %v, got %v", c.want, err)
			}
		})
	}
}

func TestStaff(t *testing.T) {
	const body = `{"data":{"Page":{"staff":[{"id":1,"siteUrl":"https://anilist.co/staff/1","favourites":5,"primaryOccupations":["Mangaka"],"name":{"full":"Aki Hamaji","native":"はまじあき"},"image":{"large":"x"},"description":""}]}}}`
	srv, _, _ := server(t, 200, body)
	cl := Client{HTTP: srv.Client(), Endpoint: srv.URL}
	s, err := cl.Staff(context.Background(), "hamaji")
	if err != nil {
		t.Fatal(err)
	}
	if s[0].Name.Full != "Aki Hamaji" || s[0].PrimaryOccupations[0] != "Mangaka" {
		t.Errorf("wrong staff: %+v", s[0])
	}
}

func TestMarkdown(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"plain", "bocchi", 1024, "bocchi"},
		{"tags", "<b>Hitori</b> <i>Gotou</i><br>\nguitar", 1024, "**Hitori** *Gotou*\nguitar"},
		{"entities", "Kessoku &amp; friends &quot;band&quot;", 1024, `Kessoku & friends "band"`},
		{"spoiler", "she ~!joins the band!~", 1024, "she ||joins the band||"},
		{"link", `see <a href="https://anilist.co/character/1">Nijika</a>`, 1024, "see [Nijika](https://anilist.co/character/1)"},
		{"unknown", "<span class=x>ryo</span>", 1024, "ryo"},
		{"newlines", "a<br><br><br><br>b", 1024, "a\n\nb"},
		{"truncate", "ぼっち・ざ・ろっく", 4, "ぼっち…"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Markdown(c.in, c.max); got != c.want {
				t.Errorf("wrong markdown: want %q, got %q", c.want, got)
			}
		})
	}
}

func TestTitleDate(t *testing.T) {
	if got := (Title{Romaji: "Bocchi", Native: "ぼっち"}).String(); got != "Bocchi" {
		t.Errorf("wrong title: %q", got)
	}
	if got := (Date{Year: 2022, Month: 10}).String(); got != "2022-10" {
		t.Errorf("wrong date: %q", got)
	}
	if got := (Date{}).String(); got != "?" {
		t.Errorf("wrong empty date: %q", got)
	}
}
