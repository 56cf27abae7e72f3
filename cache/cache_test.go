package cache_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/go-cmp/cmp"

	"github.com/nanachan-bot/nanachan/cache"
)

type media struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return cache.New(db)
}

func TestGetSet(t *testing.T) {
	c := testCache(t)
	var got media
	ok, err := cache.Get(c, "bocchi", &got)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("empty cache hit: %+v", got)
	}
	want := media{ID: 130003, Title: "Bocchi the Rock!"}
	if err := cache.Set(c, "bocchi", want, time.Hour); err != nil {
		t.Fatal(err)
	}
	ok, err = cache.Get(c, "bocchi", &got)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("cache missed after set")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong value (-want +got):\n%s", diff)
	}
}

func TestBadFormatMisses(t *testing.T) {
	c := testCache(t)
	if err := cache.Set(c, "k", "not an object", time.Hour); err != nil {
		t.Fatal(err)
	}
	var got media
	ok, err := cache.Get(c, "k", &got)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("mismatched entry hit: %+v", got)
	}
}

func TestNil(t *testing.T) {
	var c *cache.Cache
	if err := cache.Set(c, "k", 1, time.Hour); err != nil {
		t.Error(err)
	}
	var v int
	ok, err := cache.Get(c, "k", &v)
	if ok || err != nil {
		t.Errorf("nil cache: want miss, got %t %v", ok, err)
	}
	if err := c.Close(); err != nil {
		t.Error(err)
	}
}

func TestOpenInMemory(t *testing.T) {
	c, err := cache.Open("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := cache.Set(c, "k", 2, time.Minute); err != nil {
		t.Fatal(err)
	}
	var v int
	if ok, _ := cache.Get(c, "k", &v); !ok || v != 2 {
		t.Errorf("wrong value: want 2 true, got %d %t", v, ok)
	}
}
