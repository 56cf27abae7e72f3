package waicolle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nanachan-bot/nanachan/nanapi"
)

// fakeAPI records calls and fails those listed in fail.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string
	coins map[string]int
	fail  map[string]error
	n     int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{coins: make(map[string]int), fail: make(map[string]error)}
}

func (f *fakeAPI) note(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return f.fail[s]
}

func (f *fakeAPI) AddCoins(ctx context.Context, id string, n int) error {
	if err := f.note("coins " + id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coins[id] += n
	return nil
}

func (f *fakeAPI) Drop(ctx context.Context, id string, n int, reason string) ([]nanapi.Waifu, error) {
	if err := f.note("drop " + id); err != nil {
		return nil, err
	}
	w := make([]nanapi.Waifu, n)
	for i := range w {
		w[i] = nanapi.Waifu{ID: fmt.Sprint(i), OwnerID: id}
	}
	return w, nil
}

func (f *fakeAPI) Reroll(ctx context.Context, id string, ids []string, bot string) (*nanapi.RerollResult, error) {
	if err := f.note("reroll " + id); err != nil {
		return nil, err
	}
	return &nanapi.RerollResult{Obtained: []nanapi.Waifu{{ID: "new", OwnerID: id}}}, nil
}

func (f *fakeAPI) CreateTrade(ctx context.Context, t *nanapi.TradeCreate) (*nanapi.Trade, error) {
	if err := f.note("create " + t.PlayerA + " " + t.PlayerB); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return &nanapi.Trade{ID: fmt.Sprintf("t%d", f.n)}, nil
}

func (f *fakeAPI) CommitTrade(ctx context.Context, id string) error {
	return f.note("commit " + id)
}

func (f *fakeAPI) DeleteTrade(ctx context.Context, id string) error {
	return f.note("delete " + id)
}

func (f *fakeAPI) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var errBoom = errors.New("boom")
