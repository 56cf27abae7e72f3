package waicolle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nanachan-bot/nanachan/metrics"
	"github.com/nanachan-bot/nanachan/nanapi"
)

// Game ties the rules together for incoming messages.
type Game struct {
	API        API
	Dropper    *Dropper
	Multiplier *Multiplier
	Rewarder   *Rewarder
	Conditions []Condition
	Drops      *DropBook
	Trades     *TradeBook
	// DropTTL is how long a drop waits for a claimer.
	DropTTL time.Duration
	// DropCount counts drops by cause. It may be nil.
	DropCount metrics.Observer
}

// OnMessage applies rewards for a message and returns the drops it causes.
func (g *Game) OnMessage(m *Msg) []*Drop {
	g.Rewarder.Message(m.User, m.Time)
	r := Evaluate(g.Conditions, m)
	g.Rewarder.Add(m.User, r.Coins)
	var drops []*Drop
	if g.Dropper.Message(m.Guild, g.Multiplier.At(m.Time)) {
		drops = append(drops, g.newDrop(m, "random"))
	}
	for range r.Drops {
		drops = append(drops, g.newDrop(m, "condition"))
	}
	return drops
}

func (g *Game) newDrop(m *Msg, reason string) *Drop {
	d := &Drop{
		ID:      uuid.NewString(),
		Guild:   m.Guild,
		Channel: m.Channel,
		Size:    DropSize(),
		Reason:  reason,
		Expires: m.Time.Add(g.DropTTL),
	}
	g.Drops.Add(d)
	metrics.Observe(g.DropCount, 1, reason)
	return d
}

// Claim delivers a drop to the first user to claim it.
func (g *Game) Claim(ctx context.Context, id, user string, now time.Time) (*Drop, []nanapi.Waifu, error) {
	d, err := g.Drops.Claim(id, now)
	if err != nil {
		return nil, nil, err
	}
	w, err := g.API.Drop(ctx, user, d.Size, d.Reason)
	if err != nil {
		g.Drops.Unclaim(d)
		return nil, nil, fmt.Errorf("couldn't deliver drop: %w", err)
	}
	return d, w, nil
}
