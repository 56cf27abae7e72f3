// Package waicolle implements the rules of the waifu collection game.
// Persistent game state lives in nanapi; this package decides when drops and
// rewards happen and drives multi-step workflows against the API.
package waicolle

import (
	"context"
	"time"

	"github.com/nanachan-bot/nanachan/nanapi"
)

// API is the subset of nanapi the game uses.
type API interface {
	AddCoins(ctx context.Context, discordID string, n int) error
	Drop(ctx context.Context, discordID string, n int, reason string) ([]nanapi.Waifu, error)
	Reroll(ctx context.Context, discordID string, waifuIDs []string, botID string) (*nanapi.RerollResult, error)
	CreateTrade(ctx context.Context, t *nanapi.TradeCreate) (*nanapi.Trade, error)
	CommitTrade(ctx context.Context, id string) error
	DeleteTrade(ctx context.Context, id string) error
}

var _ API = (*nanapi.Client)(nil)

// Msg is a chat message as seen by the game.
type Msg struct {
	ID      string
	User    string
	Guild   string
	Channel string
	Content string
	Time    time.Time
}

// Reward is what a message earns.
type Reward struct {
	Coins int
	Drops int
}

// Add combines two rewards.
func (r Reward) Add(s Reward) Reward {
	return Reward{Coins: r.Coins + s.Coins, Drops: r.Drops + s.Drops}
}
