package nanapi

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// Player is a waicolle player.
type Player struct {
	DiscordID       string `json:"discord_id"`
	DiscordUsername string `json:"discord_username"`
	GameMode        string `json:"game_mode"`
	Moecoins        int    `json:"moecoins"`
	Blood           int    `json:"blood_shards"`
}

// Waifu is a collected character.
type Waifu struct {
	ID             string    `json:"id"`
	CharacterID    int       `json:"character_id"`
	OwnerID        string    `json:"owner_discord_id"`
	OriginalOwner  string    `json:"original_owner_discord_id,omitempty"`
	Level          int       `json:"level"`
	Locked         bool      `json:"locked"`
	Frozen         bool      `json:"frozen"`
	Blooded        bool      `json:"blooded"`
	Timestamp      time.Time `json:"timestamp"`
	CharacterName  string    `json:"character_name,omitempty"`
	CharacterImage string    `json:"character_image,omitempty"`
}

// Roll is a purchasable roll.
type Roll struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int    `json:"price"`
}

// RerollResult is the outcome of a reroll.
type RerollResult struct {
	Obtained   []Waifu `json:"obtained"`
	Nanascends []Waifu `json:"nanascends"`
}

// Trade is an upstream trade record.
type Trade struct {
	ID        string  `json:"id"`
	PlayerA   string  `json:"player_a_discord_id"`
	WaifusA   []Waifu `json:"waifus_a"`
	MoecoinsA int     `json:"moecoins_a"`
	PlayerB   string  `json:"player_b_discord_id"`
	WaifusB   []Waifu `json:"waifus_b"`
	MoecoinsB int     `json:"moecoins_b"`
}

// TradeCreate describes a trade to create.
type TradeCreate struct {
	PlayerA   string   `json:"player_a_discord_id"`
	WaifusA   []string `json:"waifu_ids_a"`
	MoecoinsA int      `json:"moecoins_a"`
	PlayerB   string   `json:"player_b_discord_id"`
	WaifusB   []string `json:"waifu_ids_b"`
	MoecoinsB int      `json:"moecoins_b"`
}

// UpsertPlayer creates or updates a player.
func (c *Client) UpsertPlayer(ctx context.Context, discordID, username, gameMode string) (*Player, error) {
	body := struct {
		DiscordID       string `json:"discord_id"`
		DiscordUsername string `json:"discord_username"`
		GameMode        string `json:"game_mode"`
	}{discordID, username, gameMode}
	var r Player
	if err := call(ctx, c, "POST", "/waicolle/players", nil, &body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Player gets a player.
func (c *Client) Player(ctx context.Context, discordID string) (*Player, error) {
	var r Player
	if err := call(ctx, c, "GET", "/waicolle/players/"+url.PathEscape(discordID), nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// AddCoins gives a player moecoins. A negative amount takes them away.
func (c *Client) AddCoins(ctx context.Context, discordID string, n int) error {
	body := struct {
		Moecoins int `json:"moecoins"`
	}{n}
	return call[none](ctx, c, "POST", "/waicolle/players/"+url.PathEscape(discordID)+"/coins/add", nil, &body, nil)
}

// Waifus lists a player's waifus.
func (c *Client) Waifus(ctx context.Context, discordID string) ([]Waifu, error) {
	var r []Waifu
	q := url.Values{"discord_id": {discordID}}
	if err := call(ctx, c, "GET", "/waicolle/waifus", q, nil, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// Rolls lists the rolls available to a player.
func (c *Client) Rolls(ctx context.Context, discordID string) ([]Roll, error) {
	var r []Roll
	if err := call(ctx, c, "GET", "/waicolle/players/"+url.PathEscape(discordID)+"/rolls", nil, nil, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// Roll buys a roll for a player.
func (c *Client) Roll(ctx context.Context, discordID, rollID, reason string) ([]Waifu, error) {
	var r []Waifu
	q := url.Values{"roll_id": {rollID}, "reason": {reason}}
	if err := call(ctx, c, "POST", "/waicolle/players/"+url.PathEscape(discordID)+"/roll", q, nil, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// Drop gives a player n free waifus.
func (c *Client) Drop(ctx context.Context, discordID string, n int, reason string) ([]Waifu, error) {
	var r []Waifu
	q := url.Values{"nb": {strconv.Itoa(n)}, "reason": {reason}}
	if err := call(ctx, c, "POST", "/waicolle/players/"+url.PathEscape(discordID)+"/roll", q, nil, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// Reroll exchanges a player's waifus for new ones.
func (c *Client) Reroll(ctx context.Context, discordID string, waifuIDs []string, botID string) (*RerollResult, error) {
	body := struct {
		Player   string   `json:"player_discord_id"`
		WaifuIDs []string `json:"waifus_ids"`
		Bot      string   `json:"bot_discord_id"`
	}{discordID, waifuIDs, botID}
	var r RerollResult
	if err := call(ctx, c, "POST", "/waicolle/waifus/reroll", nil, &body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateTrade creates a pending trade. Its waifus are locked until it is
// committed or deleted.
func (c *Client) CreateTrade(ctx context.Context, t *TradeCreate) (*Trade, error) {
	var r Trade
	if err := call(ctx, c, "POST", "/waicolle/trades", nil, t, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CommitTrade executes a pending trade.
func (c *Client) CommitTrade(ctx context.Context, id string) error {
	return call[none](ctx, c, "POST", "/waicolle/trades/"+url.PathEscape(id)+"/commit", nil, nil, nil)
}

// DeleteTrade cancels a pending trade.
func (c *Client) DeleteTrade(ctx context.Context, id string) error {
	return call[none](ctx, c, "DELETE", "/waicolle/trades/"+url.PathEscape(id), nil, nil, nil)
}
