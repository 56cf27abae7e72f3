package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nanachan-bot/nanachan/channel"
	"github.com/nanachan-bot/nanachan/waicolle"
)

// Load loads nanachan's configuration from TOML.
// If the config names an env file, it is loaded before expanding variables.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	if cfg.EnvFile != "" {
		// godotenv never overrides variables that are already set.
		err := godotenv.Load(cfg.EnvFile)
		switch {
		case err == nil: // do nothing
		case errors.Is(err, fs.ErrNotExist):
			slog.WarnContext(ctx, "env file does not exist", slog.String("path", cfg.EnvFile))
		default:
			return nil, nil, fmt.Errorf("couldn't load env file: %w", err)
		}
	}
	expandcfg(&cfg, os.Getenv)
	cfg.AniList.TTL = positive(cfg.AniList.TTL, defaultAniListTTL)
	cfg.Waicolle.DropTTL = positive(cfg.Waicolle.DropTTL, defaultDropTTL)
	cfg.Waicolle.TradeTTL = positive(cfg.Waicolle.TradeTTL, defaultTradeTTL)
	return &cfg, &md, nil
}

// Lifetimes in seconds used when the config leaves them unset.
const (
	defaultAniListTTL = 3600
	defaultDropTTL    = 600
	defaultTradeTTL   = 900
)

// positive returns v, or def if v is not positive.
func positive(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

// Config is the marshaled structure of nanachan's configuration.
type Config struct {
	// EnvFile is an optional dotenv file loaded before variable expansion.
	EnvFile string `toml:"env"`
	// Name is the bot's display name, used for webhook fallbacks.
	Name string `toml:"name"`
	// Version is reported by /about.
	Version string `toml:"version"`

	Discord  DiscordCfg  `toml:"discord"`
	DB       DBCfg       `toml:"db"`
	HTTP     HTTPCfg     `toml:"http"`
	Nanapi   NanapiCfg   `toml:"nanapi"`
	AniList  AniListCfg  `toml:"anilist"`
	SauceNAO SauceNAOCfg `toml:"saucenao"`
	// Reactions lists reaction image providers to enable, by name.
	Reactions []string    `toml:"reactions"`
	Waicolle  WaicolleCfg `toml:"waicolle"`
	AMQ       AMQCfg      `toml:"amq"`
	AI        AICfg       `toml:"ai"`
	Twitch    TwitchCfg   `toml:"twitch"`
	// Global holds channel settings applied where no group matches.
	Global ChannelCfg `toml:"global"`
	// Channels is the set of channel groups. Each key names a group of one
	// or more channels sharing a config.
	Channels map[string]*ChannelCfg `toml:"channels"`
}

// DiscordCfg is the configuration for the Discord connection.
type DiscordCfg struct {
	// TokenFile is the path to a file containing the bot token.
	TokenFile string `toml:"token"`
	// App is the application ID, which is also the bot's user ID.
	App string `toml:"app"`
	// Guild is the home guild. Commands are registered there when set,
	// and globally otherwise.
	Guild string `toml:"guild"`
	// Birthdays is the channel for birthday announcements.
	Birthdays string `toml:"birthdays"`
}

// DBCfg is the configuration of databases.
type DBCfg struct {
	// SQLite is the DSN of the SQLite database holding the privacy list and
	// the stream announcement log.
	SQLite string `toml:"sqlite"`
	// Cache is the directory of the badger response cache.
	// If empty, the cache is in memory.
	Cache string `toml:"cache"`
}

// HTTPCfg configures the metrics and health server.
type HTTPCfg struct {
	Listen string `toml:"listen"`
}

// NanapiCfg configures the nanapi client.
type NanapiCfg struct {
	URL        string `toml:"url"`
	ClientID   string `toml:"client_id"`
	SecretFile string `toml:"secret"`
	TokenURL   string `toml:"token_url"`
}

// AniListCfg configures AniList lookups.
type AniListCfg struct {
	Endpoint string `toml:"endpoint"`
	// TTL is the cache lifetime of responses in seconds.
	TTL float64 `toml:"ttl"`
}

// SauceNAOCfg configures reverse image search.
type SauceNAOCfg struct {
	KeyFile       string  `toml:"key"`
	MinSimilarity float64 `toml:"min_similarity"`
}

// WaicolleCfg configures the waifu collection game.
type WaicolleCfg struct {
	// Rate is the base drop probability per message.
	Rate float64 `toml:"rate"`
	// Pity is the number of messages after which a drop is forced.
	Pity int `toml:"pity"`
	// Weekend is the multiplier applied on Saturdays and Sundays.
	Weekend float64 `toml:"weekend"`
	// Timezone is the IANA zone for weekends and daily rewards.
	Timezone string `toml:"timezone"`
	// Coins is the reward per message.
	Coins int `toml:"coins"`
	// Cooldown is the per-user time in seconds between message rewards.
	Cooldown float64 `toml:"cooldown"`
	// Flush is the interval in seconds between reward flushes.
	Flush float64 `toml:"flush"`
	// DropTTL and TradeTTL are in seconds.
	DropTTL  float64 `toml:"drop_ttl"`
	TradeTTL float64 `toml:"trade_ttl"`
	// Reroll is the number of waifus consumed by a reroll.
	Reroll int `toml:"reroll"`
	// Daily is the reward for the first message of the day.
	Daily    RewardCfg    `toml:"daily"`
	Events   []EventCfg   `toml:"events"`
	Keywords []KeywordCfg `toml:"keywords"`
	Bonus    []BonusCfg   `toml:"bonus"`
}

// RewardCfg is a coins and drops reward.
type RewardCfg struct {
	Coins int `toml:"coins"`
	Drops int `toml:"drops"`
}

// EventCfg is a window with a drop rate multiplier.
type EventCfg struct {
	Name   string    `toml:"name"`
	Start  time.Time `toml:"start"`
	End    time.Time `toml:"end"`
	Factor float64   `toml:"factor"`
}

// KeywordCfg rewards messages matching a pattern.
type KeywordCfg struct {
	Pattern  string    `toml:"pattern"`
	Reward   RewardCfg `toml:"reward"`
	Cooldown float64   `toml:"cooldown"`
}

// BonusCfg rewards messages in certain channels with some chance.
type BonusCfg struct {
	Channels []string  `toml:"channels"`
	Chance   float64   `toml:"chance"`
	Reward   RewardCfg `toml:"reward"`
}

// AMQCfg configures the AMQ bridge.
type AMQCfg struct {
	URL          string `toml:"url"`
	Username     string `toml:"username"`
	PasswordFile string `toml:"password"`
	// Channel is the Discord bridge channel.
	Channel string `toml:"channel"`
}

// AICfg configures AI chat.
type AICfg struct {
	// URL is the base URL of an OpenAI-compatible API.
	// If empty, the OpenAI default is used.
	URL     string `toml:"url"`
	KeyFile string `toml:"key"`
	Model   string `toml:"model"`
	System  string `toml:"system"`
	History int    `toml:"history"`
	Rate    Rate   `toml:"rate"`
}

// TwitchCfg configures stream announcements.
type TwitchCfg struct {
	CID        string   `toml:"cid"`
	SecretFile string   `toml:"secret"`
	Streamers  []string `toml:"streamers"`
	// Channel is the Discord channel for announcements.
	Channel string `toml:"channel"`
	// Interval is the time between checks in seconds.
	Interval float64 `toml:"interval"`
}

// ChannelCfg is the configuration for a group of Discord channels.
type ChannelCfg struct {
	// Channels is the list of channel IDs using this config.
	Channels []string `toml:"channels"`
	// Features lists the enabled features by name: embed, ai, rewards, drops.
	// The zero value enables all of them.
	Features []string `toml:"features"`
	// Block is a regular expression of messages to ignore.
	Block string `toml:"block"`
	// Rate is the rate limit for unprompted replies.
	Rate Rate `toml:"rate"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

func (r Rate) limiter() *rate.Limiter {
	if r.Num <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(fseconds(r.Every)), r.Num)
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.Name,
		&cfg.Discord.TokenFile,
		&cfg.Discord.App,
		&cfg.Discord.Guild,
		&cfg.Discord.Birthdays,
		&cfg.DB.SQLite,
		&cfg.DB.Cache,
		&cfg.HTTP.Listen,
		&cfg.Nanapi.URL,
		&cfg.Nanapi.ClientID,
		&cfg.Nanapi.SecretFile,
		&cfg.Nanapi.TokenURL,
		&cfg.SauceNAO.KeyFile,
		&cfg.AMQ.Username,
		&cfg.AMQ.PasswordFile,
		&cfg.AMQ.Channel,
		&cfg.AI.URL,
		&cfg.AI.KeyFile,
		&cfg.AI.Model,
		&cfg.Twitch.CID,
		&cfg.Twitch.SecretFile,
		&cfg.Twitch.Channel,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	for _, v := range cfg.Channels {
		for i, s := range v.Channels {
			v.Channels[i] = os.Expand(s, expand)
		}
	}
}

// readSecret reads a secret from a file, trimming surrounding whitespace.
func readSecret(file string) (string, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("couldn't read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func openDB(ctx context.Context, cfg DBCfg) (*sqlitex.Pool, error) {
	if cfg.SQLite == "" {
		return nil, errors.New("no sqlite database configured")
	}
	slog.DebugContext(ctx, "sqlite db", slog.String("path", cfg.SQLite))
	db, err := sqlitex.NewPool(cfg.SQLite, sqlitex.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("couldn't open sqlite db: %w", err)
	}
	return db, nil
}

var featureNames = map[string]channel.Feature{
	"embed":   channel.Embed,
	"ai":      channel.AI,
	"rewards": channel.Rewards,
	"drops":   channel.Drops,
}

func features(names []string) (channel.Feature, error) {
	if len(names) == 0 {
		return channel.All, nil
	}
	var f channel.Feature
	for _, s := range names {
		v, ok := featureNames[strings.ToLower(s)]
		if !ok {
			return 0, fmt.Errorf("unknown feature %q", s)
		}
		f |= v
	}
	return f, nil
}

// channels builds the channel table and the default channel from config.
func channels(global ChannelCfg, groups map[string]*ChannelCfg) (map[string]*channel.Channel, *channel.Channel, error) {
	gf, err := features(global.Features)
	if err != nil {
		return nil, nil, fmt.Errorf("bad global features: %w", err)
	}
	def := &channel.Channel{Name: "global", Features: gf, Rate: global.Rate.limiter()}
	if global.Block != "" {
		def.Block, err = regexp.Compile(global.Block)
		if err != nil {
			return nil, nil, fmt.Errorf("bad global block expression: %w", err)
		}
	}
	r := make(map[string]*channel.Channel)
	for nm, ch := range groups {
		f, err := features(ch.Features)
		if err != nil {
			return nil, nil, fmt.Errorf("bad features for channels.%s: %w", nm, err)
		}
		var blk *regexp.Regexp
		switch {
		case global.Block != "" && ch.Block != "":
			blk, err = regexp.Compile("(" + global.Block + ")|(" + ch.Block + ")")
		case ch.Block != "":
			blk, err = regexp.Compile(ch.Block)
		default:
			blk = def.Block
		}
		if err != nil {
			return nil, nil, fmt.Errorf("bad global or channel block expression for channels.%s: %w", nm, err)
		}
		for _, id := range ch.Channels {
			r[id] = &channel.Channel{
				ID:       id,
				Name:     nm,
				Features: f,
				Block:    blk,
				Rate:     ch.Rate.limiter(),
			}
		}
	}
	return r, def, nil
}

// game builds the waicolle rules from config.
func game(cfg WaicolleCfg, api waicolle.API, lg *slog.Logger) (*waicolle.Game, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("couldn't load waicolle timezone: %w", err)
		}
	}
	mult := &waicolle.Multiplier{Weekend: cfg.Weekend, Location: loc}
	for _, e := range cfg.Events {
		mult.Events = append(mult.Events, waicolle.Event{Name: e.Name, Start: e.Start, End: e.End, Factor: e.Factor})
	}
	var conds []waicolle.Condition
	if cfg.Daily != (RewardCfg{}) {
		conds = append(conds, waicolle.NewDailyFirst(reward(cfg.Daily), loc))
	}
	for _, k := range cfg.Keywords {
		re, err := regexp.Compile(k.Pattern)
		if err != nil {
			return nil, fmt.Errorf("bad waicolle keyword %q: %w", k.Pattern, err)
		}
		conds = append(conds, waicolle.NewKeyword(re, reward(k.Reward), fseconds(k.Cooldown)))
	}
	for _, b := range cfg.Bonus {
		conds = append(conds, waicolle.NewChannel(b.Channels, b.Chance, reward(b.Reward)))
	}
	g := &waicolle.Game{
		API:        api,
		Dropper:    waicolle.NewDropper(cfg.Rate, cfg.Pity),
		Multiplier: mult,
		Rewarder:   waicolle.NewRewarder(api, cfg.Coins, fseconds(cfg.Cooldown), lg),
		Conditions: conds,
		Drops:      waicolle.NewDropBook(),
		Trades:     waicolle.NewTradeBook(api, fseconds(positive(cfg.TradeTTL, defaultTradeTTL))),
		DropTTL:    fseconds(positive(cfg.DropTTL, defaultDropTTL)),
	}
	return g, nil
}

func reward(r RewardCfg) waicolle.Reward {
	return waicolle.Reward{Coins: r.Coins, Drops: r.Drops}
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
