package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bwmarrin/discordgo"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nanachan-bot/nanachan/ai"
	"github.com/nanachan-bot/nanachan/amq"
	"github.com/nanachan-bot/nanachan/anilist"
	"github.com/nanachan-bot/nanachan/announced"
	"github.com/nanachan-bot/nanachan/auth"
	"github.com/nanachan-bot/nanachan/cache"
	"github.com/nanachan-bot/nanachan/channel"
	"github.com/nanachan-bot/nanachan/command"
	"github.com/nanachan-bot/nanachan/linkembed"
	"github.com/nanachan-bot/nanachan/metrics"
	"github.com/nanachan-bot/nanachan/multiplex"
	"github.com/nanachan-bot/nanachan/nanapi"
	"github.com/nanachan-bot/nanachan/privacy"
	"github.com/nanachan-bot/nanachan/reaction"
	"github.com/nanachan-bot/nanachan/saucenao"
	"github.com/nanachan-bot/nanachan/twitch"
)

// Bot is the running state of nanachan.
type Bot struct {
	cfg     *Config
	log     *slog.Logger
	metrics *metrics.Metrics

	dg       *discordgo.Session
	db       *sqlitex.Pool
	cache    *cache.Cache
	robo     *command.Robot
	registry *command.Registry
	mux      *multiplex.Multiplexer
	embedder *linkembed.Embedder
	amq      *amq.Bot
	poller   *twitch.Poller

	channels map[string]*channel.Channel
	global   *channel.Channel

	// ctx is the context of Run, for event handlers.
	ctx context.Context
}

// New builds a bot from configuration. Optional sections that are absent from
// the config leave their features disabled.
func New(ctx context.Context, cfg *Config, md *toml.MetaData, lg *slog.Logger, m *metrics.Metrics) (*Bot, error) {
	token, err := readSecret(cfg.Discord.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read Discord token: %w", err)
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("couldn't create Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	db, err := openDB(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	priv, err := privacy.Open(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("couldn't open privacy list: %w", err)
	}
	kv, err := cache.Open(cfg.DB.Cache, lg.With(slog.String("component", "cache")))
	if err != nil {
		return nil, err
	}
	chans, global, err := channels(cfg.Global, cfg.Channels)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	name := cfg.Name
	if name == "" {
		name = "nanachan"
	}

	b := &Bot{
		cfg:      cfg,
		log:      lg,
		metrics:  m,
		dg:       dg,
		db:       db,
		cache:    kv,
		channels: chans,
		global:   global,
		ctx:      ctx,
	}
	b.mux = multiplex.New(dg, cfg.Discord.App, name)
	b.embedder = &linkembed.Embedder{
		Sender:  b.mux,
		Editor:  dg,
		Privacy: priv,
		Logger:  lg.With(slog.String("component", "linkembed")),
	}
	b.robo = &command.Robot{
		Log:     lg,
		BotID:   cfg.Discord.App,
		Name:    name,
		Version: cfg.Version,
		Started: time.Now(),
		Privacy: priv,
		Silence: b.silence,
	}

	if md.IsDefined("anilist") {
		b.robo.AniList = &anilist.Client{
			HTTP:     client,
			Endpoint: cfg.AniList.Endpoint,
			Cache:    kv,
			TTL:      fseconds(cfg.AniList.TTL),
		}
	}
	if md.IsDefined("saucenao") {
		key, err := readSecret(cfg.SauceNAO.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("couldn't read SauceNAO key: %w", err)
		}
		b.robo.Sauce = &saucenao.Client{HTTP: client, Key: key, MinSimilarity: cfg.SauceNAO.MinSimilarity}
	}
	if len(cfg.Reactions) != 0 {
		known := map[string]reaction.Provider{
			reaction.NekosLife.Name: reaction.NekosLife,
			reaction.WaifuPics.Name: reaction.WaifuPics,
		}
		var ps []reaction.Provider
		for _, s := range cfg.Reactions {
			p, ok := known[strings.ToLower(s)]
			if !ok {
				return nil, fmt.Errorf("unknown reaction provider %q", s)
			}
			ps = append(ps, p)
		}
		b.robo.Reactions = reaction.NewFetcher(client, ps...)
	}

	var api *nanapi.Client
	if md.IsDefined("nanapi") {
		secret, err := readSecret(cfg.Nanapi.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("couldn't read nanapi client secret: %w", err)
		}
		c := oauth2.Config{
			ClientID:     cfg.Nanapi.ClientID,
			ClientSecret: secret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.Nanapi.TokenURL},
		}
		api = &nanapi.Client{
			HTTP:    client,
			Base:    cfg.Nanapi.URL,
			Tokens:  auth.ClientCredentialsFlow(c, client),
			Latency: m.APILatency,
		}
		b.robo.Profiles = api
		b.robo.Players = api
		b.robo.AMQ = api
		if md.IsDefined("waicolle") {
			g, err := game(cfg.Waicolle, api, lg.With(slog.String("component", "waicolle")))
			if err != nil {
				return nil, err
			}
			g.DropCount = m.DropCount
			b.robo.Game = g
			b.robo.RerollCount = cfg.Waicolle.Reroll
		}
	}

	if md.IsDefined("ai") {
		key, err := readSecret(cfg.AI.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("couldn't read AI key: %w", err)
		}
		oc := openai.DefaultConfig(key)
		if cfg.AI.URL != "" {
			oc.BaseURL = cfg.AI.URL
		}
		oc.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
		b.robo.Chat = ai.New(
			openai.NewClientWithConfig(oc),
			cfg.AI.Model,
			cfg.AI.System,
			cfg.AI.History,
			cfg.AI.Rate.limiter(),
			priv,
			lg.With(slog.String("component", "ai")),
		)
	}

	if md.IsDefined("amq") {
		pass, err := readSecret(cfg.AMQ.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("couldn't read AMQ password: %w", err)
		}
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("couldn't create cookie jar: %w", err)
		}
		hc := &http.Client{Jar: jar, Timeout: 30 * time.Second}
		q := amq.New(cfg.AMQ.URL, cfg.AMQ.Username, pass, hc, cfg.AMQ.Channel, b.mux, lg.With(slog.String("component", "amq")))
		if api != nil {
			q.Accounts = api.AMQAccounts
		}
		q.Persona = b.persona
		q.Dispatcher().Events = m.AMQEventCount
		b.amq = q
		b.robo.Quiz = q
	}

	if md.IsDefined("twitch") {
		secret, err := readSecret(cfg.Twitch.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("couldn't read Twitch client secret: %w", err)
		}
		c := oauth2.Config{
			ClientID:     cfg.Twitch.CID,
			ClientSecret: secret,
			Endpoint:     oauth2.Endpoint{TokenURL: "https://id.twitch.tv/oauth2/token"},
		}
		b.poller = &twitch.Poller{
			Client:   twitch.Client{HTTP: client, ID: cfg.Twitch.CID, Tokens: auth.ClientCredentialsFlow(c, client)},
			Logins:   cfg.Twitch.Streamers,
			Interval: fseconds(cfg.Twitch.Interval),
			Ledger:   announced.Open(db),
			Grace:    15 * time.Minute,
			Announce: b.announce,
			Logger:   lg.With(slog.String("component", "twitch")),
		}
		if b.poller.Interval <= 0 {
			b.poller.Interval = 2 * time.Minute
		}
	}

	b.registry = command.Registered(b.robo)
	b.registry.Count = m.CommandCount
	b.registry.Latency = m.CommandLatency
	return b, nil
}

// Run connects to Discord and runs every worker until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	b.ctx = ctx
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onMessage)
	b.dg.AddHandler(b.onInteraction)
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("couldn't connect to Discord: %w", err)
	}
	defer b.dg.Close()
	defer b.cache.Close()
	defer b.db.Close()

	if b.cfg.HTTP.Listen != "" {
		group.Go(func() error { return b.api(ctx, b.cfg.HTTP.Listen, http.NewServeMux(), b.metrics.Collectors()) })
	}
	group.Go(func() error { return b.cache.RunGC(ctx, 10*time.Minute) })
	group.Go(func() error { return b.sweep(ctx, time.Minute) })
	if b.amq != nil {
		group.Go(func() error { return b.amq.Run(ctx) })
	}
	if b.poller != nil {
		group.Go(func() error { return b.poller.Run(ctx) })
	}
	if g := b.robo.Game; g != nil {
		flush := fseconds(b.cfg.Waicolle.Flush)
		if flush <= 0 {
			flush = time.Minute
		}
		group.Go(func() error { return g.Rewarder.Run(ctx, flush) })
	}
	if b.cfg.Discord.Birthdays != "" && b.robo.Profiles != nil {
		group.Go(func() error { return b.birthdays(ctx) })
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sweep expires drops, trades and pages on an interval.
func (b *Bot) sweep(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			n := b.robo.Pages.Sweep(now)
			if g := b.robo.Game; g != nil {
				drops := g.Drops.Sweep(now)
				trades, err := g.Trades.Sweep(ctx, now)
				if err != nil {
					b.log.ErrorContext(ctx, "couldn't delete expired trades", slog.Any("err", err))
				}
				if len(drops)+len(trades) != 0 {
					b.log.InfoContext(ctx, "expired", slog.Int("drops", len(drops)), slog.Int("trades", len(trades)))
				}
			}
			if n != 0 {
				b.log.DebugContext(ctx, "expired pages", slog.Int("count", n))
			}
		}
	}
}

// birthdays announces members' birthdays once a day at nine.
func (b *Bot) birthdays(ctx context.Context) error {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next.Sub(now)):
		}
		if err := b.announceBirthdays(ctx, next); err != nil {
			b.log.ErrorContext(ctx, "birthday announcement failed", slog.Any("err", err))
		}
	}
}

func (b *Bot) announceBirthdays(ctx context.Context, t time.Time) error {
	var ids []string
	after := ""
	for {
		ms, err := b.dg.GuildMembers(b.cfg.Discord.Guild, after, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("couldn't list members: %w", err)
		}
		for _, m := range ms {
			if m.User != nil && !m.User.Bot {
				ids = append(ids, m.User.ID)
			}
		}
		if len(ms) < 1000 {
			break
		}
		after = ms[len(ms)-1].User.ID
	}
	ps, err := command.Birthdays(ctx, b.robo.Profiles, ids, t)
	if err != nil {
		return err
	}
	if len(ps) == 0 {
		return nil
	}
	mentions := make([]string, 0, len(ps))
	users := make([]string, 0, len(ps))
	for _, p := range ps {
		mentions = append(mentions, "<@"+p.DiscordID+">")
		users = append(users, p.DiscordID)
	}
	msg := &discordgo.MessageSend{
		Content:         "Happy birthday " + strings.Join(mentions, ", ") + "! 🎂",
		AllowedMentions: &discordgo.MessageAllowedMentions{Users: users},
	}
	_, err = b.dg.ChannelMessageSendComplex(b.cfg.Discord.Birthdays, msg, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't send birthday message: %w", err)
	}
	b.log.InfoContext(ctx, "birthdays", slog.Int("count", len(ps)))
	return nil
}

// silence stops features in the group a channel belongs to.
func (b *Bot) silence(id string, until time.Time) {
	if ch := channel.Lookup(b.channels, id, b.parent(id), b.global); ch != nil {
		ch.Silence(until)
	}
}

// persona resolves a guild member to a webhook persona.
func (b *Bot) persona(ctx context.Context, id string) (multiplex.Persona, error) {
	m, err := b.dg.State.Member(b.cfg.Discord.Guild, id)
	if err != nil {
		m, err = b.dg.GuildMember(b.cfg.Discord.Guild, id, discordgo.WithContext(ctx))
		if err != nil {
			return multiplex.Persona{}, fmt.Errorf("couldn't get member %s: %w", id, err)
		}
	}
	return multiplex.PersonaOf(m.User, m), nil
}

// announce posts a stream going live.
func (b *Bot) announce(ctx context.Context, s *twitch.Stream) error {
	msg := &discordgo.MessageSend{
		Content: fmt.Sprintf("**%s** is live!", s.UserName),
		Embeds: []*discordgo.MessageEmbed{{
			Title:       s.Title,
			URL:         "https://www.twitch.tv/" + s.UserLogin,
			Description: s.GameName,
			Image:       &discordgo.MessageEmbedImage{URL: s.Thumbnail(1280, 720)},
			Timestamp:   s.StartedAt.Format(time.RFC3339),
		}},
	}
	_, err := b.dg.ChannelMessageSendComplex(b.cfg.Twitch.Channel, msg, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't announce stream: %w", err)
	}
	return nil
}
