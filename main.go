package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/nanachan-bot/nanachan/anilist"
	"github.com/nanachan-bot/nanachan/announced"
	"github.com/nanachan-bot/nanachan/cache"
	"github.com/nanachan-bot/nanachan/command"
	"github.com/nanachan-bot/nanachan/metrics"
	"github.com/nanachan-bot/nanachan/privacy"
)

var app = cli.Command{
	Name:  "nanachan",
	Usage: "Discord bot for the nanapi community",

	Flags: []cli.Flag{
		&flagConfig,
		&flagLog,
		&flagLogFormat,
	},
	Commands: []*cli.Command{
		{
			Name:   "run",
			Usage:  "Connect to Discord and serve",
			Action: cliRun,
		},
		{
			Name:   "register",
			Usage:  "Overwrite slash commands and exit",
			Action: cliRegister,
		},
		{
			Name:   "init",
			Usage:  "Create database schemas",
			Action: cliInit,
		},
		{
			Name:      "anilist",
			Usage:     "Look up a title on AniList without serving",
			ArgsUsage: "search terms",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "kind",
					Usage: "What to look up, one of anime, manga, character, staff",
					Value: "anime",
				},
			},
			Action: cliAniList,
		},
	},
	Action: cliRun,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig loads the config named by the config flag.
func loadConfig(ctx context.Context, cmd *cli.Command) (*Config, *toml.MetaData, error) {
	r, err := os.Open(cmd.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open config file: %w", err)
	}
	defer r.Close()
	cfg, md, err := Load(ctx, r)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't load config: %w", err)
	}
	return cfg, md, nil
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	lg := loggerFromFlags(cmd)
	slog.SetDefault(lg)
	cfg, md, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	b, err := New(ctx, cfg, md, lg, newMetrics())
	if err != nil {
		return err
	}
	return b.Run(ctx)
}

func cliRegister(ctx context.Context, cmd *cli.Command) error {
	lg := loggerFromFlags(cmd)
	slog.SetDefault(lg)
	cfg, md, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	b, err := New(ctx, cfg, md, lg, &metrics.Metrics{})
	if err != nil {
		return err
	}
	defer b.db.Close()
	defer b.cache.Close()
	defs := b.registry.Defs()
	r, err := b.dg.ApplicationCommandBulkOverwrite(cfg.Discord.App, cfg.Discord.Guild, defs, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't register commands: %w", err)
	}
	for _, c := range r {
		lg.InfoContext(ctx, "registered", slog.String("command", c.Name), slog.String("id", c.ID))
	}
	return nil
}

func cliInit(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, _, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	db, err := openDB(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := privacy.Init(ctx, db); err != nil {
		return fmt.Errorf("couldn't initialize privacy list: %w", err)
	}
	if err := announced.Init(ctx, db); err != nil {
		return err
	}
	slog.InfoContext(ctx, "initialized", slog.String("db", cfg.DB.SQLite))
	return nil
}

func cliAniList(ctx context.Context, cmd *cli.Command) error {
	lg := loggerFromFlags(cmd)
	slog.SetDefault(lg)
	cfg, _, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	search := strings.Join(cmd.Args().Slice(), " ")
	if search == "" {
		return errors.New("nothing to search for")
	}
	// A one-shot lookup doesn't need the persistent cache.
	kv, err := cache.Open("", lg)
	if err != nil {
		return err
	}
	defer kv.Close()
	c := &anilist.Client{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Endpoint: cfg.AniList.Endpoint,
		Cache:    kv,
		TTL:      time.Minute,
	}
	embeds, err := command.LookUp(ctx, c, cmd.String("kind"), search)
	if err != nil {
		return err
	}
	for _, e := range embeds {
		fmt.Printf("%s\n%s\n%s\n\n", e.Title, e.URL, e.Description)
	}
	return nil
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Required:   true,
		Usage:      "TOML config file",
		Persistent: true,
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}
)

func loggerFromFlags(cmd *cli.Command) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}

// metrics configuration
func newMetrics() *metrics.Metrics {
	return &metrics.Metrics{
		MessagesCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "nanachan",
					Subsystem: "discord",
					Name:      "messages",
					Help:      "Number of messages received from Discord.",
				},
				[]string{"guild"},
			),
		),
		CommandCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "nanachan",
					Subsystem: "commands",
					Name:      "invocations",
					Help:      "Number of slash command and component invocations.",
				},
				[]string{"command"},
			),
		),
		CommandLatency: metrics.NewPromObserverVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 5, 10},
					Namespace: "nanachan",
					Subsystem: "commands",
					Name:      "latency",
					Help:      "How long commands take to handle in seconds.",
				},
				[]string{"command"},
			),
		),
		DropCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "nanachan",
					Subsystem: "waicolle",
					Name:      "drops",
					Help:      "Number of waicolle drops by cause.",
				},
				[]string{"cause"},
			),
		),
		AMQEventCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "nanachan",
					Subsystem: "amq",
					Name:      "events",
					Help:      "Number of AMQ socket commands received by name.",
				},
				[]string{"command"},
			),
		),
		APILatency: metrics.NewPromObserverVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
					Namespace: "nanachan",
					Subsystem: "api",
					Name:      "latency",
					Help:      "How long external API requests take in seconds.",
				},
				[]string{"service"},
			),
		),
	}
}
