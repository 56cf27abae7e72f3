// Package amq bridges an Anime Music Quiz lobby with a Discord channel.
package amq

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/nanachan-bot/nanachan/multiplex"
	"github.com/nanachan-bot/nanachan/nanapi"
	"github.com/nanachan-bot/nanachan/syncmap"
)

// ErrNotConnected is returned when sending while the socket is down.
var ErrNotConnected = errors.New("not connected to AMQ")

// Sender posts messages to Discord as personas.
type Sender interface {
	SendTo(ctx context.Context, channelID string, p multiplex.Persona, params *discordgo.WebhookParams) (*discordgo.Message, error)
}

// Bot is an AMQ client bridged to Discord.
type Bot struct {
	// Base is the AMQ site, e.g. https://animemusicquiz.com.
	Base     string
	Username string
	Password string
	// HTTP must have a cookie jar so the session survives between sign-in
	// and the socket token request.
	HTTP *http.Client
	// Channel is the Discord bridge channel.
	Channel string
	Sender  Sender
	// Accounts lists linked accounts. It may be nil.
	Accounts func(ctx context.Context) ([]nanapi.AMQAccount, error)
	// Persona resolves a Discord user to a persona. It may be nil.
	Persona func(ctx context.Context, discordID string) (multiplex.Persona, error)
	// Notice is the persona for bridge notices.
	Notice multiplex.Persona
	Logger *slog.Logger

	// socketURL builds the socket URL from a token and port.
	socketURL func(token string, port int) string

	disp   *Dispatcher
	conn   atomic.Pointer[Conn]
	self   atomic.Pointer[string]
	linked *syncmap.Map[string, string]
}

// New creates an AMQ bridge.
func New(base, user, pass string, client *http.Client, channel string, send Sender, lg *slog.Logger) *Bot {
	b := &Bot{
		Base:     strings.TrimSuffix(base, "/"),
		Username: user,
		Password: pass,
		HTTP:     client,
		Channel:  channel,
		Sender:   send,
		Notice:   multiplex.Persona{Name: "AMQ"},
		Logger:   lg,
		socketURL: func(token string, port int) string {
			return fmt.Sprintf("wss://socket.animemusicquiz.com:%d/socket.io/?token=%s&EIO=4&transport=websocket", port, url.QueryEscape(token))
		},
		disp:   NewDispatcher(lg),
		linked: syncmap.New[string, string](),
	}
	b.register()
	return b
}

// Dispatcher returns the bot's command table.
func (b *Bot) Dispatcher() *Dispatcher {
	return b.disp
}

func (b *Bot) register() {
	b.disp.Handle("login complete", decodeHandler(b.loginComplete))
	b.disp.Handle("game chat update", decodeHandler(b.chatUpdate))
	b.disp.Handle("Game Chat Message", decodeHandler(b.chatMessage))
	b.disp.Handle("New Player", decodeHandler(b.newPlayer))
	b.disp.Handle("Player Left", decodeHandler(b.playerLeft))
	b.disp.Handle("Join Game Invite", decodeHandler(b.invite))
	b.disp.Handle("answer results", decodeHandler(b.answerResults))
	b.disp.Handle("quiz end result", decodeHandler(b.quizEnd))
}

// login signs in and returns the socket URL.
func (b *Bot) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Keep     bool   `json:"keepMeLoggedIn"`
	}{b.Username, b.Password, true})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", b.Base+"/signIn", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("couldn't make sign in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("couldn't sign in: %w", err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sign in failed: %s", resp.Status)
	}
	req, err = http.NewRequestWithContext(ctx, "GET", b.Base+"/socketToken", nil)
	if err != nil {
		return "", fmt.Errorf("couldn't make socket token request: %w", err)
	}
	resp, err = b.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("couldn't get socket token: %w", err)
	}
	p, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("couldn't read socket token: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("socket token request failed: %s", resp.Status)
	}
	var tok struct {
		Token string `json:"token"`
		Port  int    `json:"port"`
	}
	if err := json.Unmarshal(p, &tok); err != nil {
		return "", fmt.Errorf("couldn't decode socket token: %w", err)
	}
	return b.socketURL(tok.Token, tok.Port), nil
}

// session runs one connection until it ends.
func (b *Bot) session(ctx context.Context) error {
	u, err := b.login(ctx)
	if err != nil {
		return err
	}
	c, err := Dial(ctx, u, b.HTTP, b.Logger)
	if err != nil {
		return err
	}
	b.conn.Store(c)
	defer b.conn.Store(nil)
	return c.Run(ctx, b.event)
}

func (b *Bot) event(ctx context.Context, event string, args []jsontext.Value) {
	if event != "command" || len(args) == 0 {
		b.Logger.DebugContext(ctx, "unhandled AMQ event", slog.String("event", event))
		return
	}
	var env envelope
	if err := json.Unmarshal(args[0], &env); err != nil {
		b.Logger.WarnContext(ctx, "bad AMQ command", slog.Any("err", err))
		return
	}
	b.disp.Dispatch(ctx, env.Command, env.Data)
}

// Run keeps the bridge connected until the context ends, reconnecting with
// exponential backoff.
func (b *Bot) Run(ctx context.Context) error {
	const (
		minWait = 5 * time.Second
		maxWait = 5 * time.Minute
	)
	wait := minWait
	for {
		start := time.Now()
		err := b.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(start) > maxWait {
			wait = minWait
		}
		b.Logger.WarnContext(ctx, "AMQ session ended", slog.Any("err", err), slog.Duration("retry", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		wait = min(wait*2, maxWait)
	}
}

// Connected reports whether the socket is up.
func (b *Bot) Connected() bool {
	return b.conn.Load() != nil
}

func (b *Bot) emit(ctx context.Context, typ, command string, data any) error {
	c := b.conn.Load()
	if c == nil {
		return ErrNotConnected
	}
	return c.Emit(ctx, "command", map[string]any{"type": typ, "command": command, "data": data})
}

// Say sends a lobby chat message.
func (b *Bot) Say(ctx context.Context, msg string) error {
	return b.emit(ctx, "lobby", "game chat message", map[string]any{"msg": msg, "teamMessage": false})
}

// Relay sends a Discord message to AMQ chat.
func (b *Bot) Relay(ctx context.Context, author, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	return b.Say(ctx, "["+author+"] "+content)
}

func (b *Bot) notice(ctx context.Context, params *discordgo.WebhookParams) error {
	params.AllowedMentions = &discordgo.MessageAllowedMentions{}
	_, err := b.Sender.SendTo(ctx, b.Channel, b.Notice, params)
	return err
}

type loginComplete struct {
	Self string `json:"self"`
}

func (b *Bot) loginComplete(ctx context.Context, v *loginComplete) error {
	b.self.Store(&v.Self)
	b.Logger.InfoContext(ctx, "AMQ login complete", slog.String("self", v.Self))
	if b.Accounts == nil {
		return nil
	}
	accts, err := b.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("couldn't load linked accounts: %w", err)
	}
	for _, a := range accts {
		b.linked.Store(strings.ToLower(a.Username), a.DiscordID)
	}
	return nil
}

func (b *Bot) isSelf(name string) bool {
	s := b.self.Load()
	return s != nil && strings.EqualFold(*s, name)
}

type chatMessage struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

func (b *Bot) chatUpdate(ctx context.Context, v *struct {
	Messages []chatMessage `json:"messages"`
}) error {
	var errs []error
	for i := range v.Messages {
		errs = append(errs, b.chatMessage(ctx, &v.Messages[i]))
	}
	return errors.Join(errs...)
}

func (b *Bot) chatMessage(ctx context.Context, m *chatMessage) error {
	if b.isSelf(m.Sender) || m.Message == "" {
		return nil
	}
	p := multiplex.Persona{Name: m.Sender + " (AMQ)"}
	if id, ok := b.linked.Load(strings.ToLower(m.Sender)); ok && b.Persona != nil {
		if dp, err := b.Persona(ctx, id); err == nil {
			p = dp
			p.Name += " (AMQ)"
		}
	}
	params := &discordgo.WebhookParams{
		Content:         m.Message,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if _, err := b.Sender.SendTo(ctx, b.Channel, p, params); err != nil {
		return fmt.Errorf("couldn't forward chat: %w", err)
	}
	return nil
}

func (b *Bot) newPlayer(ctx context.Context, v *struct {
	Name string `json:"name"`
}) error {
	return b.notice(ctx, &discordgo.WebhookParams{Content: "**" + v.Name + "** joined the lobby"})
}

func (b *Bot) playerLeft(ctx context.Context, v *struct {
	Player struct {
		Name string `json:"name"`
	} `json:"player"`
	Kicked bool `json:"kicked"`
}) error {
	s := " left the lobby"
	if v.Kicked {
		s = " was kicked"
	}
	return b.notice(ctx, &discordgo.WebhookParams{Content: "**" + v.Player.Name + "**" + s})
}

func (b *Bot) invite(ctx context.Context, v *struct {
	Sender string `json:"sender"`
	GameID int    `json:"gameId"`
}) error {
	if _, ok := b.linked.Load(strings.ToLower(v.Sender)); !ok {
		b.Logger.InfoContext(ctx, "ignoring invite from unlinked player", slog.String("sender", v.Sender))
		return nil
	}
	err := b.emit(ctx, "roombrowser", "join game", map[string]any{"gameId": v.GameID, "password": ""})
	if err != nil {
		return fmt.Errorf("couldn't join game %d: %w", v.GameID, err)
	}
	return b.notice(ctx, &discordgo.WebhookParams{Content: "joined room " + strconv.Itoa(v.GameID) + " on invite from **" + v.Sender + "**"})
}

type songInfo struct {
	AnimeNames struct {
		English string `json:"english"`
		Romaji  string `json:"romaji"`
	} `json:"animeNames"`
	SongName string `json:"songName"`
	Artist   string `json:"artist"`
	Type     int    `json:"type"`
	TypeNum  int    `json:"typeNumber"`
}

func (s *songInfo) kind() string {
	switch s.Type {
	case 1:
		return "OP" + strconv.Itoa(s.TypeNum)
	case 2:
		return "ED" + strconv.Itoa(s.TypeNum)
	case 3:
		return "Insert"
	}
	return ""
}

func (b *Bot) answerResults(ctx context.Context, v *struct {
	SongInfo songInfo `json:"songInfo"`
	Players  []struct {
		ID      int  `json:"gamePlayerId"`
		Correct bool `json:"correct"`
	} `json:"players"`
}) error {
	s := &v.SongInfo
	correct := 0
	for _, p := range v.Players {
		if p.Correct {
			correct++
		}
	}
	title := s.AnimeNames.English
	if title == "" {
		title = s.AnimeNames.Romaji
	}
	e := &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**%s** by %s", s.SongName, s.Artist),
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%s · %d/%d correct", s.kind(), correct, len(v.Players))},
	}
	// Titles differing only by case or accents aren't worth repeating.
	if s.AnimeNames.Romaji != "" && !Match(title, s.AnimeNames.Romaji) {
		e.Fields = []*discordgo.MessageEmbedField{{Name: "Romaji", Value: s.AnimeNames.Romaji}}
	}
	return b.notice(ctx, &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{e}})
}

func (b *Bot) quizEnd(ctx context.Context, v *struct {
	ResultStates []struct {
		ID       int `json:"gamePlayerId"`
		Position int `json:"endPosition"`
	} `json:"resultStates"`
}) error {
	return b.notice(ctx, &discordgo.WebhookParams{Content: fmt.Sprintf("quiz over with %d players", len(v.ResultStates))})
}
