// Package command implements slash commands and message components.
package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/ai"
	"github.com/nanachan-bot/nanachan/amq"
	"github.com/nanachan-bot/nanachan/anilist"
	"github.com/nanachan-bot/nanachan/nanapi"
	"github.com/nanachan-bot/nanachan/privacy"
	"github.com/nanachan-bot/nanachan/reaction"
	"github.com/nanachan-bot/nanachan/saucenao"
	"github.com/nanachan-bot/nanachan/waicolle"
)

// Invocation is a command or component invocation. An Invocation and its
// fields must not be retained by any command.
type Invocation struct {
	// Interaction is the interaction which triggered the invocation.
	Interaction *discordgo.Interaction
	// Path is the command name followed by any subcommand group and
	// subcommand, space separated. For components, it is the custom ID prefix.
	Path string
	// Options is the leaf options of the command by name.
	Options map[string]*discordgo.ApplicationCommandInteractionDataOption
	// User is the invoking user.
	User *discordgo.User
	// Resp responds to the interaction.
	Resp *Responder
	// Log is a logger carrying the invocation's trace.
	Log *slog.Logger
}

// String returns a string option, or the empty string if it was not given.
func (c *Invocation) String(name string) string {
	o := c.Options[name]
	if o == nil || o.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return o.StringValue()
}

// Int returns an integer option.
func (c *Invocation) Int(name string) (int64, bool) {
	o := c.Options[name]
	if o == nil || o.Type != discordgo.ApplicationCommandOptionInteger {
		return 0, false
	}
	return o.IntValue(), true
}

// Bool returns a boolean option.
func (c *Invocation) Bool(name string) (bool, bool) {
	o := c.Options[name]
	if o == nil || o.Type != discordgo.ApplicationCommandOptionBoolean {
		return false, false
	}
	return o.BoolValue(), true
}

// UserOption returns a user option resolved from the interaction data.
func (c *Invocation) UserOption(name string) *discordgo.User {
	o := c.Options[name]
	if o == nil || o.Type != discordgo.ApplicationCommandOptionUser {
		return nil
	}
	id, _ := o.Value.(string)
	if c.Interaction.Type == discordgo.InteractionApplicationCommand {
		if r := c.Interaction.ApplicationCommandData().Resolved; r != nil {
			if u := r.Users[id]; u != nil {
				return u
			}
		}
	}
	return &discordgo.User{ID: id}
}

// Member returns the invoking member, or nil outside a guild.
func (c *Invocation) Member() *discordgo.Member {
	return c.Interaction.Member
}

// Func executes a command.
type Func func(ctx context.Context, robo *Robot, call *Invocation) error

// Component handles a message component. The payload is the part of the
// custom ID after the first colon.
type Component func(ctx context.Context, robo *Robot, call *Invocation, payload string) error

// Command is a slash command definition with its handlers.
type Command struct {
	Def *discordgo.ApplicationCommand
	// Func handles the command when it has no subcommands.
	Func Func
	// Subs handles subcommands by their path below the command name, like
	// "sub" or "group sub".
	Subs map[string]Func
	// Components handles message components by custom ID prefix.
	Components map[string]Component
}

// Profiles is the profile API.
type Profiles interface {
	Profile(ctx context.Context, discordID string) (*nanapi.Profile, error)
	UpsertProfile(ctx context.Context, discordID string, p *nanapi.ProfileUpdate) (*nanapi.Profile, error)
	Profiles(ctx context.Context, discordIDs []string) ([]nanapi.Profile, error)
	FindProfiles(ctx context.Context, pattern string) ([]nanapi.Profile, error)
}

// Players is the waicolle player API.
type Players interface {
	UpsertPlayer(ctx context.Context, discordID, username, gameMode string) (*nanapi.Player, error)
	Player(ctx context.Context, discordID string) (*nanapi.Player, error)
	Waifus(ctx context.Context, discordID string) ([]nanapi.Waifu, error)
	Rolls(ctx context.Context, discordID string) ([]nanapi.Roll, error)
	Roll(ctx context.Context, discordID, rollID, reason string) ([]nanapi.Waifu, error)
}

// AMQAccounts is the AMQ account and settings API.
type AMQAccounts interface {
	AMQAccounts(ctx context.Context) ([]nanapi.AMQAccount, error)
	UpsertAMQAccount(ctx context.Context, discordID, username string) (*nanapi.AMQAccount, error)
	AMQSettings(ctx context.Context) (map[string]string, error)
	UpdateAMQSettings(ctx context.Context, settings map[string]string) error
}

// Quiz is the AMQ bridge.
type Quiz interface {
	Connected() bool
	Relay(ctx context.Context, author, content string) error
}

// Privacy is the privacy list.
type Privacy interface {
	Toggle(ctx context.Context, user string, f privacy.Feature) (bool, error)
	Of(ctx context.Context, user string) ([]privacy.Feature, error)
}

var (
	_ Profiles    = (*nanapi.Client)(nil)
	_ Players     = (*nanapi.Client)(nil)
	_ AMQAccounts = (*nanapi.Client)(nil)
	_ Privacy     = (*privacy.List)(nil)
	_ Quiz        = (*amq.Bot)(nil)
)

// Robot is the bot state as is visible to commands.
// Nil services disable the commands that need them.
type Robot struct {
	Log     *slog.Logger
	BotID   string
	Name    string
	Version string
	Started time.Time

	AniList   *anilist.Client
	Sauce     *saucenao.Client
	Reactions *reaction.Fetcher
	Profiles  Profiles
	Players   Players
	Game      *waicolle.Game
	// RerollCount is the number of waifus a reroll consumes.
	RerollCount int
	AMQ         AMQAccounts
	Quiz        Quiz
	Chat        *ai.Chat
	Privacy     Privacy
	Pages       *Paginator
	// Silence stops bot features in a channel until a time.
	Silence func(channel string, until time.Time)
}
