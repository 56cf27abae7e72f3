package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// SystemCommands returns commands about the bot itself.
func SystemCommands() []*Command {
	return []*Command{
		{
			Def:  &discordgo.ApplicationCommand{Name: "ping", Description: "Check that I'm alive"},
			Func: Ping,
		},
		{
			Def:  &discordgo.ApplicationCommand{Name: "about", Description: "About me"},
			Func: About,
		},
	}
}

// QuietCommand lets moderators silence the bot in a channel.
func QuietCommand() *Command {
	perm := int64(discordgo.PermissionManageMessages)
	return &Command{
		Def: &discordgo.ApplicationCommand{
			Name:                     "quiet",
			Description:              "Stop me from talking here for a while",
			DefaultMemberPermissions: &perm,
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "minutes",
				Description: "How long to stay quiet, zero to speak again",
				MinValue:    new(float64),
				MaxValue:    24 * 60,
			}},
		},
		Func: Quiet,
	}
}

// Quiet silences bot features in the invoking channel.
func Quiet(ctx context.Context, robo *Robot, call *Invocation) error {
	n, ok := call.Int("minutes")
	if !ok {
		n = 30
	}
	until := time.Now().Add(time.Duration(n) * time.Minute)
	robo.Silence(call.Interaction.ChannelID, until)
	call.Log.InfoContext(ctx, "silenced", slog.String("channel", call.Interaction.ChannelID), slog.Int64("minutes", n))
	if n == 0 {
		return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{Content: "I'm back!"})
	}
	return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{
		Content: fmt.Sprintf("Okay, I'll be quiet here until <t:%d:t>.", until.Unix()),
	})
}

// Ping replies with the interaction's age.
func Ping(ctx context.Context, robo *Robot, call *Invocation) error {
	d := time.Duration(0)
	if t, err := discordgo.SnowflakeTimestamp(call.Interaction.ID); err == nil {
		d = time.Since(t).Round(time.Millisecond)
	}
	return call.Resp.ReplyEphemeral(ctx, fmt.Sprintf("Pong! (%v)", d))
}

// About describes the bot.
func About(ctx context.Context, robo *Robot, call *Invocation) error {
	up := time.Since(robo.Started).Round(time.Second)
	return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       robo.Name,
			Description: fmt.Sprintf("Version %s, up for %v.", robo.Version, up),
		}},
	})
}

// All returns the commands whose services are configured.
func All(robo *Robot) []*Command {
	r := SystemCommands()
	if robo.AniList != nil {
		r = append(r, AniListCommands()...)
	}
	if robo.Sauce != nil {
		r = append(r, SauceCommands()...)
	}
	if robo.Reactions != nil {
		r = append(r, ReactionCommands()...)
	}
	if robo.Players != nil && robo.Game != nil {
		r = append(r, WaicolleCommand())
	}
	if robo.AMQ != nil {
		r = append(r, AMQCommand())
	}
	if robo.Chat != nil {
		r = append(r, AICommand())
	}
	if robo.Profiles != nil {
		r = append(r, ProfileCommands()...)
	}
	if robo.Privacy != nil {
		r = append(r, PrivacyCommand())
	}
	if robo.Silence != nil {
		r = append(r, QuietCommand())
	}
	return r
}

// Registered creates a registry holding every configured command.
func Registered(robo *Robot) *Registry {
	if robo.Pages == nil {
		robo.Pages = NewPaginator(15 * time.Minute)
	}
	r := NewRegistry(robo)
	r.Add(All(robo)...)
	r.Component(pagePrefix, robo.Pages.Flip)
	return r
}
