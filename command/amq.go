package command

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// AMQCommand returns the AMQ command.
func AMQCommand() *Command {
	str := func(name, desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: desc, Required: true}
	}
	return &Command{
		Def: &discordgo.ApplicationCommand{
			Name:        "amq",
			Description: "Anime Music Quiz bridge",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "link", Description: "Link your AMQ account", Options: []*discordgo.ApplicationCommandOption{str("username", "Your AMQ username")}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "accounts", Description: "List linked AMQ accounts"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "status", Description: "Show the bridge status"},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
					Name:        "settings",
					Description: "Room settings",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show room settings"},
						{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set", Description: "Change a room setting", Options: []*discordgo.ApplicationCommandOption{str("key", "Setting name"), str("value", "New value")}},
					},
				},
			},
		},
		Subs: map[string]Func{
			"link":          LinkAMQ,
			"accounts":      AMQAccountList,
			"status":        AMQStatus,
			"settings show": AMQSettingsShow,
			"settings set":  AMQSettingsSet,
		},
	}
}

// LinkAMQ links the invoking user to an AMQ username.
func LinkAMQ(ctx context.Context, robo *Robot, call *Invocation) error {
	name := strings.TrimSpace(call.String("username"))
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return Failf("That isn't a valid AMQ username.")
	}
	a, err := robo.AMQ.UpsertAMQAccount(ctx, call.User.ID, name)
	if err != nil {
		return err
	}
	return call.Resp.ReplyEphemeral(ctx, fmt.Sprintf("Linked you to AMQ account **%s**. Invite me from there and I'll join.", a.Username))
}

// AMQAccountList lists linked accounts.
func AMQAccountList(ctx context.Context, robo *Robot, call *Invocation) error {
	as, err := robo.AMQ.AMQAccounts(ctx)
	if err != nil {
		return err
	}
	if len(as) == 0 {
		return Failf("Nobody has linked an AMQ account yet.")
	}
	lines := make([]string, 0, len(as))
	for _, a := range as {
		lines = append(lines, fmt.Sprintf("<@%s>: %s", a.DiscordID, a.Username))
	}
	slices.Sort(lines)
	return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{
		Embeds:          []*discordgo.MessageEmbed{{Title: "AMQ accounts", Description: strings.Join(lines, "\n")}},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
}

// AMQStatus reports whether the bridge is connected.
func AMQStatus(ctx context.Context, robo *Robot, call *Invocation) error {
	if robo.Quiz == nil || !robo.Quiz.Connected() {
		return call.Resp.ReplyText(ctx, "The AMQ bridge is disconnected.")
	}
	return call.Resp.ReplyText(ctx, "The AMQ bridge is connected.")
}

// AMQSettingsShow shows room settings.
func AMQSettingsShow(ctx context.Context, robo *Robot, call *Invocation) error {
	s, err := robo.AMQ.AMQSettings(ctx)
	if err != nil {
		return err
	}
	if len(s) == 0 {
		return Failf("No room settings are stored.")
	}
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(s)) {
		fmt.Fprintf(&b, "`%s` = `%s`\n", k, s[k])
	}
	return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{{Title: "AMQ room settings", Description: b.String()}},
	})
}

// AMQSettingsSet changes a room setting.
func AMQSettingsSet(ctx context.Context, robo *Robot, call *Invocation) error {
	k, v := call.String("key"), call.String("value")
	if err := robo.AMQ.UpdateAMQSettings(ctx, map[string]string{k: v}); err != nil {
		return err
	}
	return call.Resp.ReplyText(ctx, fmt.Sprintf("Set `%s` to `%s`.", k, v))
}
