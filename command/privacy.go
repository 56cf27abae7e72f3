package command

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/privacy"
)

// PrivacyCommand returns the privacy command.
func PrivacyCommand() *Command {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(privacy.Features))
	for _, f := range privacy.Features {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: string(f), Value: string(f)})
	}
	return &Command{
		Def: &discordgo.ApplicationCommand{
			Name:        "privacy",
			Description: "Opt in or out of features that use your messages",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "toggle",
					Description: "Toggle a feature",
					Options: []*discordgo.ApplicationCommandOption{{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "feature",
						Description: "Feature to toggle",
						Required:    true,
						Choices:     choices,
					}},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show your privacy settings"},
			},
		},
		Subs: map[string]Func{
			"toggle": TogglePrivacy,
			"show":   ShowPrivacy,
		},
	}
}

var featureText = map[privacy.Feature]string{
	privacy.AI:    "remember your messages in AI conversations",
	privacy.Embed: "repost your links with fixed embeds",
}

// TogglePrivacy toggles the invoking user's opt-out for a feature.
func TogglePrivacy(ctx context.Context, robo *Robot, call *Invocation) error {
	f := privacy.Feature(call.String("feature"))
	if !slices.Contains(privacy.Features, f) {
		return Failf("There is no feature named %q.", f)
	}
	private, err := robo.Privacy.Toggle(ctx, call.User.ID, f)
	if err != nil {
		return err
	}
	if private {
		return call.Resp.ReplyEphemeral(ctx, "Okay, I won't "+featureText[f]+" anymore.")
	}
	return call.Resp.ReplyEphemeral(ctx, "Okay, I'll "+featureText[f]+" again.")
}

// ShowPrivacy lists the invoking user's opt-outs.
func ShowPrivacy(ctx context.Context, robo *Robot, call *Invocation) error {
	fs, err := robo.Privacy.Of(ctx, call.User.ID)
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, f := range privacy.Features {
		state := "on"
		if slices.Contains(fs, f) {
			state = "off"
		}
		fmt.Fprintf(&b, "`%s` %s: I %s\n", f, state, featureText[f])
	}
	return call.Resp.ReplyEphemeral(ctx, b.String())
}
