package command

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/reaction"
)

// ReactionCommands returns one command per reaction action.
func ReactionCommands() []*Command {
	r := make([]*Command, 0, len(reaction.Actions))
	for i := range reaction.Actions {
		a := &reaction.Actions[i]
		r = append(r, &Command{
			Def: &discordgo.ApplicationCommand{
				Name:        a.Name,
				Description: a.Text("You", "someone"),
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "target",
					Description: "Who to " + a.Name,
				}},
			},
			Func: react(a),
		})
	}
	return r
}

func react(a *reaction.Action) Func {
	return func(ctx context.Context, robo *Robot, call *Invocation) error {
		target := ""
		mentions := []string{}
		if u := call.UserOption("target"); u != nil && u.ID != call.User.ID {
			target = "<@" + u.ID + ">"
			mentions = append(mentions, u.ID)
		}
		if err := call.Resp.Defer(ctx, false); err != nil {
			return err
		}
		img, provider, err := robo.Reactions.Fetch(ctx, a)
		if err != nil {
			return Fail(err, "I couldn't find a picture for that. Try again later.")
		}
		return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{
			Content: a.Text("<@"+call.User.ID+">", target),
			Embeds: []*discordgo.MessageEmbed{{
				Image:  &discordgo.MessageEmbedImage{URL: img},
				Footer: &discordgo.MessageEmbedFooter{Text: "via " + provider},
			}},
			AllowedMentions: &discordgo.MessageAllowedMentions{Users: mentions},
		})
	}
}
