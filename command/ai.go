package command

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/ai"
)

// MessageLimit is the most runes Discord accepts in a message.
const MessageLimit = 2000

// AICommand returns the AI chat command.
func AICommand() *Command {
	return &Command{
		Def: &discordgo.ApplicationCommand{
			Name:        "ai",
			Description: "Talk with me",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "ask",
					Description: "Ask me something",
					Options: []*discordgo.ApplicationCommandOption{{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "prompt",
						Description: "What to say",
						Required:    true,
					}},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "reset", Description: "Make me forget this channel's conversation"},
			},
		},
		Subs: map[string]Func{
			"ask":   Ask,
			"reset": ResetChat,
		},
	}
}

// Ask answers a prompt in the channel's conversation.
func Ask(ctx context.Context, robo *Robot, call *Invocation) error {
	if err := call.Resp.Defer(ctx, false); err != nil {
		return err
	}
	name := call.User.GlobalName
	if name == "" {
		name = call.User.Username
	}
	r, err := robo.Chat.Ask(ctx, call.Interaction.ChannelID, call.User.ID, name, call.String("prompt"))
	if err != nil {
		if errors.Is(err, ai.ErrRateLimited) {
			return Failf("I need a moment to catch my breath. Try again soon.")
		}
		return err
	}
	chunks := ai.Split(r, MessageLimit)
	if len(chunks) == 0 {
		return Failf("I have nothing to say to that.")
	}
	for _, c := range chunks {
		if err := call.Resp.ReplyText(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// ResetChat clears the channel's conversation.
func ResetChat(ctx context.Context, robo *Robot, call *Invocation) error {
	robo.Chat.Reset(call.Interaction.ChannelID)
	return call.Resp.ReplyText(ctx, "Okay, I forgot everything we talked about here.")
}
