package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/saucenao"
)

// SauceCommands returns the reverse image search commands.
func SauceCommands() []*Command {
	return []*Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "sauce",
				Description: "Find the source of an image",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionAttachment, Name: "image", Description: "Image to search for"},
					{Type: discordgo.ApplicationCommandOptionString, Name: "url", Description: "Image URL to search for"},
				},
			},
			Func: Sauce,
		},
		{
			Def:  &discordgo.ApplicationCommand{Name: "Find sauce", Type: discordgo.MessageApplicationCommand},
			Func: SauceMessage,
		},
	}
}

// Sauce searches for an attached or linked image.
func Sauce(ctx context.Context, robo *Robot, call *Invocation) error {
	u := call.String("url")
	if o := call.Options["image"]; o != nil {
		id, _ := o.Value.(string)
		if r := call.Interaction.ApplicationCommandData().Resolved; r != nil && r.Attachments[id] != nil {
			u = r.Attachments[id].URL
		}
	}
	if u == "" {
		return Failf("Give me an image or an image URL.")
	}
	return sauce(ctx, robo, call, u)
}

// SauceMessage searches for the first image in a message.
func SauceMessage(ctx context.Context, robo *Robot, call *Invocation) error {
	data := call.Interaction.ApplicationCommandData()
	var m *discordgo.Message
	if data.Resolved != nil {
		m = data.Resolved.Messages[data.TargetID]
	}
	u := imageOf(m)
	if u == "" {
		return Failf("That message has no image.")
	}
	return sauce(ctx, robo, call, u)
}

// imageOf returns the first image in a message.
func imageOf(m *discordgo.Message) string {
	if m == nil {
		return ""
	}
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.ContentType, "image/") {
			return a.URL
		}
	}
	for _, e := range m.Embeds {
		switch {
		case e.Image != nil:
			return e.Image.URL
		case e.Thumbnail != nil:
			return e.Thumbnail.URL
		}
	}
	return ""
}

func sauce(ctx context.Context, robo *Robot, call *Invocation, u string) error {
	if err := call.Resp.Defer(ctx, false); err != nil {
		return err
	}
	r, err := robo.Sauce.Search(ctx, u)
	if err != nil {
		if errors.Is(err, saucenao.ErrRateLimited) {
			return Fail(err, "SauceNAO is rate limiting me. Try again later.")
		}
		return err
	}
	if len(r) == 0 {
		return Failf("I couldn't find a source for that image.")
	}
	pages := make([]*discordgo.MessageEmbed, 0, len(r))
	for i := range r {
		pages = append(pages, sauceEmbed(&r[i]))
	}
	return robo.Pages.Send(ctx, call, pages)
}

func sauceEmbed(r *saucenao.Result) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:     r.Title,
		Thumbnail: &discordgo.MessageEmbedThumbnail{URL: r.Thumbnail},
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%.1f%% · %s", r.Similarity, r.IndexName)},
	}
	if e.Title == "" {
		e.Title = "Result"
	}
	if len(r.URLs) > 0 {
		e.URL = r.URLs[0]
		e.Description = strings.Join(r.URLs, "\n")
	}
	if r.Author != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Author", Value: r.Author, Inline: true})
	}
	if r.Source != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Source", Value: r.Source, Inline: true})
	}
	return e
}
