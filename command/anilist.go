package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/anilist"
)

const descriptionLimit = 1024

func searchOption(desc string) []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "search",
		Description: desc,
		Required:    true,
	}}
}

// AniListCommands returns the lookup commands.
func AniListCommands() []*Command {
	return []*Command{
		{
			Def:  &discordgo.ApplicationCommand{Name: "anime", Description: "Look up an anime on AniList", Options: searchOption("Title to search for")},
			Func: mediaFunc(anilist.Anime),
		},
		{
			Def:  &discordgo.ApplicationCommand{Name: "manga", Description: "Look up a manga on AniList", Options: searchOption("Title to search for")},
			Func: mediaFunc(anilist.Manga),
		},
		{
			Def:  &discordgo.ApplicationCommand{Name: "character", Description: "Look up a character on AniList", Options: searchOption("Name to search for")},
			Func: lookupFunc("character"),
		},
		{
			Def:  &discordgo.ApplicationCommand{Name: "staff", Description: "Look up a staff member on AniList", Options: searchOption("Name to search for")},
			Func: lookupFunc("staff"),
		},
	}
}

// anilistErr converts lookup errors to user messages.
func anilistErr(err error, search string) error {
	switch {
	case errors.Is(err, anilist.ErrNotFound):
		return Failf("No results for %q.", search)
	case errors.Is(err, anilist.ErrRateLimited):
		return Fail(err, "AniList is rate limiting me. Try again in a minute.")
	}
	return err
}

func mediaFunc(kind anilist.MediaType) Func {
	return lookupFunc(strings.ToLower(string(kind)))
}

func lookupFunc(kind string) Func {
	return func(ctx context.Context, robo *Robot, call *Invocation) error {
		search := call.String("search")
		if err := call.Resp.Defer(ctx, false); err != nil {
			return err
		}
		pages, err := LookUp(ctx, robo.AniList, kind, search)
		if err != nil {
			return anilistErr(err, search)
		}
		return robo.Pages.Send(ctx, call, pages)
	}
}

// LookUp searches AniList and renders one embed per result.
// kind is one of anime, manga, character, or staff.
func LookUp(ctx context.Context, c *anilist.Client, kind, search string) ([]*discordgo.MessageEmbed, error) {
	switch kind {
	case "anime", "manga":
		t := anilist.Anime
		if kind == "manga" {
			t = anilist.Manga
		}
		r, err := c.Media(ctx, t, search)
		if err != nil {
			return nil, err
		}
		pages := make([]*discordgo.MessageEmbed, 0, len(r))
		for i := range r {
			pages = append(pages, mediaEmbed(&r[i]))
		}
		return pages, nil
	case "character":
		r, err := c.Character(ctx, search)
		if err != nil {
			return nil, err
		}
		pages := make([]*discordgo.MessageEmbed, 0, len(r))
		for i := range r {
			pages = append(pages, characterEmbed(&r[i]))
		}
		return pages, nil
	case "staff":
		r, err := c.Staff(ctx, search)
		if err != nil {
			return nil, err
		}
		pages := make([]*discordgo.MessageEmbed, 0, len(r))
		for i := range r {
			pages = append(pages, staffEmbed(&r[i]))
		}
		return pages, nil
	}
	return nil, fmt.Errorf("unknown lookup kind %q", kind)
}

func mediaEmbed(m *anilist.Media) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       m.Title.String(),
		URL:         m.SiteURL,
		Description: anilist.Markdown(m.Description, descriptionLimit),
		Color:       color(m.CoverImage.Color),
		Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: m.CoverImage.Large},
	}
	field := func(name, value string) {
		if value != "" && value != "0" {
			e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: name, Value: value, Inline: true})
		}
	}
	field("Format", m.Format)
	field("Status", strings.ReplaceAll(m.Status, "_", " "))
	if m.Type == anilist.Anime {
		field("Episodes", strconv.Itoa(m.Episodes))
		if m.Season != "" {
			field("Season", fmt.Sprintf("%s %d", m.Season, m.SeasonYear))
		}
	} else {
		field("Chapters", strconv.Itoa(m.Chapters))
		field("Volumes", strconv.Itoa(m.Volumes))
	}
	field("Started", m.StartDate.String())
	if m.AverageScore > 0 {
		field("Score", strconv.Itoa(m.AverageScore)+"%")
	}
	field("Genres", strings.Join(m.Genres, ", "))
	if m.Title.Romaji != "" && m.Title.Romaji != e.Title {
		e.Footer = &discordgo.MessageEmbedFooter{Text: m.Title.Romaji}
	}
	return e
}

func characterEmbed(c *anilist.Character) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       c.Name.Full,
		URL:         c.SiteURL,
		Description: anilist.Markdown(c.Description, descriptionLimit),
		Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: c.Image.Large},
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("♥ %d", c.Favourites)},
	}
	if c.Name.Native != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Native", Value: c.Name.Native, Inline: true})
	}
	var appears []string
	for _, n := range c.Media.Nodes {
		appears = append(appears, fmt.Sprintf("[%s](%s)", n.Title, n.SiteURL))
	}
	if len(appears) > 0 {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Appears in", Value: anilist.Truncate(strings.Join(appears, "\n"), descriptionLimit)})
	}
	return e
}

func staffEmbed(s *anilist.Staff) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       s.Name.Full,
		URL:         s.SiteURL,
		Description: anilist.Markdown(s.Description, descriptionLimit),
		Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: s.Image.Large},
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("♥ %d", s.Favourites)},
	}
	if len(s.PrimaryOccupations) > 0 {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Occupations", Value: strings.Join(s.PrimaryOccupations, ", ")})
	}
	return e
}

// color parses a #rrggbb color, or returns 0.
func color(s string) int {
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(n)
}
