package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/nanachan-bot/nanachan/syncmap"
)

// pagePrefix is the component prefix of page buttons.
const pagePrefix = "page"

type pageSet struct {
	owner   string
	pages   []*discordgo.MessageEmbed
	expires time.Time
}

// Paginator holds paged embeds so that their buttons can flip them.
type Paginator struct {
	// TTL is how long pages stay flippable.
	TTL  time.Duration
	sets *syncmap.Map[string, *pageSet]
}

// NewPaginator creates a paginator.
func NewPaginator(ttl time.Duration) *Paginator {
	return &Paginator{TTL: ttl, sets: syncmap.New[string, *pageSet]()}
}

// Send replies with the first of pages. Only the invoking user can flip them.
func (p *Paginator) Send(ctx context.Context, call *Invocation, pages []*discordgo.MessageEmbed) error {
	if len(pages) == 0 {
		return Failf("Nothing to show.")
	}
	key := ""
	if len(pages) > 1 {
		key = uuid.NewString()
		p.sets.Store(key, &pageSet{owner: call.User.ID, pages: pages, expires: time.Now().Add(p.TTL)})
	}
	return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{page(pages, 0)},
		Components: pageButtons(key, 0, len(pages)),
	})
}

// Flip handles page buttons.
func (p *Paginator) Flip(ctx context.Context, robo *Robot, call *Invocation, payload string) error {
	key, ns, _ := strings.Cut(payload, ":")
	n, err := strconv.Atoi(ns)
	if err != nil {
		return fmt.Errorf("bad page payload %q: %w", payload, err)
	}
	s, ok := p.sets.Load(key)
	if !ok || time.Now().After(s.expires) {
		return Failf("These pages have expired.")
	}
	if s.owner != call.User.ID {
		return Failf("Only the person who asked can turn these pages.")
	}
	n = min(max(n, 0), len(s.pages)-1)
	return call.Resp.Update(ctx, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{page(s.pages, n)},
		Components: pageButtons(key, n, len(s.pages)),
	})
}

// Sweep forgets expired pages.
func (p *Paginator) Sweep(now time.Time) int {
	return p.sets.DeleteFunc(func(_ string, s *pageSet) bool { return now.After(s.expires) })
}

// page returns a copy of the nth page with a page number footer.
func page(pages []*discordgo.MessageEmbed, n int) *discordgo.MessageEmbed {
	e := *pages[n]
	if len(pages) > 1 {
		t := fmt.Sprintf("%d/%d", n+1, len(pages))
		if e.Footer != nil && e.Footer.Text != "" {
			t = e.Footer.Text + " · " + t
		}
		e.Footer = &discordgo.MessageEmbedFooter{Text: t}
	}
	return &e
}

func pageButtons(key string, n, total int) []discordgo.MessageComponent {
	if total <= 1 {
		return nil
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "◀",
				Style:    discordgo.SecondaryButton,
				CustomID: pagePrefix + ":" + key + ":" + strconv.Itoa(n-1),
				Disabled: n == 0,
			},
			discordgo.Button{
				Label:    "▶",
				Style:    discordgo.SecondaryButton,
				CustomID: pagePrefix + ":" + key + ":" + strconv.Itoa(n+1),
				Disabled: n == total-1,
			},
		}},
	}
}
