package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func buttons(t *testing.T, comps []discordgo.MessageComponent) []discordgo.Button {
	t.Helper()
	if len(comps) != 1 {
		t.Fatalf("want one row, got %d", len(comps))
	}
	row := comps[0].(discordgo.ActionsRow)
	var r []discordgo.Button
	for _, c := range row.Components {
		r = append(r, c.(discordgo.Button))
	}
	return r
}

func TestPaginator(t *testing.T) {
	p := NewPaginator(time.Hour)
	robo := &Robot{Log: discard(), Pages: p}
	r := NewRegistry(robo)
	r.Component(pagePrefix, p.Flip)
	pages := []*discordgo.MessageEmbed{{Title: "a"}, {Title: "b"}, {Title: "c", Footer: &discordgo.MessageEmbedFooter{Text: "note"}}}

	s := &fakeSession{}
	ctx := context.Background()
	call := &Invocation{User: &discordgo.User{ID: "bocchi"}, Resp: NewResponder(s, slash("bocchi", "x"))}
	if err := p.Send(ctx, call, pages); err != nil {
		t.Fatal(err)
	}
	first := s.got[0].data
	if first.Embeds[0].Title != "a" || first.Embeds[0].Footer.Text != "1/3" {
		t.Errorf("wrong first page: %+v", first.Embeds[0])
	}
	bs := buttons(t, first.Components)
	if !bs[0].Disabled || bs[1].Disabled {
		t.Errorf("wrong button states on first page: %+v", bs)
	}
	next := bs[1].CustomID

	// Someone else can't flip.
	s2 := &fakeSession{}
	r.Handle(ctx, s2, button("ryo", next))
	if msg, _ := s2.last(); !strings.Contains(msg, "Only the person") {
		t.Errorf("stranger flipped pages: %q", msg)
	}

	s3 := &fakeSession{}
	r.Handle(ctx, s3, button("bocchi", next))
	if len(s3.got) != 1 || s3.got[0].typ != discordgo.InteractionResponseUpdateMessage {
		t.Fatalf("flip didn't update: %+v", s3.got)
	}
	if e := s3.got[0].data.Embeds[0]; e.Title != "b" || e.Footer.Text != "2/3" {
		t.Errorf("wrong second page: %+v", e)
	}
	last := buttons(t, s3.got[0].data.Components)[1].CustomID
	s4 := &fakeSession{}
	r.Handle(ctx, s4, button("bocchi", last))
	if e := s4.got[0].data.Embeds[0]; e.Footer.Text != "note · 3/3" {
		t.Errorf("wrong last footer: %q", e.Footer.Text)
	}
	if pages[2].Footer.Text != "note" {
		t.Errorf("page was modified: %q", pages[2].Footer.Text)
	}

	if n := p.Sweep(time.Now().Add(2 * time.Hour)); n != 1 {
		t.Errorf("wrong sweep count %d", n)
	}
	s5 := &fakeSession{}
	r.Handle(ctx, s5, button("bocchi", next))
	if msg, _ := s5.last(); !strings.Contains(msg, "expired") {
		t.Errorf("expired pages flipped: %q", msg)
	}
}

func TestPaginatorSinglePage(t *testing.T) {
	p := NewPaginator(time.Hour)
	s := &fakeSession{}
	call := &Invocation{User: &discordgo.User{ID: "bocchi"}, Resp: NewResponder(s, slash("bocchi", "x"))}
	if err := p.Send(context.Background(), call, []*discordgo.MessageEmbed{{Title: "only"}}); err != nil {
		t.Fatal(err)
	}
	d := s.got[0].data
	if len(d.Components) != 0 || d.Embeds[0].Footer != nil {
		t.Errorf("single page got pagination: %+v", d)
	}
	if n := p.Sweep(time.Now().Add(2 * time.Hour)); n != 0 {
		t.Errorf("single page was stored")
	}
}
