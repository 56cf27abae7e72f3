package linkembed

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/nanachan-bot/nanachan/multiplex"
	"github.com/nanachan-bot/nanachan/privacy"
)

func TestRewrite(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://twitter.com/bocchi/status/1", "https://fxtwitter.com/bocchi/status/1"},
		{"https://x.com/bocchi/status/1?s=20", "https://fxtwitter.com/bocchi/status/1?s=20"},
		{"http://www.instagram.com/p/abc/", "https://ddinstagram.com/p/abc/"},
		{"https://vm.tiktok.com/ZM123/", "https://vm.vxtiktok.com/ZM123/"},
		{"https://www.pixiv.net/en/artworks/123", "https://phixiv.net/en/artworks/123"},
		{"https://old.reddit.com/r/anime/comments/x", "https://rxddit.com/r/anime/comments/x"},
		{"https://bsky.app/profile/a/post/b", "https://bskx.app/profile/a/post/b"},
		{"https://twitter.com/", ""},
		{"https://example.com/a", ""},
		{"https://fxtwitter.com/a/status/1", ""},
		{"ftp://twitter.com/a", ""},
	}
	for _, c := range cases {
		if got := Rewrite(c.in); got != c.want {
			t.Errorf("Rewrite(%q): want %q, got %q", c.in, c.want, got)
		}
	}
}

func TestLinks(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"none", "hello", nil},
		{"one", "look https://x.com/a/status/1 lol", []string{"https://fxtwitter.com/a/status/1"}},
		{"escaped", "look <https://x.com/a/status/1>", nil},
		{"spoiler", "||https://x.com/a/status/1||", nil},
		{"spoiler-multiline", "||spoiler\nhttps://x.com/a/status/1||", nil},
		{"mixed", "<https://x.com/a/status/1> https://x.com/b/status/2 ||https://x.com/c/status/3||", []string{"https://fxtwitter.com/b/status/2"}},
		{"dupe", "https://x.com/a/status/1 https://twitter.com/a/status/1", []string{"https://fxtwitter.com/a/status/1"}},
		{"other", "https://example.com/a https://www.pixiv.net/artworks/1", []string{"https://phixiv.net/artworks/1"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if diff := cmp.Diff(c.want, Links(c.in)); diff != "" {
				t.Errorf("wrong links (-want +got):\n%s", diff)
			}
		})
	}
}

type fakeSender struct {
	sent []*discordgo.WebhookParams
	as   []multiplex.Persona
}

func (f *fakeSender) SendTo(ctx context.Context, ch string, p multiplex.Persona, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	f.sent = append(f.sent, params)
	f.as = append(f.as, p)
	return &discordgo.Message{}, nil
}

type fakeEditor struct {
	edits []*discordgo.MessageEdit
}

func (f *fakeEditor) ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.edits = append(f.edits, m)
	return &discordgo.Message{}, nil
}

type fakePrivacy map[string]bool

func (f fakePrivacy) Check(ctx context.Context, user string, feat privacy.Feature) error {
	if f[user] && feat == privacy.Embed {
		return privacy.ErrPrivate
	}
	return nil
}

func TestHandle(t *testing.T) {
	cases := []struct {
		name string
		msg  *discordgo.Message
		want bool
	}{
		{
			name: "repost",
			msg:  &discordgo.Message{ID: "m", ChannelID: "c", Content: "https://x.com/a/status/1", Author: &discordgo.User{ID: "1", Username: "bocchi"}},
			want: true,
		},
		{
			name: "private",
			msg:  &discordgo.Message{ID: "m", ChannelID: "c", Content: "https://x.com/a/status/1", Author: &discordgo.User{ID: "2", Username: "ryo"}},
			want: false,
		},
		{
			name: "bot",
			msg:  &discordgo.Message{ID: "m", ChannelID: "c", Content: "https://x.com/a/status/1", Author: &discordgo.User{ID: "3", Bot: true}},
			want: false,
		},
		{
			name: "nolinks",
			msg:  &discordgo.Message{ID: "m", ChannelID: "c", Content: "hi", Author: &discordgo.User{ID: "1"}},
			want: false,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := &fakeSender{}
			ed := &fakeEditor{}
			e := Embedder{
				Sender:  s,
				Editor:  ed,
				Privacy: fakePrivacy{"2": true},
				Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			}
			got, err := e.Handle(context.Background(), c.msg)
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("wrong result: want %t, got %t", c.want, got)
			}
			if !c.want {
				if len(s.sent)+len(ed.edits) != 0 {
					t.Errorf("acted on message: %d sent, %d edits", len(s.sent), len(ed.edits))
				}
				return
			}
			if len(ed.edits) != 1 || ed.edits[0].Flags&discordgo.MessageFlagsSuppressEmbeds == 0 {
				t.Errorf("embeds not suppressed: %+v", ed.edits)
			}
			if len(s.sent) != 1 || s.sent[0].Content != "https://fxtwitter.com/a/status/1" {
				t.Errorf("wrong repost: %+v", s.sent)
			}
			if s.as[0].Name != "bocchi" {
				t.Errorf("wrong persona: %+v", s.as[0])
			}
		})
	}
}

func TestHandleMemberAvatar(t *testing.T) {
	s := &fakeSender{}
	e := Embedder{
		Sender:  s,
		Editor:  &fakeEditor{},
		Privacy: fakePrivacy{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	msg := &discordgo.Message{
		ID:        "m",
		ChannelID: "c",
		GuildID:   "g",
		Content:   "https://x.com/a/status/1",
		Author:    &discordgo.User{ID: "1", Username: "bocchi", Avatar: "user"},
		Member:    &discordgo.Member{Nick: "guitar hero", Avatar: "member"},
	}
	if _, err := e.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(s.as) != 1 {
		t.Fatalf("wrong number of reposts: %d", len(s.as))
	}
	p := s.as[0]
	if p.Name != "guitar hero" {
		t.Errorf("wrong name: %q", p.Name)
	}
	if !strings.Contains(p.AvatarURL, "/guilds/g/users/1/avatars/member") {
		t.Errorf("member avatar not used: %q", p.AvatarURL)
	}
	if msg.Member.GuildID != "" {
		t.Errorf("message member modified: %+v", msg.Member)
	}
}
