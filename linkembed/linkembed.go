// Package linkembed reposts social media links through embed-friendly
// mirrors.
package linkembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"mvdan.cc/xurls/v2"

	"github.com/nanachan-bot/nanachan/multiplex"
	"github.com/nanachan-bot/nanachan/privacy"
)

// Hosts maps domains to their embed-friendly mirrors.
var Hosts = map[string]string{
	"twitter.com":   "fxtwitter.com",
	"x.com":         "fxtwitter.com",
	"instagram.com": "ddinstagram.com",
	"tiktok.com":    "vxtiktok.com",
	"pixiv.net":     "phixiv.net",
	"reddit.com":    "rxddit.com",
	"bsky.app":      "bskx.app",
}

// hostPrefixes are subdomains dropped before lookup.
var hostPrefixes = []string{"www.", "mobile.", "m.", "old.", "new."}

var (
	urls     = xurls.Strict()
	spoilers = regexp.MustCompile(`(?s)\|\|.*?\|\|`)
	escaped  = regexp.MustCompile(`<[^<>\s]+>`)
)

// Rewrite returns the mirror URL for a link, or the empty string if the link
// has no mirror.
func Rewrite(link string) string {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	sub := ""
	for _, p := range hostPrefixes {
		if strings.HasPrefix(host, p) {
			host = host[len(p):]
			break
		}
	}
	m, ok := Hosts[host]
	if !ok {
		// Keep short-link subdomains like vm.tiktok.com.
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return ""
		}
		m, ok = Hosts[host[i+1:]]
		if !ok {
			return ""
		}
		sub = host[:i+1]
	}
	if u.Path == "" || u.Path == "/" {
		return ""
	}
	u.Scheme = "https"
	u.Host = sub + m
	return u.String()
}

// Links finds rewritable links in message content. Links inside <...> or
// spoilers are left alone.
func Links(content string) []string {
	content = spoilers.ReplaceAllString(content, " ")
	content = escaped.ReplaceAllString(content, " ")
	var r []string
	seen := make(map[string]bool)
	for _, l := range urls.FindAllString(content, -1) {
		f := Rewrite(l)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		r = append(r, f)
	}
	return r
}

// Sender posts messages as personas.
type Sender interface {
	SendTo(ctx context.Context, channelID string, p multiplex.Persona, params *discordgo.WebhookParams) (*discordgo.Message, error)
}

// Editor edits messages.
type Editor interface {
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Privacy checks whether a user opted out.
type Privacy interface {
	Check(ctx context.Context, user string, f privacy.Feature) error
}

// Embedder reposts messages with fixed links.
type Embedder struct {
	Sender  Sender
	Editor  Editor
	Privacy Privacy
	Logger  *slog.Logger
}

// Handle processes a message. It reports whether the message was reposted.
func (e *Embedder) Handle(ctx context.Context, m *discordgo.Message) (bool, error) {
	if m.Author == nil || m.Author.Bot || m.WebhookID != "" {
		return false, nil
	}
	links := Links(m.Content)
	if len(links) == 0 {
		return false, nil
	}
	err := e.Privacy.Check(ctx, m.Author.ID, privacy.Embed)
	switch {
	case errors.Is(err, privacy.ErrPrivate):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("couldn't check privacy: %w", err)
	}
	flags := m.Flags | discordgo.MessageFlagsSuppressEmbeds
	_, err = e.Editor.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:      m.ID,
		Channel: m.ChannelID,
		Flags:   flags,
	}, discordgo.WithContext(ctx))
	if err != nil {
		// Missing permissions shouldn't stop the repost.
		e.Logger.WarnContext(ctx, "couldn't suppress embeds", slog.String("message", m.ID), slog.Any("err", err))
	}
	member := m.Member
	if member != nil && member.GuildID == "" {
		// Members attached to messages don't carry their guild.
		mm := *member
		mm.GuildID = m.GuildID
		member = &mm
	}
	p := multiplex.PersonaOf(m.Author, member)
	params := &discordgo.WebhookParams{
		Content:         strings.Join(links, "\n"),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if _, err := e.Sender.SendTo(ctx, m.ChannelID, p, params); err != nil {
		return false, fmt.Errorf("couldn't repost links: %w", err)
	}
	e.Logger.InfoContext(ctx, "reposted links", slog.String("channel", m.ChannelID), slog.Int("count", len(links)))
	return true, nil
}
