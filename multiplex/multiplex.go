// Package multiplex posts messages under other personas through webhooks.
package multiplex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/syncmap"
)

// Persona is the name and avatar a message is posted under.
type Persona struct {
	Name      string
	AvatarURL string
}

// PersonaOf derives a persona from a user and, if available, their guild
// membership.
func PersonaOf(u *discordgo.User, m *discordgo.Member) Persona {
	var p Persona
	switch {
	case m != nil && m.Nick != "":
		p.Name = m.Nick
	case u.GlobalName != "":
		p.Name = u.GlobalName
	default:
		p.Name = u.Username
	}
	if m != nil && m.Avatar != "" && m.GuildID != "" {
		mm := *m
		mm.User = u
		p.AvatarURL = mm.AvatarURL("")
	} else {
		p.AvatarURL = u.AvatarURL("")
	}
	return p
}

// Session is the part of a Discord session the multiplexer uses.
type Session interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelWebhooks(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Webhook, error)
	WebhookCreate(channelID, name, avatar string, options ...discordgo.RequestOption) (*discordgo.Webhook, error)
	WebhookThreadExecute(webhookID, token string, wait bool, threadID string, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// maxName is the longest webhook username Discord accepts.
const maxName = 80

// Multiplexer sends messages through one bot-owned webhook per channel.
type Multiplexer struct {
	Session Session
	// BotID identifies webhooks the bot owns.
	BotID string
	// Name is the webhook name and the fallback persona name.
	Name string

	hooks *syncmap.Map[string, *hook]
}

type hook struct {
	mu sync.Mutex
	wh *discordgo.Webhook
}

// New creates a multiplexer.
func New(s Session, botID, name string) *Multiplexer {
	return &Multiplexer{Session: s, BotID: botID, Name: name, hooks: syncmap.New[string, *hook]()}
}

// Send posts a message into a channel as a persona. If threadID is not empty,
// the message goes to that thread of the channel.
func (m *Multiplexer) Send(ctx context.Context, channelID, threadID string, p Persona, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	data := *params
	data.Username = m.clamp(p.Name)
	data.AvatarURL = p.AvatarURL
	for attempt := 0; ; attempt++ {
		wh, err := m.webhook(ctx, channelID)
		if err != nil {
			return nil, err
		}
		msg, err := m.Session.WebhookThreadExecute(wh.ID, wh.Token, true, threadID, &data, discordgo.WithContext(ctx))
		if err == nil {
			return msg, nil
		}
		if attempt == 0 && unknownWebhook(err) {
			m.forget(channelID, wh)
			continue
		}
		return nil, fmt.Errorf("couldn't execute webhook in %s: %w", channelID, err)
	}
}

// SendTo posts into a channel or thread, resolving threads to their parent
// channel's webhook.
func (m *Multiplexer) SendTo(ctx context.Context, channelID string, p Persona, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	ch, err := m.Session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("couldn't get channel %s: %w", channelID, err)
	}
	if ch.IsThread() {
		return m.Send(ctx, ch.ParentID, ch.ID, p, params)
	}
	return m.Send(ctx, ch.ID, "", p, params)
}

func (m *Multiplexer) clamp(name string) string {
	if name == "" {
		name = m.Name
	}
	if utf8.RuneCountInString(name) <= maxName {
		return name
	}
	n := 0
	for i := range name {
		if n == maxName {
			return name[:i]
		}
		n++
	}
	return name
}

// webhook finds or creates the channel's webhook. Creation is serialized per
// channel.
func (m *Multiplexer) webhook(ctx context.Context, channelID string) (*discordgo.Webhook, error) {
	h, _ := m.hooks.LoadOrStore(channelID, new(hook))
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.wh != nil {
		return h.wh, nil
	}
	hooks, err := m.Session.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("couldn't list webhooks in %s: %w", channelID, err)
	}
	for _, wh := range hooks {
		if wh.User != nil && wh.User.ID == m.BotID && wh.Token != "" {
			h.wh = wh
			return wh, nil
		}
	}
	wh, err := m.Session.WebhookCreate(channelID, m.Name, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("couldn't create webhook in %s: %w", channelID, err)
	}
	h.wh = wh
	return wh, nil
}

// forget drops a cached webhook if it is still the one given.
func (m *Multiplexer) forget(channelID string, wh *discordgo.Webhook) {
	h, ok := m.hooks.Load(channelID)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.wh == wh {
		h.wh = nil
	}
}

func unknownWebhook(err error) bool {
	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		return false
	}
	if re.Message != nil && re.Message.Code == discordgo.ErrCodeUnknownWebhook {
		return true
	}
	return re.Response != nil && re.Response.StatusCode == http.StatusNotFound
}
