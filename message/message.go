// Package message holds chat messages as the bot's features see them.
package message

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/waicolle"
)

// Received is a message received from Discord.
type Received struct {
	// ID is the unique ID of the message.
	ID string
	// Guild is the guild of the message, empty in DMs.
	Guild string
	// Channel is the channel or thread the message was sent to.
	Channel string
	// Sender is the ID of the author.
	Sender string
	// Name is the display name of the author.
	Name string
	// Text is the text of the message.
	Text string
	// Time is when the message was sent.
	Time time.Time
	// IsBot indicates the author is a bot or webhook.
	IsBot bool
	// Mentions are the IDs of mentioned users.
	Mentions []string
	// Raw is the original message.
	Raw *discordgo.Message
}

// FromDiscord converts a Discord message.
func FromDiscord(m *discordgo.Message) *Received {
	r := &Received{
		ID:      m.ID,
		Guild:   m.GuildID,
		Channel: m.ChannelID,
		Text:    m.Content,
		Time:    m.Timestamp,
		IsBot:   m.WebhookID != "",
		Raw:     m,
	}
	if m.Author != nil {
		r.Sender = m.Author.ID
		r.Name = m.Author.GlobalName
		if r.Name == "" {
			r.Name = m.Author.Username
		}
		r.IsBot = r.IsBot || m.Author.Bot
	}
	if m.Member != nil && m.Member.Nick != "" {
		r.Name = m.Member.Nick
	}
	for _, u := range m.Mentions {
		r.Mentions = append(r.Mentions, u.ID)
	}
	return r
}

// Mentioned reports whether the message mentions a user.
func (m *Received) Mentioned(user string) bool {
	for _, id := range m.Mentions {
		if id == user {
			return true
		}
	}
	return false
}

// Prompt returns the text with leading mentions of user removed.
func (m *Received) Prompt(user string) string {
	s := strings.TrimSpace(m.Text)
	for {
		t := strings.TrimPrefix(s, "<@"+user+">")
		t = strings.TrimPrefix(t, "<@!"+user+">")
		t = strings.TrimSpace(t)
		if t == s {
			return s
		}
		s = t
	}
}

// Game converts the message for the waicolle game.
func (m *Received) Game() *waicolle.Msg {
	return &waicolle.Msg{
		ID:      m.ID,
		User:    m.Sender,
		Guild:   m.Guild,
		Channel: m.Channel,
		Content: m.Text,
		Time:    m.Time,
	}
}
