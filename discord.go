package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/ai"
	"github.com/nanachan-bot/nanachan/amq"
	"github.com/nanachan-bot/nanachan/channel"
	"github.com/nanachan-bot/nanachan/command"
	"github.com/nanachan-bot/nanachan/message"
	"github.com/nanachan-bot/nanachan/metrics"
)

func (b *Bot) onReady(s *discordgo.Session, ev *discordgo.Ready) {
	b.log.InfoContext(b.ctx, "connected to Discord",
		slog.String("user", ev.User.Username),
		slog.Int("guilds", len(ev.Guilds)),
	)
	// Keep slash commands in sync with the registry on every start.
	_, err := s.ApplicationCommandBulkOverwrite(ev.Application.ID, b.cfg.Discord.Guild, b.registry.Defs(), discordgo.WithContext(b.ctx))
	if err != nil {
		b.log.ErrorContext(b.ctx, "failed to update slash commands", slog.Any("err", err))
	}
}

func (b *Bot) onInteraction(s *discordgo.Session, ev *discordgo.InteractionCreate) {
	b.registry.Handle(b.ctx, s, ev.Interaction)
}

func (b *Bot) onMessage(s *discordgo.Session, ev *discordgo.MessageCreate) {
	ctx := b.ctx
	msg := message.FromDiscord(ev.Message)
	metrics.Observe(b.metrics.MessagesCount, 1, msg.Guild)
	// Ignore bots, webhooks including our own reposts, and DMs.
	if msg.IsBot || msg.Guild == "" {
		return
	}
	log := b.log.With(slog.String("trace", msg.ID), slog.String("in", msg.Channel))
	ch := channel.Lookup(b.channels, msg.Channel, b.parent(msg.Channel), b.global)
	if ch == nil {
		return
	}

	if b.amq != nil && msg.Channel == b.cfg.AMQ.Channel {
		err := b.amq.Relay(ctx, msg.Name, msg.Text)
		switch {
		case err == nil: // do nothing
		case errors.Is(err, amq.ErrNotConnected):
			log.DebugContext(ctx, "AMQ bridge is down")
		default:
			log.ErrorContext(ctx, "couldn't relay to AMQ", slog.Any("err", err))
		}
	}

	if ch.Allows(channel.Embed, msg.Text, msg.Time) {
		ok, err := b.embedder.Handle(ctx, ev.Message)
		if err != nil {
			log.ErrorContext(ctx, "link embed failed", slog.Any("err", err))
		}
		if ok {
			log.InfoContext(ctx, "reposted links")
		}
	}

	if b.robo.Game != nil && ch.Allows(channel.Rewards, msg.Text, msg.Time) {
		b.play(ctx, log, s, ch, msg)
	}

	if b.robo.Chat != nil && ch.Allows(channel.AI, msg.Text, msg.Time) {
		if msg.Mentioned(b.cfg.Discord.App) {
			b.answer(ctx, log, s, ch, msg)
		} else {
			b.robo.Chat.Record(ctx, msg.Channel, msg.Sender, msg.Name, msg.Text)
		}
	}
}

// parent returns the parent channel of a thread, or the empty string.
func (b *Bot) parent(id string) string {
	c, err := b.dg.State.Channel(id)
	if err != nil || !c.IsThread() {
		return ""
	}
	return c.ParentID
}

// play applies waicolle rewards for a message and posts any drops it causes.
// Drops in channels without the drops feature go unposted and expire.
func (b *Bot) play(ctx context.Context, log *slog.Logger, s *discordgo.Session, ch *channel.Channel, msg *message.Received) {
	drops := b.robo.Game.OnMessage(msg.Game())
	if len(drops) == 0 {
		return
	}
	if !ch.Allows(channel.Drops, msg.Text, msg.Time) {
		log.DebugContext(ctx, "drops disabled in channel", slog.Int("count", len(drops)))
		return
	}
	for _, d := range drops {
		_, err := s.ChannelMessageSendComplex(msg.Channel, command.DropMessage(d), discordgo.WithContext(ctx))
		if err != nil {
			log.ErrorContext(ctx, "couldn't post drop", slog.String("drop", d.ID), slog.Any("err", err))
			continue
		}
		log.InfoContext(ctx, "drop", slog.String("drop", d.ID), slog.Int("size", d.Size), slog.String("reason", d.Reason))
	}
}

// answer replies to a message that mentions the bot.
func (b *Bot) answer(ctx context.Context, log *slog.Logger, s *discordgo.Session, ch *channel.Channel, msg *message.Received) {
	t := time.Now()
	if !ch.Speak(t) {
		log.InfoContext(ctx, "rate limited", slog.String("action", "answer"))
		return
	}
	prompt := msg.Prompt(b.cfg.Discord.App)
	if prompt == "" {
		return
	}
	if err := s.ChannelTyping(msg.Channel, discordgo.WithContext(ctx)); err != nil {
		log.WarnContext(ctx, "couldn't start typing", slog.Any("err", err))
	}
	reply, err := b.robo.Chat.Ask(ctx, msg.Channel, msg.Sender, msg.Name, prompt)
	switch {
	case err == nil: // do nothing
	case errors.Is(err, ai.ErrRateLimited):
		log.InfoContext(ctx, "AI rate limited")
		return
	default:
		log.ErrorContext(ctx, "couldn't answer", slog.Any("err", err))
		return
	}
	ref := msg.Raw.Reference()
	for _, chunk := range ai.Split(reply, command.MessageLimit) {
		send := &discordgo.MessageSend{
			Content:         chunk,
			Reference:       ref,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}
		if _, err := s.ChannelMessageSendComplex(msg.Channel, send, discordgo.WithContext(ctx)); err != nil {
			log.ErrorContext(ctx, "couldn't send answer", slog.Any("err", err))
			return
		}
		// Only the first chunk replies.
		ref = nil
	}
	log.InfoContext(ctx, "answered", slog.Int("len", len(reply)), slog.Duration("took", time.Since(t)))
}
