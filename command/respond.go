package command

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Session is the part of a Discord session used to respond to interactions.
type Session interface {
	InteractionRespond(i *discordgo.Interaction, r *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, e *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Session = (*discordgo.Session)(nil)

const (
	pending = iota
	deferred
	replied
)

// Responder responds to one interaction. The first reply answers the
// interaction, or fills in the deferred response. Later replies are followups.
type Responder struct {
	s Session
	i *discordgo.Interaction

	mu    sync.Mutex
	state int
}

// NewResponder creates a responder for an interaction.
func NewResponder(s Session, i *discordgo.Interaction) *Responder {
	return &Responder{s: s, i: i}
}

// Responded reports whether the interaction has been answered or deferred.
func (r *Responder) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != pending
}

// Reply sends a message in response to the interaction.
func (r *Responder) Reply(ctx context.Context, data *discordgo.InteractionResponseData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	switch r.state {
	case pending:
		err = r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: data,
		}, discordgo.WithContext(ctx))
	case deferred:
		if r.i.Type != discordgo.InteractionMessageComponent {
			_, err = r.s.InteractionResponseEdit(r.i, &discordgo.WebhookEdit{
				Content:         &data.Content,
				Embeds:          &data.Embeds,
				Components:      &data.Components,
				AllowedMentions: data.AllowedMentions,
			}, discordgo.WithContext(ctx))
			break
		}
		// The original response of a deferred component is the message the
		// component is on, so replies go in a new message.
		fallthrough
	case replied:
		_, err = r.s.FollowupMessageCreate(r.i, true, &discordgo.WebhookParams{
			Content:         data.Content,
			Embeds:          data.Embeds,
			Components:      data.Components,
			AllowedMentions: data.AllowedMentions,
			Flags:           data.Flags,
		}, discordgo.WithContext(ctx))
	}
	if err != nil {
		return err
	}
	r.state = replied
	return nil
}

// ReplyText replies with plain text that mentions nobody.
func (r *Responder) ReplyText(ctx context.Context, text string) error {
	return r.Reply(ctx, &discordgo.InteractionResponseData{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
}

// ReplyEphemeral replies with text only the invoking user can see.
func (r *Responder) ReplyEphemeral(ctx context.Context, text string) error {
	return r.Reply(ctx, &discordgo.InteractionResponseData{
		Content:         text,
		Flags:           discordgo.MessageFlagsEphemeral,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
}

// Defer acknowledges the interaction so that the reply can come later.
// It does nothing if the interaction has already been answered.
func (r *Responder) Defer(ctx context.Context, ephemeral bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != pending {
		return nil
	}
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if r.i.Type == discordgo.InteractionMessageComponent {
		resp.Type = discordgo.InteractionResponseDeferredMessageUpdate
	} else if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := r.s.InteractionRespond(r.i, resp, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	r.state = deferred
	return nil
}

// Followup sends an additional message.
func (r *Responder) Followup(ctx context.Context, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	return r.s.FollowupMessageCreate(r.i, true, params, discordgo.WithContext(ctx))
}

// Edit edits the original response.
func (r *Responder) Edit(ctx context.Context, e *discordgo.WebhookEdit) (*discordgo.Message, error) {
	return r.s.InteractionResponseEdit(r.i, e, discordgo.WithContext(ctx))
}

// Update replaces the message a component is attached to.
func (r *Responder) Update(ctx context.Context, data *discordgo.InteractionResponseData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.state == pending {
		err = r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: data,
		}, discordgo.WithContext(ctx))
	} else {
		e := &discordgo.WebhookEdit{Content: &data.Content}
		if data.Embeds != nil {
			e.Embeds = &data.Embeds
		}
		if data.Components != nil {
			e.Components = &data.Components
		}
		_, err = r.s.InteractionResponseEdit(r.i, e, discordgo.WithContext(ctx))
	}
	if err != nil {
		return err
	}
	r.state = replied
	return nil
}
