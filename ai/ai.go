// Package ai runs conversations with an OpenAI-compatible chat model.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/nanachan-bot/nanachan/deque"
	"github.com/nanachan-bot/nanachan/privacy"
	"github.com/nanachan-bot/nanachan/syncmap"
)

// ErrRateLimited is returned by Ask when requests come too quickly.
var ErrRateLimited = errors.New("too many AI requests")

// Completer creates chat completions. *openai.Client implements it.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var _ Completer = (*openai.Client)(nil)

// Privacy checks whether a user opted out.
type Privacy interface {
	Check(ctx context.Context, user string, f privacy.Feature) error
}

// Chat holds per-channel conversations.
type Chat struct {
	Client Completer
	Model  string
	// System is the system prompt.
	System string
	// History is the number of messages kept per channel.
	History int
	// MaxTokens limits reply length. Zero means the model default.
	MaxTokens int
	Limiter   *rate.Limiter
	Privacy   Privacy
	Logger    *slog.Logger

	chans *syncmap.Map[string, *history]
}

type history struct {
	mu  sync.Mutex
	msg deque.Deque[openai.ChatCompletionMessage]
}

// New creates a chat.
func New(client Completer, model, system string, hist int, lim *rate.Limiter, priv Privacy, lg *slog.Logger) *Chat {
	return &Chat{
		Client:  client,
		Model:   model,
		System:  system,
		History: hist,
		Limiter: lim,
		Privacy: priv,
		Logger:  lg,
		chans:   syncmap.New[string, *history](),
	}
}

func (c *Chat) hist(channel string) *history {
	h, _ := c.chans.LoadOrStore(channel, new(history))
	return h
}

// private reports whether a user's messages must stay out of history.
// Errors count as private.
func (c *Chat) private(ctx context.Context, user string) bool {
	err := c.Privacy.Check(ctx, user, privacy.AI)
	if err != nil && !errors.Is(err, privacy.ErrPrivate) {
		c.Logger.WarnContext(ctx, "couldn't check AI privacy", slog.String("user", user), slog.Any("err", err))
	}
	return err != nil
}

// Record adds a chat message to a channel's context.
func (c *Chat) Record(ctx context.Context, channel, user, name, text string) {
	if text == "" || c.private(ctx, user) {
		return
	}
	h := c.hist(channel)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msg = h.msg.Append(userMessage(name, text)).Limit(c.History)
}

// Ask sends a prompt in a channel and returns the model's reply.
func (c *Chat) Ask(ctx context.Context, channel, user, name, prompt string) (string, error) {
	if c.Limiter != nil && !c.Limiter.Allow() {
		return "", ErrRateLimited
	}
	priv := c.private(ctx, user)
	q := userMessage(name, prompt)
	h := c.hist(channel)
	h.mu.Lock()
	msgs := make([]openai.ChatCompletionMessage, 0, h.msg.Len()+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.System})
	msgs = append(msgs, h.msg.Slice()...)
	h.mu.Unlock()
	msgs = append(msgs, q)
	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.Model,
		Messages:  msgs,
		MaxTokens: c.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("couldn't get completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion has no choices")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	h.mu.Lock()
	defer h.mu.Unlock()
	if !priv {
		h.msg = h.msg.Append(q)
	}
	h.msg = h.msg.Append(openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply}).Limit(c.History)
	return reply, nil
}

// Reset clears a channel's history.
func (c *Chat) Reset(channel string) {
	c.chans.Delete(channel)
}

// Len returns the number of messages in a channel's history.
func (c *Chat) Len(channel string) int {
	h, ok := c.chans.Load(channel)
	if !ok {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.msg.Len()
}

func userMessage(name, text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: name + ": " + text}
}
