package multiplex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"
)

type fakeSession struct {
	mu       sync.Mutex
	hooks    map[string][]*discordgo.Webhook
	channels map[string]*discordgo.Channel
	created  int
	sent     []sent
	// gone lists webhook IDs that fail with unknown webhook.
	gone map[string]bool
}

type sent struct {
	Hook   string
	Thread string
	Name   string
	Avatar string
	Text   string
}

func newFake() *fakeSession {
	return &fakeSession{
		hooks:    make(map[string][]*discordgo.Webhook),
		channels: make(map[string]*discordgo.Channel),
		gone:     make(map[string]bool),
	}
}

func (f *fakeSession) Channel(id string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return &discordgo.Channel{ID: id, Type: discordgo.ChannelTypeGuildText}, nil
	}
	return ch, nil
}

func (f *fakeSession) ChannelWebhooks(id string, options ...discordgo.RequestOption) ([]*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hooks[id], nil
}

func (f *fakeSession) WebhookCreate(id, name, avatar string, options ...discordgo.RequestOption) (*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	wh := &discordgo.Webhook{ID: fmt.Sprintf("wh%d", f.created), ChannelID: id, Name: name, Token: "tok", User: &discordgo.User{ID: "bot"}}
	f.hooks[id] = append(f.hooks[id], wh)
	return wh, nil
}

func (f *fakeSession) WebhookThreadExecute(id, token string, wait bool, thread string, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[id] {
		return nil, &discordgo.RESTError{
			Response: &http.Response{StatusCode: 404},
			Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownWebhook, Message: "Unknown Webhook"},
		}
	}
	f.sent = append(f.sent, sent{Hook: id, Thread: thread, Name: data.Username, Avatar: data.AvatarURL, Text: data.Content})
	return &discordgo.Message{ID: fmt.Sprint(len(f.sent)), Content: data.Content}, nil
}

func TestSendCreatesOnce(t *testing.T) {
	s := newFake()
	m := New(s, "bot", "nanachan")
	ctx := context.Background()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Send(ctx, "c1", "", Persona{Name: "bocchi"}, &discordgo.WebhookParams{Content: "hi"}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if s.created != 1 {
		t.Errorf("wrong number of webhooks created: want 1, got %d", s.created)
	}
	if len(s.sent) != 10 {
		t.Errorf("wrong number of messages: %d", len(s.sent))
	}
}

func TestSendReusesOwnWebhook(t *testing.T) {
	s := newFake()
	s.hooks["c1"] = []*discordgo.Webhook{
		{ID: "foreign", Token: "x", User: &discordgo.User{ID: "someone"}},
		{ID: "mine", Token: "y", User: &discordgo.User{ID: "bot"}},
	}
	m := New(s, "bot", "nanachan")
	if _, err := m.Send(context.Background(), "c1", "", Persona{Name: "ryo"}, &discordgo.WebhookParams{Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if s.created != 0 || s.sent[0].Hook != "mine" {
		t.Errorf("didn't reuse own webhook: created %d, sent via %q", s.created, s.sent[0].Hook)
	}
}

func TestSendRetriesUnknownWebhook(t *testing.T) {
	s := newFake()
	s.hooks["c1"] = []*discordgo.Webhook{{ID: "stale", Token: "y", User: &discordgo.User{ID: "bot"}}}
	s.gone["stale"] = true
	m := New(s, "bot", "nanachan")
	// The listing still returns the stale hook once; after that it's gone.
	if _, err := m.webhook(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	s.hooks["c1"] = nil
	if _, err := m.Send(context.Background(), "c1", "", Persona{Name: "kita"}, &discordgo.WebhookParams{Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if s.created != 1 || s.sent[0].Hook != "wh1" {
		t.Errorf("didn't recreate webhook: created %d, sent %+v", s.created, s.sent)
	}
}

func TestSendGivesUpAfterRetry(t *testing.T) {
	s := newFake()
	s.hooks["c1"] = []*discordgo.Webhook{{ID: "stale", Token: "y", User: &discordgo.User{ID: "bot"}}}
	s.gone["stale"] = true
	m := New(s, "bot", "nanachan")
	_, err := m.Send(context.Background(), "c1", "", Persona{Name: "kita"}, &discordgo.WebhookParams{Content: "hi"})
	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		t.Errorf("wrong error: %v", err)
	}
}

func TestSendToThread(t *testing.T) {
	s := newFake()
	s.channels["th"] = &discordgo.Channel{ID: "th", ParentID: "c1", Type: discordgo.ChannelTypeGuildPublicThread}
	m := New(s, "bot", "nanachan")
	if _, err := m.SendTo(context.Background(), "th", Persona{Name: "nijika"}, &discordgo.WebhookParams{Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if len(s.hooks["c1"]) != 1 || len(s.hooks["th"]) != 0 {
		t.Errorf("webhook created on the wrong channel: %v", s.hooks)
	}
	if s.sent[0].Thread != "th" {
		t.Errorf("message not sent to thread: %+v", s.sent[0])
	}
}

func TestSendNames(t *testing.T) {
	long := strings.Repeat("ぼ", 100)
	cases := []struct {
		name string
		want string
	}{
		{"bocchi", "bocchi"},
		{"", "nanachan"},
		{long, strings.Repeat("ぼ", 80)},
	}
	for _, c := range cases {
		s := newFake()
		m := New(s, "bot", "nanachan")
		if _, err := m.Send(context.Background(), "c", "", Persona{Name: c.name, AvatarURL: "https://a"}, &discordgo.WebhookParams{Content: "x"}); err != nil {
			t.Fatal(err)
		}
		if s.sent[0].Name != c.want {
			t.Errorf("wrong name for %q: got %q", c.name, s.sent[0].Name)
		}
		if s.sent[0].Avatar != "https://a" {
			t.Errorf("wrong avatar: %q", s.sent[0].Avatar)
		}
	}
}

func TestPersonaOf(t *testing.T) {
	u := &discordgo.User{ID: "1", Username: "bocchi", GlobalName: "Bocchi"}
	cases := []struct {
		name string
		m    *discordgo.Member
		want string
	}{
		{"user", nil, "Bocchi"},
		{"nick", &discordgo.Member{Nick: "Guitar Hero"}, "Guitar Hero"},
		{"no-nick", &discordgo.Member{}, "Bocchi"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := PersonaOf(u, c.m)
			if diff := cmp.Diff(c.want, p.Name); diff != "" {
				t.Errorf("wrong name (-want +got):\n%s", diff)
			}
			if p.AvatarURL == "" {
				t.Error("no avatar")
			}
		})
	}
	plain := &discordgo.User{ID: "2", Username: "ryo"}
	if p := PersonaOf(plain, nil); p.Name != "ryo" {
		t.Errorf("wrong fallback name: %q", p.Name)
	}
}
