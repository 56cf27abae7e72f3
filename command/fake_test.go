package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/nanapi"
	"github.com/nanachan-bot/nanachan/privacy"
)

type response struct {
	kind   string
	typ    discordgo.InteractionResponseType
	data   *discordgo.InteractionResponseData
	edit   *discordgo.WebhookEdit
	params *discordgo.WebhookParams
}

type fakeSession struct {
	mu  sync.Mutex
	got []response
}

func (f *fakeSession) InteractionRespond(i *discordgo.Interaction, r *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, response{kind: "respond", typ: r.Type, data: r.Data})
	return nil
}

func (f *fakeSession) InteractionResponseEdit(i *discordgo.Interaction, e *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, response{kind: "edit", edit: e})
	return &discordgo.Message{}, nil
}

func (f *fakeSession) FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, response{kind: "followup", params: data})
	return &discordgo.Message{}, nil
}

func (f *fakeSession) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := make([]string, len(f.got))
	for i, g := range f.got {
		r[i] = g.kind
	}
	return r
}

// last returns the content and flags of the last message sent.
func (f *fakeSession) last() (string, discordgo.MessageFlags) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.got) == 0 {
		return "", 0
	}
	g := f.got[len(f.got)-1]
	switch {
	case g.data != nil:
		return g.data.Content, g.data.Flags
	case g.edit != nil && g.edit.Content != nil:
		return *g.edit.Content, 0
	case g.params != nil:
		return g.params.Content, g.params.Flags
	}
	return "", 0
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func member(id string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id, Username: id}}
}

func str(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

func integer(name string, v int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(v)}
}

func userOpt(name, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionUser, Value: id}
}

func sub(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionSubCommand, Options: opts}
}

func group(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionSubCommandGroup, Options: opts}
}

func slash(user, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "1",
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "chan",
		GuildID:   "guild",
		Member:    member(user),
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}
}

func button(user, custom string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "2",
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "chan",
		GuildID:   "guild",
		Member:    member(user),
		Data:      discordgo.MessageComponentInteractionData{CustomID: custom, ComponentType: discordgo.ButtonComponent},
	}
}

// fakeNanapi implements the nanapi interfaces the commands use.
type fakeNanapi struct {
	mu       sync.Mutex
	profiles map[string]*nanapi.Profile
	calls    []string
	// conflict makes trade creation and commits fail with a conflict.
	conflict bool
}

func newFakeNanapi() *fakeNanapi {
	return &fakeNanapi{profiles: make(map[string]*nanapi.Profile)}
}

func (f *fakeNanapi) note(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeNanapi) Profile(ctx context.Context, id string) (*nanapi.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profiles[id]
	if p == nil {
		return nil, &nanapi.Error{Status: 404, Detail: "no profile"}
	}
	return p, nil
}

func (f *fakeNanapi) UpsertProfile(ctx context.Context, id string, u *nanapi.ProfileUpdate) (*nanapi.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profiles[id]
	if p == nil {
		p = &nanapi.Profile{DiscordID: id}
		f.profiles[id] = p
	}
	p.DiscordUsername = u.DiscordUsername
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.Birthday != nil {
		p.Birthday = *u.Birthday
	}
	if u.GraduationYear != nil {
		p.GraduationYear = *u.GraduationYear
	}
	if u.Photo != nil {
		p.Photo = *u.Photo
	}
	if u.Pronouns != nil {
		p.Pronouns = *u.Pronouns
	}
	return p, nil
}

func (f *fakeNanapi) Profiles(ctx context.Context, ids []string) ([]nanapi.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var r []nanapi.Profile
	for _, id := range ids {
		if p := f.profiles[id]; p != nil {
			r = append(r, *p)
		}
	}
	return r, nil
}

func (f *fakeNanapi) FindProfiles(ctx context.Context, pattern string) ([]nanapi.Profile, error) {
	return nil, nil
}

func (f *fakeNanapi) AddCoins(ctx context.Context, id string, n int) error {
	f.note("coins " + id)
	return nil
}

func (f *fakeNanapi) Drop(ctx context.Context, id string, n int, reason string) ([]nanapi.Waifu, error) {
	f.note("drop " + id)
	r := make([]nanapi.Waifu, n)
	for i := range r {
		r[i] = nanapi.Waifu{ID: "w", OwnerID: id, CharacterName: "Bocchi"}
	}
	return r, nil
}

func (f *fakeNanapi) Reroll(ctx context.Context, id string, ids []string, bot string) (*nanapi.RerollResult, error) {
	f.note("reroll " + id)
	return &nanapi.RerollResult{Obtained: []nanapi.Waifu{{ID: "new", CharacterName: "Kita"}}}, nil
}

func (f *fakeNanapi) CreateTrade(ctx context.Context, t *nanapi.TradeCreate) (*nanapi.Trade, error) {
	f.note("create " + t.PlayerA + " " + t.PlayerB)
	if f.conflict {
		return nil, &nanapi.Error{Status: 409, Detail: "locked"}
	}
	return &nanapi.Trade{ID: "up1", PlayerA: t.PlayerA, PlayerB: t.PlayerB}, nil
}

func (f *fakeNanapi) CommitTrade(ctx context.Context, id string) error {
	f.note("commit " + id)
	return nil
}

func (f *fakeNanapi) DeleteTrade(ctx context.Context, id string) error {
	f.note("delete " + id)
	return nil
}

func (f *fakeNanapi) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakePrivacy struct {
	mu sync.Mutex
	m  map[string]map[privacy.Feature]bool
}

func (f *fakePrivacy) Toggle(ctx context.Context, user string, feat privacy.Feature) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = make(map[string]map[privacy.Feature]bool)
	}
	if f.m[user] == nil {
		f.m[user] = make(map[privacy.Feature]bool)
	}
	f.m[user][feat] = !f.m[user][feat]
	return f.m[user][feat], nil
}

func (f *fakePrivacy) Of(ctx context.Context, user string) ([]privacy.Feature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var r []privacy.Feature
	for _, feat := range privacy.Features {
		if f.m[user][feat] {
			r = append(r, feat)
		}
	}
	return r, nil
}

var errBoom = errors.New("boom")
