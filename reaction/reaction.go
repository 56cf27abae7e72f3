// Package reaction fetches reaction GIFs from nekos.life and waifu.pics.
package reaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/go-json-experiment/json"
	"gitlab.com/zephyrtronium/pick"
)

// Provider is an image API serving reactions by tag.
type Provider struct {
	// Name identifies the provider in action tables and credits.
	Name string
	// Endpoint is the image endpoint with {tag} in place of the tag.
	Endpoint string
	// Weight is the relative chance to try this provider first.
	Weight int
}

var (
	NekosLife = Provider{Name: "nekos.life", Endpoint: "https://nekos.life/api/v2/img/{tag}", Weight: 1}
	WaifuPics = Provider{Name: "waifu.pics", Endpoint: "https://api.waifu.pics/sfw/{tag}", Weight: 2}
)

// Action is a reaction command.
type Action struct {
	// Name is the command name.
	Name string
	// Tag is the image tag requested from providers.
	Tag string
	// Verb is the message with {actor} and {target} placeholders.
	Verb string
	// Alone is the message used when there is no target.
	Alone string
	// Providers names the providers that serve the tag.
	Providers []string
}

// Text renders the action's message.
func (a *Action) Text(actor, target string) string {
	if target == "" {
		return strings.ReplaceAll(a.Alone, "{actor}", actor)
	}
	r := strings.NewReplacer("{actor}", actor, "{target}", target)
	return r.Replace(a.Verb)
}

var both = []string{NekosLife.Name, WaifuPics.Name}
var waifu = []string{WaifuPics.Name}
var nekos = []string{NekosLife.Name}

// Actions are the available reactions.
var Actions = []Action{
	{Name: "hug", Tag: "hug", Verb: "{actor} hugs {target}", Alone: "{actor} wants a hug", Providers: both},
	{Name: "pat", Tag: "pat", Verb: "{actor} pats {target}", Alone: "{actor} wants headpats", Providers: both},
	{Name: "kiss", Tag: "kiss", Verb: "{actor} kisses {target}", Alone: "{actor} blows a kiss", Providers: both},
	{Name: "slap", Tag: "slap", Verb: "{actor} slaps {target}", Alone: "{actor} slaps the air", Providers: both},
	{Name: "cuddle", Tag: "cuddle", Verb: "{actor} cuddles {target}", Alone: "{actor} wants cuddles", Providers: both},
	{Name: "poke", Tag: "poke", Verb: "{actor} pokes {target}", Alone: "{actor} pokes around", Providers: both},
	{Name: "smug", Tag: "smug", Verb: "{actor} is smug at {target}", Alone: "{actor} is smug", Providers: both},
	{Name: "tickle", Tag: "tickle", Verb: "{actor} tickles {target}", Alone: "{actor} is ticklish", Providers: nekos},
	{Name: "feed", Tag: "feed", Verb: "{actor} feeds {target}", Alone: "{actor} is hungry", Providers: nekos},
	{Name: "baka", Tag: "baka", Verb: "{actor} calls {target} a baka", Alone: "baka!", Providers: nekos},
	{Name: "bonk", Tag: "bonk", Verb: "{actor} bonks {target}", Alone: "{actor} bonks", Providers: waifu},
	{Name: "bite", Tag: "bite", Verb: "{actor} bites {target}", Alone: "{actor} bites", Providers: waifu},
	{Name: "cry", Tag: "cry", Verb: "{actor} cries because of {target}", Alone: "{actor} cries", Providers: waifu},
	{Name: "wave", Tag: "wave", Verb: "{actor} waves at {target}", Alone: "{actor} waves", Providers: waifu},
	{Name: "highfive", Tag: "highfive", Verb: "{actor} high-fives {target}", Alone: "{actor} wants a high five", Providers: waifu},
	{Name: "handhold", Tag: "handhold", Verb: "{actor} holds hands with {target}", Alone: "{actor} wants to hold hands", Providers: waifu},
	{Name: "nom", Tag: "nom", Verb: "{actor} noms {target}", Alone: "{actor} noms", Providers: waifu},
	{Name: "blush", Tag: "blush", Verb: "{actor} blushes at {target}", Alone: "{actor} blushes", Providers: waifu},
	{Name: "dance", Tag: "dance", Verb: "{actor} dances with {target}", Alone: "{actor} dances", Providers: waifu},
	{Name: "yeet", Tag: "yeet", Verb: "{actor} yeets {target}", Alone: "{actor} yeets", Providers: waifu},
}

// Lookup finds an action by name.
func Lookup(name string) (*Action, bool) {
	for i := range Actions {
		if Actions[i].Name == name {
			return &Actions[i], true
		}
	}
	return nil, false
}

// Fetcher retrieves reaction images.
type Fetcher struct {
	// HTTP is the client for requests. If nil, http.DefaultClient is used.
	HTTP *http.Client
	// Providers are the known providers by name.
	Providers map[string]Provider
	// rand produces values for weighted picks.
	rand func() uint32
}

// NewFetcher creates a fetcher over the given providers.
func NewFetcher(client *http.Client, providers ...Provider) *Fetcher {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name] = p
	}
	return &Fetcher{HTTP: client, Providers: m, rand: rand.Uint32}
}

// Fetch gets an image URL for an action and the name of the provider that
// served it. A provider is chosen by weight among those serving the tag, and
// the others are tried in turn if it fails.
func (f *Fetcher) Fetch(ctx context.Context, a *Action) (url, provider string, err error) {
	order := f.order(a)
	if len(order) == 0 {
		return "", "", fmt.Errorf("no provider serves %q", a.Tag)
	}
	var errs []error
	for _, p := range order {
		u, err := f.get(ctx, p, a.Tag)
		if err == nil {
			return u, p.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}
	return "", "", errors.Join(errs...)
}

// order returns the providers to try for an action, the weighted pick first.
func (f *Fetcher) order(a *Action) []Provider {
	var cases []pick.Case[Provider]
	for _, name := range a.Providers {
		p, ok := f.Providers[name]
		if !ok {
			continue
		}
		cases = append(cases, pick.Case[Provider]{E: p, W: max(p.Weight, 1)})
	}
	if len(cases) == 0 {
		return nil
	}
	first := pick.New(cases).Pick(f.rand())
	r := []Provider{first}
	for _, c := range cases {
		if c.E.Name != first.Name {
			r = append(r, c.E)
		}
	}
	return r
}

func (f *Fetcher) get(ctx context.Context, p Provider, tag string) (string, error) {
	u := strings.ReplaceAll(p.Endpoint, "{tag}", tag)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return "", fmt.Errorf("couldn't make request: %w", err)
	}
	hc := f.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("couldn't get image: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("couldn't read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request failed: %s", resp.Status)
	}
	var r struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return "", fmt.Errorf("couldn't decode response: %w", err)
	}
	if r.URL == "" {
		return "", errors.New("response has no image")
	}
	return r.URL, nil
}
