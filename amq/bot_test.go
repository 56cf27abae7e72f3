package amq

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/coder/websocket"
	"github.com/go-json-experiment/json"

	"github.com/nanachan-bot/nanachan/multiplex"
	"github.com/nanachan-bot/nanachan/nanapi"
)

type sent struct {
	channel string
	persona multiplex.Persona
	params  *discordgo.WebhookParams
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	ch   chan sent
}

func (f *fakeSender) SendTo(ctx context.Context, channelID string, p multiplex.Persona, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	s := sent{channelID, p, params}
	f.mu.Lock()
	f.sent = append(f.sent, s)
	f.mu.Unlock()
	if f.ch != nil {
		f.ch <- s
	}
	return &discordgo.Message{ID: "1"}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// amqServer fakes the sign in endpoints and a socket that runs script.
func amqServer(t *testing.T, script func(ctx context.Context, c *websocket.Conn)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /signIn", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.UnmarshalRead(r.Body, &body); err != nil || body.Username != "nanachan" || body.Password != "hunter2" {
			http.Error(w, "bad login", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
	})
	mux.HandleFunc("GET /socketToken", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"token":"tok","port":1234}`)
	})
	mux.HandleFunc("/socket.io/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "bad token", http.StatusForbidden)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		defer c.CloseNow()
		script(r.Context(), c)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testBot(t *testing.T, srv *httptest.Server, send Sender) *Bot {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := srv.Client()
	client.Jar = jar
	b := New(srv.URL, "nanachan", "hunter2", client, "bridge", send, discard())
	b.socketURL = func(token string, port int) string {
		return "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket.io/?token=" + token + "&EIO=4&transport=websocket"
	}
	return b
}

func expect(ctx context.Context, t *testing.T, c *websocket.Conn, want string) bool {
	t.Helper()
	_, b, err := c.Read(ctx)
	if err != nil {
		t.Errorf("read failed waiting for %q: %v", want, err)
		return false
	}
	if string(b) != want {
		t.Errorf("wrong packet: want %q, got %q", want, b)
		return false
	}
	return true
}

func TestLogin(t *testing.T) {
	srv := amqServer(t, func(ctx context.Context, c *websocket.Conn) {})
	b := testBot(t, srv, &fakeSender{})
	u, err := b.login(context.Background())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !strings.Contains(u, "token=tok") {
		t.Errorf("socket URL missing token: %s", u)
	}
	b.Password = "wrong"
	if _, err := b.login(context.Background()); err == nil {
		t.Error("login with wrong password succeeded")
	}
}

func TestSession(t *testing.T) {
	said := make(chan Packet, 1)
	srv := amqServer(t, func(ctx context.Context, c *websocket.Conn) {
		w := func(s string) {
			if err := c.Write(ctx, websocket.MessageText, []byte(s)); err != nil {
				t.Errorf("write %q failed: %v", s, err)
			}
		}
		w(`0{"sid":"abc","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`)
		if !expect(ctx, t, c, "40") {
			return
		}
		w(`40{"sid":"xyz"}`)
		w(`2`)
		if !expect(ctx, t, c, "3") {
			return
		}
		w(`42["command",{"command":"login complete","data":{"self":"nanachan"}}]`)
		w(`42["command",{"command":"game chat update","data":{"messages":[{"sender":"nanachan","message":"echo"},{"sender":"kita","message":"hi"}]}}]`)
		_, b, err := c.Read(ctx)
		if err != nil {
			t.Errorf("read failed: %v", err)
			return
		}
		p, err := Decode(b)
		if err != nil {
			t.Errorf("bad packet %q: %v", b, err)
			return
		}
		said <- p
		w(`41`)
	})
	send := &fakeSender{ch: make(chan sent, 4)}
	b := testBot(t, srv, send)
	b.Accounts = func(ctx context.Context) ([]nanapi.AMQAccount, error) {
		return []nanapi.AMQAccount{{DiscordID: "42", Username: "Kita"}}, nil
	}
	b.Persona = func(ctx context.Context, id string) (multiplex.Persona, error) {
		return multiplex.Persona{Name: "Kita Ikuyo", AvatarURL: "https://cdn/kita.png"}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.session(ctx) }()

	var s sent
	select {
	case s = <-send.ch:
	case <-ctx.Done():
		t.Fatal("no chat forwarded")
	}
	if s.channel != "bridge" || s.params.Content != "hi" {
		t.Errorf("wrong forward: %+v %+v", s, s.params)
	}
	if s.persona.Name != "Kita Ikuyo (AMQ)" || s.persona.AvatarURL != "https://cdn/kita.png" {
		t.Errorf("linked persona not used: %+v", s.persona)
	}
	if !b.Connected() {
		t.Error("bot not connected during session")
	}
	if err := b.Relay(ctx, "Ryo", "  play the next one "); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	var p Packet
	select {
	case p = <-said:
	case <-ctx.Done():
		t.Fatal("no chat received")
	}
	if p.Event != "command" || len(p.Args) != 1 {
		t.Fatalf("wrong packet: %+v", p)
	}
	var cmd struct {
		Type    string `json:"type"`
		Command string `json:"command"`
		Data    struct {
			Msg string `json:"msg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(p.Args[0], &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Type != "lobby" || cmd.Command != "game chat message" || cmd.Data.Msg != "[Ryo] play the next one" {
		t.Errorf("wrong chat command: %+v", cmd)
	}
	select {
	case err := <-done:
		if err != ErrDisconnected {
			t.Errorf("wrong session end: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("session didn't end")
	}
	if b.Connected() {
		t.Error("bot still connected after session")
	}
	if err := b.Say(ctx, "hello"); err != ErrNotConnected {
		t.Errorf("say while disconnected: want ErrNotConnected, got %v", err)
	}
	send.mu.Lock()
	defer send.mu.Unlock()
	if len(send.sent) != 1 {
		t.Errorf("own messages forwarded: %+v", send.sent)
	}
}

func TestAnswerResults(t *testing.T) {
	send := &fakeSender{}
	b := New("https://example.invalid", "", "", http.DefaultClient, "bridge", send, discard())
	data := `{"songInfo":{"animeNames":{"english":"Bocchi the Rock!","romaji":"Bocchi za Rokku!"},"songName":"Seishun Complex","artist":"Kessoku Band","type":1,"typeNumber":1},"players":[{"gamePlayerId":1,"correct":true},{"gamePlayerId":2,"correct":false}]}`
	b.Dispatcher().Dispatch(context.Background(), "answer results", []byte(data))
	if len(send.sent) != 1 {
		t.Fatalf("wrong number of notices: %d", len(send.sent))
	}
	e := send.sent[0].params.Embeds[0]
	if e.Title != "Bocchi the Rock!" {
		t.Errorf("wrong title %q", e.Title)
	}
	if e.Footer.Text != "OP1 · 1/2 correct" {
		t.Errorf("wrong footer %q", e.Footer.Text)
	}
	if len(e.Fields) != 1 || e.Fields[0].Value != "Bocchi za Rokku!" {
		t.Errorf("wrong fields %+v", e.Fields)
	}
}

func TestAnswerResultsSameTitle(t *testing.T) {
	send := &fakeSender{}
	b := New("https://example.invalid", "", "", http.DefaultClient, "bridge", send, discard())
	data := `{"songInfo":{"animeNames":{"english":"Pokemon","romaji":"Pokémon"},"songName":"Mezase Pokemon Master","artist":"Rica Matsumoto","type":1,"typeNumber":1},"players":[]}`
	b.Dispatcher().Dispatch(context.Background(), "answer results", []byte(data))
	if len(send.sent) != 1 {
		t.Fatalf("wrong number of notices: %d", len(send.sent))
	}
	if f := send.sent[0].params.Embeds[0].Fields; len(f) != 0 {
		t.Errorf("repeated equivalent title: %+v", f)
	}
}

func TestInviteIgnoresStrangers(t *testing.T) {
	send := &fakeSender{}
	b := New("https://example.invalid", "", "", http.DefaultClient, "bridge", send, discard())
	b.Dispatcher().Dispatch(context.Background(), "Join Game Invite", []byte(`{"sender":"stranger","gameId":7}`))
	if len(send.sent) != 0 {
		t.Errorf("stranger invite produced notices: %+v", send.sent)
	}
}
