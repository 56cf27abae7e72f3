package command

import (
	"context"
	"slices"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestPath(t *testing.T) {
	cases := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		path string
		opts []string
	}{
		{
			name: "plain",
			data: discordgo.ApplicationCommandInteractionData{Name: "anime", Options: []*discordgo.ApplicationCommandInteractionDataOption{str("search", "bocchi")}},
			path: "anime",
			opts: []string{"search"},
		},
		{
			name: "sub",
			data: discordgo.ApplicationCommandInteractionData{Name: "waicolle", Options: []*discordgo.ApplicationCommandInteractionDataOption{sub("roll", str("roll", "r1"))}},
			path: "waicolle roll",
			opts: []string{"roll"},
		},
		{
			name: "group",
			data: discordgo.ApplicationCommandInteractionData{Name: "amq", Options: []*discordgo.ApplicationCommandInteractionDataOption{group("settings", sub("set", str("key", "k"), str("value", "v")))}},
			path: "amq settings set",
			opts: []string{"key", "value"},
		},
		{
			name: "none",
			data: discordgo.ApplicationCommandInteractionData{Name: "ping"},
			path: "ping",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path, opts := Path(&c.data)
			if path != c.path {
				t.Errorf("wrong path: want %q, got %q", c.path, path)
			}
			var names []string
			for _, o := range opts {
				names = append(names, o.Name)
			}
			if !slices.Equal(names, c.opts) {
				t.Errorf("wrong options: want %q, got %q", c.opts, names)
			}
		})
	}
}

func testRegistry(cmds ...*Command) *Registry {
	r := NewRegistry(&Robot{Log: discard()})
	r.Add(cmds...)
	return r
}

func TestHandleRoutes(t *testing.T) {
	var got []string
	r := testRegistry(&Command{
		Def: &discordgo.ApplicationCommand{Name: "test"},
		Subs: map[string]Func{
			"a": func(ctx context.Context, robo *Robot, call *Invocation) error {
				got = append(got, "a "+call.String("x")+" "+call.User.ID)
				return call.Resp.ReplyText(ctx, "ok")
			},
			"g b": func(ctx context.Context, robo *Robot, call *Invocation) error {
				n, _ := call.Int("n")
				got = append(got, "g b", call.Path)
				if n != 3 {
					t.Errorf("wrong int option %d", n)
				}
				return nil
			},
		},
		Components: map[string]Component{
			"btn": func(ctx context.Context, robo *Robot, call *Invocation, payload string) error {
				got = append(got, "btn "+payload)
				return nil
			},
		},
	})
	s := &fakeSession{}
	ctx := context.Background()
	r.Handle(ctx, s, slash("bocchi", "test", sub("a", str("x", "y"))))
	r.Handle(ctx, s, slash("bocchi", "test", group("g", sub("b", integer("n", 3)))))
	r.Handle(ctx, s, button("ryo", "btn:one:two"))
	r.Handle(ctx, s, slash("bocchi", "nope"))
	r.Handle(ctx, s, button("ryo", "nope:x"))
	want := []string{"a y bocchi", "g b", "test g b", "btn one:two"}
	if !slices.Equal(got, want) {
		t.Errorf("wrong calls: want %q, got %q", want, got)
	}
	if k := s.kinds(); !slices.Equal(k, []string{"respond"}) {
		t.Errorf("wrong responses: %q", k)
	}
}

func TestHandleFailures(t *testing.T) {
	cases := []struct {
		name string
		f    Func
		want string
	}{
		{
			name: "error",
			f:    func(ctx context.Context, robo *Robot, call *Invocation) error { return errBoom },
			want: "Something went wrong. Sorry!",
		},
		{
			name: "refusal",
			f:    func(ctx context.Context, robo *Robot, call *Invocation) error { return Failf("no %s", "way") },
			want: "no way",
		},
		{
			name: "wrapped",
			f:    func(ctx context.Context, robo *Robot, call *Invocation) error { return Fail(errBoom, "try later") },
			want: "try later",
		},
		{
			name: "panic",
			f:    func(ctx context.Context, robo *Robot, call *Invocation) error { panic("oh no") },
			want: "Something went wrong. Sorry!",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := testRegistry(&Command{Def: &discordgo.ApplicationCommand{Name: "x"}, Func: c.f})
			s := &fakeSession{}
			r.Handle(context.Background(), s, slash("kita", "x"))
			msg, flags := s.last()
			if msg != c.want {
				t.Errorf("wrong message: want %q, got %q", c.want, msg)
			}
			if flags&discordgo.MessageFlagsEphemeral == 0 {
				t.Errorf("failure wasn't ephemeral")
			}
		})
	}
}

func TestFailureAfterDefer(t *testing.T) {
	r := testRegistry(&Command{
		Def: &discordgo.ApplicationCommand{Name: "x"},
		Func: func(ctx context.Context, robo *Robot, call *Invocation) error {
			if err := call.Resp.Defer(ctx, false); err != nil {
				return err
			}
			return errBoom
		},
	})
	s := &fakeSession{}
	r.Handle(context.Background(), s, slash("kita", "x"))
	if k := s.kinds(); !slices.Equal(k, []string{"respond", "edit"}) {
		t.Errorf("wrong responses: %q", k)
	}
}

func TestAddDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate command didn't panic")
		}
	}()
	f := func(ctx context.Context, robo *Robot, call *Invocation) error { return nil }
	testRegistry(
		&Command{Def: &discordgo.ApplicationCommand{Name: "x"}, Func: f},
		&Command{Def: &discordgo.ApplicationCommand{Name: "x"}, Func: f},
	)
}

func TestResponderSequence(t *testing.T) {
	s := &fakeSession{}
	i := slash("nijika", "x")
	r := NewResponder(s, i)
	ctx := context.Background()
	if r.Responded() {
		t.Error("new responder already responded")
	}
	if err := r.Defer(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := r.Defer(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := r.ReplyText(ctx, "one"); err != nil {
		t.Fatal(err)
	}
	if err := r.ReplyText(ctx, "two"); err != nil {
		t.Fatal(err)
	}
	want := []string{"respond", "edit", "followup"}
	if k := s.kinds(); !slices.Equal(k, want) {
		t.Errorf("wrong responses: want %q, got %q", want, k)
	}
	if s.got[0].typ != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("wrong defer type %v", s.got[0].typ)
	}
	if s.got[0].data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("ephemeral defer lost its flag")
	}
}

func TestResponderComponentDefer(t *testing.T) {
	s := &fakeSession{}
	r := NewResponder(s, button("nijika", "x:y"))
	if err := r.Defer(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if s.got[0].typ != discordgo.InteractionResponseDeferredMessageUpdate {
		t.Errorf("wrong defer type %v", s.got[0].typ)
	}
}
