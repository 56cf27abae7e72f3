package command

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nanachan-bot/nanachan/reaction"
)

func TestReact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"url":"https://img.example/`+r.URL.Path[len("/img/"):]+`.gif"}`)
	}))
	defer srv.Close()
	p := reaction.Provider{Name: "test", Endpoint: srv.URL + "/img/{tag}", Weight: 1}
	f := reaction.NewFetcher(srv.Client(), p)
	for i := range reaction.Actions {
		if reaction.Actions[i].Name == "hug" {
			defer func(old []string) { reaction.Actions[i].Providers = old }(reaction.Actions[i].Providers)
			reaction.Actions[i].Providers = []string{"test"}
		}
	}
	r := NewRegistry(&Robot{Log: discard(), Reactions: f})
	r.Add(ReactionCommands()...)
	s := &fakeSession{}
	r.Handle(context.Background(), s, slash("bocchi", "hug", userOpt("target", "kita")))
	if len(s.got) != 2 {
		t.Fatalf("wrong responses: %q", s.kinds())
	}
	e := s.got[1].edit
	if *e.Content != "<@bocchi> hugs <@kita>" {
		t.Errorf("wrong text %q", *e.Content)
	}
	if img := (*e.Embeds)[0].Image.URL; img != "https://img.example/hug.gif" {
		t.Errorf("wrong image %q", img)
	}
	if u := e.AllowedMentions.Users; len(u) != 1 || u[0] != "kita" {
		t.Errorf("wrong mentions %q", u)
	}
}
