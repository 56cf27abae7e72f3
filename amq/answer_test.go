package amq

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Bocchi the Rock!", "bocchi the rock"},
		{"Pokémon", "pokemon"},
		{"  Re:Zero  kara  ", "re zero kara"},
		{"ＳＰＹ×ＦＡＭＩＬＹ", "spy family"},
		{"ぼっち・ざ・ろっく！", "ぼっち ざ ろっく"},
		{"!!!", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q): want %q, got %q", c.in, c.want, got)
		}
	}
}

func TestMatch(t *testing.T) {
	if !Match("pokemon", "Pokémon", "Pocket Monsters") {
		t.Error("diacritics not folded")
	}
	if Match("pokemon", "Digimon") {
		t.Error("wrong match")
	}
	if Match("", "") {
		t.Error("empty answer matched")
	}
}
