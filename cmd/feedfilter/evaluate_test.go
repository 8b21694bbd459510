package main

import (
	"testing"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
)

func TestMedia(t *testing.T) {
	if got := media(nil); got != nil {
		t.Errorf("media(nil) = %v, want nil", got)
	}

	got := media([]string{"https://img/a.png", "https://img/b.png"})
	if len(got) != 2 {
		t.Fatalf("media() len = %d, want 2", len(got))
	}
	for i, m := range got {
		if m.Type != domain.MediaTypeImage {
			t.Errorf("media()[%d].Type = %q", i, m.Type)
		}
	}
	if got[1].URL != "https://img/b.png" {
		t.Errorf("media()[1].URL = %q", got[1].URL)
	}
}

func TestRootCommands(t *testing.T) {
	want := map[string]bool{"serve": false, "evaluate": false, "check": false, "status": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
