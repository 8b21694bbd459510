package evaluation

import (
	"strings"
	"testing"
)

func TestParseShowDecision(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantShow bool
		wantOK   bool
	}{
		{name: "strict true", response: `{"show": true}`, wantShow: true, wantOK: true},
		{name: "strict false", response: `{"show":false}`, wantShow: false, wantOK: true},
		{name: "wrapped in prose", response: "Sure! Here is my answer:\n```json\n{\"show\": false}\n```", wantShow: false, wantOK: true},
		{name: "last key wins", response: `{"show": true} wait, actually {"show": false}`, wantShow: false, wantOK: true},
		{name: "whitespace around colon", response: "{\"show\"  :\n  true }", wantShow: true, wantOK: true},
		{name: "trailing punctuation", response: `"show": true.`, wantShow: true, wantOK: true},
		{name: "truex rejected", response: `{"show": truex}`, wantOK: false},
		{name: "false_value rejected", response: `{"show": false_value}`, wantOK: false},
		{name: "quoted boolean rejected", response: `{"show": "true"}`, wantOK: false},
		{name: "missing colon", response: `{"show" true}`, wantOK: false},
		{name: "no key", response: `I think you would like this post.`, wantOK: false},
		{name: "empty", response: ``, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			show, ok := ParseShowDecision(tt.response)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && show != tt.wantShow {
				t.Errorf("show = %v, want %v", show, tt.wantShow)
			}
		})
	}
}

func TestTextPrompt(t *testing.T) {
	p := TextPrompt("  technical content ", "buy crypto now")
	if !strings.Contains(p, `"technical content"`) {
		t.Errorf("prompt does not embed trimmed criteria:\n%s", p)
	}
	if !strings.Contains(p, "buy crypto now") {
		t.Errorf("prompt does not embed candidate:\n%s", p)
	}
	if !strings.Contains(p, `{"show": true}`) {
		t.Errorf("prompt does not ask for strict JSON:\n%s", p)
	}
}

func TestQuoteStage(t *testing.T) {
	tests := []struct {
		name string
		sec  *Secondary
		want string
	}{
		{name: "nil", sec: nil, want: ""},
		{name: "blank text", sec: &Secondary{Text: "  ", Author: "bob"}, want: ""},
		{name: "with author", sec: &Secondary{Text: "hello", Author: "bob"}, want: "[Quoting @bob: hello]"},
		{name: "author already prefixed", sec: &Secondary{Text: "hello", Author: "@bob"}, want: "[Quoting @bob: hello]"},
		{name: "anonymous", sec: &Secondary{Text: "hello"}, want: "[Quoting someone: hello]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quoteStage(tt.sec); got != tt.want {
				t.Errorf("quoteStage() = %q, want %q", got, tt.want)
			}
		})
	}
}
