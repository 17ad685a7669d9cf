package ebookbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`, false},
		{"fenced json", "```json\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"prose around", "Here you go:\n{\"a\": {\"b\": 2}}\nThanks", `{"a": {"b": 2}}`, false},
		{"no object", "I cannot help with that.", "", true},
		{"reversed braces", "} nothing {", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrSchema) {
					t.Errorf("extractJSONObject() error = %v, want ErrSchema", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSONObject() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("extractJSONObject() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAgentInvoke(t *testing.T) {
	client := newScriptedClient().on("sys", reply("```json\n{\"name\": \"ok\"}\n```"))
	agent := NewAgent("test", "sys", client, nil)

	var out struct {
		Name string `json:"name"`
	}
	if err := agent.Invoke(context.Background(), "hello", &out); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out.Name != "ok" {
		t.Errorf("Name = %q, want ok", out.Name)
	}
}

func TestAgentInvokeKeepsErrorClass(t *testing.T) {
	tests := []struct {
		name  string
		reply func(int) (string, error)
		want  error
	}{
		{"malformed json", reply(`{"name": }`), ErrSchema},
		{"no json", reply("sorry"), ErrSchema},
		{"transient", func(int) (string, error) {
			return "", fmt.Errorf("%w: overloaded", ErrTransient)
		}, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := NewAgent("test", "sys", newScriptedClient().on("sys", tt.reply), nil)
			var out map[string]interface{}
			err := agent.Invoke(context.Background(), "hello", &out)
			if !errors.Is(err, tt.want) {
				t.Errorf("Invoke() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"aéb", 3, "aé"},
		{"日本語", 4, "日"},
		{"é", 1, ""},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}

	long := "a" + strings.Repeat("é", 400)
	got := truncate(long, 600)
	if !utf8.ValidString(got) || len(got) > 600 {
		t.Errorf("truncate() gave %d bytes, valid utf8 %v", len(got), utf8.ValidString(got))
	}
}
