package recovery_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/spec-kit/ticket-triage/internal/recovery"
)

func TestRecoverValidJSONMatchesStandardParse(t *testing.T) {
	inputs := []string{
		`{"summary":"x","priority":"high","relatedSkills":["Go","SQL"]}`,
		`{"nested":{"braces":"} in {a} string"},"n":1.5,"ok":true,"none":null}`,
		`[1,2,3]`,
		`"just a string"`,
	}
	engine := recovery.New(nil)
	for _, in := range inputs {
		var want any
		if err := json.Unmarshal([]byte(in), &want); err != nil {
			t.Fatalf("bad fixture %q: %v", in, err)
		}
		got, err := engine.Recover(in)
		if err != nil {
			t.Fatalf("recover %q: %v", in, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("recover %q = %#v, want %#v", in, got, want)
		}
	}
}

func TestRecoverFencedJSON(t *testing.T) {
	payload := `{"summary":"Login broken","helpfulNotes":"see {docs}","relatedSkills":["Auth"]}`
	var want any
	if err := json.Unmarshal([]byte(payload), &want); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	for _, raw := range []string{
		"```json\n" + payload + "\n```",
		"```\n" + payload + "\n```",
		"Here you go:\n```JSON\n" + payload + "\n```\nLet me know!",
	} {
		got, err := recovery.New(nil).Recover(raw)
		if err != nil {
			t.Fatalf("recover %q: %v", raw, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("recover %q = %#v", raw, got)
		}
	}
}

func TestRecoverRepairsCommonDefects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "bare keys",
			raw:  `{summary: "x", priority: "high"}`,
			want: map[string]any{"summary": "x", "priority": "high"},
		},
		{
			name: "single quotes and trailing comma",
			raw:  `{'summary':'x','priority':'high',}`,
			want: map[string]any{"summary": "x", "priority": "high"},
		},
		{
			name: "prose around object",
			raw:  `Sure! Here is the result: {"summary": "x"} Hope that helps.`,
			want: map[string]any{"summary": "x"},
		},
		{
			name: "fenced with trailing comma in array",
			raw:  "```json\n{\"relatedSkills\": [\"Go\", \"SQL\",],}\n```",
			want: map[string]any{"relatedSkills": []any{"Go", "SQL"}},
		},
		{
			name: "apostrophe inside double quoted value",
			raw:  `{summary: "it's broken", 'priority': 'low'}`,
			want: map[string]any{"summary": "it's broken", "priority": "low"},
		},
		{
			name: "escaped apostrophe in single quoted value",
			raw:  `{'summary': 'can\'t log in'}`,
			want: map[string]any{"summary": "can't log in"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := recovery.New(nil).Recover(tc.raw)
			if err != nil {
				t.Fatalf("recover: %v", err)
			}
			if !reflect.DeepEqual(got, any(tc.want)) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestRecoverFailureCarriesPrefix(t *testing.T) {
	raw := "I am sorry, I cannot classify this ticket."
	_, err := recovery.New(nil).Recover(raw)
	var recErr *recovery.Error
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *recovery.Error, got %v", err)
	}
	if recErr.Received != raw {
		t.Fatalf("received = %q", recErr.Received)
	}
	if len(recErr.Attempts) == 0 {
		t.Fatalf("expected recorded attempts")
	}
	if !strings.HasPrefix(err.Error(), "unable to parse AI response as JSON. Received: I am sorry") {
		t.Fatalf("unexpected message %q", err.Error())
	}

	long := strings.Repeat("é", 350)
	_, err = recovery.New(nil).Recover(long)
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *recovery.Error, got %v", err)
	}
	if n := utf8.RuneCountInString(recErr.Received); n != recovery.ReceivedPrefixLen {
		t.Fatalf("received has %d runes, want %d", n, recovery.ReceivedPrefixLen)
	}
}

func TestRecoverStopsAtFirstParsingStage(t *testing.T) {
	called := false
	engine := recovery.New(nil,
		recovery.Stage{Name: "direct", Rewrite: func(s string) string { return s }},
		recovery.Stage{Name: "spy", Rewrite: func(s string) string { called = true; return s }},
	)
	if _, err := engine.Recover(`{"a":1}`); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if called {
		t.Fatalf("later stage ran after a successful parse")
	}
}

func TestDecodeIntoStruct(t *testing.T) {
	var out struct {
		Summary  string   `json:"summary"`
		Priority string   `json:"priority"`
		Skills   []string `json:"relatedSkills"`
	}
	raw := "```json\n{summary: 'Checkout fails', priority: 'high', relatedSkills: ['Payments',],}\n```"
	if err := recovery.New(nil).Decode(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Summary != "Checkout fails" || out.Priority != "high" || !reflect.DeepEqual(out.Skills, []string{"Payments"}) {
		t.Fatalf("unexpected %+v", out)
	}
}

func TestUnescapeArtifacts(t *testing.T) {
	doubly := `{\"summary\": \"line one\nline two\"}`
	if got := recovery.UnescapeArtifacts(doubly); got != "{\"summary\": \"line one\nline two\"}" {
		t.Fatalf("doubly escaped payload not unescaped: %q", got)
	}
	mixed := `{"summary": "say \"hi\"\n"}`
	if got := recovery.UnescapeArtifacts(mixed); got != mixed {
		t.Fatalf("escapes inside normal JSON must stay, got %q", got)
	}
	if got := recovery.UnescapeArtifacts(`{"a": "can\'t"}`); got != `{"a": "can't"}` {
		t.Fatalf("got %q", got)
	}
}

func TestQuoteBareKeysLeavesStringsAlone(t *testing.T) {
	in := `{a: "x, b: y", c_1 : [true, false], "d": {e: 1}}`
	want := `{"a": "x, b: y", "c_1" : [true, false], "d": {"e": 1}}`
	if got := recovery.QuoteBareKeys(in); got != want {
		t.Fatalf("got %s\nwant %s", got, want)
	}
}
