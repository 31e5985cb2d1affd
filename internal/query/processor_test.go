package query

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Vacation Policy  ", "vacation policy"},
		{"WHAT\tis   the\n  POLICY", "what is the policy"},
		{"already normal", "already normal"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpansion_Variants(t *testing.T) {
	exp := Expansion{Alternatives: []string{"Time Off Rules", "vacation policy", "leave policy"}}
	variants := exp.Variants("vacation policy")

	want := []string{"vacation policy", "time off rules", "leave policy"}
	if len(variants) != len(want) {
		t.Fatalf("Variants = %v, want %v", variants, want)
	}
	for i := range want {
		if variants[i] != want[i] {
			t.Errorf("variants[%d] = %q, want %q", i, variants[i], want[i])
		}
	}
}

func TestExpansion_VariantsZeroValue(t *testing.T) {
	variants := Expansion{}.Variants("some query")
	if len(variants) != 1 || variants[0] != "some query" {
		t.Errorf("Variants on zero expansion = %v, want [some query]", variants)
	}
}

type mockChatter struct {
	chatFn func(ctx context.Context, prompt string, schema any) (string, error)
}

func (m *mockChatter) ChatJSON(ctx context.Context, prompt string, schema any) (string, error) {
	return m.chatFn(ctx, prompt, schema)
}

func TestExpand_ParsesOutput(t *testing.T) {
	chatter := &mockChatter{chatFn: func(ctx context.Context, prompt string, schema any) (string, error) {
		return `{"alternatives":["time off rules","leave policy"],"terms":["pto","holidays"],"category":"hr"}`, nil
	}}
	e := NewExpander(chatter, time.Second, 2, 2, nil)

	exp := e.Expand(context.Background(), "vacation policy")
	if len(exp.Alternatives) != 2 {
		t.Errorf("Alternatives = %v, want 2 entries", exp.Alternatives)
	}
	if len(exp.Terms) != 2 {
		t.Errorf("Terms = %v, want 2 entries", exp.Terms)
	}
	if exp.Category != "hr" {
		t.Errorf("Category = %q, want %q", exp.Category, "hr")
	}
}

func TestExpand_UpstreamErrorFallsBack(t *testing.T) {
	chatter := &mockChatter{chatFn: func(ctx context.Context, prompt string, schema any) (string, error) {
		return "", errors.New("model unavailable")
	}}
	e := NewExpander(chatter, time.Second, 2, 2, nil)

	exp := e.Expand(context.Background(), "query")
	if exp.Alternatives != nil || exp.Terms != nil || exp.Category != "" {
		t.Errorf("Expand on error = %+v, want zero expansion", exp)
	}
}

func TestExpand_MalformedOutputFallsBack(t *testing.T) {
	chatter := &mockChatter{chatFn: func(ctx context.Context, prompt string, schema any) (string, error) {
		return "not json at all", nil
	}}
	e := NewExpander(chatter, time.Second, 2, 2, nil)

	exp := e.Expand(context.Background(), "query")
	if exp.Alternatives != nil || exp.Terms != nil {
		t.Errorf("Expand on malformed output = %+v, want zero expansion", exp)
	}
}

func TestExpand_CapsAndDeduplicates(t *testing.T) {
	chatter := &mockChatter{chatFn: func(ctx context.Context, prompt string, schema any) (string, error) {
		return `{"alternatives":["one","One","two","three","four"],"terms":["a","","a","b"],"category":" hr "}`, nil
	}}
	e := NewExpander(chatter, time.Second, 2, 2, nil)

	exp := e.Expand(context.Background(), "query")
	if len(exp.Alternatives) != 2 {
		t.Errorf("Alternatives = %v, want capped at 2", exp.Alternatives)
	}
	if len(exp.Terms) != 2 || exp.Terms[0] != "a" || exp.Terms[1] != "b" {
		t.Errorf("Terms = %v, want [a b]", exp.Terms)
	}
	if exp.Category != "hr" {
		t.Errorf("Category = %q, want trimmed %q", exp.Category, "hr")
	}
}

func TestExpand_TimeoutApplied(t *testing.T) {
	chatter := &mockChatter{chatFn: func(ctx context.Context, prompt string, schema any) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	e := NewExpander(chatter, 20*time.Millisecond, 2, 2, nil)

	start := time.Now()
	exp := e.Expand(context.Background(), "query")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expand took %v, want bounded by timeout", elapsed)
	}
	if exp.Alternatives != nil {
		t.Errorf("Expand on timeout = %+v, want zero expansion", exp)
	}
}
