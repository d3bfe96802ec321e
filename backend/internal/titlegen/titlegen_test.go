package titlegen

import (
	"context"
	"testing"

	"github.com/wardenhq/warden/backend/internal/norm"
)

func TestUnconfiguredGeneratorIsANoOp(t *testing.T) {
	g := New(context.Background(), "", "")
	title := g.Generate(context.Background(), "fix the bug", []norm.Entry{norm.AssistantMessage("done")})
	if title != "" {
		t.Fatalf("expected empty title from unconfigured generator, got %q", title)
	}
}

func TestUnknownProviderFallsBackToNoOp(t *testing.T) {
	g := New(context.Background(), "not-a-real-provider", "")
	title := g.Generate(context.Background(), "fix the bug", nil)
	if title != "" {
		t.Fatalf("expected empty title from unknown provider, got %q", title)
	}
}

func TestZeroValueGeneratorIsANoOp(t *testing.T) {
	var g Generator
	if got := g.Generate(context.Background(), "anything", nil); got != "" {
		t.Fatalf("expected empty title from zero-value Generator, got %q", got)
	}
}
