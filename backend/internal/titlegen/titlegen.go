// Package titlegen produces a short, human-readable task title from a
// normalized conversation using a cheap LLM call. It is entirely optional:
// an unconfigured Generator is a no-op that always returns "".
package titlegen

import (
	"context"
	"log/slog"
	"strings"

	"github.com/maruel/genai"
	"github.com/maruel/genai/providers"

	"github.com/wardenhq/warden/backend/internal/norm"
)

// Generator generates short task titles from conversation content. The
// zero value is a valid no-op generator.
type Generator struct {
	provider genai.Provider
}

// New creates a Generator from provider/model config strings. Returns a
// no-op generator if providerName is empty or initialization fails, so
// callers never need to nil-check before using it.
func New(ctx context.Context, providerName, model string) *Generator {
	if providerName == "" {
		return &Generator{}
	}
	cfg, ok := providers.All[providerName]
	if !ok || cfg.Factory == nil {
		slog.Warn("titlegen: unknown LLM provider", "provider", providerName)
		return &Generator{}
	}
	var opts []genai.ProviderOption
	if model != "" {
		opts = append(opts, genai.ProviderOptionModel(model))
	} else {
		opts = append(opts, genai.ModelCheap)
	}
	p, err := cfg.Factory(ctx, opts...)
	if err != nil {
		slog.Warn("titlegen: failed to create LLM provider", "provider", providerName, "err", err)
		return &Generator{}
	}
	slog.Info("titlegen: enabled", "provider", providerName, "model", p.ModelID())
	return &Generator{provider: p}
}

const systemPrompt = "Summarize this coding task conversation in 3-8 words as a short title. Reply with ONLY the title, no quotes."

// Generate asks the LLM for a short title summarizing initialPrompt plus
// the assistant's own messages across entries. Returns "" if the
// Generator is unconfigured or the call fails; callers should keep
// whatever title (or none) the task already has in that case.
func (g *Generator) Generate(ctx context.Context, initialPrompt string, entries []norm.Entry) string {
	if g.provider == nil {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		if e.Kind != norm.KindAssistantMessage || e.Content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Assistant: ")
		b.WriteString(e.Content)
	}

	input := "Prompt: " + initialPrompt
	if b.Len() > 0 {
		input += "\n" + b.String()
	}
	// Truncate to keep the call cheap; a title doesn't need the full log.
	if len(input) > 2000 {
		input = input[:2000]
	}

	res, err := g.provider.GenSync(ctx,
		genai.Messages{genai.NewTextMessage(input)},
		&genai.GenOptionText{
			SystemPrompt: systemPrompt,
			MaxTokens:    64,
			Temperature:  0.3,
		},
	)
	if err != nil {
		slog.Warn("titlegen: LLM call failed", "err", err)
		return ""
	}
	title := strings.TrimSpace(res.String())
	title = strings.Trim(title, "\"'`")
	return title
}
