// Package agent provides the tagged enumeration of coding-agent harnesses
// and the capability set each one implements: building the CommandSpec to
// spawn it, building a follow-up invocation against an existing session,
// selecting its LogNormalizer, and locating its default MCP config. This
// replaces per-harness inheritance with a closed set of variants that
// delegate to harness-specific processors, per the system's dynamic
// dispatch design.
package agent

import (
	"fmt"

	"github.com/wardenhq/warden/backend/internal/norm"
	"github.com/wardenhq/warden/backend/internal/norm/claude"
	"github.com/wardenhq/warden/backend/internal/norm/codex"
	"github.com/wardenhq/warden/backend/internal/procexec"
)

// Harness identifies a supported coding-agent family.
type Harness string

const (
	HarnessClaude    Harness = "claude"
	HarnessCodex     Harness = "codex"
	HarnessPlaintext Harness = "plaintext"
)

// Options describes one invocation of a Backend: the prompt to run and the
// working copy it runs against.
type Options struct {
	// Prompt is the initial instruction for a fresh session, or the
	// follow-up message for SpawnFollowUp.
	Prompt string
	// WorktreePath is the working copy the agent operates on.
	WorktreePath string
	// SessionID, when set, resumes a prior session rather than starting a
	// new one (only meaningful to SpawnFollowUp).
	SessionID string
}

// Session is what a Backend returns after spawning: the command to run.
// The agent-reported session identifier used to resume it later via
// SpawnFollowUp is not held here; it arrives as a KindSessionID message on
// the execution's MsgStore.
type Session struct {
	Spec procexec.CommandSpec
}

// Backend is the capability set every harness variant implements. The
// orchestrator never branches on concrete harness type beyond selecting
// the right Backend; everything downstream (ExecutionTracker, workflow
// advancement) only depends on this interface.
type Backend interface {
	// Spawn builds the CommandSpec to start a brand-new session.
	Spawn(opts Options) (Session, error)

	// SpawnFollowUp builds the CommandSpec to continue an existing session
	// (opts.SessionID must be set).
	SpawnFollowUp(opts Options) (Session, error)

	// NormalizeLogs returns the LogNormalizer this harness's stdout stream
	// must be fed through.
	NormalizeLogs() norm.Normalizer

	// DefaultMCPConfigPath returns the path, relative to WorktreePath, this
	// harness reads its MCP server configuration from by default. Empty if
	// the harness has no such concept.
	DefaultMCPConfigPath() string

	// Harness returns the harness identifier.
	Harness() Harness
}

// ForHarness resolves the Backend implementation for h.
func ForHarness(h Harness) (Backend, error) {
	switch h {
	case HarnessClaude:
		return claudeBackend{}, nil
	case HarnessCodex:
		return codexBackend{}, nil
	case HarnessPlaintext:
		return plaintextBackend{}, nil
	default:
		return nil, fmt.Errorf("agent: unknown harness %q", h)
	}
}

type claudeBackend struct{}

func (claudeBackend) Spawn(opts Options) (Session, error) {
	return Session{Spec: procexec.CommandSpec{
		Program: "claude",
		Args:    []string{"--print", "--output-format", "stream-json", "--verbose", opts.Prompt},
		Dir:     opts.WorktreePath,
	}}, nil
}

func (claudeBackend) SpawnFollowUp(opts Options) (Session, error) {
	if opts.SessionID == "" {
		return Session{}, fmt.Errorf("agent: claude follow-up requires a session id")
	}
	return Session{Spec: procexec.CommandSpec{
		Program: "claude",
		Args:    []string{"--print", "--output-format", "stream-json", "--verbose", "--resume", opts.SessionID, opts.Prompt},
		Dir:     opts.WorktreePath,
	}}, nil
}

func (claudeBackend) NormalizeLogs() norm.Normalizer { return claude.Normalizer{} }
func (claudeBackend) DefaultMCPConfigPath() string   { return ".mcp.json" }
func (claudeBackend) Harness() Harness               { return HarnessClaude }

type codexBackend struct{}

func (codexBackend) Spawn(opts Options) (Session, error) {
	return Session{Spec: procexec.CommandSpec{
		Program: "codex",
		Args:    []string{"exec", "--json", opts.Prompt},
		Dir:     opts.WorktreePath,
	}}, nil
}

func (codexBackend) SpawnFollowUp(opts Options) (Session, error) {
	if opts.SessionID == "" {
		return Session{}, fmt.Errorf("agent: codex follow-up requires a session id")
	}
	return Session{Spec: procexec.CommandSpec{
		Program: "codex",
		Args:    []string{"exec", "--json", "resume", opts.SessionID, opts.Prompt},
		Dir:     opts.WorktreePath,
	}}, nil
}

func (codexBackend) NormalizeLogs() norm.Normalizer { return codex.Normalizer{} }
func (codexBackend) DefaultMCPConfigPath() string   { return ".codex/config.toml" }
func (codexBackend) Harness() Harness               { return HarnessCodex }

// plaintextBackend is used for any coding-agent CLI with no structured
// stdout wire format: every line of its output becomes a SystemMessage.
type plaintextBackend struct{}

func (plaintextBackend) Spawn(opts Options) (Session, error) {
	return Session{Spec: procexec.CommandSpec{
		Shell:   true,
		Program: opts.Prompt,
		Dir:     opts.WorktreePath,
	}}, nil
}

func (plaintextBackend) SpawnFollowUp(opts Options) (Session, error) {
	return plaintextBackend{}.Spawn(opts)
}

func (plaintextBackend) NormalizeLogs() norm.Normalizer { return norm.Plaintext{} }
func (plaintextBackend) DefaultMCPConfigPath() string   { return "" }
func (plaintextBackend) Harness() Harness               { return HarnessPlaintext }
