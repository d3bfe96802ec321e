// Package config loads the daemon's environment-derived configuration and
// the YAML workflow-graph definition it hot-reloads on change.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the daemon's env-derived configuration. Every field has a
// sensible default so a bare `wardend run` works against a throwaway
// sqlite file with no RemoteSync configured.
type Config struct {
	// DatabaseURL is the sqlite DSN backing the Store.
	DatabaseURL string
	// WorkflowConfigPath points at the YAML workflow-graph definition,
	// hot-reloaded via fsnotify.
	WorkflowConfigPath string

	// WorktreeRoot is the directory per-attempt git worktrees are created
	// under.
	WorktreeRoot string
	// BranchPrefix names attempt branches "<prefix><seq>".
	BranchPrefix string

	// TitleProvider/TitleModel configure the optional task-title
	// generator; an empty TitleProvider disables it.
	TitleProvider string
	TitleModel    string

	// RemoteSync. SharedAPIBase/SharedWSURL/SharedOrganizationID all
	// being non-empty enables the client.
	SharedAPIBase        string
	SharedWSURL          string
	SharedOrganizationID string
	SharedMemberID       string

	// Git-scan bounds, used by callers that walk the filesystem for
	// candidate repositories.
	GitScanTimeout     time.Duration
	GitScanHardTimeout time.Duration
	GitScanMaxDepth    int
}

// Load reads Config from the process environment, applying defaults for
// anything unset.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:        envOr("VK_DATABASE_URL", "wardend.sqlite"),
		WorkflowConfigPath: os.Getenv("VK_WORKFLOW_CONFIG"),
		WorktreeRoot:       envOr("VK_WORKTREE_ROOT", ".wardend/worktrees"),
		BranchPrefix:       envOr("VK_BRANCH_PREFIX", "warden/w"),
		TitleProvider:      os.Getenv("VK_TITLE_PROVIDER"),
		TitleModel:         os.Getenv("VK_TITLE_MODEL"),

		SharedAPIBase:        os.Getenv("VK_SHARED_API_BASE"),
		SharedWSURL:          os.Getenv("VK_SHARED_WS_URL"),
		SharedOrganizationID: os.Getenv("VK_SHARED_ORGANIZATION_ID"),
		SharedMemberID:       os.Getenv("VK_SHARED_MEMBER_ID"),
	}

	var err error
	if cfg.GitScanTimeout, err = envDurationMS("GIT_SCAN_TIMEOUT_MS", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.GitScanHardTimeout, err = envDurationMS("GIT_SCAN_HARD_TIMEOUT_MS", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.GitScanMaxDepth, err = envInt("GIT_SCAN_MAX_DEPTH", 6); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// RemoteSyncEnabled reports whether enough configuration is present to
// start the RemoteSync client.
func (c Config) RemoteSyncEnabled() bool {
	return c.SharedAPIBase != "" && c.SharedWSURL != "" && c.SharedOrganizationID != ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envDurationMS(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
