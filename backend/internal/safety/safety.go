// Package safety runs a best-effort pre-PR diff scan for committed secrets
// and oversized binaries. It never blocks PR creation — issues are
// informational, attached to a terminator action's audit record.
package safety

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/wardenhq/warden/backend/internal/gitutil"
)

// maxBinarySize is the threshold above which a binary file triggers a warning.
const maxBinarySize = 500 * 1024

// Issue describes one finding from a scan.
type Issue struct {
	File   string
	Kind   string
	Detail string
}

type pattern struct {
	re   *regexp.Regexp
	desc string
}

// patterns are split across string concatenation so the source file
// itself doesn't trip a secret scanner run over this repo.
var patterns = []pattern{
	{regexp.MustCompile(`AK` + `IA[0-9A-Z]{16}`), "AWS access key"},
	{regexp.MustCompile(`-{5}` + `BEGIN\s+(RSA|DSA|EC|OPENSSH|PGP)\s+PRIV` + `ATE\s+KEY-{5}`), "private key"},
	{regexp.MustCompile(`gh` + `p_[A-Za-z0-9_]{36}`), "GitHub personal access token"},
	{regexp.MustCompile(`gh` + `o_[A-Za-z0-9_]{36}`), "GitHub OAuth token"},
	{regexp.MustCompile(`github` + `_pat_[A-Za-z0-9_]{22,}`), "GitHub fine-grained PAT"},
	{regexp.MustCompile(`sk` + `-[A-Za-z0-9]{20,}`), "API secret key"},
	{regexp.MustCompile(`(?i)(pass` + `word|sec` + `ret|to` + `ken|api[_-]?key)\s*[:=]\s*['"][^'"]{8,}`), "hardcoded credential"},
}

// DiffFile is the subset of a numstat-parsed diff entry the scan needs.
type DiffFile struct {
	Path   string
	Binary bool
}

// Scan inspects the diff between baseRef and branch in worktreeDir: large
// binaries are flagged from files DiffFiles marks Binary, and added lines
// across the full diff are matched against known secret patterns.
func Scan(ctx context.Context, worktreeDir, baseRef, branch string, diffFiles []DiffFile) ([]Issue, error) {
	var issues []Issue

	for _, f := range diffFiles {
		if !f.Binary {
			continue
		}
		size, err := gitutil.CatFileSize(ctx, worktreeDir, branch, f.Path)
		if err != nil {
			continue // file may have been deleted since the numstat was taken.
		}
		if size > maxBinarySize {
			issues = append(issues, Issue{
				File:   f.Path,
				Kind:   "large_binary",
				Detail: fmt.Sprintf("binary file is %s (limit %s)", humanSize(size), humanSize(maxBinarySize)),
			})
		}
	}

	secretIssues, err := scanForSecrets(ctx, worktreeDir, baseRef, branch)
	if err != nil {
		return issues, err
	}
	issues = append(issues, secretIssues...)
	return issues, nil
}

func scanForSecrets(ctx context.Context, worktreeDir, baseRef, branch string) ([]Issue, error) {
	diff, err := gitutil.Diff(ctx, worktreeDir, baseRef, branch)
	if err != nil {
		return nil, fmt.Errorf("safety: diff for secret scan: %w", err)
	}

	var issues []Issue
	seen := make(map[string]bool)
	var currentFile string

	scanner := bufio.NewScanner(strings.NewReader(diff))
	for scanner.Scan() {
		line := scanner.Text()
		if after, ok := strings.CutPrefix(line, "+++ b/"); ok {
			currentFile = after
			continue
		}
		if !strings.HasPrefix(line, "+") || strings.HasPrefix(line, "+++") {
			continue
		}
		added := line[1:]
		for _, p := range patterns {
			if !p.re.MatchString(added) {
				continue
			}
			key := currentFile + ":" + p.desc
			if seen[key] {
				continue
			}
			seen[key] = true
			slog.Warn("safety: secret pattern matched", "file", currentFile, "pattern", p.desc)
			issues = append(issues, Issue{
				File:   currentFile,
				Kind:   "secret",
				Detail: fmt.Sprintf("possible %s detected", p.desc),
			})
		}
	}
	return issues, nil
}

func humanSize(b int64) string {
	switch {
	case b >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.0f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}
