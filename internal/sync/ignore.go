package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/KasumiKitsune/odyssey-sync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is an optional gitignore-style file in the app root whose
// lines extend the built-in ignore set for every item.
const IgnoreFileName = ".odysseyignore"

var defaultIgnoreLines = []string{
	// our own plumbing
	".odysseyignore",
	".odyssey.yaml",
	".odyssey.lock",
	".odyssey-tmp-*",
	".odyssey-probe-*",
	// OS litter
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	// editor litter
	"*.swp",
	"*~",
	// never drag VCS metadata across
	".git/",
}

// IgnoreList filters relative paths out of snapshots on both sides.
type IgnoreList struct {
	matcher *gitignore.GitIgnore
}

// NewIgnoreList compiles the built-in lines plus any extra lines from
// config.
func NewIgnoreList(extra ...string) *IgnoreList {
	lines := make([]string, 0, len(defaultIgnoreLines)+len(extra))
	lines = append(lines, defaultIgnoreLines...)
	for _, line := range extra {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return &IgnoreList{matcher: gitignore.CompileIgnoreLines(lines...)}
}

// LoadIgnoreList builds an IgnoreList from the defaults, the extra config
// lines, and the .odysseyignore file under root when present.
func LoadIgnoreList(root string, extra ...string) *IgnoreList {
	ignorePath := filepath.Join(root, IgnoreFileName)
	if !utils.FileExists(ignorePath) {
		return NewIgnoreList(extra...)
	}

	file, err := os.Open(ignorePath)
	if err != nil {
		slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		return NewIgnoreList(extra...)
	}
	defer file.Close()

	lines := append([]string{}, extra...)
	rules := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
			rules++
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
	} else {
		slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
	}

	return NewIgnoreList(lines...)
}

// Match reports whether the relative path should be left out of a snapshot.
func (l *IgnoreList) Match(relPath string, isDir bool) bool {
	if l == nil || l.matcher == nil {
		return false
	}
	if l.matcher.MatchesPath(relPath) {
		return true
	}
	// directory patterns like "logs/" only match with the trailing slash
	if isDir && l.matcher.MatchesPath(relPath+"/") {
		return true
	}
	return false
}
