package rules

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// ruleLine matches the rule file grammar: [<digits>] <name>: <pattern>
var ruleLine = regexp.MustCompile(`^\[(\d+)\]\s*([^:]+):\s*(.*)$`)

// Loader handles loading and managing detection rule snapshots.
// Rule files live in a single directory, one file per log-format tag
// ("nginx.rules", "apache.rules", ...).
type Loader struct {
	rulesDir string
	logger   *slog.Logger
	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewLoader creates a new rule loader
func NewLoader(rulesDir string, logger *slog.Logger) *Loader {
	return &Loader{
		rulesDir: rulesDir,
		logger:   logger,
	}
}

// Load reads every *.rules file in the rules directory and swaps in a fresh
// snapshot. Malformed lines and invalid regexes are skipped; only a missing
// or empty rules directory is an error.
func (l *Loader) Load() (*Snapshot, error) {
	entries, err := os.ReadDir(l.rulesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory: %w", err)
	}

	sets := make(map[string][]Rule)
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rules") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no rule files found in %s", l.rulesDir)
	}

	for _, name := range files {
		logType := strings.TrimSuffix(name, ".rules")
		path := filepath.Join(l.rulesDir, name)

		f, err := os.Open(path)
		if err != nil {
			l.logger.Warn("Failed to open rule file", "file", path, "error", err)
			continue
		}
		set := l.parseRules(f, name)
		f.Close()

		sets[logType] = set
		l.logger.Info("Rule file loaded", "log_type", logType, "rules", len(set))
	}

	snapshot := &Snapshot{
		Version: time.Now().UnixNano(),
		sets:    sets,
	}

	l.mu.Lock()
	l.snapshot = snapshot
	l.mu.Unlock()

	l.logger.Info("Rules snapshot loaded",
		"log_types", len(sets),
		"total_rules", snapshot.RuleCount(),
		"version", snapshot.Version)

	return snapshot, nil
}

// Snapshot returns the current rules snapshot. Safe for concurrent use;
// scans in flight keep whatever snapshot they started with.
func (l *Loader) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.snapshot == nil {
		return &Snapshot{sets: map[string][]Rule{}}
	}
	return l.snapshot
}

// SnapshotFromReaders builds a snapshot directly from in-memory rule
// sources keyed by log-format tag, without touching the filesystem
func (l *Loader) SnapshotFromReaders(sources map[string]io.Reader) *Snapshot {
	sets := make(map[string][]Rule, len(sources))
	for logType, r := range sources {
		sets[logType] = l.parseRules(r, logType)
	}

	snapshot := &Snapshot{
		Version: time.Now().UnixNano(),
		sets:    sets,
	}

	l.mu.Lock()
	l.snapshot = snapshot
	l.mu.Unlock()

	return snapshot
}

// parseRules parses rule lines from a reader. File order is preserved as
// match-priority order. Lines that don't match the grammar are skipped
// silently; patterns that fail to compile are logged and dropped so one bad
// rule never aborts loading the rest.
func (l *Loader) parseRules(r io.Reader, source string) []Rule {
	var set []Rule

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		m := ruleLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		id, name, patternText := m[1], strings.TrimSpace(m[2]), m[3]
		pattern, err := regexp.Compile(patternText)
		if err != nil {
			l.logger.Warn("Invalid rule pattern skipped",
				"rule_id", id, "rule_name", name, "file", source, "error", err)
			continue
		}

		set = append(set, Rule{ID: id, Name: name, Pattern: pattern})
	}
	if err := sc.Err(); err != nil {
		l.logger.Warn("Error reading rule file", "file", source, "error", err)
	}

	return set
}
