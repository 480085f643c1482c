package scanner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/model"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/rules"
)

// Scanner applies a rules snapshot to raw log text, producing per-line
// findings and a deterministic threat summary. Stateless and safe for
// concurrent use; the snapshot it holds is immutable.
type Scanner struct {
	snapshot *rules.Snapshot
}

// New creates a scanner bound to a rules snapshot
func New(snapshot *rules.Snapshot) *Scanner {
	return &Scanner{snapshot: snapshot}
}

// SnapshotVersion returns the version of the rules snapshot in use
func (s *Scanner) SnapshotVersion() int64 {
	if s.snapshot == nil {
		return 0
	}
	return s.snapshot.Version
}

// Scan tests each line of logText against the rules for logType, in registry
// order, stopping at the first match per line. Empty input or an unknown
// log type yields no findings and an empty summary, a valid "no threats
// detected" result rather than an error.
func (s *Scanner) Scan(logText, logType string) ([]model.Finding, string) {
	ruleSet := s.snapshot.RulesFor(logType)
	if len(ruleSet) == 0 || logText == "" {
		return nil, ""
	}

	var findings []model.Finding
	lines := strings.Split(logText, "\n")
	for i, line := range lines {
		for _, rule := range ruleSet {
			if rule.Pattern.MatchString(line) {
				findings = append(findings, model.Finding{
					LineNumber: i + 1,
					ThreatName: rule.Name,
					RawLine:    line,
				})
				break
			}
		}
	}

	return findings, Summarize(findings)
}

// Summarize renders the deterministic threat summary for a set of findings:
// one line per distinct threat name, alphabetically sorted. The summary is
// the semantic content of the cache key, so byte-for-byte stability across
// runs is required.
func Summarize(findings []model.Finding) string {
	if len(findings) == 0 {
		return ""
	}

	counts := make(map[string]int)
	for _, f := range findings {
		counts[f.ThreatName]++
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- Found '%s' pattern %d times.", name, counts[name]))
	}

	return strings.Join(lines, "\n")
}
