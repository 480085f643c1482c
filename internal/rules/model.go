package rules

import "regexp"

// Rule is one compiled detection pattern loaded from a rule file.
// Immutable once loaded.
type Rule struct {
	ID      string
	Name    string
	Pattern *regexp.Regexp
}

// Snapshot is an immutable set of compiled rules keyed by log-format tag.
// Snapshots are swapped wholesale on reload; never mutated in place.
type Snapshot struct {
	Version int64
	sets    map[string][]Rule
}

// RulesFor returns the ordered rules for a log-format tag. Unknown tags
// return an empty slice, never an error, so detection degrades gracefully.
func (s *Snapshot) RulesFor(logType string) []Rule {
	if s == nil {
		return nil
	}
	return s.sets[logType]
}

// LogTypes returns the log-format tags present in this snapshot
func (s *Snapshot) LogTypes() []string {
	if s == nil {
		return nil
	}
	types := make([]string, 0, len(s.sets))
	for t := range s.sets {
		types = append(types, t)
	}
	return types
}

// RuleCount returns the total number of compiled rules across all tags
func (s *Snapshot) RuleCount() int {
	if s == nil {
		return 0
	}
	count := 0
	for _, set := range s.sets {
		count += len(set)
	}
	return count
}
