package semcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/llm"
)

// Entry is one cached report with the embedding of its source key.
// Entries are append-only; nothing evicts or updates them in normal
// operation. Staleness is handled by tagging each entry with the rule
// snapshot version it was generated under.
type Entry struct {
	SourceKey   string    `json:"source_key"`
	LogType     string    `json:"log_type"`
	ReportText  string    `json:"report_text"`
	RuleVersion int64     `json:"rule_version"`
	Embedding   []float32 `json:"embedding"`
	CreatedAt   time.Time `json:"created_at"`
}

// index is the on-disk representation of the cache
type index struct {
	Entries []Entry `json:"entries"`
}

// Cache is a vector-indexed store of previously generated reports, keyed by
// embedding the threat summary plus log-format tag. Lookups read the
// last-committed in-memory snapshot without blocking each other; inserts are
// serialized and persist the index before returning.
type Cache struct {
	path      string
	threshold float64
	embedder  llm.Embedder
	logger    *slog.Logger

	mu      sync.RWMutex // guards entries snapshot
	writeMu sync.Mutex   // serializes insert+persist+reload
	entries []Entry
}

// New opens (or initializes) a semantic cache backed by the index file at
// path. An unreadable index degrades to an empty cache with a logged
// warning rather than an error.
func New(path string, threshold float64, embedder llm.Embedder, logger *slog.Logger) *Cache {
	c := &Cache{
		path:      path,
		threshold: threshold,
		embedder:  embedder,
		logger:    logger,
	}

	entries, err := c.readIndex()
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Semantic cache index unreadable, starting empty", "path", path, "error", err)
		}
		entries = nil
	}
	c.entries = entries

	logger.Info("Semantic cache initialized", "path", path, "entries", len(entries), "threshold", threshold)
	return c
}

// Key builds the cache key from the log-format tag and threat summary. The
// tag prefix keeps entries for different log families apart even when their
// threat distributions are identical.
func Key(logType, summary string) string {
	return "LogType: " + logType + "\n" + summary
}

// Lookup embeds the key for the given summary and returns the best cached
// report whose similarity meets the threshold and whose rule version matches
// the current snapshot. Below-threshold results are plain misses; there is
// no graduated confidence.
func (c *Cache) Lookup(ctx context.Context, summary, logType string, ruleVersion int64) (string, bool, error) {
	c.mu.RLock()
	entries := c.entries
	c.mu.RUnlock()

	if len(entries) == 0 {
		return "", false, nil
	}

	vec, err := c.embedder.Embed(ctx, Key(logType, summary))
	if err != nil {
		return "", false, fmt.Errorf("failed to embed cache key: %w", err)
	}

	best := -1
	bestScore := 0.0
	for i, entry := range entries {
		if entry.LogType != logType || entry.RuleVersion != ruleVersion {
			continue
		}
		score := cosineSimilarity(vec, entry.Embedding)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	if best < 0 || bestScore < c.threshold {
		c.logger.Debug("Semantic cache miss", "log_type", logType, "best_score", bestScore)
		return "", false, nil
	}

	c.logger.Info("Semantic cache hit", "log_type", logType, "score", bestScore)
	return entries[best].ReportText, true, nil
}

// Insert appends a new entry and persists the index before returning.
// The index is reloaded from disk after the write so subsequent lookups see
// exactly what was committed.
func (c *Cache) Insert(ctx context.Context, summary, logType, reportText string, ruleVersion int64) error {
	key := Key(logType, summary)
	vec, err := c.embedder.Embed(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to embed cache key: %w", err)
	}

	entry := Entry{
		SourceKey:   key,
		LogType:     logType,
		ReportText:  reportText,
		RuleVersion: ruleVersion,
		Embedding:   vec,
		CreatedAt:   time.Now().UTC(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	updated := make([]Entry, len(c.entries), len(c.entries)+1)
	copy(updated, c.entries)
	c.mu.RUnlock()
	updated = append(updated, entry)

	if err := c.writeIndex(updated); err != nil {
		return fmt.Errorf("failed to persist cache index: %w", err)
	}

	committed, err := c.readIndex()
	if err != nil {
		return fmt.Errorf("failed to reload cache index: %w", err)
	}

	c.mu.Lock()
	c.entries = committed
	c.mu.Unlock()

	c.logger.Info("Semantic cache entry added", "log_type", logType, "entries", len(committed))
	return nil
}

// Len returns the number of entries in the last-committed snapshot
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// readIndex loads the index file from disk
func (c *Cache) readIndex() ([]Entry, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	return idx.Entries, nil
}

// writeIndex durably replaces the index file via write-to-temp and rename
func (c *Cache) writeIndex(entries []Entry) error {
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	data, err := json.Marshal(index{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}

// cosineSimilarity returns the cosine similarity of two vectors on a 0-1
// scale for non-negative alignment; mismatched lengths score zero
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
