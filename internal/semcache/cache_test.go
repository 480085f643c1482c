package semcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder assigns each distinct text its own basis vector, so
// identical keys embed identically and different keys are orthogonal
type stubEmbedder struct {
	err      error
	calls    int
	assigned map[string]int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.assigned == nil {
		s.assigned = make(map[string]int)
	}
	idx, ok := s.assigned[text]
	if !ok {
		idx = len(s.assigned)
		s.assigned[text] = idx
	}
	vec := make([]float32, 64)
	vec[idx] = 1
	return vec, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T, embedder *stubEmbedder) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.json")
	return New(path, 0.95, embedder, testLogger())
}

func TestKey_IncludesLogType(t *testing.T) {
	summary := "- Found 'SQLi' pattern 1 times."
	assert.Equal(t, "LogType: nginx\n"+summary, Key("nginx", summary))
	assert.NotEqual(t, Key("nginx", summary), Key("apache", summary))
}

func TestCache_RoundTrip(t *testing.T) {
	cache := newTestCache(t, &stubEmbedder{})
	ctx := context.Background()
	summary := "- Found 'SQLi' pattern 1 times."

	report, hit, err := cache.Lookup(ctx, summary, "nginx", 7)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, report)

	require.NoError(t, cache.Insert(ctx, summary, "nginx", "## Report body", 7))
	assert.Equal(t, 1, cache.Len())

	report, hit, err = cache.Lookup(ctx, summary, "nginx", 7)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "## Report body", report)
}

func TestCache_DifferentSummaryMisses(t *testing.T) {
	cache := newTestCache(t, &stubEmbedder{})
	ctx := context.Background()

	require.NoError(t, cache.Insert(ctx, "- Found 'SQLi' pattern 1 times.", "nginx", "## SQLi report", 7))

	_, hit, err := cache.Lookup(ctx, "- Found 'XSS' pattern 4 times.", "nginx", 7)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_LogTypePartitionsEntries(t *testing.T) {
	cache := newTestCache(t, &stubEmbedder{})
	ctx := context.Background()
	summary := "- Found 'SQLi' pattern 1 times."

	require.NoError(t, cache.Insert(ctx, summary, "nginx", "## Nginx report", 7))

	_, hit, err := cache.Lookup(ctx, summary, "apache", 7)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_RuleVersionMismatchMisses(t *testing.T) {
	cache := newTestCache(t, &stubEmbedder{})
	ctx := context.Background()
	summary := "- Found 'SQLi' pattern 1 times."

	require.NoError(t, cache.Insert(ctx, summary, "nginx", "## Report", 7))

	// Entries generated under an older rule snapshot are stale.
	_, hit, err := cache.Lookup(ctx, summary, "nginx", 8)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	embedder := &stubEmbedder{}
	ctx := context.Background()
	summary := "- Found 'SQLi' pattern 1 times."

	first := New(path, 0.95, embedder, testLogger())
	require.NoError(t, first.Insert(ctx, summary, "nginx", "## Report", 7))

	reopened := New(path, 0.95, embedder, testLogger())
	assert.Equal(t, 1, reopened.Len())

	report, hit, err := reopened.Lookup(ctx, summary, "nginx", 7)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "## Report", report)
}

func TestCache_CorruptIndexStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cache := New(path, 0.95, &stubEmbedder{}, testLogger())
	assert.Equal(t, 0, cache.Len())
}

func TestCache_EmbedderErrorSurfaces(t *testing.T) {
	failing := &stubEmbedder{err: errors.New("quota exceeded")}
	path := filepath.Join(t.TempDir(), "index.json")
	cache := New(path, 0.95, failing, testLogger())
	ctx := context.Background()

	// Lookup against an empty cache short-circuits before embedding.
	_, hit, err := cache.Lookup(ctx, "summary", "nginx", 7)
	require.NoError(t, err)
	assert.False(t, hit)

	err = cache.Insert(ctx, "summary", "nginx", "## Report", 7)
	assert.Error(t, err)

	// With entries present, a failing embedder turns lookups into errors
	// the caller treats as misses.
	good := &stubEmbedder{}
	ok := New(filepath.Join(t.TempDir(), "ok.json"), 0.95, good, testLogger())
	require.NoError(t, ok.Insert(ctx, "summary", "nginx", "## Report", 7))
	good.err = errors.New("quota exceeded")
	_, _, err = ok.Lookup(ctx, "summary", "nginx", 7)
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"mismatched lengths", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
