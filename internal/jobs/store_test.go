package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/model"
)

type capturePublisher struct {
	subjects []string
	payloads [][]byte
}

func (p *capturePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestMemoryStore_PutAndGet(t *testing.T) {
	store := NewMemoryStore(testLogger(), nil)
	ctx := context.Background()

	job := &model.AnalysisJob{ID: "job-1", LogType: "nginx", Status: model.JobStatusQueued}
	require.NoError(t, store.Put(ctx, job))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "nginx", got.LogType)
	assert.Equal(t, model.JobStatusQueued, got.Status)

	// The store hands out copies; mutating one must not leak back.
	got.Status = model.JobStatusFailed
	again, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, again.Status)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	store := NewMemoryStore(testLogger(), nil)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore(testLogger(), nil)
	ctx := context.Background()

	job := &model.AnalysisJob{ID: "job-1", Status: model.JobStatusQueued}
	require.NoError(t, store.Put(ctx, job))

	job.Status = model.JobStatusProcessing
	job.ProgressNote = "Scanning..."
	require.NoError(t, store.Update(ctx, job))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Equal(t, "Scanning...", got.ProgressNote)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestMemoryStore_UpdateUnknown(t *testing.T) {
	store := NewMemoryStore(testLogger(), nil)

	err := store.Update(context.Background(), &model.AnalysisJob{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore(testLogger(), nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &model.AnalysisJob{ID: "a"}))
	require.NoError(t, store.Put(ctx, &model.AnalysisJob{ID: "b"}))

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestMemoryStore_CompareAndSwapStatus(t *testing.T) {
	store := NewMemoryStore(testLogger(), nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &model.AnalysisJob{ID: "job-1", Status: model.JobStatusQueued}))

	swapped, err := store.CompareAndSwapStatus(ctx, "job-1",
		model.JobStatusQueued, model.JobStatusProcessing, "working")
	require.NoError(t, err)
	assert.True(t, swapped)

	// The job is no longer queued, so the same swap fails without touching it.
	swapped, err = store.CompareAndSwapStatus(ctx, "job-1",
		model.JobStatusQueued, model.JobStatusCanceled, "too late")
	require.NoError(t, err)
	assert.False(t, swapped)

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Equal(t, "working", got.ProgressNote)

	_, err = store.CompareAndSwapStatus(ctx, "missing",
		model.JobStatusQueued, model.JobStatusCanceled, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PublishesLifecycleEvents(t *testing.T) {
	pub := &capturePublisher{}
	store := NewMemoryStore(testLogger(), pub)
	ctx := context.Background()

	job := &model.AnalysisJob{ID: "job-1", LogType: "nginx", Status: model.JobStatusQueued}
	require.NoError(t, store.Put(ctx, job))

	// Non-terminal updates are internal; only creation and terminal states
	// go on the wire.
	job.Status = model.JobStatusProcessing
	require.NoError(t, store.Update(ctx, job))

	job.Status = model.JobStatusComplete
	require.NoError(t, store.Update(ctx, job))

	require.Equal(t, []string{"jobs.created", "jobs.complete"}, pub.subjects)

	var event map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[1], &event))
	assert.Equal(t, "job-1", event["job_id"])
	assert.Equal(t, "complete", event["status"])
}

func TestMemoryStore_CASPublishesTerminalEvent(t *testing.T) {
	pub := &capturePublisher{}
	store := NewMemoryStore(testLogger(), pub)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &model.AnalysisJob{ID: "job-1", Status: model.JobStatusQueued}))

	swapped, err := store.CompareAndSwapStatus(ctx, "job-1",
		model.JobStatusQueued, model.JobStatusCanceled, "canceled")
	require.NoError(t, err)
	require.True(t, swapped)

	assert.Equal(t, []string{"jobs.created", "jobs.canceled"}, pub.subjects)
}
