package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/metrics"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/model"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/report"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/rules"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/scanner"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/semcache"
)

const noThreatsBody = "## No Threats Detected\n\nThe regex scan did not match any known attack signatures in the uploaded log. No AI analysis was necessary."

// Orchestrator runs the scan -> cache -> generate pipeline for each analysis
// request. Submission never blocks on pipeline work; everything after the
// job ID is handed back happens in a background goroutine.
type Orchestrator struct {
	store      Store
	loader     *rules.Loader
	cache      *semcache.Cache
	generator  *report.Generator
	metrics    *metrics.Metrics
	logger     *slog.Logger
	dedupe     *lru.Cache[string, string]
	genTimeout time.Duration
}

// NewOrchestrator creates a new job orchestrator. dedupeCap bounds the
// content-hash result cache.
func NewOrchestrator(store Store, loader *rules.Loader, cache *semcache.Cache, generator *report.Generator, m *metrics.Metrics, dedupeCap int, genTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	dedupe, _ := lru.New[string, string](dedupeCap)
	return &Orchestrator{
		store:      store,
		loader:     loader,
		cache:      cache,
		generator:  generator,
		metrics:    m,
		logger:     logger,
		dedupe:     dedupe,
		genTimeout: genTimeout,
	}
}

// Submit registers a new analysis job and returns its ID immediately.
// Byte-identical content with the same log type short-circuits to the
// already-computed result instead of re-running the pipeline.
func (o *Orchestrator) Submit(ctx context.Context, content []byte, logType string) (string, error) {
	jobID := uuid.NewString()
	now := time.Now().UTC()

	job := &model.AnalysisJob{
		ID:           jobID,
		LogType:      logType,
		Status:       model.JobStatusQueued,
		ProgressNote: "Waiting for analysis to start...",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.store.Put(ctx, job); err != nil {
		return "", err
	}

	dedupeKey := contentKey(content, logType)
	if prior, ok := o.lookupPriorResult(ctx, dedupeKey); ok {
		o.logger.Info("Duplicate submission short-circuited", "job_id", jobID, "log_type", logType)
		job.Status = model.JobStatusComplete
		job.ProgressNote = "Result reused from an identical earlier submission."
		job.Result = prior
		if err := o.store.Update(ctx, job); err != nil {
			return "", err
		}
		o.metrics.JobsTotal.WithLabelValues(string(model.JobStatusComplete)).Inc()
		return jobID, nil
	}

	go o.run(jobID, dedupeKey, string(content), logType)

	return jobID, nil
}

// Cancel requests best-effort cancellation. It succeeds only while the job
// is still queued; a job already processing or finished is left alone.
// Unknown IDs return ErrNotFound.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (bool, error) {
	swapped, err := o.store.CompareAndSwapStatus(ctx, jobID,
		model.JobStatusQueued, model.JobStatusCanceled, "Canceled before processing started.")
	if err != nil {
		return false, err
	}
	if swapped {
		o.metrics.JobsTotal.WithLabelValues(string(model.JobStatusCanceled)).Inc()
	}
	return swapped, nil
}

// run executes the pipeline for one job. It owns all status transitions for
// that job from here on.
func (o *Orchestrator) run(jobID, dedupeKey, logText, logType string) {
	ctx := context.Background()

	// A cancel that won the race leaves the job canceled; do not start.
	started, err := o.store.CompareAndSwapStatus(ctx, jobID,
		model.JobStatusQueued, model.JobStatusProcessing, "Scanning log for known attack signatures...")
	if err != nil || !started {
		return
	}

	sc := scanner.New(o.loader.Snapshot())
	findings, summary := sc.Scan(logText, logType)
	o.metrics.ScansTotal.Inc()
	o.metrics.FindingsTotal.Add(float64(len(findings)))
	o.logger.Info("Scan complete", "job_id", jobID, "log_type", logType, "findings", len(findings))

	if summary == "" {
		o.complete(ctx, jobID, dedupeKey, &model.Report{
			MarkdownBody: noThreatsBody,
			Findings:     findings,
			Provenance:   model.ProvenanceGenerated,
		})
		return
	}

	o.setProgress(ctx, jobID, "Checking semantic cache for a similar report...")
	ruleVersion := sc.SnapshotVersion()

	cached, hit, err := o.cache.Lookup(ctx, summary, logType, ruleVersion)
	if err != nil {
		// Cache trouble never fails the request; treat as a miss.
		o.logger.Warn("Semantic cache lookup failed, treating as miss", "job_id", jobID, "error", err)
	}
	if hit {
		o.metrics.CacheHits.Inc()
		o.complete(ctx, jobID, dedupeKey, &model.Report{
			MarkdownBody: cached,
			Findings:     findings,
			Provenance:   model.ProvenanceCache,
		})
		return
	}
	o.metrics.CacheMisses.Inc()

	o.setProgress(ctx, jobID, "Generating AI analysis report...")
	genCtx, cancel := context.WithTimeout(ctx, o.genTimeout)
	body, genErr := o.generator.Generate(genCtx, summary, logType, time.Now())
	cancel()

	if genErr != nil {
		// The in-band error body plus the findings still reach the caller.
		o.metrics.LLMErrors.Inc()
		o.fail(ctx, jobID, genErr.Error(), &model.Report{
			MarkdownBody: body,
			Findings:     findings,
			Provenance:   model.ProvenanceGenerated,
		})
		return
	}

	o.setProgress(ctx, jobID, "Caching report for future lookups...")
	if err := o.cache.Insert(ctx, summary, logType, body, ruleVersion); err != nil {
		// Best-effort caching: serve the fresh report even if persisting failed.
		o.logger.Warn("Failed to cache generated report", "job_id", jobID, "error", err)
	} else {
		o.metrics.CacheEntries.Set(float64(o.cache.Len()))
	}

	o.complete(ctx, jobID, dedupeKey, &model.Report{
		MarkdownBody: body,
		Findings:     findings,
		Provenance:   model.ProvenanceGenerated,
	})
}

// complete marks a job finished with its report and records the result for
// duplicate submissions
func (o *Orchestrator) complete(ctx context.Context, jobID, dedupeKey string, result *model.Report) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		o.logger.Error("Failed to load job for completion", "job_id", jobID, "error", err)
		return
	}
	job.Status = model.JobStatusComplete
	job.ProgressNote = "Analysis complete."
	job.Result = result
	if err := o.store.Update(ctx, job); err != nil {
		o.logger.Error("Failed to store job result", "job_id", jobID, "error", err)
		return
	}

	o.dedupe.Add(dedupeKey, jobID)
	o.metrics.JobsTotal.WithLabelValues(string(model.JobStatusComplete)).Inc()
	o.logger.Info("Job complete", "job_id", jobID, "provenance", result.Provenance)
}

// fail marks a job failed, keeping whatever partial results were computed
func (o *Orchestrator) fail(ctx context.Context, jobID, errMsg string, partial *model.Report) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		o.logger.Error("Failed to load job for failure", "job_id", jobID, "error", err)
		return
	}
	job.Status = model.JobStatusFailed
	job.ProgressNote = "Analysis failed."
	job.Error = errMsg
	job.Result = partial
	if err := o.store.Update(ctx, job); err != nil {
		o.logger.Error("Failed to store job failure", "job_id", jobID, "error", err)
		return
	}

	o.metrics.JobsTotal.WithLabelValues(string(model.JobStatusFailed)).Inc()
	o.logger.Error("Job failed", "job_id", jobID, "error", errMsg)
}

// setProgress updates the free-text progress note on a running job
func (o *Orchestrator) setProgress(ctx context.Context, jobID, note string) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return
	}
	job.ProgressNote = note
	if err := o.store.Update(ctx, job); err != nil {
		o.logger.Warn("Failed to update job progress", "job_id", jobID, "error", err)
	}
}

// lookupPriorResult checks the content-hash dedup cache for an
// already-computed result. Reused results are marked as cache provenance.
func (o *Orchestrator) lookupPriorResult(ctx context.Context, dedupeKey string) (*model.Report, bool) {
	priorID, ok := o.dedupe.Get(dedupeKey)
	if !ok {
		return nil, false
	}
	prior, err := o.store.Get(ctx, priorID)
	if err != nil || prior.Status != model.JobStatusComplete || prior.Result == nil {
		return nil, false
	}

	result := *prior.Result
	result.Provenance = model.ProvenanceCache
	return &result, true
}

// contentKey builds the dedup key for already-computed job results:
// SHA-256 of the raw content plus the log-format tag
func contentKey(content []byte, logType string) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]) + ":" + logType
}
