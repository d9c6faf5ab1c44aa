package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/phrazzld/docintel-api/internal/blob"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/logger"
	"github.com/phrazzld/docintel-api/internal/platform/tracing"
	"github.com/phrazzld/docintel-api/internal/store"
	"github.com/phrazzld/docintel-api/internal/task"
)

// Job identity recorded on queue jobs and task records.
const (
	JobName  = "process_document"
	TaskType = "document_processing"
)

// Outcomes reported to Metrics.
const (
	OutcomeCompleted = "completed"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeRevoked   = "revoked"
)

// Payload is the queued job body.
type Payload struct {
	DocumentID uuid.UUID `json:"document_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
}

// Result is stored on the task record of a successful run.
type Result struct {
	TextLength            int     `json:"text_length"`
	PageCount             *int    `json:"page_count"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// MaxRetryLimit caps Config.MaxRetries so the backoff stays finite.
const MaxRetryLimit = 10

// Config tunes retries and extraction.
type Config struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	TextLimit      int
	StuckThreshold time.Duration
	SweepBatchSize int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     domain.DefaultMaxRetries,
		RetryBaseDelay: 60 * time.Second,
		TextLimit:      DefaultTextLimit,
		StuckThreshold: time.Hour,
		SweepBatchSize: 100,
	}
}

// Metrics receives pipeline outcomes.
type Metrics interface {
	ObserveProcessing(outcome string, elapsed time.Duration)
	ObserveSweep(timedOut, requeued int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveProcessing(string, time.Duration) {}
func (nopMetrics) ObserveSweep(int, int)                    {}

// Invalidator drops cached views of a tenant's documents.
type Invalidator func(ctx context.Context, tenantID uuid.UUID)

// Deps are the collaborators of a Processor. Documents, Tasks, Blobs and
// Queue are required.
type Deps struct {
	Documents   store.DocumentStore
	Tasks       store.TaskRecordStore
	Blobs       blob.Store
	Queue       task.Enqueuer
	Extractors  Extractors
	PageCounter PageCounter
	Invalidate  Invalidator
	Metrics     Metrics
}

// Processor runs document processing jobs.
type Processor struct {
	docs        store.DocumentStore
	tasks       store.TaskRecordStore
	blobs       blob.Store
	queue       task.Enqueuer
	extractors  Extractors
	pageCounter PageCounter
	invalidate  Invalidator
	metrics     Metrics
	config      Config
	logger      *slog.Logger
	now         func() time.Time
}

// NewProcessor creates a Processor. Missing optional dependencies get
// defaults: the standard extractors, the PDF page counter, no invalidation
// and no metrics.
func NewProcessor(deps Deps, config Config, logger *slog.Logger) (*Processor, error) {
	if deps.Documents == nil || deps.Tasks == nil || deps.Blobs == nil || deps.Queue == nil {
		return nil, errors.New("pipeline: documents, tasks, blobs and queue are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Extractors == nil {
		deps.Extractors = DefaultExtractors()
	}
	if deps.PageCounter == nil {
		deps.PageCounter = PDFExtractor{}
	}
	if deps.Invalidate == nil {
		deps.Invalidate = func(context.Context, uuid.UUID) {}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	defaults := DefaultConfig()
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.MaxRetries > MaxRetryLimit {
		config.MaxRetries = MaxRetryLimit
	}
	if config.TextLimit <= 0 {
		config.TextLimit = defaults.TextLimit
	}
	if config.StuckThreshold <= 0 {
		config.StuckThreshold = defaults.StuckThreshold
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = defaults.SweepBatchSize
	}

	return &Processor{
		docs:        deps.Documents,
		tasks:       deps.Tasks,
		blobs:       deps.Blobs,
		queue:       deps.Queue,
		extractors:  deps.Extractors,
		pageCounter: deps.PageCounter,
		invalidate:  deps.Invalidate,
		metrics:     deps.Metrics,
		config:      config,
		logger:      logger.With(slog.String("component", "document_pipeline")),
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Enqueue queues a processing job for doc and returns the job ID.
func (p *Processor) Enqueue(ctx context.Context, doc *domain.Document) (string, error) {
	return p.queue.Enqueue(ctx, JobName, Payload{DocumentID: doc.ID, TenantID: doc.TenantID})
}

// RetryDelay returns the backoff before the attempt following retryCount
// recorded failures.
func (p *Processor) RetryDelay(retryCount int) time.Duration {
	return p.config.RetryBaseDelay * time.Duration(1<<retryCount)
}

// Handle is the task.Handler for JobName. Redelivered jobs are safe to run:
// the task record is keyed by job ID and a finished record short-circuits.
func (p *Processor) Handle(ctx context.Context, job task.Job) error {
	var payload Payload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	ctx, span := tracing.StartDocumentSpan(ctx, "document.process", payload.DocumentID.String(), payload.TenantID.String())
	defer span.End()
	span.SetAttributes(attribute.String("job.id", job.ID), attribute.Int("job.attempt", job.Attempt))

	log := logger.FromContextOrDefault(ctx, p.logger).With(
		slog.String("document_id", payload.DocumentID.String()),
		slog.String("tenant_id", payload.TenantID.String()),
		slog.String("task_id", job.ID),
	)
	ctx = logger.WithLogger(ctx, log)

	start := p.now()
	rec, resumed, err := p.beginTask(ctx, job, payload, start)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if rec == nil {
		log.Info("task already finished, skipping redelivered job")
		return nil
	}

	outcome, err := p.run(ctx, job, payload, rec, resumed, start)
	p.metrics.ObserveProcessing(outcome, p.now().Sub(start))
	span.SetAttributes(attribute.String("pipeline.outcome", outcome))
	tracing.RecordError(span, err)
	return err
}

// beginTask loads or creates the task record for job. It returns nil when the
// record is already terminal. resumed reports whether the record existed,
// that is whether this job has run before.
func (p *Processor) beginTask(
	ctx context.Context,
	job task.Job,
	payload Payload,
	now time.Time,
) (rec *domain.TaskRecord, resumed bool, err error) {
	rec, err = p.tasks.Get(ctx, job.ID)
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		rec, err = domain.NewTaskRecord(job.ID, JobName, TaskType, payload.DocumentID, payload.TenantID, p.config.MaxRetries, now)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create task record: %w", err)
		}
	case err != nil:
		return nil, false, fmt.Errorf("failed to load task record: %w", err)
	case rec.IsTerminal():
		return nil, true, nil
	default:
		resumed = true
		rec.Start(now)
	}
	if err := p.tasks.Save(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("failed to save task record: %w", err)
	}
	return rec, resumed, nil
}

// claimedElsewhere reports whether doc is being processed by another job: it
// is in processing, started within the stuck threshold, and this job has
// never run before.
func (p *Processor) claimedElsewhere(doc *domain.Document, resumed bool) bool {
	if resumed || doc.Status != domain.DocumentStatusProcessing || doc.ProcessingStartedAt == nil {
		return false
	}
	return p.now().Sub(*doc.ProcessingStartedAt) < p.config.StuckThreshold
}

func (p *Processor) run(
	ctx context.Context,
	job task.Job,
	payload Payload,
	rec *domain.TaskRecord,
	resumed bool,
	start time.Time,
) (string, error) {
	log := logger.FromContextOrDefault(ctx, p.logger)

	doc, err := p.docs.GetByID(ctx, payload.DocumentID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		msg := fmt.Sprintf("Document not found: %s", payload.DocumentID)
		rec.Fail(msg, p.now())
		p.saveTask(ctx, rec)
		log.Error("document processing failed", slog.String("error", msg))
		return OutcomeFailed, err
	}
	if err != nil {
		return p.fail(ctx, job, rec, nil, err, "")
	}
	if doc.TenantID != payload.TenantID {
		msg := "Document does not belong to the job's tenant"
		rec.Fail(msg, p.now())
		p.saveTask(ctx, rec)
		log.Error("document processing failed", slog.String("error", msg))
		return OutcomeFailed, errors.New(msg)
	}

	if doc.Status == domain.DocumentStatusArchived {
		rec.Revoke("Document archived before processing", p.now())
		p.saveTask(ctx, rec)
		log.Info("document archived, job revoked")
		return OutcomeRevoked, nil
	}

	if p.claimedElsewhere(doc, resumed) {
		rec.Revoke("Document is already being processed by another job", p.now())
		p.saveTask(ctx, rec)
		log.Warn("document already processing under another job, job revoked",
			slog.Time("processing_started_at", *doc.ProcessingStartedAt))
		return OutcomeRevoked, nil
	}

	if err := doc.BeginProcessing(p.now()); err != nil {
		return p.fail(ctx, job, rec, nil, err, "")
	}
	if err := p.docs.UpdateProcessing(ctx, doc); err != nil {
		return p.fail(ctx, job, rec, nil, fmt.Errorf("failed to mark document processing: %w", err), "")
	}
	p.progress(ctx, rec, domain.ProgressStarted)
	p.invalidate(ctx, doc.TenantID)
	log.Info("document processing started", slog.Int("attempt", job.Attempt))

	result, trace, err := p.process(ctx, doc, rec)
	if err != nil {
		return p.fail(ctx, job, rec, doc, err, trace)
	}

	finished := p.now()
	if err := doc.Complete(result.text, result.pageCount, finished); err != nil {
		return p.fail(ctx, job, rec, doc, err, "")
	}
	if err := p.docs.UpdateProcessing(ctx, doc); err != nil {
		return p.fail(ctx, job, rec, doc, fmt.Errorf("failed to save processed document: %w", err), "")
	}
	if err := rec.Succeed(Result{
		TextLength:            result.textLength,
		PageCount:             result.pageCount,
		ProcessingTimeSeconds: finished.Sub(*doc.ProcessingStartedAt).Seconds(),
	}, finished); err != nil {
		return p.fail(ctx, job, rec, doc, err, "")
	}
	p.saveTask(ctx, rec)
	p.invalidate(ctx, doc.TenantID)

	log.Info("document processing completed",
		slog.Int("text_length", result.textLength),
		slog.Duration("elapsed", finished.Sub(start)))
	return OutcomeCompleted, nil
}

type extraction struct {
	text       string
	textLength int
	pageCount  *int
}

// process runs the extraction stages. A panic inside an extractor is turned
// into an error with its stack so the attempt can be retried.
func (p *Processor) process(ctx context.Context, doc *domain.Document, rec *domain.TaskRecord) (out extraction, trace string, err error) {
	defer func() {
		if r := recover(); r != nil {
			trace = string(debug.Stack())
			err = fmt.Errorf("extraction panicked: %v", r)
		}
	}()

	data, err := p.blobs.Get(ctx, doc.StoragePath)
	if err != nil {
		return out, "", fmt.Errorf("failed to read file: %w", err)
	}

	text := p.extract(ctx, doc, data)
	out.textLength = len([]rune(text))
	out.text = TruncateText(text, p.config.TextLimit)
	p.progress(ctx, rec, domain.ProgressExtracted)

	if doc.Type == domain.DocumentTypePDF {
		out.pageCount = p.countPages(ctx, data)
	}
	p.progress(ctx, rec, domain.ProgressCounted)

	if err := ctx.Err(); err != nil {
		return out, "", err
	}
	return out, "", nil
}

// extract returns the document text. Extractor errors yield empty text.
func (p *Processor) extract(ctx context.Context, doc *domain.Document, data []byte) string {
	ex, ok := p.extractors[doc.Type]
	if !ok || len(data) == 0 {
		return ""
	}
	ctx, span := tracing.StartStageSpan(ctx, "extract")
	defer span.End()
	span.SetAttributes(attribute.String("document.type", string(doc.Type)))

	text, err := ex.Extract(ctx, data)
	if err != nil {
		tracing.RecordError(span, err)
		logger.FromContextOrDefault(ctx, p.logger).Warn("text extraction failed, continuing without text",
			slog.String("document_type", string(doc.Type)),
			slog.String("error", err.Error()))
		return ""
	}
	return text
}

// countPages returns nil when the page count is unavailable.
func (p *Processor) countPages(ctx context.Context, data []byte) *int {
	ctx, span := tracing.StartStageSpan(ctx, "count_pages")
	defer span.End()

	n, err := p.pageCounter.CountPages(ctx, data)
	if err != nil {
		tracing.RecordError(span, err)
		logger.FromContextOrDefault(ctx, p.logger).Warn("page count unavailable", slog.String("error", err.Error()))
		return nil
	}
	return &n
}

// fail records a failed attempt and schedules a retry while the budget
// allows. Bookkeeping uses a context detached from the job deadline so a
// timed-out attempt is still recorded.
func (p *Processor) fail(
	ctx context.Context,
	job task.Job,
	rec *domain.TaskRecord,
	doc *domain.Document,
	cause error,
	trace string,
) (string, error) {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContextOrDefault(ctx, p.logger)
	now := p.now()
	msg := cause.Error()

	if doc != nil && doc.Status == domain.DocumentStatusProcessing {
		if err := doc.Fail(msg, now); err == nil {
			if err := p.docs.UpdateProcessing(ctx, doc); err != nil {
				log.Error("failed to mark document failed", slog.String("error", err.Error()))
			}
			p.invalidate(ctx, doc.TenantID)
		}
	}

	if trace == "" {
		trace = fmt.Sprintf("%+v", cause)
	}
	retry := rec.RecordFailure(msg, trace, now)
	outcome := OutcomeFailed
	if retry {
		delay := p.RetryDelay(rec.RetryCount)
		if err := p.queue.ScheduleRetry(ctx, job, delay); err != nil {
			log.Error("failed to schedule retry, failing task", slog.String("error", err.Error()))
			rec.Fail(msg, now)
		} else {
			outcome = OutcomeRetry
			log.Warn("document processing failed, retry scheduled",
				slog.String("error", msg),
				slog.Int("retry_count", rec.RetryCount),
				slog.Int("max_retries", rec.MaxRetries),
				slog.Duration("delay", delay))
		}
	}
	if outcome == OutcomeFailed {
		log.Error("document processing failed",
			slog.String("error", msg),
			slog.Int("retry_count", rec.RetryCount))
	}
	p.saveTask(ctx, rec)
	return outcome, cause
}

func (p *Processor) progress(ctx context.Context, rec *domain.TaskRecord, value int) {
	if err := rec.SetProgress(value, p.now()); err != nil {
		return
	}
	p.saveTask(ctx, rec)
}

// saveTask persists rec. Failures are logged and do not stop the job.
func (p *Processor) saveTask(ctx context.Context, rec *domain.TaskRecord) {
	if err := p.tasks.Save(ctx, rec); err != nil {
		logger.FromContextOrDefault(ctx, p.logger).Error("failed to save task record",
			slog.String("task_id", rec.TaskID),
			slog.String("status", string(rec.Status)),
			slog.String("error", err.Error()))
	}
}
