package workflow

import (
	"context"
	"time"

	"github.com/labelsquor/squorcore/pkg/aiadapter"
	"github.com/labelsquor/squorcore/pkg/factmapper"
	"github.com/labelsquor/squorcore/pkg/models"
)

// Store is the persistence contract the engine drives through. It is
// intentionally narrow — not a general ORM — matching the shape of
// pkg/repository (spec.md §4.H). Every method here is expected to be
// transactional at the granularity its name suggests.
type Store interface {
	GetItem(ctx context.Context, workflowID string) (*models.WorkflowItem, error)
	SaveItem(ctx context.Context, item *models.WorkflowItem) error
	RecordTransition(ctx context.Context, t *models.WorkflowTransition) error

	GetSourcePage(ctx context.Context, sourcePageID string) (*models.SourcePage, error)
	FindOrCreateBrand(ctx context.Context, displayName string) (*models.Brand, error)
	FindOrCreateProduct(ctx context.Context, brandID, name, uniqueKey string) (*models.Product, error)
	LatestVersion(ctx context.Context, productID string) (*models.ProductVersion, error)
	CreateVersion(ctx context.Context, productID, contentHash string) (*models.ProductVersion, error)
	LatestSquorScore(ctx context.Context, productVersionID string) (*models.SquorScore, error)

	// ListQuotaExceeded returns workflow ids currently in QUOTA_EXCEEDED,
	// for ResumeQuotaExceededBatch.
	ListQuotaExceeded(ctx context.Context, limit int) ([]string, error)
}

// QuotaAdmitter is the subset of quota.Manager the engine calls.
type QuotaAdmitter interface {
	Check(estimatedTokens int64) error
	Record(inputTokens, outputTokens, imageTokens int64)
	WaitTime() time.Duration
}

// Analyzer is the subset of aiadapter.Client the engine calls.
type Analyzer interface {
	Analyze(ctx context.Context, req aiadapter.AnalyzeRequest) (*aiadapter.AnalysisResult, error)
}

// FactMapper is the subset of factmapper.Mapper the engine calls.
type FactMapper interface {
	MapAnalysis(ctx context.Context, versionID string, result *aiadapter.AnalysisResult) (*factmapper.MapResult, error)
}

// Indexer pushes a completed version into the search index. Failure here
// logs and continues rather than failing the workflow, unless the error is
// a pipelineerr.Fatal (spec.md §4.F).
type Indexer interface {
	Index(ctx context.Context, productID, versionID string) error
}

// Notifier emits a completion/failure notification. Failure here logs and
// continues rather than failing the workflow, unless the error is a
// pipelineerr.Fatal (spec.md §4.F).
type Notifier interface {
	Notify(ctx context.Context, item *models.WorkflowItem) error
}

// EventSink receives workflow lifecycle events (state_changed,
// stage_completed, error_occurred). Implemented by pkg/events in this
// module; nil is accepted by Engine and simply skips emission.
type EventSink interface {
	Publish(ctx context.Context, eventType string, data map[string]any)
}

// Config controls retry/backoff policy. It mirrors config.WorkflowConfig's
// retry fields so the engine does not need to import pkg/config directly.
type Config struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Clock abstracts time.Now so tests can control elapsed time deterministically.
type Clock func() time.Time

// Engine drives WorkflowItems through the fixed stage sequence.
type Engine struct {
	store   Store
	lock    Lock
	quota   QuotaAdmitter
	analyze Analyzer
	mapper  FactMapper
	indexer Indexer
	notify  Notifier
	events  EventSink
	cfg     Config
	now     Clock
}

// NewEngine constructs an Engine. indexer/notifier/events may be nil; a nil
// indexer or notifier degrades those stage bodies to no-ops, and a nil
// events sink silently discards emissions.
func NewEngine(store Store, lock Lock, quota QuotaAdmitter, analyze Analyzer, mapper FactMapper, indexer Indexer, notify Notifier, events EventSink, cfg Config) *Engine {
	return &Engine{
		store: store, lock: lock, quota: quota, analyze: analyze, mapper: mapper,
		indexer: indexer, notify: notify, events: events, cfg: cfg, now: time.Now,
	}
}

func (e *Engine) emit(ctx context.Context, eventType string, data map[string]any) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, eventType, data)
}
