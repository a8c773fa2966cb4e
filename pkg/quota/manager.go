// Package quota governs per-service call budgets for external AI providers:
// rolling per-minute and per-day token/request windows, admit-then-record
// discipline, and USD cost tracking. A Manager is process-global per service
// name and is safe for concurrent use by every worker polling the same
// queue (spec.md §4.C; grounded on the original implementation's
// QuotaManager).
package quota

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/labelsquor/squorcore/pkg/pipelineerr"
)

// LimitKind identifies one of the four rolling limits a Manager tracks.
type LimitKind string

const (
	LimitTokensPerMinute   LimitKind = "tokens_per_minute"
	LimitTokensPerDay      LimitKind = "tokens_per_day"
	LimitRequestsPerMinute LimitKind = "requests_per_minute"
	LimitRequestsPerDay    LimitKind = "requests_per_day"
)

// Limit configures the ceiling and rolling window for one LimitKind.
type Limit struct {
	Kind   LimitKind
	Max    int64
	Window time.Duration
}

// DefaultLimits returns the free-tier vision-model limits used when a
// service has no explicit configuration (grounded on the original
// implementation's DEFAULT_LIMITS for the Gemini free tier).
func DefaultLimits() []Limit {
	return []Limit{
		{Kind: LimitTokensPerMinute, Max: 4_000_000, Window: time.Minute},
		{Kind: LimitTokensPerDay, Max: 1_000_000_000, Window: 24 * time.Hour},
		{Kind: LimitRequestsPerMinute, Max: 15, Window: time.Minute},
		{Kind: LimitRequestsPerDay, Max: 1_500, Window: 24 * time.Hour},
	}
}

// Pricing gives the per-unit USD cost used to compute CostUSD on each
// recorded call.
type Pricing struct {
	Model             string
	InputPerKToken     float64
	OutputPerKToken    float64
	ImagePerImage      float64
}

// DefaultPricing returns the pricing table grounded on the original
// implementation's TokenTracker constants.
func DefaultPricing() Pricing {
	return Pricing{
		Model:           "vision-flash",
		InputPerKToken:  0.00001875,
		OutputPerKToken: 0.0000375,
		ImagePerImage:   0.0001315,
	}
}

type window struct {
	limit Limit
	used  int64
	start time.Time
}

func (w *window) resetIfExpired(now time.Time) {
	if now.After(w.start.Add(w.limit.Window)) {
		w.used = 0
		w.start = now
	}
}

func (w *window) remaining() int64 {
	r := w.limit.Max - w.used
	if r < 0 {
		return 0
	}
	return r
}

// Status is a point-in-time snapshot of a Manager's quota usage, suitable
// for logging or an admin inspection endpoint.
type Status struct {
	Service      string
	Windows      map[LimitKind]WindowStatus
	TotalTokens  int64
	TotalCostUSD float64
	Requests     int64
}

// WindowStatus reports usage for a single rolling window.
type WindowStatus struct {
	Used      int64
	Max       int64
	Remaining int64
}

// Manager enforces rolling token/request limits for a single named service
// and accumulates cost totals. All methods are safe for concurrent use; the
// entire check-then-record sequence for one call must go through Check then
// Record so usage is admitted exactly once per call.
type Manager struct {
	service string
	pricing Pricing

	mu      sync.Mutex
	windows map[LimitKind]*window

	// limiter smooths request pacing within the requests-per-minute window
	// so a burst of queued items does not spend the whole rolling budget in
	// the first second of a new window. It is a local, in-process token
	// bucket sized off the same LimitRequestsPerMinute configuration; it
	// never substitutes for the rolling-window checks in Check, which
	// remain the source of truth for admission.
	limiter *rate.Limiter

	totalInputTokens  int64
	totalOutputTokens int64
	totalImageTokens  int64
	totalRequests     int64
}

// NewManager constructs a Manager for service with the given limits and
// pricing table.
func NewManager(service string, limits []Limit, pricing Pricing) *Manager {
	m := &Manager{
		service: service,
		pricing: pricing,
		windows: make(map[LimitKind]*window, len(limits)),
	}
	now := time.Now()
	for _, l := range limits {
		m.windows[l.Kind] = &window{limit: l, start: now}
		if l.Kind == LimitRequestsPerMinute && l.Max > 0 && l.Window > 0 {
			perSecond := rate.Limit(float64(l.Max) / l.Window.Seconds())
			m.limiter = rate.NewLimiter(perSecond, int(l.Max))
		}
	}
	return m
}

// Wait blocks until the local request-pacing limiter admits another call, or
// until ctx is cancelled. Services with no LimitRequestsPerMinute configured
// (for example tests that pass Window: 0) have no limiter and Wait returns
// immediately. Call Wait ahead of Check so a burst of workers waiting on the
// same service spaces itself out instead of all failing Check at once.
func (m *Manager) Wait(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	return m.limiter.Wait(ctx)
}

// Check admits a call of estimatedTokens against every tracked window
// without recording usage. It returns pipelineerr.QuotaExceeded (wrapped as
// a plain error) the first limit that would be breached, so callers can
// branch with pipelineerr.IsQuotaExceeded.
func (m *Manager) Check(estimatedTokens int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, kind := range []LimitKind{LimitTokensPerMinute, LimitTokensPerDay} {
		w := m.windows[kind]
		if w == nil {
			continue
		}
		w.resetIfExpired(now)
		if w.used+estimatedTokens >= w.limit.Max {
			return &pipelineerr.QuotaExceeded{
				Service:    m.service,
				Limit:      string(kind),
				RetryAfter: retryAfter(w, now).String(),
			}
		}
	}
	for _, kind := range []LimitKind{LimitRequestsPerMinute, LimitRequestsPerDay} {
		w := m.windows[kind]
		if w == nil {
			continue
		}
		w.resetIfExpired(now)
		if w.used+1 >= w.limit.Max {
			return &pipelineerr.QuotaExceeded{
				Service:    m.service,
				Limit:      string(kind),
				RetryAfter: retryAfter(w, now).String(),
			}
		}
	}
	return nil
}

// Record admits usage after a call has actually completed: it advances every
// token window by the combined token count, every request window by one,
// and accumulates cost totals. Record does not itself enforce limits —
// callers must have called Check first.
func (m *Manager) Record(inputTokens, outputTokens, imageTokens int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	totalTokens := inputTokens + outputTokens

	for _, kind := range []LimitKind{LimitTokensPerMinute, LimitTokensPerDay} {
		if w := m.windows[kind]; w != nil {
			w.resetIfExpired(now)
			w.used += totalTokens
		}
	}
	for _, kind := range []LimitKind{LimitRequestsPerMinute, LimitRequestsPerDay} {
		if w := m.windows[kind]; w != nil {
			w.resetIfExpired(now)
			w.used++
		}
	}

	m.totalInputTokens += inputTokens
	m.totalOutputTokens += outputTokens
	m.totalImageTokens += imageTokens
	m.totalRequests++

	slog.Info("quota usage recorded",
		"service", m.service,
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
		"image_tokens", imageTokens,
		"total_cost_usd", m.costUSDLocked())
}

// CostUSD returns the cumulative cost this Manager has recorded, using its
// configured Pricing.
func (m *Manager) CostUSD() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.costUSDLocked()
}

func (m *Manager) costUSDLocked() float64 {
	input := float64(m.totalInputTokens) / 1000 * m.pricing.InputPerKToken
	output := float64(m.totalOutputTokens) / 1000 * m.pricing.OutputPerKToken
	image := float64(m.totalImageTokens) * m.pricing.ImagePerImage
	return input + output + image
}

// CallCost returns the USD cost of a single call with the given token
// counts under this Manager's pricing, without touching recorded totals.
func (m *Manager) CallCost(inputTokens, outputTokens, imageTokens int64) float64 {
	input := float64(inputTokens) / 1000 * m.pricing.InputPerKToken
	output := float64(outputTokens) / 1000 * m.pricing.OutputPerKToken
	image := float64(imageTokens) * m.pricing.ImagePerImage
	return input + output + image
}

// PricingModel returns the configured pricing model tag.
func (m *Manager) PricingModel() string { return m.pricing.Model }

// WaitTime returns the shortest duration until any currently-exceeded window
// resets, or zero if no window is exceeded.
func (m *Manager) WaitTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var min time.Duration
	for _, w := range m.windows {
		if w.used < w.limit.Max {
			continue
		}
		wait := retryAfter(w, now)
		if min == 0 || wait < min {
			min = wait
		}
	}
	return min
}

func retryAfter(w *window, now time.Time) time.Duration {
	d := w.limit.Window - now.Sub(w.start)
	if d < 0 {
		return 0
	}
	return d
}

// GetStatus returns a snapshot of current usage across all tracked windows.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	windows := make(map[LimitKind]WindowStatus, len(m.windows))
	for kind, w := range m.windows {
		w.resetIfExpired(now)
		windows[kind] = WindowStatus{Used: w.used, Max: w.limit.Max, Remaining: w.remaining()}
	}

	return Status{
		Service:      m.service,
		Windows:      windows,
		TotalTokens:  m.totalInputTokens + m.totalOutputTokens,
		TotalCostUSD: m.costUSDLocked(),
		Requests:     m.totalRequests,
	}
}
