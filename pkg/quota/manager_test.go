package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelsquor/squorcore/pkg/pipelineerr"
)

func TestWaitReturnsImmediatelyWithoutRequestsPerMinuteLimit(t *testing.T) {
	m := NewManager("vision", []Limit{
		{Kind: LimitTokensPerMinute, Max: 1000, Window: 0},
	}, DefaultPricing())
	require.NoError(t, m.Wait(t.Context()))
}

func TestWaitAdmitsBurstUpToRequestsPerMinuteLimit(t *testing.T) {
	m := NewManager("vision", []Limit{
		{Kind: LimitRequestsPerMinute, Max: 3, Window: time.Minute},
	}, DefaultPricing())

	// Burst capacity equals Max, so the first Max calls must not block.
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Wait(t.Context()))
	}
}

func tinyLimits() []Limit {
	return []Limit{
		{Kind: LimitTokensPerMinute, Max: 1000, Window: time.Minute},
		{Kind: LimitTokensPerDay, Max: 10_000, Window: 24 * time.Hour},
		{Kind: LimitRequestsPerMinute, Max: 2, Window: time.Minute},
		{Kind: LimitRequestsPerDay, Max: 100, Window: 24 * time.Hour},
	}
}

func TestCheckAdmitsWithinLimits(t *testing.T) {
	m := NewManager("vision", tinyLimits(), DefaultPricing())
	require.NoError(t, m.Check(500))
}

func TestCheckRejectsOverTokenLimit(t *testing.T) {
	m := NewManager("vision", tinyLimits(), DefaultPricing())
	err := m.Check(5000)
	require.Error(t, err)
	assert.True(t, pipelineerr.IsQuotaExceeded(err))
}

func TestCheckRejectsOverRequestLimit(t *testing.T) {
	m := NewManager("vision", tinyLimits(), DefaultPricing())
	m.Record(100, 50, 1)
	m.Record(100, 50, 1)

	err := m.Check(10)
	require.Error(t, err)
	assert.True(t, pipelineerr.IsQuotaExceeded(err))
}

func TestRecordAccumulatesCost(t *testing.T) {
	m := NewManager("vision", tinyLimits(), DefaultPricing())
	m.Record(1000, 500, 2)

	status := m.GetStatus()
	assert.Equal(t, int64(1500), status.TotalTokens)
	assert.Greater(t, status.TotalCostUSD, 0.0)
}

func TestRegistryReusesManagerPerService(t *testing.T) {
	r := NewRegistry(tinyLimits(), DefaultPricing())
	a := r.Get("vision")
	b := r.Get("vision")
	assert.Same(t, a, b)

	c := r.Get("search-index")
	assert.NotSame(t, a, c)
}

func TestWaitTimeZeroWhenNotExceeded(t *testing.T) {
	m := NewManager("vision", tinyLimits(), DefaultPricing())
	assert.Equal(t, time.Duration(0), m.WaitTime())
}

// Admission must fail at used+estimated == limit, not only once it is
// exceeded, per the boundary rule in check_quota on the original service.
func TestCheckRejectsAtExactTokenBoundary(t *testing.T) {
	limits := []Limit{
		{Kind: LimitTokensPerMinute, Max: 1000, Window: time.Minute},
		{Kind: LimitTokensPerDay, Max: 10_000, Window: 24 * time.Hour},
		{Kind: LimitRequestsPerMinute, Max: 100, Window: time.Minute},
		{Kind: LimitRequestsPerDay, Max: 1000, Window: 24 * time.Hour},
	}
	m := NewManager("vision", limits, DefaultPricing())

	require.NoError(t, m.Check(999))
	m.Record(999, 0, 0)

	err := m.Check(1)
	require.Error(t, err)
	assert.True(t, pipelineerr.IsQuotaExceeded(err))
}

func TestCheckRejectsAtExactRequestBoundary(t *testing.T) {
	limits := []Limit{
		{Kind: LimitTokensPerMinute, Max: 1_000_000, Window: time.Minute},
		{Kind: LimitTokensPerDay, Max: 1_000_000, Window: 24 * time.Hour},
		{Kind: LimitRequestsPerMinute, Max: 2, Window: time.Minute},
		{Kind: LimitRequestsPerDay, Max: 1000, Window: 24 * time.Hour},
	}
	m := NewManager("vision", limits, DefaultPricing())

	require.NoError(t, m.Check(10))
	m.Record(10, 0, 0)

	// Second call: used=1, used+1=2 == Max(2) must reject.
	err := m.Check(10)
	require.Error(t, err)
	assert.True(t, pipelineerr.IsQuotaExceeded(err))
}
