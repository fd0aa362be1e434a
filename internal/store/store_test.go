package store

import (
	"testing"
	"time"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCandidate(code string, status candidate.Status, priority float64) *candidate.Candidate {
	c := candidate.New(code, code+"-name", candidate.KOSPI)
	c.Status = status
	c.EntryPriority = priority
	return c
}

func TestAddAndGetRoundTrips(t *testing.T) {
	s := New(0, 0)
	c := newCandidate("005930", candidate.StatusScanning, 0)
	require.NoError(t, s.Add(c))

	got, ok := s.Get("005930")
	require.True(t, ok)
	assert.Equal(t, "005930", got.StockCode)
}

func TestGetReturnsIndependentClone(t *testing.T) {
	s := New(0, 0)
	c := newCandidate("005930", candidate.StatusScanning, 0)
	require.NoError(t, s.Add(c))

	got, _ := s.Get("005930")
	got.StockName = "mutated"

	again, _ := s.Get("005930")
	assert.NotEqual(t, "mutated", again.StockName)
}

func TestPositionCapacityRejectsOverflow(t *testing.T) {
	s := New(10, 1)
	require.NoError(t, s.Add(newCandidate("AAA", candidate.StatusEntered, 0)))

	err := s.Add(newCandidate("BBB", candidate.StatusEntered, 0))
	require.Error(t, err)
}

func TestWatchCapacityEvictsLowestPriority(t *testing.T) {
	s := New(2, 10)
	require.NoError(t, s.Add(newCandidate("LOW", candidate.StatusWatching, 1)))
	require.NoError(t, s.Add(newCandidate("HIGH", candidate.StatusWatching, 5)))

	// third insert exceeds the watch cap; the lowest-priority row (LOW)
	// should be evicted to make room
	require.NoError(t, s.Add(newCandidate("NEW", candidate.StatusWatching, 3)))

	_, ok := s.Get("LOW")
	assert.False(t, ok)
	_, ok = s.Get("HIGH")
	assert.True(t, ok)
	_, ok = s.Get("NEW")
	assert.True(t, ok)
}

func TestPositionsAreNeverEvicted(t *testing.T) {
	s := New(10, 1)
	require.NoError(t, s.Add(newCandidate("HELD", candidate.StatusEntered, 0)))

	err := s.Add(newCandidate("OVERFLOW", candidate.StatusEntered, 100))
	require.Error(t, err)
	_, ok := s.Get("HELD")
	assert.True(t, ok)
}

func TestMutateIsExclusiveWriter(t *testing.T) {
	s := New(0, 0)
	require.NoError(t, s.Add(newCandidate("005930", candidate.StatusScanning, 0)))

	err := s.Mutate("005930", func(c *candidate.Candidate) error {
		c.CurrentPrice = 70000
		return nil
	})
	require.NoError(t, err)

	got, _ := s.Get("005930")
	assert.Equal(t, 70000.0, got.CurrentPrice)
}

func TestMutateUnknownCodeErrors(t *testing.T) {
	s := New(0, 0)
	err := s.Mutate("missing", func(c *candidate.Candidate) error { return nil })
	assert.Error(t, err)
}

func TestGetByStateFiltersCorrectly(t *testing.T) {
	s := New(0, 0)
	require.NoError(t, s.Add(newCandidate("A", candidate.StatusWatching, 0)))
	require.NoError(t, s.Add(newCandidate("B", candidate.StatusEntered, 0)))
	require.NoError(t, s.Add(newCandidate("C", candidate.StatusWatching, 0)))

	watching := s.GetByState(candidate.StatusWatching)
	assert.Len(t, watching, 2)
}

func TestPositionCountCountsEnteredAndPendingOrder(t *testing.T) {
	s := New(0, 0)
	require.NoError(t, s.Add(newCandidate("A", candidate.StatusEntered, 0)))
	require.NoError(t, s.Add(newCandidate("B", candidate.StatusPendingOrder, 0)))
	require.NoError(t, s.Add(newCandidate("C", candidate.StatusWatching, 0)))

	assert.Equal(t, 2, s.PositionCount())
}

func TestCleanupOldExitedRemovesOnlyStale(t *testing.T) {
	s := New(0, 0)
	old := newCandidate("OLD", candidate.StatusExited, 0)
	oldTime := time.Now().Add(-25 * time.Hour)
	old.ExitTime = &oldTime
	require.NoError(t, s.Add(old))

	fresh := newCandidate("FRESH", candidate.StatusExited, 0)
	freshTime := time.Now().Add(-1 * time.Hour)
	fresh.ExitTime = &freshTime
	require.NoError(t, s.Add(fresh))

	removed := s.CleanupOldExited(time.Now())
	assert.Equal(t, 1, removed)

	_, ok := s.Get("OLD")
	assert.False(t, ok)
	_, ok = s.Get("FRESH")
	assert.True(t, ok)
}
