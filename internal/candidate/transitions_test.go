package candidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionAllowsFullLifecycle(t *testing.T) {
	assert.True(t, CanTransition(StatusScanning, StatusWatching))
	assert.True(t, CanTransition(StatusScanning, StatusBuyReady))
	assert.True(t, CanTransition(StatusWatching, StatusBuyReady))
	assert.True(t, CanTransition(StatusBuyReady, StatusPendingOrder))
	assert.True(t, CanTransition(StatusPendingOrder, StatusEntered))
	assert.True(t, CanTransition(StatusEntered, StatusPendingOrder))
	assert.True(t, CanTransition(StatusPendingOrder, StatusExited))
}

func TestCanTransitionSelfLoopAlwaysAllowed(t *testing.T) {
	for _, s := range []Status{StatusScanning, StatusWatching, StatusEntered, StatusExited, StatusStopped} {
		assert.True(t, CanTransition(s, s))
	}
}

func TestCanTransitionRejectsIllegalJumps(t *testing.T) {
	assert.False(t, CanTransition(StatusScanning, StatusEntered))
	assert.False(t, CanTransition(StatusExited, StatusWatching))
	assert.False(t, CanTransition(StatusStopped, StatusScanning))
}

func TestCanTransitionFromPendingOrderCoversBothBuyAndSellResolution(t *testing.T) {
	// a buy-side pending order can resolve to ENTERED (fill) or BUY_READY (reject)
	assert.True(t, CanTransition(StatusPendingOrder, StatusEntered))
	assert.True(t, CanTransition(StatusPendingOrder, StatusBuyReady))
	// a sell-side pending order can resolve to EXITED (fill) or ENTERED (reject, implicit same state)
	assert.True(t, CanTransition(StatusPendingOrder, StatusExited))
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	for _, to := range []Status{StatusScanning, StatusWatching, StatusBuyReady, StatusPendingOrder, StatusEntered} {
		assert.False(t, CanTransition(StatusExited, to))
		assert.False(t, CanTransition(StatusStopped, to))
	}
}

func TestTransitionMutatesOnSuccess(t *testing.T) {
	c := New("005930", "Samsung Electronics", KOSPI)
	require.NoError(t, c.Transition(StatusWatching))
	assert.Equal(t, StatusWatching, c.Status)
}

func TestTransitionRejectsIllegalMoveAndLeavesStatusUnchanged(t *testing.T) {
	c := New("005930", "Samsung Electronics", KOSPI)
	err := c.Transition(StatusEntered)
	require.Error(t, err)
	assert.Equal(t, StatusScanning, c.Status)
}

func TestIsReadyForEntryRequiresPassedConditionsAndBuySignal(t *testing.T) {
	c := New("005930", "Samsung Electronics", KOSPI)
	c.Status = StatusWatching
	c.TradeSignal = Buy
	c.EntryConditions.OverallPassed = true
	assert.True(t, c.IsReadyForEntry())

	c.EntryConditions.OverallPassed = false
	assert.False(t, c.IsReadyForEntry())
}

func TestIsReadyForEntryFalseWhilePendingOrder(t *testing.T) {
	c := New("005930", "Samsung Electronics", KOSPI)
	c.Status = StatusPendingOrder
	c.TradeSignal = StrongBuy
	c.EntryConditions.OverallPassed = true
	assert.False(t, c.IsReadyForEntry())
}

func TestIsReadyForEntryFalseOnHoldSignal(t *testing.T) {
	c := New("005930", "Samsung Electronics", KOSPI)
	c.Status = StatusWatching
	c.TradeSignal = Hold
	c.EntryConditions.OverallPassed = true
	assert.False(t, c.IsReadyForEntry())
}

func TestCloneDeepCopiesSlicesAndMaps(t *testing.T) {
	c := New("005930", "Samsung Electronics", KOSPI)
	c.AddPattern(PatternInfo{Type: Hammer, Confidence: 0.8, Strength: 80})
	c.Metadata["entry_source"] = "scanner"

	clone := c.Clone()
	clone.Patterns[0].Confidence = 0.1
	clone.Metadata["entry_source"] = "mutated"

	assert.Equal(t, 0.8, c.Patterns[0].Confidence)
	assert.Equal(t, "scanner", c.Metadata["entry_source"])
}

func TestAddPatternRecomputesPrimaryAsHighestStrength(t *testing.T) {
	c := New("005930", "Samsung Electronics", KOSPI)
	c.AddPattern(PatternInfo{Type: Hammer, Confidence: 0.6, Strength: 60})
	c.AddPattern(PatternInfo{Type: BullishEngulfing, Confidence: 0.9, Strength: 90})

	require.NotNil(t, c.PrimaryPattern)
	assert.Equal(t, BullishEngulfing, c.PrimaryPattern.Type)
}

func TestHasPendingOrderChecksRelevantSide(t *testing.T) {
	c := New("005930", "Samsung Electronics", KOSPI)
	assert.False(t, c.HasPendingOrder(PendingBuy))

	c.PendingBuyOrderNo = "ORD1"
	assert.True(t, c.HasPendingOrder(PendingBuy))
	assert.False(t, c.HasPendingOrder(PendingSell))
}
