package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrawdownGuardAllowsTradingBelowLimit(t *testing.T) {
	g := NewDrawdownGuard(0.05)
	g.UpdateBalance(10_000_000)
	g.RegisterClose(-100_000) // -1%

	ok, reason := g.CanTrade()
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestDrawdownGuardBlocksTradingAtOrAboveLimit(t *testing.T) {
	g := NewDrawdownGuard(0.05)
	g.UpdateBalance(10_000_000)
	g.RegisterClose(-500_000) // exactly -5%

	ok, reason := g.CanTrade()
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestDrawdownGuardAccumulatesMultipleCloses(t *testing.T) {
	g := NewDrawdownGuard(0.05)
	g.UpdateBalance(10_000_000)
	g.RegisterClose(-200_000)
	g.RegisterClose(-200_000)
	g.RegisterClose(-200_000)

	ok, _ := g.CanTrade()
	assert.False(t, ok)
	assert.Equal(t, -600_000.0, g.DailyPnL())
}

func TestDrawdownGuardDisabledWithNonPositiveCap(t *testing.T) {
	g := NewDrawdownGuard(0)
	g.UpdateBalance(10_000_000)
	g.RegisterClose(-5_000_000)

	ok, _ := g.CanTrade()
	assert.True(t, ok)
}

func TestDrawdownGuardNoLimitWithoutBalance(t *testing.T) {
	g := NewDrawdownGuard(0.05)
	g.RegisterClose(-1_000_000)

	ok, _ := g.CanTrade()
	assert.True(t, ok)
}

func TestDrawdownGuardProfitableCloseReducesDrawdown(t *testing.T) {
	g := NewDrawdownGuard(0.05)
	g.UpdateBalance(10_000_000)
	g.RegisterClose(-500_000)
	g.RegisterClose(300_000)

	assert.Equal(t, -200_000.0, g.DailyPnL())
	ok, _ := g.CanTrade()
	assert.True(t, ok)
}
