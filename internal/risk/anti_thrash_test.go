package risk

import (
	"testing"
	"time"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/stretchr/testify/assert"
)

func TestAllowFirstAdjustmentAlwaysAllowed(t *testing.T) {
	g := NewAdjustmentGuard()
	now := time.Now()
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now))
}

func TestAllowRejectsAfterThreeConsecutiveSameDirectionWithinCooldown(t *testing.T) {
	g := NewAdjustmentGuard()
	now := time.Now()

	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(10*time.Second)))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(20*time.Second)))
	// fourth same-direction adjustment inside the 300s cooldown is rejected
	assert.False(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(30*time.Second)))
}

func TestAllowResetsConsecutiveCountAfterCooldownElapses(t *testing.T) {
	g := NewAdjustmentGuard()
	now := time.Now()

	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(10*time.Second)))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(20*time.Second)))

	// outside the cooldown window, the consecutive streak no longer blocks
	later := now.Add(400 * time.Second)
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, later))
}

func TestAllowDirectionChangeAlwaysAllowed(t *testing.T) {
	g := NewAdjustmentGuard()
	now := time.Now()

	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(5*time.Second)))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(10*time.Second)))
	assert.True(t, g.Allow("005930", candidate.AdjustDown, false, now.Add(15*time.Second)))
}

func TestAllowTighteningToSafetyBypassesCooldown(t *testing.T) {
	g := NewAdjustmentGuard()
	now := time.Now()

	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(5*time.Second)))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(10*time.Second)))
	// a 4th same-direction adjustment would normally be rejected, but
	// tightening toward safety is never blocked
	assert.True(t, g.Allow("005930", candidate.AdjustUp, true, now.Add(15*time.Second)))
}

func TestAllowIsPerSymbol(t *testing.T) {
	g := NewAdjustmentGuard()
	now := time.Now()

	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(5*time.Second)))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(10*time.Second)))
	assert.False(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(15*time.Second)))

	// a different symbol has its own independent history
	assert.True(t, g.Allow("000660", candidate.AdjustUp, false, now.Add(15*time.Second)))
}

func TestResetClearsHistory(t *testing.T) {
	g := NewAdjustmentGuard()
	now := time.Now()

	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(5*time.Second)))
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(10*time.Second)))
	g.Reset("005930")

	// after reset the symbol behaves as never-before-seen
	assert.True(t, g.Allow("005930", candidate.AdjustUp, false, now.Add(15*time.Second)))
}
