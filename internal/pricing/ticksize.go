// Package pricing implements Korean-equity price conventions: the tick-size
// schedule and the exit-side safe-sell-price calculation.
package pricing

import "math"

// AlignDownToTick rounds price down to the nearest legal tick for its
// price band, per the KRX tick-size schedule.
func AlignDownToTick(price float64) float64 {
	tick := TickSizeFor(price)
	return math.Floor(price/tick) * tick
}

// TickSizeFor returns the minimum price increment for the given price's
// band.
func TickSizeFor(price float64) float64 {
	switch {
	case price >= 500000:
		return 1000
	case price >= 100000:
		return 500
	case price >= 50000:
		return 100
	case price >= 10000:
		return 50
	case price >= 5000:
		return 10
	case price >= 1000:
		return 5
	default:
		return 1
	}
}

// SellReason is the cause driving an exit, used to pick the safe-sell
// discount multiplier.
type SellReason string

const (
	ReasonStopLoss SellReason = "stop_loss"
	ReasonTarget   SellReason = "target"
	ReasonProfit   SellReason = "profit"
	ReasonTime     SellReason = "time"
)

// discountMultiplier returns the reason-specific fraction of current price
// to submit the limit sell at.
func discountMultiplier(reason SellReason) float64 {
	switch reason {
	case ReasonStopLoss:
		return 0.992
	case ReasonTarget, ReasonProfit:
		return 0.998
	case ReasonTime:
		return 0.995
	default:
		return 0.997
	}
}

// SafeSellPrice computes the limit-sell price for a given exit reason: a
// reason-specific discount off current price, aligned down to the legal
// tick, then floored at a reason-specific percentage of current price so
// the order never chases the market down unreasonably far.
func SafeSellPrice(currentPrice float64, reason SellReason) float64 {
	raw := currentPrice * discountMultiplier(reason)
	aligned := AlignDownToTick(raw)

	floorPct := 0.97
	if reason == ReasonTarget || reason == ReasonProfit {
		floorPct = 0.99
	}
	floor := currentPrice * floorPct

	if aligned < floor {
		return AlignDownToTick(floor)
	}
	return aligned
}
