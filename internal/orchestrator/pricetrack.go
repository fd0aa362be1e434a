package orchestrator

import (
	"time"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/feed"
	"github.com/candletrader/engine/internal/risk"
)

// onTick is registered with Scanner.SetTickHandler and PriceFeed's
// subscribe calls so a live price keeps flowing into the store between
// scan cycles and evaluator passes — otherwise current_price, the
// max/min-price-seen high-water marks, unrealized P&L, and the trailing
// stop ratchet would only ever update at scan time or on a fill, even
// though they're meant to track the market continuously.
func (o *Orchestrator) onTick(t feed.Tick) {
	_ = o.store.Mutate(t.StockCode, func(live *candidate.Candidate) error {
		live.CurrentPrice = t.CurrentPrice
		live.LastPriceUpdate = time.Now()

		if live.Status != candidate.StatusEntered {
			return nil
		}
		if live.EntryPrice <= 0 || live.EntryQuantity <= 0 {
			return nil
		}

		live.MaxPriceSeen, live.MinPriceSeen = risk.TrackHighLow(live.MaxPriceSeen, live.MinPriceSeen, t.CurrentPrice)
		live.UnrealizedPnL = (t.CurrentPrice - live.EntryPrice) * float64(live.EntryQuantity)
		live.UnrealizedPnLPct = (t.CurrentPrice - live.EntryPrice) / live.EntryPrice

		if live.Risk.TrailingStopPct > 0 {
			live.Risk.StopLossPrice = risk.TrailingStop(live.MaxPriceSeen, live.Risk.TrailingStopPct, live.Risk.StopLossPrice)
		}
		return nil
	})
}
