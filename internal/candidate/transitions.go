package candidate

import "fmt"

// legalTransitions encodes the candidate lifecycle's status graph.
// SELL_READY is a transient evaluator label, not a store-persisted state
// reached via Transition — ExitManager reads it off the evaluator's
// output directly.
var legalTransitions = map[Status]map[Status]bool{
	StatusScanning: {
		StatusWatching: true,
		StatusBuyReady: true, // scanner may seed directly-actionable candidates
	},
	StatusWatching: {
		StatusBuyReady: true,
		StatusStopped:  true,
	},
	StatusBuyReady: {
		StatusWatching:     true,
		StatusPendingOrder: true,
		StatusStopped:      true,
	},
	StatusPendingOrder: {
		StatusEntered:  true, // buy fill, or sell reject reverting to the held state
		StatusBuyReady: true, // buy reject
		StatusExited:   true, // sell fill
		StatusStopped:  true,
	},
	StatusEntered: {
		StatusPendingOrder: true,
		StatusExited:        true, // forced exit (missing holding, invariant violation)
		StatusStopped:       true,
	},
	StatusExited:  {},
	StatusStopped: {},
}

// CanTransition reports whether status `from` may legally move to `to`.
// PENDING_ORDER is reachable from both BUY_READY and ENTERED, and resolves
// back to either depending on which side's order was outstanding; callers
// disambiguate via the PendingOrderType already recorded on the candidate,
// so this function only checks graph membership, not order-kind context.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	next, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Transition moves the candidate to `to` if legal, else returns an
// error. Callers that detect an impossible transition should log
// the full candidate snapshot and force EXITED+STOPPED.
func (c *Candidate) Transition(to Status) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("%s: illegal status transition %s -> %s", c.StockCode, c.Status, to)
	}
	c.Status = to
	return nil
}
