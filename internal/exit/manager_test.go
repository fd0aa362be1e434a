package exit

import (
	"context"
	"testing"
	"time"

	"github.com/candletrader/engine/internal/broker"
	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/pricing"
	"github.com/candletrader/engine/internal/store"
	"github.com/candletrader/engine/internal/tradingwindow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enteredCandidate(code string, price float64, qty int) *candidate.Candidate {
	c := candidate.New(code, code+"-name", candidate.KOSPI)
	c.Status = candidate.StatusEntered
	c.CurrentPrice = price
	c.EntryQuantity = qty
	entryTime := time.Now().Add(-time.Hour)
	c.EntryTime = &entryTime
	return c
}

func TestExitReasonStrongSellIsStopLoss(t *testing.T) {
	m := New(nil, nil, nil, tradingwindow.Window{}, nil, Config{})
	c := enteredCandidate("005930", 50000, 10)
	c.TradeSignal = candidate.StrongSell

	reason, trigger := m.exitReason(c)
	assert.True(t, trigger)
	assert.Equal(t, pricing.ReasonStopLoss, reason)
}

func TestExitReasonSellIsTarget(t *testing.T) {
	m := New(nil, nil, nil, tradingwindow.Window{}, nil, Config{})
	c := enteredCandidate("005930", 50000, 10)
	c.TradeSignal = candidate.Sell

	reason, trigger := m.exitReason(c)
	assert.True(t, trigger)
	assert.Equal(t, pricing.ReasonTarget, reason)
}

func TestExitReasonHoldFiresTimeExitPastMaxHolding(t *testing.T) {
	w, err := tradingwindow.Parse("00:00", "23:59")
	require.NoError(t, err)
	m := New(nil, nil, nil, w, nil, Config{})

	c := enteredCandidate("005930", 50000, 10)
	c.TradeSignal = candidate.Hold
	past := time.Now().AddDate(0, 0, -10) // comfortably more than one max-holding window ago, regardless of weekday
	c.EntryTime = &past
	c.PrimaryPattern = &candidate.PatternInfo{MaxHoldingHours: 24}

	reason, trigger := m.exitReason(c)
	assert.True(t, trigger)
	assert.Equal(t, pricing.ReasonTime, reason)
}

func TestExitReasonNoTriggerWithoutPatternOrEntryTime(t *testing.T) {
	m := New(nil, nil, nil, tradingwindow.Window{}, nil, Config{})
	c := enteredCandidate("005930", 50000, 10)
	c.TradeSignal = candidate.Hold
	c.EntryTime = nil

	_, trigger := m.exitReason(c)
	assert.False(t, trigger)
}

func TestEvaluateForceExitsCandidateWithNoQuantity(t *testing.T) {
	st := store.New(0, 0)
	c := enteredCandidate("005930", 50000, 0)
	require.NoError(t, st.Add(c))

	m := New(nil, st, nil, tradingwindow.Window{}, nil, Config{})
	m.evaluate(context.Background(), c)

	got, _ := st.Get("005930")
	assert.Equal(t, candidate.StatusExited, got.Status)
	assert.Equal(t, "no_system_quantity", got.ExitReason)
}

func TestEvaluateSubmitsSellOrderOnStrongSell(t *testing.T) {
	st := store.New(0, 0)
	client := broker.NewMockClient([]string{"005930"}, 10_000_000)
	c := enteredCandidate("005930", 50000, 10)
	c.TradeSignal = candidate.StrongSell
	require.NoError(t, st.Add(c))

	m := New(client, st, nil, tradingwindow.Window{}, nil, Config{})
	m.evaluate(context.Background(), c)

	got, _ := st.Get("005930")
	assert.Equal(t, candidate.StatusPendingOrder, got.Status)
	assert.NotEmpty(t, got.PendingSellOrderNo)
}

func TestEvaluateSkipsAlreadyFinalizedCandidate(t *testing.T) {
	st := store.New(0, 0)
	c := enteredCandidate("005930", 50000, 10)
	c.TradeSignal = candidate.StrongSell
	c.Metadata["final_exit_confirmed"] = true
	require.NoError(t, st.Add(c))

	m := New(nil, st, nil, tradingwindow.Window{}, nil, Config{})
	m.evaluate(context.Background(), c)

	got, _ := st.Get("005930")
	assert.Equal(t, candidate.StatusEntered, got.Status)
}

// quantityExceededClient always rejects sells as oversized.
type quantityExceededClient struct {
	broker.Client
}

func (q quantityExceededClient) OrderSell(ctx context.Context, stockCode string, quantity int, price float64) (broker.OrderResult, error) {
	return broker.OrderResult{Success: false, Error: "QUANTITY-EXCEEDED: max sell size"}, nil
}

func TestEvaluateForceExitsOnQuantityExceeded(t *testing.T) {
	st := store.New(0, 0)
	c := enteredCandidate("005930", 50000, 10)
	c.TradeSignal = candidate.StrongSell
	require.NoError(t, st.Add(c))

	m := New(quantityExceededClient{}, st, nil, tradingwindow.Window{}, nil, Config{})
	m.evaluate(context.Background(), c)

	got, _ := st.Get("005930")
	assert.Equal(t, candidate.StatusExited, got.Status)
	assert.Equal(t, "quantity_exceeded", got.Metadata["auto_exit_reason"])
}
