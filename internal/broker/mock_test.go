package broker

import (
	"context"
	"testing"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientCurrentPriceIsPositive(t *testing.T) {
	client := NewMockClient([]string{"005930"}, 10_000_000)
	ctx := context.Background()

	q1, err := client.CurrentPrice(ctx, "005930")
	require.NoError(t, err)
	assert.True(t, q1.CurrentPrice > 0)
}

func TestMockClientDailyChartReturnsTwentyBarsMostRecentFirst(t *testing.T) {
	client := NewMockClient([]string{"005930"}, 10_000_000)
	bars, err := client.DailyChart(context.Background(), "005930", PeriodDay, false)
	require.NoError(t, err)
	require.Len(t, bars, 20)
	assert.Len(t, bars[0].Date, 8) // YYYYMMDD
}

func TestMockClientOrderBuyDebitsAvailableCash(t *testing.T) {
	client := NewMockClient([]string{"005930"}, 1_000_000)
	result, err := client.OrderBuy(context.Background(), "005930", 10, 50000)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.OrderNo)

	bal, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500000.0, bal.AvailableAmount)
}

func TestMockClientOrderBuyRejectsInsufficientFunds(t *testing.T) {
	client := NewMockClient([]string{"005930"}, 1000)
	result, err := client.OrderBuy(context.Background(), "005930", 10, 50000)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestMockClientOrderSellCreditsAvailableCash(t *testing.T) {
	client := NewMockClient([]string{"005930"}, 1_000_000)
	_, err := client.OrderSell(context.Background(), "005930", 10, 50000)
	require.NoError(t, err)

	bal, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1_500_000.0, bal.AvailableAmount)
}

func TestMockClientRankEndpointsReturnTheSameUniverse(t *testing.T) {
	universe := []string{"005930", "000660"}
	client := NewMockClient(universe, 1_000_000)

	rates, err := client.RankFluctuation(context.Background(), candidate.KOSPI, 0)
	require.NoError(t, err)
	assert.Len(t, rates, 2)

	volumes, err := client.RankVolume(context.Background(), candidate.KOSPI, 0)
	require.NoError(t, err)
	assert.Len(t, volumes, 2)
}

func TestMockClientSatisfiesClientInterface(t *testing.T) {
	var _ Client = NewMockClient(nil, 0)
}
