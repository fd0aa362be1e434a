package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawFrameSplitsHeaderAndPayload(t *testing.T) {
	f, err := parseRawFrame("0|H0STCNT0|1|payload-data")
	require.NoError(t, err)
	assert.Equal(t, "0", f.EncryptionFlag)
	assert.Equal(t, "H0STCNT0", f.TRID)
	assert.Equal(t, 1, f.Count)
	assert.Equal(t, "payload-data", f.Payload)
}

func TestParseRawFrameRejectsShortHeader(t *testing.T) {
	_, err := parseRawFrame("0|H0STCNT0")
	assert.Error(t, err)
}

func TestParseRawFrameDefaultsCountOnNonNumeric(t *testing.T) {
	f, err := parseRawFrame("0|H0STCNT0|bad|payload")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Count)
}

func tickFields(stockCode, price, changePct, volume string) []string {
	fields := make([]string, 19)
	fields[tickFieldStockCode] = stockCode
	fields[tickFieldPrice] = price
	fields[tickFieldChangePct] = changePct
	fields[tickFieldVolume] = volume
	return fields
}

func TestParseTickRecordExtractsKnownFields(t *testing.T) {
	tick, err := parseTickRecord(tickFields("005930", "71500", "1.25", "1234567"))
	require.NoError(t, err)
	assert.Equal(t, "005930", tick.StockCode)
	assert.Equal(t, 71500.0, tick.CurrentPrice)
	assert.Equal(t, 1.25, tick.ChangePct)
	assert.Equal(t, 1234567.0, tick.AccumulatedVolume)
}

func TestParseTickRecordRejectsMissingStockCode(t *testing.T) {
	_, err := parseTickRecord(tickFields("", "71500", "1.25", "1234567"))
	assert.Error(t, err)
}

func TestParseTickRecordRejectsShortRecord(t *testing.T) {
	_, err := parseTickRecord([]string{"005930", "x"})
	assert.Error(t, err)
}

func bookFields(stockCode, askSize, bidSize string) []string {
	fields := make([]string, 44)
	fields[bookFieldStockCode] = stockCode
	fields[bookFieldAskSize] = askSize
	fields[bookFieldBidSize] = bidSize
	return fields
}

func TestParseBookRecordExtractsTopOfBook(t *testing.T) {
	book, err := parseBookRecord(bookFields("005930", "300", "450"))
	require.NoError(t, err)
	assert.Equal(t, "005930", book.StockCode)
	assert.Equal(t, 300.0, book.AskSize)
	assert.Equal(t, 450.0, book.BidSize)
}

func TestParseBookRecordRejectsShortRecord(t *testing.T) {
	_, err := parseBookRecord(nil)
	assert.Error(t, err)
}

func execRecord(sideCode, stockCode, orderNo, qty, price, execTime, fillFlag string) string {
	fields := make([]string, 14)
	fields[execFieldSideCode] = sideCode
	fields[execFieldStockCode] = stockCode
	fields[execFieldOrderNo] = orderNo
	fields[execFieldQuantity] = qty
	fields[execFieldPrice] = price
	fields[execFieldTime] = execTime
	fields[execFieldFillFlag] = fillFlag
	return strings.Join(fields, "^")
}

func TestParseExecutionNoticeDecodesBuyFill(t *testing.T) {
	notice, ok := parseExecutionNotice(execRecord("02", "005930", "ORD-1", "10", "71500", "093015", "2"))
	require.True(t, ok)
	assert.Equal(t, "005930", notice.StockCode)
	assert.Equal(t, "ORD-1", notice.OrderNo)
	assert.Equal(t, SideBuy, notice.Side)
	assert.Equal(t, 10, notice.Quantity)
	assert.Equal(t, 71500.0, notice.Price)
	assert.True(t, notice.IsFill)
}

func TestParseExecutionNoticeDecodesSellFill(t *testing.T) {
	notice, ok := parseExecutionNotice(execRecord("01", "005930", "ORD-2", "5", "72000", "100000", "2"))
	require.True(t, ok)
	assert.Equal(t, SideSell, notice.Side)
}

func TestParseExecutionNoticeRejectsNonFillFlag(t *testing.T) {
	_, ok := parseExecutionNotice(execRecord("02", "005930", "ORD-1", "10", "71500", "093015", "1"))
	assert.False(t, ok)
}

func TestParseExecutionNoticeRejectsUnknownSideCode(t *testing.T) {
	_, ok := parseExecutionNotice(execRecord("99", "005930", "ORD-1", "10", "71500", "093015", "2"))
	assert.False(t, ok)
}

func TestParseExecutionNoticeRejectsMissingStockCodeOrOrderNo(t *testing.T) {
	_, ok := parseExecutionNotice(execRecord("02", "", "ORD-1", "10", "71500", "093015", "2"))
	assert.False(t, ok)
}

func TestParseExecutionNoticeRejectsShortRecord(t *testing.T) {
	_, ok := parseExecutionNotice("02^005930")
	assert.False(t, ok)
}

func TestParseExecutionTimeParsesWallClockInKST(t *testing.T) {
	got := parseExecutionTime("093015")
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, 30, got.Minute())
	assert.Equal(t, 15, got.Second())
}

func TestParseExecutionTimeFallsBackToNowOnEmpty(t *testing.T) {
	before := time.Now()
	got := parseExecutionTime("")
	assert.True(t, !got.Before(before))
}

func TestParseExecutionTimeFallsBackToNowOnBadFormat(t *testing.T) {
	got := parseExecutionTime("not-a-time")
	assert.WithinDuration(t, time.Now(), got, 5*time.Second)
}

func TestIsPingPongDetectsPingPongHeader(t *testing.T) {
	assert.True(t, isPingPong([]byte(`{"header":{"tr_id":"PINGPONG"}}`)))
	assert.False(t, isPingPong([]byte(`{"header":{"tr_id":"H0STCNT0"}}`)))
}

func TestIsPingPongToleratesMalformedJSON(t *testing.T) {
	assert.False(t, isPingPong([]byte(`not json`)))
}

func TestParseControlFrameExtractsKeyAndIV(t *testing.T) {
	raw := []byte(`{"header":{"tr_id":"H0STCNT0"},"body":{"rt_cd":"0","msg1":"OK","output":{"key":"abc","iv":"def"}}}`)
	c, err := parseControlFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, "H0STCNT0", c.Header.TRID)
	assert.Equal(t, "0", c.Body.ReturnCode)
	require.NotNil(t, c.Body.Output)
	assert.Equal(t, "abc", c.Body.Output.Key)
	assert.Equal(t, "def", c.Body.Output.IV)
}

func TestParseControlFrameRejectsMalformedJSON(t *testing.T) {
	_, err := parseControlFrame([]byte(`not json`))
	assert.Error(t, err)
}

func TestFieldAtReturnsEmptyOutOfRange(t *testing.T) {
	assert.Equal(t, "", fieldAt([]string{"a", "b"}, 5))
	assert.Equal(t, "", fieldAt([]string{"a", "b"}, -1))
	assert.Equal(t, "b", fieldAt([]string{"a", "b"}, 1))
}

func TestParseFloatTolerantHandlesEmptyAndInvalid(t *testing.T) {
	assert.Equal(t, 0.0, parseFloatTolerant(""))
	assert.Equal(t, 0.0, parseFloatTolerant("not-a-number"))
	assert.Equal(t, 123.45, parseFloatTolerant("123.45"))
}
