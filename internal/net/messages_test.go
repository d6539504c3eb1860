package net

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
)

func appendFloatBytes(buf []byte, v float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return append(buf, b[:]...)
}

func TestParseNewOrder_RoundTrip(t *testing.T) {
	msg := NewOrderMessage{
		BaseMessage: BaseMessage{TypeOf: NewOrder},
		OrderType:   common.LimitOrder,
		Side:        common.Buy,
		TIF:         common.GTC,
		SymbolLen:   4,
		Price:       100.5,
		Quantity:    10,
		UsernameLen: 5,
		Symbol:      "AAPL",
		Username:    "alice",
	}

	buf := make([]byte, 0, newOrderFixedLen+len(msg.Symbol)+len(msg.Username))
	buf = append(buf, byte(msg.OrderType), byte(msg.Side), byte(msg.TIF), msg.SymbolLen)
	buf = appendFloatBytes(buf, msg.Price)
	buf = appendFloatBytes(buf, msg.StopPrice)
	buf = appendFloatBytes(buf, msg.LimitPrice)
	buf = appendFloatBytes(buf, msg.TrailingOffset)
	buf = appendFloatBytes(buf, msg.Quantity)
	buf = appendFloatBytes(buf, msg.DisplayQuantity)
	buf = appendFloatBytes(buf, msg.TotalQuantity)
	buf = append(buf, msg.UsernameLen)
	buf = append(buf, []byte(msg.Symbol)...)
	buf = append(buf, []byte(msg.Username)...)

	parsed, err := parseNewOrder(buf)
	require.NoError(t, err)
	assert.Equal(t, msg.Symbol, parsed.Symbol)
	assert.Equal(t, msg.Username, parsed.Username)
	assert.Equal(t, msg.OrderType, parsed.OrderType)
	assert.InDelta(t, msg.Price, parsed.Price, 0.0001)

	order, err := parsed.Order()
	require.NoError(t, err)
	assert.Equal(t, "AAPL", order.Symbol)
	assert.Equal(t, "alice", order.TraderID)
	assert.NotEmpty(t, order.ID)
}

func TestParseNewOrder_TooShort(t *testing.T) {
	_, err := parseNewOrder([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMessageTooShort)
}

func TestParseCancelOrder_RoundTrip(t *testing.T) {
	buf := []byte{4, 0, 6}
	buf = append(buf, []byte("AAPL")...)
	buf = append(buf, []byte("order1")...)

	parsed, err := parseCancelOrder(buf)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", parsed.Symbol)
	assert.Equal(t, "order1", parsed.OrderID)
}

func TestParseMessage_Heartbeat(t *testing.T) {
	buf := []byte{0, 0}
	msg, err := parseMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, Heartbeat, msg.GetType())
}

func TestReportSerialize_RoundTripLengths(t *testing.T) {
	r := Report{
		MessageType: ExecutionReport,
		Side:        common.Buy,
		Quantity:    10,
		Price:       100,
		SymbolLen:   4,
		OrderIDLen:  6,
		Symbol:      "AAPL",
		OrderID:     "order1",
	}
	buf, err := r.Serialize()
	require.NoError(t, err)
	assert.Equal(t, reportFixedHeaderLen+len("AAPL")+len("order1"), len(buf))
}

func TestGenerateWireTradeReports(t *testing.T) {
	trade := common.Trade{
		ID:           1,
		Symbol:       "AAPL",
		Price:        decimal.NewFromInt(100),
		Quantity:     decimal.NewFromInt(10),
		TakerOrderID: "taker1",
		MakerOrderID: "maker1",
		TakerSide:    common.Buy,
	}
	takerBytes, makerBytes, err := generateWireTradeReports(trade)
	require.NoError(t, err)
	assert.NotEmpty(t, takerBytes)
	assert.NotEmpty(t, makerBytes)
}
