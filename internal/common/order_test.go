package common

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestOrderValidate_Limit(t *testing.T) {
	o := &Order{ID: "1", Symbol: "AAPL", Type: LimitOrder, Price: dec("100"), Quantity: dec("10")}
	require.NoError(t, o.Validate())
	assert.True(t, o.Remaining.Equal(dec("10")))

	bad := &Order{ID: "1", Symbol: "AAPL", Type: LimitOrder, Price: dec("0"), Quantity: dec("10")}
	require.Error(t, bad.Validate())
}

func TestOrderValidate_Market(t *testing.T) {
	o := &Order{ID: "1", Symbol: "AAPL", Type: MarketOrder, Quantity: dec("10")}
	require.NoError(t, o.Validate())

	bad := &Order{ID: "1", Symbol: "AAPL", Type: MarketOrder, Price: dec("5"), Quantity: dec("10")}
	require.Error(t, bad.Validate())
}

func TestOrderValidate_MissingFields(t *testing.T) {
	noID := &Order{Symbol: "AAPL", Type: LimitOrder, Price: dec("1"), Quantity: dec("1")}
	assert.True(t, errors.Is(noID.Validate(), ErrInvalidOrder))

	noSymbol := &Order{ID: "1", Type: LimitOrder, Price: dec("1"), Quantity: dec("1")}
	assert.True(t, errors.Is(noSymbol.Validate(), ErrInvalidOrder))

	noQty := &Order{ID: "1", Symbol: "AAPL", Type: LimitOrder, Price: dec("1")}
	assert.True(t, errors.Is(noQty.Validate(), ErrInvalidOrder))
}

func TestOrderValidate_StopLoss(t *testing.T) {
	o := &Order{ID: "1", Symbol: "AAPL", Type: StopLossOrder, StopPrice: dec("90"), Quantity: dec("5")}
	require.NoError(t, o.Validate())

	bad := &Order{ID: "1", Symbol: "AAPL", Type: StopLossOrder, Quantity: dec("5")}
	require.Error(t, bad.Validate())
}

func TestOrderValidate_StopLimit(t *testing.T) {
	o := &Order{ID: "1", Symbol: "AAPL", Type: StopLimitOrder, StopPrice: dec("90"), LimitPrice: dec("89"), Quantity: dec("5")}
	require.NoError(t, o.Validate())

	missingLimit := &Order{ID: "1", Symbol: "AAPL", Type: StopLimitOrder, StopPrice: dec("90"), Quantity: dec("5")}
	require.Error(t, missingLimit.Validate())
}

func TestOrderValidate_TrailingStop(t *testing.T) {
	o := &Order{ID: "1", Symbol: "AAPL", Type: TrailingStopOrder, TrailingOffset: dec("2"), Quantity: dec("5")}
	require.NoError(t, o.Validate())

	bad := &Order{ID: "1", Symbol: "AAPL", Type: TrailingStopOrder, Quantity: dec("5")}
	require.Error(t, bad.Validate())
}

func TestOrderValidate_Iceberg(t *testing.T) {
	o := &Order{
		ID: "1", Symbol: "AAPL", Type: IcebergOrder,
		Price: dec("100"), DisplayQuantity: dec("10"), TotalQuantity: dec("100"),
		Quantity: dec("100"),
	}
	require.NoError(t, o.Validate())
	assert.True(t, o.Remaining.Equal(dec("100")))

	badDisplayGreaterThanTotal := &Order{
		ID: "1", Symbol: "AAPL", Type: IcebergOrder,
		Price: dec("100"), DisplayQuantity: dec("50"), TotalQuantity: dec("10"),
		Quantity: dec("10"),
	}
	require.Error(t, badDisplayGreaterThanTotal.Validate())
}

func TestOrder_IsMarketable(t *testing.T) {
	market := &Order{Type: MarketOrder}
	limit := &Order{Type: LimitOrder}
	assert.True(t, market.IsMarketable())
	assert.False(t, limit.IsMarketable())
}

func TestOrder_CancelTombstone(t *testing.T) {
	o := &Order{ID: "1"}
	assert.False(t, o.Canceled())
	o.MarkCanceled()
	assert.True(t, o.Canceled())
}
