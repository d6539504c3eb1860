package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	"fenrir/internal/trader"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng := New(Config{Strategy: common.FIFO, MakerFee: decimal.Zero, TakerFee: decimal.Zero})
	require.NoError(t, eng.AddOrderBook("AAPL"))
	return eng
}

func registerTrader(t *testing.T, eng *Engine, id string, balance string, risk trader.RiskConfig) *trader.Trader {
	t.Helper()
	tr := trader.New(id, dec(balance), risk)
	require.NoError(t, eng.RegisterTrader(tr))
	return tr
}

func newLimit(id, symbol string, side common.Side, price, qty, trader string) *common.Order {
	return &common.Order{
		ID: id, Symbol: symbol, Side: side, Type: common.LimitOrder,
		Price: dec(price), Quantity: dec(qty), TraderID: trader,
	}
}

func newMarket(id, symbol string, side common.Side, qty, trader string) *common.Order {
	return &common.Order{
		ID: id, Symbol: symbol, Side: side, Type: common.MarketOrder,
		Quantity: dec(qty), TraderID: trader,
	}
}

func TestSubmitOrder_BasicMatch(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "buyer", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "seller", "100000", trader.RiskConfig{})

	_, err := eng.SubmitOrder(newLimit("s1", "AAPL", common.Sell, "100", "10", "seller"))
	require.NoError(t, err)
	_, err = eng.SubmitOrder(newLimit("b1", "AAPL", common.Buy, "100", "10", "buyer"))
	require.NoError(t, err)

	trades := eng.Trades()
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(dec("100")))
	assert.True(t, trades[0].Quantity.Equal(dec("10")))

	book, _ := eng.Book("AAPL")
	_, hasAsk := book.BestAsk()
	assert.False(t, hasAsk, "resting ask should be fully consumed")
}

func TestSubmitOrder_PriceTimePriority(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "s1", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "s2", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "buyer", "100000", trader.RiskConfig{})

	_, err := eng.SubmitOrder(newLimit("ask1", "AAPL", common.Sell, "100", "5", "s1"))
	require.NoError(t, err)
	_, err = eng.SubmitOrder(newLimit("ask2", "AAPL", common.Sell, "100", "5", "s2"))
	require.NoError(t, err)

	_, err = eng.SubmitOrder(newLimit("buy1", "AAPL", common.Buy, "100", "5", "buyer"))
	require.NoError(t, err)

	trades := eng.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "ask1", trades[0].MakerOrderID, "earliest resting order should fill first")
}

func TestSubmitOrder_MarketSweep(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "s1", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "s2", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "buyer", "100000", trader.RiskConfig{})

	_, err := eng.SubmitOrder(newLimit("ask1", "AAPL", common.Sell, "100", "5", "s1"))
	require.NoError(t, err)
	_, err = eng.SubmitOrder(newLimit("ask2", "AAPL", common.Sell, "101", "5", "s2"))
	require.NoError(t, err)

	_, err = eng.SubmitOrder(newMarket("buyM", "AAPL", common.Buy, "8", "buyer"))
	require.NoError(t, err)

	trades := eng.Trades()
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(dec("100")))
	assert.True(t, trades[1].Price.Equal(dec("101")))

	book, _ := eng.Book("AAPL")
	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Remaining.Equal(dec("2")))
}

func TestSubmitOrder_MarketRejectedWhenBookEmpty(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "buyer", "100000", trader.RiskConfig{})

	_, err := eng.SubmitOrder(newMarket("buyM", "AAPL", common.Buy, "8", "buyer"))
	assert.ErrorIs(t, err, common.ErrUnmatchableMarket)
}

func TestSubmitOrder_IOCResidualCanceled(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "s1", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "buyer", "100000", trader.RiskConfig{})

	_, err := eng.SubmitOrder(newLimit("ask1", "AAPL", common.Sell, "100", "5", "s1"))
	require.NoError(t, err)

	ioc := newLimit("buyIOC", "AAPL", common.Buy, "100", "10", "buyer")
	ioc.TIF = common.IOC
	_, err = eng.SubmitOrder(ioc)
	require.NoError(t, err)

	book, _ := eng.Book("AAPL")
	_, hasBid := book.BestBid()
	assert.False(t, hasBid, "IOC residual must not rest")
}

func TestSubmitOrder_StopLossTrigger(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "s1", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "s2", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "buyer", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "stopper", "100000", trader.RiskConfig{})

	// Seed a last trade price at 100.
	_, err := eng.SubmitOrder(newLimit("ask0", "AAPL", common.Sell, "100", "1", "s1"))
	require.NoError(t, err)
	_, err = eng.SubmitOrder(newLimit("buy0", "AAPL", common.Buy, "100", "1", "buyer"))
	require.NoError(t, err)

	stop := &common.Order{
		ID: "stop1", Symbol: "AAPL", Side: common.Sell, Type: common.StopLossOrder,
		StopPrice: dec("95"), Quantity: dec("5"), TraderID: "stopper",
	}
	_, err = eng.SubmitOrder(stop)
	require.NoError(t, err)

	// Resting bid the triggered market sell can hit.
	_, err = eng.SubmitOrder(newLimit("bid1", "AAPL", common.Buy, "90", "5", "buyer"))
	require.NoError(t, err)
	// Resting ask at 94 for the market buy below to trade against.
	_, err = eng.SubmitOrder(newLimit("ask1", "AAPL", common.Sell, "94", "5", "s2"))
	require.NoError(t, err)
	// Drag the market down through 95 to trigger the stop.
	_, err = eng.SubmitOrder(newMarket("buyM", "AAPL", common.Buy, "5", "buyer"))
	require.NoError(t, err)

	trades := eng.Trades()
	var stopFired bool
	for _, tr := range trades {
		if tr.TakerOrderID == "stop1" || tr.MakerOrderID == "stop1" {
			stopFired = true
		}
	}
	assert.True(t, stopFired, "stop-loss should have converted to a market order and traded")
}

func TestSubmitOrder_IcebergReplenishment(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "iceberger", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "buyer", "100000", trader.RiskConfig{})

	iceberg := &common.Order{
		ID: "ice1", Symbol: "AAPL", Side: common.Sell, Type: common.IcebergOrder,
		Price: dec("100"), DisplayQuantity: dec("5"), TotalQuantity: dec("15"),
		Quantity: dec("15"), TraderID: "iceberger",
	}
	_, err := eng.SubmitOrder(iceberg)
	require.NoError(t, err)

	book, _ := eng.Book("AAPL")
	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Remaining.Equal(dec("5")), "only the display slice should rest")

	_, err = eng.SubmitOrder(newLimit("buy1", "AAPL", common.Buy, "100", "5", "buyer"))
	require.NoError(t, err)

	ask2, ok := book.BestAsk()
	require.True(t, ok)
	assert.True(t, ask2.Remaining.Equal(dec("5")), "a fresh 5-unit slice should have replenished")
	assert.NotEqual(t, ask.ID, ask2.ID, "replenished child gets a fresh id")
}

func TestSubmitOrder_ProRataAllocation(t *testing.T) {
	eng := New(Config{Strategy: common.ProRata, MakerFee: decimal.Zero, TakerFee: decimal.Zero})
	require.NoError(t, eng.AddOrderBook("AAPL"))
	registerTrader(t, eng, "s1", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "s2", "100000", trader.RiskConfig{})
	registerTrader(t, eng, "buyer", "100000", trader.RiskConfig{})

	_, err := eng.SubmitOrder(newLimit("ask1", "AAPL", common.Sell, "100", "30", "s1"))
	require.NoError(t, err)
	_, err = eng.SubmitOrder(newLimit("ask2", "AAPL", common.Sell, "100", "10", "s2"))
	require.NoError(t, err)

	_, err = eng.SubmitOrder(newLimit("buy1", "AAPL", common.Buy, "100", "20", "buyer"))
	require.NoError(t, err)

	trades := eng.Trades()
	require.Len(t, trades, 2)
	var q1, q2 decimal.Decimal
	for _, tr := range trades {
		if tr.MakerOrderID == "ask1" {
			q1 = tr.Quantity
		}
		if tr.MakerOrderID == "ask2" {
			q2 = tr.Quantity
		}
	}
	assert.True(t, q1.Equal(dec("15")), "ask1 should get 30/40 * 20 = 15, got %s", q1)
	assert.True(t, q2.Equal(dec("5")), "ask2 should get 10/40 * 20 = 5, got %s", q2)
}

func TestSubmitOrder_RiskRejection_MaxOrderNotional(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "buyer", "100000", trader.RiskConfig{MaxOrderNotional: dec("500")})

	_, err := eng.SubmitOrder(newLimit("buy1", "AAPL", common.Buy, "100", "10", "buyer"))
	var riskErr *common.RiskRejectedError
	require.ErrorAs(t, err, &riskErr)
	assert.Equal(t, "max_order_notional", riskErr.Rule)
}

func TestSubmitOrder_RiskRejection_BuyerBalance(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "buyer", "50", trader.RiskConfig{})

	_, err := eng.SubmitOrder(newLimit("buy1", "AAPL", common.Buy, "100", "10", "buyer"))
	var riskErr *common.RiskRejectedError
	require.ErrorAs(t, err, &riskErr)
	assert.Equal(t, "buyer_balance", riskErr.Rule)
}

func TestSubmitOrder_RiskRejection_RiskPerTradeFraction(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "buyer", "100000", trader.RiskConfig{RiskPerTradeFraction: dec("0.005")})

	// notional 100*10=1000 exceeds 0.005 * 100000 equity = 500, but is well
	// under the trader's cash balance, so only this rule can fire.
	_, err := eng.SubmitOrder(newLimit("buy1", "AAPL", common.Buy, "100", "10", "buyer"))
	var riskErr *common.RiskRejectedError
	require.ErrorAs(t, err, &riskErr)
	assert.Equal(t, "risk_per_trade_fraction", riskErr.Rule)
}

func TestSubmitOrder_RiskRejection_MaxExposurePerSymbol(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "buyer", "1000000", trader.RiskConfig{MaxExposurePerSymbol: dec("5")})

	_, err := eng.SubmitOrder(newLimit("buy1", "AAPL", common.Buy, "100", "10", "buyer"))
	var riskErr *common.RiskRejectedError
	require.ErrorAs(t, err, &riskErr)
	assert.Equal(t, "max_exposure_per_symbol", riskErr.Rule)
}

func TestSubmitOrder_UnregisteredTraderSkipsRiskGate(t *testing.T) {
	eng := newTestEngine(t)
	// "buyer" never registered: risk gate should be skipped entirely.
	order := newLimit("buy1", "AAPL", common.Buy, "100", "10", "buyer")
	_, err := eng.SubmitOrder(order)
	require.NoError(t, err)
}

func TestCancelOrder_RestingLimit(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "s1", "100000", trader.RiskConfig{})
	_, err := eng.SubmitOrder(newLimit("ask1", "AAPL", common.Sell, "100", "10", "s1"))
	require.NoError(t, err)

	require.NoError(t, eng.CancelOrder("ask1", "AAPL"))
	assert.ErrorIs(t, eng.CancelOrder("ask1", "AAPL"), common.ErrNotFound)
}

func TestCancelOrder_PendingStop(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "stopper", "100000", trader.RiskConfig{})
	stop := &common.Order{
		ID: "stop1", Symbol: "AAPL", Side: common.Sell, Type: common.StopLossOrder,
		StopPrice: dec("90"), Quantity: dec("5"), TraderID: "stopper",
	}
	_, err := eng.SubmitOrder(stop)
	require.NoError(t, err)

	require.NoError(t, eng.CancelOrder("stop1", "AAPL"))
	assert.ErrorIs(t, eng.CancelOrder("stop1", "AAPL"), common.ErrNotFound)
}

func TestCancelOrder_IcebergParent(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "iceberger", "100000", trader.RiskConfig{})
	iceberg := &common.Order{
		ID: "ice1", Symbol: "AAPL", Side: common.Sell, Type: common.IcebergOrder,
		Price: dec("100"), DisplayQuantity: dec("5"), TotalQuantity: dec("15"),
		Quantity: dec("15"), TraderID: "iceberger",
	}
	_, err := eng.SubmitOrder(iceberg)
	require.NoError(t, err)

	require.NoError(t, eng.CancelOrder("ice1", "AAPL"))

	book, _ := eng.Book("AAPL")
	_, hasAsk := book.BestAsk()
	assert.False(t, hasAsk, "iceberg's active child should be canceled too")
}

func TestRegisterTrader_Duplicate(t *testing.T) {
	eng := newTestEngine(t)
	registerTrader(t, eng, "dup", "100", trader.RiskConfig{})
	err := eng.RegisterTrader(trader.New("dup", dec("100"), trader.RiskConfig{}))
	assert.ErrorIs(t, err, common.ErrDuplicateTrader)
}

func TestAddOrderBook_Duplicate(t *testing.T) {
	eng := newTestEngine(t)
	assert.ErrorIs(t, eng.AddOrderBook("AAPL"), common.ErrDuplicateSymbol)
}
