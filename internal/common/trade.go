package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade records one execution between a taker and a maker order.
type Trade struct {
	ID            uint64
	Symbol        string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	TakerOrderID  string
	MakerOrderID  string
	TakerSide     Side
	Timestamp     time.Time
	MakerFee      decimal.Decimal
	TakerFee      decimal.Decimal
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`Trade #%d [%s]: %s %s @ %s (taker=%s maker=%s, fees m=%s/t=%s) at %v`,
		t.ID,
		t.Symbol,
		t.TakerSide,
		t.Quantity.String(),
		t.Price.String(),
		t.TakerOrderID,
		t.MakerOrderID,
		t.MakerFee.String(),
		t.TakerFee.String(),
		t.Timestamp.Format(time.RFC3339Nano),
	)
}
