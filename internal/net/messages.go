package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"fenrir/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short for specified length")
	ErrInvalidUUID        = errors.New("invalid uuid")
)

type MessageType int

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
)

type ReportMessageType int

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// Message format constants. Every numeric field beyond the base header
// travels as a float64 on the wire — the core itself keeps full decimal
// precision, this encoding is only the external boundary's.
const (
	BaseMessageHeaderLen = 2
	newOrderFixedLen     = 1 + 1 + 1 + 1 + 8*7 + 1 // type+side+tif+symbolLen + 7 float64s + usernameLen
	cancelOrderFixedLen  = 1 + 2                   // symbolLen + orderIDLen
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, errors.New("message too short to contain header")
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// NewOrderMessage carries every field needed to construct any of the six
// order shapes the core understands; unused auxiliaries for a given
// OrderType are simply zero on the wire.
type NewOrderMessage struct {
	BaseMessage
	OrderType common.OrderType   // 1 byte
	Side      common.Side        // 1 byte
	TIF       common.TimeInForce // 1 byte

	SymbolLen uint8 // 1 byte

	Price           float64 // 8 bytes
	StopPrice       float64 // 8 bytes
	LimitPrice      float64 // 8 bytes
	TrailingOffset  float64 // 8 bytes
	Quantity        float64 // 8 bytes
	DisplayQuantity float64 // 8 bytes
	TotalQuantity   float64 // 8 bytes

	UsernameLen uint8 // 1 byte

	Symbol   string
	Username string
}

// Order constructs a fresh *common.Order from the wire message, assigning
// a new id. Decimal fields are rebuilt from the wire's float64 via
// decimal.NewFromFloat — lossy at the boundary, exact once inside the core.
func (m *NewOrderMessage) Order() (*common.Order, error) {
	id := uuid.New().String()
	if id == "" {
		return nil, ErrInvalidUUID
	}

	return &common.Order{
		ID:              id,
		Symbol:          m.Symbol,
		Side:            m.Side,
		Type:            m.OrderType,
		TIF:             m.TIF,
		Price:           fromFloat(m.Price),
		StopPrice:       fromFloat(m.StopPrice),
		LimitPrice:      fromFloat(m.LimitPrice),
		TrailingOffset:  fromFloat(m.TrailingOffset),
		Quantity:        fromFloat(m.Quantity),
		DisplayQuantity: fromFloat(m.DisplayQuantity),
		TotalQuantity:   fromFloat(m.TotalQuantity),
		TraderID:        m.Username,
	}, nil
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < newOrderFixedLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}

	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	off := 0
	m.OrderType = common.OrderType(msg[off])
	off++
	m.Side = common.Side(msg[off])
	off++
	m.TIF = common.TimeInForce(msg[off])
	off++
	m.SymbolLen = uint8(msg[off])
	off++

	readFloat := func() float64 {
		v := math.Float64frombits(binary.BigEndian.Uint64(msg[off : off+8]))
		off += 8
		return v
	}
	m.Price = readFloat()
	m.StopPrice = readFloat()
	m.LimitPrice = readFloat()
	m.TrailingOffset = readFloat()
	m.Quantity = readFloat()
	m.DisplayQuantity = readFloat()
	m.TotalQuantity = readFloat()

	m.UsernameLen = uint8(msg[off])
	off++

	expectedTotalLen := off + int(m.SymbolLen) + int(m.UsernameLen)
	if len(msg) < expectedTotalLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Symbol = string(msg[off : off+int(m.SymbolLen)])
	off += int(m.SymbolLen)
	m.Username = string(msg[off : off+int(m.UsernameLen)])

	return m, nil
}

type CancelOrderMessage struct {
	BaseMessage
	SymbolLen  uint8
	OrderIDLen uint16
	Symbol     string
	OrderID    string
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < cancelOrderFixedLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	m.SymbolLen = uint8(msg[0])
	m.OrderIDLen = binary.BigEndian.Uint16(msg[1:3])

	expectedTotalLen := cancelOrderFixedLen + int(m.SymbolLen) + int(m.OrderIDLen)
	if len(msg) < expectedTotalLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	off := cancelOrderFixedLen
	m.Symbol = string(msg[off : off+int(m.SymbolLen)])
	off += int(m.SymbolLen)
	m.OrderID = string(msg[off : off+int(m.OrderIDLen)])

	return m, nil
}

// Report is the execution/error acknowledgement sent back to a client.
type Report struct {
	MessageType ReportMessageType // 1 byte
	Side        common.Side       // 1 byte
	Timestamp   uint64            // 8 bytes
	Quantity    float64           // 8 bytes
	Price       float64           // 8 bytes
	SymbolLen   uint8             // 1 byte
	OrderIDLen  uint16            // 2 bytes
	ErrStrLen   uint32            // 4 bytes
	Symbol      string
	OrderID     string
	Err         string
}

const reportFixedHeaderLen = 1 + 1 + 8 + 8 + 8 + 1 + 2 + 4

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() ([]byte, error) {
	totalSize := reportFixedHeaderLen + len(r.Symbol) + len(r.OrderID) + len(r.Err)
	buf := make([]byte, totalSize)

	buf[0] = byte(r.MessageType)
	buf[1] = byte(r.Side)
	binary.BigEndian.PutUint64(buf[2:10], r.Timestamp)
	binary.BigEndian.PutUint64(buf[10:18], math.Float64bits(r.Quantity))
	binary.BigEndian.PutUint64(buf[18:26], math.Float64bits(r.Price))
	buf[26] = r.SymbolLen
	binary.BigEndian.PutUint16(buf[27:29], r.OrderIDLen)
	binary.BigEndian.PutUint32(buf[29:33], r.ErrStrLen)

	off := reportFixedHeaderLen
	copy(buf[off:], r.Symbol)
	off += len(r.Symbol)
	copy(buf[off:], r.OrderID)
	off += len(r.OrderID)
	copy(buf[off:], r.Err)

	return buf, nil
}

// generateWireTradeReports builds the pair of execution reports for a
// completed trade, one addressed to the taker's order id, one to the
// maker's, each carrying its own side of the fill.
func generateWireTradeReports(trade common.Trade) (takerBytes, makerBytes []byte, err error) {
	takerReport := Report{
		MessageType: ExecutionReport,
		Side:        trade.TakerSide,
		Timestamp:   uint64(trade.Timestamp.Unix()),
		Quantity:    toFloat(trade.Quantity),
		Price:       toFloat(trade.Price),
		SymbolLen:   uint8(len(trade.Symbol)),
		OrderIDLen:  uint16(len(trade.TakerOrderID)),
		Symbol:      trade.Symbol,
		OrderID:     trade.TakerOrderID,
	}
	makerReport := Report{
		MessageType: ExecutionReport,
		Side:        trade.TakerSide.Opposite(),
		Timestamp:   uint64(trade.Timestamp.Unix()),
		Quantity:    toFloat(trade.Quantity),
		Price:       toFloat(trade.Price),
		SymbolLen:   uint8(len(trade.Symbol)),
		OrderIDLen:  uint16(len(trade.MakerOrderID)),
		Symbol:      trade.Symbol,
		OrderID:     trade.MakerOrderID,
	}

	takerBytes, err = takerReport.Serialize()
	if err != nil {
		return nil, nil, err
	}
	makerBytes, err = makerReport.Serialize()
	if err != nil {
		return nil, nil, err
	}
	return takerBytes, makerBytes, nil
}

func generateWireErrorReports(orderID string, err error) ([]byte, error) {
	errStr := fmt.Sprintf("%v", err)
	report := Report{
		MessageType: ErrorReport,
		Timestamp:   uint64(time.Now().UnixNano()),
		OrderIDLen:  uint16(len(orderID)),
		ErrStrLen:   uint32(len(errStr)),
		OrderID:     orderID,
		Err:         errStr,
	}
	return report.Serialize()
}
