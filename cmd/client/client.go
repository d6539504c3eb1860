package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"fenrir/internal/common"
	fenrirNet "fenrir/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner username (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel']")

	symbol := flag.String("symbol", "AAPL", "Symbol to trade")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: limit|market|stop_loss|stop_limit|trailing_stop|iceberg")
	tifStr := flag.String("tif", "gtc", "Time in force: 'gtc' or 'ioc'")
	price := flag.Float64("price", 100.0, "Limit price")
	stopPrice := flag.Float64("stop-price", 0, "Stop trigger price")
	limitPrice := flag.Float64("limit-price", 0, "Stop-limit resting price")
	trailingOffset := flag.Float64("trailing-offset", 0, "Trailing stop offset")
	displayQty := flag.Float64("display-qty", 0, "Iceberg display quantity")
	totalQty := flag.Float64("total-qty", 0, "Iceberg total quantity")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	orderID := flag.String("order-id", "", "Order id to cancel")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	go readReports(conn)

	side := common.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Sell
	}
	orderType := parseOrderType(*typeStr)
	tif := common.GTC
	if strings.ToLower(*tifStr) == "ioc" {
		tif = common.IOC
	}

	switch strings.ToLower(*action) {
	case "place":
		for _, q := range parseQuantities(*qtyStr) {
			err := sendPlaceOrder(conn, *owner, *symbol, orderType, side, tif, placeParams{
				Price:           *price,
				StopPrice:       *stopPrice,
				LimitPrice:      *limitPrice,
				TrailingOffset:  *trailingOffset,
				Quantity:        q,
				DisplayQuantity: *displayQty,
				TotalQuantity:   *totalQty,
			})
			if err != nil {
				log.Printf("Failed to place order (Qty: %.2f): %v", q, err)
			} else {
				fmt.Printf("-> Sent %s %s %s qty=%.2f\n", strings.ToUpper(*sideStr), *typeStr, *symbol, q)
			}
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderID == "" {
			log.Fatal("Error: -order-id is required for cancellation")
		}
		if err := sendCancelOrder(conn, *symbol, *orderID); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent Cancel Request for order %s\n", *orderID)
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

func parseOrderType(s string) common.OrderType {
	switch strings.ToLower(s) {
	case "market":
		return common.MarketOrder
	case "stop_loss", "stoploss":
		return common.StopLossOrder
	case "stop_limit", "stoplimit":
		return common.StopLimitOrder
	case "trailing_stop", "trailingstop":
		return common.TrailingStopOrder
	case "iceberg":
		return common.IcebergOrder
	default:
		return common.LimitOrder
	}
}

func parseQuantities(input string) []float64 {
	parts := strings.Split(input, ",")
	var result []float64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseFloat(p, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: Invalid quantity '%s', skipping.", p)
		}
	}
	return result
}

type placeParams struct {
	Price           float64
	StopPrice       float64
	LimitPrice      float64
	TrailingOffset  float64
	Quantity        float64
	DisplayQuantity float64
	TotalQuantity   float64
}

// sendPlaceOrder constructs and sends a NewOrder message in the extended
// wire format that carries every advanced-order-type auxiliary field.
func sendPlaceOrder(conn net.Conn, owner, symbol string, orderType common.OrderType, side common.Side, tif common.TimeInForce, p placeParams) error {
	symbolBytes := []byte(symbol)
	ownerBytes := []byte(owner)

	body := make([]byte, 0, 4+8*7+1+len(symbolBytes)+len(ownerBytes))
	body = append(body, byte(orderType), byte(side), byte(tif), byte(len(symbolBytes)))
	body = appendFloat(body, p.Price)
	body = appendFloat(body, p.StopPrice)
	body = appendFloat(body, p.LimitPrice)
	body = appendFloat(body, p.TrailingOffset)
	body = appendFloat(body, p.Quantity)
	body = appendFloat(body, p.DisplayQuantity)
	body = appendFloat(body, p.TotalQuantity)
	body = append(body, byte(len(ownerBytes)))
	body = append(body, symbolBytes...)
	body = append(body, ownerBytes...)

	buf := make([]byte, fenrirNet.BaseMessageHeaderLen+len(body))
	binary.BigEndian.PutUint16(buf[0:2], uint16(fenrirNet.NewOrder))
	copy(buf[2:], body)

	_, err := conn.Write(buf)
	return err
}

func appendFloat(buf []byte, v float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return append(buf, b[:]...)
}

// sendCancelOrder constructs and sends a CancelOrder message.
func sendCancelOrder(conn net.Conn, symbol, orderID string) error {
	symbolBytes := []byte(symbol)
	idBytes := []byte(orderID)

	body := make([]byte, 0, 3+len(symbolBytes)+len(idBytes))
	body = append(body, byte(len(symbolBytes)))
	var idLen [2]byte
	binary.BigEndian.PutUint16(idLen[:], uint16(len(idBytes)))
	body = append(body, idLen[:]...)
	body = append(body, symbolBytes...)
	body = append(body, idBytes...)

	buf := make([]byte, fenrirNet.BaseMessageHeaderLen+len(body))
	binary.BigEndian.PutUint16(buf[0:2], uint16(fenrirNet.CancelOrder))
	copy(buf[2:], body)

	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and parses Report messages from the server.
func readReports(conn net.Conn) {
	const fixedHeaderLen = 1 + 1 + 8 + 8 + 8 + 1 + 2 + 4

	for {
		headerBuf := make([]byte, fixedHeaderLen)
		if _, err := io.ReadFull(conn, headerBuf); err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		msgType := fenrirNet.ReportMessageType(headerBuf[0])
		side := common.Side(headerBuf[1])
		qty := math.Float64frombits(binary.BigEndian.Uint64(headerBuf[10:18]))
		price := math.Float64frombits(binary.BigEndian.Uint64(headerBuf[18:26]))
		symbolLen := headerBuf[26]
		orderIDLen := binary.BigEndian.Uint16(headerBuf[27:29])
		errStrLen := binary.BigEndian.Uint32(headerBuf[29:33])

		varLen := int(symbolLen) + int(orderIDLen) + int(errStrLen)
		varBuf := make([]byte, varLen)
		if varLen > 0 {
			if _, err := io.ReadFull(conn, varBuf); err != nil {
				log.Printf("Error reading report body: %v", err)
				break
			}
		}

		symbol := string(varBuf[:symbolLen])
		orderID := string(varBuf[symbolLen : int(symbolLen)+int(orderIDLen)])
		errStr := string(varBuf[int(symbolLen)+int(orderIDLen):])

		if msgType == fenrirNet.ErrorReport {
			fmt.Printf("\n[SERVER ERROR] order=%s %s\n", orderID, errStr)
			continue
		}

		sideStr := "BUY"
		if side == common.Sell {
			sideStr = "SELL"
		}
		fmt.Printf("\n[EXECUTION] %s %s qty=%.4f price=%.4f order=%s\n", sideStr, symbol, qty, price, orderID)
	}
}
