package main

import (
	"context"
	"flag"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
	"fenrir/internal/engine"
	"fenrir/internal/events"
	"fenrir/internal/net"
)

func main() {
	address := flag.String("address", "0.0.0.0", "address to bind the TCP front-end to")
	port := flag.Int("port", 9001, "port to bind the TCP front-end to")
	symbols := flag.String("symbols", "AAPL,MSFT,GOOG", "comma-separated symbols to register at startup")
	proRata := flag.Bool("pro-rata", false, "use PRO_RATA allocation instead of FIFO")
	makerFee := flag.String("maker-fee", "0.0002", "maker fee as a fraction of notional")
	takerFee := flag.String("taker-fee", "0.0005", "taker fee as a fraction of notional")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	strategy := common.FIFO
	if *proRata {
		strategy = common.ProRata
	}

	eng := engine.New(engine.Config{
		Strategy: strategy,
		MakerFee: mustDecimal(*makerFee),
		TakerFee: mustDecimal(*takerFee),
	})

	for _, symbol := range strings.Split(*symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		if err := eng.AddOrderBook(symbol); err != nil {
			log.Fatal().Err(err).Str("symbol", symbol).Msg("unable to register symbol")
		}
	}

	srv := net.New(*address, *port, eng)
	eng.Subscribe(events.TradeExecuted, func(payload any) {
		trade, ok := payload.(common.Trade)
		if !ok {
			return
		}
		if err := srv.ReportTrade(trade); err != nil {
			log.Error().Err(err).Msg("failed to report trade to clients")
		}
	})

	go srv.Run(ctx)
	<-ctx.Done()
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatal().Err(err).Str("value", s).Msg("invalid decimal fee configuration")
	}
	return d
}
