package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tradecore/internal/datafile"
	"tradecore/internal/ingest/binance"
	"tradecore/internal/model"
	"tradecore/internal/ops"

	"github.com/yanun0323/logs"
)

func main() {
	symbol := flag.String("symbol", "BTC/USDT", "Symbol as BASE/QUOTE")
	timeFrames := flag.String("time-frames", "1m,1h", "Comma separated time frames")
	days := flag.Int("days", 1, "Days of history to download")
	dir := flag.String("dir", "testdata/data", "Output directory")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *days <= 0 {
		log.Fatalf("days must be > 0")
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("create output dir failed: %v", err)
	}

	ops.LoadEnv()
	fetcher := binance.NewKlineFetcher(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))

	end := time.Now().UTC()
	start := end.Add(-time.Duration(*days) * 24 * time.Hour)
	candles := make(map[model.TimeFrame][]model.Candle)
	for _, s := range strings.Split(*timeFrames, ",") {
		tf, err := model.ParseTimeFrame(strings.TrimSpace(s))
		if err != nil {
			log.Fatalf("invalid time frame: %v", err)
		}
		cs, err := fetcher.FetchCandles(ctx, *symbol, tf, start, end)
		if err != nil {
			log.Fatalf("fetch %s candles failed: %v", tf, err)
		}
		candles[tf] = cs
	}

	path, err := datafile.Write(*dir, "binance", *symbol, candles, end)
	if err != nil {
		log.Fatalf("write data file failed: %v", err)
	}
	logs.Infof("wrote %s [%s]", path, datafile.Describe(&datafile.Data{Candles: candles}))
}
