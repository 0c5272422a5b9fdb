package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradecore/internal/chaos"
	"tradecore/internal/ingest/binance"
	"tradecore/internal/mdg"
	"tradecore/internal/og"
	"tradecore/internal/ops"
	"tradecore/internal/session"
	"tradecore/internal/state"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config (empty = built-in defaults)")
	envFile := flag.String("env", ".env", "Env file with TRADECORE_* overrides")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	paper := flag.Bool("paper", false, "Feed synthetic trades instead of the Binance stream")
	paperInterval := flag.Duration("paper-interval", 200*time.Millisecond, "Delay between synthetic trades")
	paperPrice := flag.String("paper-price", "100", "Start price of synthetic trades")
	paperStep := flag.String("paper-step", "0.5", "Max price move per synthetic trade")
	paperSeed := flag.Int64("paper-seed", 1, "Seed of the synthetic trade walk")
	statePath := flag.String("state", "", "Account snapshot to resume from and save to on exit")
	marketOnly := flag.Bool("market-only", false, "Use the market-data-only Binance host")
	chaosSeed := flag.Int64("chaos-seed", 0, "Chaos RNG seed (0=now)")
	chaosDrop := flag.Float64("chaos-drop-rate", 0, "Paper: drop probability of a trade batch [0-1]")
	chaosDup := flag.Float64("chaos-dup-rate", 0, "Paper: duplicate probability of a trade batch [0-1]")
	chaosReorder := flag.Int("chaos-reorder-window", 1, "Paper: reorder window of trade batches (>=1)")
	chaosDelay := flag.Duration("chaos-max-delay", 0, "Paper: max event time delay of a trade batch")
	chaosConfirm := flag.Float64("chaos-confirm-fail-rate", 0, "Paper: transient confirmation failure probability [0-1]")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ops.LoadEnv(*envFile)
	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *statePath != "" {
		snap, ok, err := state.Read(*statePath)
		if err != nil {
			log.Fatalf("state load failed: %v", err)
		}
		if ok {
			loaded.Portfolio = snap.Totals()
			logs.Infof("resumed %d holdings from %s", len(snap.Holdings), *statePath)
		}
	}

	stopProfiler, err := ops.StartProfiler("tradecore.trader", loaded.Pyroscope, map[string]string{"mode": loaded.Mode.String()})
	if err != nil {
		log.Fatalf("profiler start failed: %v", err)
	}
	defer stopProfiler()

	var faults *chaos.Engine
	chaosCfg := chaos.Config{
		Seed:            *chaosSeed,
		DropRate:        *chaosDrop,
		DuplicateRate:   *chaosDup,
		ReorderWindow:   *chaosReorder,
		MaxDelay:        *chaosDelay,
		ConfirmFailRate: *chaosConfirm,
	}
	var sessOpts []session.Option
	if *paper && chaosCfg.Enabled() {
		faults, err = chaos.NewEngine(chaosCfg)
		if err != nil {
			log.Fatalf("chaos config invalid: %v", err)
		}
		sessOpts = append(sessOpts, session.WithGateway(faults.Gateway(og.NewSimulatedGateway(loaded.FeeRate))))
	}

	sess, err := session.New(loaded, sessOpts...)
	if err != nil {
		log.Fatalf("session init failed: %v", err)
	}
	defer sess.Close()

	if *configPath != "" && *configReload > 0 {
		go ops.Watch(ctx, *configPath, *configReload, func(l ops.Loaded) {
			sess.Apply(l)
		})
	}

	if *paper {
		err = runPaper(ctx, sess, loaded, faults, *paperInterval, *paperPrice, *paperStep, *paperSeed)
	} else {
		err = runLive(ctx, sess, loaded, *marketOnly)
	}
	if err != nil {
		log.Fatalf("trader failed: %v", err)
	}

	sum, err := sess.Summary()
	if err != nil {
		log.Fatalf("summary failed: %v", err)
	}
	sum.Log()

	if *statePath != "" {
		snap := state.FromPortfolio(loaded.Reference, sess.Portfolio().Snapshot(), sess.EventTime())
		if err := state.Write(*statePath, snap); err != nil {
			log.Fatalf("state save failed: %v", err)
		}
	}
}

func runLive(ctx context.Context, sess *session.Session, loaded ops.Loaded, marketOnly bool) error {
	feed := binance.NewTradeFeed(ctx, mdg.NewNormalizer(nil), sess.Distributor(), marketOnly)
	if err := feed.Start(ctx); err != nil {
		return err
	}
	defer feed.Close()

	unsubscribe := feed.Observe(ctx)
	defer unsubscribe()

	sess.Distributor().RequestWatch(loaded.Symbols...)
	logs.Infof("trading %v live, reference %s, mode %s", loaded.Symbols, loaded.Reference, loaded.Mode)

	return sess.Run(ctx, feed, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
}

func runPaper(ctx context.Context, sess *session.Session, loaded ops.Loaded, faults *chaos.Engine, interval time.Duration, price, step string, seed int64) error {
	base, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	walk, err := decimal.NewFromString(step)
	if err != nil {
		return err
	}
	gen, err := mdg.NewGenerator(loaded.Symbols, base, walk, decimal.NewFromInt(1), seed)
	if err != nil {
		return err
	}

	normalizer := mdg.NewNormalizer(nil, loaded.Symbols...)
	sess.Distributor().MarkWatched(loaded.Symbols...)
	logs.Infof("paper trading %v, reference %s", loaded.Symbols, loaded.Reference)

	stream := faults.Publisher(sess.Distributor())
	return sess.Run(ctx, nil, func(ctx context.Context) error {
		if err := gen.Run(ctx, interval, normalizer, stream); err != nil {
			return err
		}
		return stream.Flush()
	})
}
