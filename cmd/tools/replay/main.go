package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tradecore/internal/datafile"
	"tradecore/internal/model"
	"tradecore/internal/ops"
	"tradecore/internal/portfolio"
	"tradecore/internal/session"
)

func main() {
	dir := flag.String("dir", "testdata/data", "Data file directory")
	file := flag.String("file", "", "Data file name under -dir (empty = list files)")
	configPath := flag.String("config", "", "Path to JSON config (empty = built-in defaults)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	flag.Parse()

	if *file == "" {
		if err := list(*dir); err != nil {
			log.Fatalf("list failed: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ops.LoadEnv()
	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	stopProfiler, err := ops.StartProfiler("tradecore.replay", loaded.Pyroscope, nil)
	if err != nil {
		log.Fatalf("profiler start failed: %v", err)
	}
	defer stopProfiler()

	data, err := datafile.Read(filepath.Join(*dir, *file))
	if err != nil {
		log.Fatalf("read data file failed: %v", err)
	}
	replayer, err := datafile.NewReplayer(data, *speed)
	if err != nil {
		log.Fatalf("replayer init failed: %v", err)
	}

	loaded.Mode = portfolio.ModeBacktesting
	loaded.Symbols = []string{data.Symbol}
	if len(loaded.TimeFrames) == 0 {
		loaded.TimeFrames = []model.TimeFrame{data.TimeFrames()[0]}
	}

	sess, err := session.New(loaded)
	if err != nil {
		log.Fatalf("session init failed: %v", err)
	}
	defer sess.Close()

	if err := sess.Replay(ctx, replayer); err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	sum, err := sess.Summary()
	if err != nil {
		log.Fatalf("summary failed: %v", err)
	}
	sum.Log()
	for _, p := range sum.ValueHistory.Points {
		fmt.Printf("%d %s\n", p.X, p.Y.StringFixed(8))
	}
}

func list(dir string) error {
	files, err := datafile.AvailableFiles(dir)
	if err != nil {
		return err
	}
	for _, name := range files {
		desc, err := datafile.InterpretFileName(name)
		if err != nil {
			fmt.Printf("%s: %v\n", name, err)
			continue
		}
		data, err := datafile.Read(filepath.Join(dir, name))
		if err != nil {
			fmt.Printf("%s: impossible to read data file: %v\n", name, err)
			continue
		}
		fmt.Printf("%s: %s %s %s [%s]\n", name, desc.Exchange, desc.Symbol,
			desc.CreatedAt.Format("2006-01-02 15:04:05"), datafile.Describe(data))
	}
	return nil
}
