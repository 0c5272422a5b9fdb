package ops

import (
	"context"
	"os"
	"time"

	"github.com/yanun0323/logs"
)

// Watch polls path and calls update with every config that loads after a modification.
// Invalid configs are logged and skipped.
func Watch(ctx context.Context, path string, interval time.Duration, update func(Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Errorf("config stat %s, err: %+v", path, err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := Load(path)
			if err != nil {
				logs.Errorf("config reload %s, err: %+v", path, err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			logs.Infof("config reloaded: %s", path)
		}
	}
}
