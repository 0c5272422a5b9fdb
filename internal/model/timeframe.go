package model

import (
	"time"

	"tradecore/pkg/exception"

	"github.com/yanun0323/errors"
)

// TimeFrame is a candle bucket width such as "1m" or "4h".
type TimeFrame string

const (
	TimeFrame1m  TimeFrame = "1m"
	TimeFrame3m  TimeFrame = "3m"
	TimeFrame5m  TimeFrame = "5m"
	TimeFrame15m TimeFrame = "15m"
	TimeFrame30m TimeFrame = "30m"
	TimeFrame1h  TimeFrame = "1h"
	TimeFrame2h  TimeFrame = "2h"
	TimeFrame4h  TimeFrame = "4h"
	TimeFrame6h  TimeFrame = "6h"
	TimeFrame12h TimeFrame = "12h"
	TimeFrame1d  TimeFrame = "1d"
	TimeFrame1w  TimeFrame = "1w"
)

var timeFrameDurations = map[TimeFrame]time.Duration{
	TimeFrame1m:  time.Minute,
	TimeFrame3m:  3 * time.Minute,
	TimeFrame5m:  5 * time.Minute,
	TimeFrame15m: 15 * time.Minute,
	TimeFrame30m: 30 * time.Minute,
	TimeFrame1h:  time.Hour,
	TimeFrame2h:  2 * time.Hour,
	TimeFrame4h:  4 * time.Hour,
	TimeFrame6h:  6 * time.Hour,
	TimeFrame12h: 12 * time.Hour,
	TimeFrame1d:  24 * time.Hour,
	TimeFrame1w:  7 * 24 * time.Hour,
}

// ParseTimeFrame validates a time frame string.
func ParseTimeFrame(s string) (TimeFrame, error) {
	tf := TimeFrame(s)
	if _, ok := timeFrameDurations[tf]; !ok {
		return "", errors.Wrapf(exception.ErrInvalidTimeFrame, "time frame: %q", s)
	}
	return tf, nil
}

// Duration returns the bucket width, or 0 for unknown time frames.
func (tf TimeFrame) Duration() time.Duration {
	return timeFrameDurations[tf]
}

func (tf TimeFrame) Millis() int64 {
	return tf.Duration().Milliseconds()
}

// BucketStart returns the open time (ms) of the bucket containing ts (ms).
func (tf TimeFrame) BucketStart(ts int64) int64 {
	width := tf.Millis()
	if width <= 0 {
		return ts
	}
	return ts - ts%width
}

// MinTimeFrame returns the shortest known time frame in tfs.
func MinTimeFrame(tfs []TimeFrame) (TimeFrame, bool) {
	var (
		best  TimeFrame
		found bool
	)
	for _, tf := range tfs {
		d := tf.Duration()
		if d == 0 {
			continue
		}
		if !found || d < best.Duration() {
			best = tf
			found = true
		}
	}
	return best, found
}
