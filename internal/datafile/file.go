package datafile

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// DisplayTimeFrames are reported by Describe after the shortest time frame of a file.
var DisplayTimeFrames = []model.TimeFrame{model.TimeFrame1h, model.TimeFrame4h, model.TimeFrame1d}

// payload is the on-disk layout: {"1h": [[t, o, h, l, c, v], ...], ...}.
type payload map[string][][]decimal.Decimal

// Data is the decoded content of one market-data file.
type Data struct {
	Description
	Candles map[model.TimeFrame][]model.Candle
}

// TimeFrames returns the time frames present in d, shortest first.
func (d *Data) TimeFrames() []model.TimeFrame {
	tfs := make([]model.TimeFrame, 0, len(d.Candles))
	for tf := range d.Candles {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool {
		return tfs[i].Duration() < tfs[j].Duration()
	})
	return tfs
}

// Decode reads gzip JSON, falling back to plain JSON when the content is not compressed.
func Decode(r io.Reader, symbol string) (map[model.TimeFrame][]model.Candle, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read data file")
	}

	content := raw
	if zr, err := gzip.NewReader(bytes.NewReader(raw)); err == nil {
		unzipped, err := io.ReadAll(zr)
		_ = zr.Close()
		if err == nil {
			content = unzipped
		}
	}

	var p payload
	if err := sonic.Unmarshal(content, &p); err != nil {
		return nil, errors.Wrap(exception.ErrInvalidDataFile, "unmarshal").With("error", err.Error())
	}

	out := make(map[model.TimeFrame][]model.Candle, len(p))
	for key, rows := range p {
		tf, err := model.ParseTimeFrame(key)
		if err != nil {
			return nil, err
		}
		candles := make([]model.Candle, 0, len(rows))
		for i, row := range rows {
			if len(row) != 6 {
				return nil, errors.Wrapf(exception.ErrInvalidDataFile, "row %d of %s has %d fields", i, key, len(row))
			}
			candles = append(candles, model.NewCandleFromRow(symbol, tf, [6]decimal.Decimal(row)))
		}
		sort.SliceStable(candles, func(i, j int) bool {
			return candles[i].OpenTime < candles[j].OpenTime
		})
		out[tf] = candles
	}

	return out, nil
}

// Encode writes candles as gzip JSON.
func Encode(w io.Writer, candles map[model.TimeFrame][]model.Candle) error {
	p := make(payload, len(candles))
	for tf, cs := range candles {
		rows := make([][]decimal.Decimal, 0, len(cs))
		for _, c := range cs {
			row := c.Row()
			rows = append(rows, row[:])
		}
		p[string(tf)] = rows
	}

	buf, err := sonic.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal data file")
	}

	zw := gzip.NewWriter(w)
	if _, err := zw.Write(buf); err != nil {
		_ = zw.Close()
		return errors.Wrap(err, "write gzip")
	}
	return zw.Close()
}

// Read loads a data file. The exchange and symbol come from the file name when it follows BuildFileName.
func Read(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open data file").With("path", path)
	}
	defer f.Close()

	desc, _ := InterpretFileName(path)
	candles, err := Decode(f, desc.Symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}

	return &Data{Description: desc, Candles: candles}, nil
}

// Write stores candles under dir with a name built by BuildFileName and returns the file path.
func Write(dir, exchange, symbol string, candles map[model.TimeFrame][]model.Candle, at time.Time) (string, error) {
	if !model.ValidSymbol(symbol) {
		return "", errors.Wrapf(exception.ErrInvalidSymbol, "symbol: %q", symbol)
	}

	path := filepath.Join(dir, BuildFileName(exchange, symbol, at))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create data file").With("path", path)
	}

	if err := Encode(f, candles); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "close data file")
	}

	return path, nil
}

// AvailableFiles lists the data file names directly under dir. A missing dir has no files.
func AvailableFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read data dir").With("dir", dir)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Ext {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// CandleCount is the number of candles stored for one time frame.
type CandleCount struct {
	TimeFrame model.TimeFrame
	Count     int
}

// Counts is the result of Describe.
type Counts []CandleCount

func (c Counts) String() string {
	parts := make([]string, 0, len(c))
	for _, cc := range c {
		parts = append(parts, string(cc.TimeFrame)+": "+strconv.Itoa(cc.Count))
	}
	return strings.Join(parts, ", ")
}

// Describe reports candle counts for the shortest time frame first, then for DisplayTimeFrames present in d.
func Describe(d *Data) Counts {
	if d == nil || len(d.Candles) == 0 {
		return nil
	}

	tfs := d.TimeFrames()
	order := []model.TimeFrame{tfs[0]}
	for _, tf := range DisplayTimeFrames {
		if tf != tfs[0] {
			order = append(order, tf)
		}
	}

	var counts Counts
	for _, tf := range order {
		candles, ok := d.Candles[tf]
		if !ok {
			continue
		}
		counts = append(counts, CandleCount{TimeFrame: tf, Count: len(candles)})
	}
	return counts
}
