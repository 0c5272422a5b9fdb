package datafile

import (
	"path/filepath"
	"strings"
	"time"

	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/yanun0323/errors"
)

const (
	// Ext is the extension of every market-data file.
	Ext = ".data"

	timeWriteLayout = "20060102_150405"
)

// Description is what a data file name says about its content.
type Description struct {
	Exchange  string
	Symbol    string
	CreatedAt time.Time
}

// BuildFileName returns "<exchange>_<BASE>_<QUOTE>_<YYYYMMDD>_<HHMMSS>.data".
func BuildFileName(exchange, symbol string, at time.Time) string {
	symbolPart := strings.ToUpper(strings.NewReplacer("/", "_", "-", "_").Replace(symbol))
	return strings.ToLower(strings.TrimSpace(exchange)) + "_" + symbolPart + "_" + at.UTC().Format(timeWriteLayout) + Ext
}

// InterpretFileName parses a name produced by BuildFileName. Directories in path are ignored.
func InterpretFileName(path string) (Description, error) {
	name := filepath.Base(path)
	if filepath.Ext(name) != Ext {
		return Description{}, errors.Wrapf(exception.ErrInvalidDataFile, "extension of %q", name)
	}

	parts := strings.Split(strings.TrimSuffix(name, Ext), "_")
	if len(parts) != 5 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Description{}, errors.Wrapf(exception.ErrInvalidDataFile, "file name %q", name)
	}

	at, err := time.Parse(timeWriteLayout, parts[3]+"_"+parts[4])
	if err != nil {
		return Description{}, errors.Wrap(exception.ErrInvalidDataFile, "parse file time").With("name", name)
	}

	return Description{
		Exchange:  parts[0],
		Symbol:    model.MergeCurrencies(parts[1], parts[2]),
		CreatedAt: at,
	}, nil
}
