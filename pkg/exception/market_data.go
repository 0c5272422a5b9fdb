package exception

import "github.com/yanun0323/errors"

var (
	ErrInvalidSymbol    = errors.New("market data: invalid symbol")
	ErrUnknownSymbol    = errors.New("market data: unknown symbol")
	ErrNilConsumer      = errors.New("market data: nil consumer")
	ErrInvalidTimeFrame = errors.New("market data: invalid time frame")
	ErrInvalidDataFile  = errors.New("market data: invalid data file")
)

// Queue errors
var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)
