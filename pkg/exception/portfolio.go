package exception

import "github.com/yanun0323/errors"

var (
	ErrDataUnavailable      = errors.New("portfolio: price data unavailable")
	ErrInsufficientFunds    = errors.New("portfolio: insufficient funds")
	ErrNegativeAmount       = errors.New("portfolio: negative amount")
	ErrOriginNotInitialized = errors.New("portfolio: origin not initialized")
)
