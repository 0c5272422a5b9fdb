package exception

import "github.com/yanun0323/errors"

// General errors
var (
	ErrNilInstance       = errors.New("nil instance")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInResponseError   = errors.New("there is an error in response error field")
	ErrConnectionClose   = errors.New("connection closed")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrNegativePortfolio = errors.New("negative portfolio")
)
