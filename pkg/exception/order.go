package exception

import "github.com/yanun0323/errors"

var (
	ErrValidation           = errors.New("order: validation failed")
	ErrUnsupportedOperation = errors.New("order: unsupported operation")
	ErrInvariantViolation   = errors.New("order: invariant violation")
	ErrUnknownOrder         = errors.New("order: not found")
	ErrDuplicateOrder       = errors.New("order: already exists")
	ErrInvalidTransition    = errors.New("order: invalid state transition")
	ErrAlreadyFilled        = errors.New("order: already filled")
	ErrRiskDenied           = errors.New("order: denied by risk limits")
)

// Confirmation errors returned by an order gateway.
var (
	// ErrTransientConfirmation keeps the order triggered and retries on the next cycle.
	ErrTransientConfirmation = errors.New("order: transient confirmation failure")
	// ErrRejected cancels the order with the rejection recorded as its reason.
	ErrRejected = errors.New("order: rejected by gateway")
	// ErrAwaitingAck keeps the order triggered without retrying until Acknowledge.
	ErrAwaitingAck = errors.New("order: submitted, awaiting acknowledgement")
)
