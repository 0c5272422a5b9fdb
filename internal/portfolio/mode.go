package portfolio

import "strings"

// Mode decides how missing prices are handled.
type Mode uint8

const (
	// ModeLive surfaces missing prices as errors.
	ModeLive Mode = iota
	// ModeSimulated values missing prices at zero and still asks for data.
	ModeSimulated
	// ModeBacktesting values missing prices at zero; replayed data cannot be extended.
	ModeBacktesting
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeSimulated:
		return "simulated"
	case ModeBacktesting:
		return "backtesting"
	default:
		return "unknown"
	}
}

// ParseMode accepts "live", "simulated" or "backtesting".
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live":
		return ModeLive, true
	case "simulated", "paper":
		return ModeSimulated, true
	case "backtesting", "backtest":
		return ModeBacktesting, true
	default:
		return ModeLive, false
	}
}
