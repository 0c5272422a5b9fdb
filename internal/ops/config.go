package ops

import (
	"os"
	"strings"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/og"
	"tradecore/internal/portfolio"
	"tradecore/internal/risk"
	"tradecore/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

const (
	EnvReference = "TRADECORE_REFERENCE"
	EnvMode      = "TRADECORE_MODE"
	EnvPyroscope = "TRADECORE_PYROSCOPE"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Exchange          string             `json:"exchange"`
	Reference         string             `json:"reference"`
	Mode              string             `json:"mode"`
	Symbols           []string           `json:"symbols"`
	TimeFrames        []string           `json:"timeFrames"`
	Portfolio         map[string]string  `json:"portfolio"`
	FeeRate           string             `json:"feeRate"`
	MaxConfirmRetries int                `json:"maxConfirmRetries"`
	WatchQueueSize    int                `json:"watchQueueSize"`
	Orders            []OrderConfig      `json:"orders"`
	Risk              RiskConfig         `json:"risk"`
	Features          FeatureFlagsConfig `json:"features"`
	Pyroscope         string             `json:"pyroscope"`
}

// OrderConfig describes an order placed when a session starts.
// Orders sharing a non-empty Group are created as one bracket.
type OrderConfig struct {
	Group        string        `json:"group"`
	Symbol       string        `json:"symbol"`
	Side         string        `json:"side"`
	Type         string        `json:"type"`
	Quantity     string        `json:"quantity"`
	LimitPrice   string        `json:"limitPrice"`
	TriggerPrice string        `json:"triggerPrice"`
	Dependents   []OrderConfig `json:"dependents"`
}

// RiskConfig holds the pre-trade limits. Empty values disable a limit.
type RiskConfig struct {
	KillSwitch           bool   `json:"killSwitch"`
	MaxOrderQty          string `json:"maxOrderQty"`
	MaxOrderNotional     string `json:"maxOrderNotional"`
	OrderRateLimit       int    `json:"orderRateLimit"`
	OrderRateWindow      string `json:"orderRateWindow"`
	MaxPriceDeviationBps int64  `json:"maxPriceDeviationBps"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableOrders *bool `json:"enableOrders"`
	EnableWatch  *bool `json:"enableWatch"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableOrders bool
	EnableWatch  bool
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Exchange          string
	Reference         string
	Mode              portfolio.Mode
	Symbols           []string
	TimeFrames        []model.TimeFrame
	Portfolio         map[string]decimal.Decimal
	FeeRate           decimal.Decimal
	MaxConfirmRetries int
	WatchQueueSize    int
	OrderGroups       [][]og.OrderSpec
	Risk              risk.Config
	Features          FeatureFlags
	Pyroscope         string
}

// LoadEnv reads .env files into the process environment. Missing files are ignored.
func LoadEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load reads a JSON config file, applies environment overrides and validates the result.
// An empty path starts from Default.
func Load(path string) (Loaded, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "read config").With("path", path)
		}
		cfg = FileConfig{}
		if err := sonic.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, errors.Wrap(exception.ErrInvalidConfig, "unmarshal config").With("error", err.Error())
		}
	}
	applyEnv(&cfg)
	return Resolve(cfg)
}

// Default is a simulated BTC/USDT session without orders.
func Default() FileConfig {
	return FileConfig{
		Exchange:   "binance",
		Reference:  "USDT",
		Mode:       portfolio.ModeSimulated.String(),
		Symbols:    []string{"BTC/USDT"},
		TimeFrames: []string{string(model.TimeFrame1m)},
		Portfolio:  map[string]string{"USDT": "10000"},
		FeeRate:    "0.001",
	}
}

func applyEnv(cfg *FileConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvReference)); v != "" {
		cfg.Reference = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMode)); v != "" {
		cfg.Mode = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPyroscope)); v != "" {
		cfg.Pyroscope = v
	}
}

// Resolve validates a FileConfig.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Reference == "" {
		return Loaded{}, errors.Wrap(exception.ErrInvalidConfig, "reference currency is empty")
	}
	mode, ok := portfolio.ParseMode(cfg.Mode)
	if !ok {
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "mode: %q", cfg.Mode)
	}
	if len(cfg.Symbols) == 0 {
		return Loaded{}, errors.Wrap(exception.ErrInvalidConfig, "no symbols")
	}
	for _, s := range cfg.Symbols {
		if !model.ValidSymbol(s) {
			return Loaded{}, errors.Wrapf(exception.ErrInvalidSymbol, "symbol: %q", s)
		}
	}

	tfs := make([]model.TimeFrame, 0, len(cfg.TimeFrames))
	for _, s := range cfg.TimeFrames {
		tf, err := model.ParseTimeFrame(s)
		if err != nil {
			return Loaded{}, err
		}
		tfs = append(tfs, tf)
	}

	holdings := make(map[string]decimal.Decimal, len(cfg.Portfolio))
	for currency, amount := range cfg.Portfolio {
		d, err := parseDecimal(amount, "portfolio."+currency)
		if err != nil {
			return Loaded{}, err
		}
		if d.IsNegative() {
			return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "portfolio.%s is negative", currency)
		}
		holdings[currency] = d
	}

	feeRate := decimal.Zero
	if cfg.FeeRate != "" {
		d, err := parseDecimal(cfg.FeeRate, "feeRate")
		if err != nil {
			return Loaded{}, err
		}
		if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "feeRate must be in [0, 1), got %s", d)
		}
		feeRate = d
	}

	if cfg.MaxConfirmRetries < 0 || cfg.WatchQueueSize < 0 {
		return Loaded{}, errors.Wrap(exception.ErrInvalidConfig, "maxConfirmRetries and watchQueueSize must be >= 0")
	}
	if cfg.MaxConfirmRetries == 0 {
		cfg.MaxConfirmRetries = og.DefaultMaxConfirmRetries
	}

	groups, err := resolveOrders(cfg.Orders)
	if err != nil {
		return Loaded{}, err
	}

	limits, err := resolveRisk(cfg.Risk)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Exchange:          strings.ToLower(cfg.Exchange),
		Reference:         cfg.Reference,
		Mode:              mode,
		Symbols:           cfg.Symbols,
		TimeFrames:        tfs,
		Portfolio:         holdings,
		FeeRate:           feeRate,
		MaxConfirmRetries: cfg.MaxConfirmRetries,
		WatchQueueSize:    cfg.WatchQueueSize,
		OrderGroups:       groups,
		Risk:              limits,
		Features:          resolveFeatures(cfg.Features),
		Pyroscope:         cfg.Pyroscope,
	}, nil
}

func resolveOrders(cfgs []OrderConfig) ([][]og.OrderSpec, error) {
	var (
		groups [][]og.OrderSpec
		index  = make(map[string]int)
	)
	for i, cfg := range cfgs {
		spec, err := resolveOrderSpec(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "orders[%d]", i)
		}
		if cfg.Group == "" {
			groups = append(groups, []og.OrderSpec{spec})
			continue
		}
		if at, ok := index[cfg.Group]; ok {
			groups[at] = append(groups[at], spec)
			continue
		}
		index[cfg.Group] = len(groups)
		groups = append(groups, []og.OrderSpec{spec})
	}
	return groups, nil
}

func resolveOrderSpec(cfg OrderConfig) (og.OrderSpec, error) {
	typ := og.ParseOrderType(strings.ToLower(cfg.Type))
	if typ == og.OrderTypeUnknown {
		return og.OrderSpec{}, errors.Wrapf(exception.ErrInvalidConfig, "order type: %q", cfg.Type)
	}

	spec := og.OrderSpec{
		Symbol: cfg.Symbol,
		Side:   model.ParseSide(cfg.Side),
		Type:   typ,
	}

	if cfg.Quantity != "" {
		qty, err := parseDecimal(cfg.Quantity, "quantity")
		if err != nil {
			return og.OrderSpec{}, err
		}
		spec.Quantity = qty
	}

	var err error
	if spec.LimitPrice, err = parseNullDecimal(cfg.LimitPrice, "limitPrice"); err != nil {
		return og.OrderSpec{}, err
	}
	if spec.TriggerPrice, err = parseNullDecimal(cfg.TriggerPrice, "triggerPrice"); err != nil {
		return og.OrderSpec{}, err
	}

	for i, dep := range cfg.Dependents {
		d, err := resolveOrderSpec(dep)
		if err != nil {
			return og.OrderSpec{}, errors.Wrapf(err, "dependents[%d]", i)
		}
		spec.Dependents = append(spec.Dependents, d)
	}
	return spec, nil
}

func resolveRisk(cfg RiskConfig) (risk.Config, error) {
	limits := risk.Config{
		KillSwitch:           cfg.KillSwitch,
		OrderRateLimit:       cfg.OrderRateLimit,
		MaxPriceDeviationBps: cfg.MaxPriceDeviationBps,
	}
	if cfg.OrderRateLimit < 0 || cfg.MaxPriceDeviationBps < 0 {
		return risk.Config{}, errors.Wrap(exception.ErrInvalidConfig, "risk limits must be >= 0")
	}

	var err error
	if cfg.MaxOrderQty != "" {
		if limits.MaxOrderQty, err = parseDecimal(cfg.MaxOrderQty, "risk.maxOrderQty"); err != nil {
			return risk.Config{}, err
		}
	}
	if cfg.MaxOrderNotional != "" {
		if limits.MaxOrderNotional, err = parseDecimal(cfg.MaxOrderNotional, "risk.maxOrderNotional"); err != nil {
			return risk.Config{}, err
		}
	}
	if cfg.OrderRateWindow != "" {
		if limits.OrderRateWindow, err = time.ParseDuration(cfg.OrderRateWindow); err != nil {
			return risk.Config{}, errors.Wrapf(exception.ErrInvalidConfig, "risk.orderRateWindow: %q", cfg.OrderRateWindow)
		}
	}
	return limits, nil
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, errors.Wrapf(exception.ErrInvalidConfig, "%s: %q", field, s)
	}
	return d, nil
}

func parseNullDecimal(s, field string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDecimal(s, field)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableOrders: true,
		EnableWatch:  true,
	}
	if cfg.EnableOrders != nil {
		flags.EnableOrders = *cfg.EnableOrders
	}
	if cfg.EnableWatch != nil {
		flags.EnableWatch = *cfg.EnableWatch
	}
	return flags
}
