// Package chaos injects faults into a price stream and order confirmations
// so paper runs exercise the failure paths of the engine.
package chaos

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/og"
	"tradecore/pkg/exception"

	"github.com/yanun0323/errors"
)

// Config controls chaos injection behavior.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	ReorderWindow int
	MaxDelay      time.Duration
	// ConfirmFailRate is the probability that a confirmation fails transiently.
	ConfirmFailRate float64
}

// Enabled reports whether any fault is configured.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1 || c.MaxDelay > 0 || c.ConfirmFailRate > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	for name, rate := range map[string]float64{
		"dropRate":        c.DropRate,
		"duplicateRate":   c.DuplicateRate,
		"confirmFailRate": c.ConfirmFailRate,
	} {
		if rate < 0 || rate > 1 {
			return errors.Wrapf(exception.ErrInvalidArgument, "%s must be between 0 and 1", name)
		}
	}
	if c.ReorderWindow <= 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "reorderWindow must be >= 1")
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "maxDelay must be >= 0")
	}
	return nil
}

// Batch is one published group of ticks.
type Batch struct {
	Symbol string
	Ticks  []model.PriceTick
}

// Publisher receives ticks.
type Publisher interface {
	Publish(symbol string, ticks []model.PriceTick) error
}

// Engine applies chaos rules to batches. It is safe for concurrent use.
type Engine struct {
	cfg Config

	mu      sync.Mutex
	rng     *rand.Rand
	pending []Batch
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Process applies chaos to a single batch and returns the batches to deliver.
func (e *Engine) Process(b Batch) []Batch {
	if e == nil {
		return []Batch{b}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shouldDrop() {
		return nil
	}
	b = e.applyDelay(b)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(b)
	}
	e.pending = append(e.pending, b)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	idx := e.rng.Intn(len(e.pending))
	out := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return e.applyDuplicate(out)
}

// Flush returns any buffered batches after processing completes.
func (e *Engine) Flush() []Batch {
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) == 0 {
		return nil
	}
	out := make([]Batch, 0, len(e.pending))
	for len(e.pending) > 0 {
		idx := e.rng.Intn(len(e.pending))
		b := e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		out = append(out, e.applyDuplicate(b)...)
	}
	return out
}

// Publisher wraps next so every batch passes through Process first.
func (e *Engine) Publisher(next Publisher) *Stream {
	return &Stream{engine: e, next: next}
}

// Gateway wraps next so confirmations fail transiently at ConfirmFailRate.
func (e *Engine) Gateway(next og.Gateway) og.Gateway {
	return &chaosGateway{engine: e, next: next}
}

func (e *Engine) shouldFailConfirm() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.ConfirmFailRate > 0 && e.rng.Float64() < e.cfg.ConfirmFailRate
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) applyDuplicate(b Batch) []Batch {
	out := []Batch{b}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, b)
	}
	return out
}

// applyDelay moves the ticks of b later by a random delay up to MaxDelay.
func (e *Engine) applyDelay(b Batch) Batch {
	maxDelay := e.cfg.MaxDelay.Milliseconds()
	if maxDelay <= 0 {
		return b
	}
	delay := e.rng.Int63n(maxDelay + 1)
	if delay == 0 {
		return b
	}
	ticks := make([]model.PriceTick, len(b.Ticks))
	copy(ticks, b.Ticks)
	for i := range ticks {
		ticks[i].Timestamp += delay
	}
	b.Ticks = ticks
	return b
}

// Stream forwards the batches the engine lets through.
type Stream struct {
	engine *Engine
	next   Publisher
}

func (p *Stream) Publish(symbol string, ticks []model.PriceTick) error {
	return p.deliver(p.engine.Process(Batch{Symbol: symbol, Ticks: ticks}))
}

// Flush delivers the batches still held for reordering.
func (p *Stream) Flush() error {
	return p.deliver(p.engine.Flush())
}

func (p *Stream) deliver(batches []Batch) error {
	for _, b := range batches {
		if err := p.next.Publish(b.Symbol, b.Ticks); err != nil {
			return err
		}
	}
	return nil
}

type chaosGateway struct {
	engine *Engine
	next   og.Gateway
}

func (g *chaosGateway) Confirm(ctx context.Context, req og.ConfirmRequest) (model.Fill, error) {
	if g.engine.shouldFailConfirm() {
		return model.Fill{}, errors.Wrapf(exception.ErrTransientConfirmation, "chaos: order %d", req.Order.ID)
	}
	return g.next.Confirm(ctx, req)
}
