// Package og evaluates resting orders against price events and commits their fills.
package og

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/pkg/exception"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const DefaultMaxConfirmRetries = 3

// FillHandler receives every committed fill, conversions included.
type FillHandler func(model.Fill) error

// Settler books a confirmed fill before it is committed. An error cancels the
// order instead of filling it.
type Settler func(model.Fill) error

// Engine owns every order. Evaluation of one symbol is sequential; symbols
// are evaluated independently.
type Engine struct {
	gateway    Gateway
	ids        *obs.IDGenerator
	metrics    *obs.Metrics
	now        func() int64
	maxRetries int
	ackTimeout int64
	settle     Settler
	onFill     FillHandler

	mu     sync.RWMutex
	books  map[string]*book
	index  map[uint64]string
	groups map[string]string
}

type book struct {
	mu        sync.Mutex
	orders    map[uint64]*Order
	groups    map[string][]uint64
	filled    map[string]uint64
	scheduled []*Order
}

func newBook() *book {
	return &book{
		orders: make(map[uint64]*Order),
		groups: make(map[string][]uint64),
		filled: make(map[string]uint64),
	}
}

func (b *book) insert(o *Order) {
	b.orders[o.ID] = o
	if o.GroupID != "" {
		b.groups[o.GroupID] = append(b.groups[o.GroupID], o.ID)
	}
}

func (b *book) sorted(state OrderState) []*Order {
	out := make([]*Order, 0, len(b.orders))
	for _, o := range b.orders {
		if o.State == state {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out
}

// groupBusy reports whether another member of o's group is triggered or filled.
func (b *book) groupBusy(o *Order) bool {
	if o.GroupID == "" {
		return false
	}
	if b.filled[o.GroupID] != 0 {
		return true
	}
	for _, id := range b.groups[o.GroupID] {
		if id != o.ID && b.orders[id].State == OrderStateTriggered {
			return true
		}
	}
	return false
}

func sortOrders(orders []*Order) {
	slices.SortFunc(orders, func(a, b *Order) int {
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Option customizes an Engine.
type Option func(*Engine)

func WithGateway(g Gateway) Option {
	return func(e *Engine) {
		e.gateway = g
	}
}

func WithMetrics(m *obs.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock sets the source of creation timestamps in unix ms.
func WithClock(now func() int64) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithIDGenerator(ids *obs.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = ids
	}
}

// WithMaxConfirmRetries bounds transient confirmation failures before an order is cancelled.
func WithMaxConfirmRetries(n int) Option {
	return func(e *Engine) {
		e.maxRetries = n
	}
}

// WithAckTimeout cancels orders awaiting acknowledgement for longer than d.
// Zero waits until Acknowledge or Cancel.
func WithAckTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.ackTimeout = d.Milliseconds()
	}
}

// WithSettlement books every confirmed fill with s while the order is still
// triggered, so a fill the account cannot absorb never commits.
func WithSettlement(s Settler) Option {
	return func(e *Engine) {
		e.settle = s
	}
}

func WithFillHandler(h FillHandler) Option {
	return func(e *Engine) {
		e.onFill = h
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		maxRetries: DefaultMaxConfirmRetries,
		books:      make(map[string]*book),
		index:      make(map[uint64]string),
		groups:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.gateway == nil {
		e.gateway = NewSimulatedGateway(decimal.Zero)
	}
	if e.ids == nil {
		e.ids = obs.NewIDGenerator(0)
	}
	if e.now == nil {
		e.now = func() int64 { return time.Now().UnixMilli() }
	}
	return e
}

func (e *Engine) book(symbol string, create bool) *book {
	e.mu.RLock()
	b, ok := e.books[symbol]
	e.mu.RUnlock()
	if ok || !create {
		return b
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok = e.books[symbol]; !ok {
		b = newBook()
		e.books[symbol] = b
	}
	return b
}

func (e *Engine) bookOf(id uint64) (*book, error) {
	e.mu.RLock()
	symbol, ok := e.index[id]
	e.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(exception.ErrUnknownOrder, "order %d", id)
	}
	return e.book(symbol, false), nil
}

func (e *Engine) register(symbol, groupID string, orders ...*Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range orders {
		e.index[o.ID] = symbol
	}
	if groupID != "" {
		e.groups[groupID] = symbol
	}
}

func (e *Engine) newOrder(spec OrderSpec, now int64) *Order {
	createdAt := spec.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	return &Order{
		ID:           e.ids.Next(),
		Symbol:       spec.Symbol,
		Side:         spec.Side,
		Type:         spec.Type,
		Quantity:     spec.Quantity,
		LimitPrice:   spec.LimitPrice,
		TriggerPrice: spec.TriggerPrice,
		State:        OrderStateCreated,
		GroupID:      spec.GroupID,
		CreatedAt:    createdAt,
		ExpiresAt:    spec.ExpiresAt,
		Dependents:   spec.Dependents,
	}
}

// Create validates spec and accepts the order as pending. A non-empty
// GroupID joins an existing group of the same symbol.
func (e *Engine) Create(spec OrderSpec) (Order, error) {
	orders, err := e.create([]OrderSpec{spec}, spec.GroupID)
	if err != nil {
		return Order{}, err
	}
	return orders[0], nil
}

// CreateGroup accepts specs as one new bracket group: filling any member
// cancels the others.
func (e *Engine) CreateGroup(specs ...OrderSpec) ([]Order, error) {
	return e.create(specs, uuid.NewString())
}

func (e *Engine) create(specs []OrderSpec, groupID string) ([]Order, error) {
	if len(specs) == 0 {
		return nil, errors.Wrap(exception.ErrValidation, "no order to create")
	}
	specs = slices.Clone(specs)
	for i := range specs {
		specs[i].GroupID = groupID
		specs[i].Dependents = slices.Clone(specs[i].Dependents)
		if err := validateSpec(&specs[i]); err != nil {
			return nil, err
		}
		if specs[i].Symbol != specs[0].Symbol {
			return nil, errors.Wrapf(exception.ErrValidation, "group mixes %s and %s", specs[0].Symbol, specs[i].Symbol)
		}
	}

	symbol := specs[0].Symbol
	if groupID != "" {
		e.mu.RLock()
		known, ok := e.groups[groupID]
		e.mu.RUnlock()
		if ok && known != symbol {
			return nil, errors.Wrapf(exception.ErrValidation, "group %s belongs to %s", groupID, known)
		}
	}

	b := e.book(symbol, true)
	b.mu.Lock()
	defer b.mu.Unlock()

	if groupID != "" && b.filled[groupID] != 0 {
		return nil, errors.Wrapf(exception.ErrValidation, "group %s already filled", groupID)
	}

	now := e.now()
	created := make([]*Order, 0, len(specs))
	out := make([]Order, 0, len(specs))
	for _, spec := range specs {
		o := e.newOrder(spec, now)
		o.State = OrderStatePending
		b.insert(o)
		created = append(created, o)
		out = append(out, o.clone())
	}
	e.register(symbol, groupID, created...)
	return out, nil
}

// OnPrices runs one evaluation cycle and hands the fills to the fill handler.
func (e *Engine) OnPrices(symbol string, ticks []model.PriceTick) error {
	fills, err := e.Evaluate(context.Background(), symbol, ticks)
	e.dispatch(fills, &err)
	return err
}

func (e *Engine) dispatch(fills []model.Fill, err *error) {
	if e.onFill == nil {
		return
	}
	for _, f := range fills {
		if herr := e.onFill(f); herr != nil {
			logs.Errorf("handle fill of order %d, err: %+v", f.OrderID, herr)
			if *err == nil {
				*err = errors.Wrapf(herr, "handle fill of order %d", f.OrderID)
			}
		}
	}
}

// Evaluate runs one evaluation cycle for symbol:
//  1. dependents scheduled by earlier cycles become pending
//  2. triggered orders are confirmed, armed two-stage orders convert
//  3. pending orders are checked against every tick in (CreatedAt, ID) order
//
// An empty batch still runs steps 1 and 2.
func (e *Engine) Evaluate(ctx context.Context, symbol string, ticks []model.PriceTick) ([]model.Fill, error) {
	start := time.Now()
	defer func() {
		e.metrics.ObserveCycle(time.Since(start))
	}()

	b := e.book(symbol, false)
	if b == nil {
		return nil, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c := &cycle{Engine: e, ctx: ctx, b: b}
	c.promote()
	c.confirmTriggered()
	c.evaluate(ticks)
	return c.fills, c.err
}

type cycle struct {
	*Engine
	ctx   context.Context
	b     *book
	fills []model.Fill
	err   error
}

func (c *cycle) fail(err error) {
	logs.Errorf("evaluate orders, err: %+v", err)
	if c.err == nil {
		c.err = err
	}
}

func (c *cycle) promote() {
	for _, o := range c.b.scheduled {
		if o.State == OrderStateCreated {
			o.State = OrderStatePending
		}
	}
	c.b.scheduled = nil
}

func (c *cycle) confirmTriggered() {
	for _, o := range c.b.sorted(OrderStateTriggered) {
		if o.AwaitingAck {
			c.checkAck(o)
			continue
		}
		if o.Armed {
			c.confirm(o, o.TriggerPrice.Decimal, o.fireTs, true)
			continue
		}
		c.metrics.Inc(obs.CounterConfirmRetries)
		c.confirm(o, o.firePrice, o.fireTs, false)
	}
}

// checkAck cancels o when its acknowledgement is overdue.
func (c *cycle) checkAck(o *Order) {
	if c.ackTimeout <= 0 || c.now()-o.submittedAt < c.ackTimeout {
		return
	}
	o.cancel("acknowledgement timed out")
	c.metrics.Inc(obs.CounterCancels)
	logs.Errorf("cancel order %d, no acknowledgement within %dms", o.ID, c.ackTimeout)
}

func (c *cycle) evaluate(ticks []model.PriceTick) {
	pending := c.b.sorted(OrderStatePending)
	if len(pending) == 0 {
		return
	}

	for i := range ticks {
		tick := ticks[i]
		for _, o := range pending {
			if o.State != OrderStatePending || c.b.groupBusy(o) {
				continue
			}
			if o.ExpiresAt != 0 && tick.Timestamp >= o.ExpiresAt {
				o.cancel("expired")
				c.metrics.Inc(obs.CounterCancels)
				continue
			}

			fired, price, err := Trigger(*o, tick)
			if err != nil {
				c.fail(err)
				continue
			}
			if !fired {
				continue
			}

			c.metrics.Inc(obs.CounterTriggers)
			o.State = OrderStateTriggered
			o.firePrice = price
			o.fireTs = tick.Timestamp
			if o.Type.TwoStage() {
				o.Armed = true
				continue
			}
			c.confirm(o, price, tick.Timestamp, false)
		}
	}
}

func (c *cycle) confirm(o *Order, price decimal.Decimal, ts int64, conversion bool) {
	fill, err := c.gateway.Confirm(c.ctx, ConfirmRequest{
		Order:      o.clone(),
		Price:      price,
		Timestamp:  ts,
		Conversion: conversion,
	})
	if err != nil {
		c.confirmFailed(o, err)
		return
	}

	fill.Conversion = conversion
	if err := c.commit(c.b, o, fill); err != nil {
		c.fail(err)
		return
	}
	c.fills = append(c.fills, fill)
}

func (c *cycle) confirmFailed(o *Order, err error) {
	if errors.Is(err, exception.ErrAwaitingAck) {
		o.AwaitingAck = true
		o.submittedAt = c.now()
		logs.Infof("order %d submitted, awaiting acknowledgement", o.ID)
		return
	}
	if errors.Is(err, exception.ErrRejected) {
		o.cancel(fmt.Sprintf("rejected: %v", err))
		c.metrics.Inc(obs.CounterRejections)
		logs.Infof("order %d rejected, err: %+v", o.ID, err)
		return
	}

	o.attempts++
	if o.attempts > c.maxRetries {
		o.cancel(fmt.Sprintf("confirmation failed %d times: %v", o.attempts, err))
		c.metrics.Inc(obs.CounterCancels)
		logs.Errorf("cancel order %d after %d confirmation failures, err: %+v", o.ID, o.attempts, err)
	}
}

// commit settles the fill, marks o filled, cancels its siblings and schedules
// its dependents for the next cycle. A settlement failure cancels o and leaves
// its group and dependents untouched. The caller holds b.mu.
func (e *Engine) commit(b *book, o *Order, fill model.Fill) error {
	if isTerminal(o.State) {
		return errors.Wrapf(exception.ErrInvalidTransition, "fill order %d in state %s", o.ID, o.State)
	}

	gid := o.GroupID
	if gid != "" {
		if winner := b.filled[gid]; winner != 0 && winner != o.ID {
			o.cancel(fmt.Sprintf("group %s already filled by order %d", gid, winner))
			err := errors.Wrapf(exception.ErrInvariantViolation, "order %d would fill group %s already filled by order %d", o.ID, gid, winner)
			logs.Errorf("commit fill, err: %+v", err)
			return err
		}
	}

	if e.settle != nil {
		if err := e.settle(fill); err != nil {
			o.cancel(fmt.Sprintf("settlement failed: %v", err))
			e.metrics.Inc(obs.CounterRejections)
			return errors.Wrapf(err, "settle fill of order %d", o.ID)
		}
	}
	if gid != "" {
		b.filled[gid] = o.ID
	}

	o.State = OrderStateFilled
	o.Armed = false
	o.AwaitingAck = false
	o.FillPrice = fill.Price
	o.FilledAt = fill.Timestamp
	e.metrics.Inc(obs.CounterFills)

	if o.GroupID != "" {
		for _, id := range b.groups[o.GroupID] {
			sibling := b.orders[id]
			if id == o.ID || isTerminal(sibling.State) {
				continue
			}
			sibling.cancel(fmt.Sprintf("sibling order %d filled", o.ID))
			e.metrics.Inc(obs.CounterCancels)
		}
	}

	e.schedule(b, o)
	return nil
}

func (e *Engine) schedule(b *book, parent *Order) {
	specs := parent.Dependents
	if parent.Type.TwoStage() {
		specs = []OrderSpec{parent.limitLeg()}
	}
	if len(specs) == 0 {
		return
	}

	gid := uuid.NewString()
	created := make([]*Order, 0, len(specs))
	for _, spec := range specs {
		spec.GroupID = gid
		if spec.CreatedAt < parent.FilledAt {
			spec.CreatedAt = parent.FilledAt
		}
		o := e.newOrder(spec, parent.FilledAt)
		o.ParentID = parent.ID
		b.insert(o)
		b.scheduled = append(b.scheduled, o)
		created = append(created, o)
	}
	e.register(parent.Symbol, gid, created...)
}

// Acknowledge commits a confirmation that arrived outside an evaluation cycle.
func (e *Engine) Acknowledge(fill model.Fill) error {
	b, err := e.bookOf(fill.OrderID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	o := b.orders[fill.OrderID]
	if o.State != OrderStateTriggered {
		b.mu.Unlock()
		return errors.Wrapf(exception.ErrInvalidTransition, "acknowledge order %d in state %s", o.ID, o.State)
	}
	fill.Conversion = o.Armed
	err = e.commit(b, o, fill)
	b.mu.Unlock()
	if err != nil {
		return err
	}

	e.dispatch([]model.Fill{fill}, &err)
	return err
}

// Cancel cancels a non-terminal order. A fill committed before the cancel
// is observed wins and ErrAlreadyFilled is returned.
func (e *Engine) Cancel(id uint64, reason string) error {
	b, err := e.bookOf(id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o := b.orders[id]
	switch o.State {
	case OrderStateFilled:
		return errors.Wrapf(exception.ErrAlreadyFilled, "cancel order %d", id)
	case OrderStateCancelled:
		return nil
	}
	if reason == "" {
		reason = "cancelled"
	}
	o.cancel(reason)
	e.metrics.Inc(obs.CounterCancels)
	return nil
}

// Expire cancels every non-terminal order whose ExpiresAt is at or before now (unix ms).
func (e *Engine) Expire(now int64) []uint64 {
	e.mu.RLock()
	books := make([]*book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.RUnlock()

	var expired []uint64
	for _, b := range books {
		b.mu.Lock()
		for id, o := range b.orders {
			if isTerminal(o.State) || o.ExpiresAt == 0 || now < o.ExpiresAt {
				continue
			}
			o.cancel("expired")
			e.metrics.Inc(obs.CounterCancels)
			expired = append(expired, id)
		}
		b.mu.Unlock()
	}
	slices.Sort(expired)
	return expired
}

// Order returns a copy of the order.
func (e *Engine) Order(id uint64) (Order, bool) {
	b, err := e.bookOf(id)
	if err != nil {
		return Order{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orders[id].clone(), true
}

// Orders returns copies of every order on symbol in (CreatedAt, ID) order.
func (e *Engine) Orders(symbol string) []Order {
	return e.collect(symbol, func(*Order) bool { return true })
}

// Open returns copies of the non-terminal orders on symbol.
func (e *Engine) Open(symbol string) []Order {
	return e.collect(symbol, func(o *Order) bool { return !isTerminal(o.State) })
}

func (e *Engine) collect(symbol string, keep func(*Order) bool) []Order {
	b := e.book(symbol, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	matched := make([]*Order, 0, len(b.orders))
	for _, o := range b.orders {
		if keep(o) {
			matched = append(matched, o)
		}
	}
	sortOrders(matched)
	out := make([]Order, 0, len(matched))
	for _, o := range matched {
		out = append(out, o.clone())
	}
	return out
}
