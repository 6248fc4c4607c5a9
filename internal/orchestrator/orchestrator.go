// Package orchestrator drives the ticker -> contracts -> selection -> heatmap
// flow. Each action is a pure transition over an immutable Snapshot; the
// Orchestrator serializes them and publishes every new snapshot.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/pkg/interfaces"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/irfndi/optionscope/internal/orchestrator"

// Event describes one applied transition.
type Event struct {
	Action   Action
	Snapshot Snapshot
}

// Observer is called after every applied transition, outside the lock and in
// the goroutine that performed the action.
type Observer func(Event)

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the component logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock sets the clock stamped on loaded catalogs.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithObserver registers an observer.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, fn) }
}

// Orchestrator owns the catalog, selection and heatmap of one user.
type Orchestrator struct {
	pricing interfaces.PricingService
	logger  *logrus.Logger
	tracer  trace.Tracer
	now     func() time.Time

	mu           sync.Mutex
	snap         Snapshot
	contractsGen uint64
	heatmapGen   uint64
	subscribers  map[chan Snapshot]struct{}
	closed       bool

	observers []Observer
}

// New creates an idle orchestrator backed by the given pricing service.
func New(pricing interfaces.PricingService, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pricing:     pricing,
		logger:      logrus.StandardLogger(),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		snap:        reset(Snapshot{}),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// SetTicker stores the pending ticker without fetching anything.
func (o *Orchestrator) SetTicker(ticker string) Snapshot {
	o.mu.Lock()
	snap := o.commitLocked(setTicker(o.snap, ticker))
	o.mu.Unlock()

	o.notify(ActionSetTicker, snap)
	return snap
}

// LoadContracts fetches the option chain of the pending ticker. It returns
// the snapshot produced by the completion together with the fetch error, if
// any. A completion made stale by a newer action is dropped and the caller
// receives ErrSuperseded with the current snapshot.
func (o *Orchestrator) LoadContracts(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	loading, ticker, err := beginLoadContracts(o.snap)
	if err != nil {
		snap := o.snap
		o.mu.Unlock()
		return snap, err
	}
	o.contractsGen++
	o.heatmapGen++
	gen := o.contractsGen
	loading = o.commitLocked(loading)
	o.mu.Unlock()
	o.notify(ActionLoadContracts, loading)

	ctx, span := o.tracer.Start(ctx, "orchestrator.LoadContracts",
		trace.WithAttributes(attribute.String("ticker", ticker)))
	defer span.End()

	contracts, fetchErr := o.pricing.FetchContracts(ctx, ticker)

	o.mu.Lock()
	if gen != o.contractsGen {
		snap := o.snap
		o.mu.Unlock()
		o.logger.WithFields(logrus.Fields{
			"ticker":     ticker,
			"generation": gen,
		}).Debug("Discarding stale contracts response")
		span.SetAttributes(attribute.Bool("superseded", true))
		return snap, ErrSuperseded
	}
	var next Snapshot
	if fetchErr != nil {
		next = contractsFailed(o.snap, fetchErr)
	} else {
		next = contractsLoaded(o.snap, ticker, contracts, o.now())
	}
	snap := o.commitLocked(next)
	o.mu.Unlock()

	if fetchErr != nil {
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, fetchErr.Error())
		o.logger.WithError(fetchErr).WithField("ticker", ticker).Warn("Loading contracts failed")
	} else {
		span.SetAttributes(attribute.Int("contracts", len(contracts)))
	}
	o.notify(ActionContractsLoaded, snap)
	return snap, fetchErr
}

// SelectContract selects the contract at flat catalog index.
func (o *Orchestrator) SelectContract(index int) (Snapshot, error) {
	o.mu.Lock()
	next, err := selectContract(o.snap, index)
	if err != nil {
		snap := o.snap
		o.mu.Unlock()
		return snap, err
	}
	o.heatmapGen++
	snap := o.commitLocked(next)
	o.mu.Unlock()

	o.notify(ActionSelectContract, snap)
	return snap, nil
}

// SetModel changes the pricing model of the current selection.
func (o *Orchestrator) SetModel(model models.PricingModel) (Snapshot, error) {
	o.mu.Lock()
	next, err := setModel(o.snap, model)
	if err != nil {
		snap := o.snap
		o.mu.Unlock()
		return snap, err
	}
	o.heatmapGen++
	snap := o.commitLocked(next)
	o.mu.Unlock()

	o.notify(ActionSetModel, snap)
	return snap, nil
}

// LoadHeatmap fetches the heatmap of the selected contract with the chosen
// model. Staleness is handled as in LoadContracts.
func (o *Orchestrator) LoadHeatmap(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	loading, req, err := beginLoadHeatmap(o.snap)
	if err != nil {
		snap := o.snap
		o.mu.Unlock()
		return snap, err
	}
	o.heatmapGen++
	gen := o.heatmapGen
	loading = o.commitLocked(loading)
	o.mu.Unlock()
	o.notify(ActionLoadHeatmap, loading)

	ctx, span := o.tracer.Start(ctx, "orchestrator.LoadHeatmap",
		trace.WithAttributes(
			attribute.String("ticker", req.ticker),
			attribute.String("contract", req.contract.Label()),
			attribute.String("model", string(req.model)),
		))
	defer span.End()

	result, fetchErr := o.pricing.FetchHeatmap(ctx, req.ticker, req.contract, req.model)

	o.mu.Lock()
	if gen != o.heatmapGen {
		snap := o.snap
		o.mu.Unlock()
		o.logger.WithFields(logrus.Fields{
			"ticker":     req.ticker,
			"model":      req.model,
			"generation": gen,
		}).Debug("Discarding stale heatmap response")
		span.SetAttributes(attribute.Bool("superseded", true))
		return snap, ErrSuperseded
	}
	var next Snapshot
	if fetchErr != nil {
		next = heatmapFailed(o.snap, fetchErr)
	} else {
		next = heatmapLoaded(o.snap, result)
	}
	snap := o.commitLocked(next)
	o.mu.Unlock()

	if fetchErr != nil {
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, fetchErr.Error())
		o.logger.WithError(fetchErr).WithFields(logrus.Fields{
			"ticker": req.ticker,
			"model":  req.model,
		}).Warn("Loading heatmap failed")
	}
	o.notify(ActionHeatmapLoaded, snap)
	return snap, fetchErr
}

// Reset returns to Idle and forgets everything, including in-flight loads.
func (o *Orchestrator) Reset() Snapshot {
	o.mu.Lock()
	o.contractsGen++
	o.heatmapGen++
	snap := o.commitLocked(reset(o.snap))
	o.mu.Unlock()

	o.notify(ActionReset, snap)
	return snap
}

// Subscribe returns a channel receiving every new snapshot and a function
// that unsubscribes and closes it. When the channel is full the oldest
// pending snapshot is dropped.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	o.subscribers[ch] = struct{}{}
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if _, ok := o.subscribers[ch]; ok {
				delete(o.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Close closes every subscriber channel. Actions keep working afterwards.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for ch := range o.subscribers {
		delete(o.subscribers, ch)
		close(ch)
	}
}

// commitLocked stores next as the current snapshot and fans it out.
func (o *Orchestrator) commitLocked(next Snapshot) Snapshot {
	next.Version = o.snap.Version + 1
	o.snap = next
	for ch := range o.subscribers {
		select {
		case ch <- next:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- next:
		default:
		}
	}
	return next
}

func (o *Orchestrator) notify(action Action, snap Snapshot) {
	o.logger.WithFields(logrus.Fields{
		"action":  action,
		"state":   snap.State.String(),
		"version": snap.Version,
	}).Debug("Orchestrator transition")

	for _, fn := range o.observers {
		fn(Event{Action: action, Snapshot: snap})
	}
}

// IsSuperseded reports whether err is ErrSuperseded.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
