package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
	"github.com/kilianp07/agvdispatch/core/events"
	"github.com/kilianp07/agvdispatch/core/logger"
	"github.com/kilianp07/agvdispatch/core/metrics"
	coremon "github.com/kilianp07/agvdispatch/core/monitoring"
	"github.com/kilianp07/agvdispatch/core/plant"
	"github.com/kilianp07/agvdispatch/internal/eventbus"
)

// Work unit triggers.
const (
	TriggerExplicit = "explicit"
	TriggerPeriodic = "periodic"
)

// RouterFactory builds the router used for one snapshot of the plant.
type RouterFactory func(*plant.Model) Router

type job struct {
	ctx     context.Context
	trigger string
	cycle   bool
	fn      func(context.Context, *Cycle) error
	done    chan error
}

// Dispatcher runs dispatch cycles and dispatcher operations on a single
// worker goroutine. Each unit of work takes a fresh snapshot, so no state
// leaks from one unit to the next.
type Dispatcher struct {
	cfg       Config
	orders    OrderService
	plantSvc  PlantModelService
	routerFor RouterFactory
	phases    []Phase
	logger    logger.Logger
	metrics   metrics.MetricsSink
	bus       eventbus.EventBus
	store     logging.LogStore
	tracer    trace.Tracer
	limiter   *rate.Limiter

	mu      sync.Mutex
	running bool
	jobs    chan job
	stop    context.CancelFunc
	stopped chan struct{}
}

// NewDispatcher validates cfg and builds the configured phases.
func NewDispatcher(cfg Config, orders OrderService, plantSvc PlantModelService, routerFor RouterFactory, log logger.Logger) (*Dispatcher, error) {
	if orders == nil || plantSvc == nil || routerFor == nil {
		return nil, fmt.Errorf("%w: nil parameter provided to NewDispatcher", ErrInvalidArgument)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	var rechargePriority PriorityFunction
	if cfg.PrioritizedRecharging {
		rechargePriority = PropertyPriority(cfg.RechargePriorityProperty)
	}
	phases, err := BuildPhases(PhaseDeps{
		Config:             cfg,
		Parking:            NewNearestParkingPositionSupplier(),
		PrioritizedParking: NewPrioritizedParkingPositionSupplier(PropertyPriority(cfg.ParkingPriorityProperty)),
		Recharge:           NewRechargePositionSupplier(rechargePriority),
	})
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if iv := cfg.MinDispatchInterval(); iv > 0 {
		limit = rate.Every(iv)
	}
	return &Dispatcher{
		cfg:       cfg,
		orders:    orders,
		plantSvc:  plantSvc,
		routerFor: routerFor,
		phases:    phases,
		logger:    log,
		metrics:   metrics.NopSink{},
		store:     logging.NopStore{},
		tracer:    otel.Tracer("github.com/kilianp07/agvdispatch/core/dispatch"),
		limiter:   rate.NewLimiter(limit, 1),
	}, nil
}

// SetMetricsSink configures where cycle reports go.
func (d *Dispatcher) SetMetricsSink(s metrics.MetricsSink) {
	if s == nil {
		s = metrics.NopSink{}
	}
	d.mu.Lock()
	d.metrics = s
	d.mu.Unlock()
}

// SetEventBus configures the bus events are published on.
func (d *Dispatcher) SetEventBus(bus eventbus.EventBus) {
	d.mu.Lock()
	d.bus = bus
	d.mu.Unlock()
}

// SetLogStore configures the store used to persist decision logs.
func (d *Dispatcher) SetLogStore(store logging.LogStore) {
	if store == nil {
		store = logging.NopStore{}
	}
	d.mu.Lock()
	d.store = store
	d.mu.Unlock()
}

// Phases returns the configured phases in execution order.
func (d *Dispatcher) Phases() []Phase { return append([]Phase(nil), d.phases...) }

// Start initializes the phases and launches the worker. Calling Start on a
// running dispatcher does nothing.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	for _, p := range d.phases {
		p.Initialize()
	}
	wctx, cancel := context.WithCancel(ctx)
	d.jobs = make(chan job)
	d.stop = cancel
	d.stopped = make(chan struct{})
	d.running = true
	go d.work(wctx, d.jobs, d.stopped)
	d.logger.Infof("dispatcher started with phases %v", d.cfg.Phases)
}

// Stop ends the worker after the unit in progress and terminates the phases.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel, stopped := d.stop, d.stopped
	d.mu.Unlock()

	cancel()
	<-stopped
	for _, p := range d.phases {
		p.Terminate()
	}
	d.logger.Infof("dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context, jobs <-chan job, stopped chan<- struct{}) {
	defer close(stopped)
	var tick <-chan time.Time
	if iv := d.cfg.RedispatchInterval(); iv > 0 {
		t := time.NewTicker(iv)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-jobs:
			j.done <- d.run(j)
		case <-tick:
			if err := d.run(job{ctx: ctx, trigger: TriggerPeriodic, cycle: true, fn: d.runPhases}); err != nil {
				d.logger.Errorf("periodic dispatch failed: %v", err)
			}
		}
	}
}

// submit hands fn to the worker and waits for it to complete.
func (d *Dispatcher) submit(ctx context.Context, trigger string, cycle bool, fn func(context.Context, *Cycle) error) error {
	d.mu.Lock()
	jobs, stopped, running := d.jobs, d.stopped, d.running
	d.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	j := job{ctx: ctx, trigger: trigger, cycle: cycle, fn: fn, done: make(chan error, 1)}
	select {
	case jobs <- j:
	case <-stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes one unit of work against a fresh snapshot and reports it.
func (d *Dispatcher) run(j job) error {
	if j.cycle {
		if err := d.limiter.Wait(j.ctx); err != nil {
			return err
		}
	}
	// Once started, a unit runs to completion.
	ctx := context.WithoutCancel(j.ctx)
	spanName := "dispatch." + j.trigger
	if j.cycle {
		spanName = "dispatch.cycle"
	}
	ctx, span := d.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("trigger", j.trigger)))
	defer span.End()

	start := time.Now()
	d.mu.Lock()
	bus, sink, store := d.bus, d.metrics, d.store
	d.mu.Unlock()

	c, err := d.newCycle(ctx, j.trigger, bus)
	if err == nil {
		err = j.fn(ctx, c)
	}
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	d.report(ctx, c, j, start, dur, err, bus, sink, store)
	return err
}

func (d *Dispatcher) newCycle(ctx context.Context, trigger string, bus eventbus.EventBus) (*Cycle, error) {
	m, err := d.plantSvc.FetchPlantModel(ctx)
	if err != nil {
		return nil, serviceError("fetch plant model", err)
	}
	vehicles, err := d.orders.FetchVehicles(ctx)
	if err != nil {
		return nil, serviceError("fetch vehicles", err)
	}
	orders, err := d.orders.FetchTransportOrders(ctx)
	if err != nil {
		return nil, serviceError("fetch transport orders", err)
	}
	snap := NewSnapshot(m, d.routerFor(m), vehicles, orders)
	return NewCycle(uuid.NewString(), trigger, snap, d.orders, bus), nil
}

// runPhases executes every configured phase in order. A phase error stops
// the cycle; effects of the phases already run stay in place.
func (d *Dispatcher) runPhases(ctx context.Context, c *Cycle) error {
	for _, p := range d.phases {
		if !p.IsInitialized() {
			p.Initialize()
		}
		c.enterPhase(p.Name())
		pctx, span := d.tracer.Start(ctx, "dispatch.phase", trace.WithAttributes(attribute.String("phase", p.Name())))
		start := time.Now()
		err := p.Run(pctx, c)
		phaseDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return fmt.Errorf("phase %s: %w", p.Name(), err)
		}
		span.End()
	}
	c.enterPhase("")
	return nil
}

func (d *Dispatcher) report(ctx context.Context, c *Cycle, j job, start time.Time, dur time.Duration, err error, bus eventbus.EventBus, sink metrics.MetricsSink, store logging.LogStore) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cycleCount.WithLabelValues(j.trigger, result).Inc()
	if j.cycle {
		cycleDuration.Observe(dur.Seconds())
	}
	id := ""
	var decisions []Decision
	rep := metrics.CycleReport{Trigger: j.trigger, Start: start, Duration: dur}
	if c != nil {
		observeCycle(c)
		id = c.ID
		decisions = c.Decisions()
		rep.CycleID = c.ID
		rep.Assignments = c.Assignments()
		rep.Created = c.Created()
		rep.Failed = c.Failures()
		rep.Decisions = len(decisions)
	}
	errText := ""
	if err != nil {
		errText = err.Error()
		rep.Err = errText
		d.logger.Errorf("dispatch %s failed: %v", j.trigger, err)
		if reportable(err) {
			coremon.CaptureException(err, map[string]string{"module": "dispatch", "trigger": j.trigger, "cycle": id})
		}
	}
	if len(decisions) > 0 || err != nil {
		if serr := store.Append(ctx, logging.LogRecord{
			Timestamp: start,
			CycleID:   id,
			Trigger:   j.trigger,
			Duration:  dur.Seconds(),
			Decisions: decisions,
			Error:     errText,
		}); serr != nil {
			d.logger.Errorf("decision log error: %v", serr)
		}
		d.logger.Debugw("dispatch unit done", map[string]any{
			"cycle": id, "trigger": j.trigger, "decisions": len(decisions), "duration": dur.String(),
		})
	}
	if j.cycle {
		if serr := sink.RecordCycle(rep); serr != nil {
			d.logger.Errorf("metrics error: %v", serr)
		}
	}
	if bus != nil {
		assigned, failed := 0, 0
		for _, n := range rep.Assignments {
			assigned += n
		}
		for _, n := range rep.Failed {
			failed += n
		}
		bus.Publish(events.CycleEvent{
			CycleID: id, Trigger: j.trigger, Assignments: assigned, Failures: failed,
			Duration: dur, Err: err, Time: start,
		})
	}
}

// Dispatch runs one dispatch cycle and returns once it completed.
func (d *Dispatcher) Dispatch(ctx context.Context) error {
	return d.submit(ctx, TriggerExplicit, true, d.runPhases)
}
