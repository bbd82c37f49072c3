package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	dispatchapi "github.com/kilianp07/agvdispatch/api/dispatch"
	"github.com/kilianp07/agvdispatch/api/vehicles"
	"github.com/kilianp07/agvdispatch/config"
	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
	"github.com/kilianp07/agvdispatch/core/kernel"
	coremetrics "github.com/kilianp07/agvdispatch/core/metrics"
	coremon "github.com/kilianp07/agvdispatch/core/monitoring"
	"github.com/kilianp07/agvdispatch/core/plant"
	"github.com/kilianp07/agvdispatch/core/routing"
	"github.com/kilianp07/agvdispatch/infra/logger"
	"github.com/kilianp07/agvdispatch/infra/metrics"
	"github.com/kilianp07/agvdispatch/infra/monitoring"
	"github.com/kilianp07/agvdispatch/infra/mqtt"
	"github.com/kilianp07/agvdispatch/infra/telemetry"
	"github.com/kilianp07/agvdispatch/internal/eventbus"
)

// eventBuffer is how far a bus subscriber may lag behind the dispatcher.
const eventBuffer = 64

// Service wires the kernel, the dispatcher and their surroundings.
type Service struct {
	Kernel     *kernel.MemoryKernel
	Dispatcher *dispatch.Dispatcher

	cfg       *config.Config
	bus       *eventbus.Bus
	sink      coremetrics.MetricsSink
	store     logging.LogStore
	mqtt      *mqtt.PahoClient
	telemetry *telemetry.Manager
	log       logger.Logger
}

// New creates a Service from the configuration. The kernel starts with the
// configured scenario.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	coremon.Init(monitoring.NewLogMonitor(logger.New("monitoring")))

	scenario, err := kernel.LoadScenario(cfg.Kernel.Scenario)
	if err != nil {
		return nil, err
	}
	k, err := scenario.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	ev, err := routing.NewEvaluator(cfg.Routing.Evaluators)
	if err != nil {
		return nil, fmt.Errorf("routing: %w", err)
	}
	routerFor := func(m *plant.Model) dispatch.Router { return routing.NewRouter(m, ev) }
	d, err := dispatch.NewDispatcher(cfg.Dispatch, k, k, routerFor, logger.New("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := OpenLogStore(cfg.Logging)
	if err != nil {
		coremetrics.CloseSink(sink)
		return nil, fmt.Errorf("decision log: %w", err)
	}
	bus := eventbus.NewBuffered(eventBuffer)
	d.SetMetricsSink(sink)
	d.SetEventBus(bus)
	d.SetLogStore(store)

	svc := &Service{
		Kernel:     k,
		Dispatcher: d,
		cfg:        cfg,
		bus:        bus,
		sink:       sink,
		store:      store,
		log:        logg,
	}
	if cfg.MQTTEnabled() {
		if svc.mqtt, err = mqtt.NewPahoClient(cfg.MQTT); err != nil {
			svc.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
	}
	if cfg.Telemetry.Enabled {
		if svc.telemetry, err = telemetry.NewManager(cfg.MQTT, cfg.Telemetry, k, d.Dispatch); err != nil {
			svc.Close()
			return nil, fmt.Errorf("telemetry: %w", err)
		}
	}
	return svc, nil
}

// OpenLogStore opens the decision log backend selected by cfg.
func OpenLogStore(cfg config.LoggingConfig) (logging.LogStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return logging.NewSQLiteStore(cfg.Path)
	case "jsonl", "":
		if cfg.MaxSizeMB > 0 {
			return logging.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return logging.NewJSONLStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown backend %s", cfg.Backend)
	}
}

// Handler returns the HTTP API: dispatcher operations, decision logs, order
// management and the fleet endpoints.
func (s *Service) Handler() (http.Handler, error) {
	api, err := dispatchapi.NewHandler(s.Dispatcher, s.store,
		dispatchapi.WithOrders(s.Kernel),
		dispatchapi.WithToken(s.cfg.HTTP.Token),
		dispatchapi.WithTimeout(s.cfg.HTTP.Timeout()),
		dispatchapi.WithLogger(logger.New("api")),
	)
	if err != nil {
		return nil, err
	}
	fleet := http.NewServeMux()
	fleet.Handle("GET /api/vehicles/status", vehicles.NewStatusHandler(s.Kernel))
	fleet.Handle("/api/vehicles/", vehicles.NewControlHandler(s.Kernel))

	mux := http.NewServeMux()
	mux.Handle("/api/dispatch", api)
	mux.Handle("/api/dispatch/", api)
	mux.Handle("/api/vehicles/", dispatchapi.RequireToken(s.cfg.HTTP.Token, fleet))
	return mux, nil
}

// Run starts every component and blocks until the context is cancelled or
// the HTTP server fails.
func (s *Service) Run(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	s.Dispatcher.Start(ctx)
	defer s.Dispatcher.Stop()

	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.mqtt != nil {
		mqtt.StartOrderForwarder(ctx, s.bus, s.mqtt, mqtt.ForwarderOptions{
			AckTimeout: s.cfg.Forwarding.AckTimeout(),
			Logger:     logger.New("forwarder"),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.telemetry != nil {
		g.Go(func() error {
			s.telemetry.Start(gctx)
			return nil
		})
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		g.Go(func() error { return metrics.StartPromServer(gctx, addr) })
	}
	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		s.log.Infof("serving dispatch API on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Orders from the scenario are dispatched right away.
	if err := s.Dispatcher.Dispatch(ctx); err != nil {
		s.log.Warnf("initial dispatch: %v", err)
	}
	return g.Wait()
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	s.bus.Close()
	coremetrics.CloseSink(s.sink)
	coremon.Flush(2 * time.Second)
	return s.store.Close()
}
