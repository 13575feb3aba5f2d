package node

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/go-rtps/discovery/metrics"
	"github.com/go-rtps/discovery/pdp"
	"github.com/go-rtps/discovery/pps"
	"github.com/go-rtps/discovery/timer"
)

// simpleService adapts a pdp.Simple engine to the Service interface.
type simpleService struct {
	simple *pdp.Simple
}

func (s *simpleService) Name() string { return "pdp.simple" }

func (s *simpleService) Start(ctx context.Context) error {
	s.simple.Start()
	return nil
}

func (s *simpleService) Stop() error {
	s.simple.Stop()
	return nil
}

// serverService adapts a pdp.Server engine to the Service interface,
// starting both the underlying Simple announce loop and the
// DServerEvent-equivalent sync pass.
type serverService struct {
	server *pdp.Server
	cfg    pdp.ServerConfig
}

func (s *serverService) Name() string { return "pdp.server" }

func (s *serverService) Start(ctx context.Context) error {
	s.server.Start()
	s.server.StartSync(s.cfg)
	return nil
}

func (s *serverService) Stop() error {
	s.server.StopSync()
	s.server.Stop()
	return nil
}

// leaseService periodically scans the Participant Proxy Store for
// expired leases and removes them, driving the metrics gauge/counter
// spec.md §4.2's lease sweep implies.
type leaseService struct {
	store         *pps.Store
	driver        timer.Driver
	leaseDuration time.Duration
	metrics       *metrics.Collectors
	log           *zap.Logger

	cancel timer.CancelFunc
}

func (s *leaseService) Name() string { return "pps.lease-scan" }

func (s *leaseService) period() time.Duration {
	if s.leaseDuration <= 0 {
		return 5 * time.Second
	}
	return s.leaseDuration / 4
}

func (s *leaseService) Start(ctx context.Context) error {
	s.scheduleNext()
	return nil
}

func (s *leaseService) scheduleNext() {
	s.cancel = s.driver.Schedule(s.driver.Now().Add(s.period()), func() {
		s.tick()
		s.scheduleNext()
	})
}

func (s *leaseService) tick() {
	expired := s.store.LeaseTick(time.Now())
	for _, prefix := range expired {
		s.store.Remove(prefix, pps.ReasonLease)
		s.metrics.LeaseExpirations.Inc()
		s.log.Info("lease expired", zap.String("prefix", prefix.String()))
	}
	s.metrics.LiveParticipants.Set(float64(s.store.Size()))
}

func (s *leaseService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// metricsService exposes the registered collectors over HTTP, the way
// the teacher's middleware registers a /metrics handler alongside its
// other services rather than wiring a bespoke exporter.
type metricsService struct {
	addr   string
	log    *zap.Logger
	server *http.Server
}

func newMetricsService(addr string, handler http.Handler, log *zap.Logger) *metricsService {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &metricsService{
		addr:   addr,
		log:    log,
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

func (s *metricsService) Name() string { return "metrics.http" }

func (s *metricsService) Start(ctx context.Context) error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *metricsService) Stop() error {
	return s.server.Close()
}
