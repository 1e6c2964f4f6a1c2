package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Heartbeat records the driver's most recent progress (RPC response or
// commit). The health endpoint reports unhealthy once it goes stale.
type Heartbeat struct {
	last atomic.Int64
}

func NewHeartbeat() *Heartbeat {
	hb := &Heartbeat{}
	hb.Beat()
	return hb
}

func (h *Heartbeat) Beat() {
	h.last.Store(time.Now().UnixNano())
}

func (h *Heartbeat) Age() time.Duration {
	return time.Since(time.Unix(0, h.last.Load()))
}

// Server exposes /metrics and /health on the configured bind address.
type Server struct {
	srv       *http.Server
	heartbeat *Heartbeat
	staleness time.Duration
}

func NewServer(address string, port int, heartbeat *Heartbeat, staleness time.Duration) *Server {
	if staleness <= 0 {
		staleness = 60 * time.Second
	}
	s := &Server{
		heartbeat: heartbeat,
		staleness: staleness,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", address, port),
		Handler: mux,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	age := s.heartbeat.Age()
	if age > s.staleness {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "stale: no progress for %s\n", age.Round(time.Second))
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok\n")
}

func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("Metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
