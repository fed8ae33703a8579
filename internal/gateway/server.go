package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zhulik/pal"

	"graphsync/internal/chat"
	"graphsync/internal/config"
	"graphsync/internal/counter"
	"graphsync/internal/posts"
	"graphsync/internal/profiles"
	"graphsync/internal/relation"
	"graphsync/internal/subs"
)

var (
	connectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphsync_gateway_connections_open",
		Help: "Currently open gateway WebSocket connections",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphsync_gateway_frames_total",
		Help: "Client frames processed by the gateway",
	}, []string{"op", "outcome"})
)

// Server is the produced interface of the sync layer: UI consumers hold
// one WebSocket, subscribe to the paths their surfaces display, and invoke
// mutations. Displayed state only ever comes from delivered snapshots -
// the gateway never echoes an optimistic pre-write value.
type Server struct {
	Logger   *slog.Logger
	Config   *config.Config
	Subs     *subs.Manager
	Relation *relation.Writer
	Counter  *counter.Maintainer
	Chat     *chat.Service
	Profiles *profiles.Repository
	Posts    *posts.Repository

	server   *http.Server
	upgrader websocket.Upgrader
	health   func(context.Context) error
}

func (s *Server) Init(ctx context.Context) error {
	s.Logger = s.Logger.With("component", "gateway.Server")
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	p := pal.FromContext(ctx)
	s.health = p.HealthCheck

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.health(r.Context()); err != nil {
			s.Logger.Error("health check failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	s.server = &http.Server{
		Addr:              s.Config.Listen,
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}
	return nil
}

func (s *Server) Run(ctx context.Context) error {
	s.Logger.Info("Starting gateway", "addr", s.server.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	connectionsOpen.Inc()
	defer connectionsOpen.Dec()

	c := newConn(s, ws)
	defer c.close()

	c.readLoop(r.Context())
}
