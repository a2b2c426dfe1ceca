package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/metrics"
	"github.com/abelzeko/nuclear-bot/internal/state"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const staleGrace = 30 * time.Second

// Server exposes the published state over HTTP
type Server struct {
	state           *state.PublishedState
	metrics         *metrics.Metrics
	logger          *zap.Logger
	refreshInterval time.Duration
	now             func() time.Time
	router          *mux.Router
	server          *http.Server
}

// NewServer creates a new API server listening on addr
func NewServer(addr string, published *state.PublishedState, m *metrics.Metrics, refreshInterval time.Duration, logger *zap.Logger) *Server {
	s := &Server{
		state:           published,
		metrics:         m,
		logger:          logger.Named("api"),
		refreshInterval: refreshInterval,
		now:             time.Now,
	}

	r := mux.NewRouter()
	s.route(r, "/health", s.handleHealth)
	s.route(r, "/api/snapshot", s.handleSnapshot)
	s.route(r, "/api/total", s.handleTotal)
	s.route(r, "/api/plants/{plant}", s.handlePlant)
	s.route(r, "/api/plants/{plant}/reactors/{reactor}", s.handleReactor)
	s.route(r, "/api/sensors", s.handleSensors)
	s.route(r, "/api/sensors/{id}", s.handleSensor)
	r.Handle("/metrics", m.WrapHandler("/metrics", m.Handler())).Methods(http.MethodGet)
	s.router = r

	logged := handlers.LoggingHandler(zap.NewStdLog(s.logger).Writer(), r)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) route(r *mux.Router, path string, h http.HandlerFunc) {
	r.Handle(path, s.metrics.WrapHandler(path, h)).Methods(http.MethodGet)
}

// Handler returns the routed handler without access logging
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.server.Shutdown(ctx)
}

type stateResponse struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// PlantResponse is one plant's published data
type PlantResponse struct {
	Plant      string               `json:"plant"`
	Name       string               `json:"name"`
	LastUpdate time.Time            `json:"last_update"`
	Reactors   []state.ReactorState `json:"reactors"`
}

// HealthResponse reports refresh freshness
type HealthResponse struct {
	Status      string     `json:"status"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	AgeSeconds  float64    `json:"age_seconds,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) unknown(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusNotFound, stateResponse{State: state.StateUnknown})
}

// notReady writes 503 and reports true when no cycle has produced data yet or the last one failed
func (s *Server) notReady(w http.ResponseWriter) bool {
	if err := s.state.Failure(); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, stateResponse{State: state.StateUnavailable, Error: err.Error()})
		return true
	}
	snap := s.state.Snapshot()
	if snap == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, stateResponse{State: state.StateUnknown, Error: "no data yet"})
		return true
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.state.Failure(); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "failed", Error: err.Error()})
		return
	}
	last, ok := s.state.LastComputed()
	if !ok {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "starting"})
		return
	}

	age := s.now().Sub(last)
	resp := HealthResponse{Status: "ok", LastRefresh: &last, AgeSeconds: age.Seconds()}
	// one missed tick is tolerated
	if s.refreshInterval > 0 && age > 2*s.refreshInterval+staleGrace {
		resp.Status = "stale"
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if !s.state.Available() {
		resp.Status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.notReady(w) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	if s.notReady(w) {
		return
	}
	total, ok := s.state.Total()
	if !ok {
		s.writeJSON(w, http.StatusServiceUnavailable, stateResponse{State: state.StateUnavailable, Error: "no plant reported"})
		return
	}
	s.writeJSON(w, http.StatusOK, total)
}

func (s *Server) handlePlant(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["plant"]
	plant, ok := s.state.Registry().Plant(key)
	if !ok {
		s.unknown(w)
		return
	}
	if s.notReady(w) {
		return
	}
	last, ok := s.state.PlantLastUpdate(plant.Key)
	if !ok {
		s.unknown(w)
		return
	}

	resp := PlantResponse{Plant: plant.Key, Name: plant.Name, LastUpdate: last, Reactors: []state.ReactorState{}}
	for _, reactor := range plant.Reactors {
		if rs, ok := s.state.Reactor(plant.Key, reactor); ok {
			resp.Reactors = append(resp.Reactors, rs)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReactor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	plant, ok := s.state.Registry().Plant(vars["plant"])
	if !ok || !plant.HasReactor(vars["reactor"]) {
		s.unknown(w)
		return
	}
	if s.notReady(w) {
		return
	}
	rs, ok := s.state.Reactor(plant.Key, vars["reactor"])
	if !ok {
		s.unknown(w)
		return
	}
	s.writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.state.Sensors())
}

func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.state.Sensor(mux.Vars(r)["id"])
	if !ok {
		s.unknown(w)
		return
	}
	s.writeJSON(w, http.StatusOK, sensor)
}
