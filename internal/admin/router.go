// Package admin serves the operator HTTP API: health, prometheus metrics, the
// latest population snapshot, entity retirement and observer placement.
// Handlers never touch simulation state directly. They read the atomically
// published snapshot, queue retire requests for the game loop and write the
// lock-guarded observer set.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/core/ecs"
	"github.com/holdfast/server/internal/system"
	"github.com/holdfast/server/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SnapshotSource yields the latest published population snapshot, or nil
// before the first one.
type SnapshotSource interface {
	Latest() *system.PopulationSnapshot
}

// Retirer queues an entity for permanent removal on the next tick.
type Retirer interface {
	RequestRetire(id ecs.EntityID) bool
}

// RouterConfig carries the router's dependencies.
type RouterConfig struct {
	Snapshots SnapshotSource
	Retirer   Retirer // nil leaves DELETE /population/{id} unmounted
	Observers *world.ObserverSet
	Gatherer  prometheus.Gatherer // nil uses the default registry
	Log       *zap.Logger

	CORSOrigins []string
	// WriteLimiter throttles observer updates and retire requests. Nil disables throttling.
	WriteLimiter *rate.Limiter
}

type handlers struct {
	snapshots SnapshotSource
	retirer   Retirer
	observers *world.ObserverSet
}

// NewRouter builds the admin router. It starts nothing, so tests can mount
// it on httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}

	h := &handlers{snapshots: cfg.Snapshots, retirer: cfg.Retirer, observers: cfg.Observers}
	throttled := func(r chi.Router) {
		if cfg.WriteLimiter != nil {
			r.Use(limit(cfg.WriteLimiter))
		}
	}

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/population", func(r chi.Router) {
		r.Get("/", h.handlePopulation)
		if h.retirer != nil {
			r.Group(func(r chi.Router) {
				throttled(r)
				r.Delete("/{id}", h.handleRetire)
			})
		}
	})

	r.Route("/observers", func(r chi.Router) {
		r.Get("/", h.handleListObservers)
		r.Group(func(r chi.Router) {
			throttled(r)
			r.Put("/{id}", h.handlePutObserver)
			r.Delete("/{id}", h.handleDeleteObserver)
		})
	})
	return r
}

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *handlers) handlePopulation(w http.ResponseWriter, _ *http.Request) {
	snap := h.snapshots.Latest()
	if snap == nil {
		writeError(w, "simulation has not ticked yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

// handleRetire accepts the index:generation entity id. Removal happens on the
// game loop, so a stale id is accepted here and ignored there.
func (h *handlers) handleRetire(w http.ResponseWriter, r *http.Request) {
	id, err := ecs.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !h.retirer.RequestRetire(id) {
		w.Header().Set("Retry-After", "1")
		writeError(w, "retire queue full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type observerBody struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (h *handlers) handleListObservers(w http.ResponseWriter, _ *http.Request) {
	ps := h.observers.ObserverPositions()
	out := make([]observerBody, len(ps))
	for i, p := range ps {
		out[i] = observerBody{X: p[0], Y: p[1], Z: p[2]}
	}
	writeJSON(w, out)
}

func (h *handlers) handlePutObserver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body observerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid observer body", http.StatusBadRequest)
		return
	}
	h.observers.Set(id, mgl64.Vec3{body.X, body.Y, body.Z})
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleDeleteObserver(w http.ResponseWriter, r *http.Request) {
	if !h.observers.Remove(chi.URLParam(r, "id")) {
		writeError(w, "unknown observer", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func limit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("admin request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
