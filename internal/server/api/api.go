// Package api serves compiled blueprints over HTTP.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/knitplan/internal/blueprint"
	"github.com/atvirokodosprendimai/knitplan/internal/catalog"
	"github.com/atvirokodosprendimai/knitplan/internal/db"
	"github.com/atvirokodosprendimai/knitplan/internal/manifest"
	"github.com/atvirokodosprendimai/knitplan/internal/messaging"
)

// stageDocument labels failures in a blueprint document that happen outside
// the blueprint package, such as references to undefined names.
const stageDocument = "document"

const maxBlueprintSize = 1 << 20

// Publisher announces compiled blueprints to deployment engines.
type Publisher interface {
	PublishCompiled(msg messaging.CompiledBlueprint) error
}

// NATSPublisher publishes on a NATS connection.
type NATSPublisher struct {
	Conn *nats.Conn
}

// PublishCompiled implements Publisher.
func (p NATSPublisher) PublishCompiled(msg messaging.CompiledBlueprint) error {
	return messaging.PublishCompiled(p.Conn, msg)
}

// Config holds the dependencies of the HTTP API. Publisher and Keys may be
// nil.
type Config struct {
	DB        *gorm.DB
	Publisher Publisher
	Keys      manifest.KeySource
	Registry  *prometheus.Registry
}

type server struct {
	db        *gorm.DB
	publisher Publisher
	keys      manifest.KeySource
	metrics   *Metrics
}

// NewRouter returns the HTTP handler of the API.
func NewRouter(cfg Config) http.Handler {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &server{
		db:        cfg.DB,
		publisher: cfg.Publisher,
		keys:      cfg.Keys,
		metrics:   NewMetrics(reg),
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
	})
	r.Get("/infrastructure", s.infrastructureHandler)
	r.Get("/compilations", s.compilationsHandler)
	r.Post("/blueprints", s.blueprintCreateHandler)
	r.Get("/providers", s.providersHandler)
	r.Get("/providers/{provider}/sizes", s.sizesHandler)
	r.Get("/engines", s.enginesHandler)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Writing response")
	}
}

func writeError(w http.ResponseWriter, status int, stage string, err error) {
	body := map[string]string{"error": err.Error()}
	if stage != "" {
		body["stage"] = stage
	}
	writeJSON(w, status, body)
}

// infrastructureHandler returns the latest compiled IR, or {} when nothing
// has been compiled.
func (s *server) infrastructureHandler(w http.ResponseWriter, r *http.Request) {
	c, err := db.LatestCompilation(s.db, r.URL.Query().Get("namespace"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if c == nil {
		_, _ = w.Write([]byte("{}"))
		return
	}
	w.Header().Set("X-Knit-Run-ID", c.RunID)
	w.Header().Set("X-Knit-Digest", c.Digest)
	_, _ = w.Write([]byte(c.IR))
}

type compilationSummary struct {
	RunID     string    `json:"run_id"`
	Namespace string    `json:"namespace"`
	Digest    string    `json:"digest,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *server) compilationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "", fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	cs, err := db.ListCompilations(s.db, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}
	out := make([]compilationSummary, 0, len(cs))
	for _, c := range cs {
		out = append(out, compilationSummary{
			RunID:     c.RunID,
			Namespace: c.Namespace,
			Digest:    c.Digest,
			Stage:     c.Stage,
			Error:     c.Error,
			CreatedAt: c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) blueprintCreateHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBlueprintSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "", fmt.Errorf("blueprint exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "", fmt.Errorf("failed to read request body: %w", err))
		return
	}
	doc, err := manifest.ParseBytes(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err)
		return
	}

	start := time.Now()
	d, err := manifest.Compile(r.Context(), doc, s.keys)
	if err != nil {
		stage := stageDocument
		var be *blueprint.Error
		if errors.As(err, &be) {
			stage = string(be.Stage)
		}
		s.metrics.observe(stage, time.Since(start).Seconds())

		namespace := doc.Namespace
		if namespace == "" {
			namespace = blueprint.DefaultNamespace
		}
		failed := &db.Compilation{
			RunID:     uuid.NewString(),
			Namespace: namespace,
			Stage:     stage,
			Error:     err.Error(),
		}
		if err := db.SaveCompilation(s.db, failed); err != nil {
			log.WithError(err).Error("Recording failed compilation")
		}
		log.WithFields(log.Fields{"stage": stage, "run_id": failed.RunID}).Info("Rejected blueprint")
		writeError(w, http.StatusUnprocessableEntity, stage, err)
		return
	}
	s.metrics.observe("", time.Since(start).Seconds())

	c, err := db.NewCompilation(d)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}
	if err := db.SaveCompilation(s.db, c); err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}

	if s.publisher != nil {
		msg := messaging.CompiledBlueprint{RunID: c.RunID, Namespace: c.Namespace, Digest: c.Digest, Deployment: d}
		if err := s.publisher.PublishCompiled(msg); err != nil {
			writeError(w, http.StatusInternalServerError, "", err)
			return
		}
	}

	log.WithFields(log.Fields{
		"run_id":    c.RunID,
		"namespace": c.Namespace,
		"digest":    c.Digest,
	}).Info("Compiled blueprint")
	writeJSON(w, http.StatusCreated, compilationSummary{
		RunID:     c.RunID,
		Namespace: c.Namespace,
		Digest:    c.Digest,
		CreatedAt: c.CreatedAt,
	})
}

func (s *server) providersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Providers())
}

func (s *server) sizesHandler(w http.ResponseWriter, r *http.Request) {
	descs, err := catalog.Descriptions(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "", err)
		return
	}
	writeJSON(w, http.StatusOK, descs)
}

func (s *server) enginesHandler(w http.ResponseWriter, r *http.Request) {
	engines, err := db.ListEngines(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}
	if engines == nil {
		engines = []db.Engine{}
	}
	writeJSON(w, http.StatusOK, engines)
}
