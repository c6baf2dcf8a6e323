// Package restserver serves the device's command and query API over HTTP.
package restserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ambience-earth/ambience/internal/device"
	"github.com/ambience-earth/ambience/internal/log"
	"github.com/ambience-earth/ambience/internal/types"
	"github.com/ambience-earth/ambience/pkg/config"
)

// ArchiveReader reads archived events. Implemented by the SQLite archive
// backend.
type ArchiveReader interface {
	Recent(ctx context.Context, deviceID string, limit int) ([]types.Event, error)
}

// Deps are the services the REST server exposes.
type Deps struct {
	Device *device.Device
	// Archive enables /archive/events when set.
	Archive ArchiveReader
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	deps       Deps
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, deps Deps, logger *zap.SugaredLogger) (*Controller, error) {
	if deps.Device == nil {
		return nil, fmt.Errorf("REST server needs a device")
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		deps:       deps,
		logger:     logger,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("rest.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}

	if rc.Port == 0 {
		logger.Infof("rest.port not provided; defaulting to %d", config.DefaultRESTPort)
		rc.Port = config.DefaultRESTPort
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	log.Infof("Starting REST server controller on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(ctx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(c.loggingMiddleware)
	router.Use(c.corsMiddleware)
	if c.restConfig.AuthToken != "" {
		router.Use(c.authMiddleware)
	}

	h := c.handlers

	router.HandleFunc("/status", h.GetStatus).Methods("GET")
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.HandleFunc("/logs/http", h.GetHTTPLogs).Methods("GET")

	router.HandleFunc("/settings", h.GetSettings).Methods("GET")
	router.HandleFunc("/settings", h.PatchSettings).Methods("PATCH")

	router.HandleFunc("/slots", h.GetSlots).Methods("GET")
	router.HandleFunc("/slots/{index:[0-9]+}", h.GetSlot).Methods("GET")
	router.HandleFunc("/slots/{index:[0-9]+}", h.PutSlot).Methods("PUT")

	router.HandleFunc("/log/latest", h.GetLogLatest).Methods("GET")
	router.HandleFunc("/log/current", h.GetLogCurrent).Methods("GET")
	router.HandleFunc("/log/prev", h.StepLogBackward).Methods("POST")
	router.HandleFunc("/log/next", h.StepLogForward).Methods("POST")
	router.HandleFunc("/log/recent", h.GetLogRecent).Methods("GET")
	router.HandleFunc("/log/daily/{key}", h.GetLogDaily).Methods("GET")
	router.HandleFunc("/log/wipe", h.WipeLog).Methods("POST")

	router.HandleFunc("/feed/{index:[0-9]+}", h.ForceFeed).Methods("POST")
	router.HandleFunc("/feeding/{action}", h.FeedingControl).Methods("POST")

	cal := router.PathPrefix("/calibration").Subrouter()
	cal.HandleFunc("/moisture/start", h.StartMoistureCalibration).Methods("POST")
	cal.HandleFunc("/moisture", h.GetMoistureCalibration).Methods("GET")
	cal.HandleFunc("/moisture/stop", h.StopMoistureCalibration).Methods("POST")
	cal.HandleFunc("/moisture/commit/{point}", h.CommitMoistureCalibration).Methods("POST")
	cal.HandleFunc("/dripper/start", h.StartDripperCalibration).Methods("POST")
	cal.HandleFunc("/dripper/stop", h.StopDripperCalibration).Methods("POST")
	cal.HandleFunc("/dripper/commit", h.CommitDripperCalibration).Methods("POST")

	if c.deps.Archive != nil {
		router.HandleFunc("/archive/events", h.GetArchivedEvents).Methods("GET")
	}
	if c.deps.Metrics != nil {
		router.Handle("/metrics", c.deps.Metrics).Methods("GET")
	}

	return router
}

// statusRecorder captures the status and size written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// loggingMiddleware records every request in the HTTP log buffer
func (c *Controller) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Don't log requests to /logs/http to avoid cluttering the log viewer
		if r.URL.Path != "/logs/http" {
			log.LogHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start), rec.size, r.RemoteAddr, r.UserAgent())
		}
	})
}

// corsMiddleware adds CORS headers
func (c *Controller) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires the configured bearer token on requests that
// change device state. Reads stay open.
func (c *Controller) authMiddleware(next http.Handler) http.Handler {
	expected := []byte("Bearer " + c.restConfig.AuthToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			c.logger.Debugf("auth failed for %s %s", r.Method, r.URL.Path)
			c.handlers.sendError(w, r, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
