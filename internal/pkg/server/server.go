// Package server exposes a read-only HTTP view of a running scan: session counters, configured
// scales, a websocket feed of outcomes and, when Postgres is enabled, stored readings.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/kegscale-reader/internal/pkg/address"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
	"github.com/anicoll/kegscale-reader/internal/pkg/session"
)

var errNoDatabase = errors.New("no database configured")

type statsSource interface {
	Stats() session.Stats
}

type readingStore interface {
	GetLatestReadings(ctx context.Context) (model.StoredReadings, error)
	GetReadings(ctx context.Context, scaleAddress string, from, to *time.Time) (model.StoredReadings, error)
}

type server struct {
	stats  statsSource
	scales []model.ScaleDescriptor
	db     readingStore
	logger *zap.Logger
}

// New builds the handler. db may be nil, in which case the readings routes answer 503. The
// websocket feed is only routed when live is set.
func New(stats statsSource, scales []model.ScaleDescriptor, db readingStore, live *Hub) http.Handler {
	s := &server{stats: stats, scales: scales, db: db, logger: zap.L()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.GetHealth)
	mux.HandleFunc("GET /stats", s.GetStats)
	mux.HandleFunc("GET /scales", s.GetScales)
	mux.HandleFunc("GET /readings/latest", s.GetLatestReadings)
	mux.HandleFunc("GET /readings/{address}", s.GetReadings)
	if live != nil {
		mux.Handle("GET /live", live)
	}
	return LoggingMiddleware(mux)
}

func (s *server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *server) GetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.stats.Stats())
}

func (s *server) GetScales(w http.ResponseWriter, _ *http.Request) {
	scales := s.scales
	if scales == nil {
		scales = []model.ScaleDescriptor{}
	}
	writeJSON(w, scales)
}

func (s *server) GetLatestReadings(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		handleError(w, http.StatusServiceUnavailable, errNoDatabase)
		return
	}
	readings, err := s.db.GetLatestReadings(r.Context())
	if err != nil {
		s.logger.Error("failed to load latest readings", zap.Error(err))
		handleError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, nonNil(readings))
}

// GetReadings answers /readings/{address}?from=&to= with RFC 3339 bounds.
func (s *server) GetReadings(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		handleError(w, http.StatusServiceUnavailable, errNoDatabase)
		return
	}
	key := address.Normalize(r.PathValue("address"))
	if key.Empty() {
		handleError(w, http.StatusBadRequest, errors.New("address has no hex digits"))
		return
	}
	from, err := timeParam(r, "from")
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}
	to, err := timeParam(r, "to")
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}

	readings, err := s.db.GetReadings(r.Context(), key.String(), from, to)
	if err != nil {
		s.logger.Error("failed to load readings", zap.Error(err), zap.String("address", key.String()))
		handleError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, nonNil(readings))
}

func timeParam(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, errors.New("invalid " + name + ": " + err.Error())
	}
	return &t, nil
}

func nonNil(readings model.StoredReadings) model.StoredReadings {
	if readings == nil {
		return model.StoredReadings{}
	}
	return readings
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("failed to write response", zap.Error(err))
	}
}

func handleError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	w.Write([]byte(err.Error()))
}

// ListenAndServe serves h on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Handler:      h,
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
