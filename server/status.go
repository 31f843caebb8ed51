package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// RequesterStatus is one requester's share of the wingmen.
type RequesterStatus struct {
	Session string `json:"session"`
	Player  uint16 `json:"player"`
	Name    string `json:"name,omitempty"`
	Wingmen int    `json:"wingmen"`
}

// HandleWingmen serves the current wingman allocation as JSON.
func (s *Scheduler) HandleWingmen(w http.ResponseWriter, r *http.Request) {
	// Enable CORS for cross-origin requests
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")

	allocs := s.registry.Snapshot()
	requesters := make([]RequesterStatus, 0, len(allocs))
	total := 0
	for _, a := range allocs {
		rs := RequesterStatus{
			Session: a.Requester.Session,
			Player:  a.Requester.Player,
			Wingmen: len(a.Wingmen),
		}
		if sess, ok := s.Session(a.Requester.Session); ok {
			if p, ok := sess.World().Get(a.Requester.Player); ok {
				rs.Name = p.Name
			}
		}
		total += rs.Wingmen
		requesters = append(requesters, rs)
	}

	response := map[string]interface{}{
		"total":      total,
		"cap":        s.registry.Cap(),
		"requesters": requesters,
		"sessions":   s.Status(),
	}

	json.NewEncoder(w).Encode(response)
}

// StatusHandler returns the routes of the status endpoint.
func (s *Scheduler) StatusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/wingmen", s.HandleWingmen)

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ServeStatus runs the status endpoint on addr until ctx is cancelled.
func ServeStatus(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Status endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Status endpoint shutdown")
	}
	return nil
}
