// Package api exposes a small HTTP control surface over a running adapter.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/picostack/gitadapter/adapter"
	"github.com/picostack/gitadapter/config"
	"github.com/picostack/gitadapter/metrics"
)

// Controller is the part of the adapter the API drives.
type Controller interface {
	Snapshot() config.Config
	State() adapter.State
	PollEnabled() bool
	PollInterval() time.Duration
	TogglePollLoop(enabled bool)
	FetchConfigFile(ctx context.Context) (config.Config, error)
}

var _ Controller = &adapter.Adapter{}

// Status is the body of GET /state.
type Status struct {
	State    string `json:"state"`
	Poll     bool   `json:"poll"`
	Interval string `json:"interval"`
}

// NewHandler routes the control endpoints and the metrics endpoint.
func NewHandler(c Controller) http.Handler {
	r := chi.NewRouter()

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Snapshot())
	})

	r.Post("/config", func(w http.ResponseWriter, r *http.Request) {
		data, err := c.FetchConfigFile(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, data)
	})

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Status{
			State:    c.State().String(),
			Poll:     c.PollEnabled(),
			Interval: c.PollInterval().String(),
		})
	})

	// anything that is not a boolean leaves the loop untouched. Enabling only
	// sets the flag: a stopped loop restarts with the next fetch, such as
	// POST /config.
	r.Put("/poll", func(w http.ResponseWriter, r *http.Request) {
		enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
		if err != nil {
			zap.L().Debug("ignoring non-boolean poll toggle",
				zap.String("enabled", r.URL.Query().Get("enabled")))
		} else {
			c.TogglePollLoop(enabled)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write response", zap.Error(err))
	}
}
