package http

import (
	"net/http"
	"time"

	"github.com/opsdeskhq/opsgate/internal/gate/store"
	"github.com/opsdeskhq/opsgate/pkg/httpx"
	"github.com/opsdeskhq/opsgate/pkg/slogx"
)

type systemStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func LivezHandler(startTime time.Time, version string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, systemStatus{
			Status:  "ok",
			Version: version,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
		})
	})
}

func ReadyzHandler(startTime time.Time, version string, records store.RecordStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := records.Ping(r.Context()); err != nil {
			slogx.FromContext(r.Context()).Error("readiness probe failed", "error", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, systemStatus{
				Status:  "degraded",
				Version: version,
				Uptime:  time.Since(startTime).Round(time.Second).String(),
			})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, systemStatus{
			Status:  "ok",
			Version: version,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
		})
	})
}
