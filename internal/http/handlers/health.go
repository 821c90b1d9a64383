package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is satisfied by *redis.Client via a small adapter in main.
type Pinger func(ctx context.Context) error

// HealthCheck reports liveness. With a pinger configured, a failed ping turns
// the status into "degraded" but still answers 200 so the wizard keeps serving.
func HealthCheck(ping Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok"}
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				resp["status"] = "degraded"
				resp["redis"] = err.Error()
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
