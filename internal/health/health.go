// Package health serves the /healthz endpoint. Each service registers probes
// for the dependencies it actually holds, so a passing check means the
// process can do real work, not merely accept TCP connections.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Check probes one dependency. Probe runs with a short per-request deadline.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Status is the /healthz response body. Checks maps each registered
// dependency to whether its probe passed.
type Status struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message,omitempty"`
	Checks  map[string]bool `json:"checks,omitempty"`
}

// DB probes the Postgres pool.
func DB(pool *pgxpool.Pool) Check {
	return Check{Name: "database", Probe: func(ctx context.Context) error {
		return pool.Ping(ctx)
	}}
}

// HTTPHandler runs every check with a one second budget and reports 503 when
// any dependency fails. Message names the first failing check.
func HTTPHandler(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok"}
		if len(checks) > 0 {
			st.Checks = make(map[string]bool, len(checks))
		}

		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
			err := c.Probe(ctx)
			cancel()

			st.Checks[c.Name] = err == nil
			if err != nil && st.OK {
				st.OK = false
				st.Message = c.Name + " check failed"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !st.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	}
}
