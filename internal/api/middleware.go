package api

import (
	"net/http"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/carequeue/internal/postgres"
)

// DBStats stashes the HTTP method and a per-request query counter in the
// context, and logs the request's database totals when it ran any queries.
func DBStats(logger log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := postgres.WithHTTPMethod(r.Context(), r.Method)
			ctx = postgres.NewReqDBStatsContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))

			stats, ok := postgres.ReqDBStatsFromContext(ctx)
			if !ok {
				return
			}
			queries, total, errs := stats.Snapshot()
			if queries == 0 {
				return
			}
			logger.Info(ctx, "request db stats",
				"db_queries", queries,
				"db_total_ms", total.Milliseconds(),
				"db_errors", errs,
			)
		})
	}
}
