package postgres

import (
	"net/http"

	"github.com/linnemanlabs/go-core/log"
)

// RequestStats tags each request context with its HTTP method and a fresh
// ReqDBStats, and logs the totals when the handler issued any query.
func RequestStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := NewReqDBStatsContext(WithHTTPMethod(r.Context(), r.Method))
		next.ServeHTTP(w, r.WithContext(ctx))

		stats, _ := ReqDBStatsFromContext(ctx)
		stats.mu.Lock()
		count, total, errs := stats.QueryCount, stats.TotalDuration, stats.ErrorCount
		stats.mu.Unlock()
		if count == 0 {
			return
		}
		log.FromContext(ctx).Info(ctx, "request db stats",
			"db.queries", count,
			"db.errors", errs,
			"db.total_duration", total.Seconds(),
		)
	})
}
