package middleware

import (
	"net/http"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimit rejects requests with 503 while max requests are already
// in flight through the wrapped handler. A max of zero or less disables it.
func ConcurrencyLimit(max int) func(http.Handler) http.Handler {
	if max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	sem := semaphore.NewWeighted(int64(max))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sem.TryAcquire(1) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusServiceUnavailable, "too many exports in progress", 0)
				return
			}
			defer sem.Release(1)
			next.ServeHTTP(w, r)
		})
	}
}
