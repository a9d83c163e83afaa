package middleware

import (
	"net/http"
	"time"
)

// HTTPObserver records served requests.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// Metrics returns middleware that reports each request to obs, labelled by
// the ServeMux pattern that matched it. It must wrap the mux directly so the
// pattern is visible after the call.
func Metrics(obs HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)
			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			obs.ObserveHTTP(r.Method, route, rw.statusCode, time.Since(start))
		})
	}
}
