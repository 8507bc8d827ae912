package health

import "net/http"

// HealthzHandler serves liveness: 200 "ok" when p passes, 503 with the reason otherwise.
func HealthzHandler(p Checker) http.HandlerFunc { return checkHandler(p, "ok\n") }

// ReadyzHandler serves readiness: 200 "ready" when p passes, 503 with the reason otherwise.
func ReadyzHandler(p Checker) http.HandlerFunc { return checkHandler(p, "ready\n") }

func checkHandler(p Checker, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(okBody))
	}
}
