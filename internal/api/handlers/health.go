package handlers

import "net/http"

// Health is a liveness probe with no dependencies on any service, matching
// the teacher's own inline `/health` handler in router.go.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
