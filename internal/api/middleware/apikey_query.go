package middleware

import "net/http"

// APIKeyFromQuery promotes an API key query parameter into the X-API-Key
// header, for routes that explicitly allow query-param auth (an SSE
// EventSource connection can't set a custom header). Grounded verbatim on
// the teacher's internal/api/middleware/apikey_query.go.
func APIKeyFromQuery(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") == "" {
				if apiKey := r.URL.Query().Get(param); apiKey != "" {
					r.Header.Set("X-API-Key", apiKey)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
