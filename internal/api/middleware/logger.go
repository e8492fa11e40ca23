package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// HTTPLogger is not grounded on any retrieved teacher source — router.go
// calls apimiddleware.HTTPLogger but no implementation file made it into
// the example pack (see DESIGN.md). Reconstructed from chi's own
// middleware.Logger (chi's RequestID + WrapResponseWriter combination is
// the idiomatic way to capture a status code and byte count in chi) wired
// to zerolog instead of chi's stdlib logger, matching SPEC_FULL.md's
// ambient logging stack.
func HTTPLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		requestID := chimiddleware.GetReqID(r.Context())
		evt := log.Info()
		if ww.Status() >= 500 {
			evt = log.Error()
		} else if ww.Status() >= 400 {
			evt = log.Warn()
		}
		evt.
			Str("requestID", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http: request")
	})
}
