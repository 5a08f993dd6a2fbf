package middleware

import (
	"io"
	"net/http"
)

// bodies larger than this get closed without draining; the connection
// is cheaper to drop than to read a runaway submission payload
const maxDrainBytes = 256 << 10

// DrainAndCloseRequest makes sure request bodies are fully read and closed
// after the handler ran, so keep-alive connections can be reused.
func DrainAndCloseRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Body != nil {
				_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, maxDrainBytes))
				_ = r.Body.Close()
			}
		})
	}
}
