package api

import (
	"bytes"
	"net/http"
)

// responseRecorder captures response status and body for idempotency caching.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// idempotencyMiddleware replays POST responses by Idempotence-Key header.
// The gateway requires the header on every POST.
func (h *Handler) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("Idempotence-Key")
		if key == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "Idempotence-Key",
				"Idempotence key isn't specified")
			return
		}
		if status, body, ok := h.mw.Idempotent.Lookup(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(status)
			_, _ = w.Write(body)
			return
		}
		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)
		// Server errors are not cached so the caller can retry with the same key.
		if rec.statusCode < http.StatusInternalServerError {
			h.mw.Idempotent.Remember(key, rec.statusCode, rec.body.Bytes())
		}
	})
}
