package server

import (
	"io"
	"net/http"
	"strings"

	"otcpool/services/otcd/api"
	"otcpool/services/otcd/journal"
)

// idempotent replays the stored response of a request whose Idempotency-Key
// was already used by the same identity. Keys are scoped per identity and
// bound to the original method, path and body.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(api.HeaderIdempotencyKey))
		req, ok := signedFromContext(r.Context())
		if key == "" || !ok {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > 128 {
			s.writeError(w, badRequest("idempotency key too long"))
			return
		}
		scoped := api.FormatIdentity(req.Caller) + ":" + key
		hash := bodyHash(req.Body)

		record, found, err := s.journal.LookupIdempotent(r.Context(), scoped)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if found {
			if record.Method != r.Method || record.Path != r.URL.Path || record.RequestHash != hash {
				s.writeError(w, errIdempotencyReused)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(record.Status)
			_, _ = io.WriteString(w, record.Response)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)
		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}
		// Server failures and rejected nonces are left retryable.
		nonceRejected := recorder.status == http.StatusConflict && strings.Contains(recorder.buf.String(), errNonceReused.code)
		if recorder.status >= http.StatusInternalServerError || nonceRejected {
			return
		}
		if err := s.journal.SaveIdempotent(r.Context(), journal.IdempotencyRecord{
			Key:         scoped,
			Method:      r.Method,
			Path:        r.URL.Path,
			RequestHash: hash,
			Status:      recorder.status,
			Response:    recorder.buf.String(),
		}); err != nil {
			s.logger.Error("otcd: store idempotent response failed", "error", err)
		}
	})
}

// responseRecorder captures the response for idempotent operations.
type responseRecorder struct {
	http.ResponseWriter
	buf    strings.Builder
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}
