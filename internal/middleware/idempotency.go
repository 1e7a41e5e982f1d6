package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerIdempotencyKey = "Idempotency-Key"

	// maxReplayBody caps the stored response; larger decisions are served
	// but not replayable.
	maxReplayBody = 1 << 20
)

// storedResponse is the replayable form of a finished response.
type storedResponse struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency returns middleware that replays mutating requests carrying an
// Idempotency-Key header from a JetStream KV bucket. A client retrying a
// convene after a network cut gets the original decision back instead of
// synthesising (and persisting) a second one. The bucket's TTL bounds the
// replay window.
func Idempotency(kv jetstream.KeyValue) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerIdempotencyKey)
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if entry, err := kv.Get(r.Context(), key); err == nil {
				var stored storedResponse
				if err := json.Unmarshal(entry.Value(), &stored); err == nil {
					replay(w, stored)
					return
				}
				slog.Warn("idempotency: corrupt stored response", "key", key)
			}

			rec := &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.body.Len() > maxReplayBody {
				return
			}
			data, err := json.Marshal(storedResponse{
				StatusCode: rec.statusCode,
				Headers:    w.Header().Clone(),
				Body:       rec.body.Bytes(),
			})
			if err != nil {
				return
			}
			if _, err := kv.Put(r.Context(), key, data); err != nil {
				slog.Warn("idempotency: store failed", "key", key, "error", err)
			}
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func replay(w http.ResponseWriter, stored storedResponse) {
	for k, vals := range stored.Headers {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(stored.StatusCode)
	_, _ = w.Write(stored.Body)
}

// captureWriter tees the response so it can be stored for replay.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.statusCode = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
