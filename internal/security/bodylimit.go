package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/dafnadaf/artist-sub000/internal/common"
)

// BodyLimit caps inbound payload size. Quote and create bodies are small;
// the cap mostly guards the webhook route, where couriers (or anyone who
// finds the URL) post arbitrary JSON.
type BodyLimit struct {
	Max int64
}

// Middleware rejects oversized requests with 413 using the canonical error
// envelope. The body is buffered so downstream handlers can hash it for
// replay detection and still decode it.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}

		if r.ContentLength > b.Max && r.ContentLength != -1 {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body exceeds limit", nil)
			return
		}

		buf, err := io.ReadAll(io.LimitReader(r.Body, b.Max+1))
		if err != nil && !errors.Is(err, io.EOF) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read request body", nil)
			return
		}
		if int64(len(buf)) > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body exceeds limit", nil)
			return
		}

		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		next.ServeHTTP(w, r)
	})
}
