// Package response writes endpoint responses to the client
package response

import (
	"fmt"
	"net/http"
	"time"

	"github.com/grundstein/gas/internal/api"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"
)

// Write writes resp to w. Headers of resp are applied on top of headers
// already set on w, and the time elapsed since start is attached.
func Write(w http.ResponseWriter, resp *api.Response, start time.Time) {
	h := w.Header()
	for name, values := range resp.Headers {
		h[name] = values
	}

	if h.Get("Content-Type") == "" {
		switch {
		case resp.JSON:
			h.Set("Content-Type", contentTypeJSON)
		case len(resp.Body) > 0:
			h.Set("Content-Type", contentTypeText)
		}
	}
	Timing(h, time.Since(start))

	code := resp.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	w.WriteHeader(code)

	if bodyAllowed(code) && len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}

// Text writes a plain text response
func Text(w http.ResponseWriter, code int, body string, start time.Time) {
	Write(w, api.Text(code, body), start)
}

// Timing sets the Server-Timing and X-Response-Time headers
func Timing(h http.Header, elapsed time.Duration) {
	ms := float64(elapsed.Microseconds()) / 1000
	h.Set("Server-Timing", fmt.Sprintf("app;dur=%.3f", ms))
	h.Set("X-Response-Time", fmt.Sprintf("%.3fms", ms))
}

func bodyAllowed(code int) bool {
	return code != http.StatusNoContent && code != http.StatusNotModified && (code < 100 || code >= 200)
}
