package relay

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vehicle-relay/mazda-relay/internal/log"
)

// RequestID tags each request with an identifier, reusing a caller-supplied X-Request-Id when
// present, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		log.Debug("Request %s: %s %s from %s", id, req.Method, req.URL.Path, req.RemoteAddr)
		next.ServeHTTP(w, req)
	})
}
