package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{"http://localhost:3000"}

// CORS lets the browser till call the API. An empty origin list falls back
// to the local dev till.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", StaffHeader, idempotencyHeader, requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, replayHeader, "Retry-After"},
		MaxAge:         300,
	}).Handler
}
