package blossom

import (
	"net/http"

	"github.com/go-chi/cors"
)

// Handler returns an http.Handler implementing the Blossom HTTP surface.
//
// Mutating routes are wrapped with the action-bound auth middleware; reads
// are public. The CORS policy mirrors what browser-based Nostr clients
// expect: any origin, the four blob methods, and the Authorization header.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)

	mux.Handle("PUT /upload", s.requireUpload(http.HandlerFunc(s.handleUpload)))
	mux.Handle("DELETE /{hash}", s.requireDelete(http.HandlerFunc(s.handleDelete)))

	mux.HandleFunc("GET /list/{pubkey}", s.handleList)
	mux.HandleFunc("GET /{hash}", s.handleGet)
	mux.HandleFunc("HEAD /{hash}", s.handleHas)

	withCORS := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodHead, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
	})

	return LogRequest(withCORS(mux))
}
