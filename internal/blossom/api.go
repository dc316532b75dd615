package blossom

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// BlobDescriptor is the response projection of a stored blob. URL is derived
// from the configured base URL at response time and never stored.
type BlobDescriptor struct {
	Pubkey  string `json:"pubkey"`
	Hash    string `json:"hash"`
	URL     string `json:"url"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	Created int64  `json:"created"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// descriptor shapes a stored row for the wire.
func (s *Server) descriptor(rec BlobRecord) BlobDescriptor {
	return BlobDescriptor{
		Pubkey:  rec.Pubkey,
		Hash:    rec.Hash,
		URL:     strings.TrimSuffix(s.cfg.BaseURL, "/") + "/" + rec.Hash,
		Type:    rec.Type,
		Size:    rec.Size,
		Created: rec.Created,
	}
}

// writeJSON encodes v as JSON and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Encode JSON response", "err", err)
	}
}

// writeError writes a machine-readable error body. Internal detail stays in
// the log; the message here is safe for callers.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}
