package blossom

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const internalErrorMessage = "we encountered an internal error, please try again"

// blobHash extracts the digest from the request path, discarding any file
// extension clients append for convenience (GET /<hash>.pdf).
func blobHash(r *http.Request) string {
	hash := r.PathValue("hash")
	if idx := strings.IndexByte(hash, '.'); idx != -1 {
		hash = hash[:idx]
	}
	return hash
}

// handleUpload stores the already-authenticated payload: classify the
// content type, apply the type policy, compute the digest, and short-circuit
// on an existing row before inserting. A second uploader of identical bytes
// gets the first uploader's descriptor back unchanged.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	payload := uploadPayload(r)
	pubkey := authedPubkey(r)

	mimeType := detectMime(payload)
	if !typeAllowed(mimeType, s.mimeAllow) {
		writeError(w, http.StatusBadRequest, "mime type "+mimeType+" is not allowed")
		return
	}

	hash := computeDigest(payload)

	if existing, err := s.statBlob(r.Context(), hash); err == nil {
		writeJSON(w, http.StatusOK, s.descriptor(existing))
		return
	} else if !errors.Is(err, ErrBlobNotFound) {
		slog.Error("Lookup blob before insert", "hash", hash, "err", err)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	rec, err := s.insertBlob(r.Context(), pubkey, hash, payload, mimeType)
	if err != nil {
		slog.Error("Insert blob", "hash", hash, "pubkey", pubkey, "err", err)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	writeJSON(w, http.StatusOK, s.descriptor(rec))
}

// handleGet serves a blob's raw bytes with its stored content type.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	hash := blobHash(r)

	rec, payload, err := s.getBlob(r.Context(), hash)
	if errors.Is(err, ErrBlobNotFound) {
		writeError(w, http.StatusNotFound, "blob not found")
		return
	}
	if err != nil {
		slog.Error("Get blob", "hash", hash, "err", err)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	w.Header().Set("Content-Type", rec.Type)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		slog.Error("Stream blob", "hash", hash, "err", err)
	}
}

// handleHas is the existence check: the same lookup as a fetch with the body
// discarded.
func (s *Server) handleHas(w http.ResponseWriter, r *http.Request) {
	hash := blobHash(r)

	rec, err := s.statBlob(r.Context(), hash)
	if errors.Is(err, ErrBlobNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Stat blob", "hash", hash, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", rec.Type)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.WriteHeader(http.StatusOK)
}

// handleDelete removes a blob once the validated delete event's issuer
// matches the stored owner. Anyone else gets a forbidden response, even with
// an otherwise valid delete event for this digest.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	hash := blobHash(r)
	pubkey := authedPubkey(r)

	rec, err := s.statBlob(r.Context(), hash)
	if errors.Is(err, ErrBlobNotFound) {
		writeError(w, http.StatusNotFound, "blob not found")
		return
	}
	if err != nil {
		slog.Error("Stat blob before delete", "hash", hash, "err", err)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	if rec.Pubkey != pubkey {
		writeError(w, http.StatusForbidden, "pubkey does not own this blob")
		return
	}

	if err := s.deleteBlob(r.Context(), hash); err != nil && !errors.Is(err, ErrBlobNotFound) {
		slog.Error("Delete blob", "hash", hash, "err", err)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	writeJSON(w, http.StatusOK, s.descriptor(rec))
}

// handleList returns descriptors for every blob owned by the pubkey in the
// path. An owner with no blobs gets an empty array, not an error.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	pubkey := r.PathValue("pubkey")

	blobs, err := s.listBlobs(r.Context(), pubkey)
	if err != nil {
		slog.Error("List blobs", "pubkey", pubkey, "err", err)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	descriptors := make([]BlobDescriptor, 0, len(blobs))
	for _, rec := range blobs {
		descriptors = append(descriptors, s.descriptor(rec))
	}

	writeJSON(w, http.StatusOK, descriptors)
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>blossom</title></head>
<body>
<h1>blossom</h1>
<p>A content-addressable blob server authorized by signed Nostr events.</p>
</body>
</html>
`

// handleIndex serves the static landing page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(indexPage))
}
