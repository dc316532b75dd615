package blossom

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"blossom/internal/auth"
)

// ResponseWriterWrapper is a wrapper around the default http.ResponseWriter.
// It intercepts the WriteHeader call and saves the response status code.
type ResponseWriterWrapper struct {
	http.ResponseWriter
	WrittenResponseCode int
}

// WriteHeader intercepts the status code and stores it, then calls the original WriteHeader.
func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	w.WrittenResponseCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write calls the underlying ResponseWriter's Write method.
func (w *ResponseWriterWrapper) Write(b []byte) (int, error) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// LogRequest is middleware that logs incoming HTTP requests.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		writer := ResponseWriterWrapper{ResponseWriter: w}
		next.ServeHTTP(&writer, r)
		elapsed := time.Since(start).Nanoseconds()

		userAttrs := slog.Group("user", "ip", r.RemoteAddr)
		requestAttrs := slog.Group("request",
			"proto", r.Proto,
			"method", r.Method,
			"url", r.URL.String(),
			"duration_ms", float64(elapsed)/float64(time.Millisecond),
			"status_code", writer.WrittenResponseCode,
		)

		if writer.WrittenResponseCode >= 400 {
			slog.Error("Request", userAttrs, requestAttrs)
		} else {
			slog.Info("Request", userAttrs, requestAttrs)
		}
	})
}

type contextKey int

const (
	ctxKeyPubkey contextKey = iota
	ctxKeyPayload
)

// authedPubkey returns the identity verified by the auth middleware.
func authedPubkey(r *http.Request) string {
	pubkey, _ := r.Context().Value(ctxKeyPubkey).(string)
	return pubkey
}

// uploadPayload returns the body bytes read by the upload middleware.
func uploadPayload(r *http.Request) []byte {
	payload, _ := r.Context().Value(ctxKeyPayload).([]byte)
	return payload
}

// requireUpload reads the request body, enforces the configured size bounds,
// and validates the Authorization event against the upload action bound to
// the exact payload size. The verified pubkey and the payload are handed to
// the handler through the request context; nothing is written to storage
// before every check passes.
func (s *Server) requireUpload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var body io.Reader = r.Body
		if s.cfg.MaxUploadSizeBytes > 0 {
			body = io.LimitReader(r.Body, s.cfg.MaxUploadSizeBytes+1)
		}

		payload, err := io.ReadAll(body)
		if err != nil {
			slog.Error("Read upload body", "err", err)
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		if s.cfg.MaxUploadSizeBytes > 0 && int64(len(payload)) > s.cfg.MaxUploadSizeBytes {
			writeError(w, http.StatusRequestEntityTooLarge, s.sizeBoundsMessage())
			return
		}
		if int64(len(payload)) < s.cfg.MinUploadSizeBytes || len(payload) == 0 {
			writeError(w, http.StatusBadRequest, s.sizeBoundsMessage())
			return
		}

		pubkey, err := s.authenticate(r, auth.ActionUpload, int64(len(payload)), "")
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		if !pubkeyAllowed(pubkey, s.pubkeyAllow) {
			writeError(w, http.StatusForbidden, "pubkey is not allowed to upload")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyPubkey, pubkey)
		ctx = context.WithValue(ctx, ctxKeyPayload, payload)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireDelete validates the Authorization event against the delete action
// with its x tag bound to the digest named in the request path.
func (s *Server) requireDelete(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := blobHash(r)

		pubkey, err := s.authenticate(r, auth.ActionDelete, 0, hash)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		if !pubkeyAllowed(pubkey, s.pubkeyAllow) {
			writeError(w, http.StatusForbidden, "pubkey is not allowed to delete")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyPubkey, pubkey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate parses and validates the request's Authorization event,
// returning the verified pubkey. Parse and validation failures share one
// error surface so callers map them uniformly to an unauthorized response.
func (s *Server) authenticate(r *http.Request, action auth.Action, payloadSize int64, targetHash string) (string, error) {
	evt, err := auth.ParseAuthorization(r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}

	pubkey, err := auth.Validate(evt, action, payloadSize, targetHash)
	if err != nil {
		return "", err
	}

	return pubkey, nil
}

func (s *Server) sizeBoundsMessage() string {
	return fmt.Sprintf(
		"no payload found or it doesn't fit size range: min_bytes: %d, max_bytes: %d",
		s.cfg.MinUploadSizeBytes, s.cfg.MaxUploadSizeBytes,
	)
}
