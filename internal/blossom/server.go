// Package blossom implements a content-addressable blob storage server
// authorized by signed Nostr events.
//
// Blobs are addressed by the SHA-256 digest of their bytes. Identical bytes
// are stored once regardless of how many identities upload them; the store
// records only the first owner. The durable layer is a single SQLite table
// keyed by the digest, and the one concurrency guarantee the design depends
// on is at-most-one row per digest even under concurrent identical uploads,
// provided by INSERT ... ON CONFLICT DO NOTHING at the statement level.
package blossom

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

// ErrBlobNotFound reports a digest (or owner) with no stored row. It is a
// routine result for fetch/existence/delete, not an internal failure.
var ErrBlobNotFound = errors.New("blob not found")

type Config struct {
	// DBPath is the SQLite database file backing the store.
	DBPath string

	// BaseURL is prepended to digests when deriving descriptor URLs.
	BaseURL string

	// WhitelistedPubkeys restricts who may upload or delete. Empty means
	// any verified identity is allowed.
	WhitelistedPubkeys []string

	// WhitelistedMimeTypes restricts which sniffed content types may be
	// stored. Empty means all types are allowed.
	WhitelistedMimeTypes []string

	// MinUploadSizeBytes and MaxUploadSizeBytes bound upload payloads.
	// Zero means unbounded.
	MinUploadSizeBytes int64
	MaxUploadSizeBytes int64
}

// Server holds the store and the policy snapshots taken at construction
// time. Handlers are methods on Server; it owns no sockets or routing.
type Server struct {
	cfg         Config
	db          *sql.DB
	pubkeyAllow map[string]struct{}
	mimeAllow   map[string]struct{}
}

// initSchema applies all SQL files in the embedded migrations directory in
// lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Info("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// NewServer opens the metadata database, applies migrations, and snapshots
// the allow-lists.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("DBPath must not be empty")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Server{
		cfg:         cfg,
		db:          db,
		pubkeyAllow: toSet(cfg.WhitelistedPubkeys),
		mimeAllow:   toSet(cfg.WhitelistedMimeTypes),
	}, nil
}

// Close closes any resources held by the Server.
func (s *Server) Close() error {
	return s.db.Close()
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// BlobRecord is a stored blob's metadata row. All fields are immutable after
// the first successful insertion.
type BlobRecord struct {
	Pubkey  string
	Hash    string
	Type    string
	Size    int64
	Created int64
}

// computeDigest returns the SHA-256 hex digest of data. The digest is both
// the storage key and the public blob identifier.
func computeDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// insertBlob persists a new blob row unless one with the same hash already
// exists, and returns the stored row either way. The conflict resolution
// happens inside a single statement, so concurrent identical uploads cannot
// create duplicate rows; whichever insert loses the race reads back the
// winner's metadata.
func (s *Server) insertBlob(ctx context.Context, pubkey string, hash string, payload []byte, mimeType string) (BlobRecord, error) {
	now := time.Now().UTC().Unix()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs(pubkey, hash, blob, type, size, created)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		pubkey, hash, payload, mimeType, int64(len(payload)), now,
	)
	if err != nil {
		return BlobRecord{}, fmt.Errorf("insert blob: %w", err)
	}

	return s.statBlob(ctx, hash)
}

// statBlob returns a blob's metadata without its payload.
func (s *Server) statBlob(ctx context.Context, hash string) (BlobRecord, error) {
	var rec BlobRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT pubkey, hash, type, size, created FROM blobs WHERE hash = ?`,
		hash,
	).Scan(&rec.Pubkey, &rec.Hash, &rec.Type, &rec.Size, &rec.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return BlobRecord{}, ErrBlobNotFound
	}
	if err != nil {
		return BlobRecord{}, fmt.Errorf("stat blob: %w", err)
	}
	return rec, nil
}

// getBlob returns a blob's metadata and payload.
func (s *Server) getBlob(ctx context.Context, hash string) (BlobRecord, []byte, error) {
	var (
		rec     BlobRecord
		payload []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT pubkey, hash, type, size, created, blob FROM blobs WHERE hash = ?`,
		hash,
	).Scan(&rec.Pubkey, &rec.Hash, &rec.Type, &rec.Size, &rec.Created, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return BlobRecord{}, nil, ErrBlobNotFound
	}
	if err != nil {
		return BlobRecord{}, nil, fmt.Errorf("get blob: %w", err)
	}
	return rec, payload, nil
}

// listBlobs returns the metadata of every blob owned by pubkey in creation
// order. No rows is a valid result, not an error.
func (s *Server) listBlobs(ctx context.Context, pubkey string) ([]BlobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pubkey, hash, type, size, created FROM blobs WHERE pubkey = ? ORDER BY created, hash`,
		pubkey,
	)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer rows.Close()

	blobs := make([]BlobRecord, 0)
	for rows.Next() {
		var rec BlobRecord
		if err := rows.Scan(&rec.Pubkey, &rec.Hash, &rec.Type, &rec.Size, &rec.Created); err != nil {
			return nil, fmt.Errorf("scan blob: %w", err)
		}
		blobs = append(blobs, rec)
	}

	return blobs, rows.Err()
}

// deleteBlob removes the row for hash. There is no soft-delete or tombstone.
func (s *Server) deleteBlob(ctx context.Context, hash string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if affected == 0 {
		return ErrBlobNotFound
	}
	return nil
}
