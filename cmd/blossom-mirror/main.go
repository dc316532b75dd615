// blossom-mirror copies every blob a pubkey owns on a Blossom server into an
// S3-compatible bucket. It is an ordinary client of the public HTTP API:
// descriptors come from GET /list/{pubkey}, payloads from GET /{hash}, and
// objects already present in the bucket are skipped.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobDescriptor mirrors the server's descriptor JSON.
type BlobDescriptor struct {
	Pubkey  string `json:"pubkey"`
	Hash    string `json:"hash"`
	URL     string `json:"url"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	Created int64  `json:"created"`
}

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// EnsureBucket checks if a bucket exists, and creates it if it does not.
func EnsureBucket(ctx context.Context, client *minio.Client, bucketName string) error {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", bucketName, err)
		}
	}
	return nil
}

// ListBlobs fetches the descriptors for every blob owned by pubkey.
func ListBlobs(ctx context.Context, httpClient *http.Client, serverURL string, pubkey string) ([]BlobDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/list/"+pubkey, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list blobs: server returned %s", resp.Status)
	}

	var blobs []BlobDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&blobs); err != nil {
		return nil, fmt.Errorf("failed to decode blob list: %w", err)
	}
	return blobs, nil
}

// FetchBlob downloads a blob's raw bytes.
func FetchBlob(ctx context.Context, httpClient *http.Client, serverURL string, hash string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/"+hash, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blob %s: %w", hash, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch blob %s: server returned %s", hash, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// MirrorBlob uploads one blob into the bucket unless an object with the same
// hash and size is already there.
func MirrorBlob(ctx context.Context, client *minio.Client, httpClient *http.Client, serverURL string, bucketName string, blob BlobDescriptor) error {
	if info, err := client.StatObject(ctx, bucketName, blob.Hash, minio.StatObjectOptions{}); err == nil && info.Size == blob.Size {
		slog.Info("Skipping blob already in bucket", "hash", blob.Hash, "bucket", bucketName)
		return nil
	}

	payload, err := FetchBlob(ctx, httpClient, serverURL, blob.Hash)
	if err != nil {
		return err
	}

	_, err = client.PutObject(ctx, bucketName, blob.Hash, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: blob.Type,
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %q to bucket %q: %w", blob.Hash, bucketName, err)
	}

	slog.Info("Mirrored blob to bucket", "hash", blob.Hash, "size", len(payload), "bucket", bucketName)
	return nil
}

func Run(ctx context.Context) error {
	serverURL := flag.String("server", "http://127.0.0.1:3000", "base URL of the blossom server")
	pubkey := flag.String("pubkey", "", "hex pubkey whose blobs should be mirrored")
	bucketName := flag.String("bucket", "blossom-mirror", "destination S3 bucket")
	endpoint := flag.String("endpoint", getenv("S3_ENDPOINT", "127.0.0.1:9000"), "S3 endpoint host:port")
	useSSL := flag.Bool("ssl", false, "use TLS when talking to the S3 endpoint")
	flag.Parse()

	if *pubkey == "" {
		return fmt.Errorf("-pubkey is required")
	}

	client, err := minio.New(*endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(getenv("S3_ACCESS_KEY", "minioadmin"), getenv("S3_SECRET_KEY", "minioadmin"), ""),
		Secure: *useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	if err := EnsureBucket(ctx, client, *bucketName); err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}

	blobs, err := ListBlobs(ctx, httpClient, *serverURL, *pubkey)
	if err != nil {
		return err
	}

	slog.Info("Mirroring blobs", "count", len(blobs), "pubkey", *pubkey, "bucket", *bucketName)
	for _, blob := range blobs {
		if err := MirrorBlob(ctx, client, httpClient, *serverURL, *bucketName, blob); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	slog.SetDefault(slog.New(log.NewWithOptions(os.Stdout, log.Options{
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
	})))

	if err := Run(context.Background()); err != nil {
		slog.Error("Mirror failed", "error", err)
		os.Exit(1)
	}
}
