package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/obraflow/internal/joberr"
)

// GetEnv is a helper to read an environment variable or return a default value.
// A variable set to an empty or blank value counts as unset.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, content string) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "text/plain; charset=utf-8"

	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			slog.Info("Object already exists. Skipping.", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// DefaultBlobMaxBytes bounds a single blob read when BLOB_MAX_BYTES is unset.
const DefaultBlobMaxBytes = 50 << 20

// Blob is a fetched object with its resolved media type.
type Blob struct {
	Path     string
	MIMEType string
	Data     []byte
}

// BlobStore reads job inputs from Cloud Storage.
type BlobStore struct {
	client        *storage.Client
	defaultBucket string
	maxBytes      int64
}

func NewBlobStore(client *storage.Client, defaultBucket string, maxBytes int64) *BlobStore {
	if maxBytes <= 0 {
		maxBytes = DefaultBlobMaxBytes
	}
	return &BlobStore{client: client, defaultBucket: defaultBucket, maxBytes: maxBytes}
}

// ParseObjectPath splits a "gs://bucket/object" URI, or an object name in the
// default bucket, into bucket and object.
func ParseObjectPath(p, defaultBucket string) (string, string, error) {
	const op = "resolve blob path"
	p = strings.TrimSpace(p)
	if p == "" {
		return "", "", joberr.Input(op, "storage path is empty", nil)
	}
	if rest, ok := strings.CutPrefix(p, "gs://"); ok {
		bucket, object, found := strings.Cut(rest, "/")
		if !found || bucket == "" || object == "" {
			return "", "", joberr.Input(op, fmt.Sprintf("malformed storage URI %q", p), nil)
		}
		return bucket, object, nil
	}
	if defaultBucket == "" {
		return "", "", joberr.Config(op, "STORAGE_BUCKET is not set and path has no bucket")
	}
	return defaultBucket, strings.TrimPrefix(p, "/"), nil
}

// DetectMIME picks the object's stored content type, then its extension,
// then content sniffing.
func DetectMIME(contentType, objectName string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(objectName))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

// Get fetches the object at p. A missing, empty or oversized object is an
// input error since the job's path is at fault.
func (s *BlobStore) Get(ctx context.Context, p string) (*Blob, error) {
	const op = "fetch blob"
	bucket, object, err := ParseObjectPath(p, s.defaultBucket)
	if err != nil {
		return nil, err
	}

	reader, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, joberr.Input(op, fmt.Sprintf("object %q does not exist", p), err)
		}
		if ctx.Err() != nil {
			return nil, joberr.From(op, ctx.Err())
		}
		return nil, joberr.Transport(op, fmt.Sprintf("failed to open %q", p), err, false)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, s.maxBytes+1))
	if err != nil {
		return nil, joberr.Transport(op, fmt.Sprintf("failed to read %q", p), err, false)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, joberr.Input(op, fmt.Sprintf("object %q exceeds %d bytes", p, s.maxBytes), nil)
	}
	if len(data) == 0 {
		return nil, joberr.Input(op, fmt.Sprintf("object %q is empty", p), nil)
	}

	return &Blob{
		Path:     p,
		MIMEType: DetectMIME(reader.Attrs.ContentType, object, data),
		Data:     data,
	}, nil
}
