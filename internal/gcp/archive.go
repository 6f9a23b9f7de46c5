package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// RawArchive keeps the unparsed text of every model response, write-once, at
// <collection>/<jobId>/<stage>.txt. A nil archive discards everything.
type RawArchive struct {
	bucket     *storage.BucketHandle
	collection string
}

// NewRawArchive returns nil when bucket is empty.
func NewRawArchive(client *storage.Client, bucket, collection string) *RawArchive {
	if client == nil || bucket == "" {
		return nil
	}
	return &RawArchive{bucket: client.Bucket(bucket), collection: collection}
}

func (a *RawArchive) ObjectName(jobID, stage string) string {
	return fmt.Sprintf("%s/%s/%s.txt", a.collection, jobID, stage)
}

func (a *RawArchive) Save(ctx context.Context, jobID, stage, raw string) error {
	if a == nil {
		return nil
	}
	return SaveToGCSAtomically(ctx, a.bucket, a.ObjectName(jobID, stage), raw)
}
