// Package ledger gives the append-only audit trails a cold tier: movements
// and audit events past their retention horizon are exported to object
// storage as gzipped JSON lines, then purged from the database.
package ledger

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ObjectStore is the slice of object storage the retention job needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) error
}

// S3Archive uploads archive batches to an S3 (or S3-compatible) bucket.
type S3Archive struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// S3ArchiveConfig configures the archive bucket.
type S3ArchiveConfig struct {
	Bucket   string
	Prefix   string
	Endpoint string // optional, for S3-compatible stores
}

// NewS3Archive creates an archive store on an S3 bucket.
func NewS3Archive(awsCfg aws.Config, cfg S3ArchiveConfig, log zerolog.Logger) *S3Archive {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archive{
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		log:      log.With().Str("service", "ledger_archive").Logger(),
	}
}

// Put uploads one object under the configured prefix.
func (a *S3Archive) Put(ctx context.Context, key string, body []byte) error {
	fullKey := key
	if a.prefix != "" {
		fullKey = a.prefix + "/" + key
	}
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(fullKey),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", fullKey, err)
	}
	a.log.Debug().Str("key", fullKey).Int("bytes", len(body)).Msg("Uploaded archive object")
	return nil
}

// batchManifest describes one archived batch, stored alongside the data.
type batchManifest struct {
	Kind      string    `json:"kind"`
	Count     int       `json:"count"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// encodeBatch gzips a slice of records as JSON lines and returns the payload
// with its manifest.
func encodeBatch[T any](kind string, records []T, from, to, now time.Time) ([]byte, batchManifest, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, batchManifest{}, fmt.Errorf("failed to encode %s record: %w", kind, err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, batchManifest{}, fmt.Errorf("failed to finish %s archive: %w", kind, err)
	}

	payload := buf.Bytes()
	manifest := batchManifest{
		Kind:      kind,
		Count:     len(records),
		From:      from,
		To:        to,
		Checksum:  fmt.Sprintf("sha256:%x", sha256.Sum256(payload)),
		CreatedAt: now,
	}
	return payload, manifest, nil
}
