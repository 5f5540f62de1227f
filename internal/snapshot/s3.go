package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// digestMetadataKey is sent as x-amz-meta-walletd-digest.
const digestMetadataKey = "walletd-digest"

// S3Destination uploads snapshots to a bucket. With history enabled each
// snapshot also lands under <key-dir>/history/<timestamp>.jsonl next to
// the rolling key.
type S3Destination struct {
	client  *s3.Client
	bucket  string
	key     string
	history bool
}

// NewS3Destination builds a client from the default AWS credential chain.
// A non-empty endpoint switches to path-style addressing for MinIO and
// other S3-compatible stores.
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string, history bool) (*S3Destination, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 snapshot needs a bucket and key")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{client: client, bucket: bucket, key: key, history: history}, nil
}

func (d *S3Destination) String() string { return "s3://" + d.bucket + "/" + d.key }

func (d *S3Destination) Write(ctx context.Context, snap *Snapshot) error {
	keys := []string{d.key}
	if d.history {
		keys = append(keys, d.historyKey(snap))
	}
	for _, key := range keys {
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(d.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(snap.Data),
			ContentType: aws.String("application/x-ndjson"),
			Metadata:    map[string]string{digestMetadataKey: snap.Digest},
		})
		if err != nil {
			return fmt.Errorf("put s3://%s/%s: %w", d.bucket, key, err)
		}
	}
	return nil
}

func (d *S3Destination) historyKey(snap *Snapshot) string {
	dir := ""
	if i := strings.LastIndex(d.key, "/"); i >= 0 {
		dir = d.key[:i+1]
	}
	return dir + "history/" + snap.Taken.Format("20060102T150405Z") + ".jsonl"
}
