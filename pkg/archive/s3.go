package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"path"
	"slices"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of *s3.Client the S3 sink uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes each batch as JSON lines, one object per room, under
// prefix/room/<room id>/<unix nanos>.jsonl.
type S3Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

var _ Sink = (*S3Sink)(nil)

// NewS3Sink creates a sink for bucket. client is usually an *s3.Client.
func NewS3Sink(client PutObjectAPI, bucket, prefix string) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// Name returns "s3".
func (s *S3Sink) Name() string { return "s3" }

// Write uploads records grouped by room.
func (s *S3Sink) Write(ctx context.Context, records []Record) error {
	byRoom := make(map[int64][]Record)
	for _, r := range records {
		byRoom[r.RoomID] = append(byRoom[r.RoomID], r)
	}
	stamp := strconv.FormatInt(s.now().UnixNano(), 10)

	for _, room := range slices.Sorted(maps.Keys(byRoom)) {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, r := range byRoom[room] {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("archive: encode: %w", err)
			}
		}
		key := s.Key(room, stamp)
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String("application/x-ndjson"),
		})
		if err != nil {
			return fmt.Errorf("archive: put %s: %w", key, err)
		}
	}
	return nil
}

// Key returns the object key of a batch for room written at stamp.
func (s *S3Sink) Key(room int64, stamp string) string {
	return path.Join(s.prefix, "room", strconv.FormatInt(room, 10), stamp+".jsonl")
}
