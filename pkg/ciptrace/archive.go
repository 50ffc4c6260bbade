// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ciptrace

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver uploads closed trace recordings to S3. Grounded on
// vango-go-vango's pkg/upload/s3_example.go S3Store: a thin wrapper
// over a caller-provided *s3.Client, no client construction or
// credential handling of its own.
//
// An Archiver is optional; nothing in pkg/cip or Recorder depends on
// it. Callers wire it in explicitly after closing a Recorder's
// underlying file.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchiver constructs an Archiver against an already-configured S3
// client. bucket must be non-empty; prefix may be empty.
func NewArchiver(client *s3.Client, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix}
}

// ArchiveFile uploads the trace file at localPath to the configured
// bucket, keyed by prefix + the file's base name, and returns the
// object key. It runs synchronously; callers wanting non-blocking
// archival should invoke it from their own goroutine, never from an
// engine lane.
func (a *Archiver) ArchiveFile(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("ciptrace: open trace file: %w", err)
	}
	defer f.Close()

	key := path.Join(a.prefix, path.Base(localPath))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/cbor"),
		Metadata: map[string]string{
			"archived-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("ciptrace: s3 upload: %w", err)
	}
	return key, nil
}
