// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive copies downloaded PDFs to an S3 bucket before the local
// scratch file is released. Archiving is an optional extra: failures are
// returned for the caller to note on the outcome, never to fail a paper.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// putter is the subset of *s3.Client the archive uses.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores PDFs under bucket/prefix/<arXiv ID>/<filename>.
type S3 struct {
	client putter
	bucket string
	prefix string
}

// NewS3 builds an archive using the default AWS credential chain, with
// optional region, profile, and path-style overrides.
func NewS3(ctx context.Context, cfg types.ArchiveConfig) (*S3, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("%w: archive.s3_bucket is empty", types.ErrConfiguration)
	}
	var loadOpts []func(*config.LoadOptions) error
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.S3Region))
	}
	if cfg.S3Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.S3Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: loading AWS config: %v", types.ErrConfiguration, err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3(client, cfg), nil
}

func newS3(client putter, cfg types.ArchiveConfig) *S3 {
	return &S3{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: strings.Trim(cfg.S3Prefix, "/"),
	}
}

// Key returns the object key for a paper's PDF.
func (a *S3) Key(p types.Paper, filename string) string {
	id := strings.ReplaceAll(p.ID, "/", "_")
	if id == "" {
		id = "unknown"
	}
	return path.Join(a.prefix, id, filename)
}

// Store uploads the file at localPath and returns its s3:// location.
func (a *S3) Store(ctx context.Context, p types.Paper, localPath, filename string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("archiving %s: %w", filename, err)
	}
	defer f.Close()

	key := a.Key(p, filename)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/pdf"),
		Metadata: map[string]string{
			"arxiv-id": p.ID,
		},
	}
	if info, err := f.Stat(); err == nil {
		in.ContentLength = aws.Int64(info.Size())
	}
	if _, err := a.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("archiving %s to s3://%s/%s: %w", filename, a.bucket, key, err)
	}
	return "s3://" + a.bucket + "/" + key, nil
}
