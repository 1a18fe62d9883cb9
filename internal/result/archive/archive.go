// Package archive optionally mirrors an already-saved result directory
// tree (internal/result.Save's output) to an S3 prefix as a backup
// artifact. It is strictly additive: the local filesystem remains the
// result-of-record, and nothing here participates in Save's
// exists-fails-first invariant.
package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/loadbench/loadbench/internal/errs"
)

// Uploader is the subset of *s3.Client the archiver needs.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads a saved benchmark result directory to bucket under
// prefix.
type Archiver struct {
	client Uploader
	bucket string
	prefix string
}

// New wraps an S3 client. Pass the result of s3.NewFromConfig(awsCfg).
func New(client Uploader, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Upload walks dir (the directory Save produced, e.g.
// <output_dir>/benchmark_<id>) and puts every regular file at
// <prefix>/<base(dir)>/<relative path> in the bucket. It is best-effort per
// file: one failed upload does not abort the rest, and every failure is
// collected into the returned error.
func (a *Archiver) Upload(ctx context.Context, dir string) error {
	base := filepath.Base(dir)
	var failures []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := a.prefix + "/" + base + "/" + filepath.ToSlash(rel)

		f, err := os.Open(path)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: open: %v", rel, err))
			return nil
		}
		defer f.Close()

		_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &a.bucket,
			Key:    &key,
			Body:   f,
		})
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: put: %v", rel, err))
		}
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.ParseError, fmt.Sprintf("walk result directory %s", dir), err)
	}
	if len(failures) > 0 {
		return fmt.Errorf("archive upload to s3://%s/%s had %d failure(s): %s", a.bucket, a.prefix, len(failures), strings.Join(failures, "; "))
	}
	return nil
}
