package ingestion

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// ObjectGetter is the subset of the S3 client used for downloads.
// *s3.Client satisfies it.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from the default credential chain.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, perrors.Wrap(err, "load aws config")
	}
	return s3.NewFromConfig(cfg), nil
}

// downloadObject streams bucket/key into dst and returns the number of bytes written.
func downloadObject(ctx context.Context, client ObjectGetter, bucket, key, dst string) (int64, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, perrors.Wrapf(err, "get s3://%s/%s", bucket, key)
	}
	defer out.Body.Close()
	return writeFile(dst, out.Body)
}

// copyFile copies src to dst.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, perrors.Wrapf(err, "open %s", src)
	}
	defer in.Close()
	return writeFile(dst, in)
}

// writeFile writes r to a temporary file next to dst and renames it into
// place, so a failed download never leaves a truncated dst behind.
func writeFile(dst string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, perrors.Wrapf(err, "create directory for %s", dst)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, perrors.Wrapf(err, "create temp file for %s", dst)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, perrors.Wrapf(err, "write %s", dst)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, perrors.Wrapf(err, "rename to %s", dst)
	}
	return n, nil
}
