package baas

import (
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/ephemera/internal/xerrors"
)

// s3API is the subset of the S3 client used for page images.
// Extracted as an interface to enable unit testing without live AWS credentials.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Blobs stores objects under s3://{bucket}/{prefix}/{key}.
type S3Blobs struct {
	client s3API
	bucket string
	prefix string
}

func NewS3Blobs(client *s3.Client, bucket, prefix string) (*S3Blobs, error) {
	if bucket == "" {
		return nil, xerrors.New("S3 bucket is required")
	}
	return &S3Blobs{client: client, bucket: bucket, prefix: prefix}, nil
}

func (b *S3Blobs) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

func (b *S3Blobs) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	k := b.objectKey(key)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(k),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		// never overwrite an existing object
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put S3 object s3://%s/%s", b.bucket, k)
	}
	return nil
}

func (b *S3Blobs) Delete(ctx context.Context, key string) error {
	k := b.objectKey(key)
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return xerrors.Wrapf(err, "delete S3 object s3://%s/%s", b.bucket, k)
	}
	return nil
}
