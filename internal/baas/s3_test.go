package baas

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  []string
	deletes []*s3.DeleteObjectInput
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(b))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, in)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Blobs_Put(t *testing.T) {
	fake := &fakeS3{}
	b := &S3Blobs{client: fake, bucket: "ephemera-images", prefix: "pages"}

	if err := b.Put(t.Context(), "u1/x.webp", strings.NewReader("RIFF"), 4, "image/webp"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("puts = %d", len(fake.puts))
	}
	in := fake.puts[0]
	if aws.ToString(in.Bucket) != "ephemera-images" {
		t.Errorf("Bucket = %q", aws.ToString(in.Bucket))
	}
	if aws.ToString(in.Key) != "pages/u1/x.webp" {
		t.Errorf("Key = %q", aws.ToString(in.Key))
	}
	if aws.ToString(in.ContentType) != "image/webp" {
		t.Errorf("ContentType = %q", aws.ToString(in.ContentType))
	}
	if aws.ToInt64(in.ContentLength) != 4 || fake.bodies[0] != "RIFF" {
		t.Errorf("body = %q (%d)", fake.bodies[0], aws.ToInt64(in.ContentLength))
	}
	if aws.ToString(in.IfNoneMatch) != "*" {
		t.Error("Put should refuse to overwrite")
	}
}

func TestS3Blobs_NoPrefix(t *testing.T) {
	fake := &fakeS3{}
	b := &S3Blobs{client: fake, bucket: "b"}
	if err := b.Delete(t.Context(), "u1/x.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := aws.ToString(fake.deletes[0].Key); got != "u1/x.png" {
		t.Fatalf("Key = %q", got)
	}
}

func TestS3Blobs_ErrorsAreWrapped(t *testing.T) {
	base := errors.New("access denied")
	b := &S3Blobs{client: &fakeS3{err: base}, bucket: "b", prefix: "p"}

	err := b.Put(t.Context(), "k", strings.NewReader(""), 0, "image/png")
	if !errors.Is(err, base) {
		t.Fatalf("Put err = %v", err)
	}
	if !strings.Contains(err.Error(), "s3://b/p/k") {
		t.Errorf("error should name the object: %v", err)
	}
	if err := b.Delete(t.Context(), "k"); !errors.Is(err, base) {
		t.Fatalf("Delete err = %v", err)
	}
}

func TestNewS3Blobs_RequiresBucket(t *testing.T) {
	if _, err := NewS3Blobs(nil, "", ""); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}
