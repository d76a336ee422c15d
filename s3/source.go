// Package s3 provides an edk.RawSource streaming the objects under an S3
// bucket/prefix, so source tables can live in object storage.
package s3

import (
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/ecodata/edk"
)

// SrcOption is a functional option type for Source.
type SrcOption func(s *Source)

// OptSrcBucket sets the S3 bucket.
func OptSrcBucket(bucket string) SrcOption {
	return func(s *Source) {
		s.bucket = bucket
	}
}

// OptSrcRegion sets the AWS region.
func OptSrcRegion(region string) SrcOption {
	return func(s *Source) {
		s.region = region
	}
}

// OptSrcPrefix restricts the source to objects under the given key prefix.
func OptSrcPrefix(prefix string) SrcOption {
	return func(s *Source) {
		s.prefix = prefix
	}
}

// Source implements edk.RawSource over the objects of a bucket.
type Source struct {
	bucket string
	prefix string
	region string

	client *s3.S3
	keys   []string
	next   int
}

// NewSource lists the matching objects and returns a Source ready to hand
// out one reader per object.
func NewSource(opts ...SrcOption) (*Source, error) {
	s := &Source{
		region: "us-east-1",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bucket == "" {
		return nil, errors.New("s3 source requires a bucket")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(s.region)})
	if err != nil {
		return nil, errors.Wrap(err, "creating aws session")
	}
	s.client = s3.New(sess)

	input := &s3.ListObjectsInput{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}
	err = s.client.ListObjectsPages(input, func(page *s3.ListObjectsOutput, last bool) bool {
		for _, obj := range page.Contents {
			s.keys = append(s.keys, *obj.Key)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing objects in bucket '%s'", s.bucket)
	}
	return s, nil
}

// NextReader implements edk.RawSource, returning one reader per listed
// object and io.EOF when the bucket is exhausted.
func (s *Source) NextReader() (edk.NamedReadCloser, error) {
	if s.next >= len(s.keys) {
		return nil, io.EOF
	}
	key := s.keys[s.next]
	s.next++
	resp, err := s.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "getting object '%s'", key)
	}
	return &objectReader{ReadCloser: resp.Body, name: key}, nil
}

type objectReader struct {
	io.ReadCloser
	name string
}

func (r *objectReader) Name() string { return r.name }
