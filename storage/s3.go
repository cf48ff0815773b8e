package storage

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/nicolagi/syng/config"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var _ Store = (*S3Store)(nil)
var _ Enumerable = (*S3Store)(nil)

// S3Store is a remote object backend, typically paired with a DiskStore via
// Paired so that the (larger, higher-latency) bucket only sees a trickle of
// background writes.
type S3Store struct {
	profile string
	region  string
	bucket  string
	client  *s3.S3
}

// NewS3Store builds a remote store against the bucket/region/profile named
// in c. The AWS session is established lazily, on first use.
func NewS3Store(c *config.C) *S3Store {
	return &S3Store{
		profile: c.S3Profile,
		region:  c.S3Region,
		bucket:  c.S3Bucket,
	}
}

func (s *S3Store) Get(key Key) (contents Value, err error) {
	if err := s.ensureClient(); err != nil {
		return nil, err
	}
	output, err := s.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(key)),
	})
	if err != nil {
		if rfErr, ok := err.(awserr.RequestFailure); ok {
			if rfErr.StatusCode() == http.StatusNotFound {
				return nil, errors.Wrapf(ErrNotFound, "key=%q err=%+v", key, err)
			}
		}
		return nil, err
	}
	defer func() {
		if err := output.Body.Close(); err != nil {
			log.WithFields(log.Fields{
				"op":  "get",
				"key": key,
			}).Warning("Could not close response body")
		}
	}()
	return ioutil.ReadAll(output.Body)
}

func (s *S3Store) Put(key Key, value Value) (err error) {
	err = s.ensureClient()
	if err == nil {
		_, err = s.client.PutObject(&s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(string(key)),
			Body:   bytes.NewReader(value),
		})
	}
	return
}

func (s *S3Store) Delete(key Key) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(key)),
	})
	return err
}

// Contains reports whether key is present in the bucket, via a HEAD
// request rather than fetching the whole object.
func (s *S3Store) Contains(key Key) (bool, error) {
	if err := s.ensureClient(); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(key)),
	})
	if err != nil {
		if rfErr, ok := err.(awserr.RequestFailure); ok && rfErr.StatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ForEach calls fn once for every key in the bucket, paging through
// ListObjects. Transient listing failures are retried indefinitely, as the
// teacher's original List did, since sweeping is a background task that can
// afford to wait out a blip.
func (s *S3Store) ForEach(fn func(Key) error) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	input := &s3.ListObjectsInput{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String(","),
	}
	for {
		output, err := s.client.ListObjects(input)
		if err != nil {
			log.WithField("cause", err.Error()).Error("Could not list")
			// Retry indefinitely.
			time.Sleep(5 * time.Second)
			continue
		}
		for _, o := range output.Contents {
			if err := fn(Key(*o.Key)); err != nil {
				return err
			}
		}
		if output.NextMarker == nil {
			return nil
		}
		input.Marker = output.NextMarker
	}
}

func (s *S3Store) ensureClient() error {
	if s.client != nil {
		return nil
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(s.region),
		Credentials: credentials.NewSharedCredentials("", s.profile),
	})
	if err != nil {
		return err
	}
	client := s3.New(sess)
	s.client = client
	return nil
}
