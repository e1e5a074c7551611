package externaldata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/tensor"
)

// GCSSink uploads each tensor as its own object under Prefix in Bucket.
// Locations are gs:// URLs.
type GCSSink struct {
	Bucket string
	Prefix string

	client *storage.Client
	locs    map[string]Location
	objects map[string]string // object name -> tensor name
	closed  bool
}

var _ Sink = (*GCSSink)(nil)

// NewGCSSink connects to Google Cloud Storage with application default
// credentials. url has the form gs://bucket/prefix.
func NewGCSSink(ctx context.Context, url string) (*GCSSink, error) {
	bucket, prefix, err := ParseGCSURL(url)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS storage client")
	}
	return &GCSSink{Bucket: bucket, Prefix: prefix, client: client, locs: make(map[string]Location)}, nil
}

// ParseGCSURL splits gs://bucket/prefix into its parts. A non-empty prefix
// always ends with a slash.
func ParseGCSURL(url string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(url, "gs://")
	if !ok {
		return "", "", errors.Wrapf(ErrInvalidURL, "%q does not start with gs://", url)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", errors.Wrapf(ErrInvalidURL, "%q has no bucket", url)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// URL returns the gs:// URL of an object of the sink.
func (s *GCSSink) URL(object string) string {
	return "gs://" + s.Bucket + "/" + object
}

// Put uploads t synchronously.
func (s *GCSSink) Put(ctx context.Context, name string, t *tensor.RawTensor) error {
	log := klog.FromContext(ctx)
	if s.closed {
		return &TensorError{Err: ErrSinkClosed, Tensor: name}
	}
	file, err := FileName(name)
	if err != nil {
		return err
	}
	if _, dup := s.locs[name]; dup {
		return &TensorError{Err: ErrDuplicateTensor, Tensor: name}
	}

	object := s.Prefix + file
	if other, taken := s.objects[object]; taken {
		return &TensorError{Err: ErrDuplicateTensor, Tensor: name, Details: fmt.Sprintf("object %q already holds tensor %q", object, other)}
	}
	url := s.URL(object)
	data := t.Contiguous().Host().Data()

	log.Info("uploading tensor to GCS", "name", name, "destination", url)
	startedAt := time.Now()
	w := s.client.Bucket(s.Bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	n, err := io.Copy(w, bytes.NewReader(data))
	if err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "uploading %q to GCS", url)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "closing GCS writer for %q", url)
	}
	log.Info("uploaded tensor to GCS", "url", url, "bytes", n, "duration", time.Since(startedAt))

	s.locs[name] = Location{Path: url, Length: n, Checksum: Checksum(data)}
	if s.objects == nil {
		s.objects = make(map[string]string)
	}
	s.objects[object] = name
	return nil
}

// Close releases the storage client.
func (s *GCSSink) Close(context.Context) (map[string]Location, error) {
	if s.closed {
		return nil, ErrSinkClosed
	}
	s.closed = true
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			return nil, errors.Wrap(err, "closing GCS storage client")
		}
	}
	return s.locs, nil
}
