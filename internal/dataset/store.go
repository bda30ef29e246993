package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dreamware/lloyd/internal/kmeans"
)

const s3Scheme = "s3://"

// ErrNotFound is returned when a source does not exist.
var ErrNotFound = errors.New("dataset not found")

// S3Options locates the S3-compatible service behind s3:// paths.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Location is a parsed dataset path: a local file, or Key in Bucket.
type Location struct {
	Bucket string
	Key    string
	Path   string
}

func (l Location) IsS3() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.IsS3() {
		return s3Scheme + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// ParseLocation splits "s3://bucket/key" into its parts. Anything else is
// a local path.
func ParseLocation(s string) (Location, error) {
	rest, ok := strings.CutPrefix(s, s3Scheme)
	if !ok {
		if s == "" {
			return Location{}, errors.New("empty dataset path")
		}
		return Location{Path: s}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid s3 path %q: want s3://bucket/key", s)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

func newClient(opts S3Options) (*minio.Client, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("s3 endpoint not configured")
	}
	return minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
}

// Open opens src for reading.
func Open(ctx context.Context, src string, opts S3Options) (io.ReadCloser, error) {
	loc, err := ParseLocation(src)
	if err != nil {
		return nil, err
	}
	if !loc.IsS3() {
		f, err := os.Open(loc.Path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", loc.Path, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	client, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	obj, err := client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", loc, s3Error(err))
	}
	return &objectReader{obj: obj, loc: loc}, nil
}

// objectReader translates missing-object errors, which minio-go reports
// on the first Read rather than on GetObject.
type objectReader struct {
	obj *minio.Object
	loc Location
}

func (r *objectReader) Read(p []byte) (int, error) {
	n, err := r.obj.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("read %s: %w", r.loc, s3Error(err))
	}
	return n, err
}

func (r *objectReader) Close() error { return r.obj.Close() }

func s3Error(err error) error {
	code := minio.ToErrorResponse(err).Code
	if code == "NoSuchKey" || code == "NoSuchBucket" || code == "NotFound" {
		return fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return err
}

// Load reads every point of src.
func Load(ctx context.Context, src string, opts S3Options) ([]kmeans.Point, error) {
	rc, err := Open(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	points, err := ReadPoints(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return points, nil
}

// Create opens dst for writing. Local parent directories are created with
// mode 0775. For s3:// destinations the object is streamed while it is
// written and becomes visible when Close returns nil.
func Create(ctx context.Context, dst string, opts S3Options) (io.WriteCloser, error) {
	loc, err := ParseLocation(dst)
	if err != nil {
		return nil, err
	}
	if !loc.IsS3() {
		if dir := filepath.Dir(loc.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o775); err != nil {
				return nil, err
			}
		}
		f, err := os.Create(loc.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	client, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	w := &objectWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := client.PutObject(ctx, loc.Bucket, loc.Key, pr, -1, minio.PutObjectOptions{ContentType: "text/plain"})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

type objectWriter struct {
	pw     *io.PipeWriter
	done   chan error
	closed atomic.Bool
}

func (w *objectWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *objectWriter) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return errors.New("already closed")
	}
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

// Save writes points and their labels to dst in the output format.
func Save(ctx context.Context, dst string, opts S3Options, points []kmeans.Point, labels []int) error {
	var buf bytes.Buffer
	if err := WritePoints(&buf, points, labels); err != nil {
		return err
	}
	wc, err := Create(ctx, dst, opts)
	if err != nil {
		return err
	}
	if _, err := buf.WriteTo(wc); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
