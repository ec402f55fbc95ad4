package filesystem

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go/logging"
)

const s3MaxKeys = 1000

// S3Client abstracts the S3 client methods we use.
type S3Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds the configuration for the S3/Minio backend.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Insecure        bool
	UsePathStyle    bool
}

// S3 implements FileSystem over an object store. Object keys are addressed
// as s3://bucket/key; a key prefix behaves as a directory.
type S3 struct {
	client S3Client
}

var _ FileSystem = &S3{}

// noOpLogger discards AWS SDK logs.
type noOpLogger struct{}

func (noOpLogger) Logf(logging.Classification, string, ...any) {}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithClientLogMode(0),
		awsconfig.WithLogger(noOpLogger{}),
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.Insecure {
		opts = append(opts, awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTransportOptions(func(t *http.Transport) {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit insecure option
		})))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not load S3 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3{client: client}, nil
}

// NewS3WithClient builds an S3 filesystem around an existing client,
// used by tests.
func NewS3WithClient(client S3Client) *S3 {
	return &S3{client: client}
}

// SplitPath parses s3://bucket/key into its bucket and key parts.
func SplitPath(name string) (bucket, key string, err error) {
	if !IsS3Path(name) {
		return "", "", fmt.Errorf("not an s3 path: %s", name)
	}
	trimmed := strings.TrimPrefix(name, "s3://")
	bucket, key, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in s3 path: %s", name)
	}
	return bucket, strings.TrimSuffix(key, "/"), nil
}

func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	bucket, key, err := SplitPath(name)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("could not get object %s: %w", name, err)
	}
	return out.Body, nil
}

func (s *S3) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	bucket, key, err := SplitPath(name)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return &objectInfo{name: bucket, dir: true}, nil
	}
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return &objectInfo{
			name:    path.Base(key),
			size:    aws.ToInt64(head.ContentLength),
			modTime: aws.ToTime(head.LastModified),
		}, nil
	}
	// The key may be a prefix standing in for a directory.
	list, listErr := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if listErr == nil && aws.ToInt32(list.KeyCount) > 0 {
		return &objectInfo{name: path.Base(key), dir: true}, nil
	}
	return nil, fmt.Errorf("could not stat %s: %w", name, errors.Join(err, fs.ErrNotExist))
}

// Lstat is identical to Stat: object stores have no symlinks.
func (s *S3) Lstat(ctx context.Context, name string) (fs.FileInfo, error) {
	return s.Stat(ctx, name)
}

func (s *S3) ReadDir(ctx context.Context, name string) ([]fs.DirEntry, error) {
	bucket, key, err := SplitPath(name)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if key != "" {
		prefix = key + "/"
	}
	var entries []fs.DirEntry
	var continuation *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			MaxKeys:           aws.Int32(s3MaxKeys),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("could not list %s: %w", name, err)
		}
		for _, cp := range out.CommonPrefixes {
			sub := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if sub == "" {
				continue
			}
			entries = append(entries, dirEntry{info: &objectInfo{name: sub, dir: true}})
		}
		for _, obj := range out.Contents {
			base := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if base == "" {
				continue
			}
			entries = append(entries, dirEntry{info: &objectInfo{
				name:    base,
				size:    aws.ToInt64(obj.Size),
				modTime: aws.ToTime(obj.LastModified),
			}})
		}
		if !aws.ToBool(out.IsTruncated) {
			return entries, nil
		}
		continuation = out.NextContinuationToken
	}
}

func (s *S3) Join(elem ...string) string {
	if len(elem) == 0 {
		return ""
	}
	first := strings.TrimPrefix(elem[0], "s3://")
	return "s3://" + path.Join(append([]string{first}, elem[1:]...)...)
}

type objectInfo struct {
	name    string
	size    int64
	modTime time.Time
	dir     bool
}

var _ fs.FileInfo = &objectInfo{}

func (o *objectInfo) Name() string { return o.name }
func (o *objectInfo) Size() int64  { return o.size }
func (o *objectInfo) Mode() fs.FileMode {
	if o.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
func (o *objectInfo) ModTime() time.Time { return o.modTime }
func (o *objectInfo) IsDir() bool        { return o.dir }
func (o *objectInfo) Sys() any           { return nil }

type dirEntry struct {
	info *objectInfo
}

var _ fs.DirEntry = dirEntry{}

func (d dirEntry) Name() string               { return d.info.name }
func (d dirEntry) IsDir() bool                { return d.info.dir }
func (d dirEntry) Type() fs.FileMode          { return d.info.Mode().Type() }
func (d dirEntry) Info() (fs.FileInfo, error) { return d.info, nil }
