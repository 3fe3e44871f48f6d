package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const defaultRegion = "us-east-1"

// S3Config holds the connection settings of an S3-compatible bucket.
type S3Config struct {
	Endpoint string
	KeyID    string
	AppKey   string
	Bucket   string
	Region   string // derived from a Backblaze endpoint when empty
}

// S3Store is a Store backed by an S3-compatible bucket (Backblaze B2 by default).
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a client for the given bucket. No request is made.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("storage endpoint and bucket are required")
	}

	region := cfg.Region
	if region == "" {
		region = regionFromEndpoint(cfg.Endpoint)
	}

	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(cfg.Endpoint),
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.KeyID, cfg.AppKey, ""),
		UsePathStyle: true,
		// B2 rejects the default CRC32 headers on some endpoints
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// regionFromEndpoint reads the region out of s3.<region>.backblazeb2.com.
func regionFromEndpoint(endpoint string) string {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Hostname()
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 3 && parts[0] == "s3" && strings.HasSuffix(host, ".backblazeb2.com") {
		return parts[1]
	}
	return defaultRegion
}

func (s *S3Store) ListFolders(ctx context.Context) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String("/"),
	})

	var folders []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &StorageError{Op: "list folders", Err: err}
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			if name != "" {
				folders = append(folders, name)
			}
		}
	}
	return folders, nil
}

func (s *S3Store) ListSongs(ctx context.Context, folder string) ([]Song, error) {
	prefix := folder + "/"
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var songs []Song
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &StorageError{Op: "list songs", Key: prefix, Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !IsSongKey(key) {
				continue
			}
			songs = append(songs, songFromKey(folder, key, aws.ToInt64(obj.Size)))
		}
	}
	return songs, nil
}

func (s *S3Store) ReadSong(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			err = fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, &StorageError{Op: "read", Key: key, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &StorageError{Op: "read", Key: key, Err: err}
	}
	return data, nil
}

func (s *S3Store) WriteSong(ctx context.Context, localPath, folder string) (string, error) {
	key := SongKey(folder, filepath.Base(localPath))

	f, err := os.Open(localPath)
	if err != nil {
		return "", &StorageError{Op: "write", Key: key, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", &StorageError{Op: "write", Key: key, Err: err}
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("audio/mpeg"),
	})
	if err != nil {
		return "", &StorageError{Op: "write", Key: key, Err: err}
	}
	return key, nil
}
