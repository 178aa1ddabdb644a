// package archive
//
// copies the migration log to s3
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/baderkha/events-migrator/pkg/migrate/config"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ErrNothingToArchive : the log file does not exist yet
var ErrNothingToArchive = errors.New("migration log does not exist yet")

// Archiver : uploads a snapshot of the migration log
type Archiver interface {
	Archive(ctx context.Context) (string, error)
}

// S3Archiver : puts the log under s3://bucket/prefix/date=YYYY-MM-DD/<name>-<unix>.log
type S3Archiver struct {
	client   s3iface.S3API
	fs       afero.Fs
	logPath  string
	bucket   string
	prefix   string
	maxRetry int
	log      zerolog.Logger
	now      func() time.Time
}

// NewS3Archiver : archiver using the default aws credential chain
func NewS3Archiver(cfg config.ArchiveConfig, fs afero.Fs, logPath string, log zerolog.Logger) (*S3Archiver, error) {
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("archive : aws session : %w", err)
	}
	return NewS3ArchiverWithClient(s3.New(sess), cfg, fs, logPath, log), nil
}

func NewS3ArchiverWithClient(client s3iface.S3API, cfg config.ArchiveConfig, fs afero.Fs, logPath string, log zerolog.Logger) *S3Archiver {
	maxRetry := cfg.MaxRetry
	if maxRetry < 1 {
		maxRetry = 1
	}
	return &S3Archiver{
		client:   client,
		fs:       fs,
		logPath:  logPath,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		maxRetry: maxRetry,
		log:      log.With().Str("component", "archive").Logger(),
		now:      time.Now,
	}
}

// Key : object key for a snapshot taken at t
func (a *S3Archiver) Key(t time.Time) string {
	base := strings.TrimSuffix(filepath.Base(a.logPath), filepath.Ext(a.logPath))
	return path.Join(a.prefix, "date="+t.UTC().Format(time.DateOnly), fmt.Sprintf("%s-%d.log", base, t.Unix()))
}

// Archive : uploads the log and returns the object key
func (a *S3Archiver) Archive(ctx context.Context) (string, error) {
	body, err := afero.ReadFile(a.fs, a.logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNothingToArchive
		}
		return "", fmt.Errorf("archive : read %s : %w", a.logPath, err)
	}
	key := a.Key(a.now())
	if err := a.upload(ctx, body, key); err != nil {
		return "", err
	}
	a.log.Info().Str("bucket", a.bucket).Str("key", key).Int("bytes", len(body)).Msg("migration log archived")
	return key, nil
}

func (a *S3Archiver) upload(ctx context.Context, body []byte, key string) error {
	var (
		retryCtr int
		err      error
	)
	for retryCtr < a.maxRetry {
		_, err = a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Body:   bytes.NewReader(body),
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return nil
		}
		retryCtr++
		a.log.Warn().Err(err).Int("attempt", retryCtr).Str("key", key).Msg("archive upload failed")
	}
	return fmt.Errorf("archive : uploading key (%s) failed %d times : %w", key, retryCtr, err)
}
