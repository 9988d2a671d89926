package claims

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"
)

type S3Source struct {
	Logger logrus.FieldLogger
	Bucket string
	Prefix string

	svc s3iface.S3API
}

func NewS3Source(cfg SourceConfig, logger logrus.FieldLogger) (*S3Source, error) {
	bucket, prefix := parseS3Uri(cfg.Path)
	if bucket == "" {
		return nil, fmt.Errorf("invalid S3 path %q", cfg.Path)
	}

	sess, err := createSession(cfg)
	if err != nil {
		return nil, err
	}

	return &S3Source{Logger: logger, Bucket: bucket, Prefix: prefix, svc: s3.New(sess)}, nil
}

func (s *S3Source) List(ctx context.Context) ([]File, error) {
	s.Logger.Infof("Listing objects in bucket %s, prefix %s", s.Bucket, s.Prefix)

	var files []File
	err := s.svc.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if !IsClaimFile(key) {
				continue
			}
			files = append(files, File{
				Name:    path.Base(key),
				Path:    fmt.Sprintf("s3://%s/%s", s.Bucket, key),
				Size:    aws.Int64Value(obj.Size),
				ModTime: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		s.Logger.Errorf("Failed to list objects in S3 bucket %s, prefix %s: %s", s.Bucket, s.Prefix, err)
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *S3Source) Open(ctx context.Context, f File) (io.ReadCloser, error) {
	bucket, key := parseS3Uri(f.Path)

	downloader := s3manager.NewDownloaderWithClient(s.svc)
	buff := &aws.WriteAtBuffer{}
	numBytes, err := downloader.DownloadWithContext(ctx, buff, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.Logger.Errorf("Failed to download bucket %s, key %s", bucket, key)
		return nil, err
	}

	s.Logger.Debugf("file downloaded: key=%s size=%d", key, numBytes)
	return io.NopCloser(bytes.NewReader(buff.Bytes())), nil
}

func createSession(cfg SourceConfig) (*session.Session, error) {
	sess := session.Must(session.NewSession())

	config := aws.Config{
		Region: aws.String(cfg.S3Region),
	}

	if cfg.S3Endpoint != "" {
		config.S3ForcePathStyle = aws.Bool(true)
		config.Endpoint = aws.String(cfg.S3Endpoint)
	}

	if cfg.AssumeRoleArn != "" {
		config.Credentials = stscreds.NewCredentials(sess, cfg.AssumeRoleArn)
	}

	return session.NewSessionWithOptions(session.Options{
		Config: config,
	})
}

func parseS3Uri(str string) (bucket string, key string) {
	workingString := strings.TrimPrefix(str, "s3://")
	resultArr := strings.SplitN(workingString, "/", 2)

	if len(resultArr) == 1 {
		return resultArr[0], ""
	}

	return resultArr[0], resultArr[1]
}
