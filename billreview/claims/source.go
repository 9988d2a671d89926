package claims

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// File identifies one claim document held by a Source.
type File struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Source lists and opens claim documents.
type Source interface {
	List(ctx context.Context) ([]File, error)
	Open(ctx context.Context, f File) (io.ReadCloser, error)
}

// SourceConfig configures claim sources. S3 settings are only used for s3:// paths.
type SourceConfig struct {
	Path          string `conf:"CLAIMS_PATH"`
	S3Endpoint    string `conf:"AWS_ENDPOINT"`
	S3Region      string `conf:"AWS_REGION" conf_default:"us-east-1"`
	AssumeRoleArn string `conf:"AWS_ASSUME_ROLE_ARN"`
}

// NewSource returns an S3Source for s3:// paths and a LocalSource otherwise.
func NewSource(cfg SourceConfig, logger logrus.FieldLogger) (Source, error) {
	if cfg.Path == "" {
		return nil, errors.New("no claims path configured")
	}

	if strings.HasPrefix(cfg.Path, "s3://") {
		return NewS3Source(cfg, logger)
	}

	return &LocalSource{Dir: cfg.Path, Logger: logger}, nil
}

type LocalSource struct {
	Dir    string
	Logger logrus.FieldLogger
}

func (s *LocalSource) List(ctx context.Context) ([]File, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read claims directory %s", s.Dir)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() || !IsClaimFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			s.Logger.Warnf("Skipping %s: %s", e.Name(), err)
			continue
		}
		files = append(files, File{
			Name:    e.Name(),
			Path:    filepath.Join(s.Dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	s.Logger.Infof("Found %d claim files in %s", len(files), s.Dir)
	return files, nil
}

func (s *LocalSource) Open(ctx context.Context, f File) (io.ReadCloser, error) {
	return os.Open(filepath.Clean(f.Path))
}
