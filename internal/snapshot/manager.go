// Package snapshot archives the latest successful export to gzipped
// local files, with keep-last pruning and optional S3 upload.
package snapshot

import (
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Abdullah0297445/clickup-exporter/internal/cache"
	"github.com/Abdullah0297445/clickup-exporter/internal/logging"
)

const (
	defaultInterval = 24 * time.Hour
	defaultKeepLast = 7
)

// Source is the cache surface snapshots are read from.
type Source interface {
	Latest(ctx context.Context, teamID string) (string, error)
	Get(ctx context.Context, teamID, version string) (*cache.Envelope, error)
}

// Uploader uploads one snapshot artifact.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}

// Config controls periodic export snapshots.
type Config struct {
	Enabled  bool
	Interval time.Duration
	LocalDir string
	KeepLast int
	TeamID   string

	BucketURL      string
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3SessionToken string
	S3UseSSL       bool

	Logger *slog.Logger
}

// Manager runs periodic local snapshots and optional remote uploads.
type Manager struct {
	source   Source
	cfg      Config
	uploader Uploader
	logger   *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager initializes the snapshot manager. It returns nil when
// snapshots are disabled.
func NewManager(source Source, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if source == nil {
		return nil, fmt.Errorf("snapshot: nil source")
	}
	if strings.TrimSpace(cfg.TeamID) == "" {
		return nil, fmt.Errorf("snapshot: team id is required")
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("snapshot: local-dir is required when snapshots are enabled")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("snapshot: create local-dir: %w", err)
	}

	var uploader Uploader
	if strings.TrimSpace(cfg.BucketURL) != "" {
		s3u, err := NewS3Uploader(S3Config{
			BucketURL:    cfg.BucketURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("snapshot: init s3 uploader: %w", err)
		}
		uploader = s3u
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		source:   source,
		cfg:      cfg,
		uploader: uploader,
		logger:   logging.Component(cfg.Logger, "snapshot"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func (m *Manager) loop() {
	defer m.wg.Done()

	// Startup snapshot to shorten the recovery point after restarts.
	if err := m.RunOnce(m.ctx); err != nil {
		logging.Error(m.logger, "startup snapshot failed", err)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.RunOnce(m.ctx); err != nil {
				logging.Error(m.logger, "periodic snapshot failed", err)
			}
		case <-m.done:
			return
		}
	}
}

// RunOnce writes one snapshot of the latest successful export,
// uploads it when configured, and prunes old local copies. A cache
// with no successful export yet is not an error.
func (m *Manager) RunOnce(ctx context.Context) error {
	version, err := m.source.Latest(ctx, m.cfg.TeamID)
	if err != nil {
		return fmt.Errorf("latest version: %w", err)
	}
	if version == "" {
		return nil
	}

	env, err := m.source.Get(ctx, m.cfg.TeamID, version)
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	if env == nil || env.Status != cache.StatusSuccess || len(env.Data) == 0 {
		return nil
	}

	fileName := fmt.Sprintf("clickup-export-%s-%s.json.gz",
		m.cfg.TeamID, time.Now().UTC().Format("20060102-150405"))
	localPath := filepath.Join(m.cfg.LocalDir, fileName)

	if err := writeGzipped(localPath, env.Data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	logging.Operation(m.logger, "snapshot_written",
		slog.String("path", localPath),
		slog.String("version", version))

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, localPath); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		logging.Operation(m.logger, "snapshot_uploaded", slog.String("file", fileName))
	}

	if err := m.pruneLocal(); err != nil {
		return fmt.Errorf("prune local snapshots: %w", err)
	}
	return nil
}

// Stop terminates the periodic snapshot loop and cancels any
// in-flight upload.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.cancel()
		m.wg.Wait()
	})
}

func writeGzipped(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (m *Manager) pruneLocal() error {
	pattern := fmt.Sprintf("clickup-export-%s-*.json.gz", m.cfg.TeamID)
	matches, err := filepath.Glob(filepath.Join(m.cfg.LocalDir, pattern))
	if err != nil {
		return err
	}
	if len(matches) <= m.cfg.KeepLast {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		// timestamp is embedded in filename and lexical sort matches chronology
		return matches[i] > matches[j]
	})

	for _, oldPath := range matches[m.cfg.KeepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
