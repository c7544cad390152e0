package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"gorm.io/gorm"

	"github.com/tgcircle/tgcircle/internal/config"
)

const backupSuffix = ".db.xz"

// BackupService creates compressed snapshots of the SQLite metrics store
// and prunes old ones. PostgreSQL deployments are expected to use their
// own backup tooling.
type BackupService struct {
	db     *gorm.DB
	driver string
	cfg    config.BackupConfig
	dir    string
	logger *slog.Logger
}

// NewBackupService creates a new BackupService. tempDir anchors the default
// backup directory when none is configured.
func NewBackupService(db *gorm.DB, driver string, cfg config.BackupConfig, tempDir string, logger *slog.Logger) *BackupService {
	if logger == nil {
		logger = slog.Default()
	}
	dir := cfg.Directory
	if dir == "" {
		dir = filepath.Join(filepath.Dir(tempDir), "backups")
	}
	return &BackupService{db: db, driver: driver, cfg: cfg, dir: dir, logger: logger}
}

// Directory returns the backup storage directory.
func (s *BackupService) Directory() string {
	return s.dir
}

// CreateBackup snapshots the database into an xz-compressed file and
// returns its path. The snapshot uses VACUUM INTO for a consistent copy.
func (s *BackupService) CreateBackup(ctx context.Context) (string, error) {
	if s.driver != "sqlite" {
		return "", fmt.Errorf("backups are only supported for the sqlite driver, not %s", s.driver)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	baseName := fmt.Sprintf("tgcircle-backup-%s", time.Now().UTC().Format("2006-01-02T15-04-05.000"))
	dbPath := filepath.Join(s.dir, baseName+".db")
	xzPath := filepath.Join(s.dir, baseName+backupSuffix)

	if err := s.db.WithContext(ctx).Exec("VACUUM INTO ?", dbPath).Error; err != nil {
		return "", fmt.Errorf("vacuum into backup: %w", err)
	}
	defer os.Remove(dbPath)

	if err := compressFile(dbPath, xzPath); err != nil {
		os.Remove(xzPath)
		return "", fmt.Errorf("compressing backup: %w", err)
	}

	info, err := os.Stat(xzPath)
	if err != nil {
		return "", fmt.Errorf("stat compressed backup: %w", err)
	}

	s.logger.Info("backup created",
		slog.String("path", xzPath),
		slog.Int64("size_bytes", info.Size()),
	)

	if err := s.pruneOldBackups(); err != nil {
		s.logger.Warn("pruning old backups failed", slog.String("error", err.Error()))
	}
	return xzPath, nil
}

// ListBackups returns existing backup files, newest first.
func (s *BackupService) ListBackups() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), backupSuffix) {
			backups = append(backups, filepath.Join(s.dir, e.Name()))
		}
	}
	// Timestamped names sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// pruneOldBackups keeps the newest cfg.Retention backups and removes the rest.
func (s *BackupService) pruneOldBackups() error {
	if s.cfg.Retention < 1 {
		return nil
	}
	backups, err := s.ListBackups()
	if err != nil {
		return err
	}
	for _, path := range backups[min(len(backups), s.cfg.Retention):] {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("removing old backup %s: %w", path, err)
		}
		s.logger.Debug("old backup removed", slog.String("path", path))
	}
	return nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	w, err := xz.NewWriter(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return out.Sync()
}
