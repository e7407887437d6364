package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const backupPrefix = "journal_"

// BackupService periodically snapshots the journal with VACUUM INTO, which is safe
// while the database is open in WAL mode.
type BackupService struct {
	db        *DB
	dir       string
	interval  time.Duration
	retention time.Duration
	logger    *zerolog.Logger
}

func NewBackupService(db *DB, dir string, interval, retention time.Duration, logger *zerolog.Logger) *BackupService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	l := logger.With().Str("component", "journal_backup").Logger()
	return &BackupService{
		db:        db,
		dir:       dir,
		interval:  interval,
		retention: retention,
		logger:    &l,
	}
}

// Start runs a backup every interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Str("dir", s.dir).Msg("journal backup started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PerformBackup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled journal backup failed")
				continue
			}
			s.CleanupOldBackups(time.Now())
		}
	}
}

// PerformBackup writes a consistent copy of the journal and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	dest := filepath.Join(s.dir, fmt.Sprintf("%s%s.db", backupPrefix, time.Now().Format("20060102_150405.000")))
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return "", fmt.Errorf("%w: vacuum into %s: %w", ErrExecQuery, dest, err)
	}

	s.logger.Info().Str("path", dest).Msg("journal backup written")
	return dest, nil
}

// CleanupOldBackups removes backups older than the retention period and returns how many.
func (s *BackupService) CleanupOldBackups(now time.Time) int {
	if s.retention <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory for cleanup")
		return 0
	}

	cutoff := now.Add(-s.retention)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, file.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", file.Name()).Msg("failed to delete old backup")
			continue
		}
		removed++
	}
	return removed
}
