package admin

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"mentor-marketplace/internal/logger"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	backupTimeout   = 2 * time.Minute
	backupRetention = 31 * 24 * time.Hour
	backupLayout    = "20060102_150405"
)

// Backups runs pg_dump and pg_restore against one database into one directory.
type Backups struct {
	DSN string
	Dir string
}

type BackupFile struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewBackups(dsn, dir string) *Backups {
	if dir == "" {
		dir = "backups"
	}
	return &Backups{DSN: dsn, Dir: dir}
}

// Dump writes a custom-format dump named <prefix>_<timestamp>.dump and returns its path.
func (b *Backups) Dump(ctx context.Context, prefix string) (string, error) {
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", err
	}
	filename := filepath.Join(b.Dir, prefix+"_"+time.Now().Format(backupLayout)+".dump")
	ctx, cancel := context.WithTimeout(ctx, backupTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pg_dump", b.DSN, "-Fc", "-f", filename).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("pg_dump: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return filename, nil
}

// Restore loads a dump from the backup directory. Only base names are accepted.
func (b *Backups) Restore(ctx context.Context, name string) error {
	if name == "" || filepath.Base(name) != name || !strings.HasSuffix(name, ".dump") {
		return fmt.Errorf("invalid backup name %q", name)
	}
	ctx, cancel := context.WithTimeout(ctx, backupTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pg_restore", "--clean", "--if-exists", "-d", b.DSN,
		filepath.Join(b.Dir, name)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("pg_restore: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// List returns the dumps in the backup directory, newest first.
func (b *Backups) List() ([]BackupFile, error) {
	files, err := filepath.Glob(filepath.Join(b.Dir, "*.dump"))
	if err != nil {
		return nil, err
	}
	out := make([]BackupFile, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		out = append(out, BackupFile{Name: filepath.Base(f), Size: info.Size(), CreatedAt: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CleanOld removes dumps older than maxAge and reports how many went.
func (b *Backups) CleanOld(maxAge time.Duration) (int, error) {
	files, err := b.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, f := range files {
		if f.CreatedAt.Before(cutoff) {
			if err := os.Remove(filepath.Join(b.Dir, f.Name)); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// AutoBackup dumps, prunes old dumps and sends the file to the admin chat.
func (b *Backups) AutoBackup(ctx context.Context) {
	filename, err := b.Dump(ctx, "autobackup")
	if err != nil {
		logger.Error("auto backup failed", zap.Error(err))
		logger.NotifyAdmin("Auto backup failed: " + err.Error())
		return
	}
	if n, err := b.CleanOld(backupRetention); err != nil {
		logger.Warn("backup cleanup failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("old backups removed", zap.Int("count", n))
	}
	if err := logger.SendAdminDocument(filename, "Database backup "+filepath.Base(filename)); err != nil {
		logger.Warn("backup delivery failed", zap.Error(err))
	}
	logger.Info("auto backup created", zap.String("file", filename))
}
