package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ning0612/mirrorsync/internal/core/checksum"
	"github.com/Ning0612/mirrorsync/internal/domain"
	"github.com/Ning0612/mirrorsync/internal/logger"
)

// Config represents the complete configuration for mirrorsync
type Config struct {
	// Source is the authoritative tree
	Source string `mapstructure:"source"`

	// Replica is made an exact copy of Source
	Replica string `mapstructure:"replica"`

	// LogFile receives a copy of every log record
	LogFile string `mapstructure:"log_file"`

	// Interval is the pause between the end of one cycle and the next
	Interval time.Duration `mapstructure:"interval"`

	Workers   int    `mapstructure:"workers"`
	Algorithm string `mapstructure:"algorithm"`

	// Watch wakes the loop early when the source changes
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`

	// HistoryDB is the sqlite file for cycle history; empty disables it
	HistoryDB string `mapstructure:"history_db"`

	// LockDir holds the per-replica lock files
	LockDir string `mapstructure:"lock_dir"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggerOptions converts the logging settings for logger.New
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		FilePath:   c.LogFile,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxAgeDays: c.Log.MaxAgeDays,
		MaxBackups: c.Log.MaxBackups,
		Compress:   c.Log.Compress,
	}
}

// Validate checks the settings for consistency without touching the
// filesystem. Paths are expanded in place.
func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("%w: source cannot be empty", domain.ErrConfigInvalid)
	}
	if c.Replica == "" {
		return fmt.Errorf("%w: replica cannot be empty", domain.ErrConfigInvalid)
	}
	if c.LogFile == "" {
		return fmt.Errorf("%w: log file cannot be empty", domain.ErrConfigInvalid)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %v", domain.ErrConfigInvalid, c.Interval)
	}
	if c.Interval%time.Second != 0 {
		return fmt.Errorf("%w: interval must be whole seconds, got %v", domain.ErrConfigInvalid, c.Interval)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", domain.ErrConfigInvalid, c.Workers)
	}
	if !checksum.IsSupported(checksum.Algorithm(c.Algorithm)) {
		return fmt.Errorf("%w: unsupported algorithm: %s", domain.ErrConfigInvalid, c.Algorithm)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("%w: debounce cannot be negative", domain.ErrConfigInvalid)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: invalid log format: %s", domain.ErrConfigInvalid, c.Log.Format)
	}

	c.Source = ExpandPath(c.Source)
	c.Replica = ExpandPath(c.Replica)
	c.LogFile = ExpandPath(c.LogFile)
	if c.HistoryDB != "" {
		c.HistoryDB = ExpandPath(c.HistoryDB)
	}
	if c.LockDir != "" {
		c.LockDir = ExpandPath(c.LockDir)
	}

	// Anything written into the replica would be deleted by the next cycle
	for name, path := range map[string]string{"log file": c.LogFile, "history database": c.HistoryDB, "lock directory": c.LockDir} {
		if path != "" && within(c.Replica, path) {
			return fmt.Errorf("%w: %s %s is inside the replica", domain.ErrConfigInvalid, name, path)
		}
	}

	return nil
}

// CheckRoots verifies both roots exist, are directories and are not nested
// in each other. On success both roots are replaced by their absolute,
// link-free form. Failures wrap domain.ErrAccess.
func (c *Config) CheckRoots() error {
	source, err := resolveDir("source", c.Source)
	if err != nil {
		return err
	}
	replica, err := resolveDir("replica", c.Replica)
	if err != nil {
		return err
	}

	if within(source, replica) || within(replica, source) {
		return fmt.Errorf("%w: %w: source %s and replica %s overlap", domain.ErrAccess, domain.ErrNestedRoots, c.Source, c.Replica)
	}

	c.Source, c.Replica = source, replica
	return nil
}

func resolveDir(name, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %w", domain.ErrAccess, name, path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %w: %s %s", domain.ErrAccess, domain.ErrNotDirectory, name, path)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %w", domain.ErrAccess, name, path, err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %w", domain.ErrAccess, name, path, err)
	}
	return abs, nil
}

// within reports whether path equals root or lies below it
func within(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ExpandPath expands a leading ~ to the home directory. Other characters,
// $ included, are taken literally.
func ExpandPath(path string) string {
	// Expand ~ to home directory
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	return filepath.Clean(path)
}
