package logger

import (
	"fmt"
	"io"
)

// Options 描述 CLI 層提供的日誌設定
type Options struct {
	Level   string
	Format  string
	Console io.Writer // nil 代表 stdout

	FilePath   string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// New 依照 Options 建立 console + 檔案雙輸出的 logger
// 呼叫端負責在結束時呼叫 Shutdown()
func New(opts Options) (Logger, error) {
	l, err := NewSlogLogger(Config{
		Level:   ParseLevel(opts.Level),
		Format:  ParseFormat(opts.Format),
		Console: opts.Console,
		File: FileConfig{
			Path:       opts.FilePath,
			MaxSizeMB:  opts.MaxSizeMB,
			MaxAgeDays: opts.MaxAgeDays,
			MaxBackups: opts.MaxBackups,
			Compress:   opts.Compress,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create slog logger: %w", err)
	}
	return l, nil
}

// NullLogger 空 logger（不做任何事）
type NullLogger struct{}

func (n *NullLogger) Debug(msg string, args ...any) {}
func (n *NullLogger) Info(msg string, args ...any)  {}
func (n *NullLogger) Warn(msg string, args ...any)  {}
func (n *NullLogger) Error(msg string, args ...any) {}
func (n *NullLogger) With(args ...any) Logger       { return n }
func (n *NullLogger) Sync() error                   { return nil }
func (n *NullLogger) Shutdown() error               { return nil }

// OrNull 回傳 l，若為 nil 則回傳 NullLogger
func OrNull(l Logger) Logger {
	if l == nil {
		return &NullLogger{}
	}
	return l
}
