package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SlogLogger slog 實作，每筆紀錄同時寫入 console 與檔案
type SlogLogger struct {
	logger *slog.Logger

	mu      sync.Mutex
	closers []io.Closer // 由本 logger 擁有、需要關閉的 writer
}

// NewSlogLogger 建立新的 slog logger
func NewSlogLogger(config Config) (*SlogLogger, error) {
	console := config.Console
	if console == nil {
		console = os.Stdout
	}

	writers := []io.Writer{console}
	var closers []io.Closer

	if config.File.Path != "" {
		file, err := newFileWriter(config.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create file writer: %w", err)
		}
		writers = append(writers, file)
		closers = append(closers, file)
	}

	opts := &slog.HandlerOptions{Level: config.Level}
	out := io.MultiWriter(writers...)

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return &SlogLogger{
		logger:  slog.New(handler),
		closers: closers,
	}, nil
}

// newFileWriter 建立支援輪替的檔案 writer，必要時建立目錄
func newFileWriter(config FileConfig) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxAge:     config.MaxAgeDays,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}, nil
}

func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// With 建立帶固定欄位的子 logger
// 子 logger 共用 writer 但不負責關閉
func (l *SlogLogger) With(args ...any) Logger {
	return &childLogger{logger: l.logger.With(args...)}
}

// Sync lumberjack 每次 Write 都直接寫檔，沒有緩衝可 flush
func (l *SlogLogger) Sync() error {
	return nil
}

// Shutdown 關閉檔案 writer，可重複呼叫
func (l *SlogLogger) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	l.closers = nil
	return errors.Join(errs...)
}

// childLogger 子 logger，不擁有 writers
type childLogger struct {
	logger *slog.Logger
}

func (c *childLogger) Debug(msg string, args ...any) { c.logger.Debug(msg, args...) }
func (c *childLogger) Info(msg string, args ...any)  { c.logger.Info(msg, args...) }
func (c *childLogger) Warn(msg string, args ...any)  { c.logger.Warn(msg, args...) }
func (c *childLogger) Error(msg string, args ...any) { c.logger.Error(msg, args...) }

func (c *childLogger) With(args ...any) Logger {
	return &childLogger{logger: c.logger.With(args...)}
}

func (c *childLogger) Sync() error     { return nil }
func (c *childLogger) Shutdown() error { return nil }
