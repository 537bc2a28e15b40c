package logger

import (
	"io"
	"log/slog"
	"strings"
)

// Logger 統一日誌介面
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	Sync() error     // 強制 flush
	Shutdown() error // 關閉所有 writer
}

// Level 直接沿用 slog 的級別
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel 不分大小寫解析級別，無法辨識時回傳 info
func ParseLevel(s string) Level {
	if strings.EqualFold(s, "warning") {
		return LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo
	}
	return l
}

// Format 每筆紀錄的編碼方式
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat 解析格式，預設 text
func ParseFormat(s string) Format {
	if strings.EqualFold(s, string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// Config 日誌配置：一個 console 加上可選的輪替檔案
type Config struct {
	Level   Level
	Format  Format
	Console io.Writer // nil 代表 stdout
	File    FileConfig
}

// FileConfig 檔案日誌配置，Path 為空時不寫檔
type FileConfig struct {
	Path       string
	MaxSizeMB  int  // 單位：MB
	MaxAgeDays int  // 保留天數
	MaxBackups int  // 保留備份數
	Compress   bool // 是否壓縮
}
