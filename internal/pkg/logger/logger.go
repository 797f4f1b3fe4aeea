package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOption 日志初始化参数
type LogOption struct {
	Format   string // "console" 或 "json"
	LogDir   string // 日志目录，为空时只输出到 stderr
	Level    string // debug / info / warn / error
	Compress bool   // 是否压缩滚动后的旧文件
}

const (
	defaultFileName   = "txflow.log"
	defaultMaxSizeMB  = 200
	defaultMaxBackups = 10
	defaultMaxAgeDays = 7
)

var (
	mu    sync.RWMutex
	sugar = newDefault()
)

func newDefault() *zap.SugaredLogger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(os.Stderr),
		zapcore.InfoLevel,
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// Init 按配置重建全局 logger。多次调用以最后一次为准。
func Init(opt LogOption) error {
	level := zapcore.InfoLevel
	if opt.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opt.Level))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opt.Level, err)
		}
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(opt.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	case "", "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig())
	default:
		return fmt.Errorf("invalid log format %q", opt.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	if opt.LogDir != "" {
		if err := os.MkdirAll(opt.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		// 文件滚动交给 lumberjack
		roller := &lumberjack.Logger{
			Filename:   filepath.Join(opt.LogDir, defaultFileName),
			MaxSize:    defaultMaxSizeMB,
			MaxBackups: defaultMaxBackups,
			MaxAge:     defaultMaxAgeDays,
			Compress:   opt.Compress,
			LocalTime:  true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(roller), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()

	mu.Lock()
	old := sugar
	sugar = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debugf(format string, args ...any) { get().Debugf(format, args...) }
func Infof(format string, args ...any)  { get().Infof(format, args...) }
func Warnf(format string, args ...any)  { get().Warnf(format, args...) }
func Errorf(format string, args ...any) { get().Errorf(format, args...) }

// Sync 刷新缓冲，进程退出前调用
func Sync() {
	_ = get().Sync()
}
