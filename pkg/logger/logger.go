package logger

import (
	"mock_interview_backend/internal/config"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 在 InitLogger 之前为空实现，测试与脚本可直接使用
var Log = zap.NewNop()

// level 可在配置热更新时调整
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "time",
	LevelKey:       "level",
	NameKey:        "logger",
	CallerKey:      "caller",
	MessageKey:     "msg",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.ISO8601TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// levelFor 显式配置优先，否则按运行模式
func levelFor(cfg *config.Config) zapcore.Level {
	if cfg.Log.Level != "" {
		if l, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
			return l
		}
	}
	if cfg.Server.Mode == "debug" {
		return zap.DebugLevel
	}
	return zap.InfoLevel
}

// build 文件写 JSON、控制台写可读格式，附带部署相关的固定字段
func build(cfg *config.Config, file, console zapcore.WriteSyncer) *zap.Logger {
	level.SetLevel(levelFor(cfg))

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), file, level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), console, level),
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)).
		With(
			zap.String("service", cfg.Tracing.ServiceName),
			zap.String("mode", cfg.Server.Mode),
			zap.String("db_driver", cfg.Database.Driver),
			zap.String("evaluator", cfg.Evaluator.Provider),
		)
}

func InitLogger(cfg *config.Config) {
	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	})

	Log = build(cfg, fileWriter, zapcore.AddSync(os.Stdout))
}

// Reload 配置变更时调整日志级别，并记录新的评估器
func Reload(cfg *config.Config) {
	next := levelFor(cfg)
	if next != level.Level() {
		Log.Info("Log level changed", zap.Stringer("from", level.Level()), zap.Stringer("to", next))
		level.SetLevel(next)
	}
	Log.Info("Configuration reloaded", zap.String("evaluator_provider", cfg.Evaluator.Provider))
}
