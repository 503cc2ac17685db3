package logger

import (
	"log"

	"esim_store/internal/pkg/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 全局日志实例，InitLogger 之前为空实现
var Log = zap.NewNop()

// InitLogger 初始化 zap 日志
func InitLogger() {
	var (
		l   *zap.Logger
		err error
	)

	if config.GlobalConfig.App.Debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		l, err = cfg.Build()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err = cfg.Build()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	Log = l
	zap.ReplaceGlobals(l)
}

// Sync 刷新缓冲区的日志
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
