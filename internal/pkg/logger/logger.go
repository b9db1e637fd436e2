// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var defaultLogger zerolog.Logger

func init() {
	defaultLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 初始化全局日志器，所有服务在启动时调用一次。
// 输出为 JSON 格式，带服务名和时间戳，便于集中采集。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	defaultLogger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	zerolog.DefaultContextLogger = &defaultLogger
}

// Ctx 从上下文中取出日志器；如果上下文中没有，则返回全局默认日志器。
// 业务代码统一通过 logger.Ctx(ctx) 打日志，保证 trace 相关字段不丢失。
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &defaultLogger
}

// WithContext 将携带额外字段的日志器注入上下文。
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
