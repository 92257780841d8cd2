package storage

import (
	"context"
	"time"

	mlog "github.com/cxykevin/mizar0/log"

	gormLogger "gorm.io/gorm/logger"
)

var aLogger *mlog.LogsObj

func init() {
	aLogger = mlog.New("gorm")
}

// GormLogger 为 GORM 自定义 logger 实现
// 输出走统一日志模块，支持慢查询阈值
type GormLogger struct {
	slow time.Duration
}

// NewGormLogger 创建日志器
func NewGormLogger() gormLogger.Interface {
	return &GormLogger{
		slow: time.Millisecond * 300,
	}
}

// LogMode 设置日志级别
func (l *GormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	return l
}

// Info 打印信息级别日志
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	aLogger.Info(msg, data...)
}

// Warn 打印警告级别日志
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	aLogger.Warn(msg, data...)
}

// Error 打印错误级别日志
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	aLogger.Error(msg, data...)
}

// Trace 跟踪 SQL 执行耗时与错误
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {

	elapsed := time.Since(begin)
	sql, rows := fc()
	elapsedMs := float64(elapsed.Nanoseconds()) / 1e6

	// 错误优先级比慢查询与普通日志高
	if err != nil {
		if rows >= 0 {
			aLogger.Error("[%.3fms] rows:%d %s; error: %v", elapsedMs, rows, sql, err)
		} else {
			aLogger.Error("[%.3fms] %s; error: %v", elapsedMs, sql, err)
		}
		return
	}

	// 慢查询判定
	if l.slow > 0 && elapsed > l.slow {
		aLogger.Debug("slow query > %s [%.3fms] rows:%d %s", l.slow.String(), elapsedMs, rows, sql)
		return
	}

	// 普通查询日志
	if rows >= 0 {
		aLogger.Debug("[%.3fms] rows:%d %s", elapsedMs, rows, sql)
	} else {
		aLogger.Debug("[%.3fms] %s", elapsedMs, sql)
	}
}
