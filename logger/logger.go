package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Fields 日志字段
type Fields = logrus.Fields

// Entry 带字段的日志
type Entry = logrus.Entry

// SetLevel 设定日志级别, 与 logrus.Level 取值一致(5为debug)
func SetLevel(level int) {
	if level <= 0 {
		level = int(logrus.ErrorLevel)
	}
	logrus.SetLevel(logrus.Level(level))
}

// SetFormatter 设定日志输出格式, json 或 text
func SetFormatter(format string) {
	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}
}

// SetOutput 设定日志输出
func SetOutput(out io.Writer) {
	logrus.SetOutput(out)
}

// WithFields 带字段输出
func WithFields(fields map[string]interface{}) *Entry {
	return logrus.WithFields(fields)
}

// WithError 带错误输出
func WithError(err error) *Entry {
	return logrus.WithError(err)
}

// Debugf 调试输出
func Debugf(format string, args ...interface{}) {
	logrus.Debugf(format, args...)
}

// Infof 信息输出
func Infof(format string, args ...interface{}) {
	logrus.Infof(format, args...)
}

// Warnf 告警输出
func Warnf(format string, args ...interface{}) {
	logrus.Warnf(format, args...)
}

// Errorf 错误输出
func Errorf(format string, args ...interface{}) {
	logrus.Errorf(format, args...)
}

// Fatalf 输出后退出
func Fatalf(format string, args ...interface{}) {
	logrus.Fatalf(format, args...)
}
