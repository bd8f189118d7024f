package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wisersense-io/mate-service/config"
	"github.com/wisersense-io/mate-service/logger"
)

// ErrConfig 日志配置无效
var ErrConfig = errors.New("invalid log config")

// InitLogger 按全局配置初始化日志
func InitLogger() (func(), error) {
	return NewLogger(config.C.Log)
}

// NewLogger 校验配置后设定级别/格式/输出, 返回的函数关闭日志文件.
// Output 为空时保持当前输出; file 必须配置 OutputFile.
func NewLogger(c config.Log) (func(), error) {
	format := strings.ToLower(strings.TrimSpace(c.Format))
	if format != "" && format != "json" && format != "text" {
		return nil, fmt.Errorf("%w: format %q", ErrConfig, c.Format)
	}
	if c.Level > 6 {
		return nil, fmt.Errorf("%w: level %d", ErrConfig, c.Level)
	}

	out, file, err := openOutput(c)
	if err != nil {
		return nil, err
	}

	logger.SetLevel(c.Level)
	logger.SetFormatter(format)
	if out != nil {
		logger.SetOutput(out)
	}
	return func() {
		if file != nil {
			_ = file.Close()
		}
	}, nil
}

func openOutput(c config.Log) (io.Writer, *os.File, error) {
	switch strings.ToLower(strings.TrimSpace(c.Output)) {
	case "":
		return nil, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if c.OutputFile == "" {
			return nil, nil, fmt.Errorf("%w: output file is empty", ErrConfig)
		}
		if err := os.MkdirAll(filepath.Dir(c.OutputFile), 0755); err != nil {
			return nil, nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		f, err := os.OpenFile(c.OutputFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		return f, f, nil
	default:
		return nil, nil, fmt.Errorf("%w: output %q", ErrConfig, c.Output)
	}
}
