package hierarchy

import (
	"errors"
	"fmt"
)

// ErrMalformed 系统树不是合法的JSON对象
var ErrMalformed = errors.New("hierarchy: malformed document")

// ErrMissingID 必填的id字段缺失
var ErrMissingID = errors.New("hierarchy: missing id")

// ParseError 单条系统记录解析失败, 不影响其它记录
type ParseError struct {
	SystemID string
	Path     string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("system %s: %s", e.SystemID, e.Err.Error())
	}
	return fmt.Sprintf("system %s: %s: %s", e.SystemID, e.Path, e.Err.Error())
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
