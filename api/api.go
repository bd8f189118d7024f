package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/wisersense-io/mate-service/model"
)

var (
	// ErrRequest 网络错误或非2xx响应
	ErrRequest = errors.New("directory request failed")
	// ErrDecode 响应体无法解析
	ErrDecode = errors.New("directory response decode failed")
)

// AuthToken 访问令牌
type AuthToken struct {
	TokenType   string `json:"tokenType"`
	ExpiresAt   int64  `json:"expiresAt"`
	AccessToken string `json:"accessToken"`
}

// Authorization 请求头取值
func (t *AuthToken) Authorization() string {
	if t.TokenType == "" {
		return fmt.Sprintf("Bearer %s", t.AccessToken)
	}
	return fmt.Sprintf("%s %s", t.TokenType, t.AccessToken)
}

// TokenSource 提供访问令牌. 令牌被服务端拒绝时调用 Invalidate, 下次 FindToken 重新加载
type TokenSource interface {
	FindToken(ctx context.Context) (*AuthToken, error)
	Invalidate()
}

// Directory 系统目录接口, 分页稳定且幂等
type Directory interface {
	FetchSystems(ctx context.Context, organizationID string, filter model.Filter, skip, take int) ([]model.SystemRecord, error)
}

// StatusError 非2xx响应
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrRequest
}
