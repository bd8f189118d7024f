package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wisersense-io/mate-service/model"
	"github.com/wisersense-io/mate-service/util/json"
)

type client struct {
	tokens  TokenSource
	headers map[string]string
	cfg     Config
	http    *resty.Client
}

// Config 接口配置
type Config struct {
	BaseURL string
	Path    string
	Timeout time.Duration
}

// NewClient 创建系统目录接口客户端
func NewClient(tokens TokenSource, cfg Config) Directory {
	if cfg.Path == "" {
		cfg.Path = "/api/systems"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		cfg:    cfg,
		tokens: tokens,
		headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		http: resty.New().SetTimeout(cfg.Timeout).SetHostURL(cfg.BaseURL),
	}
}

// FetchSystems 分页查询系统列表
func (p *client) FetchSystems(ctx context.Context, organizationID string, filter model.Filter, skip, take int) ([]model.SystemRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	token, err := p.tokens.FindToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: token: %v", ErrRequest, err)
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetHeaders(p.headers).
		SetHeader("Authorization", token.Authorization()).
		SetQueryParams(map[string]string{
			"organizationId": organizationID,
			"filter":         strconv.Itoa(int(filter)),
			"skip":           strconv.Itoa(skip),
			"take":           strconv.Itoa(take),
		}).
		Get(p.cfg.Path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrRequest, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		p.tokens.Invalidate()
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 204 {
		return nil, &StatusError{Code: resp.StatusCode(), Body: resp.String()}
	}

	records := make([]model.SystemRecord, 0, take)
	if resp.StatusCode() == 204 || len(resp.Body()) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(resp.Body(), &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return records, nil
}
