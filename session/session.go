// Package session 提供访问令牌与当前组织, 组织切换时通知订阅方.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/init/redisdb"
	"github.com/wisersense-io/mate-service/util/json"
)

const defaultField = "default"

// expirySkew 令牌提前失效的秒数
const expirySkew = 5

var (
	ErrNoToken = errors.New("session: no token")
	ErrExpired = errors.New("session: token expired")
)

// Config 会话参数
type Config struct {
	TokenType      string
	Token          string
	TokenKey       string
	OrganizationID string
}

// Store 会话存储. cli 为 nil 时只使用配置中的静态令牌.
type Store struct {
	sync.Mutex
	cfg    Config
	cli    redisdb.Client
	tokens map[string]*api.AuthToken
	org    string
	subs   []chan string
	now    func() time.Time
}

func NewStore(cli redisdb.Client, cfg Config) *Store {
	if cfg.TokenKey == "" {
		cfg.TokenKey = "authToken"
	}
	s := &Store{
		cfg:    cfg,
		cli:    cli,
		tokens: map[string]*api.AuthToken{},
		org:    cfg.OrganizationID,
		now:    time.Now,
	}
	if s.org == "" && cfg.Token != "" {
		if claims, err := ParseClaims(cfg.Token); err == nil {
			s.org = claims.OrganizationID
		}
	}
	return s
}

// FindToken 获取当前组织的令牌
func (s *Store) FindToken(ctx context.Context) (*api.AuthToken, error) {
	s.Lock()
	defer s.Unlock()

	field := s.org
	if field == "" {
		field = defaultField
	}
	if token, ok := s.tokens[field]; ok && s.valid(token) {
		return token, nil
	}

	token, err := s.load(ctx, field)
	if err != nil {
		return nil, err
	}
	if !s.valid(token) {
		return nil, ErrExpired
	}
	s.tokens[field] = token
	return token, nil
}

func (s *Store) load(ctx context.Context, field string) (*api.AuthToken, error) {
	if s.cli == nil {
		if s.cfg.Token == "" {
			return nil, ErrNoToken
		}
		return fillFromClaims(&api.AuthToken{TokenType: s.cfg.TokenType, AccessToken: s.cfg.Token}), nil
	}

	tokenStr, err := s.cli.HGet(ctx, s.cfg.TokenKey, field).Result()
	if errors.Is(err, redisdb.Nil) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("token查询错误: %w", err)
	}
	token := new(api.AuthToken)
	if err := json.Unmarshal([]byte(tokenStr), token); err != nil {
		return nil, fmt.Errorf("token解析错误: %w", err)
	}
	if token.AccessToken == "" {
		return nil, ErrNoToken
	}
	return fillFromClaims(token), nil
}

// valid ExpiresAt 为0表示不过期
func (s *Store) valid(token *api.AuthToken) bool {
	return token.ExpiresAt == 0 || token.ExpiresAt-expirySkew >= s.now().Unix()
}

// Organization 当前组织id
func (s *Store) Organization() string {
	s.Lock()
	defer s.Unlock()
	return s.org
}

// SetOrganization 切换组织, 有变化时通知所有订阅方
func (s *Store) SetOrganization(id string) bool {
	s.Lock()
	defer s.Unlock()
	if id == s.org {
		return false
	}
	s.org = id
	for _, ch := range s.subs {
		// 只保留最新的组织id
		select {
		case <-ch:
		default:
		}
		ch <- id
	}
	return true
}

// Changes 订阅组织切换
func (s *Store) Changes() <-chan string {
	s.Lock()
	defer s.Unlock()
	ch := make(chan string, 1)
	s.subs = append(s.subs, ch)
	return ch
}

// Invalidate 丢弃当前组织缓存的令牌
func (s *Store) Invalidate() {
	s.Lock()
	defer s.Unlock()
	field := s.org
	if field == "" {
		field = defaultField
	}
	delete(s.tokens, field)
}
