package redisdb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/wisersense-io/mate-service/config"
	"github.com/wisersense-io/mate-service/logger"
)

const (
	TYPE = "CLUSTER"
)

// Nil 键不存在
var Nil = redis.Nil

// Client redis客户端, *redis.Client 与 *redis.ClusterClient 均满足
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// InitRedisDB 初始化redis存储
func InitRedisDB() (Client, func(), error) {
	cfg := config.C.Redis
	return NewRedisDB(cfg)
}

// NewRedisDB 创建redis存储
func NewRedisDB(cfg config.Redis) (Client, func(), error) {
	if len(cfg.Addrs) == 0 {
		return nil, nil, errors.New("redis addrs is empty")
	}
	if strings.ToUpper(cfg.Type) == TYPE {
		cli := redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  10 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
		cleanFunc := func() {
			if err := cli.Close(); err != nil {
				logger.Errorf("redis close error: %s", err.Error())
			}
		}
		if err := cli.Ping(context.Background()).Err(); err != nil {
			return nil, cleanFunc, err
		}
		return cli, cleanFunc, nil
	}

	cli := redis.NewClient(&redis.Options{
		Addr:         cfg.Addrs[0],
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})
	cleanFunc := func() {
		if err := cli.Close(); err != nil {
			logger.Errorf("redis close error: %s", err.Error())
		}
	}
	if err := cli.Ping(context.Background()).Err(); err != nil {
		return nil, cleanFunc, err
	}
	return cli, cleanFunc, nil
}
