package mq

import (
	"context"
)

// Handler 消息处理, topics 为按分隔符拆分后的主题
type Handler func(topic string, topics []string, payload []byte)

// MQ is a mq interface
type MQ interface {
	Publish(ctx context.Context, topicParams []string, payload []byte) error
	Consume(ctx context.Context, topicParams []string, splitN int, handler Handler) error
	UnSubscription(ctx context.Context, topicParams []string) error
}
