package mq

import (
	"context"
	"errors"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/wisersense-io/mate-service/config"
)

const TOPICSEPWITHMQTT = "/"

// ErrTimeout 等待 broker 响应超时
var ErrTimeout = errors.New("mqtt: timeout")

type mqtt struct {
	client   MQTT.Client
	qos      byte
	retained bool
}

// NewMQTT 包装已连接的客户端, 发布与订阅使用同一 qos
func NewMQTT(cli MQTT.Client, qos byte, retained bool) MQ {
	return &mqtt{client: cli, qos: qos, retained: retained}
}

// NewMQTTOptions 创建MQTT连接参数
func NewMQTTOptions(cfg config.MQTT) *MQTT.ClientOptions {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.DNS())
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(time.Second * 20)
	opts.SetKeepAlive(time.Second * 60)
	opts.SetProtocolVersion(4)
	opts.SetOrderMatters(false)
	return opts
}

// NewMQTTClient 创建MQTT客户端并连接
func NewMQTTClient(ctx context.Context, opts *MQTT.ClientOptions) (MQTT.Client, func(), error) {
	client := MQTT.NewClient(opts)
	if err := Wait(ctx, client.Connect()); err != nil {
		return nil, nil, err
	}
	cleanFunc := func() {
		client.Disconnect(250)
	}
	return client, cleanFunc, nil
}

// Wait 等待操作完成, ctx 有截止时间时按截止时间等待
func Wait(ctx context.Context, token MQTT.Token) error {
	if deadline, ok := ctx.Deadline(); ok {
		if !token.WaitTimeout(time.Until(deadline)) {
			return ErrTimeout
		}
	} else {
		token.Wait()
	}
	return token.Error()
}

func (p *mqtt) Publish(ctx context.Context, topicParams []string, payload []byte) error {
	topic := strings.Join(topicParams, TOPICSEPWITHMQTT)
	return Wait(ctx, p.client.Publish(topic, p.qos, p.retained, payload))
}

func (p *mqtt) Consume(ctx context.Context, topicParams []string, splitN int, handler Handler) error {
	topic := strings.Join(topicParams, TOPICSEPWITHMQTT)
	return Wait(ctx, p.client.Subscribe(topic, p.qos, func(client MQTT.Client, message MQTT.Message) {
		handler(message.Topic(), strings.SplitN(message.Topic(), TOPICSEPWITHMQTT, splitN), message.Payload())
	}))
}

func (p *mqtt) UnSubscription(ctx context.Context, topicParams []string) error {
	topic := strings.Join(topicParams, TOPICSEPWITHMQTT)
	return Wait(ctx, p.client.Unsubscribe(topic))
}
