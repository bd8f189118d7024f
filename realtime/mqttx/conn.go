// Package mqttx 基于 MQTT 的实时网关传输.
//
// 注册: 向 <prefix>/register/<clientId> 发布保留消息, 内容为设备清单.
// 推送: 订阅 <prefix>/running/<systemId>/<deviceId> 与 <prefix>/connection/<systemId>/<deviceId>.
package mqttx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/config"
	"github.com/wisersense-io/mate-service/init/mq"
	"github.com/wisersense-io/mate-service/model"
	"github.com/wisersense-io/mate-service/realtime"
	"github.com/wisersense-io/mate-service/util/json"
)

const (
	segmentRegister    = "register"
	unsubscribeTimeout = 3 * time.Second
)

// Dialer MQTT 网关拨号
type Dialer struct {
	Config config.MQTT
}

// Dial url 非空时覆盖配置中的 broker 地址. 未配置用户名时使用令牌作为密码.
func (d Dialer) Dial(ctx context.Context, url string, token *api.AuthToken) (realtime.Conn, error) {
	opts := mq.NewMQTTOptions(d.Config)
	if url != "" {
		opts.Servers = nil
		opts.AddBroker(url)
	}
	if d.Config.Username == "" && token != nil {
		opts.SetUsername(token.TokenType)
		opts.SetPassword(token.AccessToken)
	}
	clientID := "mate-" + uuid.New().String()
	opts.SetClientID(clientID)
	// 重连由 realtime.Channel 负责, 推送需要保持顺序
	opts.SetAutoReconnect(false)
	opts.SetOrderMatters(true)

	c := newConn(d.Config.TopicPrefix, clientID)
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		if err == nil {
			err = errors.New("mqtt connection lost")
		}
		c.fail(err)
	})

	cli, clean, err := mq.NewMQTTClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.clean = clean
	c.mu.Unlock()
	c.mq = mq.NewMQTT(cli, 1, true)

	for _, seg := range []string{realtime.SegmentRunning, realtime.SegmentConnection} {
		topic := []string{c.prefix, seg, "+", "+"}
		if err := c.mq.Consume(ctx, topic, 4, c.handle); err != nil {
			clean()
			return nil, fmt.Errorf("订阅 %s 失败: %w", seg, err)
		}
		c.topics = append(c.topics, topic)
	}
	return c, nil
}

type received struct {
	ev  model.InboundEvent
	err error
}

type conn struct {
	prefix   string
	clientID string
	mq       mq.MQ
	topics   [][]string

	mu    sync.Mutex
	clean func()

	events    chan received
	closed    chan struct{}
	closeOnce sync.Once
	err       error
}

func newConn(prefix, clientID string) *conn {
	if prefix == "" {
		prefix = "fleet"
	}
	return &conn{
		prefix:   prefix,
		clientID: clientID,
		events:   make(chan received, 256),
		closed:   make(chan struct{}),
	}
}

// handle 主题为 <prefix>/<running|connection>/<systemId>/<deviceId>
func (c *conn) handle(topic string, topics []string, payload []byte) {
	if len(topics) != 4 {
		c.deliver(received{err: fmt.Errorf("%w: unexpected topic %s", realtime.ErrBadEvent, topic)})
		return
	}
	kind, ok := realtime.KindForSegment(topics[1])
	if !ok {
		return
	}
	ev, err := realtime.DecodeTopicEvent(kind, topics[2], topics[3], payload)
	c.deliver(received{ev: ev, err: err})
}

func (c *conn) deliver(r received) {
	select {
	case c.events <- r:
	case <-c.closed:
	}
}

// Invoke 仅支持注册设备
func (c *conn) Invoke(ctx context.Context, method string, args ...interface{}) error {
	if method != realtime.MethodRegisterDevices {
		return fmt.Errorf("mqtt: unsupported method %s", method)
	}
	var body interface{} = []model.DeviceRef{}
	if len(args) > 0 && args[0] != nil {
		body = args[0]
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return c.err
	default:
	}
	return c.mq.Publish(ctx, []string{c.prefix, segmentRegister, c.clientID}, payload)
}

func (c *conn) Receive() (model.InboundEvent, error) {
	select {
	case r := <-c.events:
		return r.ev, r.err
	case <-c.closed:
		return model.InboundEvent{}, c.err
	}
}

// Close 主动关闭时先退订, 连接已断开时直接释放
func (c *conn) Close() error {
	var err error
	select {
	case <-c.closed:
	default:
		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		for _, topic := range c.topics {
			if e := c.mq.UnSubscription(ctx, topic); e != nil && err == nil {
				err = fmt.Errorf("退订 %s 失败: %w", strings.Join(topic, mq.TOPICSEPWITHMQTT), e)
			}
		}
		cancel()
	}
	c.fail(realtime.ErrClosed)
	return err
}

func (c *conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.closed)
		c.mu.Lock()
		clean := c.clean
		c.mu.Unlock()
		if clean != nil {
			go clean()
		}
	})
}
