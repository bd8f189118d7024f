// Package natsx 基于 NATS 的实时网关传输.
//
// 注册: 向 <prefix>.register 发送请求, 网关应答后视为成功.
// 推送: 订阅 <prefix>.<running|connection>.<systemId>.<deviceId>.
package natsx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/config"
	"github.com/wisersense-io/mate-service/model"
	"github.com/wisersense-io/mate-service/realtime"
	"github.com/wisersense-io/mate-service/util/json"
)

const subjectRegister = "register"

// Dialer NATS 网关拨号
type Dialer struct {
	Config config.NATS
}

// Dial url 为空时使用配置中的地址, 令牌作为 NATS token 认证
func (d Dialer) Dial(ctx context.Context, url string, token *api.AuthToken) (realtime.Conn, error) {
	if url == "" {
		url = d.Config.URL
	}
	if url == "" {
		url = nats.DefaultURL
	}
	c := newConn(d.Config.SubjectPrefix)

	opts := []nats.Option{
		nats.Name(d.Config.Name),
		// 重连由 realtime.Channel 负责
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil {
				err = errors.New("nats disconnected")
			}
			c.fail(err)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			c.fail(realtime.ErrConnectionLost)
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	if token != nil && token.AccessToken != "" {
		opts = append(opts, nats.Token(token.AccessToken))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.nc = nc
	c.mu.Unlock()

	// 单个订阅保证推送顺序
	sub, err := nc.Subscribe(c.prefix+".*.*.*", c.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("订阅推送失败: %w", err)
	}
	if err := sub.SetPendingLimits(-1, -1); err != nil {
		nc.Close()
		return nil, err
	}
	if _, ok := ctx.Deadline(); ok {
		err = nc.FlushWithContext(ctx)
	} else {
		err = nc.Flush()
	}
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

type received struct {
	ev  model.InboundEvent
	err error
}

type conn struct {
	prefix string

	mu sync.Mutex
	nc *nats.Conn

	events    chan received
	closed    chan struct{}
	closeOnce sync.Once
	err       error
}

func newConn(prefix string) *conn {
	if prefix == "" {
		prefix = "fleet"
	}
	return &conn{
		prefix: prefix,
		events: make(chan received, 256),
		closed: make(chan struct{}),
	}
}

// handle 主题为 <prefix>.<running|connection>.<systemId>.<deviceId>
func (c *conn) handle(msg *nats.Msg) {
	tokens := strings.Split(strings.TrimPrefix(msg.Subject, c.prefix+"."), ".")
	if len(tokens) != 3 {
		c.deliver(received{err: fmt.Errorf("%w: unexpected subject %s", realtime.ErrBadEvent, msg.Subject)})
		return
	}
	kind, ok := realtime.KindForSegment(tokens[0])
	if !ok {
		return
	}
	ev, err := realtime.DecodeTopicEvent(kind, tokens[1], tokens[2], msg.Data)
	c.deliver(received{ev: ev, err: err})
}

func (c *conn) deliver(r received) {
	select {
	case c.events <- r:
	case <-c.closed:
	}
}

// Invoke 仅支持注册设备, 应答中带 error 字段时视为失败
func (c *conn) Invoke(ctx context.Context, method string, args ...interface{}) error {
	if method != realtime.MethodRegisterDevices {
		return fmt.Errorf("nats: unsupported method %s", method)
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
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	reply, err := nc.RequestWithContext(ctx, c.prefix+"."+subjectRegister, payload)
	if err != nil {
		return err
	}
	if e := gjson.GetBytes(reply.Data, "error"); e.Exists() && e.String() != "" {
		return fmt.Errorf("nats: %s", e.String())
	}
	return nil
}

func (c *conn) Receive() (model.InboundEvent, error) {
	select {
	case r := <-c.events:
		return r.ev, r.err
	case <-c.closed:
		return model.InboundEvent{}, c.err
	}
}

func (c *conn) Close() error {
	c.fail(realtime.ErrClosed)
	return nil
}

func (c *conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.closed)
		c.mu.Lock()
		nc := c.nc
		c.mu.Unlock()
		if nc != nil {
			go nc.Close()
		}
	})
}
