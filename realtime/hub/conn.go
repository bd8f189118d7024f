// Package hub 基于 websocket 的实时网关传输, JSON 消息以 0x1e 分隔.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/net/websocket"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/model"
	"github.com/wisersense-io/mate-service/realtime"
)

// Dialer websocket 网关拨号
type Dialer struct {
	Origin string
}

// Dial 建立连接并完成协议握手
func (d Dialer) Dial(ctx context.Context, url string, token *api.AuthToken) (realtime.Conn, error) {
	origin := d.Origin
	if origin == "" {
		origin = "http://localhost/"
	}
	cfg, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, err
	}
	if token != nil {
		cfg.Header.Set("Authorization", token.Authorization())
	}
	cfg.Dialer = &net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		cfg.Dialer.Deadline = deadline
	}

	ws, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := handshake(ctx, ws); err != nil {
		ws.Close()
		return nil, err
	}
	c := newConn(ws)
	go c.readLoop()
	return c, nil
}

func handshake(ctx context.Context, ws *websocket.Conn) error {
	frame, err := encode(handshakeRequest{Protocol: "json", Version: 1})
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetDeadline(deadline)
		defer ws.SetDeadline(time.Time{})
	}
	if err := websocket.Message.Send(ws, frame); err != nil {
		return fmt.Errorf("发送握手消息失败: %w", err)
	}
	var resp string
	if err := websocket.Message.Receive(ws, &resp); err != nil {
		return fmt.Errorf("读取握手响应失败: %w", err)
	}
	return handshakeError(resp)
}

type received struct {
	ev  model.InboundEvent
	err error
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan error

	events    chan received
	closed    chan struct{}
	closeOnce sync.Once
	err       error
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:      ws,
		pending: make(map[string]chan error),
		events:  make(chan received, 256),
		closed:  make(chan struct{}),
	}
}

func (c *conn) readLoop() {
	for {
		var frame string
		if err := websocket.Message.Receive(c.ws, &frame); err != nil {
			c.fail(err)
			return
		}
		for _, msg := range split(frame) {
			if !c.dispatch(msg) {
				return
			}
		}
	}
}

// dispatch 返回 false 表示连接已结束
func (c *conn) dispatch(msg gjson.Result) bool {
	switch msg.Get("type").Int() {
	case typeInvocation:
		target := msg.Get("target").String()
		kind, ok := realtime.KindForTopic(target)
		if !ok {
			return true
		}
		ev, err := realtime.DecodeEvent(kind, msg.Get("arguments.0"))
		return c.deliver(received{ev: ev, err: err})
	case typeCompletion:
		id := msg.Get("invocationId").String()
		c.mu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if ok {
			if e := msg.Get("error"); e.Exists() && e.String() != "" {
				ch <- errors.New(e.String())
			} else {
				ch <- nil
			}
		}
		return true
	case typePing:
		return true
	case typeClose:
		reason := msg.Get("error").String()
		if reason == "" {
			reason = "server closed connection"
		}
		c.fail(errors.New(reason))
		return false
	default:
		return true
	}
}

func (c *conn) deliver(r received) bool {
	select {
	case c.events <- r:
		return true
	case <-c.closed:
		return false
	}
}

// Invoke 发送调用并等待对应的完成消息
func (c *conn) Invoke(ctx context.Context, method string, args ...interface{}) error {
	id := uuid.New().String()
	done := make(chan error, 1)
	c.mu.Lock()
	c.pending[id] = done
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if args == nil {
		args = []interface{}{}
	}
	frame, err := encode(invocation{Type: typeInvocation, InvocationID: id, Target: method, Arguments: args})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	err = websocket.Message.Send(c.ws, frame)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return c.err
	}
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
		_ = c.ws.Close()
	})
}
