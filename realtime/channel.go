// Package realtime 维护与实时网关之间的长连接.
//
// 状态机: Disconnected -> Connecting -> {Connected | Disconnected};
// Connected -> Disconnecting -> Disconnected; 连接丢失时 Connected -> Disconnected.
// 状态变化和推送事件按发生顺序写入同一个队列, 由 Messages 输出.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/logger"
	"github.com/wisersense-io/mate-service/model"
	"github.com/wisersense-io/mate-service/util/json"
)

// Options 通道参数
type Options struct {
	URL            string
	ReconnectDelay time.Duration
	RequestTimeout time.Duration
}

type Channel struct {
	mu         sync.Mutex
	dialer     Dialer
	tokens     api.TokenSource
	opts       Options
	state      model.ChannelState
	lastErr    error
	conn       Conn
	gen        uint64
	timer      *time.Timer
	timerSeq   uint64
	registered string
	closed     bool
	sendMu     sync.Mutex
	queue      *queue
}

// NewChannel 创建实时通道, tokens 为 nil 时不携带凭证
func NewChannel(dialer Dialer, tokens api.TokenSource, opts Options) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Channel{
		dialer: dialer,
		tokens: tokens,
		opts:   opts,
		state:  model.Disconnected,
		queue:  newQueue(),
	}
}

// Messages 状态变化与推送事件的有序输出
func (c *Channel) Messages() <-chan model.ChannelMessage {
	return c.queue.out
}

func (c *Channel) State() model.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError 最近一次连接失败或断开的原因
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Start 建立连接. 已连接或正在连接时直接返回.
// 失败时进入 Disconnected 并在 ReconnectDelay 后自动重连一次.
func (c *Channel) Start(ctx context.Context) error {
	return c.connect(ctx, false)
}

func (c *Channel) connect(ctx context.Context, auto bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == model.Connected || c.state == model.Connecting {
		c.mu.Unlock()
		return nil
	}
	c.cancelTimerLocked()
	c.gen++
	gen := c.gen
	c.setStateLocked(model.Connecting, nil)
	c.mu.Unlock()

	conn, err := c.dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		if conn != nil {
			go conn.Close()
		}
		return ErrStopped
	}
	if err != nil {
		c.lastErr = fmt.Errorf("%w: %v", ErrConnect, err)
		c.setStateLocked(model.Disconnected, c.lastErr)
		if !auto {
			c.scheduleReconnectLocked()
		}
		logger.WithFields(logger.Fields{"url": c.opts.URL, "auto": auto}).Warnf("实时通道连接失败: %s", err.Error())
		return c.lastErr
	}
	c.conn = conn
	c.registered = ""
	c.lastErr = nil
	c.setStateLocked(model.Connected, nil)
	logger.WithFields(logger.Fields{"url": c.opts.URL}).Infof("实时通道已连接")
	go c.receive(gen, conn)
	return nil
}

func (c *Channel) dial(ctx context.Context) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	var token *api.AuthToken
	if c.tokens != nil {
		t, err := c.tokens.FindToken(ctx)
		if err != nil {
			return nil, err
		}
		token = t
	}
	return c.dialer.Dial(ctx, c.opts.URL, token)
}

func (c *Channel) receive(gen uint64, conn Conn) {
	for {
		ev, err := conn.Receive()
		if err != nil && errors.Is(err, ErrBadEvent) {
			logger.Warnf("忽略无法解析的推送: %s", err.Error())
			continue
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		if err != nil {
			c.conn = nil
			c.registered = ""
			c.lastErr = fmt.Errorf("%w: %v", ErrConnectionLost, err)
			c.setStateLocked(model.Disconnected, c.lastErr)
			c.scheduleReconnectLocked()
			c.mu.Unlock()
			logger.Warnf("实时通道断开: %s", err.Error())
			_ = conn.Close()
			return
		}
		c.queue.push(model.EventMessage(ev))
		c.mu.Unlock()
	}
}

// Stop 断开连接并取消待执行的重连
func (c *Channel) Stop() error {
	c.mu.Lock()
	c.cancelTimerLocked()
	if c.state == model.Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	conn := c.conn
	c.conn = nil
	c.registered = ""
	c.setStateLocked(model.Disconnecting, nil)
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	c.mu.Lock()
	if c.state == model.Disconnecting {
		c.setStateLocked(model.Disconnected, nil)
	}
	c.mu.Unlock()
	return err
}

// Close 断开连接并关闭输出队列, 之后不能再 Start
func (c *Channel) Close() error {
	err := c.Stop()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.queue.close()
	return err
}

// RegisterDevices 向网关全量注册设备. 当前连接上已确认过相同集合时不重复发送.
// 发送失败不影响连接状态.
func (c *Channel) RegisterDevices(ctx context.Context, refs []model.DeviceRef) error {
	fp, err := fingerprint(refs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	conn, gen := c.conn, c.gen
	if c.state != model.Connected || conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if fp == c.registered {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()
	if refs == nil {
		refs = []model.DeviceRef{}
	}
	if err := conn.Invoke(ctx, MethodRegisterDevices, refs); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}

	c.mu.Lock()
	if gen == c.gen {
		c.registered = fp
	}
	c.mu.Unlock()
	return nil
}

func (c *Channel) setStateLocked(s model.ChannelState, err error) {
	c.state = s
	c.queue.push(model.StateMessage(s, err))
}

func (c *Channel) scheduleReconnectLocked() {
	if c.closed {
		return
	}
	c.cancelTimerLocked()
	seq := c.timerSeq
	c.timer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		if seq != c.timerSeq || c.timer == nil {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.mu.Unlock()
		_ = c.connect(context.Background(), true)
	})
}

func (c *Channel) cancelTimerLocked() {
	c.timerSeq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func fingerprint(refs []model.DeviceRef) (string, error) {
	items := make([]interface{}, 0, len(refs))
	for _, r := range refs {
		items = append(items, r)
	}
	return json.Fingerprint(items)
}
