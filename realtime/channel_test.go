package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/model"
)

type fakeConn struct {
	events    chan model.InboundEvent
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	invokes   [][]model.DeviceRef
	invokeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan model.InboundEvent, 64),
		errs:   make(chan error, 4),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) Invoke(_ context.Context, method string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if method != MethodRegisterDevices {
		return fmt.Errorf("unexpected method %s", method)
	}
	if f.invokeErr != nil {
		return f.invokeErr
	}
	f.invokes = append(f.invokes, args[0].([]model.DeviceRef))
	return nil
}

func (f *fakeConn) Receive() (model.InboundEvent, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case err := <-f.errs:
		return model.InboundEvent{}, err
	case <-f.closed:
		return model.InboundEvent{}, ErrClosed
	}
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) invokeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invokes)
}

type fakeDialer struct {
	mu    sync.Mutex
	fails []error
	conns []*fakeConn
	calls int32
	token *api.AuthToken
}

func (d *fakeDialer) Dial(_ context.Context, _ string, token *api.AuthToken) (Conn, error) {
	n := atomic.AddInt32(&d.calls, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.token = token
	if int(n) <= len(d.fails) && d.fails[n-1] != nil {
		return nil, d.fails[n-1]
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) dials() int {
	return int(atomic.LoadInt32(&d.calls))
}

type tokenFunc func(context.Context) (*api.AuthToken, error)

func (f tokenFunc) FindToken(ctx context.Context) (*api.AuthToken, error) {
	return f(ctx)
}

func (tokenFunc) Invalidate() {}

func newTestChannel(d Dialer) *Channel {
	return NewChannel(d, nil, Options{URL: "ws://gateway", ReconnectDelay: 30 * time.Millisecond, RequestTimeout: time.Second})
}

func next(t *testing.T, c *Channel) model.ChannelMessage {
	t.Helper()
	select {
	case m, ok := <-c.Messages():
		require.True(t, ok, "messages closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel message")
	}
	return model.ChannelMessage{}
}

func expectState(t *testing.T, c *Channel, want model.ChannelState) model.ChannelMessage {
	t.Helper()
	m := next(t, c)
	require.NotNil(t, m.State, "expected state %s, got event %+v", want, m.Event)
	require.Equal(t, want, *m.State)
	return m
}

func expectQuiet(t *testing.T, c *Channel, d time.Duration) {
	t.Helper()
	select {
	case m := <-c.Messages():
		t.Fatalf("unexpected message %+v", m)
	case <-time.After(d):
	}
}

func TestStartConnects(t *testing.T) {
	d := &fakeDialer{}
	c := newTestChannel(d)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)
	assert.Equal(t, model.Connected, c.State())

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 1, d.dials())
	expectQuiet(t, c, 50*time.Millisecond)
}

func TestStartPassesToken(t *testing.T) {
	d := &fakeDialer{}
	tokens := tokenFunc(func(context.Context) (*api.AuthToken, error) {
		return &api.AuthToken{TokenType: "Bearer", AccessToken: "t"}, nil
	})
	c := NewChannel(d, tokens, Options{})
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotNil(t, d.token)
	assert.Equal(t, "t", d.token.AccessToken)
}

func TestStartFailureReconnectsOnce(t *testing.T) {
	d := &fakeDialer{fails: []error{errors.New("refused"), errors.New("refused again")}}
	c := newTestChannel(d)
	defer c.Close()

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnect)
	expectState(t, c, model.Connecting)
	m := expectState(t, c, model.Disconnected)
	assert.ErrorIs(t, m.Err, ErrConnect)
	assert.ErrorIs(t, c.LastError(), ErrConnect)

	// 自动重连一次, 仍然失败后不再重试
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Disconnected)
	expectQuiet(t, c, 150*time.Millisecond)
	assert.Equal(t, 2, d.dials())
}

func TestStartFailureThenReconnectSucceeds(t *testing.T) {
	d := &fakeDialer{fails: []error{errors.New("refused")}}
	c := newTestChannel(d)
	defer c.Close()

	require.Error(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Disconnected)
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)
	assert.NoError(t, c.LastError())
}

func TestStopCancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{fails: []error{errors.New("refused")}}
	c := newTestChannel(d)
	defer c.Close()

	require.Error(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Disconnected)

	require.NoError(t, c.Stop())
	expectQuiet(t, c, 100*time.Millisecond)
	assert.Equal(t, 1, d.dials())
}

func TestStopTransitions(t *testing.T) {
	d := &fakeDialer{}
	c := newTestChannel(d)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)

	require.NoError(t, c.Stop())
	expectState(t, c, model.Disconnecting)
	expectState(t, c, model.Disconnected)

	require.NoError(t, c.Stop())
	expectQuiet(t, c, 80*time.Millisecond)
	assert.Equal(t, 1, d.dials())
}

func TestConnectionLossReconnects(t *testing.T) {
	d := &fakeDialer{}
	c := newTestChannel(d)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)

	d.last().errs <- io.EOF
	m := expectState(t, c, model.Disconnected)
	assert.ErrorIs(t, m.Err, ErrConnectionLost)

	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)
	assert.Equal(t, 2, d.dials())
}

func TestEventsDeliveredInOrder(t *testing.T) {
	d := &fakeDialer{}
	c := newTestChannel(d)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)

	conn := d.last()
	for i := 0; i < 50; i++ {
		conn.events <- model.InboundEvent{DeviceID: fmt.Sprint(i), SystemID: "S", Kind: model.RunningStateChanged, Value: i%2 == 0}
	}
	for i := 0; i < 50; i++ {
		m := next(t, c)
		require.NotNil(t, m.Event)
		assert.Equal(t, fmt.Sprint(i), m.Event.DeviceID)
	}
}

func TestBadEventDoesNotDropConnection(t *testing.T) {
	d := &fakeDialer{}
	c := newTestChannel(d)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)

	conn := d.last()
	conn.errs <- fmt.Errorf("%w: garbage", ErrBadEvent)
	time.Sleep(20 * time.Millisecond)
	conn.events <- model.InboundEvent{DeviceID: "D1", SystemID: "S", Kind: model.ConnectionStateChanged, Value: true}

	m := next(t, c)
	require.NotNil(t, m.Event)
	assert.Equal(t, "D1", m.Event.DeviceID)
	assert.Equal(t, model.Connected, c.State())
}

func TestEventsAfterStopAreDropped(t *testing.T) {
	d := &fakeDialer{}
	c := newTestChannel(d)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)
	conn := d.last()

	require.NoError(t, c.Stop())
	expectState(t, c, model.Disconnecting)
	expectState(t, c, model.Disconnected)

	select {
	case conn.events <- model.InboundEvent{SystemID: "S", Kind: model.RunningStateChanged, Value: true}:
	default:
	}
	expectQuiet(t, c, 50*time.Millisecond)
}

func TestRegisterDevices(t *testing.T) {
	d := &fakeDialer{}
	c := newTestChannel(d)
	defer c.Close()

	refs := []model.DeviceRef{{DeviceID: "D1", SystemID: "S"}, {DeviceID: "D2", SystemID: "S"}}
	assert.ErrorIs(t, c.RegisterDevices(context.Background(), refs), ErrNotConnected)

	require.NoError(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)
	conn := d.last()

	require.NoError(t, c.RegisterDevices(context.Background(), refs))
	require.NoError(t, c.RegisterDevices(context.Background(), []model.DeviceRef{refs[1], refs[0]}))
	assert.Equal(t, 1, conn.invokeCount())

	require.NoError(t, c.RegisterDevices(context.Background(), refs[:1]))
	assert.Equal(t, 2, conn.invokeCount())

	require.NoError(t, c.RegisterDevices(context.Background(), nil))
	assert.Equal(t, 3, conn.invokeCount())
	conn.mu.Lock()
	assert.NotNil(t, conn.invokes[2])
	assert.Empty(t, conn.invokes[2])
	conn.mu.Unlock()
}

func TestRegisterDevicesFailureKeepsConnection(t *testing.T) {
	d := &fakeDialer{}
	c := newTestChannel(d)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)
	conn := d.last()
	conn.mu.Lock()
	conn.invokeErr = errors.New("hub error")
	conn.mu.Unlock()

	refs := []model.DeviceRef{{DeviceID: "D1", SystemID: "S"}}
	err := c.RegisterDevices(context.Background(), refs)
	assert.ErrorIs(t, err, ErrSend)
	assert.Equal(t, model.Connected, c.State())
	expectQuiet(t, c, 30*time.Millisecond)

	conn.mu.Lock()
	conn.invokeErr = nil
	conn.mu.Unlock()
	require.NoError(t, c.RegisterDevices(context.Background(), refs))
	assert.Equal(t, 1, conn.invokeCount())
}

func TestRegisterDevicesResentAfterReconnect(t *testing.T) {
	d := &fakeDialer{}
	c := newTestChannel(d)
	defer c.Close()

	refs := []model.DeviceRef{{DeviceID: "D1", SystemID: "S"}}
	require.NoError(t, c.Start(context.Background()))
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)
	require.NoError(t, c.RegisterDevices(context.Background(), refs))
	first := d.last()

	first.errs <- io.EOF
	expectState(t, c, model.Disconnected)
	expectState(t, c, model.Connecting)
	expectState(t, c, model.Connected)

	require.NoError(t, c.RegisterDevices(context.Background(), refs))
	assert.Equal(t, 1, d.last().invokeCount())
	assert.NotSame(t, first, d.last())
}

func TestClosedChannel(t *testing.T) {
	c := newTestChannel(&fakeDialer{})
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Start(context.Background()), ErrClosed)

	select {
	case _, ok := <-c.Messages():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("messages not closed")
	}
}
