package natsx

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/config"
	"github.com/wisersense-io/mate-service/model"
	"github.com/wisersense-io/mate-service/realtime"
	"github.com/wisersense-io/mate-service/util/json"
)

func runServer(t *testing.T, opts *server.Options) *server.Server {
	t.Helper()
	if opts == nil {
		opts = &server.Options{}
	}
	opts.Host = "127.0.0.1"
	opts.Port = -1
	opts.NoLog = true
	opts.NoSigs = true

	srv, err := server.NewServer(opts)
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(5*time.Second), "nats server not ready")
	t.Cleanup(srv.Shutdown)
	return srv
}

func dial(t *testing.T, srv *server.Server, token *api.AuthToken) realtime.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dialer{Config: config.NATS{Name: "test", SubjectPrefix: "fleet"}}.Dial(ctx, srv.ClientURL(), token)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func peer(t *testing.T, srv *server.Server, opts ...nats.Option) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(srv.ClientURL(), opts...)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestReceiveInOrder(t *testing.T) {
	srv := runServer(t, nil)
	c := dial(t, srv, nil)
	nc := peer(t, srv)

	require.NoError(t, nc.Publish("fleet.running.S1.D1", []byte("true")))
	require.NoError(t, nc.Publish("fleet.other.S1.D1", []byte("true")))
	require.NoError(t, nc.Publish("fleet.register.x", []byte("[]")))
	require.NoError(t, nc.Publish("fleet.connection.S1.D2", []byte(`{"value":"offline"}`)))
	require.NoError(t, nc.Publish("fleet.running.S2.D3", []byte(`{"systemId":"S9","deviceId":"D9","isRunning":1}`)))
	require.NoError(t, nc.Flush())

	want := []model.InboundEvent{
		{DeviceID: "D1", SystemID: "S1", Kind: model.RunningStateChanged, Value: true},
		{DeviceID: "D2", SystemID: "S1", Kind: model.ConnectionStateChanged, Value: false},
		{DeviceID: "D9", SystemID: "S9", Kind: model.RunningStateChanged, Value: true},
	}
	for _, w := range want {
		ev, err := c.Receive()
		require.NoError(t, err)
		assert.Equal(t, w, ev)
	}
}

func TestBadPayloadIsReported(t *testing.T) {
	srv := runServer(t, nil)
	c := dial(t, srv, nil)
	nc := peer(t, srv)

	require.NoError(t, nc.Publish("fleet.running.S1.D1", []byte("maybe")))
	require.NoError(t, nc.Flush())

	_, err := c.Receive()
	assert.ErrorIs(t, err, realtime.ErrBadEvent)
}

func TestInvokeRegisters(t *testing.T) {
	srv := runServer(t, nil)
	c := dial(t, srv, nil)
	nc := peer(t, srv)

	got := make(chan []byte, 1)
	_, err := nc.Subscribe("fleet.register", func(m *nats.Msg) {
		got <- m.Data
		_ = m.Respond([]byte(`{}`))
	})
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	refs := []model.DeviceRef{{DeviceID: "D1", SystemID: "S1", MacAddress: "AA:01"}}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Invoke(ctx, realtime.MethodRegisterDevices, refs))

	var sent []model.DeviceRef
	require.NoError(t, json.Unmarshal(<-got, &sent))
	assert.Equal(t, refs, sent)
}

func TestInvokeErrors(t *testing.T) {
	srv := runServer(t, nil)
	c := dial(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// 没有网关应答
	assert.Error(t, c.Invoke(ctx, realtime.MethodRegisterDevices, []model.DeviceRef{}))
	assert.Error(t, c.Invoke(ctx, "Unknown"))

	nc := peer(t, srv)
	_, err := nc.Subscribe("fleet.register", func(m *nats.Msg) {
		_ = m.Respond([]byte(`{"error":"rejected"}`))
	})
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	err = c.Invoke(ctx, realtime.MethodRegisterDevices, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestServerShutdownFailsConn(t *testing.T) {
	srv := runServer(t, nil)
	c := dial(t, srv, nil)

	srv.Shutdown()
	done := make(chan error, 1)
	go func() {
		_, err := c.Receive()
		done <- err
	}()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("receive did not fail after shutdown")
	}
}

func TestTokenAuth(t *testing.T) {
	srv := runServer(t, &server.Options{Authorization: "secret"})
	dial(t, srv, &api.AuthToken{TokenType: "Bearer", AccessToken: "secret"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dialer{Config: config.NATS{SubjectPrefix: "fleet"}}.Dial(ctx, srv.ClientURL(), &api.AuthToken{AccessToken: "wrong"})
	assert.Error(t, err)
}

func TestCloseEndsReceive(t *testing.T) {
	srv := runServer(t, nil)
	c := dial(t, srv, nil)
	require.NoError(t, c.Close())
	_, err := c.Receive()
	assert.ErrorIs(t, err, realtime.ErrClosed)
}
