package realtime

import (
	"context"
	"errors"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/model"
)

const (
	// MethodRegisterDevices 注册设备清单的网关方法
	MethodRegisterDevices = "RegisterDevices"
	// TopicRunningState 资产运行状态变化
	TopicRunningState = "AssetRunningStateChanged"
	// TopicConnectionState 设备连接状态变化
	TopicConnectionState = "DeviceConnectionStateChanged"
)

var (
	ErrConnect        = errors.New("realtime: connect failed")
	ErrSend           = errors.New("realtime: send failed")
	ErrNotConnected   = errors.New("realtime: not connected")
	ErrConnectionLost = errors.New("realtime: connection lost")
	ErrBadEvent       = errors.New("realtime: bad event")
	ErrClosed         = errors.New("realtime: closed")
	ErrStopped        = errors.New("realtime: stopped while connecting")
)

// Conn 与实时网关之间的一条连接
type Conn interface {
	// Invoke 调用网关方法并等待确认
	Invoke(ctx context.Context, method string, args ...interface{}) error
	// Receive 阻塞读取下一条推送事件. 单条消息无法解析时返回包装了 ErrBadEvent 的错误,
	// 连接本身仍可用; 其它错误表示连接已断开.
	Receive() (model.InboundEvent, error)
	Close() error
}

// Dialer 建立连接并完成握手
type Dialer interface {
	Dial(ctx context.Context, url string, token *api.AuthToken) (Conn, error)
}

// KindForTopic 推送主题对应的事件类型
func KindForTopic(topic string) (model.EventKind, bool) {
	switch topic {
	case TopicRunningState:
		return model.RunningStateChanged, true
	case TopicConnectionState:
		return model.ConnectionStateChanged, true
	default:
		return 0, false
	}
}
