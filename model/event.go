package model

import "fmt"

// EventKind 实时推送事件类型
type EventKind int

const (
	RunningStateChanged EventKind = iota + 1
	ConnectionStateChanged
)

func (k EventKind) String() string {
	switch k {
	case RunningStateChanged:
		return "RunningStateChanged"
	case ConnectionStateChanged:
		return "ConnectionStateChanged"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// InboundEvent 实时网关推送的设备事件
type InboundEvent struct {
	DeviceID string    `json:"deviceId"`
	SystemID string    `json:"systemId"`
	Kind     EventKind `json:"kind"`
	Value    bool      `json:"value"`
}

// ChannelState 实时通道连接状态
type ChannelState int

const (
	Disconnected ChannelState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ChannelState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("ChannelState(%d)", int(s))
	}
}

// MarshalText 序列化为状态名
func (s ChannelState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 按状态名解析
func (s *ChannelState) UnmarshalText(text []byte) error {
	for st := Disconnected; st <= Disconnecting; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("未知的通道状态: %s", text)
}

// ChannelMessage 实时通道有序输出的一项: 状态变更或推送事件
type ChannelMessage struct {
	State *ChannelState
	Err   error
	Event *InboundEvent
}

// StateMessage 构造状态变更消息
func StateMessage(s ChannelState, err error) ChannelMessage {
	return ChannelMessage{State: &s, Err: err}
}

// EventMessage 构造事件消息
func EventMessage(e InboundEvent) ChannelMessage {
	return ChannelMessage{Event: &e}
}
