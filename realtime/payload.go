package realtime

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wisersense-io/mate-service/model"
	"github.com/wisersense-io/mate-service/util/numberx"
)

// 主题中的事件类别段
const (
	SegmentRunning    = "running"
	SegmentConnection = "connection"
)

var valueKeys = []string{"value", "isRunning", "isConnected", "state", "status"}

// DecodeEvent 解析推送参数 {"deviceId","systemId","value"}.
// value 可能是布尔/数值/字符串, 见 DecodeValue.
func DecodeEvent(kind model.EventKind, payload gjson.Result) (model.InboundEvent, error) {
	return decodeEvent(kind, payload, "", "")
}

// decodeEvent 对象中缺少的id取 systemID/deviceID
func decodeEvent(kind model.EventKind, payload gjson.Result, systemID, deviceID string) (model.InboundEvent, error) {
	if !payload.IsObject() {
		return model.InboundEvent{}, fmt.Errorf("%w: payload is not an object", ErrBadEvent)
	}
	ev := model.InboundEvent{
		DeviceID: idOr(payload.Get("deviceId"), deviceID),
		SystemID: idOr(payload.Get("systemId"), systemID),
		Kind:     kind,
	}
	if ev.SystemID == "" {
		return model.InboundEvent{}, fmt.Errorf("%w: missing systemId", ErrBadEvent)
	}
	for _, key := range valueKeys {
		r := payload.Get(key)
		if !r.Exists() {
			continue
		}
		v, ok := DecodeValue(r.Value())
		if !ok {
			return model.InboundEvent{}, fmt.Errorf("%w: unsupported %s %q", ErrBadEvent, key, r.Raw)
		}
		ev.Value = v
		return ev, nil
	}
	return model.InboundEvent{}, fmt.Errorf("%w: missing value", ErrBadEvent)
}

// DecodeValue 运行/连接状态取值
func DecodeValue(v interface{}) (bool, bool) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "running", "connected", "online", "alive":
			return true, true
		case "stopped", "idle", "disconnected", "offline":
			return false, true
		}
	}
	return numberx.GetBool(v)
}

func idOr(r gjson.Result, def string) string {
	if !r.Exists() {
		return def
	}
	return numberx.ScalarString(r)
}

// KindForSegment 主题类别段对应的事件类型
func KindForSegment(seg string) (model.EventKind, bool) {
	switch seg {
	case SegmentRunning:
		return model.RunningStateChanged, true
	case SegmentConnection:
		return model.ConnectionStateChanged, true
	default:
		return 0, false
	}
}

// DecodeTopicEvent 解析按主题推送的负载. 负载可以是完整对象, 也可以只是状态值; 对象中缺少的id取自主题
func DecodeTopicEvent(kind model.EventKind, systemID, deviceID string, payload []byte) (model.InboundEvent, error) {
	p := strings.TrimSpace(string(payload))
	if !gjson.Valid(p) {
		// 未加引号的状态文本, 如 running
		v, ok := DecodeValue(p)
		if !ok {
			return model.InboundEvent{}, fmt.Errorf("%w: payload %q", ErrBadEvent, p)
		}
		return model.InboundEvent{DeviceID: deviceID, SystemID: systemID, Kind: kind, Value: v}, nil
	}
	r := gjson.Parse(p)
	if !r.IsObject() {
		v, ok := DecodeValue(r.Value())
		if !ok {
			return model.InboundEvent{}, fmt.Errorf("%w: payload %s", ErrBadEvent, r.Raw)
		}
		return model.InboundEvent{DeviceID: deviceID, SystemID: systemID, Kind: kind, Value: v}, nil
	}
	return decodeEvent(kind, r, systemID, deviceID)
}
