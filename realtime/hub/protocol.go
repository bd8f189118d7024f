package hub

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/wisersense-io/mate-service/util/json"
)

// 消息以 0x1e 分隔, 一个 websocket 帧内可能包含多条
const recordSeparator = 0x1e

// 消息类型
const (
	typeInvocation = 1
	typeCompletion = 3
	typePing       = 6
	typeClose      = 7
)

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type invocation struct {
	Type         int           `json:"type"`
	InvocationID string        `json:"invocationId,omitempty"`
	Target       string        `json:"target"`
	Arguments    []interface{} `json:"arguments"`
}

func encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(append(b, recordSeparator)), nil
}

// split 拆分一帧中的多条消息, 忽略空记录
func split(frame string) []gjson.Result {
	var out []gjson.Result
	for _, rec := range bytes.Split([]byte(frame), []byte{recordSeparator}) {
		rec = bytes.TrimSpace(rec)
		if len(rec) == 0 {
			continue
		}
		out = append(out, gjson.ParseBytes(rec))
	}
	return out
}

// handshakeError 握手响应中的错误
func handshakeError(frame string) error {
	recs := split(frame)
	if len(recs) == 0 {
		return fmt.Errorf("empty handshake response")
	}
	if !recs[0].IsObject() {
		return fmt.Errorf("malformed handshake response %q", recs[0].Raw)
	}
	if e := recs[0].Get("error"); e.Exists() && e.String() != "" {
		return fmt.Errorf("handshake rejected: %s", e.String())
	}
	return nil
}
