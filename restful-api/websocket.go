package restfulapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"github.com/wisersense-io/mate-service/logger"
	"github.com/wisersense-io/mate-service/model"
	"github.com/wisersense-io/mate-service/pubsub"
	"github.com/wisersense-io/mate-service/util/json"
)

// Stream 通过 websocket 推送快照变更, 连接后先推送一次当前快照
type Stream struct {
	views     func() *model.View
	publisher *pubsub.Publisher
}

func NewStream(views func() *model.View, publisher *pubsub.Publisher) *Stream {
	return &Stream{views: views, publisher: publisher}
}

// Register 注册 /ws 路由
func (s *Stream) Register(e *echo.Echo) {
	e.GET("/ws", echo.WrapHandler(websocket.Server{Handler: s.serve}))
}

func (s *Stream) serve(ws *websocket.Conn) {
	defer ws.Close()
	sub := s.publisher.Subscribe()
	defer s.publisher.Evict(sub)

	if err := WebsocketResponse(ws, http.StatusOK, model.Change{Kind: model.ChangeSession, View: s.views()}); err != nil {
		logger.Debugf("websocket 发送失败: %s", err.Error())
		return
	}

	// 客户端断开时结束
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		var msg string
		for {
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case change, ok := <-sub:
			if !ok {
				return
			}
			if err := WebsocketResponse(ws, http.StatusOK, change); err != nil {
				logger.Debugf("websocket 发送失败: %s", err.Error())
				return
			}
		}
	}
}

// WebsocketResponse 发送正常响应
func WebsocketResponse(ws *websocket.Conn, statusCode int, data interface{}) error {
	sendByte, err := json.Marshal(map[string]interface{}{
		"code": statusCode,
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("序列化要发送的数据失败:%s", err.Error())
	}
	if err := websocket.Message.Send(ws, string(sendByte)); err != nil {
		return fmt.Errorf("发送Websocket正常响应消息失败:%s", err.Error())
	}
	return nil
}
