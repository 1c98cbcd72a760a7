package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport 维护与网关的零或一条 WebSocket 连接。
// 不做任何重试，重试策略属于 Session/Client 层
type Transport struct {
	url         string
	dialTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewTransport 创建传输层，URL 形如 ws://host:port/ws
func NewTransport(host string, port int, dialTimeout time.Duration) *Transport {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &Transport{
		url:         fmt.Sprintf("ws://%s/ws", net.JoinHostPort(host, fmt.Sprintf("%d", port))),
		dialTimeout: dialTimeout,
	}
}

// URL 返回网关 WebSocket 地址
func (t *Transport) URL() string { return t.url }

// Connected 返回当前是否持有活动连接
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Connect 建立连接。已连接时为幂等空操作
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	dialer := websocket.Dialer{HandshakeTimeout: t.dialTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()
	conn, _, err := dialer.DialContext(dialCtx, t.url, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Op: "connect", Timeout: t.dialTimeout}
		}
		return &ConnectionError{Op: "connect", Err: err}
	}
	t.conn = conn
	return nil
}

// Send 写入一个文本帧
func (t *Transport) Send(frame string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return &ConnectionError{Op: "send", Err: errors.New("websocket is not connected")}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return t.classify("send", err, 0)
	}
	return nil
}

// Receive 阻塞等待下一个文本帧，超时返回 *TimeoutError。
// 非文本帧（ping/pong 由库处理，二进制帧忽略）跳过继续读
func (t *Transport) Receive(timeout time.Duration) (string, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return "", &ConnectionError{Op: "receive", Err: errors.New("websocket is not connected")}
	}
	deadline := time.Now().Add(timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return "", &ConnectionError{Op: "receive", Err: err}
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return "", t.classify("receive", err, timeout)
		}
		if msgType == websocket.TextMessage {
			return string(data), nil
		}
	}
}

// Close 幂等关闭并释放连接
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// classify 将底层错误归入错误分类体系
func (t *Transport) classify(op string, err error, timeout time.Duration) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Op: op, Timeout: timeout}
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) || websocket.IsUnexpectedCloseError(err) {
		return &ConnectionClosedError{Err: err}
	}
	return &ConnectionError{Op: op, Err: err}
}
