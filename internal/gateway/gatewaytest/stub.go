// Package gatewaytest 提供测试用网关桩：
// 基于 httptest 的 WebSocket 服务端，按脚本应答信封帧
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// HandleFunc 每收到一帧调用一次；返回 ok=false 表示不应答（模拟静默网关）
type HandleFunc func(req map[string]any) (reply string, ok bool)

// Stub WebSocket 网关桩
type Stub struct {
	Server *httptest.Server

	mu     sync.Mutex
	frames []string
	handle HandleFunc
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New 创建网关桩并立即开始监听
func New(handle HandleFunc) *Stub {
	s := &Stub{handle: handle}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *Stub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		s.mu.Lock()
		s.frames = append(s.frames, string(data))
		h := s.handle
		s.mu.Unlock()

		if h == nil {
			continue
		}
		var req map[string]any
		_ = json.Unmarshal(data, &req)
		if reply, ok := h(req); ok {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}
}

// SetHandle 运行中切换应答行为
func (s *Stub) SetHandle(h HandleFunc) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
}

// Frames 返回已收到的原始出站帧（按到达顺序）
func (s *Stub) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.frames))
	copy(out, s.frames)
	return out
}

// FrameCount 返回已收到的帧数
func (s *Stub) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// HostPort 返回桩监听的主机与端口
func (s *Stub) HostPort() (string, int) {
	u, err := url.Parse(s.Server.URL)
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		panic(err)
	}
	return u.Hostname(), port
}

// Close 关闭桩
func (s *Stub) Close() { s.Server.Close() }

// NewCloser 创建收到任意帧即主动断开的桩（模拟对端关闭）
func NewCloser() *Stub {
	s := &Stub{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.ReadMessage()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
		_ = conn.Close()
	}))
	return s
}

// EchoGateway 有状态回显网关：登录签发递增 token，
// set 更新配置，get 回显当前配置。
// LoginCodes/CommandCodes 脚本化第 n 次请求的 code（耗尽后为 0）
type EchoGateway struct {
	mu           sync.Mutex
	loginCount   int
	cmdCount     int
	LoginCodes   []int
	CommandCodes []int
	Serial       string
	Enabled      int
	Port         int
	MuteCommands bool // 命令不应答，模拟静默网关
	lastToken    string
}

// NewEcho 创建回显网关桩（默认序列号 SN123，Modbus 关闭、端口 502）
func NewEcho() (*Stub, *EchoGateway) {
	g := &EchoGateway{Serial: "SN123", Enabled: 0, Port: 502}
	return New(g.Handle), g
}

// SetMute 切换命令静默（并发安全，可在运行中调用）
func (g *EchoGateway) SetMute(mute bool) {
	g.mu.Lock()
	g.MuteCommands = mute
	g.mu.Unlock()
}

// LastToken 返回最近签发的 token
func (g *EchoGateway) LastToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastToken
}

// State 返回当前 Modbus 配置
func (g *EchoGateway) State() (enabled, port int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Enabled, g.Port
}

// Handle 按信封 msgType 路由
func (g *EchoGateway) Handle(req map[string]any) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	msgType, _ := req["msgType"].(float64)
	switch int(msgType) {
	case 0: // 登录
		g.loginCount++
		if code := scriptCode(g.LoginCodes, g.loginCount); code != 0 {
			return fmt.Sprintf(`{"msgType":1,"code":%d,"msg":"login denied"}`, code), true
		}
		g.lastToken = fmt.Sprintf("T%d", g.loginCount)
		return fmt.Sprintf(`{"msgType":1,"code":0,"msg":"ok","data":{"token":"%s","sn":"%s"}}`, g.lastToken, g.Serial), true

	case 2: // 查询
		if g.MuteCommands {
			return "", false
		}
		g.cmdCount++
		if code := scriptCode(g.CommandCodes, g.cmdCount); code != 0 {
			return fmt.Sprintf(`{"msgType":4,"code":%d,"msg":"denied"}`, code), true
		}
		return fmt.Sprintf(`{"msgType":4,"code":0,"msg":"ok","data":{"modbusEnable":%d,"modbusPort":%d}}`, g.Enabled, g.Port), true

	case 3: // 写入
		if g.MuteCommands {
			return "", false
		}
		g.cmdCount++
		if code := scriptCode(g.CommandCodes, g.cmdCount); code != 0 {
			return fmt.Sprintf(`{"msgType":4,"code":%d,"msg":"denied"}`, code), true
		}
		if data, ok := req["data"].(map[string]any); ok {
			if v, ok := data["modbusEnable"].(float64); ok {
				g.Enabled = int(v)
			}
			if v, ok := data["modbusPort"].(float64); ok {
				g.Port = int(v)
			}
		}
		return `{"msgType":4,"code":0,"msg":"ok","data":{}}`, true
	}
	return `{"msgType":4,"code":99,"msg":"unknown msgType"}`, true
}

// scriptCode 第 n 次请求（1起）对应的脚本code，超出脚本后为 0
func scriptCode(codes []int, n int) int {
	if n <= len(codes) {
		return codes[n-1]
	}
	return 0
}
