package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/sigen-gateway/internal/metrics"
)

// State 会话状态机状态
type State int32

const (
	StateUnauthenticated State = iota // 初始，无 token
	StateAuthenticating               // 登录信封已发出，等待响应
	StateAuthenticated                // 持有有效 token
	StateExpired                      // token 被网关拒绝，已丢弃
	StateDisconnected                 // 连接断开，下次调用惰性重连
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Credentials 网关连接凭据，构造 Session 后不可变
type Credentials struct {
	Host     string
	WSPort   int
	Username string
	Password string
	Serial   string // 可选预置序列号，为空时首次登录自动发现
}

// Session 独占持有连接与 token。
// 协议没有请求ID，应答按严格FIFO对应请求，因此 gate 保证同一时刻
// 只有一个在途请求，并发调用方排队而非交错
type Session struct {
	creds       Credentials
	tr          *Transport
	respTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.AppMetrics

	gate sync.Mutex // FIFO 串行闸门

	state atomic.Int32

	mu       sync.RWMutex // 保护 token/serial/issuedAt
	token    string
	serial   string
	issuedAt time.Time
}

// NewSession 创建会话，连接惰性建立
func NewSession(creds Credentials, connectTimeout, responseTimeout time.Duration, logger *zap.Logger, m *metrics.AppMetrics) *Session {
	if creds.WSPort <= 0 {
		creds.WSPort = DefaultWSPort
	}
	if responseTimeout <= 0 {
		responseTimeout = DefaultResponseTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		creds:       creds,
		tr:          NewTransport(creds.Host, creds.WSPort, connectTimeout),
		respTimeout: responseTimeout,
		logger:      logger,
		metrics:     m,
		serial:      creds.Serial,
	}
	s.state.Store(int32(StateUnauthenticated))
	return s
}

// State 返回当前状态
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Token 返回当前 token（未登录时为空）
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SerialNumber 返回网关序列号（预置或首次登录发现）
func (s *Session) SerialNumber() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serial
}

// TokenIssuedAt 返回当前 token 的签发时间
func (s *Session) TokenIssuedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.issuedAt
}

// Login 建立连接并完成登录握手
func (s *Session) Login(ctx context.Context) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	return s.ensureReady(ctx)
}

// Close 关闭连接并丢弃 token
func (s *Session) Close() error {
	s.gate.Lock()
	defer s.gate.Unlock()
	s.dropToken()
	s.setState(StateDisconnected)
	return s.tr.Close()
}

// Exchange 发送一条命令/查询并等待其响应（调用方排队）。
// 网关返回非零 code 时按保守策略视为 token 失效：丢弃 token、
// 透明重登录一次并重发原命令；二次非零 code 视为明确拒绝
func (s *Session) Exchange(ctx context.Context, msgType int, service string, payload map[string]any) (*Envelope, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	env, err := s.exchangeOnce(msgType, service, payload)
	if err != nil {
		return nil, err
	}
	if env.Code == 0 {
		return env, nil
	}

	// 非零 code：token 可能已过期，重登录一次后重发
	s.logger.Debug("command rejected, attempting transparent re-login",
		zap.Int("code", env.Code), zap.String("msg", env.Msg), zap.String("service", service))
	s.dropToken()
	s.setState(StateExpired)
	if s.metrics != nil {
		s.metrics.ReloginTotal.Inc()
	}
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	env, err = s.exchangeOnce(msgType, service, payload)
	if err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, &GatewayRejectedError{Code: env.Code, Msg: env.Msg}
	}
	return env, nil
}

// ensureReady 保证连接已建立且会话已认证（gate 已持有）
func (s *Session) ensureReady(ctx context.Context) error {
	if !s.tr.Connected() {
		if err := s.tr.Connect(ctx); err != nil {
			s.setState(StateDisconnected)
			return err
		}
		if s.metrics != nil {
			s.metrics.ConnectTotal.Inc()
		}
		// 新连接上旧 token 不可信
		s.dropToken()
		s.setState(StateUnauthenticated)
	}
	if s.State() == StateAuthenticated {
		return nil
	}
	return s.authenticate(ctx)
}

// authenticate 执行登录握手（gate 已持有，连接已建立）
func (s *Session) authenticate(_ context.Context) error {
	s.setState(StateAuthenticating)
	frame, err := EncodeLogin(s.SerialNumber(), s.creds.Username, s.creds.Password)
	if err != nil {
		s.setState(StateUnauthenticated)
		return err
	}
	env, err := s.roundTrip(frame)
	if err != nil {
		return err
	}
	if env.Code != 0 {
		s.setState(StateUnauthenticated)
		s.dropToken()
		return &AuthenticationError{Code: env.Code, Msg: env.Msg}
	}
	d, err := decodeLoginData(env)
	if err != nil {
		s.setState(StateUnauthenticated)
		s.logRawFrame(env.Raw)
		return err
	}

	s.mu.Lock()
	s.token = d.Token
	s.issuedAt = time.Now()
	if s.serial == "" && d.SN != "" {
		s.serial = d.SN
	}
	s.mu.Unlock()

	s.setState(StateAuthenticated)
	s.logger.Info("authenticated to gateway",
		zap.String("url", s.tr.URL()), zap.String("sn", s.SerialNumber()))
	return nil
}

// exchangeOnce 编码并执行一次请求/响应交换（gate 已持有）
func (s *Session) exchangeOnce(msgType int, service string, payload map[string]any) (*Envelope, error) {
	var frame string
	var err error
	switch msgType {
	case MsgTypeGet:
		frame, err = EncodeQuery(s.Token(), s.SerialNumber(), service)
	default:
		frame, err = EncodeCommand(s.Token(), s.SerialNumber(), service, payload)
	}
	if err != nil {
		return nil, err
	}
	return s.roundTrip(frame)
}

// roundTrip 发送一帧并等待下一帧。传输层失败置为 Disconnected，
// 绝不留在半认证状态；解析失败输出原始帧便于排障
func (s *Session) roundTrip(frame string) (*Envelope, error) {
	s.logger.Debug("ws send", zap.String("frame", frame))
	if err := s.tr.Send(frame); err != nil {
		s.disconnect()
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.FramesSent.Inc()
	}
	text, err := s.tr.Receive(s.respTimeout)
	if err != nil {
		s.disconnect()
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.FramesReceived.Inc()
	}
	s.logger.Debug("ws recv", zap.String("frame", text))
	env, err := Decode(text)
	if err != nil {
		s.logRawFrame(text)
		return nil, err
	}
	return env, nil
}

// disconnect 关闭连接并丢弃 token（gate 已持有）
func (s *Session) disconnect() {
	_ = s.tr.Close()
	s.dropToken()
	s.setState(StateDisconnected)
}

func (s *Session) dropToken() {
	s.mu.Lock()
	s.token = ""
	s.issuedAt = time.Time{}
	s.mu.Unlock()
}

// logRawFrame 按排障指引输出无法解析/不符合预期的原始帧
func (s *Session) logRawFrame(raw string) {
	s.logger.Warn("unexpected gateway frame, firmware mismatch?", zap.String("raw", raw))
}
