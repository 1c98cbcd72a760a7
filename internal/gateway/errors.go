package gateway

import (
	"fmt"
	"time"
)

// ConnectionError 网关不可达/连接被拒绝，调用方可延迟后重试
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("gateway connection error (%s): %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError 在截止时间内未收到响应，调用方可重试
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("gateway timeout (%s) after %s", e.Op, e.Timeout)
}

// ConnectionClosedError 对端先关闭连接，下次调用触发重连
type ConnectionClosedError struct {
	Err error
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("gateway connection closed: %v", e.Err)
}

func (e *ConnectionClosedError) Unwrap() error { return e.Err }

// ProtocolError 帧无法解析或缺少必要字段（固件版本不匹配的信号）
// Raw 保留原始帧内容，便于按 README 排障指引输出日志
type ProtocolError struct {
	Reason string
	Raw    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gateway protocol error: %s", e.Reason)
}

// AuthenticationError 登录被拒绝（含透明重登录后的二次失败）
type AuthenticationError struct {
	Code int
	Msg  string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("gateway authentication failed (code=%d): %s", e.Code, e.Msg)
}

// GatewayRejectedError 命令被网关明确拒绝，原样透出 code/msg，不自动重试
type GatewayRejectedError struct {
	Code int
	Msg  string
}

func (e *GatewayRejectedError) Error() string {
	return fmt.Sprintf("gateway rejected command (code=%d): %s", e.Code, e.Msg)
}

// ValidationError 本地入参校验失败，在任何网络IO之前返回
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
