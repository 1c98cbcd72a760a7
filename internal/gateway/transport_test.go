package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/sigen-gateway/internal/gateway/gatewaytest"
)

func TestTransportSendReceiveWithoutConnect(t *testing.T) {
	tr := NewTransport("127.0.0.1", 1, time.Second)

	err := tr.Send("x")
	var cErr *ConnectionError
	require.ErrorAs(t, err, &cErr)

	_, err = tr.Receive(time.Second)
	require.ErrorAs(t, err, &cErr)
}

func TestTransportConnectAndEcho(t *testing.T) {
	stub := gatewaytest.New(func(req map[string]any) (string, bool) {
		return `{"msgType":4,"code":0,"msg":"ok"}`, true
	})
	defer stub.Close()

	host, port := stub.HostPort()
	tr := NewTransport(host, port, 2*time.Second)
	require.NoError(t, tr.Connect(context.Background()))
	assert.True(t, tr.Connected())

	// 重复 Connect 幂等
	require.NoError(t, tr.Connect(context.Background()))

	require.NoError(t, tr.Send(`{"msgType":2,"sn":"","token":"t","data":{}}`))
	text, err := tr.Receive(time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"msgType":4,"code":0,"msg":"ok"}`, text)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close(), "Close 幂等")
	assert.False(t, tr.Connected())
}

func TestTransportReceiveTimeout(t *testing.T) {
	stub := gatewaytest.New(func(req map[string]any) (string, bool) {
		return "", false // 静默
	})
	defer stub.Close()

	host, port := stub.HostPort()
	tr := NewTransport(host, port, 2*time.Second)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	require.NoError(t, tr.Send(`{"msgType":2,"sn":"","token":"t","data":{}}`))
	start := time.Now()
	_, err := tr.Receive(200 * time.Millisecond)
	var tErr *TimeoutError
	require.ErrorAs(t, err, &tErr)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestTransportPeerClose(t *testing.T) {
	stub := gatewaytest.NewCloser()
	defer stub.Close()

	host, port := stub.HostPort()
	tr := NewTransport(host, port, 2*time.Second)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	require.NoError(t, tr.Send(`{"msgType":2,"sn":"","token":"t","data":{}}`))
	_, err := tr.Receive(2 * time.Second)
	var ccErr *ConnectionClosedError
	require.ErrorAs(t, err, &ccErr)
}

func TestTransportConnectRefused(t *testing.T) {
	stub := gatewaytest.New(nil)
	host, port := stub.HostPort()
	stub.Close()

	tr := NewTransport(host, port, time.Second)
	err := tr.Connect(context.Background())
	var cErr *ConnectionError
	require.ErrorAs(t, err, &cErr)
	assert.False(t, tr.Connected())
}
