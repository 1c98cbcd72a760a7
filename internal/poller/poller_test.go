package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/sigen-gateway/internal/gateway"
	"github.com/taoyao-code/sigen-gateway/internal/gateway/gatewaytest"
)

func newTestClient(stub *gatewaytest.Stub) *gateway.Client {
	host, port := stub.HostPort()
	return gateway.New(gateway.Config{
		Credentials: gateway.Credentials{
			Host: host, WSPort: port, Username: "admin", Password: "secret",
		},
		ConnectTimeout:  2 * time.Second,
		ResponseTimeout: 500 * time.Millisecond,
	}, zap.NewNop(), nil)
}

func TestPollerCachesLastSnapshot(t *testing.T) {
	stub, g := gatewaytest.NewEcho()
	defer stub.Close()
	g.Enabled = 1
	g.Port = 1502

	c := newTestClient(stub)
	defer c.Close()

	p := New(c, 50*time.Millisecond, zap.NewNop(), nil)
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		_, ok := p.Last()
		return ok
	}, 2*time.Second, 10*time.Millisecond, "应在启动后很快产生首个快照")

	snap, ok := p.Last()
	require.True(t, ok)
	assert.True(t, snap.Config.Enabled)
	assert.Equal(t, 1502, snap.Config.Port)
	assert.NoError(t, snap.Err)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestPollerKeepsLastGoodValueOnFailure(t *testing.T) {
	stub, g := gatewaytest.NewEcho()
	defer stub.Close()
	g.Port = 777

	c := newTestClient(stub)
	defer c.Close()

	p := New(c, 30*time.Millisecond, zap.NewNop(), nil)
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		snap, ok := p.Last()
		return ok && snap.Config.Port == 777
	}, 2*time.Second, 10*time.Millisecond)

	// 网关开始静默：旧值保留，错误记录在快照上
	g.SetMute(true)
	require.Eventually(t, func() bool {
		snap, _ := p.Last()
		return snap.Err != nil
	}, 5*time.Second, 20*time.Millisecond, "失败后快照应携带错误")

	snap, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, 777, snap.Config.Port, "上一次成功值应保留")
}
