package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ocpp-rpc/registry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chargepoint.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
charge_point_id = " CP_1 "
endpoints = ["ws://cs-1:9000/ocpp", " ", "ws://cs-2:9000/ocpp"]
balancer = "consistent_hash"
call_timeout = "5s"
single_outstanding_call = false
max_inbound_concurrency = 1
inbound_queue_size = 2
inbound_rate = 2.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "CP_1", cfg.ChargePointID)
	assert.Equal(t, []string{"ws://cs-1:9000/ocpp", "ws://cs-2:9000/ocpp"}, cfg.Endpoints)
	assert.Equal(t, "consistent_hash", cfg.Balancer)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.False(t, cfg.SingleOutstandingCall)
	assert.Equal(t, int64(1), cfg.MaxInboundConcurrency)
	assert.Equal(t, 2.5, cfg.InboundRate)

	// untouched keys keep their defaults
	def := Default()
	assert.Equal(t, def.Subprotocol, cfg.Subprotocol)
	assert.Equal(t, def.PingInterval, cfg.PingInterval)
	assert.Equal(t, def.SendQueueSize, cfg.SendQueueSize)

	sc := cfg.SessionConfig()
	assert.Equal(t, 5*time.Second, sc.CallTimeout)
	assert.Equal(t, int64(1), sc.MaxInboundConcurrency)
	assert.Equal(t, 2, sc.InboundQueueSize)
	assert.False(t, sc.SingleOutstandingCall)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeConfig(t, `call_timeout = "soon"`))
	assert.ErrorContains(t, err, "call_timeout")

	_, err = Load(writeConfig(t, `charge_point = "CP_1"`))
	assert.ErrorContains(t, err, "unknown key")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Balancer = "fastest"
	cfg.LogLevel = "loud"
	cfg.CallTimeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"charge_point_id", "endpoints", "fastest", "log_level", "call_timeout"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestRegistryFromStaticEndpoints(t *testing.T) {
	cfg := Default()
	cfg.Endpoints = []string{"ws://cs-1:9000/ocpp"}

	reg, err := cfg.Registry(zap.NewNop())
	require.NoError(t, err)
	eps, err := reg.Discover(t.Context(), cfg.Service)
	require.NoError(t, err)
	assert.Equal(t, []registry.Endpoint{{URL: "ws://cs-1:9000/ocpp", Weight: 1}}, eps)
}

func TestRouterAndDialOptions(t *testing.T) {
	cfg := Default()
	cfg.InboundRate = 1
	cfg.HandlerRetries = 2
	assert.Len(t, cfg.RouterOptions(zap.NewNop()), 1)

	dial := cfg.DialOptions(nil)
	assert.Equal(t, []string{"ocpp1.6"}, dial.Subprotocols)
	assert.Equal(t, 30*time.Second, dial.PingInterval)
}
