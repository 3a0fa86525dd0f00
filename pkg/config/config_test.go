package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flagd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	for _, name := range []string{"FLAGS_BACKEND", "REDIS_URL", "GRPC_ADDR", "HTTP_ADDR", "LOG_LEVEL"} {
		t.Setenv(name, "")
	}
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "redis://127.0.0.1:6379/0", cfg.RedisURL)
	assert.Equal(t, "flags", cfg.KeyPrefix)
	assert.Equal(t, "default", cfg.Tenant)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := writeConfig(t, `
backend: raft
node_id: n1
raft_addr: 127.0.0.1:7001
raft_bootstrap: true
raft_peers:
  - n1=127.0.0.1:7001
  - n2=127.0.0.1:7002
key_prefix: edge
http_addr: :8081
`)
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("LOG_JSON", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, BackendRaft, cfg.Backend)
	assert.Equal(t, "./flagd/n1", cfg.RaftData)
	assert.True(t, cfg.RaftBootstrap)
	assert.Equal(t, "edge", cfg.KeyPrefix)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.True(t, cfg.LogJSON)
	assert.Empty(t, cfg.RedisURL)

	peers, err := cfg.ParsedRaftPeers()
	require.NoError(t, err)
	assert.Equal(t, []Peer{{ID: "n1", Addr: "127.0.0.1:7001"}, {ID: "n2", Addr: "127.0.0.1:7002"}}, peers)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadConfig(writeConfig(t, "backend: [nope"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfig(writeConfig(t, "backend: etcd"))
	assert.ErrorContains(t, err, "unknown backend")

	_, err = LoadConfig(writeConfig(t, "backend: raft\nraft_addr: 127.0.0.1:7001"))
	assert.ErrorContains(t, err, "NODE_ID is required")

	_, err = LoadConfig(writeConfig(t, "backend: raft\nnode_id: n1\nraft_addr: x:1\nraft_peers: [broken]"))
	assert.ErrorContains(t, err, "invalid raft peer")

	_, err = LoadConfig(writeConfig(t, "key_prefix: a:b"))
	assert.ErrorContains(t, err, "key_prefix")

	t.Setenv("RAFT_BOOTSTRAP", "maybe")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "invalid RAFT_BOOTSTRAP value")
}
