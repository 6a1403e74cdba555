package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsPerEnvironment(t *testing.T) {
	main := Defaults(Mainnet)
	assert.Equal(t, "0.0.0.0:21337", main.Connections.ServerAddr)
	assert.False(t, main.JSONRPC.EnableSensitiveMethods)

	test := Defaults(Testnet)
	assert.Equal(t, "0.0.0.0:22337", test.Connections.ServerAddr)
	assert.True(t, test.JSONRPC.EnableSensitiveMethods)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "witnode.toml")
	doc := `
[connections]
server_addr = "0.0.0.0:9999"

[consensus]
superblock_period = 42
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path, Mainnet)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Connections.ServerAddr)
	assert.Equal(t, uint32(42), cfg.Consensus.SuperblockPeriod)
	// Unset fields keep their environment default.
	assert.Equal(t, 8, cfg.Connections.OutboundLimit)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), Mainnet)
	assert.Error(t, err)
}
