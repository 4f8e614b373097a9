package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsFromFile(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "hardhat", cfg.Chain.Network)
	assert.Len(t, cfg.Chain.Accounts, 8)
	assert.Equal(t, "0x77158c23cC2D9dd3067a82E2067182C85fA3b1F6", cfg.Chain.AdminAddress)

	id, err := cfg.Chain.ChainID()
	require.NoError(t, err)
	assert.Equal(t, int64(31337), id)
	assert.Equal(t, cfg.Database.DSN, cfg.NetworkDatabase().DSN)
}

func TestEnvAndFlagsOverride(t *testing.T) {
	t.Setenv("QM_LOG_LEVEL", "debug")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("chain.network", "hardhat", "")
	require.NoError(t, flags.Parse([]string{"--chain.network", "sepolia"}))

	cfg, err := LoadWithFlags(flags)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sepolia", cfg.Chain.Network)

	id, err := cfg.Chain.ChainID()
	require.NoError(t, err)
	assert.Equal(t, int64(11155111), id)
	assert.Equal(t, "qutee_media_sepolia.db", cfg.NetworkDatabase().DSN)
}

func TestUnknownNetwork(t *testing.T) {
	c := ChainConfig{Network: "nope"}
	_, err := c.ChainID()
	assert.Error(t, err)
}
