package netprofiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiles(t *testing.T) {
	p, ok := GetProfile("testnet")
	require.True(t, ok)
	assert.Equal(t, uint8(2), p.ChainID)
	assert.NotEmpty(t, p.REST)

	assert.True(t, IsValidNetwork("mainnet"))
	assert.False(t, IsValidNetwork("moonnet"))
	assert.Equal(t, []string{"devnet", "local", "mainnet", "testnet"}, GetAvailableNetworks())
}
