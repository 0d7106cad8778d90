package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdsim/internal/config"
)

func TestApplyFlags_AdminPortZeroDisables(t *testing.T) {
	assert.Contains(t, rootCmd.Flags().Lookup("admin-port").Usage, "0 disables")

	for _, arg := range []string{"0", "-1"} {
		t.Run(arg, func(t *testing.T) {
			cfg := &config.Config{SimHost: "127.0.0.1", AdminPort: 8080}
			require.NoError(t, rootCmd.Flags().Set("admin-port", arg))
			applyFlags(rootCmd, cfg)

			assert.Zero(t, cfg.AdminPort)
			assert.Empty(t, cfg.AdminAddr())
		})
	}
}

func TestApplyFlags_UnchangedFlagsKeepConfig(t *testing.T) {
	cfg := &config.Config{SimHost: "0.0.0.0", SimPort: 9090, RelayPort: 9092}
	applyFlags(rootCmd, cfg)

	assert.Equal(t, 9090, cfg.SimPort)
	assert.Equal(t, 9092, cfg.RelayPort)
}
