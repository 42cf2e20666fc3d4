package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policysync/internal/config"
)

// Dashed command-line flags must surface through config.Load, which reads
// underscored viper keys.
func TestFlagsReachConfig(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		resetFlags(t)
	})

	flags := rootCmd.PersistentFlags()
	require.NoError(t, flags.Set("github-owner", "acme"))
	require.NoError(t, flags.Set("github-repo", "policies"))
	require.NoError(t, flags.Set("registry-path", "/tmp/policies"))
	require.NoError(t, flags.Set("project-id", "acme-prod"))

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.GitHubOwner)
	assert.Equal(t, "policies", cfg.GitHubRepo)
	assert.Equal(t, "/tmp/policies", cfg.RegistryPath)
	assert.Equal(t, "acme-prod", cfg.ProjectID)
}

func resetFlags(t *testing.T) {
	t.Helper()
	flags := rootCmd.PersistentFlags()
	for _, name := range []string{"github-owner", "github-repo", "project-id"} {
		require.NoError(t, flags.Set(name, ""))
	}
	require.NoError(t, flags.Set("registry-path", "./registry"))
}
