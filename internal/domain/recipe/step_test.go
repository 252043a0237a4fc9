package recipe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseStep verifies mapping from subcommand names to steps and rejection
// of names outside the protocol.
func TestParseStep(t *testing.T) {
	t.Parallel()

	cases := map[string]Step{
		"check":     StepCheck,
		"resources": StepResources,
		"pretest":   StepPretest,
		"install":   StepInstall,
	}
	for name, want := range cases {
		got, err := ParseStep(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.Equal(t, name, got.String())
	}

	_, err := ParseStep("uninstall")
	require.ErrorIs(t, err, ErrUnknownStep)
}

// TestStepOptional verifies only resources and pretest tolerate status 127.
func TestStepOptional(t *testing.T) {
	t.Parallel()

	require.False(t, StepCheck.Optional())
	require.True(t, StepResources.Optional())
	require.True(t, StepPretest.Optional())
	require.False(t, StepInstall.Optional())
}

// TestRecipeNew verifies the name derives from the executable basename.
func TestRecipeNew(t *testing.T) {
	t.Parallel()

	r := New("/opt/dev/sbin/redis")
	require.Equal(t, "redis", r.Name)
	require.Equal(t, "/opt/dev/sbin/redis", r.Path)
}
