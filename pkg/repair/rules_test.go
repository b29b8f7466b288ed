package repair

import (
	"testing"

	"github.com/entrhq/mend/pkg/script"
	"github.com/entrhq/mend/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchNavigationTimeouts(t *testing.T) {
	t.Run("patches bare navigation", func(t *testing.T) {
		source := `{"steps": [{"action": "navigate", "url": "https://example.com"}]}`

		patched, notes, changed := patchNavigationTimeouts(source)
		require.True(t, changed)
		assert.Contains(t, notes, "Increased navigation timeout to 60s")
		assert.Contains(t, notes, "Added network idle wait")

		prog, err := script.Parse(patched)
		require.NoError(t, err)
		assert.Equal(t, float64(60000), prog.Steps[0].TimeoutMs)
		assert.Equal(t, "networkidle", prog.Steps[0].WaitUntil)
	})

	t.Run("upgrades load wait to network idle", func(t *testing.T) {
		source := `{"steps": [{"action": "navigate", "url": "https://example.com", "wait_until": "load", "timeout": 45000}]}`

		patched, notes, changed := patchNavigationTimeouts(source)
		require.True(t, changed)
		assert.Equal(t, []string{"Added network idle wait"}, notes)

		prog, err := script.Parse(patched)
		require.NoError(t, err)
		// An explicit timeout is left alone.
		assert.Equal(t, float64(45000), prog.Steps[0].TimeoutMs)
		assert.Equal(t, "networkidle", prog.Steps[0].WaitUntil)
	})

	t.Run("keeps domcontentloaded", func(t *testing.T) {
		source := `{"steps": [{"action": "navigate", "url": "https://example.com", "wait_until": "domcontentloaded"}]}`

		patched, _, changed := patchNavigationTimeouts(source)
		require.True(t, changed)

		prog, err := script.Parse(patched)
		require.NoError(t, err)
		assert.Equal(t, "domcontentloaded", prog.Steps[0].WaitUntil)
	})

	t.Run("declines on already patched program", func(t *testing.T) {
		source := `{"steps": [{"action": "navigate", "url": "https://example.com", "wait_until": "networkidle", "timeout": 60000}]}`

		out, notes, changed := patchNavigationTimeouts(source)
		assert.False(t, changed)
		assert.Empty(t, notes)
		assert.Equal(t, source, out)
	})

	t.Run("declines on program without navigation", func(t *testing.T) {
		source := `{"steps": [{"action": "click", "selector": "#go"}]}`

		_, _, changed := patchNavigationTimeouts(source)
		assert.False(t, changed)
	})

	t.Run("declines on unparseable source", func(t *testing.T) {
		out, _, changed := patchNavigationTimeouts("definitely not json")
		assert.False(t, changed)
		assert.Equal(t, "definitely not json", out)
	})
}

func TestApplyDeterministicRules(t *testing.T) {
	source := `{"steps": [{"action": "navigate", "url": "https://example.com"}]}`

	t.Run("matching kind applies the rule", func(t *testing.T) {
		patched, strategy, changed := applyDeterministicRules(source, task.KindTimeout)
		require.True(t, changed)
		assert.NotEqual(t, source, patched)
		assert.Contains(t, strategy, "navigation timeout")
	})

	t.Run("non-matching kind declines", func(t *testing.T) {
		out, strategy, changed := applyDeterministicRules(source, task.KindSelectorNotFound)
		assert.False(t, changed)
		assert.Empty(t, strategy)
		assert.Equal(t, source, out)
	})
}
