package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/entrhq/mend/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func sealedRun(t *testing.T, status task.Status) *task.TestRun {
	t.Helper()
	run := task.NewTestRun(task.NewTask("check the homepage", "https://example.com"))
	require.NoError(t, run.AddScript(&task.ScriptVersion{
		TaskID:  run.Task.ID,
		Version: 1,
		Source:  `{"steps": [{"action": "navigate", "url": "https://example.com"}]}`,
	}))
	require.NoError(t, run.Seal(status))
	return run
}

func TestNewStore_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	_, err := NewStore(root)
	require.NoError(t, err)

	for _, sub := range []string{"scripts", "screenshots", "videos", "runs"} {
		info, err := os.Stat(filepath.Join(root, sub))
		require.NoError(t, err, sub)
		assert.True(t, info.IsDir())
	}
}

func TestSaveScript(t *testing.T) {
	store := newTestStore(t)

	sv := &task.ScriptVersion{
		TaskID:  "01TEST",
		Version: 2,
		Source:  `{"steps": [{"action": "navigate", "url": "https://example.com"}]}`,
	}

	path, err := store.SaveScript(sv)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "scripts", "01TEST", "script_v2.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sv.Source, string(data))
}

func TestScreenshotPath(t *testing.T) {
	store := newTestStore(t)

	path, err := store.ScreenshotPath("01TEST", "final")
	require.NoError(t, err)
	assert.Contains(t, path, filepath.Join("screenshots", "01TEST"))
	assert.Contains(t, filepath.Base(path), "final")
	assert.Equal(t, ".png", filepath.Ext(path))

	// The directory exists so the browser can write into it.
	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveRun(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		store := newTestStore(t)
		run := sealedRun(t, task.StatusSuccess)

		path, err := store.SaveRun(run)
		require.NoError(t, err)
		assert.FileExists(t, path)

		loaded, err := store.LoadRun(run.Task.ID)
		require.NoError(t, err)
		assert.Equal(t, run.Task.ID, loaded.Task.ID)
		assert.Equal(t, task.StatusSuccess, loaded.FinalStatus)
		require.Len(t, loaded.Scripts, 1)
		assert.Equal(t, run.Scripts[0].Source, loaded.Scripts[0].Source)
		assert.True(t, loaded.Sealed())
	})

	t.Run("rejects unsealed run", func(t *testing.T) {
		store := newTestStore(t)
		run := task.NewTestRun(task.NewTask("still going", ""))

		_, err := store.SaveRun(run)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsealed")
	})

	t.Run("records are write-once", func(t *testing.T) {
		store := newTestStore(t)
		run := sealedRun(t, task.StatusFailed)

		_, err := store.SaveRun(run)
		require.NoError(t, err)

		_, err = store.SaveRun(run)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})
}

func TestLoadRun_Missing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LoadRun("no-such-task")
	require.Error(t, err)
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)

	ids, err := store.ListRuns()
	require.NoError(t, err)
	assert.Empty(t, ids)

	first := sealedRun(t, task.StatusSuccess)
	second := sealedRun(t, task.StatusFailed)
	_, err = store.SaveRun(first)
	require.NoError(t, err)
	_, err = store.SaveRun(second)
	require.NoError(t, err)

	ids, err = store.ListRuns()
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// Newest first: ulids sort lexically by creation time.
	assert.Equal(t, second.Task.ID, ids[0])
	assert.Equal(t, first.Task.ID, ids[1])
}
