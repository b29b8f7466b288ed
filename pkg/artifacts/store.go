// Package artifacts manages the on-disk layout of automation artifacts:
// scripts, screenshots, videos, and the persisted run record for each task.
//
// Layout under the store root:
//
//	scripts/<task-id>/script_v<N>.json
//	screenshots/<task-id>/<timestamp>_<name>.png
//	videos/<task-id>/
//	runs/<task-id>/test_run.json
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/entrhq/mend/pkg/task"
	"github.com/gofrs/flock"
)

// Store provides file persistence rooted at one directory.
type Store struct {
	root string
}

// NewStore creates the artifact directory tree under root.
func NewStore(root string) (*Store, error) {
	for _, sub := range []string{"scripts", "screenshots", "videos", "runs"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0750); err != nil {
			return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// SaveScript writes one script version to its canonical path.
func (s *Store) SaveScript(sv *task.ScriptVersion) (string, error) {
	dir := filepath.Join(s.root, "scripts", sv.TaskID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create script directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("script_v%d.json", sv.Version))
	if err := os.WriteFile(path, []byte(sv.Source), 0600); err != nil {
		return "", fmt.Errorf("failed to save script: %w", err)
	}
	return path, nil
}

// ScreenshotPath returns a fresh screenshot path for the task, creating the
// task's screenshot directory if needed.
func (s *Store) ScreenshotPath(taskID, name string) (string, error) {
	dir := filepath.Join(s.root, "screenshots", taskID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	filename := fmt.Sprintf("%s_%s.png", time.Now().Format("150405.000"), name)
	return filepath.Join(dir, filename), nil
}

// VideoDir returns (and creates) the video recording directory for a task.
func (s *Store) VideoDir(taskID string) (string, error) {
	dir := filepath.Join(s.root, "videos", taskID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create video directory: %w", err)
	}
	return dir, nil
}

// SaveRun persists a sealed TestRun as the task's run record. The record is
// write-once: a second save for the same task fails. A file lock guards
// against two processes racing on the same task id; the write itself goes
// through a temp file and atomic rename.
func (s *Store) SaveRun(run *task.TestRun) (string, error) {
	if !run.Sealed() {
		return "", fmt.Errorf("refusing to persist unsealed test run for task %s", run.Task.ID)
	}

	dir := filepath.Join(s.root, "runs", run.Task.ID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("failed to lock run record: %w", err)
	}
	defer lock.Unlock()

	path := filepath.Join(dir, "test_run.json")
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("run record for task %s already exists", run.Task.ID)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode test run: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write test run: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to finalize test run: %w", err)
	}

	return path, nil
}

// LoadRun reads a saved run record by task id.
func (s *Store) LoadRun(taskID string) (*task.TestRun, error) {
	path := filepath.Join(s.root, "runs", taskID, "test_run.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}

	var run task.TestRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run record: %w", err)
	}
	return &run, nil
}

// ListRuns returns the task ids with saved run records, newest first (task
// ids are time-ordered).
func (s *Store) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}
