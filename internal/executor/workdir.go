package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btouchard/oibench/internal/task"
)

const commandFileName = "command.json"

// TaskDir returns the scratch directory of a task under workDir.
func TaskDir(workDir, taskID string) string {
	return filepath.Join(workDir, "tasks", filepath.Base(taskID))
}

// WriteCommandFile writes cmd as JSON to <workDir>/tasks/<taskID>/command.json
// and returns the absolute path.
func WriteCommandFile(workDir, taskID string, cmd task.Command) (string, error) {
	dir := TaskDir(workDir, taskID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating task directory: %w", err)
	}

	data, err := json.MarshalIndent(cmd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding command: %w", err)
	}

	path := filepath.Join(dir, commandFileName)
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("writing command file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// CleanupTaskDir removes the task's scratch directory.
func CleanupTaskDir(workDir, taskID string) {
	_ = os.RemoveAll(TaskDir(workDir, taskID))
}
