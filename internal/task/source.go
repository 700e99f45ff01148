package task

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor identifies a task inside a Source before it is loaded.
type Descriptor struct {
	ID       string `yaml:"id"`
	Prompt   string `yaml:"prompt"`
	Expected string `yaml:"expected"`
}

// Source supplies the tasks of a benchmark.
type Source interface {
	Descriptors() ([]Descriptor, error)
	Load(d Descriptor) (Task, error)
	// CustomInstructions returns text appended to the run command, or "".
	CustomInstructions() string
}

// FileSource reads tasks from a YAML file.
type FileSource struct {
	Instructions string       `yaml:"custom_instructions"`
	Tasks        []Descriptor `yaml:"tasks"`
}

// LoadFile parses a YAML task file. Environment variables in the file are expanded.
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	slog.Debug("loading task file", "path", path)

	var src FileSource
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &src); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	seen := make(map[string]bool, len(src.Tasks))
	for i, d := range src.Tasks {
		if strings.TrimSpace(d.ID) == "" {
			return nil, fmt.Errorf("task #%d has no id", i+1)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate task id %q", d.ID)
		}
		seen[d.ID] = true
	}

	return &src, nil
}

// Descriptors returns the tasks in file order.
func (s *FileSource) Descriptors() ([]Descriptor, error) {
	out := make([]Descriptor, len(s.Tasks))
	copy(out, s.Tasks)
	return out, nil
}

// Load turns a descriptor into a Task.
func (s *FileSource) Load(d Descriptor) (Task, error) {
	if d.Prompt == "" {
		return Task{}, fmt.Errorf("task %q has an empty prompt", d.ID)
	}
	return Task{ID: d.ID, Prompt: d.Prompt, Expected: d.Expected}, nil
}

// CustomInstructions returns the file-level instructions.
func (s *FileSource) CustomInstructions() string {
	return s.Instructions
}

// LoadAll fetches descriptors from src, applies mod and loads every remaining task.
// Loading stops at the first task that fails to load.
func LoadAll(src Source, mod Modifier) ([]Task, error) {
	descs, err := src.Descriptors()
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	if mod != nil {
		descs = mod.Modify(descs)
	}
	if len(descs) == 0 {
		return nil, errors.New("no tasks selected")
	}

	tasks := make([]Task, 0, len(descs))
	for _, d := range descs {
		t, err := src.Load(d)
		if err != nil {
			return nil, fmt.Errorf("loading task %q: %w", d.ID, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
