package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/codeready-toolchain/oasis/pkg/schedule"
)

// ErrBadName rejects workflow or owner names unsafe as file names.
var ErrBadName = errors.New("invalid name")

// workflowName restricts saved workflow names to safe file-name characters.
var workflowName = regexp.MustCompile(`^[\w][\w.-]*$`)

// WorkflowInfo describes one saved workflow YAML file.
type WorkflowInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// WorkflowStore persists schedule YAML files per owner so users can reuse
// discussion plans. Layout: <dir>/<owner>/<name>.yaml.
type WorkflowStore struct {
	dir string
}

// NewWorkflowStore creates the workflow root directory if needed.
func NewWorkflowStore(dir string) (*WorkflowStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workflow dir %s: %w", dir, err)
	}
	return &WorkflowStore{dir: dir}, nil
}

func (s *WorkflowStore) path(owner, name string) (string, error) {
	if !workflowName.MatchString(name) {
		return "", fmt.Errorf("%w: workflow %q", ErrBadName, name)
	}
	if !workflowName.MatchString(owner) {
		return "", fmt.Errorf("%w: owner %q", ErrBadName, owner)
	}
	return filepath.Join(s.dir, owner, name+".yaml"), nil
}

// Save validates the YAML as a schedule and writes it under the owner's
// directory. A broken plan is rejected rather than stored.
func (s *WorkflowStore) Save(owner, name, source string) error {
	if _, err := schedule.Parse(source); err != nil {
		return err
	}
	path, err := s.path(owner, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create owner workflow dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", name, err)
	}
	return nil
}

// Get reads one saved workflow's YAML source.
func (s *WorkflowStore) Get(owner, name string) (string, error) {
	path, err := s.path(owner, name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List returns the owner's saved workflows sorted by name.
func (s *WorkflowStore) List(owner string) ([]WorkflowInfo, error) {
	if !workflowName.MatchString(owner) {
		return nil, fmt.Errorf("%w: owner %q", ErrBadName, owner)
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, owner))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read workflows for %s: %w", owner, err)
	}

	var infos []WorkflowInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, WorkflowInfo{
			Name: strings.TrimSuffix(e.Name(), ".yaml"),
			Size: info.Size(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete removes a saved workflow. Missing files are not an error.
func (s *WorkflowStore) Delete(owner, name string) error {
	path, err := s.path(owner, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete workflow %s: %w", name, err)
	}
	return nil
}
