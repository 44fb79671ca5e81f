// Package file provides file-based persistence for workflows, rubrics and executions.
//
// Records are JSON documents under {root}/workflows, {root}/rubrics and
// {root}/executions. A single mutex per Persistence serializes writers so that
// slug uniqueness and compare-and-swap updates hold within one process.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/agendaflow/pkg/persistence"
)

const (
	workflowsDir  = "workflows"
	rubricsDir    = "rubrics"
	executionsDir = "executions"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	rubricRepo    *RubricRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	store := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		root:          store.root,
		workflowRepo:  &WorkflowRepository{store: store},
		rubricRepo:    &RubricRepository{store: store},
		executionRepo: &ExecutionRepository{store: store},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) RubricRepository() persistence.RubricRepository {
	return fp.rubricRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

// store is the JSON document layer shared by the repositories.
type store struct {
	root string
	mu   sync.Mutex
}

// validateID validates that the ID is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return errors.New("ID cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return errors.New("ID contains invalid characters")
	}

	return nil
}

// read decodes {root}/{dir}/{id}.json into target and reports whether it exists.
func (s *store) read(dir, id string, target any) (bool, error) {
	if err := validateID(id); err != nil {
		return false, fmt.Errorf("invalid ID: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(s.root, dir, id+".json")) // #nosec G304 -- ID is validated
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return true, nil
}

// write replaces the document through a rename so readers never see a partial file.
func (s *store) write(dir, id string, value any) error {
	if err := validateID(id); err != nil {
		return fmt.Errorf("invalid ID: %w", err)
	}

	target := filepath.Join(s.root, dir)

	if err := os.MkdirAll(target, 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	tmp, err := os.CreateTemp(target, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(target, id+".json")); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	return nil
}

// list decodes every document in dir, calling decode with the raw bytes.
func (s *store) list(dir string, decode func(data []byte) error) error {
	root := os.DirFS(filepath.Join(s.root, dir))

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	for _, name := range files {
		data, err := fs.ReadFile(root, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("failed to read %s/%s: %w", dir, name, err)
		}

		if err := decode(data); err != nil {
			return fmt.Errorf("failed to unmarshal %s/%s: %w", dir, name, err)
		}
	}

	return nil
}
