// Package file provides file-based persistence for approval chains, requests, actions and rules.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/approvals/pkg/persistence"
	"github.com/google/uuid"
)

const (
	chainsDir   = "chains"
	requestsDir = "requests"
	actionsDir  = "actions"
	rulesDir    = "rules"
)

var errInvalidID = errors.New("invalid identifier")

// Persistence implements the persistence.Persistence interface using the file system.
// Every entity is a JSON document under root; one lock serializes writers so that
// request version checks are atomic within the process.
type Persistence struct {
	store *store

	chainRepo   *ChainRepository
	requestRepo *RequestRepository
	actionRepo  *ActionRepository
	ruleRepo    *RuleRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	s := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		store:       s,
		chainRepo:   &ChainRepository{store: s},
		requestRepo: &RequestRepository{store: s},
		actionRepo:  &ActionRepository{store: s},
		ruleRepo:    &RuleRepository{store: s},
	}
}

func (fp *Persistence) ChainRepository() persistence.ChainRepository {
	return fp.chainRepo
}

func (fp *Persistence) RequestRepository() persistence.RequestRepository {
	return fp.requestRepo
}

func (fp *Persistence) ActionRepository() persistence.ActionRepository {
	return fp.actionRepo
}

func (fp *Persistence) RuleRepository() persistence.RuleRepository {
	return fp.ruleRepo
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck creates the root directory if needed and verifies it is a directory.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(fp.store.root, 0750)
	if err != nil {
		return fmt.Errorf("failed to create persistence root: %w", err)
	}

	info, err := os.Stat(fp.store.root)
	if err != nil {
		return fmt.Errorf("failed to stat persistence root: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("persistence root %s is not a directory", fp.store.root)
	}

	return nil
}

type store struct {
	root string
	mu   sync.RWMutex
}

func (s *store) filePath(dir, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", errInvalidID, id)
	}

	return filepath.Clean(path.Join(s.root, dir, id+".json")), nil
}

// read decodes the document into v, returning an error wrapping fs.ErrNotExist when absent.
func (s *store) read(dir, id string, v any) error {
	filePath, err := s.filePath(dir, id)
	if err != nil {
		return fmt.Errorf("%w: %w", fs.ErrNotExist, err)
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	err = json.Unmarshal(body, v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return nil
}

// write replaces the document atomically through a temporary file.
func (s *store) write(dir, id string, v any) error {
	filePath, err := s.filePath(dir, id)
	if err != nil {
		return err
	}

	err = os.MkdirAll(path.Join(s.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	tmp := filePath + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	err = os.Rename(tmp, filePath)
	if err != nil {
		return fmt.Errorf("failed to replace %s/%s: %w", dir, id, err)
	}

	return nil
}

// ids lists the identifiers stored under dir.
func (s *store) ids(dir string) ([]string, error) {
	root := os.DirFS(path.Join(s.root, dir))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}

	return id.String(), nil
}
