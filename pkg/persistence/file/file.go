// Package file provides file-based persistence for rules, subjects and the execution ledger.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/cadence/pkg/persistence"
)

const (
	rulesDir      = "rules"
	statusesDir   = "statuses"
	subjectsDir   = "subjects"
	subRecordsDir = "sub_records"
	tasksDir      = "tasks"
)

var errExists = errors.New("file already exists")

// Persistence implements persistence.Persistence with one JSON file per record, grouped
// in a directory per collection. Every call reads from disk, so several processes can
// share a data directory.
type Persistence struct {
	root string

	// mu serialises read-modify-write updates of a subject within this process.
	mu sync.Mutex
}

// NewPersistence creates a file persistence rooted at root (a "file://" prefix is accepted).
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{rulesDir, statusesDir, subjectsDir, subRecordsDir, tasksDir} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

func (fp *Persistence) RuleRepository() persistence.RuleRepository           { return &ruleRepository{fp} }
func (fp *Persistence) StatusRepository() persistence.StatusRepository       { return &statusRepository{fp} }
func (fp *Persistence) SubjectRepository() persistence.SubjectRepository     { return &subjectRepository{fp} }
func (fp *Persistence) SubRecordRepository() persistence.SubRecordRepository { return &subRecordRepository{fp} }
func (fp *Persistence) LabelRepository() persistence.LabelRepository         { return &subjectRepository{fp} }
func (fp *Persistence) TaskRepository() persistence.TaskRepository           { return &taskRepository{fp} }

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", fp.root)
	}

	return nil
}

func (fp *Persistence) dir(collection string) string {
	return filepath.Join(fp.root, collection)
}

// fileName maps an id to a file name; ids may contain path separators.
func fileName(id, ext string) string {
	return url.PathEscape(id) + ext
}

// readFile decodes one record. A missing file reports found == false.
func readFile[T any](path string) (*T, bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is constructed from the controlled root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}

	return &item, true, nil
}

// readDir decodes every *.json record in dir.
func readDir[T any](dir string) ([]*T, error) {
	names, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", filepath.Base(dir), err)
	}

	items := make([]*T, 0, len(names))

	for _, name := range names {
		item, found, err := readFile[T](filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		// Removed between listing and reading.
		if !found {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

// writeTemp stores item in a uniquely named temp file next to its final path.
func writeTemp(dir string, item any) (string, error) {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	return tmp.Name(), nil
}

// writeFile replaces path atomically: readers see either the old or the new record.
func writeFile(path string, item any) error {
	tmp, err := writeTemp(filepath.Dir(path), item)
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}

	return nil
}

// createFile publishes item at path only if nothing is there yet. The hard link fails
// when path exists, which makes the check and the write one step across processes.
func createFile(path string, item any) error {
	tmp, err := writeTemp(filepath.Dir(path), item)
	if err != nil {
		return err
	}

	defer func() { _ = os.Remove(tmp) }()

	if err := os.Link(tmp, path); err != nil {
		if os.IsExist(err) {
			return errExists
		}

		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}

	return nil
}
