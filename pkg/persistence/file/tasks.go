package file

import (
	"context"
	"errors"
	"path/filepath"
	"sort"

	"github.com/dukex/cadence/pkg/models"
)

type taskRepository struct {
	fp *Persistence
}

func (r *taskRepository) CreateTask(_ context.Context, task *models.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("task ID cannot be empty")
	}

	err := createFile(filepath.Join(r.fp.dir(tasksDir), fileName(task.ID, ".json")), task)
	if errors.Is(err, errExists) {
		return errors.New("task already exists: " + task.ID)
	}

	return err
}

func (r *taskRepository) TasksBySubject(_ context.Context, subjectID string) ([]*models.Task, error) {
	all, err := readDir[models.Task](r.fp.dir(tasksDir))
	if err != nil {
		return nil, err
	}

	var tasks []*models.Task

	for _, task := range all {
		if task.SubjectID == subjectID {
			tasks = append(tasks, task)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}

		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}
