package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "taskboard.com/taskboard/internal/errors"
	"taskboard.com/taskboard/pkg/constants"
	model "taskboard.com/taskboard/pkg/models"
)

type TaskRepository struct {
	db *gorm.DB
}

// ListOptions filters the top-level task listing. Zero values are not applied.
type ListOptions struct {
	Page     int
	Limit    int
	Status   constants.TaskStatus
	Assignee int64
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) CreateTask(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return err
	}
	return r.loadUser(ctx, task)
}

func (r *TaskRepository) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Preload("User").First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// ListTopLevel returns one page of tasks without a parent, oldest first,
// and the total number of matching tasks.
func (r *TaskRepository) ListTopLevel(ctx context.Context, opts ListOptions) ([]model.Task, int64, error) {
	if opts.Limit <= 0 {
		return nil, 0, apperrors.ErrInvalidLimit
	}
	if opts.Page <= 0 {
		return nil, 0, apperrors.ErrInvalidPage
	}

	query := r.db.WithContext(ctx).Model(&model.Task{}).Where("parent_id IS NULL")
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	if opts.Assignee > 0 {
		query = query.Where("assignee_id = ?", opts.Assignee)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tasks []model.Task
	err := query.Preload("User").
		Order("created_at asc, id asc").
		Offset((opts.Page - 1) * opts.Limit).
		Limit(opts.Limit).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// ListChildren returns the subtasks of the given parents, oldest first.
func (r *TaskRepository) ListChildren(ctx context.Context, parentIDs []int64) ([]model.Task, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var tasks []model.Task
	err := r.db.WithContext(ctx).Preload("User").
		Where("parent_id IN ?", parentIDs).
		Order("created_at asc, id asc").
		Find(&tasks).Error
	return tasks, err
}

// CountChildren reports how many subtasks a task has.
func (r *TaskRepository) CountChildren(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).Where("parent_id = ?", id).Count(&count).Error
	return count, err
}

// Update writes the given columns and returns the stored task.
func (r *TaskRepository) Update(ctx context.Context, id int64, fields map[string]interface{}) (*model.Task, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", id).
		Updates(fields)

	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		return nil, apperrors.ErrTaskNotFound
	}

	return r.FindByID(ctx, id)
}

// Delete removes a task together with its subtasks.
func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_id = ?", id).Delete(&model.Task{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Task{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrTaskNotFound
		}
		return nil
	})
}

func (r *TaskRepository) loadUser(ctx context.Context, task *model.Task) error {
	if task.AssigneeID == nil {
		task.User = nil
		return nil
	}
	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", *task.AssigneeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			task.User = nil
			return nil
		}
		return err
	}
	task.User = &user
	return nil
}
