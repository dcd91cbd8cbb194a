package repository

import (
	"context"
	"errors"
	"testing"

	apperrors "taskboard.com/taskboard/internal/errors"
	"taskboard.com/taskboard/internal/testutil"
	"taskboard.com/taskboard/pkg/constants"
	model "taskboard.com/taskboard/pkg/models"
)

func TestTaskRepository_CreateAndFind(t *testing.T) {
	db := testutil.NewTestDB(t)
	users := NewUserRepository(db)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	if _, err := users.Seed(ctx, DefaultUsers()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	assignee := int64(1)
	task := &model.Task{Title: "Write docs", Status: constants.StatusToDo, AssigneeID: &assignee}
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID == 0 {
		t.Fatal("expected task ID to be set")
	}
	if task.User == nil || task.User.DisplayName() != "Ada Lovelace" {
		t.Errorf("expected assignee to be loaded, got %+v", task.User)
	}

	found, err := repo.FindByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Title != "Write docs" || found.AssigneeLabel() != "Ada Lovelace" {
		t.Errorf("unexpected task %+v", found)
	}

	if _, err := repo.FindByID(ctx, 999); !errors.Is(err, apperrors.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestTaskRepository_ListTopLevelFiltersAndPages(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	var parents []*model.Task
	for _, status := range []constants.TaskStatus{constants.StatusToDo, constants.StatusCompleted, constants.StatusToDo} {
		task := &model.Task{Title: "Parent " + string(status), Status: status}
		if err := repo.CreateTask(ctx, task); err != nil {
			t.Fatal(err)
		}
		parents = append(parents, task)
	}
	child := &model.Task{Title: "Child", Status: constants.StatusToDo, ParentID: &parents[0].ID}
	if err := repo.CreateTask(ctx, child); err != nil {
		t.Fatal(err)
	}

	tasks, total, err := repo.ListTopLevel(ctx, ListOptions{Page: 1, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(tasks) != 2 {
		t.Fatalf("expected 2 of 3 top-level tasks, got %d of %d", len(tasks), total)
	}
	if tasks[0].ID != parents[0].ID {
		t.Errorf("expected oldest first, got %d", tasks[0].ID)
	}

	tasks, total, err = repo.ListTopLevel(ctx, ListOptions{Page: 2, Limit: 2})
	if err != nil || total != 3 || len(tasks) != 1 {
		t.Fatalf("unexpected second page: %d tasks, total %d, err %v", len(tasks), total, err)
	}

	tasks, total, err = repo.ListTopLevel(ctx, ListOptions{Page: 1, Limit: 10, Status: constants.StatusCompleted})
	if err != nil || total != 1 || tasks[0].ID != parents[1].ID {
		t.Fatalf("unexpected status filter result: %+v total %d err %v", tasks, total, err)
	}

	if _, _, err := repo.ListTopLevel(ctx, ListOptions{Page: 1, Limit: 0}); !errors.Is(err, apperrors.ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}

	children, err := repo.ListChildren(ctx, []int64{parents[0].ID, parents[1].ID})
	if err != nil || len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("unexpected children %+v err %v", children, err)
	}
}

func TestTaskRepository_UpdateWritesNulls(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	desc := "details"
	task := &model.Task{Title: "Original", Description: &desc, Status: constants.StatusToDo}
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	updated, err := repo.Update(ctx, task.ID, map[string]interface{}{
		"title":       "Renamed",
		"description": nil,
		"status":      constants.StatusInProgress,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Renamed" || updated.Description != nil || updated.Status != constants.StatusInProgress {
		t.Errorf("unexpected task after update %+v", updated)
	}

	if _, err := repo.Update(ctx, 999, map[string]interface{}{"title": "x"}); !errors.Is(err, apperrors.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestTaskRepository_DeleteCascadesToSubtasks(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	parent := &model.Task{Title: "Parent", Status: constants.StatusToDo}
	repo.CreateTask(ctx, parent)
	for i := 0; i < 2; i++ {
		repo.CreateTask(ctx, &model.Task{Title: "Child", Status: constants.StatusToDo, ParentID: &parent.ID})
	}
	other := &model.Task{Title: "Other", Status: constants.StatusToDo}
	repo.CreateTask(ctx, other)

	if err := repo.Delete(ctx, parent.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := repo.CountChildren(ctx, parent.ID); n != 0 {
		t.Errorf("expected subtasks removed, %d left", n)
	}
	if _, err := repo.FindByID(ctx, other.ID); err != nil {
		t.Errorf("unrelated task should survive: %v", err)
	}
	if err := repo.Delete(ctx, parent.ID); !errors.Is(err, apperrors.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound on second delete, got %v", err)
	}
}

func TestUserRepository_SeedOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	n, err := users.Seed(ctx, DefaultUsers())
	if err != nil || n != len(DefaultUsers()) {
		t.Fatalf("first seed: n=%d err=%v", n, err)
	}
	n, err = users.Seed(ctx, DefaultUsers())
	if err != nil || n != 0 {
		t.Fatalf("second seed should be a no-op: n=%d err=%v", n, err)
	}

	list, err := users.List(ctx)
	if err != nil || len(list) != len(DefaultUsers()) {
		t.Fatalf("unexpected users %+v err %v", list, err)
	}
	if ok, _ := users.Exists(ctx, list[0].ID); !ok {
		t.Error("expected seeded user to exist")
	}
	if ok, _ := users.Exists(ctx, 999); ok {
		t.Error("expected unknown user to be missing")
	}
}
