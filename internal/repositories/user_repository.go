package repository

import (
	"context"

	"gorm.io/gorm"

	model "taskboard.com/taskboard/pkg/models"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).Order("id asc").Find(&users).Error
	return users, err
}

func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// Seed inserts users when the table is empty and reports how many were added.
func (r *UserRepository) Seed(ctx context.Context, users []model.User) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 || len(users) == 0 {
		return 0, nil
	}
	if err := r.db.WithContext(ctx).Create(&users).Error; err != nil {
		return 0, err
	}
	return len(users), nil
}

// DefaultUsers are seeded on the first start of the task service.
func DefaultUsers() []model.User {
	active := true
	return []model.User{
		{Firstname: "Ada", Lastname: "Lovelace", Active: &active},
		{Firstname: "Alan", Lastname: "Turing", Active: &active},
		{Firstname: "Grace", Lastname: "Hopper", Active: &active},
		{Firstname: "Edsger", Lastname: "Dijkstra", Active: &active},
	}
}
