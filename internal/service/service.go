// Package service is the business core: user account rules and the task
// authorization and query logic. It talks to storage only through the
// repository interfaces below.
package service

import (
	"context"

	"taskmanager/internal/domain/models"
)

// UserRepository is the credential store. Lookups of absent records return
// errors.ErrUserNotFound or errors.ErrProfileNotFound; a duplicate username
// returns errors.ErrUserAlreadyExists.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id string) error

	GetUserDetails(ctx context.Context, userID string) (*models.UserDetails, error)
	SaveUserDetails(ctx context.Context, details *models.UserDetails) error
	DeleteUserDetails(ctx context.Context, userID string) error
}

// TaskRepository is the task store. Absent tasks yield errors.ErrTaskNotFound.
// page.SortBy is always a column name from models.TaskSortFields.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTaskByID(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	SearchTasks(ctx context.Context, filter models.TaskFilter, page models.PageRequest) ([]models.Task, int64, error)
}
