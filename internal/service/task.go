package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/policy"

	"github.com/go-playground/validator"
	"github.com/sirupsen/logrus"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 500
)

type TaskService struct {
	tasks    TaskRepository
	users    UserRepository
	validate *validator.Validate
	log      logrus.FieldLogger
	now      func() time.Time
}

type TaskOption func(*TaskService)

// WithTaskClock replaces time.Now for due-date checks and timestamps.
func WithTaskClock(now func() time.Time) TaskOption {
	return func(s *TaskService) { s.now = now }
}

func NewTaskService(tasks TaskRepository, users UserRepository, log logrus.FieldLogger, opts ...TaskOption) *TaskService {
	s := &TaskService{
		tasks:    tasks,
		users:    users,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) CreateTask(ctx context.Context, req models.TaskRequest, currentUserID string) (*models.Task, error) {
	actor, err := s.users.GetUserByID(ctx, currentUserID)
	if err != nil {
		return nil, err
	}
	if err := s.validateRequest(req, true); err != nil {
		return nil, err
	}

	priority := models.PriorityMedium
	if req.Priority != nil {
		priority = *req.Priority
	}
	if !policy.CanUsePriority(actor, priority) {
		s.forbidden(actor, "", "create urgent task")
		return nil, errors.Forbidden("only admins may create urgent tasks")
	}

	var assignee *models.UserRef
	if req.AssignedToUserID != nil {
		target, err := s.resolveAssignee(ctx, *req.AssignedToUserID)
		if err != nil {
			return nil, err
		}
		if target.ID == actor.ID {
			return nil, errors.Validation("you cannot assign a task to yourself")
		}
		if !policy.CanAssign(actor) {
			s.forbidden(actor, "", "assign task")
			return nil, errors.Forbidden("you are not allowed to assign tasks")
		}
		assignee = &models.UserRef{ID: target.ID, Username: target.Username}
	}

	status := models.StatusPending
	if req.Status != nil {
		status = *req.Status
	}
	description := ""
	if req.Description != nil {
		description = strings.TrimSpace(*req.Description)
	}
	now := s.now().UTC()
	task := &models.Task{
		Title:       strings.TrimSpace(*req.Title),
		Description: description,
		Status:      status,
		Priority:    priority,
		CreatedBy:   models.UserRef{ID: actor.ID, Username: actor.Username},
		AssignedTo:  assignee,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask applies the non-nil fields of req. Unlike CreateTask it does not
// reject assigning the task to its creator.
func (s *TaskService) UpdateTask(ctx context.Context, taskID string, req models.TaskRequest, currentUserID string) (*models.Task, error) {
	task, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	actor, err := s.users.GetUserByID(ctx, currentUserID)
	if err != nil {
		return nil, err
	}
	if !policy.CanUpdate(task, actor) {
		s.forbidden(actor, task.ID, "update task")
		return nil, errors.Forbidden("you are not allowed to update this task")
	}
	if err := s.validateRequest(req, false); err != nil {
		return nil, err
	}
	if req.Status != nil && !policy.CanChangeStatus(task, actor, *req.Status) {
		s.forbidden(actor, task.ID, "change status")
		return nil, errors.Forbidden("you are not allowed to change the status of this task")
	}
	if req.AssignedToUserID != nil {
		// TODO: decide whether assigning a task to its creator should be
		// rejected here the same way CreateTask rejects it.
		target, err := s.resolveAssignee(ctx, *req.AssignedToUserID)
		if err != nil {
			return nil, err
		}
		if !policy.CanAssign(actor) {
			s.forbidden(actor, task.ID, "assign task")
			return nil, errors.Forbidden("you are not allowed to assign tasks")
		}
		task.AssignedTo = &models.UserRef{ID: target.ID, Username: target.Username}
	}

	if req.Title != nil {
		task.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		task.Description = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	}
	task.UpdatedAt = s.now().UTC()

	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, taskID, currentUserID string) (bool, error) {
	task, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		return false, err
	}
	actor, err := s.users.GetUserByID(ctx, currentUserID)
	if err != nil {
		return false, err
	}
	if !policy.CanDelete(task, actor) {
		s.forbidden(actor, task.ID, "delete task")
		return false, errors.Forbidden("you are not allowed to delete this task")
	}
	if err := s.tasks.DeleteTask(ctx, task.ID); err != nil {
		return false, err
	}
	s.log.WithFields(logrus.Fields{"user_id": actor.ID, "task_id": task.ID}).Info("task deleted")
	return true, nil
}

func (s *TaskService) GetTaskByID(ctx context.Context, taskID, currentUserID string) (*models.Task, error) {
	task, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	actor, err := s.users.GetUserByID(ctx, currentUserID)
	if err != nil {
		return nil, err
	}
	if !policy.CanView(task, actor) {
		s.forbidden(actor, task.ID, "view task")
		return nil, errors.Forbidden("you are not allowed to view this task")
	}
	return task, nil
}

// GetUserTasks lists the tasks the user created or is assigned to.
func (s *TaskService) GetUserTasks(ctx context.Context, currentUserID string) ([]models.Task, error) {
	return s.tasks.ListTasks(ctx, models.TaskFilter{ParticipantID: currentUserID})
}

func (s *TaskService) GetAllTasks(ctx context.Context, currentUserID string) ([]models.Task, error) {
	actor, err := s.users.GetUserByID(ctx, currentUserID)
	if err != nil {
		return nil, err
	}
	if !policy.Allows(actor.Role, policy.ListAllTasks) {
		s.forbidden(actor, "", "list all tasks")
		return nil, errors.Forbidden("you are not allowed to list all tasks")
	}
	return s.tasks.ListTasks(ctx, models.TaskFilter{})
}

func (s *TaskService) SearchTasks(ctx context.Context, req models.TaskSearchRequest, currentUserID string) (*models.Page[models.Task], error) {
	actor, err := s.users.GetUserByID(ctx, currentUserID)
	if err != nil {
		return nil, err
	}
	page, err := normalizePage(req.PageRequest)
	if err != nil {
		return nil, err
	}

	filter := models.TaskFilter{Title: strings.TrimSpace(req.Title)}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, errors.Validation("unknown status %q", *req.Status)
		}
		filter.Status = *req.Status
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, errors.Validation("unknown priority %q", *req.Priority)
		}
		filter.Priority = *req.Priority
	}
	if !policy.SeesAllTasks(actor) {
		filter.ParticipantID = actor.ID
	}

	items, total, err := s.tasks.SearchTasks(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	return models.NewPage(items, page, total), nil
}

func (s *TaskService) GetUserTasksPaginated(ctx context.Context, currentUserID string, page, size int) (*models.Page[models.Task], error) {
	pr, err := normalizePage(models.PageRequest{Page: page, Size: size})
	if err != nil {
		return nil, err
	}
	items, total, err := s.tasks.SearchTasks(ctx, models.TaskFilter{ParticipantID: currentUserID}, pr)
	if err != nil {
		return nil, err
	}
	return models.NewPage(items, pr, total), nil
}

// QuickSearch matches term against title or description. An empty term
// matches every task in the caller's scope.
func (s *TaskService) QuickSearch(ctx context.Context, term, currentUserID string) ([]models.Task, error) {
	term = strings.TrimSpace(term)
	actor, err := s.users.GetUserByID(ctx, currentUserID)
	if err != nil {
		return nil, err
	}
	filter := models.TaskFilter{Term: term}
	if !policy.SeesAllTasks(actor) {
		filter.ParticipantID = actor.ID
	}
	return s.tasks.ListTasks(ctx, filter)
}

// GetTaskStatistics counts the caller's own tasks by status and priority.
// Every status and priority is present in the result, zero or not.
func (s *TaskService) GetTaskStatistics(ctx context.Context, currentUserID string) (*models.TaskStatistics, error) {
	tasks, err := s.GetUserTasks(ctx, currentUserID)
	if err != nil {
		return nil, err
	}
	stats := &models.TaskStatistics{
		StatusCounts:   make(map[models.TaskStatus]int64, len(models.AllStatuses)),
		PriorityCounts: make(map[models.TaskPriority]int64, len(models.AllPriorities)),
	}
	for _, st := range models.AllStatuses {
		stats.StatusCounts[st] = 0
	}
	for _, p := range models.AllPriorities {
		stats.PriorityCounts[p] = 0
	}
	for _, t := range tasks {
		stats.StatusCounts[t.Status]++
		stats.PriorityCounts[t.Priority]++
		stats.Total++
	}
	return stats, nil
}

func (s *TaskService) resolveAssignee(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return nil, errors.ErrAssigneeNotFound
		}
		return nil, err
	}
	return user, nil
}

// validateRequest checks field shape. With requireTitle false a nil title is
// accepted, which is what partial updates need.
func (s *TaskService) validateRequest(req models.TaskRequest, requireTitle bool) error {
	if req.Title != nil || requireTitle {
		title := ""
		if req.Title != nil {
			title = strings.TrimSpace(*req.Title)
		}
		if title == "" {
			return errors.Validation("title must not be empty")
		}
		if s.validate.Var(title, fmt.Sprintf("max=%d", maxTitleLen)) != nil {
			return errors.Validation("title must not exceed %d characters", maxTitleLen)
		}
	}
	if req.Description != nil && s.validate.Var(strings.TrimSpace(*req.Description), fmt.Sprintf("max=%d", maxDescriptionLen)) != nil {
		return errors.Validation("description must not exceed %d characters", maxDescriptionLen)
	}
	if req.Status != nil && !req.Status.Valid() {
		return errors.Validation("unknown status %q", *req.Status)
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return errors.Validation("unknown priority %q", *req.Priority)
	}
	if req.DueDate != nil && req.DueDate.Before(s.now()) {
		return errors.Validation("due date must not be in the past")
	}
	return nil
}

func (s *TaskService) forbidden(actor *models.User, taskID, action string) {
	s.log.WithFields(logrus.Fields{
		"user_id": actor.ID,
		"role":    actor.Role,
		"task_id": taskID,
		"action":  action,
	}).Warn("forbidden task operation")
}

// normalizePage fills defaults and maps the sort field to its column name.
func normalizePage(p models.PageRequest) (models.PageRequest, error) {
	if p.Page < 0 {
		return p, errors.Validation("page must not be negative")
	}
	if p.Size == 0 {
		p.Size = models.DefaultPageSize
	}
	if p.Size < 0 || p.Size > models.MaxPageSize {
		return p, errors.Validation("size must be between 1 and %d", models.MaxPageSize)
	}

	if p.SortBy == "" {
		p.SortBy = models.DefaultSortBy
	}
	column, ok := models.TaskSortFields[p.SortBy]
	if !ok {
		return p, errors.Validation("cannot sort by %q", p.SortBy)
	}
	p.SortBy = column

	switch models.SortDirection(strings.ToLower(string(p.SortDirection))) {
	case "", models.SortDesc:
		p.SortDirection = models.SortDesc
	case models.SortAsc:
		p.SortDirection = models.SortAsc
	default:
		return p, errors.Validation("sort direction must be asc or desc")
	}
	return p, nil
}
