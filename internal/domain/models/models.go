package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser    Role = "ROLE_USER"
	RoleManager Role = "ROLE_MANAGER"
	RoleAdmin   Role = "ROLE_ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// ParseRole accepts both "ADMIN" and "ROLE_ADMIN", case-insensitively.
func ParseRole(s string) (Role, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "ROLE_") {
		s = "ROLE_" + s
	}
	r := Role(s)
	return r, r.Valid()
}

type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusCancelled  TaskStatus = "CANCELLED"
)

var AllStatuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

func (s TaskStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (TaskStatus, bool) {
	st := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

var AllPriorities = []TaskPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p TaskPriority) Valid() bool {
	for _, v := range AllPriorities {
		if p == v {
			return true
		}
	}
	return false
}

func ParsePriority(s string) (TaskPriority, bool) {
	p := TaskPriority(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.Valid()
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type UserDetails struct {
	UserID      string     `json:"user_id"`
	Address     *string    `json:"address,omitempty"`
	PhoneNumber *string    `json:"phone_number,omitempty"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
}

// UserRef is the slice of a user embedded in task responses.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	CreatedBy   UserRef      `json:"created_by"`
	AssignedTo  *UserRef     `json:"assigned_to,omitempty"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsCreator and IsAssignee compare by id only.
func (t *Task) IsCreator(userID string) bool {
	return t.CreatedBy.ID == userID
}

func (t *Task) IsAssignee(userID string) bool {
	return t.AssignedTo != nil && t.AssignedTo.ID == userID
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=100"`
	Role     string `json:"role"`
}

type UpdateUserRequest struct {
	Username string `json:"username" validate:"omitempty,min=3,max=50"`
	Password string `json:"password" validate:"omitempty,min=6,max=100"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=100"`
}

type ChangeUsernameRequest struct {
	NewUsername string `json:"new_username" validate:"required,min=3,max=50"`
}

// ProfileUpdate is a patch: nil fields leave stored values untouched.
type ProfileUpdate struct {
	Address     *string    `json:"address"`
	PhoneNumber *string    `json:"phone_number"`
	BirthDate   *time.Time `json:"birth_date"`
}

// TaskRequest is used for both create and update. On update only non-nil
// fields are applied.
type TaskRequest struct {
	Title            *string       `json:"title"`
	Description      *string       `json:"description"`
	Status           *TaskStatus   `json:"status"`
	Priority         *TaskPriority `json:"priority"`
	AssignedToUserID *string       `json:"assigned_to_user_id"`
	DueDate          *time.Time    `json:"due_date"`
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sortable task fields mapped to their storage column names.
var TaskSortFields = map[string]string{
	"createdAt":  "created_at",
	"created_at": "created_at",
	"updatedAt":  "updated_at",
	"updated_at": "updated_at",
	"dueDate":    "due_date",
	"due_date":   "due_date",
	"title":      "title",
	"status":     "status",
	"priority":   "priority",
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	DefaultSortBy   = "created_at"
)

type PageRequest struct {
	Page          int
	Size          int
	SortBy        string
	SortDirection SortDirection
}

type TaskSearchRequest struct {
	Title    string
	Status   *TaskStatus
	Priority *TaskPriority
	PageRequest
}

// TaskFilter is what the task store understands. An empty ParticipantID
// means no visibility scope.
type TaskFilter struct {
	ParticipantID string
	Title         string
	Status        TaskStatus
	Priority      TaskPriority
	Term          string
}

type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

func NewPage[T any](items []T, req PageRequest, total int64) *Page[T] {
	if items == nil {
		items = make([]T, 0)
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return &Page[T]{
		Items:      items,
		Page:       req.Page,
		Size:       req.Size,
		TotalItems: total,
		TotalPages: pages,
	}
}

type TaskStatistics struct {
	StatusCounts   map[TaskStatus]int64   `json:"status_counts"`
	PriorityCounts map[TaskPriority]int64 `json:"priority_counts"`
	Total          int64                  `json:"total"`
}
