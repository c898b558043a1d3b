package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"

	"github.com/google/uuid"
)

// Storage keeps users, profiles and tasks in maps. Task records hold only
// user ids; usernames are resolved on read so renames show up everywhere.
type Storage struct {
	mu      sync.RWMutex
	users   map[string]models.User
	details map[string]models.UserDetails
	tasks   map[string]models.Task
}

func NewStorage() *Storage {
	return &Storage{
		users:   make(map[string]models.User),
		details: make(map[string]models.UserDetails),
		tasks:   make(map[string]models.Task),
	}
}

func (s *Storage) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.users[id]
	if !exists {
		return nil, errors.ErrUserNotFound
	}
	return &user, nil
}

func (s *Storage) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Username == username {
			return &user, nil
		}
	}
	return nil, errors.ErrUserNotFound
}

func (s *Storage) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Storage) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usernameTaken(user.Username, "") {
		return errors.ErrUserAlreadyExists
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Storage) UpdateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; !exists {
		return errors.ErrUserNotFound
	}
	if s.usernameTaken(user.Username, user.ID) {
		return errors.ErrUserAlreadyExists
	}
	s.users[user.ID] = *user
	return nil
}

// DeleteUser mirrors the schema's foreign keys: the user's details and
// created tasks go, tasks assigned to the user become unassigned.
func (s *Storage) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[id]; !exists {
		return errors.ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.details, id)
	for taskID, t := range s.tasks {
		switch {
		case t.CreatedBy.ID == id:
			delete(s.tasks, taskID)
		case t.AssignedTo != nil && t.AssignedTo.ID == id:
			t.AssignedTo = nil
			s.tasks[taskID] = t
		}
	}
	return nil
}

func (s *Storage) GetUserDetails(_ context.Context, userID string) (*models.UserDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, exists := s.details[userID]
	if !exists {
		return nil, errors.ErrProfileNotFound
	}
	return &d, nil
}

func (s *Storage) SaveUserDetails(_ context.Context, details *models.UserDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[details.UserID]; !exists {
		return errors.ErrUserNotFound
	}
	s.details[details.UserID] = *details
	return nil
}

func (s *Storage) DeleteUserDetails(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.details[userID]; !exists {
		return errors.ErrProfileNotFound
	}
	delete(s.details, userID)
	return nil
}

func (s *Storage) CreateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[task.CreatedBy.ID]; !exists {
		return errors.ErrUserNotFound
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	s.tasks[task.ID] = copyTask(*task)
	return nil
}

func (s *Storage) GetTaskByID(_ context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, exists := s.tasks[id]
	if !exists {
		return nil, errors.ErrTaskNotFound
	}
	resolved := s.resolve(task)
	return &resolved, nil
}

func (s *Storage) UpdateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; !exists {
		return errors.ErrTaskNotFound
	}
	s.tasks[task.ID] = copyTask(*task)
	return nil
}

func (s *Storage) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[id]; !exists {
		return errors.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// ListTasks returns matching tasks, newest first.
func (s *Storage) ListTasks(_ context.Context, filter models.TaskFilter) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := s.filter(filter)
	sortTasks(tasks, "created_at", models.SortDesc)
	return tasks, nil
}

func (s *Storage) SearchTasks(_ context.Context, filter models.TaskFilter, page models.PageRequest) ([]models.Task, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := s.filter(filter)
	sortTasks(tasks, page.SortBy, page.SortDirection)

	total := int64(len(tasks))
	start := page.Page * page.Size
	if page.Size <= 0 || start >= len(tasks) {
		return []models.Task{}, total, nil
	}
	end := start + page.Size
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[start:end], total, nil
}

func (s *Storage) filter(f models.TaskFilter) []models.Task {
	title := strings.ToLower(f.Title)
	term := strings.ToLower(f.Term)
	tasks := make([]models.Task, 0)
	for _, t := range s.tasks {
		if f.ParticipantID != "" && !t.IsCreator(f.ParticipantID) && !t.IsAssignee(f.ParticipantID) {
			continue
		}
		if title != "" && !strings.Contains(strings.ToLower(t.Title), title) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Title), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			continue
		}
		tasks = append(tasks, s.resolve(t))
	}
	return tasks
}

// resolve fills usernames from the current user records.
func (s *Storage) resolve(t models.Task) models.Task {
	t = copyTask(t)
	if u, ok := s.users[t.CreatedBy.ID]; ok {
		t.CreatedBy.Username = u.Username
	}
	if t.AssignedTo != nil {
		if u, ok := s.users[t.AssignedTo.ID]; ok {
			t.AssignedTo.Username = u.Username
		}
	}
	return t
}

func (s *Storage) usernameTaken(username, exceptID string) bool {
	for id, u := range s.users {
		if id != exceptID && u.Username == username {
			return true
		}
	}
	return false
}

func copyTask(t models.Task) models.Task {
	if t.AssignedTo != nil {
		a := *t.AssignedTo
		t.AssignedTo = &a
	}
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

// sortTasks orders by column in dir, puts missing due dates last in either
// direction and breaks ties on ID so pages are stable.
func sortTasks(tasks []models.Task, column string, dir models.SortDirection) {
	cmp := func(a, b *models.Task) int {
		switch column {
		case "title":
			return strings.Compare(a.Title, b.Title)
		case "status":
			return strings.Compare(string(a.Status), string(b.Status))
		case "priority":
			return strings.Compare(string(a.Priority), string(b.Priority))
		case "updated_at":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case "due_date":
			return a.DueDate.Compare(*b.DueDate)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		a, b := &tasks[i], &tasks[j]
		if column == "due_date" && (a.DueDate == nil || b.DueDate == nil) {
			if a.DueDate == nil && b.DueDate == nil {
				return a.ID < b.ID
			}
			return b.DueDate == nil
		}
		c := cmp(a, b)
		if dir != models.SortAsc {
			c = -c
		}
		if c == 0 {
			return a.ID < b.ID
		}
		return c < 0
	})
}
