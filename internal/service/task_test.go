package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/logging"
	storage "taskmanager/repository/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) CreateTask(ctx context.Context, task *models.Task) error {
	return m.Called(ctx, task).Error(0)
}

func (m *MockTaskRepository) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) UpdateTask(ctx context.Context, task *models.Task) error {
	return m.Called(ctx, task).Error(0)
}

func (m *MockTaskRepository) DeleteTask(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTaskRepository) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *MockTaskRepository) SearchTasks(ctx context.Context, filter models.TaskFilter, page models.PageRequest) ([]models.Task, int64, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Task), args.Get(1).(int64), args.Error(2)
}

type fixture struct {
	users *UserService
	tasks *TaskService
	store *storage.Storage

	admin   *models.User
	manager *models.User
	alice   *models.User
	bob     *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewStorage()
	f := &fixture{
		users: newUserService(store),
		tasks: NewTaskService(store, store, logging.Discard()),
		store: store,
	}
	f.admin = mustRegister(t, f.users, "root", models.RoleAdmin)
	f.manager = mustRegister(t, f.users, "boss", models.RoleManager)
	f.alice = mustRegister(t, f.users, "alice", models.RoleUser)
	f.bob = mustRegister(t, f.users, "bob", models.RoleUser)
	return f
}

func (f *fixture) create(t *testing.T, actor *models.User, req models.TaskRequest) *models.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(context.Background(), req, actor.ID)
	require.NoError(t, err)
	return task
}

func titled(title string) models.TaskRequest {
	return models.TaskRequest{Title: &title}
}

func statusPtr(s models.TaskStatus) *models.TaskStatus       { return &s }
func priorityPtr(p models.TaskPriority) *models.TaskPriority { return &p }

func TestTaskService_CreateTaskDefaults(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, f.alice, titled("  Write report  "))

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "Write report", task.Title)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, f.alice.ID, task.CreatedBy.ID)
	assert.Equal(t, "alice", task.CreatedBy.Username)
	assert.Nil(t, task.AssignedTo)
	assert.False(t, task.CreatedAt.IsZero())
}

func TestTaskService_CreateTaskKeepsSuppliedStatus(t *testing.T) {
	f := newFixture(t)
	req := titled("Already going")
	req.Status = statusPtr(models.StatusInProgress)

	task := f.create(t, f.alice, req)
	assert.Equal(t, models.StatusInProgress, task.Status)
}

func TestTaskService_CreateTaskRules(t *testing.T) {
	f := newFixture(t)
	future := time.Now().Add(72 * time.Hour)
	past := time.Now().Add(-72 * time.Hour)

	tests := []struct {
		name  string
		actor func() *models.User
		req   func() models.TaskRequest
		want  struct {
			err  error
			kind errors.Kind
		}
	}{
		{
			name:  "urgent by user",
			actor: func() *models.User { return f.alice },
			req: func() models.TaskRequest {
				r := titled("Fire")
				r.Priority = priorityPtr(models.PriorityUrgent)
				return r
			},
			want: struct {
				err  error
				kind errors.Kind
			}{kind: errors.KindForbidden},
		},
		{
			name:  "urgent by manager",
			actor: func() *models.User { return f.manager },
			req: func() models.TaskRequest {
				r := titled("Fire")
				r.Priority = priorityPtr(models.PriorityUrgent)
				return r
			},
			want: struct {
				err  error
				kind errors.Kind
			}{kind: errors.KindForbidden},
		},
		{
			name:  "self assignment",
			actor: func() *models.User { return f.manager },
			req: func() models.TaskRequest {
				r := titled("Mine")
				r.AssignedToUserID = &f.manager.ID
				return r
			},
			want: struct {
				err  error
				kind errors.Kind
			}{kind: errors.KindValidation},
		},
		{
			name:  "user may not assign",
			actor: func() *models.User { return f.alice },
			req: func() models.TaskRequest {
				r := titled("For bob")
				r.AssignedToUserID = &f.bob.ID
				return r
			},
			want: struct {
				err  error
				kind errors.Kind
			}{kind: errors.KindForbidden},
		},
		{
			name:  "unknown assignee",
			actor: func() *models.User { return f.manager },
			req: func() models.TaskRequest {
				r := titled("For ghost")
				r.AssignedToUserID = strPtr("ghost")
				return r
			},
			want: struct {
				err  error
				kind errors.Kind
			}{err: errors.ErrAssigneeNotFound, kind: errors.KindNotFound},
		},
		{
			name:  "missing title",
			actor: func() *models.User { return f.alice },
			req:   func() models.TaskRequest { return models.TaskRequest{} },
			want: struct {
				err  error
				kind errors.Kind
			}{kind: errors.KindValidation},
		},
		{
			name:  "title too long",
			actor: func() *models.User { return f.alice },
			req:   func() models.TaskRequest { return titled(strings.Repeat("t", maxTitleLen+1)) },
			want: struct {
				err  error
				kind errors.Kind
			}{kind: errors.KindValidation},
		},
		{
			name:  "description too long",
			actor: func() *models.User { return f.alice },
			req: func() models.TaskRequest {
				r := titled("ok")
				r.Description = strPtr(strings.Repeat("d", maxDescriptionLen+1))
				return r
			},
			want: struct {
				err  error
				kind errors.Kind
			}{kind: errors.KindValidation},
		},
		{
			name:  "due date in the past",
			actor: func() *models.User { return f.alice },
			req: func() models.TaskRequest {
				r := titled("Late")
				r.DueDate = &past
				return r
			},
			want: struct {
				err  error
				kind errors.Kind
			}{kind: errors.KindValidation},
		},
		{
			name:  "unknown status",
			actor: func() *models.User { return f.alice },
			req: func() models.TaskRequest {
				r := titled("Odd")
				r.Status = statusPtr(models.TaskStatus("DONE"))
				return r
			},
			want: struct {
				err  error
				kind errors.Kind
			}{kind: errors.KindValidation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tasks.CreateTask(context.Background(), tt.req(), tt.actor().ID)
			require.Error(t, err)
			assert.Equal(t, tt.want.kind, errors.KindOf(err))
			if tt.want.err != nil {
				assert.ErrorIs(t, err, tt.want.err)
			}
		})
	}

	t.Run("urgent by admin with due date", func(t *testing.T) {
		r := titled("Fire")
		r.Priority = priorityPtr(models.PriorityUrgent)
		r.DueDate = &future
		task := f.create(t, f.admin, r)
		assert.Equal(t, models.PriorityUrgent, task.Priority)
		require.NotNil(t, task.DueDate)
	})
}

func TestTaskService_ViewScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.alice, titled("Write report"))

	got, err := f.tasks.GetTaskByID(ctx, task.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write report", got.Title)

	_, err = f.tasks.GetTaskByID(ctx, task.ID, f.bob.ID)
	assert.True(t, errors.Is(err, errors.KindForbidden))

	_, err = f.tasks.GetTaskByID(ctx, task.ID, f.admin.ID)
	assert.NoError(t, err)

	_, err = f.tasks.GetTaskByID(ctx, task.ID, f.manager.ID)
	assert.NoError(t, err)

	_, err = f.tasks.GetTaskByID(ctx, "missing", f.alice.ID)
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
}

func TestTaskService_AssigneeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := titled("Deploy")
	req.AssignedToUserID = &f.alice.ID
	task := f.create(t, f.manager, req)
	require.NotNil(t, task.AssignedTo)
	assert.Equal(t, "alice", task.AssignedTo.Username)

	updated, err := f.tasks.UpdateTask(ctx, task.ID, models.TaskRequest{Status: statusPtr(models.StatusInProgress)}, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, "Deploy", updated.Title)

	_, err = f.tasks.GetTaskByID(ctx, task.ID, f.bob.ID)
	assert.True(t, errors.Is(err, errors.KindForbidden))

	_, err = f.tasks.UpdateTask(ctx, task.ID, models.TaskRequest{Status: statusPtr(models.StatusCompleted)}, f.bob.ID)
	assert.True(t, errors.Is(err, errors.KindForbidden))

	stored, err := f.store.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)

	// assignee may update but not delete
	ok, err := f.tasks.DeleteTask(ctx, task.ID, f.alice.ID)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, errors.KindForbidden))

	ok, err = f.tasks.DeleteTask(ctx, task.ID, f.manager.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTaskService_UpdateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.alice, titled("Draft"))

	t.Run("partial update keeps other fields", func(t *testing.T) {
		updated, err := f.tasks.UpdateTask(ctx, task.ID, models.TaskRequest{Description: strPtr("more words")}, f.alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "Draft", updated.Title)
		assert.Equal(t, "more words", updated.Description)
		assert.False(t, updated.UpdatedAt.Before(task.UpdatedAt))
	})

	t.Run("blank title rejected", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(ctx, task.ID, models.TaskRequest{Title: strPtr(" ")}, f.alice.ID)
		assert.True(t, errors.Is(err, errors.KindValidation))
	})

	t.Run("creator cannot assign", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(ctx, task.ID, models.TaskRequest{AssignedToUserID: &f.bob.ID}, f.alice.ID)
		assert.True(t, errors.Is(err, errors.KindForbidden))
	})

	t.Run("admin updates and assigns any task", func(t *testing.T) {
		updated, err := f.tasks.UpdateTask(ctx, task.ID, models.TaskRequest{
			AssignedToUserID: &f.bob.ID,
			Priority:         priorityPtr(models.PriorityHigh),
		}, f.admin.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.AssignedTo)
		assert.Equal(t, f.bob.ID, updated.AssignedTo.ID)
		assert.Equal(t, models.PriorityHigh, updated.Priority)
	})

	t.Run("update does not reject assigning the creator", func(t *testing.T) {
		own := f.create(t, f.manager, titled("Own task"))
		updated, err := f.tasks.UpdateTask(ctx, own.ID, models.TaskRequest{AssignedToUserID: &f.manager.ID}, f.manager.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.AssignedTo)
		assert.Equal(t, f.manager.ID, updated.AssignedTo.ID)
	})

	t.Run("manager may not update a task of others", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(ctx, task.ID, models.TaskRequest{Title: strPtr("Hijack")}, f.manager.ID)
		assert.True(t, errors.Is(err, errors.KindForbidden))
	})

	t.Run("missing task", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(ctx, "missing", titled("x"), f.alice.ID)
		assert.ErrorIs(t, err, errors.ErrTaskNotFound)
	})
}

func TestTaskService_DeleteTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	own := f.create(t, f.alice, titled("Mine"))
	other := f.create(t, f.bob, titled("Theirs"))

	ok, err := f.tasks.DeleteTask(ctx, own.ID, f.alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.tasks.DeleteTask(ctx, other.ID, f.alice.ID)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, errors.KindForbidden))

	ok, err = f.tasks.DeleteTask(ctx, other.ID, f.admin.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.tasks.DeleteTask(ctx, other.ID, f.admin.ID)
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
}

func TestTaskService_GetUserTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, f.alice, titled("Created by alice"))
	assigned := titled("Assigned to alice")
	assigned.AssignedToUserID = &f.alice.ID
	f.create(t, f.manager, assigned)
	f.create(t, f.bob, titled("Bob only"))

	tasks, err := f.tasks.GetUserTasks(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.True(t, task.IsCreator(f.alice.ID) || task.IsAssignee(f.alice.ID))
	}
}

func TestTaskService_GetAllTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, f.alice, titled("One"))
	f.create(t, f.bob, titled("Two"))

	_, err := f.tasks.GetAllTasks(ctx, f.alice.ID)
	assert.True(t, errors.Is(err, errors.KindForbidden))

	for _, actor := range []*models.User{f.manager, f.admin} {
		tasks, err := f.tasks.GetAllTasks(ctx, actor.ID)
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
	}
}

func TestTaskService_SearchCompletedScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, actor := range []*models.User{f.alice, f.bob, f.alice} {
		r := titled("done by " + actor.Username)
		r.Status = statusPtr(models.StatusCompleted)
		f.create(t, actor, r)
	}
	f.create(t, f.alice, titled("still pending"))

	req := models.TaskSearchRequest{Status: statusPtr(models.StatusCompleted)}

	page, err := f.tasks.SearchTasks(ctx, req, f.alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.TotalItems)
	for _, task := range page.Items {
		assert.Equal(t, f.alice.ID, task.CreatedBy.ID)
		assert.Equal(t, models.StatusCompleted, task.Status)
	}

	page, err = f.tasks.SearchTasks(ctx, req, f.admin.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.TotalItems)
	assert.Equal(t, models.DefaultPageSize, page.Size)
	assert.Equal(t, 0, page.Page)
}

func TestTaskService_SearchByTitleAndPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	high := titled("Quarterly REPORT")
	high.Priority = priorityPtr(models.PriorityHigh)
	f.create(t, f.alice, high)
	f.create(t, f.alice, titled("weekly report"))
	f.create(t, f.alice, titled("groceries"))

	page, err := f.tasks.SearchTasks(ctx, models.TaskSearchRequest{Title: "report"}, f.alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.TotalItems)

	page, err = f.tasks.SearchTasks(ctx, models.TaskSearchRequest{
		Title:    "report",
		Priority: priorityPtr(models.PriorityHigh),
	}, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Quarterly REPORT", page.Items[0].Title)

	page, err = f.tasks.SearchTasks(ctx, models.TaskSearchRequest{
		PageRequest: models.PageRequest{SortBy: "title", SortDirection: "ASC"},
	}, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "Quarterly REPORT", page.Items[0].Title)
	assert.Equal(t, "weekly report", page.Items[2].Title)
}

func TestTaskService_GetUserTasksPaginated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		f.create(t, f.alice, titled(fmt.Sprintf("task %02d", i)))
	}
	f.create(t, f.bob, titled("not alice's"))

	first, err := f.tasks.GetUserTasksPaginated(ctx, f.alice.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, first.Items, 10)
	assert.EqualValues(t, 15, first.TotalItems)
	assert.Equal(t, 2, first.TotalPages)

	second, err := f.tasks.GetUserTasksPaginated(ctx, f.alice.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, second.Items, 5)

	beyond, err := f.tasks.GetUserTasksPaginated(ctx, f.alice.ID, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.NotNil(t, beyond.Items)

	_, err = f.tasks.GetUserTasksPaginated(ctx, f.alice.ID, -1, 10)
	assert.True(t, errors.Is(err, errors.KindValidation))
}

func TestTaskService_QuickSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	desc := titled("Plain title")
	desc.Description = strPtr("contains the Needle somewhere")
	f.create(t, f.alice, desc)
	f.create(t, f.alice, titled("needle in title"))
	f.create(t, f.bob, titled("bob's needle"))

	tasks, err := f.tasks.QuickSearch(ctx, "NEEDLE", f.alice.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = f.tasks.QuickSearch(ctx, "needle", f.manager.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	tasks, err = f.tasks.QuickSearch(ctx, "   ", f.alice.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = f.tasks.QuickSearch(ctx, "", f.manager.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)
}

func TestTaskService_GetTaskStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := titled("done")
	done.Status = statusPtr(models.StatusCompleted)
	done.Priority = priorityPtr(models.PriorityLow)
	f.create(t, f.alice, done)
	f.create(t, f.alice, titled("open one"))
	f.create(t, f.alice, titled("open two"))
	f.create(t, f.bob, titled("bob's"))

	stats, err := f.tasks.GetTaskStatistics(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.Len(t, stats.StatusCounts, len(models.AllStatuses))
	assert.Len(t, stats.PriorityCounts, len(models.AllPriorities))
	assert.EqualValues(t, 2, stats.StatusCounts[models.StatusPending])
	assert.EqualValues(t, 1, stats.StatusCounts[models.StatusCompleted])
	assert.EqualValues(t, 0, stats.StatusCounts[models.StatusCancelled])
	assert.EqualValues(t, 2, stats.PriorityCounts[models.PriorityMedium])
	assert.EqualValues(t, 0, stats.PriorityCounts[models.PriorityUrgent])
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name string
		in   models.PageRequest
		want struct {
			page models.PageRequest
			err  bool
		}
	}{
		{
			name: "defaults",
			in:   models.PageRequest{},
			want: struct {
				page models.PageRequest
				err  bool
			}{page: models.PageRequest{Size: 10, SortBy: "created_at", SortDirection: models.SortDesc}},
		},
		{
			name: "camel case field and upper case direction",
			in:   models.PageRequest{Page: 2, Size: 25, SortBy: "dueDate", SortDirection: "ASC"},
			want: struct {
				page models.PageRequest
				err  bool
			}{page: models.PageRequest{Page: 2, Size: 25, SortBy: "due_date", SortDirection: models.SortAsc}},
		},
		{
			name: "negative page",
			in:   models.PageRequest{Page: -1},
			want: struct {
				page models.PageRequest
				err  bool
			}{err: true},
		},
		{
			name: "size above max",
			in:   models.PageRequest{Size: models.MaxPageSize + 1},
			want: struct {
				page models.PageRequest
				err  bool
			}{err: true},
		},
		{
			name: "unknown sort field",
			in:   models.PageRequest{SortBy: "password"},
			want: struct {
				page models.PageRequest
				err  bool
			}{err: true},
		},
		{
			name: "bad direction",
			in:   models.PageRequest{SortDirection: "sideways"},
			want: struct {
				page models.PageRequest
				err  bool
			}{err: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizePage(tt.in)
			if tt.want.err {
				assert.True(t, errors.Is(err, errors.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.page, got)
		})
	}
}

func TestTaskService_StoreFailurePropagates(t *testing.T) {
	users := new(MockUserRepository)
	tasks := new(MockTaskRepository)
	actor := &models.User{ID: "u1", Username: "alice", Role: models.RoleUser}
	boom := stderrors.New("connection refused")

	users.On("GetUserByID", mock.Anything, "u1").Return(actor, nil)
	tasks.On("CreateTask", mock.Anything, mock.AnythingOfType("*models.Task")).Return(boom)

	svc := NewTaskService(tasks, users, logging.Discard())
	_, err := svc.CreateTask(context.Background(), titled("x"), "u1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, errors.KindInternal, errors.KindOf(err))

	users.AssertExpectations(t)
	tasks.AssertExpectations(t)
}

func TestTaskService_UnknownActor(t *testing.T) {
	f := newFixture(t)
	_, err := f.tasks.CreateTask(context.Background(), titled("x"), "ghost")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
}
