package db

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const (
	queryTimeout = 15 * time.Second

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const (
	qCreateUser        = `INSERT INTO users (id, username, password, role, created_at) VALUES ($1, $2, $3, $4, $5)`
	qGetUserByID       = `SELECT id, username, password, role, created_at FROM users WHERE id = $1`
	qGetUserByUsername = `SELECT id, username, password, role, created_at FROM users WHERE username = $1`
	qListUsers         = `SELECT id, username, password, role, created_at FROM users ORDER BY username`
	qUpdateUser        = `UPDATE users SET username = $1, password = $2, role = $3 WHERE id = $4`
	qDeleteUser        = `DELETE FROM users WHERE id = $1`

	qGetUserDetails  = `SELECT user_id, address, phone_number, birth_date FROM user_details WHERE user_id = $1`
	qSaveUserDetails = `INSERT INTO user_details (user_id, address, phone_number, birth_date) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET address = EXCLUDED.address, phone_number = EXCLUDED.phone_number, birth_date = EXCLUDED.birth_date`
	qDeleteUserDetails = `DELETE FROM user_details WHERE user_id = $1`

	qCreateTask = `INSERT INTO tasks (id, title, description, status, priority, created_by, assigned_to, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	qUpdateTask = `UPDATE tasks SET title = $1, description = $2, status = $3, priority = $4, assigned_to = $5, due_date = $6, updated_at = $7
		WHERE id = $8`
	qDeleteTask = `DELETE FROM tasks WHERE id = $1`

	taskColumns = `t.id, t.title, COALESCE(t.description, ''), t.status, t.priority,
		t.created_by, cu.username, t.assigned_to, au.username, t.due_date, t.created_at, t.updated_at`
	taskFrom = ` FROM tasks t
		JOIN users cu ON cu.id = t.created_by
		LEFT JOIN users au ON au.id = t.assigned_to`
	// Empty parameters disable their predicate.
	taskWhere = ` WHERE ($1::text = '' OR t.created_by = $1 OR t.assigned_to = $1)
		AND ($2::text = '' OR strpos(lower(t.title), lower($2)) > 0)
		AND ($3::text = '' OR t.status = $3)
		AND ($4::text = '' OR t.priority = $4)
		AND ($5::text = '' OR strpos(lower(t.title), lower($5)) > 0
			OR strpos(lower(COALESCE(t.description, '')), lower($5)) > 0)`

	qGetTaskByID = `SELECT ` + taskColumns + taskFrom + ` WHERE t.id = $1`
	qCountTasks  = `SELECT count(*)` + taskFrom + taskWhere
)

// orderColumns guards the ORDER BY clause, the only part of a query built
// from caller input.
var orderColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"due_date":   true,
	"title":      true,
	"status":     true,
	"priority":   true,
}

type Storage struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

func NewStorage(ctx context.Context, connStr string, log logrus.FieldLogger) (*Storage, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.WithError(err).Error("failed to create database pool")
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		log.WithError(err).Error("failed to connect to database")
		return nil, err
	}
	log.Info("database connection established")
	return &Storage{pool: pool, log: log}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, qCreateUser, user.ID, user.Username, user.Password, string(user.Role), user.CreatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return errors.ErrUserAlreadyExists
		}
		s.log.WithError(err).Error("failed to create user")
		return errors.Internal("create user", err)
	}
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, qGetUserByID, id)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, qGetUserByUsername, username)
}

func (s *Storage) getUser(ctx context.Context, query, arg string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		s.log.WithError(err).Error("failed to get user")
		return nil, errors.Internal("get user", err)
	}
	return user, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, qListUsers)
	if err != nil {
		s.log.WithError(err).Error("failed to list users")
		return nil, errors.Internal("list users", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			s.log.WithError(err).Error("failed to read user row")
			return nil, errors.Internal("list users", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("list users", err)
	}
	return users, nil
}

func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, qUpdateUser, user.Username, user.Password, string(user.Role), user.ID)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return errors.ErrUserAlreadyExists
		}
		s.log.WithError(err).WithField("user_id", user.ID).Error("failed to update user")
		return errors.Internal("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

// DeleteUser relies on the foreign keys: details and created tasks are
// removed, assignments are cleared.
func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, qDeleteUser, id)
	if err != nil {
		s.log.WithError(err).WithField("user_id", id).Error("failed to delete user")
		return errors.Internal("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

func (s *Storage) GetUserDetails(ctx context.Context, userID string) (*models.UserDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	d := &models.UserDetails{}
	err := s.pool.QueryRow(ctx, qGetUserDetails, userID).Scan(&d.UserID, &d.Address, &d.PhoneNumber, &d.BirthDate)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrProfileNotFound
		}
		s.log.WithError(err).WithField("user_id", userID).Error("failed to get user details")
		return nil, errors.Internal("get user details", err)
	}
	return d, nil
}

func (s *Storage) SaveUserDetails(ctx context.Context, d *models.UserDetails) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, qSaveUserDetails, d.UserID, d.Address, d.PhoneNumber, d.BirthDate)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return errors.ErrUserNotFound
		}
		s.log.WithError(err).WithField("user_id", d.UserID).Error("failed to save user details")
		return errors.Internal("save user details", err)
	}
	return nil
}

func (s *Storage) DeleteUserDetails(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, qDeleteUserDetails, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("failed to delete user details")
		return errors.Internal("delete user details", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrProfileNotFound
	}
	return nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, qCreateTask,
		task.ID, task.Title, task.Description, string(task.Status), string(task.Priority),
		task.CreatedBy.ID, assigneeID(task), task.DueDate, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return errors.ErrUserNotFound
		}
		s.log.WithError(err).Error("failed to create task")
		return errors.Internal("create task", err)
	}
	s.log.WithFields(logrus.Fields{"task_id": task.ID, "user_id": task.CreatedBy.ID}).Debug("task created")
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	task, err := scanTask(s.pool.QueryRow(ctx, qGetTaskByID, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrTaskNotFound
		}
		s.log.WithError(err).WithField("task_id", id).Error("failed to get task")
		return nil, errors.Internal("get task", err)
	}
	return task, nil
}

func (s *Storage) UpdateTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, qUpdateTask,
		task.Title, task.Description, string(task.Status), string(task.Priority),
		assigneeID(task), task.DueDate, task.UpdatedAt, task.ID)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return errors.ErrAssigneeNotFound
		}
		s.log.WithError(err).WithField("task_id", task.ID).Error("failed to update task")
		return errors.Internal("update task", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrTaskNotFound
	}
	return nil
}

func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, qDeleteTask, id)
	if err != nil {
		s.log.WithError(err).WithField("task_id", id).Error("failed to delete task")
		return errors.Internal("delete task", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrTaskNotFound
	}
	return nil
}

func (s *Storage) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + taskColumns + taskFrom + taskWhere + ` ORDER BY t.created_at DESC, t.id`
	return s.queryTasks(ctx, query, filterArgs(filter)...)
}

func (s *Storage) SearchTasks(ctx context.Context, filter models.TaskFilter, page models.PageRequest) ([]models.Task, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	order, err := orderBy(page)
	if err != nil {
		return nil, 0, err
	}
	args := filterArgs(filter)

	var total int64
	if err := s.pool.QueryRow(ctx, qCountTasks, args...).Scan(&total); err != nil {
		s.log.WithError(err).Error("failed to count tasks")
		return nil, 0, errors.Internal("count tasks", err)
	}

	query := `SELECT ` + taskColumns + taskFrom + taskWhere + order + ` LIMIT $6 OFFSET $7`
	tasks, err := s.queryTasks(ctx, query, append(args, page.Size, page.Page*page.Size)...)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (s *Storage) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		s.log.WithError(err).Error("failed to query tasks")
		return nil, errors.Internal("query tasks", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			s.log.WithError(err).Error("failed to read task row")
			return nil, errors.Internal("query tasks", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("query tasks", err)
	}
	return tasks, nil
}

func filterArgs(f models.TaskFilter) []any {
	return []any{f.ParticipantID, f.Title, string(f.Status), string(f.Priority), f.Term}
}

func orderBy(page models.PageRequest) (string, error) {
	if !orderColumns[page.SortBy] {
		return "", errors.Validation("cannot sort by %q", page.SortBy)
	}
	dir := "DESC"
	if page.SortDirection == models.SortAsc {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY t.%s %s NULLS LAST, t.id", page.SortBy, dir), nil
}

func assigneeID(task *models.Task) *string {
	if task.AssignedTo == nil {
		return nil
	}
	return &task.AssignedTo.ID
}

func scanUser(row pgx.Row) (*models.User, error) {
	var role string
	user := &models.User{}
	if err := row.Scan(&user.ID, &user.Username, &user.Password, &role, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	return user, nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var (
		status, priority         string
		assigneeID, assigneeName *string
		task                     models.Task
	)
	err := row.Scan(&task.ID, &task.Title, &task.Description, &status, &priority,
		&task.CreatedBy.ID, &task.CreatedBy.Username, &assigneeID, &assigneeName,
		&task.DueDate, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	task.Status = models.TaskStatus(status)
	task.Priority = models.TaskPriority(priority)
	if assigneeID != nil {
		task.AssignedTo = &models.UserRef{ID: *assigneeID}
		if assigneeName != nil {
			task.AssignedTo.Username = *assigneeName
		}
	}
	return &task, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
