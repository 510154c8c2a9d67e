package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskzen/internal/model"
)

// taskSelect reads a task with the display names of its assigner and
// assignee joined in.
var taskSelect = `SELECT
	t.id, t.title, t.description, t.priority, t.status,
	t.deadline, t.suggested_deadline, t.suggested_priority,
	t.assigner_id, t.assigned_user_id,
	t.attachments, t.comments,
	t.progress_percentage, t.timer_duration,
	t.created_at, t.updated_at, t.completed_at, t.soft_deleted_at,
	` + displayName("ar") + `,
	` + displayName("ae")

const taskFrom = `
	FROM tasks t
	LEFT JOIN users ar ON ar.id = t.assigner_id
	LEFT JOIN users ae ON ae.id = t.assigned_user_id`

func displayName(alias string) string {
	return fmt.Sprintf(
		"COALESCE(NULLIF(%[1]s.name, ''), TRIM(%[1]s.first_name || ' ' || %[1]s.last_name), '')", alias)
}

// CreateTask inserts a new task. Generates a UUID if ID is empty.
func (s *SQLiteStore) CreateTask(ctx context.Context, t model.Task) (*model.Task, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.StatusToDo
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	now := s.timestamp()
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := t.Validate(); err != nil {
		return nil, err
	}

	attachments, comments, err := marshalTaskJSON(t)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, title, description, priority, status,
			deadline, suggested_deadline, suggested_priority,
			assigner_id, assigned_user_id,
			attachments, comments,
			progress_percentage, timer_duration,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Priority, t.Status,
		utc(t.Deadline), utc(t.SuggestedDeadline), t.SuggestedPriority,
		t.AssignerID, t.AssignedUserID,
		attachments, comments,
		t.ProgressPercentage, t.TimerDuration,
		t.CreatedAt, t.UpdatedAt, utc(t.CompletedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	return s.GetTask(ctx, t.ID)
}

// GetTask retrieves a single task by ID. Soft-deleted tasks are not found.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowxContext(ctx,
		taskSelect+taskFrom+" WHERE t.id = ? AND t.soft_deleted_at IS NULL", id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("getting task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return &task, nil
}

// ListTasks retrieves tasks matching the query.
func (s *SQLiteStore) ListTasks(ctx context.Context, q TaskQuery) ([]model.Task, error) {
	query, args := buildTaskQuery(taskSelect, q, true)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// CountTasks returns the number of tasks matching the query, ignoring its
// limit and offset.
func (s *SQLiteStore) CountTasks(ctx context.Context, q TaskQuery) (int, error) {
	query, args := buildTaskQuery("SELECT COUNT(*)", q, false)

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return count, nil
}

// UpdateTask overwrites the mutable columns of an existing task and
// returns the stored result.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t model.Task) (*model.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.timestamp()

	attachments, comments, err := marshalTaskJSON(t)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, priority = ?, status = ?,
			deadline = ?, suggested_deadline = ?, suggested_priority = ?,
			assigned_user_id = ?,
			attachments = ?, comments = ?,
			progress_percentage = ?, timer_duration = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ? AND soft_deleted_at IS NULL`,
		t.Title, t.Description, t.Priority, t.Status,
		utc(t.Deadline), utc(t.SuggestedDeadline), t.SuggestedPriority,
		t.AssignedUserID,
		attachments, comments,
		t.ProgressPercentage, t.TimerDuration,
		t.UpdatedAt, utc(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, fmt.Errorf("updating task %s: %w", t.ID, ErrNotFound)
	}

	return s.GetTask(ctx, t.ID)
}

// SoftDeleteTask hides a task from all reads without removing the row.
func (s *SQLiteStore) SoftDeleteTask(ctx context.Context, id string) error {
	now := s.timestamp()
	result, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET soft_deleted_at = ?, updated_at = ? WHERE id = ? AND soft_deleted_at IS NULL",
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("deleting task %s: %w", id, ErrNotFound)
	}
	return nil
}

// taskSortColumns maps sortable fields to SQL expressions. Priority and
// status sort by rank rather than by name.
var taskSortColumns = map[model.SortField]string{
	model.SortByCreatedAt: "t.created_at",
	model.SortByDeadline:  "t.deadline",
	model.SortByTitle:     "t.title COLLATE NOCASE",
	model.SortByPriority:  "CASE t.priority WHEN 'Low' THEN 1 WHEN 'Medium' THEN 2 WHEN 'High' THEN 3 ELSE 0 END",
	model.SortByStatus: "CASE t.status WHEN 'To Do' THEN 1 WHEN 'In Progress' THEN 2 WHEN 'Completed' THEN 3 " +
		"WHEN 'Overdue' THEN 4 WHEN 'Pending Approval' THEN 5 WHEN 'Needs Changes' THEN 6 WHEN 'Rejected' THEN 7 ELSE 0 END",
}

// buildTaskQuery constructs the SQL query and args for a TaskQuery. Sort
// and pagination are only applied when paged is true.
func buildTaskQuery(selectClause string, q TaskQuery, paged bool) (string, []interface{}) {
	conditions := []string{"t.soft_deleted_at IS NULL"}
	var args []interface{}

	in := func(column string, values []string) {
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = "?"
			args = append(args, v)
		}
		conditions = append(conditions, column+" IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(q.Statuses) > 0 {
		values := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			values[i] = string(st)
		}
		in("t.status", values)
	}
	if len(q.Priorities) > 0 {
		values := make([]string, len(q.Priorities))
		for i, p := range q.Priorities {
			values[i] = string(p)
		}
		in("t.priority", values)
	}
	if q.AssigneeID != "" {
		conditions = append(conditions, "t.assigned_user_id = ?")
		args = append(args, q.AssigneeID)
	}
	if q.AssignerID != "" {
		conditions = append(conditions, "t.assigner_id = ?")
		args = append(args, q.AssignerID)
	}
	if q.VisibleTo != "" {
		conditions = append(conditions, "(t.assigner_id = ? OR t.assigned_user_id = ?)")
		args = append(args, q.VisibleTo, q.VisibleTo)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		conditions = append(conditions,
			"(t.title LIKE ? OR COALESCE(t.description, '') LIKE ?)")
		like := "%" + s + "%"
		args = append(args, like, like)
	}
	if q.DateFrom != nil {
		conditions = append(conditions, "t.deadline >= ?")
		args = append(args, q.DateFrom.UTC())
	}
	if q.DateTo != nil {
		conditions = append(conditions, "t.deadline <= ?")
		args = append(args, q.DateTo.UTC())
	}
	if q.Overdue != nil {
		now := q.Now
		if now.IsZero() {
			now = time.Now()
		}
		overdue := "(t.status = 'Overdue' OR (t.deadline IS NOT NULL AND t.deadline < ? AND t.status != 'Completed'))"
		if !*q.Overdue {
			overdue = "NOT " + overdue
		}
		conditions = append(conditions, overdue)
		args = append(args, now.UTC())
	}

	query := selectClause + taskFrom + " WHERE " + strings.Join(conditions, " AND ")
	if !paged {
		return query, args
	}

	sortBy := "t.created_at"
	if col, ok := taskSortColumns[q.SortBy]; ok {
		sortBy = col
	}
	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}
	// Ties fall back to newest first, then id, for a stable page order.
	query += fmt.Sprintf(" ORDER BY %s %s, t.created_at DESC, t.id", sortBy, direction)

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	return query, args
}

func marshalTaskJSON(t model.Task) (attachments, comments string, err error) {
	a := t.Attachments
	if a == nil {
		a = []model.TaskAttachment{}
	}
	c := t.Comments
	if c == nil {
		c = []model.TaskComment{}
	}

	ab, err := json.Marshal(a)
	if err != nil {
		return "", "", fmt.Errorf("marshaling attachments for task %s: %w", t.ID, err)
	}
	cb, err := json.Marshal(c)
	if err != nil {
		return "", "", fmt.Errorf("marshaling comments for task %s: %w", t.ID, err)
	}
	return string(ab), string(cb), nil
}

// scanTask scans a row selected with taskSelect.
func scanTask(row scanner) (model.Task, error) {
	var (
		task              model.Task
		description       *string
		deadline          *time.Time
		suggestedDeadline *time.Time
		suggestedPriority *string
		assignedUserID    *string
		attachments       string
		comments          string
		completedAt       *time.Time
		softDeletedAt     *time.Time
	)

	err := row.Scan(
		&task.ID, &task.Title, &description, &task.Priority, &task.Status,
		&deadline, &suggestedDeadline, &suggestedPriority,
		&task.AssignerID, &assignedUserID,
		&attachments, &comments,
		&task.ProgressPercentage, &task.TimerDuration,
		&task.CreatedAt, &task.UpdatedAt, &completedAt, &softDeletedAt,
		&task.AssignerName, &task.AssigneeName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, err
		}
		return model.Task{}, fmt.Errorf("scanning task row: %w", err)
	}

	task.Description = description
	task.Deadline = deadline
	task.SuggestedDeadline = suggestedDeadline
	if suggestedPriority != nil {
		p := model.Priority(*suggestedPriority)
		task.SuggestedPriority = &p
	}
	task.AssignedUserID = assignedUserID
	task.CompletedAt = completedAt
	task.SoftDeletedAt = softDeletedAt

	if err := json.Unmarshal([]byte(attachments), &task.Attachments); err != nil {
		return model.Task{}, fmt.Errorf("unmarshaling attachments: %w", err)
	}
	if err := json.Unmarshal([]byte(comments), &task.Comments); err != nil {
		return model.Task{}, fmt.Errorf("unmarshaling comments: %w", err)
	}

	return task, nil
}
