package model

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	StatusToDo            TaskStatus = "To Do"
	StatusInProgress      TaskStatus = "In Progress"
	StatusCompleted       TaskStatus = "Completed"
	StatusOverdue         TaskStatus = "Overdue"
	StatusPendingApproval TaskStatus = "Pending Approval"
	StatusNeedsChanges    TaskStatus = "Needs Changes"
	StatusRejected        TaskStatus = "Rejected"
)

// AllStatuses returns every task status in board order.
func AllStatuses() []TaskStatus {
	return []TaskStatus{
		StatusToDo,
		StatusInProgress,
		StatusCompleted,
		StatusOverdue,
		StatusPendingApproval,
		StatusNeedsChanges,
		StatusRejected,
	}
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// IsApprovalStatus reports whether s belongs to the approval workflow for
// self-proposed tasks. Only these statuses allow a task without assignee.
func IsApprovalStatus(s TaskStatus) bool {
	return s == StatusPendingApproval || s == StatusNeedsChanges || s == StatusRejected
}

// transitions lists the allowed status edges. A status may always
// transition to itself.
var transitions = map[TaskStatus][]TaskStatus{
	StatusToDo:            {StatusInProgress, StatusCompleted, StatusOverdue},
	StatusInProgress:      {StatusToDo, StatusCompleted, StatusOverdue},
	StatusOverdue:         {StatusToDo, StatusInProgress, StatusCompleted},
	StatusCompleted:       {StatusToDo, StatusInProgress},
	StatusPendingApproval: {StatusToDo, StatusNeedsChanges, StatusRejected},
	StatusNeedsChanges:    {StatusPendingApproval},
	StatusRejected:        {StatusPendingApproval},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return from.Valid()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// AllPriorities returns every priority from lowest to highest.
func AllPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Rank orders priorities (higher number = more urgent, 0 = unknown).
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

// TaskAttachment is file metadata attached to a task. Binary content is
// stored elsewhere and referenced by URL.
type TaskAttachment struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskComment is a single entry in a task's discussion.
type TaskComment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Task is the central work item managed by TaskZen.
type Task struct {
	// ID is assigned by the server and never changes.
	ID string `json:"id"`

	Title       string  `json:"title"`
	Description *string `json:"description"`

	Priority Priority   `json:"priority"`
	Status   TaskStatus `json:"status"`

	// Deadline is when the task is due, if it has a due date.
	Deadline *time.Time `json:"deadline"`

	// SuggestedDeadline and SuggestedPriority are advisory values
	// produced by the assistant; they never drive behavior.
	SuggestedDeadline *time.Time `json:"suggestedDeadline,omitempty"`
	SuggestedPriority *Priority  `json:"suggestedPriority,omitempty"`

	// AssignerID is the user who created or assigned the task.
	AssignerID string `json:"assignerId"`

	// AssignedUserID is the user who must complete the task. It is nil
	// only for self-proposed tasks still in the approval workflow.
	AssignedUserID *string `json:"assignedUserId"`

	// Denormalized display names, filled in by the server.
	AssigneeName string `json:"assigneeName,omitempty"`
	AssignerName string `json:"assignerName,omitempty"`

	Attachments []TaskAttachment `json:"attachments"`
	Comments    []TaskComment    `json:"comments"`

	ProgressPercentage int `json:"progressPercentage"`

	// TimerDuration is the tracked working time in minutes.
	TimerDuration int `json:"timerDuration"`

	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt"`
	SoftDeletedAt *time.Time `json:"softDeletedAt,omitempty"`
}

// Clone returns a deep copy of t. Mutating the copy never affects t.
func (t Task) Clone() Task {
	c := t
	c.Description = clonePtr(t.Description)
	c.Deadline = clonePtr(t.Deadline)
	c.SuggestedDeadline = clonePtr(t.SuggestedDeadline)
	c.SuggestedPriority = clonePtr(t.SuggestedPriority)
	c.AssignedUserID = clonePtr(t.AssignedUserID)
	c.CompletedAt = clonePtr(t.CompletedAt)
	c.SoftDeletedAt = clonePtr(t.SoftDeletedAt)
	if t.Attachments != nil {
		c.Attachments = append([]TaskAttachment(nil), t.Attachments...)
	}
	if t.Comments != nil {
		c.Comments = append([]TaskComment(nil), t.Comments...)
	}
	return c
}

// IsOverdue reports whether the task counts as overdue at now: either its
// status says so, or its deadline has passed and it is not completed.
func (t Task) IsOverdue(now time.Time) bool {
	if t.Status == StatusOverdue {
		return true
	}
	return t.Deadline != nil && t.Deadline.Before(now) && t.Status != StatusCompleted
}

// Validate checks the invariants every stored task must satisfy.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title must not be empty")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if t.AssignerID == "" {
		return fmt.Errorf("task assigner must be set")
	}
	if (t.AssignedUserID == nil || *t.AssignedUserID == "") && !IsApprovalStatus(t.Status) {
		return fmt.Errorf("task in status %q must have an assignee", t.Status)
	}
	if t.ProgressPercentage < 0 || t.ProgressPercentage > 100 {
		return fmt.Errorf("progress must be between 0 and 100")
	}
	if t.TimerDuration < 0 {
		return fmt.Errorf("timer duration must not be negative")
	}
	return nil
}

// NewTask is the payload for creating a task: a Task without the fields
// the server assigns (id, timestamps, denormalized names).
type NewTask struct {
	Title              string           `json:"title"`
	Description        *string          `json:"description,omitempty"`
	Priority           Priority         `json:"priority,omitempty"`
	Status             TaskStatus       `json:"status,omitempty"`
	Deadline           *time.Time       `json:"deadline,omitempty"`
	SuggestedDeadline  *time.Time       `json:"suggestedDeadline,omitempty"`
	SuggestedPriority  *Priority        `json:"suggestedPriority,omitempty"`
	AssignerID         string           `json:"assignerId,omitempty"`
	AssignedUserID     *string          `json:"assignedUserId,omitempty"`
	Attachments        []TaskAttachment `json:"attachments,omitempty"`
	ProgressPercentage int              `json:"progressPercentage,omitempty"`
	TimerDuration      int              `json:"timerDuration,omitempty"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
