package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Optional is a single field of an update: unset, set to a value, or
// (for nullable fields) explicitly cleared.
type Optional[T any] struct {
	set   bool
	null  bool
	value T
}

// Set returns an Optional carrying v.
func Set[T any](v T) Optional[T] {
	return Optional[T]{set: true, value: v}
}

// Null returns an Optional that clears a nullable field.
func Null[T any]() Optional[T] {
	return Optional[T]{set: true, null: true}
}

// IsSet reports whether the field is part of the update.
func (o Optional[T]) IsSet() bool { return o.set }

// IsNull reports whether the field is being cleared.
func (o Optional[T]) IsNull() bool { return o.set && o.null }

// Get returns the value and whether one is present (set and not null).
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set && !o.null
}

// ptr returns nil for a cleared field, or a pointer to a copy of the value.
func (o Optional[T]) ptr() *T {
	if o.null {
		return nil
	}
	v := o.value
	return &v
}

// Update field names. This is the closed list of task fields a client may
// change after creation.
const (
	FieldTitle              = "title"
	FieldDescription        = "description"
	FieldPriority           = "priority"
	FieldStatus             = "status"
	FieldDeadline           = "deadline"
	FieldAssignedUserID     = "assignedUserId"
	FieldProgressPercentage = "progressPercentage"
	FieldTimerDuration      = "timerDuration"
	FieldAttachments        = "attachments"
	FieldComments           = "comments"
)

// TaskUpdate is a partial update of a task restricted to the updatable
// fields. Only fields that are set are sent and applied.
type TaskUpdate struct {
	Title              Optional[string]
	Description        Optional[string] // nullable
	Priority           Optional[Priority]
	Status             Optional[TaskStatus]
	Deadline           Optional[time.Time] // nullable
	AssignedUserID     Optional[string]    // nullable
	ProgressPercentage Optional[int]
	TimerDuration      Optional[int]
	Attachments        Optional[[]TaskAttachment]
	Comments           Optional[[]TaskComment]
}

// Fields returns the names of the fields set in u, sorted.
func (u TaskUpdate) Fields() []string {
	var names []string
	for name := range u.values() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether the update changes nothing.
func (u TaskUpdate) IsEmpty() bool {
	return len(u.values()) == 0
}

// values maps each set field to its JSON value (nil for a cleared field).
func (u TaskUpdate) values() map[string]any {
	out := make(map[string]any)
	put := func(name string, set, null bool, v any) {
		if !set {
			return
		}
		if null {
			out[name] = nil
			return
		}
		out[name] = v
	}
	put(FieldTitle, u.Title.set, u.Title.null, u.Title.value)
	put(FieldDescription, u.Description.set, u.Description.null, u.Description.value)
	put(FieldPriority, u.Priority.set, u.Priority.null, u.Priority.value)
	put(FieldStatus, u.Status.set, u.Status.null, u.Status.value)
	put(FieldDeadline, u.Deadline.set, u.Deadline.null, u.Deadline.value)
	put(FieldAssignedUserID, u.AssignedUserID.set, u.AssignedUserID.null, u.AssignedUserID.value)
	put(FieldProgressPercentage, u.ProgressPercentage.set, u.ProgressPercentage.null, u.ProgressPercentage.value)
	put(FieldTimerDuration, u.TimerDuration.set, u.TimerDuration.null, u.TimerDuration.value)
	put(FieldAttachments, u.Attachments.set, u.Attachments.null, u.Attachments.value)
	put(FieldComments, u.Comments.set, u.Comments.null, u.Comments.value)
	return out
}

// MarshalJSON encodes only the set fields; cleared fields become null.
func (u TaskUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.values())
}

// UnmarshalJSON decodes a partial update, rejecting unknown fields and
// nulls for fields that cannot be cleared.
func (u *TaskUpdate) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding task update: %w", err)
	}

	var out TaskUpdate
	var err error
	for name, value := range raw {
		switch name {
		case FieldTitle:
			out.Title, err = decodeOptional[string](name, value, false)
		case FieldDescription:
			out.Description, err = decodeOptional[string](name, value, true)
		case FieldPriority:
			out.Priority, err = decodeOptional[Priority](name, value, false)
		case FieldStatus:
			out.Status, err = decodeOptional[TaskStatus](name, value, false)
		case FieldDeadline:
			out.Deadline, err = decodeOptional[time.Time](name, value, true)
		case FieldAssignedUserID:
			out.AssignedUserID, err = decodeOptional[string](name, value, true)
		case FieldProgressPercentage:
			out.ProgressPercentage, err = decodeOptional[int](name, value, false)
		case FieldTimerDuration:
			out.TimerDuration, err = decodeOptional[int](name, value, false)
		case FieldAttachments:
			out.Attachments, err = decodeOptional[[]TaskAttachment](name, value, false)
		case FieldComments:
			out.Comments, err = decodeOptional[[]TaskComment](name, value, false)
		default:
			return fmt.Errorf("field %q cannot be updated", name)
		}
		if err != nil {
			return err
		}
	}

	*u = out
	return nil
}

func decodeOptional[T any](name string, raw json.RawMessage, nullable bool) (Optional[T], error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if !nullable {
			return Optional[T]{}, fmt.Errorf("field %q cannot be null", name)
		}
		return Null[T](), nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return Optional[T]{}, fmt.Errorf("decoding field %q: %w", name, err)
	}
	return Set(v), nil
}

// Validate checks the set values without reference to a stored task.
func (u TaskUpdate) Validate() error {
	if v, ok := u.Priority.Get(); ok && !v.Valid() {
		return fmt.Errorf("invalid priority %q", v)
	}
	if v, ok := u.Status.Get(); ok && !v.Valid() {
		return fmt.Errorf("invalid status %q", v)
	}
	if v, ok := u.ProgressPercentage.Get(); ok && (v < 0 || v > 100) {
		return fmt.Errorf("progress must be between 0 and 100")
	}
	if v, ok := u.TimerDuration.Get(); ok && v < 0 {
		return fmt.Errorf("timer duration must not be negative")
	}
	return nil
}

// Apply merges the set fields of u into t.
func (u TaskUpdate) Apply(t *Task) {
	if v, ok := u.Title.Get(); ok {
		t.Title = v
	}
	if u.Description.IsSet() {
		t.Description = u.Description.ptr()
	}
	if v, ok := u.Priority.Get(); ok {
		t.Priority = v
	}
	if v, ok := u.Status.Get(); ok {
		t.Status = v
	}
	if u.Deadline.IsSet() {
		t.Deadline = u.Deadline.ptr()
	}
	if u.AssignedUserID.IsSet() {
		t.AssignedUserID = u.AssignedUserID.ptr()
	}
	if v, ok := u.ProgressPercentage.Get(); ok {
		t.ProgressPercentage = v
	}
	if v, ok := u.TimerDuration.Get(); ok {
		t.TimerDuration = v
	}
	if v, ok := u.Attachments.Get(); ok {
		t.Attachments = append([]TaskAttachment(nil), v...)
	}
	if v, ok := u.Comments.Get(); ok {
		t.Comments = append([]TaskComment(nil), v...)
	}
}
