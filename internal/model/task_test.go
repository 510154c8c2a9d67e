package model

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func validTask() Task {
	return Task{
		ID:             "t1",
		Title:          "Prepare quarterly report",
		Priority:       PriorityHigh,
		Status:         StatusToDo,
		AssignerID:     "u1",
		AssignedUserID: strPtr("u2"),
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{StatusToDo, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusCompleted, StatusInProgress, true},
		{StatusOverdue, StatusCompleted, true},
		{StatusPendingApproval, StatusToDo, true},
		{StatusPendingApproval, StatusRejected, true},
		{StatusRejected, StatusPendingApproval, true},
		{StatusNeedsChanges, StatusPendingApproval, true},
		{StatusToDo, StatusToDo, true},
		{StatusCompleted, StatusOverdue, false},
		{StatusToDo, StatusPendingApproval, false},
		{StatusRejected, StatusToDo, false},
		{StatusNeedsChanges, StatusCompleted, false},
		{TaskStatus("Archived"), TaskStatus("Archived"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTaskValidate(t *testing.T) {
	require.NoError(t, validTask().Validate())

	noAssignee := validTask()
	noAssignee.AssignedUserID = nil
	assert.Error(t, noAssignee.Validate())

	noAssignee.Status = StatusPendingApproval
	assert.NoError(t, noAssignee.Validate(), "self-proposed tasks may lack an assignee")

	badProgress := validTask()
	badProgress.ProgressPercentage = 101
	assert.Error(t, badProgress.Validate())

	blank := validTask()
	blank.Title = "   "
	assert.Error(t, blank.Validate())

	badStatus := validTask()
	badStatus.Status = "Done"
	assert.Error(t, badStatus.Validate())
}

func TestTaskIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	task := validTask()
	assert.False(t, task.IsOverdue(now), "no deadline")

	task.Deadline = &past
	assert.True(t, task.IsOverdue(now))

	task.Status = StatusCompleted
	assert.False(t, task.IsOverdue(now))

	task.Status = StatusOverdue
	task.Deadline = nil
	assert.True(t, task.IsOverdue(now))
}

func TestTaskCloneIsDeep(t *testing.T) {
	deadline := time.Now()
	orig := validTask()
	orig.Deadline = &deadline
	orig.Comments = []TaskComment{{ID: "c1", Content: "first"}}

	c := orig.Clone()
	*c.AssignedUserID = "someone-else"
	*c.Deadline = deadline.Add(time.Hour)
	c.Comments[0].Content = "edited"

	assert.Equal(t, "u2", *orig.AssignedUserID)
	assert.Equal(t, deadline, *orig.Deadline)
	assert.Equal(t, "first", orig.Comments[0].Content)
}

func TestRoleHierarchy(t *testing.T) {
	assert.True(t, RoleAdmin.Satisfies(RoleUser))
	assert.True(t, RoleAdmin.Satisfies(RoleAdmin))
	assert.True(t, RoleUser.Satisfies(RoleUser))
	assert.False(t, RoleUser.Satisfies(RoleAdmin))
	assert.False(t, Role("Guest").Satisfies(RoleUser))
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ada L.", User{Name: "Ada L.", FirstName: "Ada", LastName: "Lovelace"}.DisplayName())
	assert.Equal(t, "Ada Lovelace", User{FirstName: "Ada", LastName: "Lovelace"}.DisplayName())
	assert.Equal(t, "ada@example.com", User{Email: "ada@example.com"}.DisplayName())

	first, last := SplitName("  Grace Brewster Hopper ")
	assert.Equal(t, "Grace", first)
	assert.Equal(t, "Brewster Hopper", last)
}

func TestFilterQueryOmitsEmptyFields(t *testing.T) {
	assert.Empty(t, TaskFilter{}.Query())

	overdue := true
	from := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	q := TaskFilter{
		Page:      3,
		Limit:     25,
		SortBy:    SortByDeadline,
		SortOrder: SortDesc,
		Status:    []TaskStatus{StatusToDo, StatusInProgress},
		Priority:  []Priority{PriorityHigh},
		Search:    "  report ",
		DateFrom:  &from,
		Overdue:   &overdue,
	}.Query()

	assert.Equal(t, map[string]string{
		ParamPage:      "3",
		ParamLimit:     "25",
		ParamSortBy:    "deadline",
		ParamSortOrder: "desc",
		ParamStatus:    "To Do,In Progress",
		ParamPriority:  "High",
		ParamSearch:    "report",
		ParamDateFrom:  "2026-01-02T02:04:05Z",
		ParamOverdue:   "true",
	}, q)
}

func TestParseTaskFilterRoundTrip(t *testing.T) {
	from := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	f := TaskFilter{
		Page:       2,
		Limit:      10,
		SortBy:     SortByPriority,
		SortOrder:  SortAsc,
		Status:     []TaskStatus{StatusOverdue, StatusCompleted},
		AssigneeID: "u2",
		DateFrom:   &from,
	}

	parsed, err := ParseTaskFilter(f.Values())
	require.NoError(t, err)
	assert.True(t, f.Equal(parsed))
}

func TestParseTaskFilterRejectsUnknownValues(t *testing.T) {
	for _, raw := range []string{
		"status=Archived",
		"priority=Urgent",
		"sortBy=colour",
		"sortOrder=sideways",
		"page=0",
		"limit=abc",
		"overdue=maybe",
		"dateFrom=yesterday",
	} {
		v, err := url.ParseQuery(raw)
		require.NoError(t, err)
		_, err = ParseTaskFilter(v)
		assert.Error(t, err, raw)
	}
}

func TestFilterEqualIsStructural(t *testing.T) {
	a := TaskFilter{Status: []TaskStatus{StatusToDo}, Search: "x"}
	b := TaskFilter{Status: []TaskStatus{StatusToDo}, Search: " x "}
	assert.True(t, a.Equal(b))

	b.Status = append(b.Status, StatusInProgress)
	assert.False(t, a.Equal(b))

	c := a.Clone()
	c.Status[0] = StatusCompleted
	assert.Equal(t, StatusToDo, a.Status[0])
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(21, 2, 10)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasNext)
	assert.True(t, p.HasPrev)

	p = NewPagination(0, 0, 10)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.HasNext)
}

func TestTaskUpdateJSON(t *testing.T) {
	u := TaskUpdate{
		Title:          Set("New title"),
		Description:    Null[string](),
		AssignedUserID: Set("u3"),
	}
	assert.Equal(t, []string{FieldAssignedUserID, FieldDescription, FieldTitle}, u.Fields())

	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"New title","description":null,"assignedUserId":"u3"}`, string(data))

	var decoded TaskUpdate
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Description.IsNull())
	title, ok := decoded.Title.Get()
	assert.True(t, ok)
	assert.Equal(t, "New title", title)
	assert.False(t, decoded.Status.IsSet())
}

func TestTaskUpdateRejectsInvalidInput(t *testing.T) {
	var u TaskUpdate
	assert.ErrorContains(t, json.Unmarshal([]byte(`{"id":"t9"}`), &u), "cannot be updated")
	assert.ErrorContains(t, json.Unmarshal([]byte(`{"title":null}`), &u), "cannot be null")
	assert.Error(t, json.Unmarshal([]byte(`{"progressPercentage":"half"}`), &u))

	assert.Error(t, TaskUpdate{Status: Set(TaskStatus("Archived"))}.Validate())
	assert.Error(t, TaskUpdate{ProgressPercentage: Set(150)}.Validate())
	assert.NoError(t, TaskUpdate{ProgressPercentage: Set(100)}.Validate())
	assert.True(t, TaskUpdate{}.IsEmpty())
}

func TestTaskUpdateApply(t *testing.T) {
	task := validTask()
	task.Description = strPtr("old")
	deadline := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	TaskUpdate{
		Status:             Set(StatusInProgress),
		Description:        Null[string](),
		Deadline:           Set(deadline),
		ProgressPercentage: Set(40),
	}.Apply(&task)

	assert.Equal(t, StatusInProgress, task.Status)
	assert.Nil(t, task.Description)
	require.NotNil(t, task.Deadline)
	assert.Equal(t, deadline, *task.Deadline)
	assert.Equal(t, 40, task.ProgressPercentage)
	assert.Equal(t, "Prepare quarterly report", task.Title, "unset fields are untouched")
}
