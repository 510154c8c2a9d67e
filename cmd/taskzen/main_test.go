package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskzen/internal/model"
)

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]model.TaskStatus{
		"in progress":      model.StatusInProgress,
		"In-Progress":      model.StatusInProgress,
		"todo":             model.StatusToDo,
		"PENDING_APPROVAL": model.StatusPendingApproval,
		"completed":        model.StatusCompleted,
	} {
		got, err := parseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseStatus("archived")
	assert.Error(t, err)
}

func TestTaskFlagsFilter(t *testing.T) {
	tf := taskFlags{
		status:   "todo, in progress",
		priority: "HIGH",
		search:   "report",
		from:     "2026-05-01",
		overdue:  "false",
		sortBy:   "deadline",
		order:    "desc",
		page:     2,
		limit:    20,
	}

	f, err := tf.filter()
	require.NoError(t, err)
	assert.Equal(t, []model.TaskStatus{model.StatusToDo, model.StatusInProgress}, f.Status)
	assert.Equal(t, []model.Priority{model.PriorityHigh}, f.Priority)
	assert.Equal(t, "report", f.Search)
	require.NotNil(t, f.DateFrom)
	assert.True(t, f.DateFrom.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.Local)))
	require.NotNil(t, f.Overdue)
	assert.False(t, *f.Overdue)
	assert.Equal(t, model.SortByDeadline, f.SortBy)
	assert.Equal(t, model.SortDesc, f.SortOrder)
	assert.Equal(t, 2, f.Page)
	assert.Equal(t, 20, f.Limit)
}

func TestTaskFlagsFilterRejectsBadInput(t *testing.T) {
	for _, tf := range []taskFlags{
		{priority: "urgent"},
		{from: "next week"},
		{overdue: "maybe"},
		{sortBy: "color"},
	} {
		_, err := tf.filter()
		assert.Error(t, err, "%+v", tf)
	}
}
