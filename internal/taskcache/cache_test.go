package taskcache

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskzen/internal/api"
	"github.com/nhle/taskzen/internal/model"
)

type fakeService struct {
	mu        sync.Mutex
	listCalls []map[string]string

	list   func(ctx context.Context, query map[string]string) (*api.TaskPage, error)
	create func(ctx context.Context, task model.NewTask) (*model.Task, error)
	update func(ctx context.Context, id string, u model.TaskUpdate) (*model.Task, error)
	del    func(ctx context.Context, id string) error
}

func (f *fakeService) ListTasks(ctx context.Context, query map[string]string) (*api.TaskPage, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, query)
	f.mu.Unlock()
	return f.list(ctx, query)
}

func (f *fakeService) CreateTask(ctx context.Context, task model.NewTask) (*model.Task, error) {
	return f.create(ctx, task)
}

func (f *fakeService) UpdateTask(ctx context.Context, id string, u model.TaskUpdate) (*model.Task, error) {
	return f.update(ctx, id, u)
}

func (f *fakeService) DeleteTask(ctx context.Context, id string) error {
	return f.del(ctx, id)
}

func (f *fakeService) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listCalls)
}

func (f *fakeService) lastQuery() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[len(f.listCalls)-1]
}

func serverError() error {
	return &api.APIError{StatusCode: http.StatusInternalServerError, Method: "PUT", Path: "/tasks/1", Message: "boom"}
}

func newTask(id string, status model.TaskStatus) model.Task {
	assignee := "u-2"
	return model.Task{
		ID:             id,
		Title:          "task " + id,
		Priority:       model.PriorityMedium,
		Status:         status,
		AssignerID:     "u-1",
		AssignedUserID: &assignee,
		Comments:       []model.TaskComment{{ID: "c-" + id, Content: "hello", Author: "u-1"}},
	}
}

func staticList(tasks ...model.Task) func(context.Context, map[string]string) (*api.TaskPage, error) {
	return func(context.Context, map[string]string) (*api.TaskPage, error) {
		out := make([]model.Task, len(tasks))
		for i := range tasks {
			out[i] = tasks[i].Clone()
		}
		return &api.TaskPage{
			Tasks:      out,
			Pagination: model.NewPagination(len(tasks), 1, 20),
		}, nil
	}
}

// seeded returns a cache whose list was loaded with tasks.
func seeded(t *testing.T, svc *fakeService, tasks ...model.Task) *Cache {
	t.Helper()
	if svc.list == nil {
		svc.list = staticList(tasks...)
	}
	c := New(svc)
	require.Equal(t, LoadFetched, c.Load(context.Background(), model.TaskFilter{}))
	return c
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLoadServesSnapshotForSameFilter(t *testing.T) {
	svc := &fakeService{list: staticList(newTask("1", model.StatusToDo))}
	clk := &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	c := New(svc, WithClock(clk.Now))
	ctx := context.Background()

	filter := model.TaskFilter{Status: []model.TaskStatus{model.StatusToDo}}
	assert.Equal(t, LoadFetched, c.Load(ctx, filter))

	clk.Advance(4 * time.Minute)
	sameButRebuilt := model.TaskFilter{Status: []model.TaskStatus{"To Do"}}
	assert.Equal(t, LoadCached, c.Load(ctx, sameButRebuilt))
	assert.Equal(t, 1, svc.listCount())
	assert.Len(t, c.Tasks(), 1)

	other := model.TaskFilter{Search: "report"}
	assert.Equal(t, LoadFetched, c.Load(ctx, other))
	assert.Equal(t, 2, svc.listCount())
}

func TestLoadRefetchesExpiredSnapshot(t *testing.T) {
	svc := &fakeService{list: staticList(newTask("1", model.StatusToDo))}
	clk := &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	c := New(svc, WithClock(clk.Now))
	ctx := context.Background()

	c.Load(ctx, model.TaskFilter{})
	clk.Advance(5 * time.Minute)
	assert.Equal(t, LoadFetched, c.Load(ctx, model.TaskFilter{}))
	assert.Equal(t, 2, svc.listCount())
}

func TestLoadFailureKeepsPreviousList(t *testing.T) {
	svc := &fakeService{}
	c := seeded(t, svc, newTask("1", model.StatusToDo))
	c.ClearCache()

	svc.list = func(context.Context, map[string]string) (*api.TaskPage, error) {
		return nil, &api.APIError{StatusCode: http.StatusBadRequest, Message: "invalid status \"Nope\""}
	}

	assert.Equal(t, LoadFailed, c.Load(context.Background(), model.TaskFilter{}))
	state := c.State()
	assert.Len(t, state.Tasks, 1)
	assert.Equal(t, `invalid status "Nope"`, state.Error)
	assert.False(t, state.Loading)
}

func TestLoadLastIssuedWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	svc := &fakeService{
		list: func(_ context.Context, q map[string]string) (*api.TaskPage, error) {
			if q[model.ParamSearch] == "slow" {
				close(started)
				<-release
				// Ignores cancellation on purpose: the late answer must
				// still be discarded.
				return &api.TaskPage{Tasks: []model.Task{newTask("stale", model.StatusToDo)}}, nil
			}
			return &api.TaskPage{Tasks: []model.Task{newTask("fresh", model.StatusToDo)}}, nil
		},
	}
	c := New(svc)
	ctx := context.Background()

	first := make(chan LoadOutcome, 1)
	go func() { first <- c.Load(ctx, model.TaskFilter{Search: "slow"}) }()
	<-started

	assert.Equal(t, LoadFetched, c.Load(ctx, model.TaskFilter{Search: "fast"}))
	close(release)

	assert.Equal(t, LoadSuperseded, <-first)
	tasks := c.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "fresh", tasks[0].ID)
	assert.Empty(t, c.Err())
}

func TestLoadInFlightDuringAddDoesNotRestoreStaleList(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int

	svc := &fakeService{
		list: func(context.Context, map[string]string) (*api.TaskPage, error) {
			calls++
			if calls == 1 {
				close(started)
				<-release
				return &api.TaskPage{Tasks: []model.Task{newTask("1", model.StatusToDo)}}, nil
			}
			return &api.TaskPage{Tasks: []model.Task{
				newTask("2", model.StatusToDo),
				newTask("1", model.StatusToDo),
			}}, nil
		},
		create: func(context.Context, model.NewTask) (*model.Task, error) {
			task := newTask("2", model.StatusToDo)
			return &task, nil
		},
	}
	c := New(svc)
	ctx := context.Background()

	first := make(chan LoadOutcome, 1)
	go func() { first <- c.Load(ctx, model.TaskFilter{}) }()
	<-started

	_, err := c.Add(ctx, model.NewTask{Title: "task 2"})
	require.NoError(t, err)
	close(release)

	assert.Equal(t, LoadSuperseded, <-first)
	tasks := c.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "2", tasks[0].ID, "the confirmed add is kept")
	assert.False(t, c.State().Loading)

	assert.Equal(t, LoadFetched, c.Load(ctx, model.TaskFilter{}))
	assert.Equal(t, 2, svc.listCount())
	assert.Len(t, c.Tasks(), 2)
}

func TestLoadInFlightDuringClearCacheIsNotStored(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int

	svc := &fakeService{
		list: func(context.Context, map[string]string) (*api.TaskPage, error) {
			calls++
			if calls == 1 {
				close(started)
				<-release
			}
			return &api.TaskPage{Tasks: []model.Task{newTask("1", model.StatusToDo)}}, nil
		},
	}
	c := New(svc)
	ctx := context.Background()

	first := make(chan LoadOutcome, 1)
	go func() { first <- c.Load(ctx, model.TaskFilter{}) }()
	<-started
	c.ClearCache()
	close(release)

	assert.Equal(t, LoadSuperseded, <-first)
	assert.Equal(t, LoadFetched, c.Load(ctx, model.TaskFilter{}))
	assert.Equal(t, 2, svc.listCount())
}

func TestLoadCancelledRequestIsNotAnError(t *testing.T) {
	started := make(chan struct{})
	svc := &fakeService{
		list: func(ctx context.Context, q map[string]string) (*api.TaskPage, error) {
			if q[model.ParamSearch] == "slow" {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return &api.TaskPage{Tasks: []model.Task{newTask("fresh", model.StatusToDo)}}, nil
		},
	}
	c := New(svc)
	ctx := context.Background()

	first := make(chan LoadOutcome, 1)
	go func() { first <- c.Load(ctx, model.TaskFilter{Search: "slow"}) }()
	<-started

	assert.Equal(t, LoadFetched, c.Load(ctx, model.TaskFilter{Search: "fast"}))
	assert.Equal(t, LoadSuperseded, <-first)
	assert.Empty(t, c.Err())
	assert.Len(t, c.Tasks(), 1)
}

func TestSetFiltersTranslatesQuery(t *testing.T) {
	svc := &fakeService{list: staticList()}
	c := New(svc)

	c.SetFilters(context.Background(), model.TaskFilter{
		Status: []model.TaskStatus{model.StatusToDo, model.StatusInProgress},
	})

	assert.Equal(t, map[string]string{"status": "To Do,In Progress"}, svc.lastQuery())
	assert.Equal(t, []model.TaskStatus{model.StatusToDo, model.StatusInProgress}, c.Filters().Status)

	c.ClearFilters(context.Background())
	assert.Empty(t, svc.lastQuery())
	assert.Empty(t, c.Filters().Status)
}

func TestUpdateStatusIsOptimisticAndRollsBack(t *testing.T) {
	called := make(chan struct{})
	release := make(chan error)
	svc := &fakeService{
		update: func(context.Context, string, model.TaskUpdate) (*model.Task, error) {
			close(called)
			return nil, <-release
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo))
	before, ok := c.Task("1")
	require.True(t, ok)

	done := make(chan error, 1)
	go func() { done <- c.UpdateStatus(context.Background(), "1", model.StatusInProgress) }()
	<-called

	during, _ := c.Task("1")
	assert.Equal(t, model.StatusInProgress, during.Status)
	assert.Equal(t, 1, c.Stats().ByStatus[model.StatusInProgress])

	release <- serverError()
	err := <-done
	require.Error(t, err)

	after, _ := c.Task("1")
	assert.Equal(t, before, after)
	assert.Equal(t, model.StatusToDo, after.Status)
	assert.NotEmpty(t, c.Err())
	assert.Equal(t, 1, c.Stats().ByStatus[model.StatusToDo])
}

func TestUpdateStatusSuccessKeepsOptimisticValue(t *testing.T) {
	var sent model.TaskUpdate
	svc := &fakeService{
		update: func(_ context.Context, id string, u model.TaskUpdate) (*model.Task, error) {
			sent = u
			task := newTask(id, model.StatusCompleted)
			return &task, nil
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo))

	require.NoError(t, c.UpdateStatus(context.Background(), "1", model.StatusCompleted))

	task, _ := c.Task("1")
	assert.Equal(t, model.StatusCompleted, task.Status)
	assert.Equal(t, []string{model.FieldStatus}, sent.Fields())

	// The snapshot was dropped, so the next load goes to the server.
	assert.Equal(t, LoadFetched, c.Load(context.Background(), model.TaskFilter{}))
}

func TestUpdateStatusUnknownTask(t *testing.T) {
	svc := &fakeService{}
	c := seeded(t, svc, newTask("1", model.StatusToDo))

	err := c.UpdateStatus(context.Background(), "missing", model.StatusCompleted)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestAddPrependsServerTask(t *testing.T) {
	svc := &fakeService{
		create: func(_ context.Context, nt model.NewTask) (*model.Task, error) {
			task := newTask("srv-9", model.StatusToDo)
			task.Title = nt.Title
			return &task, nil
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo))

	created, err := c.Add(context.Background(), model.NewTask{Title: "Write report"})
	require.NoError(t, err)
	assert.Equal(t, "srv-9", created.ID)

	tasks := c.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "srv-9", tasks[0].ID)
	assert.Equal(t, "Write report", tasks[0].Title)

	assert.Equal(t, LoadFetched, c.Load(context.Background(), model.TaskFilter{}))
	assert.Equal(t, 2, svc.listCount())
}

func TestAddFailureLeavesListUnchanged(t *testing.T) {
	svc := &fakeService{
		create: func(context.Context, model.NewTask) (*model.Task, error) {
			return nil, &api.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "task title must not be empty"}
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo))

	_, err := c.Add(context.Background(), model.NewTask{})
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusUnprocessableEntity))
	assert.Len(t, c.Tasks(), 1)
	assert.Equal(t, "task title must not be empty", c.Err())
}

func TestUpdateReplacesWithServerRepresentation(t *testing.T) {
	svc := &fakeService{
		update: func(_ context.Context, id string, u model.TaskUpdate) (*model.Task, error) {
			task := newTask(id, model.StatusToDo)
			u.Apply(&task)
			task.AssigneeName = "Grace Hopper"
			return &task, nil
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo), newTask("2", model.StatusToDo))

	_, err := c.Update(context.Background(), "2", model.TaskUpdate{Priority: model.Set(model.PriorityHigh)})
	require.NoError(t, err)

	task, _ := c.Task("2")
	assert.Equal(t, model.PriorityHigh, task.Priority)
	assert.Equal(t, "Grace Hopper", task.AssigneeName)
	other, _ := c.Task("1")
	assert.Equal(t, model.PriorityMedium, other.Priority)
}

func TestUpdateFailureLeavesListUnchanged(t *testing.T) {
	svc := &fakeService{
		update: func(context.Context, string, model.TaskUpdate) (*model.Task, error) {
			return nil, serverError()
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo))

	_, err := c.Update(context.Background(), "1", model.TaskUpdate{Title: model.Set("renamed")})
	require.Error(t, err)

	task, _ := c.Task("1")
	assert.Equal(t, "task 1", task.Title)
	assert.NotEmpty(t, c.Err())
}

func TestDelete(t *testing.T) {
	fail := true
	svc := &fakeService{
		del: func(context.Context, string) error {
			if fail {
				return serverError()
			}
			return nil
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo), newTask("2", model.StatusToDo))

	require.Error(t, c.Delete(context.Background(), "1"))
	assert.Len(t, c.Tasks(), 2)

	fail = false
	require.NoError(t, c.Delete(context.Background(), "1"))
	tasks := c.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "2", tasks[0].ID)
	assert.Empty(t, c.Err())
}

func TestBulkUpdateIsAllOrNothing(t *testing.T) {
	svc := &fakeService{
		update: func(_ context.Context, id string, u model.TaskUpdate) (*model.Task, error) {
			if id == "2" {
				return nil, serverError()
			}
			task := newTask(id, model.StatusToDo)
			u.Apply(&task)
			return &task, nil
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo), newTask("2", model.StatusToDo))

	err := c.BulkUpdate(context.Background(), []string{"1", "2"}, model.TaskUpdate{Priority: model.Set(model.PriorityHigh)})
	require.Error(t, err)

	var bulkErr *BulkError
	require.True(t, errors.As(err, &bulkErr))
	assert.Equal(t, []string{"2"}, bulkErr.Failed)
	assert.Equal(t, 2, bulkErr.Total)

	for _, task := range c.Tasks() {
		assert.Equal(t, model.PriorityMedium, task.Priority, "task %s", task.ID)
	}
	assert.Contains(t, c.Err(), "1 of 2")
}

func TestBulkUpdateAppliesAllResults(t *testing.T) {
	svc := &fakeService{
		update: func(_ context.Context, id string, u model.TaskUpdate) (*model.Task, error) {
			task := newTask(id, model.StatusToDo)
			u.Apply(&task)
			return &task, nil
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo), newTask("2", model.StatusToDo), newTask("3", model.StatusToDo))

	err := c.BulkUpdate(context.Background(), []string{"1", "3"}, model.TaskUpdate{Priority: model.Set(model.PriorityHigh)})
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 2, stats.ByPriority[model.PriorityHigh])
	assert.Equal(t, 1, stats.ByPriority[model.PriorityMedium])
}

func TestBulkDelete(t *testing.T) {
	var mu sync.Mutex
	deleted := map[string]bool{}
	svc := &fakeService{
		del: func(_ context.Context, id string) error {
			mu.Lock()
			defer mu.Unlock()
			deleted[id] = true
			return nil
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo), newTask("2", model.StatusToDo), newTask("3", model.StatusToDo))

	require.NoError(t, c.BulkDelete(context.Background(), []string{"1", "3"}))
	tasks := c.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "2", tasks[0].ID)
	assert.Equal(t, map[string]bool{"1": true, "3": true}, deleted)
}

func TestBulkDeleteFailureKeepsEveryTask(t *testing.T) {
	svc := &fakeService{
		del: func(_ context.Context, id string) error {
			if id == "3" {
				return serverError()
			}
			return nil
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo), newTask("3", model.StatusToDo))

	err := c.BulkDelete(context.Background(), []string{"1", "3"})
	require.Error(t, err)
	assert.Len(t, c.Tasks(), 2)
}

func TestRetryLastOperation(t *testing.T) {
	fail := true
	svc := &fakeService{
		update: func(_ context.Context, id string, u model.TaskUpdate) (*model.Task, error) {
			if fail {
				return nil, serverError()
			}
			task := newTask(id, model.StatusToDo)
			u.Apply(&task)
			return &task, nil
		},
	}
	c := seeded(t, svc, newTask("1", model.StatusToDo))
	ctx := context.Background()

	require.Error(t, c.UpdateStatus(ctx, "1", model.StatusInProgress))
	assert.Equal(t, "updateStatus", c.LastFailedOperation())

	fail = false
	require.NoError(t, c.RetryLastOperation(ctx))

	task, _ := c.Task("1")
	assert.Equal(t, model.StatusInProgress, task.Status)
	assert.Empty(t, c.LastFailedOperation())
	assert.Empty(t, c.Err())
}

func TestRetryWithoutFailedOperationReloads(t *testing.T) {
	svc := &fakeService{}
	c := seeded(t, svc, newTask("1", model.StatusToDo))
	c.ClearCache()

	require.NoError(t, c.RetryLastOperation(context.Background()))
	assert.Equal(t, 2, svc.listCount())
}

func TestInvalidateCacheForcesReload(t *testing.T) {
	svc := &fakeService{}
	c := seeded(t, svc, newTask("1", model.StatusToDo))

	assert.Equal(t, LoadFetched, c.InvalidateCache(context.Background()))
	assert.Equal(t, 2, svc.listCount())
}

func TestStateIsACopy(t *testing.T) {
	svc := &fakeService{}
	c := seeded(t, svc, newTask("1", model.StatusToDo))

	state := c.State()
	state.Tasks[0].Status = model.StatusRejected
	state.Tasks[0].Comments[0].Content = "changed"
	state.Stats.ByStatus[model.StatusToDo] = 99

	task, _ := c.Task("1")
	assert.Equal(t, model.StatusToDo, task.Status)
	assert.Equal(t, "hello", task.Comments[0].Content)
	assert.Equal(t, 1, c.Stats().ByStatus[model.StatusToDo])
}
