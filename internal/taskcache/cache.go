// Package taskcache keeps a locally coherent view of the server's task
// collection. It caches list responses, applies status changes
// optimistically, and rolls back when the server rejects a change.
package taskcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/taskzen/internal/api"
	"github.com/nhle/taskzen/internal/model"
)

// DefaultTTL is how long a list response may be served from cache.
const DefaultTTL = 5 * time.Minute

// ErrTaskNotFound is returned when an operation names a task that is not
// in the local list.
var ErrTaskNotFound = errors.New("task not found in local list")

// TaskService is the subset of the REST client the cache depends on.
type TaskService interface {
	ListTasks(ctx context.Context, query map[string]string) (*api.TaskPage, error)
	CreateTask(ctx context.Context, task model.NewTask) (*model.Task, error)
	UpdateTask(ctx context.Context, id string, update model.TaskUpdate) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// LoadOutcome tells how a Load call ended.
type LoadOutcome int

const (
	// LoadFetched means a fresh response replaced the list.
	LoadFetched LoadOutcome = iota
	// LoadCached means a valid snapshot was served without a request.
	LoadCached
	// LoadSuperseded means a newer Load took over, the caller
	// cancelled, or a mutation changed the list while the request was in
	// flight; the result was discarded and nothing changed.
	LoadSuperseded
	// LoadFailed means the request failed; the previous list is kept and
	// the error message is set.
	LoadFailed
)

func (o LoadOutcome) String() string {
	switch o {
	case LoadFetched:
		return "fetched"
	case LoadCached:
		return "cached"
	case LoadSuperseded:
		return "superseded"
	case LoadFailed:
		return "failed"
	}
	return fmt.Sprintf("LoadOutcome(%d)", int(o))
}

// entry is a cached list response.
type entry struct {
	tasks      []model.Task
	pagination model.Pagination
	filters    model.TaskFilter
	timestamp  time.Time
}

// operation is a recorded mutation that can be replayed with the same
// arguments.
type operation struct {
	name string
	run  func(ctx context.Context) error
}

// State is a read-only copy of everything the cache exposes.
type State struct {
	Tasks      []model.Task
	Pagination model.Pagination
	Stats      Stats
	Filters    model.TaskFilter
	Error      string
	Loading    bool
}

// Cache owns the in-memory task list for the lifetime of a session. It is
// safe for concurrent use.
type Cache struct {
	client TaskService
	ttl    time.Duration
	now    func() time.Time

	mu         sync.Mutex
	tasks      []model.Task
	pagination model.Pagination
	stats      Stats
	filters    model.TaskFilter
	errMsg     string
	loading    bool
	snapshot   *entry
	loadSeq    uint64
	generation uint64 // bumped on every confirmed write and ClearCache
	cancelLoad context.CancelFunc
	lastFailed *operation
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides how long list responses stay valid.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache backed by client.
func New(client TaskService, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stats = ComputeStats(nil, c.now())
	return c
}

// State returns a copy of the current state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Tasks:      cloneTasks(c.tasks),
		Pagination: c.pagination,
		Stats:      c.stats.clone(),
		Filters:    c.filters.Clone(),
		Error:      c.errMsg,
		Loading:    c.loading,
	}
}

// Tasks returns a copy of the current task list.
func (c *Cache) Tasks() []model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneTasks(c.tasks)
}

// Task returns a copy of the task with the given id.
func (c *Cache) Task(id string) (model.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.tasks[i].Clone(), true
	}
	return model.Task{}, false
}

// Stats returns the statistics for the current list.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.clone()
}

// Err returns the current error message, empty when there is none.
func (c *Cache) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Filters returns the current filter state.
func (c *Cache) Filters() model.TaskFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters.Clone()
}

// Load fetches the tasks matching filter, unless a snapshot for the same
// filter is younger than the TTL. Starting a Load cancels any Load still
// in flight; only the most recently issued Load may change the list.
// Failures set the error message but are not returned.
func (c *Cache) Load(ctx context.Context, filter model.TaskFilter) LoadOutcome {
	c.mu.Lock()
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	c.loadSeq++
	seq := c.loadSeq
	gen := c.generation

	if c.snapshotValid(filter) {
		c.tasks = cloneTasks(c.snapshot.tasks)
		c.pagination = c.snapshot.pagination
		c.errMsg = ""
		c.loading = false
		c.recompute()
		c.mu.Unlock()
		return LoadCached
	}

	loadCtx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	c.loading = true
	c.mu.Unlock()

	page, err := c.client.ListTasks(loadCtx, filter.Query())

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()

	if seq != c.loadSeq {
		return LoadSuperseded
	}
	c.cancelLoad = nil
	c.loading = false

	if err != nil {
		if api.IsCanceled(err) {
			return LoadSuperseded
		}
		c.errMsg = api.UserMessage(err)
		return LoadFailed
	}
	if gen != c.generation {
		// The response predates a confirmed write. The list already holds
		// that write, and the next Load fetches again.
		return LoadSuperseded
	}

	c.tasks = cloneTasks(page.Tasks)
	c.pagination = page.Pagination
	c.snapshot = &entry{
		tasks:      cloneTasks(page.Tasks),
		pagination: page.Pagination,
		filters:    filter.Clone(),
		timestamp:  c.now(),
	}
	c.errMsg = ""
	c.recompute()
	return LoadFetched
}

// snapshotValid must be called with mu held.
func (c *Cache) snapshotValid(filter model.TaskFilter) bool {
	if c.snapshot == nil {
		return false
	}
	if c.now().Sub(c.snapshot.timestamp) >= c.ttl {
		return false
	}
	return c.snapshot.filters.Equal(filter)
}

// SetFilters replaces the filter state and loads with it.
func (c *Cache) SetFilters(ctx context.Context, filter model.TaskFilter) LoadOutcome {
	c.mu.Lock()
	c.filters = filter.Clone()
	c.mu.Unlock()
	return c.Load(ctx, filter)
}

// ClearFilters resets to the empty filter and loads.
func (c *Cache) ClearFilters(ctx context.Context) LoadOutcome {
	return c.SetFilters(ctx, model.TaskFilter{})
}

// Refresh loads with the current filters.
func (c *Cache) Refresh(ctx context.Context) LoadOutcome {
	return c.Load(ctx, c.Filters())
}

// InvalidateCache drops the snapshot and reloads with the current filters.
func (c *Cache) InvalidateCache(ctx context.Context) LoadOutcome {
	c.ClearCache()
	return c.Refresh(ctx)
}

// ClearCache drops the snapshot without reloading.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.generation++
}

// RetryLastOperation replays the most recent failed mutation with the
// same arguments. Without one it reloads.
func (c *Cache) RetryLastOperation(ctx context.Context) error {
	c.mu.Lock()
	op := c.lastFailed
	c.mu.Unlock()

	if op == nil {
		c.Refresh(ctx)
		return nil
	}

	err := op.run(ctx)
	if err == nil {
		c.mu.Lock()
		if c.lastFailed == op {
			c.lastFailed = nil
		}
		c.mu.Unlock()
	}
	return err
}

// LastFailedOperation returns the name of the mutation RetryLastOperation
// would replay, or "" when it would reload.
func (c *Cache) LastFailedOperation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastFailed == nil {
		return ""
	}
	return c.lastFailed.name
}

// fail records a failed mutation. It must be called with mu held.
func (c *Cache) fail(op *operation, err error) {
	var bulkErr *BulkError
	if errors.As(err, &bulkErr) {
		c.errMsg = bulkErr.UserMessage()
	} else {
		c.errMsg = api.UserMessage(err)
	}
	c.lastFailed = op
}

// succeed clears the error after a mutation changed the list and drops
// the snapshot, whose contents and counts are now stale. It must be
// called with mu held.
func (c *Cache) succeed() {
	c.errMsg = ""
	c.snapshot = nil
	c.generation++
	c.recompute()
}

// recompute must be called with mu held after every change to the list.
func (c *Cache) recompute() {
	c.stats = ComputeStats(c.tasks, c.now())
}

// indexOf must be called with mu held.
func (c *Cache) indexOf(id string) int {
	for i := range c.tasks {
		if c.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneTasks(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
	}
	return out
}
