package taskcache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/nhle/taskzen/internal/api"
	"github.com/nhle/taskzen/internal/model"
)

// Add creates a task on the server and prepends the created task to the
// list. Nothing is inserted until the server has assigned an id.
func (c *Cache) Add(ctx context.Context, task model.NewTask) (*model.Task, error) {
	op := &operation{name: "add"}
	op.run = func(ctx context.Context) error {
		_, err := c.add(ctx, op, task)
		return err
	}
	return c.add(ctx, op, task)
}

func (c *Cache) add(ctx context.Context, op *operation, task model.NewTask) (*model.Task, error) {
	created, err := c.client.CreateTask(ctx, task)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.fail(op, err)
		return nil, fmt.Errorf("creating task: %w", err)
	}

	c.tasks = append([]model.Task{created.Clone()}, c.tasks...)
	c.succeed()
	out := created.Clone()
	return &out, nil
}

// Update sends update and replaces the local task with the server's
// representation, which is authoritative for computed fields.
func (c *Cache) Update(ctx context.Context, id string, update model.TaskUpdate) (*model.Task, error) {
	op := &operation{name: "update"}
	op.run = func(ctx context.Context) error {
		_, err := c.update(ctx, op, id, update)
		return err
	}
	return c.update(ctx, op, id, update)
}

func (c *Cache) update(
	ctx context.Context,
	op *operation,
	id string,
	update model.TaskUpdate,
) (*model.Task, error) {
	updated, err := c.client.UpdateTask(ctx, id, update)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.fail(op, err)
		return nil, fmt.Errorf("updating task %s: %w", id, err)
	}

	if i := c.indexOf(id); i >= 0 {
		c.tasks[i] = updated.Clone()
	}
	c.succeed()
	out := updated.Clone()
	return &out, nil
}

// UpdateStatus changes a task's status optimistically: the local list
// shows the new status before the request completes. If the request
// fails, the task is restored to exactly what it was before this call.
//
// Two racing calls on the same task each restore their own snapshot, so
// if both fail the list can briefly show the first call's target status
// until the next load.
//
// The rollback restores the whole task, so fields refreshed by a Load
// that landed while the request was in flight revert along with the
// status.
func (c *Cache) UpdateStatus(ctx context.Context, id string, status model.TaskStatus) error {
	op := &operation{name: "updateStatus"}
	op.run = func(ctx context.Context) error {
		return c.updateStatus(ctx, op, id, status)
	}
	return c.updateStatus(ctx, op, id, status)
}

func (c *Cache) updateStatus(
	ctx context.Context,
	op *operation,
	id string,
	status model.TaskStatus,
) error {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		err := fmt.Errorf("updating status of %s: %w", id, ErrTaskNotFound)
		c.fail(op, err)
		c.mu.Unlock()
		return err
	}
	before := c.tasks[i].Clone()
	c.tasks[i].Status = status
	c.recompute()
	c.mu.Unlock()

	_, err := c.client.UpdateTask(ctx, id, model.TaskUpdate{Status: model.Set(status)})

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if j := c.indexOf(id); j >= 0 {
			c.tasks[j] = before
			c.recompute()
		}
		c.fail(op, err)
		return fmt.Errorf("updating status of %s: %w", id, err)
	}

	c.succeed()
	return nil
}

// Delete removes a task on the server, then from the list. Nothing is
// removed locally before the server confirms.
func (c *Cache) Delete(ctx context.Context, id string) error {
	op := &operation{name: "delete"}
	op.run = func(ctx context.Context) error {
		return c.delete(ctx, op, id)
	}
	return c.delete(ctx, op, id)
}

func (c *Cache) delete(ctx context.Context, op *operation, id string) error {
	err := c.client.DeleteTask(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.fail(op, err)
		return fmt.Errorf("deleting task %s: %w", id, err)
	}

	c.removeLocked(map[string]bool{id: true})
	c.succeed()
	return nil
}

// BulkError reports a bulk operation in which at least one request
// failed. The local list is unchanged when it is returned.
type BulkError struct {
	Op     string
	Failed []string
	Total  int
	Err    error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk %s failed for %d of %d tasks (%s): %v",
		e.Op, len(e.Failed), e.Total, strings.Join(e.Failed, ", "), e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

// UserMessage summarizes the failure for display.
func (e *BulkError) UserMessage() string {
	return fmt.Sprintf("Could not %s %d of %d tasks: %s",
		e.Op, len(e.Failed), e.Total, api.UserMessage(e.Err))
}

// BulkUpdate applies the same update to every id concurrently. The list
// changes only if every request succeeds.
func (c *Cache) BulkUpdate(ctx context.Context, ids []string, update model.TaskUpdate) error {
	op := &operation{name: "bulkUpdate"}
	op.run = func(ctx context.Context) error {
		return c.bulkUpdate(ctx, op, ids, update)
	}
	return c.bulkUpdate(ctx, op, ids, update)
}

func (c *Cache) bulkUpdate(
	ctx context.Context,
	op *operation,
	ids []string,
	update model.TaskUpdate,
) error {
	if len(ids) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		updated = make(map[string]model.Task, len(ids))
		failed  []string
	)
	p := pool.New().WithErrors()
	for _, id := range ids {
		p.Go(func() error {
			task, err := c.client.UpdateTask(ctx, id, update)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, id)
				return fmt.Errorf("task %s: %w", id, err)
			}
			updated[id] = task.Clone()
			return nil
		})
	}
	err := p.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		bulkErr := &BulkError{Op: "update", Failed: sortedCopy(failed, ids), Total: len(ids), Err: err}
		c.fail(op, bulkErr)
		return bulkErr
	}

	for i := range c.tasks {
		if task, ok := updated[c.tasks[i].ID]; ok {
			c.tasks[i] = task
		}
	}
	c.succeed()
	return nil
}

// BulkDelete deletes every id concurrently. The list changes only if
// every request succeeds.
func (c *Cache) BulkDelete(ctx context.Context, ids []string) error {
	op := &operation{name: "bulkDelete"}
	op.run = func(ctx context.Context) error {
		return c.bulkDelete(ctx, op, ids)
	}
	return c.bulkDelete(ctx, op, ids)
}

func (c *Cache) bulkDelete(ctx context.Context, op *operation, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		failed []string
	)
	p := pool.New().WithErrors()
	for _, id := range ids {
		p.Go(func() error {
			if err := c.client.DeleteTask(ctx, id); err != nil {
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
				return fmt.Errorf("task %s: %w", id, err)
			}
			return nil
		})
	}
	err := p.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		bulkErr := &BulkError{Op: "delete", Failed: sortedCopy(failed, ids), Total: len(ids), Err: err}
		c.fail(op, bulkErr)
		return bulkErr
	}

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	c.removeLocked(remove)
	c.succeed()
	return nil
}

// removeLocked drops every task whose id is in ids. mu must be held.
func (c *Cache) removeLocked(ids map[string]bool) {
	kept := c.tasks[:0]
	for _, t := range c.tasks {
		if !ids[t.ID] {
			kept = append(kept, t)
		}
	}
	c.tasks = kept
}

// sortedCopy orders failed ids as they appeared in the request.
func sortedCopy(failed, order []string) []string {
	in := make(map[string]bool, len(failed))
	for _, id := range failed {
		in[id] = true
	}
	out := make([]string, 0, len(failed))
	for _, id := range order {
		if in[id] {
			out = append(out, id)
			delete(in, id)
		}
	}
	return out
}
