package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/taskzen/internal/model"
)

// ListTasks fetches a page of tasks. query is the flat parameter map
// produced by model.TaskFilter.Query.
func (c *Client) ListTasks(ctx context.Context, query map[string]string) (*TaskPage, error) {
	values := make(url.Values, len(query))
	for k, v := range query {
		values.Set(k, v)
	}

	var page TaskPage
	if err := c.get(ctx, "/tasks", values, &page); err != nil {
		return nil, err
	}
	if page.Tasks == nil {
		page.Tasks = []model.Task{}
	}
	return &page, nil
}

// CreateTask creates a task and returns it with its server-assigned id.
func (c *Client) CreateTask(ctx context.Context, task model.NewTask) (*model.Task, error) {
	var created model.Task
	if err := c.post(ctx, "/tasks", task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask sends a partial update and returns the server's view of the
// task after the change.
func (c *Client) UpdateTask(ctx context.Context, id string, update model.TaskUpdate) (*model.Task, error) {
	var updated model.Task
	if err := c.put(ctx, taskPath(id), update, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.delete(ctx, taskPath(id))
}

func taskPath(id string) string {
	return fmt.Sprintf("/tasks/%s", url.PathEscape(id))
}
