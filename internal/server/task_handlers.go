package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nhle/taskzen/internal/model"
	"github.com/nhle/taskzen/internal/store"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type taskListResponse struct {
	Tasks      []model.Task     `json:"tasks"`
	Pagination model.Pagination `json:"pagination"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	filter, err := model.ParseTaskFilter(r.URL.Query())
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := max(filter.Page, 1)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	q := store.TaskQuery{
		Statuses:   filter.Status,
		Priorities: filter.Priority,
		AssigneeID: filter.AssigneeID,
		AssignerID: filter.AssignerID,
		Search:     filter.Search,
		DateFrom:   filter.DateFrom,
		DateTo:     filter.DateTo,
		Overdue:    filter.Overdue,
		Now:        s.now(),
		SortBy:     filter.SortBy,
		SortDesc:   filter.SortOrder == model.SortDesc,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}
	if filter.SortBy == "" {
		q.SortBy = model.SortByCreatedAt
		q.SortDesc = filter.SortOrder != model.SortAsc
	}
	if !user.Role.Satisfies(model.RoleAdmin) {
		q.VisibleTo = user.ID
	}

	total, err := s.store.CountTasks(r.Context(), q)
	if err != nil {
		s.internalError(w, r, "counting tasks", err)
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), q)
	if err != nil {
		s.internalError(w, r, "listing tasks", err)
		return
	}

	sendJSON(w, http.StatusOK, taskListResponse{
		Tasks:      tasks,
		Pagination: model.NewPagination(total, page, limit),
	})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var req model.NewTask
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		sendError(w, http.StatusBadRequest, "Title is required")
		return
	}

	isAdmin := user.Role.Satisfies(model.RoleAdmin)
	task := model.Task{
		Title:              strings.TrimSpace(req.Title),
		Description:        req.Description,
		Priority:           req.Priority,
		Status:             req.Status,
		Deadline:           req.Deadline,
		SuggestedDeadline:  req.SuggestedDeadline,
		SuggestedPriority:  req.SuggestedPriority,
		AssignerID:         user.ID,
		Attachments:        req.Attachments,
		ProgressPercentage: req.ProgressPercentage,
		TimerDuration:      req.TimerDuration,
	}
	if task.Priority == "" {
		task.Priority = model.PriorityMedium
	}

	if req.AssignedUserID == nil || *req.AssignedUserID == "" {
		// A task nobody is assigned to yet is a proposal awaiting approval.
		task.Status = model.StatusPendingApproval
	} else {
		assignee := *req.AssignedUserID
		if assignee != user.ID && !isAdmin {
			sendError(w, http.StatusForbidden, "Only admins can assign tasks to other users")
			return
		}
		if _, err := s.store.GetUser(r.Context(), assignee); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				sendError(w, http.StatusBadRequest, "Assigned user does not exist")
				return
			}
			s.internalError(w, r, "loading assignee", err)
			return
		}
		task.AssignedUserID = &assignee
		if task.Status == "" {
			task.Status = model.StatusToDo
		}
	}

	if !task.Status.Valid() {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", task.Status))
		return
	}
	if task.Status == model.StatusCompleted {
		now := s.now().UTC()
		task.CompletedAt = &now
	}
	if err := task.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.store.CreateTask(r.Context(), task)
	if err != nil {
		s.internalError(w, r, "creating task", err)
		return
	}
	sendJSON(w, http.StatusCreated, created)
}

// loadVisibleTask fetches the task named in the URL. Tasks the user may
// not see are reported as missing. It writes the error response itself
// and returns nil in that case.
func (s *Server) loadVisibleTask(w http.ResponseWriter, r *http.Request, user *model.User) *model.Task {
	id := chi.URLParam(r, "id")
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, http.StatusNotFound, "Task not found")
			return nil
		}
		s.internalError(w, r, "loading task", err)
		return nil
	}
	if !canSee(user, task) {
		sendError(w, http.StatusNotFound, "Task not found")
		return nil
	}
	return task
}

func canSee(user *model.User, task *model.Task) bool {
	if user.Role.Satisfies(model.RoleAdmin) || task.AssignerID == user.ID {
		return true
	}
	return task.AssignedUserID != nil && *task.AssignedUserID == user.ID
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var update model.TaskUpdate
	if err := decodeJSON(r, &update); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if update.IsEmpty() {
		sendError(w, http.StatusBadRequest, "No fields to update")
		return
	}
	if err := update.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	task := s.loadVisibleTask(w, r, user)
	if task == nil {
		return
	}

	if herr := checkUpdate(user, task, update); herr != nil {
		sendError(w, herr.code, herr.msg)
		return
	}

	if update.AssignedUserID.IsSet() {
		if id, ok := update.AssignedUserID.Get(); ok {
			if _, err := s.store.GetUser(r.Context(), id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					sendError(w, http.StatusBadRequest, "Assigned user does not exist")
					return
				}
				s.internalError(w, r, "loading assignee", err)
				return
			}
		}
	}

	wasCompleted := task.Status == model.StatusCompleted
	update.Apply(task)
	switch {
	case task.Status == model.StatusCompleted && !wasCompleted:
		now := s.now().UTC()
		task.CompletedAt = &now
	case task.Status != model.StatusCompleted:
		task.CompletedAt = nil
	}
	if err := task.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.store.UpdateTask(r.Context(), *task)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, http.StatusNotFound, "Task not found")
			return
		}
		s.internalError(w, r, "updating task", err)
		return
	}
	sendJSON(w, http.StatusOK, updated)
}

// httpError is a rejected request with its response code.
type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

// checkUpdate enforces who may change what. It returns nil when the
// update is allowed.
func checkUpdate(user *model.User, task *model.Task, u model.TaskUpdate) *httpError {
	isAdmin := user.Role.Satisfies(model.RoleAdmin)

	if u.AssignedUserID.IsSet() && !isAdmin && task.AssignerID != user.ID {
		return &httpError{http.StatusForbidden, "Only the assigner or an admin can reassign a task"}
	}

	next, ok := u.Status.Get()
	if !ok || next == task.Status {
		return nil
	}
	if !model.CanTransition(task.Status, next) {
		return &httpError{http.StatusBadRequest,
			fmt.Sprintf("Cannot move a task from %s to %s", task.Status, next)}
	}
	if task.Status == model.StatusPendingApproval && !isAdmin {
		return &httpError{http.StatusForbidden, "Only admins can review proposed tasks"}
	}
	return nil
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	task := s.loadVisibleTask(w, r, user)
	if task == nil {
		return
	}
	if task.AssignerID != user.ID && !user.Role.Satisfies(model.RoleAdmin) {
		sendError(w, http.StatusForbidden, "Only the assigner or an admin can delete a task")
		return
	}

	if err := s.store.SoftDeleteTask(r.Context(), task.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, http.StatusNotFound, "Task not found")
			return
		}
		s.internalError(w, r, "deleting task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
