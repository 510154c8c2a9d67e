package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SortField names a column tasks can be ordered by.
type SortField string

const (
	SortByStatus    SortField = "status"
	SortByPriority  SortField = "priority"
	SortByDeadline  SortField = "deadline"
	SortByCreatedAt SortField = "createdAt"
	SortByTitle     SortField = "title"
)

// Valid reports whether f is a supported sort field.
func (f SortField) Valid() bool {
	switch f {
	case SortByStatus, SortByPriority, SortByDeadline, SortByCreatedAt, SortByTitle:
		return true
	}
	return false
}

// SortOrder is the direction of a sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Query parameter names shared by the client and the server.
const (
	ParamPage       = "page"
	ParamLimit      = "limit"
	ParamSortBy     = "sortBy"
	ParamSortOrder  = "sortOrder"
	ParamStatus     = "status"
	ParamPriority   = "priority"
	ParamAssigneeID = "assignedUserId"
	ParamAssignerID = "assignerId"
	ParamSearch     = "search"
	ParamDateFrom   = "dateFrom"
	ParamDateTo     = "dateTo"
	ParamOverdue    = "overdue"
)

// TaskFilter is the full filter state for listing tasks. Zero-valued
// fields mean "no constraint" and are left out of the query entirely.
type TaskFilter struct {
	Page      int
	Limit     int
	SortBy    SortField
	SortOrder SortOrder

	// Status and Priority match any of the listed values.
	Status   []TaskStatus
	Priority []Priority

	AssigneeID string
	AssignerID string

	// Search matches title and description text.
	Search string

	// DateFrom and DateTo bound the deadline (inclusive).
	DateFrom *time.Time
	DateTo   *time.Time

	Overdue *bool
}

// Query translates the filter into the flat string-keyed parameters the
// REST API expects. Multi-value filters are comma-joined.
func (f TaskFilter) Query() map[string]string {
	q := make(map[string]string)

	if f.Page > 0 {
		q[ParamPage] = strconv.Itoa(f.Page)
	}
	if f.Limit > 0 {
		q[ParamLimit] = strconv.Itoa(f.Limit)
	}
	if f.SortBy != "" {
		q[ParamSortBy] = string(f.SortBy)
	}
	if f.SortOrder != "" {
		q[ParamSortOrder] = string(f.SortOrder)
	}
	if len(f.Status) > 0 {
		parts := make([]string, len(f.Status))
		for i, s := range f.Status {
			parts[i] = string(s)
		}
		q[ParamStatus] = strings.Join(parts, ",")
	}
	if len(f.Priority) > 0 {
		parts := make([]string, len(f.Priority))
		for i, p := range f.Priority {
			parts[i] = string(p)
		}
		q[ParamPriority] = strings.Join(parts, ",")
	}
	if f.AssigneeID != "" {
		q[ParamAssigneeID] = f.AssigneeID
	}
	if f.AssignerID != "" {
		q[ParamAssignerID] = f.AssignerID
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q[ParamSearch] = s
	}
	if f.DateFrom != nil {
		q[ParamDateFrom] = f.DateFrom.UTC().Format(time.RFC3339)
	}
	if f.DateTo != nil {
		q[ParamDateTo] = f.DateTo.UTC().Format(time.RFC3339)
	}
	if f.Overdue != nil {
		q[ParamOverdue] = strconv.FormatBool(*f.Overdue)
	}

	return q
}

// Values returns the query as url.Values.
func (f TaskFilter) Values() url.Values {
	v := make(url.Values)
	for k, val := range f.Query() {
		v.Set(k, val)
	}
	return v
}

// Equal reports whether two filters select the same tasks, i.e. whether
// they translate to identical queries.
func (f TaskFilter) Equal(other TaskFilter) bool {
	return f.Values().Encode() == other.Values().Encode()
}

// Clone returns a copy of f that shares no slices or pointers with it.
func (f TaskFilter) Clone() TaskFilter {
	c := f
	if f.Status != nil {
		c.Status = append([]TaskStatus(nil), f.Status...)
	}
	if f.Priority != nil {
		c.Priority = append([]Priority(nil), f.Priority...)
	}
	c.DateFrom = clonePtr(f.DateFrom)
	c.DateTo = clonePtr(f.DateTo)
	c.Overdue = clonePtr(f.Overdue)
	return c
}

// ParseTaskFilter is the inverse of Query, used by the server to read
// list parameters. Unknown enum values are rejected.
func ParseTaskFilter(v url.Values) (TaskFilter, error) {
	var f TaskFilter

	if raw := v.Get(ParamPage); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid page %q", raw)
		}
		f.Page = n
	}
	if raw := v.Get(ParamLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid limit %q", raw)
		}
		f.Limit = n
	}
	if raw := v.Get(ParamSortBy); raw != "" {
		f.SortBy = SortField(raw)
		if !f.SortBy.Valid() {
			return f, fmt.Errorf("invalid sortBy %q", raw)
		}
	}
	if raw := v.Get(ParamSortOrder); raw != "" {
		f.SortOrder = SortOrder(strings.ToLower(raw))
		if f.SortOrder != SortAsc && f.SortOrder != SortDesc {
			return f, fmt.Errorf("invalid sortOrder %q", raw)
		}
	}
	for _, part := range splitList(v.Get(ParamStatus)) {
		s := TaskStatus(part)
		if !s.Valid() {
			return f, fmt.Errorf("invalid status %q", part)
		}
		f.Status = append(f.Status, s)
	}
	for _, part := range splitList(v.Get(ParamPriority)) {
		p := Priority(part)
		if !p.Valid() {
			return f, fmt.Errorf("invalid priority %q", part)
		}
		f.Priority = append(f.Priority, p)
	}
	f.AssigneeID = v.Get(ParamAssigneeID)
	f.AssignerID = v.Get(ParamAssignerID)
	f.Search = strings.TrimSpace(v.Get(ParamSearch))

	var err error
	if f.DateFrom, err = parseTimeParam(v, ParamDateFrom); err != nil {
		return f, err
	}
	if f.DateTo, err = parseTimeParam(v, ParamDateTo); err != nil {
		return f, err
	}
	if raw := v.Get(ParamOverdue); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid overdue %q", raw)
		}
		f.Overdue = &b
	}

	return f, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTimeParam(v url.Values, key string) (*time.Time, error) {
	raw := v.Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", key, raw)
	}
	return &t, nil
}

// Pagination describes the page of results returned by the last list call.
type Pagination struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination builds pagination metadata for a result window.
func NewPagination(total, page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
