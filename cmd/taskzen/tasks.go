package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nhle/taskzen/internal/model"
	"github.com/nhle/taskzen/internal/taskcache"
)

// workingSetLimit is the page size used when a command needs to find
// tasks by id in the local list.
const workingSetLimit = 100

func normalize(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(s))
}

// parseStatus accepts a status in any case, with or without separators
// ("in-progress", "In Progress").
func parseStatus(s string) (model.TaskStatus, error) {
	for _, st := range model.AllStatuses() {
		if normalize(string(st)) == normalize(s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func parsePriority(s string) (model.Priority, error) {
	for _, p := range model.AllPriorities() {
		if normalize(string(p)) == normalize(s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// parseDate accepts YYYY-MM-DD in local time or a full RFC 3339 value.
func parseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// taskFlags collects the listing flags shared by tasks and stats.
type taskFlags struct {
	status, priority, assignee, assigner, search string
	from, to, overdue, sortBy, order             string
	page, limit                                  int
}

func (f *taskFlags) register(flags *flag.FlagSet) {
	flags.StringVar(&f.status, "status", "", "comma-separated statuses")
	flags.StringVar(&f.priority, "priority", "", "comma-separated priorities")
	flags.StringVar(&f.assignee, "assignee", "", "assignee user id")
	flags.StringVar(&f.assigner, "assigner", "", "assigner user id")
	flags.StringVar(&f.search, "search", "", "text in title or description")
	flags.StringVar(&f.from, "due-from", "", "earliest deadline (YYYY-MM-DD)")
	flags.StringVar(&f.to, "due-to", "", "latest deadline (YYYY-MM-DD)")
	flags.StringVar(&f.overdue, "overdue", "", "true or false")
	flags.StringVar(&f.sortBy, "sort", "", "status, priority, deadline, createdAt or title")
	flags.StringVar(&f.order, "order", "", "asc or desc")
	flags.IntVar(&f.page, "page", 0, "page number")
	flags.IntVar(&f.limit, "limit", 0, "page size")
}

// filter turns the flags into query parameters and lets the model parse
// them, so the CLI accepts exactly what the API does.
func (f *taskFlags) filter() (model.TaskFilter, error) {
	v := url.Values{}
	for _, list := range []struct {
		key, raw string
		parse    func(string) (string, error)
	}{
		{model.ParamStatus, f.status, func(s string) (string, error) {
			st, err := parseStatus(s)
			return string(st), err
		}},
		{model.ParamPriority, f.priority, func(s string) (string, error) {
			p, err := parsePriority(s)
			return string(p), err
		}},
	} {
		if list.raw == "" {
			continue
		}
		var parts []string
		for _, part := range strings.Split(list.raw, ",") {
			parsed, err := list.parse(strings.TrimSpace(part))
			if err != nil {
				return model.TaskFilter{}, err
			}
			parts = append(parts, parsed)
		}
		v.Set(list.key, strings.Join(parts, ","))
	}
	for key, raw := range map[string]string{model.ParamDateFrom: f.from, model.ParamDateTo: f.to} {
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return model.TaskFilter{}, err
		}
		v.Set(key, t.UTC().Format(time.RFC3339))
	}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set(model.ParamAssigneeID, f.assignee)
	set(model.ParamAssignerID, f.assigner)
	set(model.ParamSearch, f.search)
	set(model.ParamOverdue, f.overdue)
	set(model.ParamSortBy, f.sortBy)
	set(model.ParamSortOrder, f.order)
	if f.page > 0 {
		v.Set(model.ParamPage, fmt.Sprint(f.page))
	}
	if f.limit > 0 {
		v.Set(model.ParamLimit, fmt.Sprint(f.limit))
	}
	return model.ParseTaskFilter(v)
}

// load fetches tasks for filter and exits if that fails.
func (e *env) load(ctx context.Context, filter model.TaskFilter) {
	if outcome := e.cache.SetFilters(ctx, filter); outcome == taskcache.LoadFailed {
		die("error: " + e.cache.Err())
	}
}

// loadWorkingSet loads a page large enough to find tasks by id.
func (e *env) loadWorkingSet(ctx context.Context) {
	e.load(ctx, model.TaskFilter{Limit: workingSetLimit})
}

// run executes a cache mutation, offering to retry it while it fails.
func (e *env) run(ctx context.Context, mutate func() error) {
	err := mutate()
	for err != nil {
		fmt.Fprintln(os.Stderr, formatCLIError(err))
		op := e.cache.LastFailedOperation()
		if op == "" || errors.Is(err, taskcache.ErrTaskNotFound) || !confirm(fmt.Sprintf("Retry %s?", op)) {
			os.Exit(1)
		}
		err = e.cache.RetryLastOperation(ctx)
	}
}

func handleTasks(ctx context.Context, args []string) {
	var tf taskFlags
	flags := flag.NewFlagSet("tasks", flag.ExitOnError)
	tf.register(flags)
	jsonOut := flags.Bool("json", false, "JSON output")
	_ = flags.Parse(args)

	filter, err := tf.filter()
	dieIf(err)

	e := newEnv()
	e.requireSession(ctx)
	e.load(ctx, filter)
	state := e.cache.State()

	if *jsonOut {
		out, _ := json.MarshalIndent(map[string]any{
			"tasks":      state.Tasks,
			"pagination": state.Pagination,
		}, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(state.Tasks) == 0 {
		fmt.Println("No tasks.")
		return
	}
	printTasks(state.Tasks)
	p := state.Pagination
	fmt.Printf("\nPage %d of %d (%d tasks)\n", p.Page, max(p.TotalPages, 1), p.Total)
}

func printTasks(tasks []model.Task) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tASSIGNEE\tDEADLINE")
	for _, t := range tasks {
		deadline := "-"
		if t.Deadline != nil {
			deadline = t.Deadline.Local().Format(time.DateOnly)
		}
		assignee := t.AssigneeName
		if assignee == "" {
			assignee = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Title, t.Status, t.Priority, assignee, deadline)
	}
	w.Flush()
}

func handleStats(ctx context.Context, args []string) {
	var tf taskFlags
	flags := flag.NewFlagSet("stats", flag.ExitOnError)
	tf.register(flags)
	_ = flags.Parse(args)

	filter, err := tf.filter()
	dieIf(err)
	if filter.Limit == 0 {
		filter.Limit = workingSetLimit
	}

	e := newEnv()
	e.requireSession(ctx)
	e.load(ctx, filter)
	s := e.cache.Stats()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Total\t%d\n", s.Total)
	for _, st := range model.AllStatuses() {
		fmt.Fprintf(w, "  %s\t%d\n", st, s.ByStatus[st])
	}
	for _, p := range model.AllPriorities() {
		fmt.Fprintf(w, "  %s priority\t%d\n", p, s.ByPriority[p])
	}
	fmt.Fprintf(w, "Overdue\t%d\n", s.Overdue)
	fmt.Fprintf(w, "Due today\t%d\n", s.DueToday)
	fmt.Fprintf(w, "Due tomorrow\t%d\n", s.DueTomorrow)
	fmt.Fprintf(w, "Due this week\t%d\n", s.DueThisWeek)
	w.Flush()

	if p := e.cache.State().Pagination; p.Total > len(e.cache.Tasks()) {
		fmt.Printf("\nCounts cover the first %d of %d matching tasks.\n", len(e.cache.Tasks()), p.Total)
	}
}

func handleAdd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("add", flag.ExitOnError)
	title := flags.String("title", "", "task title")
	description := flags.String("description", "", "task description")
	priority := flags.String("priority", "medium", "low, medium or high")
	assignee := flags.String("assignee", "", "assignee user id (\"me\" for yourself; empty proposes the task)")
	deadline := flags.String("deadline", "", "due date (YYYY-MM-DD)")
	_ = flags.Parse(args)

	if strings.TrimSpace(*title) == "" {
		die("usage: taskzen add --title <title> [--assignee me|<user-id>] [--priority p] [--deadline date]")
	}
	p, err := parsePriority(*priority)
	dieIf(err)

	e := newEnv()
	user := e.requireSession(ctx)

	task := model.NewTask{Title: *title, Priority: p}
	if d := strings.TrimSpace(*description); d != "" {
		task.Description = &d
	}
	switch *assignee {
	case "":
	case "me":
		task.AssignedUserID = &user.ID
	default:
		task.AssignedUserID = assignee
	}
	if *deadline != "" {
		due, err := parseDate(*deadline)
		dieIf(err)
		task.Deadline = &due
	}

	var created *model.Task
	e.run(ctx, func() error {
		var err error
		created, err = e.cache.Add(ctx, task)
		return err
	})
	if created == nil {
		// A retried add does not hand back the task.
		fmt.Println("Task created.")
		return
	}
	fmt.Printf("Created %s (%s)\n", created.ID, created.Status)
}

func handleMove(ctx context.Context, args []string) {
	if len(args) != 2 {
		die(`usage: taskzen move <task-id> <status>   e.g. taskzen move 1234 "in progress"`)
	}
	status, err := parseStatus(args[1])
	dieIf(err)

	e := newEnv()
	e.requireSession(ctx)
	e.loadWorkingSet(ctx)

	id := args[0]
	if _, ok := e.cache.Task(id); ok {
		e.run(ctx, func() error { return e.cache.UpdateStatus(ctx, id, status) })
	} else {
		e.run(ctx, func() error {
			_, err := e.cache.Update(ctx, id, model.TaskUpdate{Status: model.Set(status)})
			return err
		})
	}
	fmt.Printf("Moved %s to %s\n", id, status)
}

func handleRemove(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("rm", flag.ExitOnError)
	yes := flags.Bool("yes", false, "do not ask for confirmation")
	_ = flags.Parse(args)

	ids := flags.Args()
	if len(ids) == 0 {
		die("usage: taskzen rm [--yes] <task-id>...")
	}

	e := newEnv()
	e.requireSession(ctx)

	if !*yes && !confirm(fmt.Sprintf("Delete %d task(s)?", len(ids))) {
		return
	}
	if len(ids) == 1 {
		e.run(ctx, func() error { return e.cache.Delete(ctx, ids[0]) })
	} else {
		e.run(ctx, func() error { return e.cache.BulkDelete(ctx, ids) })
	}
	fmt.Printf("Deleted %d task(s)\n", len(ids))
}

func handleBulkPriority(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("bulk-priority", flag.ExitOnError)
	priority := flags.String("priority", "", "low, medium or high")
	_ = flags.Parse(args)

	ids := flags.Args()
	if *priority == "" || len(ids) == 0 {
		die("usage: taskzen bulk-priority --priority <p> <task-id>...")
	}
	p, err := parsePriority(*priority)
	dieIf(err)

	e := newEnv()
	e.requireSession(ctx)
	e.run(ctx, func() error {
		return e.cache.BulkUpdate(ctx, ids, model.TaskUpdate{Priority: model.Set(p)})
	})
	fmt.Printf("Set %d task(s) to %s priority\n", len(ids), p)
}
