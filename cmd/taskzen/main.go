package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/nhle/taskzen/internal/api"
	"github.com/nhle/taskzen/internal/credential"
	"github.com/nhle/taskzen/internal/model"
	"github.com/nhle/taskzen/internal/session"
	"github.com/nhle/taskzen/internal/taskcache"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	args := os.Args[2:]
	switch os.Args[1] {
	case "config":
		handleConfig(args)
	case "login":
		handleLogin(ctx, args)
	case "signup":
		handleSignup(ctx, args)
	case "logout":
		handleLogout(ctx, args)
	case "whoami":
		handleWhoami(ctx, args)
	case "verify":
		handleVerify(ctx, args)
	case "tasks":
		handleTasks(ctx, args)
	case "stats":
		handleStats(ctx, args)
	case "add":
		handleAdd(ctx, args)
	case "move":
		handleMove(ctx, args)
	case "rm":
		handleRemove(ctx, args)
	case "bulk-priority":
		handleBulkPriority(ctx, args)
	case "version":
		fmt.Println("taskzen dev")
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`taskzen <command> [args]

Commands:
  config init      Write a default config file
  login            Log in with e-mail and password
  signup           Create an account
  logout           End the session
  whoami           Show the logged-in user
  verify           Confirm an e-mail address or resend the link
  tasks            List tasks
  stats            Show task counts
  add              Create a task
  move             Change a task's status
  rm               Delete tasks
  bulk-priority    Set the priority of several tasks
  version          Show CLI version

Set TASKZEN_CONFIG to use a config file other than the default.`)
}

// env is everything a command needs to talk to the server.
type env struct {
	cfg     *model.ClientConfig
	client  *api.Client
	session *session.Manager
	cache   *taskcache.Cache
}

func configPath() string {
	if p := os.Getenv("TASKZEN_CONFIG"); p != "" {
		return p
	}
	return model.DefaultClientConfigPath()
}

func newEnv() *env {
	cfg, err := model.LoadClientConfig(configPath())
	dieIf(err)

	var tokens credential.TokenStore = credential.NewMemoryStore()
	if cfg.Session.UseKeyring {
		tokens = credential.NewKeyringStore()
	}

	client := api.NewClient(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.RequestTimeout),
		api.WithMaxRetries(cfg.API.MaxRetries),
	)

	logger := log.New(io.Discard, "", 0)
	if os.Getenv("TASKZEN_DEBUG") != "" {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	mgr := session.New(client, tokens,
		session.WithConfig(cfg.Session),
		session.WithLogger(logger),
	)
	mgr.OnRedirect(func(reason string) {
		switch reason {
		case session.ReasonSessionExpired:
			fmt.Fprintln(os.Stderr, "Your session has expired. Run `taskzen login` to continue.")
		case session.ReasonUnauthorized:
			fmt.Fprintln(os.Stderr, "The server ended your session. Run `taskzen login` to continue.")
		}
	})

	return &env{
		cfg:     cfg,
		client:  client,
		session: mgr,
		cache:   taskcache.New(client, taskcache.WithTTL(cfg.Cache.TTL)),
	}
}

// requireSession restores the stored session, asking for credentials
// when there is none.
func (e *env) requireSession(ctx context.Context) *model.User {
	if e.session.Init(ctx) != session.StateAuthenticated {
		fmt.Fprintln(os.Stderr, "Not logged in.")
		e.login(ctx, "")
	}
	e.session.RecordActivity()
	return e.session.CurrentUser()
}

func handleConfig(args []string) {
	if len(args) == 0 || args[0] != "init" {
		fmt.Println("usage: taskzen config init [--api <url>] [--no-keyring]")
		os.Exit(1)
	}

	flags := flag.NewFlagSet("config init", flag.ExitOnError)
	baseURL := flags.String("api", "", "API base URL")
	noKeyring := flags.Bool("no-keyring", false, "keep the session token in memory only")
	_ = flags.Parse(args[1:])

	cfg := model.DefaultClientConfig()
	if *baseURL != "" {
		cfg.API.BaseURL = strings.TrimRight(*baseURL, "/")
	}
	cfg.Session.UseKeyring = !*noKeyring

	path := configPath()
	dieIf(model.SaveClientConfig(path, cfg))
	fmt.Println("Saved config to", path)
}

func die(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func dieIf(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	die(formatCLIError(err))
}

func formatCLIError(err error) string {
	var bulkErr *taskcache.BulkError
	if errors.As(err, &bulkErr) {
		return "error: " + bulkErr.UserMessage()
	}
	var apiErr *api.APIError
	var transportErr *api.TransportError
	if errors.As(err, &apiErr) || errors.As(err, &transportErr) {
		return "error: " + api.UserMessage(err)
	}
	return "error: " + err.Error()
}
