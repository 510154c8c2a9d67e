package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/nhle/taskzen/internal/model"
	"github.com/nhle/taskzen/internal/session"
)

// login prompts for credentials until the server accepts them or the
// user gives up.
func (e *env) login(ctx context.Context, email string) {
	for {
		addr, password := promptCredentials(email)
		res := e.session.Login(ctx, addr, password)
		if res.Success {
			fmt.Printf("Logged in as %s (%s)\n", res.User.DisplayName(), res.User.Role)
			return
		}
		fmt.Fprintln(os.Stderr, res.Message)
		if !confirm("Try again?") {
			os.Exit(1)
		}
		email = addr
	}
}

func handleLogin(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("login", flag.ExitOnError)
	email := flags.String("email", "", "account e-mail")
	_ = flags.Parse(args)

	e := newEnv()
	if e.session.Init(ctx) == session.StateAuthenticated {
		user := e.session.CurrentUser()
		if !confirm(fmt.Sprintf("Already logged in as %s. Log in again?", user.Email)) {
			return
		}
	}
	e.login(ctx, *email)
}

func handleSignup(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("signup", flag.ExitOnError)
	name := flags.String("name", "", "display name")
	email := flags.String("email", "", "account e-mail")
	_ = flags.Parse(args)

	e := newEnv()
	form := signupForm{name: *name, email: *email}
	promptSignup(&form)

	res := e.session.Signup(ctx, session.SignupRequest{
		Name:     form.name,
		Email:    form.email,
		Role:     form.role,
		Password: form.password,
	})
	if res.EmailExists {
		fmt.Fprintln(os.Stderr, res.Message)
		if confirm("Log in with this address instead?") {
			e.login(ctx, form.email)
			return
		}
		os.Exit(1)
	}
	if !res.Success {
		die(res.Message)
	}
	fmt.Printf("Welcome, %s! Check %s for a verification link.\n", res.User.DisplayName(), res.User.Email)
}

func handleLogout(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("logout", flag.ExitOnError)
	_ = flags.Parse(args)

	e := newEnv()
	if e.session.Init(ctx) != session.StateAuthenticated {
		fmt.Println("Not logged in.")
		return
	}
	e.session.Logout(ctx)
	fmt.Println("Logged out.")
}

func handleWhoami(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("whoami", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	users := flags.Bool("users", false, "also list every user")
	_ = flags.Parse(args)

	e := newEnv()
	if e.session.Init(ctx) != session.StateAuthenticated {
		die("not logged in: run `taskzen login`")
	}
	user := e.session.CurrentUser()

	if *jsonOut {
		payload := map[string]any{"user": user}
		if *users {
			payload["users"] = e.session.Users()
		}
		out, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("User: %s (%s)\n", user.DisplayName(), user.Email)
	fmt.Printf("Role: %s\n", user.Role)
	if !user.EmailVerified {
		fmt.Println("E-mail not verified; run `taskzen verify --resend`.")
	}
	if *users {
		fmt.Println()
		for _, u := range e.session.Users() {
			fmt.Printf("  %s  %-24s %s\n", u.ID, u.DisplayName(), u.Email)
		}
	}
	if e.session.CanAccess(model.RoleAdmin) {
		fmt.Println("Admin tools enabled.")
	}
}

func handleVerify(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("verify", flag.ExitOnError)
	token := flags.String("token", "", "token from the verification link")
	resend := flags.Bool("resend", false, "send a new verification link")
	email := flags.String("email", "", "address to resend to (defaults to the logged-in user)")
	_ = flags.Parse(args)

	e := newEnv()
	switch {
	case *resend:
		addr := strings.TrimSpace(*email)
		if addr == "" {
			addr = e.requireSession(ctx).Email
		}
		dieIf(e.client.SendVerificationEmail(ctx, addr))
		fmt.Println("If the address is registered, a new link is on its way.")
	case *token != "":
		dieIf(e.client.VerifyEmail(ctx, strings.TrimSpace(*token)))
		fmt.Println("E-mail verified.")
	default:
		fmt.Println("usage: taskzen verify --token <token> | --resend [--email <address>]")
		os.Exit(1)
	}
}
