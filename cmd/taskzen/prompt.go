package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/taskzen/internal/model"
)

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateEmail(s string) error {
	if !strings.Contains(s, "@") {
		return errors.New("enter a valid e-mail address")
	}
	return nil
}

func validatePassword(s string) error {
	if len(s) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// promptCredentials asks for an e-mail and password. A non-empty email
// is used as the initial value.
func promptCredentials(email string) (string, string) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(validateRequired("Password")),
		),
	)
	dieIf(form.Run())
	return strings.TrimSpace(email), password
}

type signupForm struct {
	name     string
	email    string
	role     model.Role
	password string
}

func promptSignup(f *signupForm) {
	var repeated string
	if f.role == "" {
		f.role = model.RoleUser
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Placeholder("Ada Lovelace").
				Value(&f.name).
				Validate(validateRequired("Name")),
			huh.NewInput().
				Title("Email").
				Value(&f.email).
				Validate(validateEmail),
			huh.NewSelect[model.Role]().
				Title("Role").
				Options(
					huh.NewOption("User", model.RoleUser),
					huh.NewOption("Admin", model.RoleAdmin),
				).
				Value(&f.role),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&f.password).
				Validate(validatePassword),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&repeated).
				Validate(func(s string) error {
					if s != f.password {
						return errors.New("passwords do not match")
					}
					return nil
				}),
		),
	)
	dieIf(form.Run())
}

// confirm asks a yes/no question, defaulting to no.
func confirm(title string) bool {
	var ok bool
	dieIf(huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run())
	return ok
}
