package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// loginAttempts bounds how often the login form is shown before giving up.
const loginAttempts = 3

// Popup opens the popup for domain, asking for credentials first when the
// gateway holds no session.
func Popup(ctx context.Context, client *Client, domain string) error {
	session, err := client.Auth(ctx)
	if err != nil {
		return err
	}
	user := ""
	if session == nil {
		if user, err = promptLogin(ctx, client); err != nil {
			return err
		}
	} else {
		user = session.User.Email
	}

	app := NewApp(client, domain, user)
	if err := app.Run(); err != nil {
		return fmt.Errorf("running popup: %w", err)
	}
	if app.LoggedOut {
		fmt.Println(dimStyle.Render("Logged out."))
	}
	return nil
}

func promptLogin(ctx context.Context, client *Client) (string, error) {
	var lastErr error
	for i := 0; i < loginAttempts; i++ {
		email, password, err := runLoginForm(lastErr)
		if err != nil {
			return "", err
		}
		if err := client.Login(ctx, email, password); err != nil {
			lastErr = err
			continue
		}
		return email, nil
	}
	return "", lastErr
}

func runLoginForm(previous error) (email, password string, err error) {
	description := "Log in to see trust scores for the sites you visit."
	if previous != nil {
		description = previous.Error()
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("SiteRay").
				Description(description),
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Validate(required("email")).
				Value(&email),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Validate(required("password")).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(email), password, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}
