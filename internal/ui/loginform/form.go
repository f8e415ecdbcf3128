package loginform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrCancelled is returned when the user aborts a form.
var ErrCancelled = errors.New("cancelled")

// minPasswordLength mirrors the server's password policy.
const minPasswordLength = 10

// Credentials is what the login form collects.
type Credentials struct {
	Server   string
	Email    string
	Password string
}

// formBindings holds field values on the heap so huh's Value() pointers
// stay valid.
type formBindings struct {
	server      string
	email       string
	password    string
	newPassword string
	confirm     string
}

// Prompter runs the interactive login forms.
type Prompter struct {
	// AskServer adds a server URL field, used when none is configured.
	AskServer bool
	Width     int
}

// Login asks for the server (optionally), email and password.
func (p Prompter) Login(ctx context.Context, defaults Credentials) (Credentials, error) {
	fb := &formBindings{server: defaults.Server, email: defaults.Email}

	var fields []huh.Field
	if p.AskServer {
		fields = append(fields,
			huh.NewInput().
				Title("Server").
				Placeholder("https://liman.example.com").
				Value(&fb.server).
				Validate(validateServer),
		)
	}
	fields = append(fields,
		huh.NewInput().
			Title("Email").
			Value(&fb.email).
			Validate(required("email")),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&fb.password).
			Validate(required("password")),
	)

	if err := p.run(ctx, huh.NewGroup(fields...).Title("Log in to Liman")); err != nil {
		return Credentials{}, err
	}

	return Credentials{
		Server:   strings.TrimRight(strings.TrimSpace(fb.server), "/"),
		Email:    strings.TrimSpace(fb.email),
		Password: fb.password,
	}, nil
}

// NewPassword asks for a replacement password, entered twice.
func (p Prompter) NewPassword(ctx context.Context) (string, error) {
	fb := &formBindings{}

	group := huh.NewGroup(
		huh.NewInput().
			Title("New password").
			Description(fmt.Sprintf("Your account requires a password change (at least %d characters).", minPasswordLength)).
			EchoMode(huh.EchoModePassword).
			Value(&fb.newPassword).
			Validate(validatePassword),
		huh.NewInput().
			Title("Confirm").
			EchoMode(huh.EchoModePassword).
			Value(&fb.confirm).
			Validate(func(s string) error {
				if s != fb.newPassword {
					return errors.New("passwords do not match")
				}
				return nil
			}),
	).Title("Change password")

	if err := p.run(ctx, group); err != nil {
		return "", err
	}
	return fb.newPassword, nil
}

func (p Prompter) run(ctx context.Context, group *huh.Group) error {
	form := huh.NewForm(group)
	if p.Width > 0 {
		form = form.WithWidth(p.Width)
	}
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrCancelled
		}
		return fmt.Errorf("running form: %w", err)
	}
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func validateServer(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("server is required")
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("enter a full URL such as https://liman.example.com")
	}
	return nil
}

func validatePassword(s string) error {
	if len(s) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return nil
}
