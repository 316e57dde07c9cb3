// Package admincli implements the operator commands of cmd/admin: creating
// the first administrator, changing the admin flag and revoking sessions.
package admincli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/sparkbridge/server/internal/common"
	"github.com/sparkbridge/server/internal/server/models"
	"github.com/sparkbridge/server/internal/server/services"
)

const minPasswordLength = 8

// Service is the part of the auth core the commands need.
type Service interface {
	RegisterAdmin(ctx context.Context, in services.RegisterInput) (*models.User, *models.Profile, error)
	SetAdmin(ctx context.Context, userID string, isAdmin bool) (*models.Profile, error)
	RevokeAll(ctx context.Context, userID string) (int64, error)
}

type App struct {
	svc    Service
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(svc Service, in io.Reader, out io.Writer) *App {
	return &App{svc: svc, reader: bufio.NewReader(in), out: out}
}

const usage = `Usage: admin [server flags] <command> [args]

Commands:
  create-admin [-email E] [-first F] [-last L]   register a new administrator
  grant-admin <user-id>                          give an existing user admin rights
  revoke-admin <user-id>                         take admin rights away
  revoke-sessions <user-id>                      delete every refresh token of a user
`

// ErrUsage is returned for an unknown command or missing arguments.
var ErrUsage = errors.New("invalid usage")

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create-admin":
		return a.createAdmin(ctx, rest)
	case "grant-admin":
		return a.setAdmin(ctx, rest, true)
	case "revoke-admin":
		return a.setAdmin(ctx, rest, false)
	case "revoke-sessions":
		return a.revokeSessions(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprintf(a.out, "unknown command %q\n\n%s", cmd, usage)
		return ErrUsage
	}
}

func (a *App) prompt(value *string, label string) error {
	if *value != "" {
		return nil
	}
	v, err := GetSimpleText(a.reader, label, a.out)
	if err != nil {
		return err
	}
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrUsage, label)
	}
	*value = v
	return nil
}

func (a *App) readNewPassword() (string, error) {
	pw, err := GetPassword(a.out, "Password")
	if err != nil {
		return "", err
	}
	defer wipe(pw)

	if len(pw) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	confirm, err := GetPassword(a.out, "Repeat password")
	if err != nil {
		return "", err
	}
	defer wipe(confirm)

	if !bytes.Equal(pw, confirm) {
		return "", errors.New("passwords do not match")
	}
	return string(pw), nil
}

func (a *App) createAdmin(ctx context.Context, args []string) error {
	var email, first, last string

	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	fs.SetOutput(a.out)
	fs.StringVar(&email, "email", "", "email address")
	fs.StringVar(&first, "first", "", "first name")
	fs.StringVar(&last, "last", "", "last name")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if err := a.prompt(&email, "Email"); err != nil {
		return err
	}
	if err := a.prompt(&first, "First name"); err != nil {
		return err
	}
	if err := a.prompt(&last, "Last name"); err != nil {
		return err
	}

	password, err := a.readNewPassword()
	if err != nil {
		return err
	}

	user, _, err := a.svc.RegisterAdmin(ctx, services.RegisterInput{
		Email:        email,
		Password:     password,
		FirstName:    first,
		LastName:     last,
		AttendeeType: models.AttendeeGeneral,
	})
	if err != nil {
		if common.KindOf(err) == common.KindDuplicateIdentity {
			return fmt.Errorf("%s is already registered, use grant-admin: %w", email, err)
		}
		return err
	}

	fmt.Fprintf(a.out, "Administrator %s created (id %s)\n", email, user.ID)
	return nil
}

func userIDArg(args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", fmt.Errorf("%w: expected exactly one user id", ErrUsage)
	}
	return args[0], nil
}

func (a *App) setAdmin(ctx context.Context, args []string, isAdmin bool) error {
	id, err := userIDArg(args)
	if err != nil {
		return err
	}

	p, err := a.svc.SetAdmin(ctx, id, isAdmin)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "User %s (%s): admin=%t, sessions revoked\n", p.ID, p.Email, p.IsAdmin)
	return nil
}

func (a *App) revokeSessions(ctx context.Context, args []string) error {
	id, err := userIDArg(args)
	if err != nil {
		return err
	}

	n, err := a.svc.RevokeAll(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Revoked %d session(s) for user %s\n", n, id)
	return nil
}
