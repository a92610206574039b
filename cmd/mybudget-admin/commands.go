package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/user/models"
	userservice "github.com/mybudgetplus/mybudget/internal/user/service"
)

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func (a *app) createUser(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("create-user")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "login email (required)")
	password := fs.String("password", "", "initial password, at least 8 characters (required)")
	admin := fs.Bool("admin", false, "grant the admin role")
	if err := fs.Parse(args); err != nil {
		return err
	}

	role := models.RoleUser
	if *admin {
		role = models.RoleAdmin
	}
	user, err := a.users.CreateUser(ctx, userservice.CreateUserRequest{
		Name:     *name,
		Email:    *email,
		Password: *password,
		Role:     role,
	})
	if err != nil {
		return err
	}
	if _, err := a.prefs.GetOrCreatePreferences(ctx, user.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "created %s %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}

func (a *app) promote(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("promote")
	email := fs.String("email", "", "account email (required)")
	revoke := fs.Bool("revoke", false, "demote back to a regular user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.users.GetByEmail(ctx, *email)
	if err != nil {
		return err
	}
	role := models.RoleAdmin
	if *revoke {
		role = models.RoleUser
	}
	if _, err := a.users.SetRole(ctx, user.ID, role); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s is now %s\n", user.Email, role)
	return nil
}

// backfillPreferences creates the default document for accounts that never
// opened their settings. Existing documents are left untouched.
func (a *app) backfillPreferences(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("backfill-preferences")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ids, err := a.users.ListUserIDs(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.prefs.GetOrCreatePreferences(ctx, id); err != nil {
			a.logger.Warn("backfill failed", zap.String("user_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	fmt.Fprintf(out, "checked %d accounts, %d failed\n", len(ids), len(errs))
	return errors.Join(errs...)
}

func (a *app) token(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("token")
	email := fs.String("email", "", "account email (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.tokens == nil {
		return errors.New("auth.jwtSecret is not configured")
	}

	user, err := a.users.GetByEmail(ctx, *email)
	if err != nil {
		return err
	}
	token, err := a.tokens.Sign(user.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
