// Command mybudget-admin runs maintenance tasks against the MyBudget+ database:
// creating accounts, granting the admin role, backfilling preferences and
// minting access tokens.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/auth"
	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/persistence"
	prefservice "github.com/mybudgetplus/mybudget/internal/preferences/service"
	prefstore "github.com/mybudgetplus/mybudget/internal/preferences/store"
	userservice "github.com/mybudgetplus/mybudget/internal/user/service"
	userstore "github.com/mybudgetplus/mybudget/internal/user/store"
)

const usage = `usage: mybudget-admin <command> [flags]

commands:
  create-user           create an account
  promote               grant the admin role to an account
  backfill-preferences  create default preferences for every account missing them
  token                 print an access token for an account
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(cfg, log)
	if err != nil {
		log.Error("Failed to open database", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	code := a.run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cleanup()
	_ = log.Sync()
	os.Exit(code)
}

type app struct {
	users  *userservice.Service
	prefs  *prefservice.Service
	tokens *auth.Tokens
	logger *logger.Logger
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, func(), error) {
	pool, poolCleanup, err := persistence.Provide(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanups := []func() error{poolCleanup}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			_ = cleanups[i]()
		}
	}

	userRepo, userCleanup, err := userstore.Provide(pool.Writer(), pool.Reader())
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, userCleanup)
	prefsRepo, prefsCleanup, err := prefstore.Provide(pool.Writer(), pool.Reader())
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, prefsCleanup)

	// Maintenance runs without the event bus or cache; a running server
	// re-reads the database on its next cache miss.
	prefs := prefservice.NewService(prefsRepo, nil, nil, log, prefservice.Options{})
	users := userservice.NewService(userRepo, pool, prefs, nil, log)

	var tokens *auth.Tokens
	if cfg.Auth.JWTSecret != "" {
		tokens = auth.NewTokens(cfg.Auth)
	}
	return &app{users: users, prefs: prefs, tokens: tokens, logger: log}, cleanup, nil
}

// run dispatches args to a command and returns the process exit code.
func (a *app) run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	var cmd func(context.Context, []string, io.Writer) error
	switch args[0] {
	case "create-user":
		cmd = a.createUser
	case "promote":
		cmd = a.promote
	case "backfill-preferences":
		cmd = a.backfillPreferences
	case "token":
		cmd = a.token
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err := cmd(ctx, args[1:], stdout); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
		return 1
	}
	return 0
}
