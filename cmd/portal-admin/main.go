package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/reachcapital/portal/config"
	"github.com/reachcapital/portal/internal/bootstrap"
	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/migrate"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	bootstrap.SetLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
	}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations (use --status to list pending ones)",
			run:         runMigrations,
		},
		"set-role": {
			name:        "set-role",
			description: "Store a role in an identity's metadata (the only way to create admins)",
			run:         runSetRole,
		},
		"revoke-sessions": {
			name:        "revoke-sessions",
			description: "Sign a browser client out and notify its open tabs",
			run:         runRevokeSessions,
		},
		"record-submission": {
			name:        "record-submission",
			description: "Record a student form submission for an email",
			run:         runRecordSubmission,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: portal-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(w, "  %-20s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

type setRoleOptions struct {
	Email string
	Role  domainauth.Role
}

type revokeOptions struct {
	ClientID string
}

type submissionOptions struct {
	Email string
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.Status {
		pending, pendingErr := migrate.Pending(ctx, db)
		if pendingErr != nil {
			return fmt.Errorf("list pending migrations: %w", pendingErr)
		}
		if len(pending) == 0 {
			return writef(cmdCtx.Out, "schema is up to date\n")
		}
		return writef(cmdCtx.Out, "pending migrations: %s\n", strings.Join(pending, ", "))
	}

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runSetRole(cmdCtx *commandContext, args []string) error {
	opts, err := parseSetRoleFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	ident, err := newIdentityRepo(db).SetRole(ctx, opts.Email, opts.Role)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return writef(cmdCtx.Out, "%s (%s) is now %s\n", ident.Email, ident.ID, opts.Role)
}

func runRevokeSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseRevokeFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, rdb, err := connectInfra(ctx, cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeInfra(db, rdb); closeErr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", closeErr)
		}
	}()

	auth, err := newAuthService(&cmdCtx.Config, db, rdb, cmdCtx.Logger)
	if err != nil {
		return err
	}
	if revokeErr := auth.RevokeClient(ctx, opts.ClientID); revokeErr != nil {
		return fmt.Errorf("revoke client %s: %w", opts.ClientID, revokeErr)
	}
	return writef(cmdCtx.Out, "client %s signed out\n", opts.ClientID)
}

func runRecordSubmission(cmdCtx *commandContext, args []string) error {
	opts, err := parseSubmissionFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	id, err := newSubmissionRepo(db).Create(ctx, opts.Email)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return writef(cmdCtx.Out, "submission %s recorded for %s\n", id, opts.Email)
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum time to wait for migrations")
	fs.BoolVar(&opts.Status, "status", false, "List pending migrations without applying them")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func parseSetRoleFlags(args []string) (setRoleOptions, error) {
	fs := flag.NewFlagSet("set-role", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email, role string
	fs.StringVar(&email, "email", "", "Email of the identity to update (required)")
	fs.StringVar(&role, "role", "", "Role to store: student, business or admin (required)")

	if err := fs.Parse(args); err != nil {
		return setRoleOptions{}, err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return setRoleOptions{}, errors.New("--email is required")
	}
	parsed, ok := domainauth.ParseRole(role)
	if !ok {
		return setRoleOptions{}, fmt.Errorf("--role must be student, business or admin (got %q)", role)
	}
	return setRoleOptions{Email: email, Role: parsed}, nil
}

func parseRevokeFlags(args []string) (revokeOptions, error) {
	fs := flag.NewFlagSet("revoke-sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts revokeOptions
	fs.StringVar(&opts.ClientID, "client", "", "Client ID from the portal_client cookie (required)")

	if err := fs.Parse(args); err != nil {
		return revokeOptions{}, err
	}
	opts.ClientID = strings.TrimSpace(opts.ClientID)
	if opts.ClientID == "" {
		return revokeOptions{}, errors.New("--client is required")
	}
	return opts, nil
}

func parseSubmissionFlags(args []string) (submissionOptions, error) {
	fs := flag.NewFlagSet("record-submission", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts submissionOptions
	fs.StringVar(&opts.Email, "email", "", "Student email (required)")

	if err := fs.Parse(args); err != nil {
		return submissionOptions{}, err
	}
	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return submissionOptions{}, errors.New("--email is required")
	}
	return opts, nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
