// Package main is the entry point for the Owl Middleware admin CLI.
// This tool provides administrative commands for users, tokens and maintenance.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/app"
	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "version":
		fmt.Printf("Owl Middleware Admin CLI\n")
		fmt.Printf("Version: %s\n", app.Version)
		fmt.Printf("Build Time: %s\n", app.BuildTime)
		fmt.Printf("Git Commit: %s\n", app.GitCommit)
		return

	case "help", "-h", "--help":
		printUsage()
		return

	case "user", "token", "janitor", "backend":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err := withApp(func(ctx context.Context, a *app.App) error {
		return dispatch(ctx, a, command, args)
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(os.Getenv("OWL_CONFIG"))
	if err != nil {
		return err
	}
	cfg.Logging.Format = "console"
	cfg.Logging.Output = "stderr"
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	logger = logger.Level(zerolog.WarnLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func dispatch(ctx context.Context, a *app.App, command string, args []string) error {
	sub := ""
	if len(args) > 0 {
		sub = args[0]
	}

	switch {
	case command == "user" && sub == "list":
		return listUsers(ctx, a)
	case command == "user" && sub == "lang" && len(args) == 3:
		return setLanguage(ctx, a, args[1], args[2])
	case command == "user" && len(args) == 2 && userActions[sub] != nil:
		return updateUser(ctx, a, sub, args[1])
	case command == "token" && len(args) == 1:
		return issueToken(ctx, a, args[0])
	case command == "janitor" && sub == "run":
		return printJSON(a.Janitor.RunOnce(ctx))
	case command == "backend" && sub == "status":
		return backendStatus(ctx, a)
	}
	printUsage()
	return fmt.Errorf("invalid arguments for %s", command)
}

func listUsers(ctx context.Context, a *app.App) error {
	users, err := a.Users.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tMETHOD\tADMIN\tACTIVE")
	for _, u := range users {
		email := ""
		if u.Email != nil {
			email = *u.Email
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%t\n", u.ID, u.Username, email, u.AuthMethod, u.IsAdmin, u.IsActive)
	}
	return w.Flush()
}

type userAction struct {
	apply func(ctx context.Context, users *service.UserService, id int64) error
	done  string
}

var userActions = map[string]*userAction{
	"promote": {
		apply: func(ctx context.Context, users *service.UserService, id int64) error { return users.SetAdmin(ctx, id, true) },
		done:  "is now an administrator",
	},
	"demote": {
		apply: func(ctx context.Context, users *service.UserService, id int64) error { return users.SetAdmin(ctx, id, false) },
		done:  "is no longer an administrator",
	},
	"disable": {
		apply: func(ctx context.Context, users *service.UserService, id int64) error { return users.SetActive(ctx, id, false) },
		done:  "is disabled",
	},
	"enable": {
		apply: func(ctx context.Context, users *service.UserService, id int64) error { return users.SetActive(ctx, id, true) },
		done:  "is enabled",
	},
}

func updateUser(ctx context.Context, a *app.App, action, raw string) error {
	id, err := parseUserID(raw)
	if err != nil {
		return err
	}
	act := userActions[action]
	if err := act.apply(ctx, a.Users, id); err != nil {
		return err
	}
	fmt.Printf("User %d %s\n", id, act.done)
	return nil
}

func setLanguage(ctx context.Context, a *app.App, raw, code string) error {
	id, err := parseUserID(raw)
	if err != nil {
		return err
	}
	lang := domain.LanguageFromCode(code)
	if err := a.Users.SetLanguage(ctx, id, lang); err != nil {
		return err
	}
	fmt.Printf("User %d now uses %s\n", id, lang)
	return nil
}

func issueToken(ctx context.Context, a *app.App, raw string) error {
	id, err := parseUserID(raw)
	if err != nil {
		return err
	}
	user, err := a.Users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	token, err := a.Auth.IssueToken(user)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func backendStatus(ctx context.Context, a *app.App) error {
	healthy := a.Search.Health(ctx)
	root, err := a.Backend.Root(ctx)

	fmt.Printf("Healthy: %t\n", healthy)
	if err != nil {
		fmt.Printf("Status:  offline (%v)\n", err)
		return nil
	}
	fmt.Printf("Status:  online\nMessage: %s\n", root.Message)
	return nil
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Println(`Owl Middleware Admin CLI

Usage:
  owl-admin <command> [arguments]

Commands:
  user list             List registered users
  user promote <id>     Grant administrator rights
  user demote <id>      Revoke administrator rights
  user disable <id>     Block a user from signing in
  user enable <id>      Allow a disabled user again
  user lang <id> <code> Set the interface language (en, ru)
  token <user-id>       Issue a bearer token for a user
  janitor run           Run state cleanup, reconciliation and the health probe once
  backend status        Show the storage backend status
  version               Print version information
  help                  Show this help message

Environment Variables:
  OWL_CONFIG      Path to the YAML config file (optional)
  OWL_*           Any configuration key, e.g. OWL_DATABASE_DRIVER=sqlite

Examples:
  owl-admin user list
  owl-admin user promote 123456789
  owl-admin token 123456789
  owl-admin janitor run`)
}
