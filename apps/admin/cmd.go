package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
	"github.com/niat-ops/opsboard/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword      // mockable
	gooseRunFunc     = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	out io.Writer

	// connect resolves the services below before a command needs them; nil when they are set already.
	connect func() error
	// openDB opens the users database for migrations.
	openDB func() (*sql.DB, error)

	usrRepo   user.Repository
	roadmaps  roadmap.Service
	companies *tracking.CompanyStatusService
	feedback  *tracking.InteractionFeedbackService
	host      core.ContentHost
}

func (cli *commandLine) ready() error {
	if cli.connect == nil {
		return nil
	}
	err := cli.connect()
	cli.connect = nil
	return err
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}

// promptPassword reads a password without echo. An empty answer is errHelp.
func (cli *commandLine) promptPassword(cmd *cobra.Command) (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	cli.printf("\n")
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		_ = cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Opsboard administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.migrateCmd(),
		cli.resyncCmd(),
		cli.importCmd(),
		cli.fetchCmd(),
	)
	return root
}

// run executes args (program name first).
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, email, role string
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user or update the one owning --email. The password is prompted next.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				_ = cmd.Usage()
				return errHelp
			}
			if !slices.Contains(user.AllRoles, role) {
				return fmt.Errorf("invalid role %q (one of %s)", role, strings.Join(user.AllRoles, ", "))
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			if err = cli.ready(); err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), name, email, role, pwd)
			if err != nil {
				return err
			}
			cli.printf("user %s (%s) saved\n", usr.Email, usr.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "The user's display name (defaults to the email)")
	cmd.Flags().StringVar(&email, "email", "", "The user's email")
	cmd.Flags().StringVar(&role, "role", user.RoleAdmin, "The user's role")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password. The password is prompted next.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			if err = cli.ready(); err != nil {
				return err
			}
			return cli.resetPassword(cmd.Context(), email, pwd)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "The user's email")
	return cmd
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, down, status, up-to VERSION ...)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(cmd.Context(), args)
		},
	}
}

func (cli *commandLine) resyncCmd() *cobra.Command {
	var (
		all bool
		id  string
	)
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Republish roadmaps from the current tech stacks",
		Long: `Republish roadmaps from the current tech stacks.

Tech stack changes that arrive while the API's sync queue is full are dropped and
never retried. The API logs each one and counts them as syncQueueDropped under
/debug/vars. Run "resync --all" when that counter grows.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all == (id != "") {
				_ = cmd.Usage()
				return errHelp
			}
			if err := cli.ready(); err != nil {
				return err
			}
			return cli.resync(cmd.Context(), all, id)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Republish every roadmap")
	cmd.Flags().StringVar(&id, "id", "", "Republish one roadmap")
	return cmd
}

func (cli *commandLine) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("import {%s} FILE.csv", strings.Join(tracking.ImportTargets, "|")),
		Short: "Import tracking records from a CSV export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.ready(); err != nil {
				return err
			}
			return cli.importFile(cmd.Context(), args[0], args[1])
		},
	}
}

func (cli *commandLine) fetchCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fetch FILENAME",
		Short: "Print a published roadmap page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.ready(); err != nil {
				return err
			}
			return cli.fetch(cmd.Context(), args[0], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the page to this file instead of stdout")
	return cmd
}
