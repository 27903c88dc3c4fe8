package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/health-records/internal/app"
	"github.com/jwalitptl/health-records/internal/config"
	"github.com/jwalitptl/health-records/internal/importer"
	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/reminder"
	"github.com/jwalitptl/health-records/internal/repository/postgres"
	"github.com/jwalitptl/health-records/pkg/logger"
	"github.com/jwalitptl/health-records/pkg/messaging"
)

// PasswordEnv supplies the password for `user create` when --password is not given.
const PasswordEnv = "HEALTHCTL_PASSWORD"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "healthctl",
		Short:        "Operator tools for the health records service",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "Path to a config file (default: search ./config.yaml, ./config, /app/config)")

	root.AddCommand(migrateCmd())
	root.AddCommand(remindCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(importCmd())
	root.AddCommand(userCmd())
	root.AddCommand(watchCmd())
	return root
}

// openApp loads configuration and connects the backends. Logs go to stderr
// so stdout carries only command output.
func openApp(cmd *cobra.Command) (*app.App, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     cmd.ErrOrStderr(),
		Console:    true,
	})
	return app.New(cfg, log)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.DB == nil {
				return errors.New("migrations need server.driver=postgres")
			}

			count, err := postgres.NewMigrator(a.DB).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.DB == nil {
				return errors.New("migrations need server.driver=postgres")
			}

			statuses, err := postgres.NewMigrator(a.DB).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Run one reminder pass and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, runErr := a.ReminderWorker().RunOnce(cmd.Context())
			if report != nil {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			}
			if runErr != nil && !errors.Is(runErr, reminder.ErrPartialScan) {
				return runErr
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the doctor dashboard counters as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Aggregator().DoctorStats(cmd.Context())
			if p, ok := reminder.AsPartial(err); ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: partial result, %d of %d patients scanned\n", p.Scanned, p.Total)
			} else if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a document-store JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []importer.Option{importer.WithLogger(a.Logger)}
			if dryRun {
				opts = append(opts, importer.WithDryRun())
			}
			report, err := importer.New(a.Repos, a.Location, opts...).Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().Bool("dry-run", false, "Validate the export without writing")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account with any role",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv(PasswordEnv)
			}
			if email == "" || name == "" || password == "" {
				return fmt.Errorf("--email, --name and a password (--password or %s) are required", PasswordEnv)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.AuthService()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			resp, err := svc.Register(ctx, &model.RegisterRequest{
				Email:    email,
				Password: password,
				FullName: name,
				Role:     role,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.User)
		},
	}
	create.Flags().String("email", "", "Account email")
	create.Flags().String("name", "", "Full name")
	create.Flags().String("role", model.RoleDoctor, "patient, doctor or admin")
	create.Flags().String("password", "", "Password (prefer "+PasswordEnv+")")
	cmd.AddCommand(create)

	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print reminders published to the redis channel until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Broker == nil {
				return errors.New("watch needs redis.url")
			}
			return watch(cmd.Context(), a.Broker, a.Config.Redis.Channel, cmd.OutOrStdout())
		},
	}
}

// watch writes each message on channel to w, one per line, until ctx ends
// or the broker closes the subscription.
func watch(ctx context.Context, broker messaging.Broker, channel string, w io.Writer) error {
	msgs, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if _, err := fmt.Fprintln(w, string(msg)); err != nil {
			return err
		}
	}
	return nil
}
