package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"classroll/internal/app"
	"classroll/internal/config"
	"classroll/internal/store"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "classrollctl",
		Short:         "Administrative tasks for the classroll attendance service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSweepCommand())
	cmd.AddCommand(newCourseCommand())
	cmd.AddCommand(newReportCommand())
	cmd.AddCommand(newRosterCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withRuntime opens the configured backends for the duration of fn.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *app.Runtime) error) error {
	ctx := commandContext(cmd)
	rt, err := app.Open(ctx, config.Load(), false)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	run := func(fn func(ctx context.Context, db *store.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.StoreBackend == "memory" {
				return fmt.Errorf("migrations need STORE_BACKEND=postgres")
			}
			db, err := store.NewDB(cfg.DatabaseURL)
			if err != nil {
				_ = db.Close()
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()
			return fn(commandContext(cmd), db)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: run(func(ctx context.Context, db *store.DB) error {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: run(func(ctx context.Context, db *store.DB) error {
			return db.MigrationStatus(ctx)
		}),
	})
	return cmd
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire every session past its end time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				n, err := rt.Service.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d session(s)\n", n)
				return nil
			})
		},
	}
}

func newCourseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Course management",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var owner, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a course and print its join code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				c, err := rt.Service.CreateCourse(ctx, owner, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tjoin code %s\n", c.ID, c.Name, c.JoinCode)
				return nil
			})
		},
	}
	create.Flags().StringVar(&owner, "owner", "", "Instructor user id that owns the course")
	create.Flags().StringVar(&name, "name", "", "Course name")
	_ = create.MarkFlagRequired("owner")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <course-id>",
		Short: "Delete a course with its sessions and attendance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Service.DeleteCourse(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <course-id>",
		Short: "Print every enrolled student's attendance ratio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Service.CourseReport(ctx, args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "STUDENT\tATTENDED\tTOTAL\tRATIO")
				for _, r := range report {
					fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\n", r.StudentID, r.Attended, r.Total, r.Ratio.Ratio)
				}
				return w.Flush()
			})
		},
	}
}

func newRosterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "roster <session-id>",
		Short: "List the students marked present in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				records, err := rt.Service.SessionRoster(ctx, args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "STUDENT\tMARKED AT")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\n", r.StudentID, r.MarkedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}
}
