package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sampleflow/internal/app"
	"sampleflow/internal/config"
)

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sampleflow",
		Short:         "Sequencing sample intake and results distribution",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")
	root.AddCommand(
		newServeCmd(opts),
		newCreateAdminCmd(opts),
		newTokenCmd(opts),
		newExportWeekCmd(opts),
	)
	return root
}

// bootstrap loads configuration and opens the app. Non-serving commands log
// to stderr so that stdout carries only their result.
func bootstrap(ctx context.Context, opts *rootOptions, logOut io.Writer) (*app.App, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := config.SetupLogger(cfg, logOut)
	return app.New(ctx, cfg, logger)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a, err := bootstrap(ctx, opts, os.Stdout)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			a.Logger.Info("sampleflow starting", slog.Int("port", a.Config.Port))
			return a.Serve(ctx)
		},
	}
}

func newCreateAdminCmd(opts *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an activated admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			user, err := a.Service.CreateAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (id %d)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed access token for an existing account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if !cmd.Flags().Changed("ttl") {
				ttl = a.Config.AdminTokenTTL
			}
			token, err := a.Service.IssueToken(cmd.Context(), email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email address")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to SAMPLEFLOW_ADMIN_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newExportWeekCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "export-week",
		Short: "Write the weekly sample sheet and bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day := time.Now()
			if date != "" {
				parsed, err := time.ParseInLocation(time.DateOnly, date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
				day = parsed
			}
			a, err := bootstrap(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			export, err := a.Service.ExportWeek(cmd.Context(), day)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d samples)\n", export.BundleKey, export.Samples)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "any day of the week to export, YYYY-MM-DD (defaults to today)")
	return cmd
}
