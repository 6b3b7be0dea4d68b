// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for the archiver using the
// Cobra library: the root run command, the validate/schedule/version
// subcommands, flags and the entry point. Flags also bind to ARCHIVER_*
// environment variables so the scheduler unit file can configure the tool
// without wrapper scripts.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toeirei/archiver/buildvars"
	"github.com/toeirei/archiver/internal/config"
	"github.com/toeirei/archiver/internal/i18n"
	"github.com/toeirei/archiver/internal/logging"
	"github.com/toeirei/archiver/internal/metrics"
	"github.com/toeirei/archiver/internal/pattern"
	"github.com/toeirei/archiver/internal/schedule"
)

var rootCmd *cobra.Command

// main is the entry point of the application. SIGINT/SIGTERM cancel the run
// context: files already fetched stay fetched, re-running is safe.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}

func init() {
	rootCmd = newRootCmd()
	viper.SetDefault("language", "en")
}

// newRootCmd creates and configures a new root cobra command. Tests create
// fresh instances for isolation.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archiver <config>",
		Short: "Archiver moves aged log files from remote hosts into a local archive.",
		Long: `Archiver walks a roster of services and hosts described in a YAML
document, finds log files whose embedded date has aged past each service's
retention window, and copies them over SSH into a local archive tree
(archive_dir/service/host/). With --remove the remote original is deleted,
but only after its local copy is confirmed. Built to run unattended from
cron or its own schedule subcommand.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			i18n.Init(viper.GetString("language"))
			logging.SetDebug(viper.GetBool("verbose"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runArchive(cmd.Context(), args[0], runOptions{
				dryRun:   viper.GetBool("dry-run"),
				remove:   viper.GetBool("remove"),
				useAgent: viper.GetBool("use-ssh-agent"),
				verbose:  viper.GetBool("verbose"),
				lang:     explicitLang(cmd),
			}, cmd.OutOrStdout())
			if err != nil {
				logging.Errorf("%v", err)
			}
			return err
		},
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "increase output verbosity")
	cmd.PersistentFlags().BoolP("dry-run", "n", false, "print planned actions without performing any I/O")
	cmd.PersistentFlags().Bool("remove", false, "delete remote files after a confirmed fetch")
	cmd.PersistentFlags().Bool("use-ssh-agent", false, "allow keys from a running SSH agent")
	cmd.PersistentFlags().String("lang", "", `message language ("en", "de")`)

	viper.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("dry-run", cmd.PersistentFlags().Lookup("dry-run"))
	viper.BindPFlag("remove", cmd.PersistentFlags().Lookup("remove"))
	viper.BindPFlag("use-ssh-agent", cmd.PersistentFlags().Lookup("use-ssh-agent"))
	viper.BindPFlag("language", cmd.PersistentFlags().Lookup("lang"))
	viper.SetEnvPrefix("ARCHIVER")
	viper.AutomaticEnv()

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newScheduleCmd())
	cmd.AddCommand(newVersionCmd())

	cmd.Version = buildvars.VersionOrDefault("dev")

	return cmd
}

// newValidateCmd loads and validates a configuration document, compiles
// every service pattern, and echoes the normalized configuration with all
// defaults applied.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a configuration document and print its normalized form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			for _, svc := range cfg.Services {
				if _, err := pattern.Compile(svc.Pattern); err != nil {
					return fmt.Errorf("service %s: %w", svc.Name, err)
				}
			}
			out, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("validate.ok"))
			return nil
		},
	}
}

// newScheduleCmd runs the archiver as a daemon on the cron schedule from
// the configuration document. The document is re-read before every tick so
// edits apply without a restart.
func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <config>",
		Short: "Run unattended on the cron schedule from the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := args[0]
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Schedule == nil {
				return &config.ConfigError{Field: "schedule", Message: "required for schedule mode"}
			}

			ctx := cmd.Context()
			if cfg.Schedule.MetricsListen != "" {
				go func() {
					if err := metrics.Serve(ctx, cfg.Schedule.MetricsListen); err != nil {
						logging.Errorf("metrics endpoint: %v", err)
					}
				}()
			}

			opts := runOptions{
				remove:   viper.GetBool("remove"),
				useAgent: viper.GetBool("use-ssh-agent"),
				verbose:  viper.GetBool("verbose"),
				lang:     explicitLang(cmd),
			}
			out := cmd.OutOrStdout()
			s := schedule.New(cfg.Schedule.Cron, func(ctx context.Context) {
				if err := runArchive(ctx, cfgPath, opts, out); err != nil {
					logging.Errorf("%s", i18n.T("schedule.run_failed", err))
				}
			})
			if err := s.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			s.Stop()
			return nil
		},
	}
}

// explicitLang returns the message language only when the operator set it
// explicitly, via the --lang flag or the ARCHIVER_LANG variable. Viper cannot
// answer this: its lookup falls through to defaults, which would make the
// flag's presence indistinguishable from its absence.
func explicitLang(cmd *cobra.Command) string {
	if f := cmd.Root().PersistentFlags().Lookup("lang"); f != nil && f.Changed {
		return f.Value.String()
	}
	return os.Getenv("ARCHIVER_LANG")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "archiver %s", buildvars.VersionOrDefault("dev"))
			if buildvars.GitCommit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (commit %s)", buildvars.GitCommit)
			}
			if buildvars.BuildDate != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " built %s", buildvars.BuildDate)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
