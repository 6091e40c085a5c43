package cli

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"prepflow/internal/config"
	"prepflow/internal/pipeline"
	"prepflow/internal/storage"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store, pipe *pipeline.Pipeline) *cobra.Command {
	root := NewRoot(pipe, cfg, log, store)

	rootCmd := &cobra.Command{
		Use:   "prepflow",
		Short: "Prepflow is a preprocessing front end for Siril",
		Long: `Prepflow collects preprocessing options across the convert, calibration,
registration and stacking stages, renders them as a Siril script, and can
forward the script to a running Siril instance command by command.`,
	}

	rootCmd.AddCommand(newScanCmd(root))
	rootCmd.AddCommand(newGenerateCmd(root))
	rootCmd.AddCommand(newRunCmd(root))
	rootCmd.AddCommand(newTuiCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newStatusCmd(root))
	rootCmd.AddCommand(newProfilesCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newScanCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [session_dir]",
		Short: "Count calibration and light frames in a session directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.cmdScan(context.Background(), args)
		},
	}
}

func newGenerateCmd(root *Root) *cobra.Command {
	var (
		output  string
		profile string
	)

	cmd := &cobra.Command{
		Use:   "generate [session_dir]",
		Short: "Render the preprocessing script without running it",
		Long: `Scan the session directory and render the Siril preprocessing script.
The script is deterministic: the same options and frame layout always
produce the same text, whether or not Siril is running.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliArgs := []string{"--output", output}
			if profile != "" {
				cliArgs = append(cliArgs, "--profile", profile)
			}
			cliArgs = append(cliArgs, args...)
			return root.cmdGenerate(context.Background(), cliArgs)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", root.cfg.Paths.ScriptOutput, "script output path")
	cmd.Flags().StringVar(&profile, "profile", "", "stage preset to apply")

	return cmd
}

func newRunCmd(root *Root) *cobra.Command {
	var (
		output  string
		profile string
		batch   bool
	)

	cmd := &cobra.Command{
		Use:   "run [session_dir]",
		Short: "Generate the script and send it to the host application",
		Long: `Generate the preprocessing script, then forward it to a running Siril
instance one command at a time, stopping at the first failure. When the
host cannot be reached the script is still written to disk so it can be
run manually.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliArgs := []string{"--output", output}
			if profile != "" {
				cliArgs = append(cliArgs, "--profile", profile)
			}
			if batch {
				cliArgs = append(cliArgs, "--batch")
			}
			cliArgs = append(cliArgs, args...)
			return root.cmdRun(context.Background(), cliArgs)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", root.cfg.Paths.ScriptOutput, "script output path")
	cmd.Flags().StringVar(&profile, "profile", "", "stage preset to apply")
	cmd.Flags().BoolVar(&batch, "batch", false, "run through siril-cli instead of the command pipes")

	return cmd
}

func newTuiCmd(root *Root) *cobra.Command {
	var (
		output  string
		profile string
		batch   bool
	)

	cmd := &cobra.Command{
		Use:   "tui [session_dir]",
		Short: "Edit stage options interactively with a live script preview",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliArgs := []string{"--output", output}
			if profile != "" {
				cliArgs = append(cliArgs, "--profile", profile)
			}
			if batch {
				cliArgs = append(cliArgs, "--batch")
			}
			cliArgs = append(cliArgs, args...)
			return root.cmdTui(context.Background(), cliArgs)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", root.cfg.Paths.ScriptOutput, "script output path")
	cmd.Flags().StringVar(&profile, "profile", "", "stage preset to apply")
	cmd.Flags().BoolVar(&batch, "batch", false, "use siril-cli for runs started from the form")

	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr  string
		watch string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start an HTTP server exposing script generation and run management,
with live job events over SSE and WebSocket. With --watch the server
also monitors a session directory and streams frame count updates.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.cmdServe(context.Background(), []string{"--addr", addr, "--watch", watch})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "server address (host:port)")
	cmd.Flags().StringVar(&watch, "watch", "", "session directory to monitor for new frames")

	return cmd
}

func newStatusCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show host availability and recent run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.cmdStatus(context.Background(), []string{"--limit", strconv.Itoa(limit)})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent runs to show")

	return cmd
}

func newProfilesCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles [show <name>]",
		Short: "List or inspect stage presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.cmdProfiles(context.Background(), args)
		},
	}
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.configShow()
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show the config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(configPath())
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check stage options for invalid values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.configValidate()
		},
	}

	cmd.AddCommand(showCmd, pathCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.cmdVersion()
		},
	}
}
