// Package cli wires the flamerun command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flamerun/flamerun/internal/config"
	"github.com/flamerun/flamerun/internal/controller"
	"github.com/flamerun/flamerun/internal/logging"
	"github.com/flamerun/flamerun/internal/preflight"
	"github.com/flamerun/flamerun/internal/session"
	"github.com/flamerun/flamerun/pkg/version"
)

func newRootCmd() *cobra.Command {
	var (
		pid         int32
		duration    int
		execPath    string
		interactive bool
		frequency   int
		outputDir   string
		configPath  string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "flamerun [flags] [-- target-args...]",
		Short: "Capture CPU profiles and render flamegraphs",
		Long: `Orchestrate perf-based profiling of a running process or a freshly
launched executable and turn the samples into a flamegraph.

One of four modes is selected by the flags:
- attach with a fixed duration:  flamerun -P 1234 -D 30
- attach until Ctrl+C:           flamerun -P 1234
- launch and record:             flamerun -E ./server -- --port 8080
- interactive counter handshake: flamerun -I -E ./worker

In interactive mode the target drives collection with out-of-band
signals: SIGUSR1 begins counter collection, SIGUSR2 ends it, and the
controller acknowledges a running collector with SIGCONT. Counter mode
reports live statistics and produces no flamegraph.

External tools (perf, stackcollapse-perf.pl, flamegraph.pl) are
configured in ~/.flamerun/config.yaml or via FLAMERUN_* environment
variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Flag overrides on top of file and environment.
			if cmd.Flags().Changed("freq") {
				cfg.CaptureFrequency = frequency
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			logCfg := logging.DefaultConfig()
			logCfg.Level = cfg.LogLevel
			logger := logging.New(logCfg)

			sess, err := session.Resolve(session.Options{
				PID:         pid,
				Duration:    duration,
				ExecPath:    execPath,
				ExecArgs:    args,
				Interactive: interactive,
			}, logger)
			if err != nil {
				return err
			}

			if err := preflight.Check(cfg, logger); err != nil {
				return err
			}

			image, err := controller.New(cfg, sess, logger).Run()
			if err != nil {
				return err
			}

			if image != "" {
				fmt.Fprintln(cmd.OutOrStdout(), image)
			}
			return nil
		},
	}

	cmd.Flags().Int32VarP(&pid, "pid", "P", 0, "PID of an existing process to attach to (exclusive with --exec)")
	cmd.Flags().IntVarP(&duration, "duration", "D", 0, "Bounded sampling duration in seconds (only with --pid)")
	cmd.Flags().StringVarP(&execPath, "exec", "E", "", "Executable to launch and profile (exclusive with --pid)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "I", false, "Counter-collection handshake mode (only with --exec)")
	cmd.Flags().IntVar(&frequency, "freq", 99, "Stack sampling frequency in Hz")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for raw samples and artifacts")
	cmd.Flags().StringVar(&configPath, "config", "", "Config file path (default ~/.flamerun/config.yaml)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("flamerun version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
