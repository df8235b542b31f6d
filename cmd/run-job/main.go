package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wikitools/delsort/internal/config"
	"github.com/wikitools/delsort/internal/jobs"
	"github.com/wikitools/delsort/internal/observability"
	"github.com/wikitools/delsort/internal/types"
)

const (
	exitUsage   = 1
	exitNoMatch = 2
)

// options holds the flag values and the resulting exit status of one
// invocation.
type options struct {
	cfgFile   string
	verbose   bool
	tablePath string
	listJobs  bool
	dryRun    bool

	// exitCode is the process status once the command returns.
	exitCode int
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes run-job with args and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	opts := &options{}
	rootCmd := newRootCmd(opts)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "run-job: %v\n", err)
		if opts.exitCode == 0 {
			return 1
		}
	}
	return opts.exitCode
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "run-job <jobname>",
		Short: "Run a job from the crontab by name",
		Long: `run-job looks up <jobname> in the job table and runs its command now.

A row matches when its name field equals <jobname>, or equals it once the
fixed name prefix (e.g. "job_") is removed. Matching ignores case and the
first matching row wins. The job's exit status becomes run-job's.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, opts, args)
		},
	}

	rootCmd.Flags().StringVarP(&opts.cfgFile, "config", "c", "", "config file path")
	rootCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVarP(&opts.tablePath, "table", "t", "", "job table path (overrides jobs.table)")
	rootCmd.Flags().BoolVarP(&opts.listJobs, "list", "l", false, "list jobs and their next scheduled run")
	rootCmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "print the matched command without running it")
	return rootCmd
}

func runJob(cmd *cobra.Command, opts *options, args []string) error {
	if len(args) == 0 && !opts.listJobs {
		fmt.Fprintln(cmd.OutOrStdout(), "USAGE: run-job <jobname>")
		opts.exitCode = exitUsage
		return nil
	}

	cfg, err := config.Load(opts.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.tablePath != "" {
		cfg.Jobs.Table = opts.tablePath
	}
	if err := config.ValidateJobs(&cfg.Jobs); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := observability.NewLogger(cmd.ErrOrStderr(), cfg.Logging, opts.verbose)
	runner := &jobs.ExecRunner{Shell: cfg.Jobs.Shell, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
	dispatcher := jobs.NewDispatcher(cfg.Jobs, runner, logger)

	if opts.listJobs {
		return printJobs(cmd, dispatcher)
	}

	name := args[0]
	if opts.dryRun {
		res, err := dispatcher.DryRun(name)
		if err != nil {
			return opts.noMatch(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "> %s\n", res.Command)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher.SetEcho(cmd.OutOrStdout())
	res, err := dispatcher.Dispatch(ctx, name)
	if err != nil {
		return opts.noMatch(err)
	}
	opts.exitCode = res.ExitCode
	return nil
}

// noMatch sets the no-match exit status when err is types.ErrNoMatchingJob.
func (o *options) noMatch(err error) error {
	if errors.Is(err, types.ErrNoMatchingJob) {
		o.exitCode = exitNoMatch
	}
	return err
}

func printJobs(cmd *cobra.Command, d *jobs.Dispatcher) error {
	entries, err := d.List(time.Now())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCHEDULE\tNEXT RUN\tCOMMAND")
	for _, e := range entries {
		next := "-"
		if !e.Next.IsZero() {
			next = e.Next.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Schedule, next, e.Command)
	}
	return w.Flush()
}
