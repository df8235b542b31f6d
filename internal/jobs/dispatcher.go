package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/wikitools/delsort/internal/config"
	"github.com/wikitools/delsort/internal/types"
)

// Runner executes a job command.
type Runner interface {
	// Run executes command and returns its exit code. When wait is false
	// the command is started and 0 is returned immediately.
	Run(ctx context.Context, command []string, wait bool) (int, error)
}

// ExecRunner runs commands as subprocesses that share the caller's stdout
// and stderr.
type ExecRunner struct {
	// Shell, when set, runs the joined command through "<Shell> -c".
	// Otherwise the first field is executed directly.
	Shell string

	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, command []string, wait bool) (int, error) {
	if len(command) == 0 {
		return -1, errors.New("empty command")
	}

	name, args := command[0], command[1:]
	if r.Shell != "" {
		name, args = r.Shell, []string{"-c", strings.Join(command, " ")}
	}

	// A detached job must outlive ctx, which is cancelled when run-job exits.
	var cmd *exec.Cmd
	if wait {
		cmd = exec.CommandContext(ctx, name, args...)
	} else {
		cmd = exec.Command(name, args...)
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("starting %s: %w", cmd.Path, err)
	}
	if !wait {
		go func() { _ = cmd.Wait() }()
		return 0, nil
	}

	err := cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A job killed by a signal reports 128+signal, as a shell does.
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// Result describes one dispatched job.
type Result struct {
	Name     string
	Line     int
	Command  string
	ExitCode int
	Duration time.Duration

	// Started is true when the command ran. It is false in dry-run mode.
	Started bool
}

// Dispatcher finds jobs by name in the job table and runs them.
type Dispatcher struct {
	cfg    config.JobsConfig
	runner Runner
	echo   io.Writer
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. The table is re-read on every dispatch
// so edits take effect without restarting anything.
func NewDispatcher(cfg config.JobsConfig, runner Runner, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("component", "dispatcher"),
	}
}

// SetEcho makes Dispatch print "> <command>" to w before running a job.
func (d *Dispatcher) SetEcho(w io.Writer) {
	d.echo = w
}

// Table loads the configured job table.
func (d *Dispatcher) Table() (*Table, error) {
	return LoadTable(d.cfg, d.logger)
}

// Lookup finds the job called name without running it.
func (d *Dispatcher) Lookup(name string) (*Table, Row, error) {
	table, err := d.Table()
	if err != nil {
		return nil, Row{}, err
	}
	row, ok := table.Find(name)
	if !ok {
		return table, Row{}, fmt.Errorf("%w: %q in %s", types.ErrNoMatchingJob, name, table.Path)
	}
	return table, row, nil
}

// Dispatch runs the first job whose name matches name and returns its exit
// status. It returns types.ErrNoMatchingJob when no row matches.
func (d *Dispatcher) Dispatch(ctx context.Context, name string) (Result, error) {
	table, row, err := d.Lookup(name)
	if err != nil {
		return Result{}, err
	}

	command := table.Command(row)
	res := Result{
		Name:    table.Name(row),
		Line:    row.Line,
		Command: strings.Join(command, " "),
	}

	d.logger.Debug("running job", "job", res.Name, "line", res.Line, "wait", d.cfg.Wait)
	if d.echo != nil {
		fmt.Fprintf(d.echo, "> %s\n", res.Command)
	}

	start := time.Now()
	code, err := d.runner.Run(ctx, command, d.cfg.Wait)
	res.Duration = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("job %s: %w", res.Name, err)
	}
	res.ExitCode = code
	res.Started = true

	d.logger.Debug("job finished", "job", res.Name, "exit_code", code, "duration", res.Duration)
	return res, nil
}

// DryRun resolves name to its command without running it.
func (d *Dispatcher) DryRun(name string) (Result, error) {
	table, row, err := d.Lookup(name)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Name:    table.Name(row),
		Line:    row.Line,
		Command: strings.Join(table.Command(row), " "),
	}, nil
}

// Entry is a job listing with its next scheduled run.
type Entry struct {
	Name     string
	Schedule string
	Next     time.Time // zero when the row has no valid schedule
	Command  string
}

// List returns every job in the table, with next run times computed from now.
func (d *Dispatcher) List(now time.Time) ([]Entry, error) {
	table, err := d.Table()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(table.Rows))
	for _, row := range table.Rows {
		e := Entry{
			Name:     table.Name(row),
			Schedule: row.Spec(),
			Command:  strings.Join(table.Command(row), " "),
		}
		if row.Schedule != nil {
			e.Next = row.Schedule.Next(now)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
