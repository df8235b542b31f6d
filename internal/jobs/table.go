// Package jobs looks up named jobs in a crontab-style table and runs them on
// demand.
package jobs

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/wikitools/delsort/internal/config"
)

// scheduleFields is the number of leading cron fields on every row.
const scheduleFields = 5

// scheduleParser accepts standard five-field cron expressions.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Row is one job line of the table.
type Row struct {
	// Line is the 1-based line number in the table file.
	Line   int
	Fields []string

	// Schedule is nil when the first five fields are not a valid cron
	// expression. Such rows can still be run by name.
	Schedule cron.Schedule
}

// Spec returns the row's five schedule fields joined by spaces.
func (r Row) Spec() string {
	if len(r.Fields) < scheduleFields {
		return strings.Join(r.Fields, " ")
	}
	return strings.Join(r.Fields[:scheduleFields], " ")
}

// Table is a parsed job table.
type Table struct {
	Path string
	Rows []Row

	layout config.JobsConfig
}

// LoadTable reads and parses the job table at cfg.Table.
func LoadTable(cfg config.JobsConfig, logger *slog.Logger) (*Table, error) {
	f, err := os.Open(cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("open job table: %w", err)
	}
	defer f.Close()

	t, err := ParseTable(f, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("read job table %s: %w", cfg.Table, err)
	}
	t.Path = cfg.Table
	return t, nil
}

// ParseTable parses job rows from r. Blank lines and lines whose first
// non-space character is '#' are ignored. Rows too short to hold both a
// command and a job name are skipped with a warning.
func ParseTable(r io.Reader, cfg config.JobsConfig, logger *slog.Logger) (*Table, error) {
	logger = logger.With("component", "job_table")
	minFields := max(cfg.NameColumn, cfg.CommandColumn) + 1

	t := &Table{layout: cfg}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < minFields {
			logger.Warn("skipping short job row", "line", lineNo, "fields", len(fields), "want", minFields)
			continue
		}

		row := Row{Line: lineNo, Fields: fields}
		if len(fields) >= scheduleFields {
			sched, err := scheduleParser.Parse(strings.Join(fields[:scheduleFields], " "))
			if err != nil {
				logger.Debug("row has no valid schedule", "line", lineNo, "error", err)
			} else {
				row.Schedule = sched
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Name returns the job name field of row.
func (t *Table) Name(row Row) string {
	return row.Fields[t.layout.NameColumn]
}

// Command returns the command fields of row.
func (t *Table) Command(row Row) []string {
	return row.Fields[t.layout.CommandColumn:]
}

// Find returns the first row whose name matches name, either exactly or
// after stripping the configured name prefix. Matching ignores case.
func (t *Table) Find(name string) (Row, bool) {
	want := strings.ToLower(name)
	for _, row := range t.Rows {
		job := strings.ToLower(t.Name(row))
		if job == want {
			return row, true
		}
		if len(job) > t.layout.NamePrefixLen && job[t.layout.NamePrefixLen:] == want {
			return row, true
		}
	}
	return Row{}, false
}
