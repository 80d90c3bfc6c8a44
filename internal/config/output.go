package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputFormatter writes command results as a JSON envelope or as a table.
// Warnings collected during a command travel with its result.
type OutputFormatter struct {
	opts     OutputOptions
	warnings []types.CLIWarning
}

// OutputOptions configures the output formatter
type OutputOptions struct {
	Format         types.OutputFormat
	Quiet          bool
	Verbose        bool
	IncludeTraceID bool
	Writer         io.Writer
	ErrorWriter    io.Writer
}

func NewOutputFormatter(opts OutputOptions) *OutputFormatter {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	if opts.ErrorWriter == nil {
		opts.ErrorWriter = os.Stderr
	}
	return &OutputFormatter{opts: opts, warnings: []types.CLIWarning{}}
}

func (f *OutputFormatter) AddWarning(code, message, severity string) {
	f.warnings = append(f.warnings, types.CLIWarning{Code: code, Message: message, Severity: severity})
}

func (f *OutputFormatter) envelope(command, traceID string, data interface{}, errs []types.CLIError) types.CLIOutput {
	if errs == nil {
		errs = []types.CLIError{}
	}
	return types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       traceID,
		Command:       command,
		Data:          data,
		Warnings:      f.warnings,
		Errors:        errs,
	}
}

// WriteSuccess writes the result of command in the configured format
func (f *OutputFormatter) WriteSuccess(command string, data interface{}) error {
	switch f.opts.Format {
	case types.OutputFormatJSON:
		var traceID string
		if f.opts.Verbose || f.opts.IncludeTraceID {
			traceID = uuid.NewString()
		}
		return f.writeJSON(f.envelope(command, traceID, data, nil))
	case types.OutputFormatTable:
		return f.writeTable(command, data)
	}
	return fmt.Errorf("unsupported output format: %s", f.opts.Format)
}

// WriteError always writes JSON so scripts can parse failures whatever the
// format
func (f *OutputFormatter) WriteError(command string, cliErr types.CLIError) error {
	return f.writeJSON(f.envelope(command, uuid.NewString(), nil, []types.CLIError{cliErr}))
}

// WriteText writes preformatted text, such as a rendered tree
func (f *OutputFormatter) WriteText(text string) error {
	_, err := fmt.Fprintln(f.opts.Writer, text)
	return err
}

func (f *OutputFormatter) writeJSON(v interface{}) error {
	enc := json.NewEncoder(f.opts.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *OutputFormatter) writeTable(command string, data interface{}) error {
	if !f.opts.Quiet {
		for _, w := range f.warnings {
			if _, err := fmt.Fprintf(f.opts.ErrorWriter, "Warning [%s]: %s\n", w.Code, w.Message); err != nil {
				return err
			}
		}
	}

	switch v := data.(type) {
	case types.TableRenderable:
		return f.render(v.AsTableRenderer())
	case types.TableRenderer:
		return f.render(v)
	case map[string]interface{}:
		return f.render(keyValues(v))
	case map[string]string:
		m := make(map[string]interface{}, len(v))
		for k, s := range v {
			m[k] = s
		}
		return f.render(keyValues(m))
	}
	// no table form
	return f.writeJSON(f.envelope(command, "", data, nil))
}

func (f *OutputFormatter) render(r types.TableRenderer) error {
	rows := r.Rows()
	if len(rows) == 0 {
		if f.opts.Quiet {
			return nil
		}
		_, err := fmt.Fprintln(f.opts.Writer, r.EmptyMessage())
		return err
	}

	t := tablewriter.NewWriter(f.opts.Writer)
	t.SetHeader(r.Headers())
	t.SetBorder(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetTablePadding("\t")
	t.SetNoWhiteSpace(true)
	t.AppendBulk(rows)
	t.Render()
	return nil
}

// kvTable renders a map as key/value rows sorted by key
type kvTable [][]string

func keyValues(m map[string]interface{}) kvTable {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make(kvTable, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, fmt.Sprintf("%v", m[k])})
	}
	return rows
}

func (t kvTable) Headers() []string    { return []string{"Key", "Value"} }
func (t kvTable) Rows() [][]string     { return t }
func (t kvTable) EmptyMessage() string { return "No values" }

// Log writes a progress line to the error writer unless quiet
func (f *OutputFormatter) Log(format string, args ...interface{}) {
	if f.opts.Quiet {
		return
	}
	fmt.Fprintf(f.opts.ErrorWriter, format+"\n", args...)
}

// FormatSize formats a byte count for display
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatTime formats a timestamp for display, relative to now when recent
func FormatTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	t = t.Local()
	diff := now.Sub(t)

	switch {
	case diff >= 0 && diff < 24*time.Hour && t.Day() == now.Day():
		return t.Format("15:04 Today")
	case diff >= 0 && diff < 48*time.Hour:
		return t.Format("15:04 Yesterday")
	case diff >= 0 && diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	}
	return t.Format("2006-01-02 15:04")
}

// FormatDuration rounds d for display
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}

// TruncateString truncates a string to maxLen with ellipsis
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
