package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/dl-alexandre/docdr/internal/backup"
	"github.com/dl-alexandre/docdr/internal/config"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the organisation's documents",
	Long: `Back up every user's Drive documents into the destination bucket.

Without --run-style the run markers in the bucket decide: a full walk when no
full backup finished within --max-days-since-full days, nothing when a full
backup started less than --max-hours-full hours ago, else an incremental pass
over the activity since the last run.

A run narrowed with --user, --folders or --folder-pattern does not update the
run markers.`,
	Example: `  docdr backup
  docdr backup --run-style full
  docdr backup --user alice@example.com --folders Reports
  docdr backup --run-style incremental --since "3 days ago"`,
	RunE: runBackup,
}

type backupFlagSet struct {
	user          string
	folders       []string
	folderPattern string
	runStyle      string
	since         string
	maxDays       int
	maxHours      int
}

var backupFlags backupFlagSet

func init() {
	f := backupCmd.Flags()
	f.StringVar(&backupFlags.user, "user", "", "Only back up this user (username or email)")
	f.StringSliceVar(&backupFlags.folders, "folders", nil, "Only back up these top-level folders")
	f.StringVar(&backupFlags.folderPattern, "folder-pattern", "", "Only back up top-level folders matching this regular expression")
	f.StringVar(&backupFlags.runStyle, "run-style", "", "Force the run style (full, incremental)")
	f.StringVar(&backupFlags.since, "since", "", "Incremental cutoff, e.g. \"2 days ago\" or an RFC 3339 time")
	f.IntVar(&backupFlags.maxDays, "max-days-since-full", 0, "Days after which a full backup is due")
	f.IntVar(&backupFlags.maxHours, "max-hours-full", 0, "Hours a full backup may take before another may start")

	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := newOutput(cmd)

	opts, err := backupOptions(cfg, time.Now())
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	engine := backup.NewEngine(s.source(), s.store, s.layout, opts,
		backup.WithLogger(logger),
		backup.WithJournal(s.journal),
	)
	report, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	if report.Style == types.RunStyleAbort {
		out.AddWarning("RUN_SKIPPED", "a full backup started recently and may still be running", "info")
	}
	if err := out.WriteSuccess("backup", backupView{report}); err != nil {
		return err
	}
	if report.Partial() {
		return partialFailure("backup", report.RunID, len(report.Failed)+len(report.Errors))
	}
	return nil
}

// backupOptions turns config and flags into engine options
func backupOptions(c *config.Config, now time.Time) (backup.Options, error) {
	styleValue := c.RunStyle
	if backupFlags.runStyle != "" {
		styleValue = backupFlags.runStyle
	}
	style, err := types.ParseRunStyle(styleValue)
	if err != nil {
		return backup.Options{}, invalidArgument(err.Error())
	}
	if style == types.RunStyleAbort {
		return backup.Options{}, invalidArgument("the ABORT run style cannot be forced")
	}

	filter := types.Filter{
		UserQuery:     backupFlags.user,
		FolderNames:   backupFlags.folders,
		FolderPattern: backupFlags.folderPattern,
	}
	if err := filter.Compile(); err != nil {
		return backup.Options{}, invalidArgument(err.Error())
	}

	opts := backup.Options{
		Style:                  style,
		Filter:                 filter,
		MaxDaysSinceLastFull:   c.MaxDaysSinceLastFull,
		MaxHoursToCompleteFull: c.MaxHoursToCompleteFull,
		WalkWorkers:            c.WalkWorkers,
		ReconcileWorkers:       c.ReconcileWorkers,
		ExecuteWorkers:         c.ExecuteWorkers,
		ConsolidateWorkers:     c.ConsolidateWorkers,
		DequeueTimeout:         c.GetDequeueTimeout(),
		ActionLimit:            c.ActivityActionLimit,
		StreamThreshold:        c.StreamThreshold,
		SpoolDir:               c.SpoolDir,
	}
	if backupFlags.maxDays > 0 {
		opts.MaxDaysSinceLastFull = backupFlags.maxDays
	}
	if backupFlags.maxHours > 0 {
		opts.MaxHoursToCompleteFull = backupFlags.maxHours
	}
	if backupFlags.since != "" {
		if opts.Since, err = parseSince(backupFlags.since, now); err != nil {
			return backup.Options{}, err
		}
	}
	return opts, nil
}

// parseSince reads an absolute time or a natural-language one relative to now
func parseSince(value string, now time.Time) (time.Time, error) {
	t, err := parseTime(strings.TrimSpace(value), now)
	if err != nil {
		return time.Time{}, invalidArgument(fmt.Sprintf("cannot parse --since %q: %v", value, err))
	}
	if t.After(now) {
		return time.Time{}, invalidArgument(fmt.Sprintf("--since %q is in the future", value))
	}
	return t, nil
}

func parseTime(value string, now time.Time) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, now.Location()); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(value, now)
	if err != nil {
		return time.Time{}, err
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("no date or time found")
	}
	return r.Time, nil
}

func invalidArgument(msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, msg).Build())
}

func partialFailure(command, runID string, failures int) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodePartialFailure,
		fmt.Sprintf("%s finished with %d failure(s); see 'docdr runs show %s'", command, failures, runID)).
		WithContext("runId", runID).
		Build())
}

// backupView renders a backup report
type backupView struct {
	*backup.Report
}

func (v backupView) AsTableRenderer() types.TableRenderer {
	r := v.Report
	rows := [][]string{
		{"Run", r.RunID},
		{"Style", string(r.Style)},
		{"Duration", config.FormatDuration(r.FinishedAt.Sub(r.StartedAt))},
		{"Users", fmt.Sprint(r.Users)},
		{"Folders", fmt.Sprint(r.Folders)},
		{"Copies", fmt.Sprint(r.Actions.Copies)},
		{"Copied", config.FormatSize(r.Actions.BytesCopied)},
		{"Deletes", fmt.Sprint(r.Actions.Deletes)},
		{"Folder removals", fmt.Sprint(r.Actions.FolderRemovals)},
		{"Summaries", fmt.Sprint(r.Actions.Summaries)},
		{"Skipped", fmt.Sprint(r.Actions.Skipped)},
		{"Pruned", fmt.Sprint(r.Pruned)},
		{"Failed", fmt.Sprint(len(r.Failed))},
	}
	if r.WalkFailures > 0 {
		rows = append(rows, []string{"Walk failures", fmt.Sprint(r.WalkFailures)})
	}
	if a := r.Activity; a != nil {
		rows = append(rows,
			[]string{"Activity events", fmt.Sprint(a.Events)},
			[]string{"Activity dropped", fmt.Sprint(a.Dropped)},
			[]string{"Activity truncated", fmt.Sprint(a.Truncated)},
		)
	}
	for _, f := range r.Failed {
		rows = append(rows, []string{"Failure", config.TruncateString(f.Action.String()+": "+f.Error, 100)})
	}
	for _, e := range r.Errors {
		rows = append(rows, []string{"Error", config.TruncateString(e, 100)})
	}
	return &table{headers: []string{"Field", "Value"}, rows: rows}
}

// table is a ready-made TableRenderer
type table struct {
	headers []string
	rows    [][]string
	empty   string
}

func (t *table) Headers() []string    { return t.headers }
func (t *table) Rows() [][]string     { return t.rows }
func (t *table) EmptyMessage() string { return t.empty }
