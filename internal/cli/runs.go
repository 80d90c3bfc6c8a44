package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/docdr/internal/config"
	"github.com/dl-alexandre/docdr/internal/journal"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the journal of past backups and restores",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its failures",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsLimit int

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to list (0 for all)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func requireJournal() (*journal.DB, error) {
	db, err := openJournal()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig,
			"the run journal is disabled").Build())
	}
	return db, nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	db, err := requireJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	return newOutput(cmd).WriteSuccess("runs.list", runList{runs: runs, now: time.Now()})
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	db, err := requireJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	run, err := db.GetRun(ctx, args[0])
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNotFound, err.Error()).
			WithContext("runId", args[0]).Build(), err)
	}
	failures, err := db.ListFailures(ctx, run.ID)
	if err != nil {
		return err
	}
	return newOutput(cmd).WriteSuccess("runs.show", runDetail{Run: run, Failures: failures})
}

type runList struct {
	runs []journal.Run
	now  time.Time
}

func (l runList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.runs)
}

func (l runList) AsTableRenderer() types.TableRenderer {
	rows := make([][]string, 0, len(l.runs))
	for _, r := range l.runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = config.FormatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		rows = append(rows, []string{
			r.ID,
			r.Kind,
			r.Style,
			config.FormatTime(r.StartedAt, l.now),
			duration,
			r.Status,
		})
	}
	return &table{
		headers: []string{"ID", "Kind", "Style", "Started", "Duration", "Status"},
		rows:    rows,
		empty:   "No runs recorded",
	}
}

type runDetail struct {
	*journal.Run
	Failures []journal.Failure `json:"failures"`
}

func (d runDetail) AsTableRenderer() types.TableRenderer {
	rows := [][]string{
		{"ID", d.ID},
		{"Kind", d.Kind},
		{"Style", d.Style},
		{"Organization", d.OrganizationID},
		{"Started", d.StartedAt.Local().Format(time.RFC3339)},
		{"Status", d.Status},
	}
	if !d.FinishedAt.IsZero() {
		rows = append(rows, []string{"Finished", d.FinishedAt.Local().Format(time.RFC3339)})
	}
	if d.Filter != "" {
		rows = append(rows, []string{"Filter", d.Filter})
	}
	if d.Error != "" {
		rows = append(rows, []string{"Error", d.Error})
	}
	for _, f := range d.Failures {
		where := f.Username
		if f.DocumentID != "" {
			where = fmt.Sprintf("%s/%s", where, f.DocumentID)
		} else if f.FolderID != "" {
			where = fmt.Sprintf("%s/%s", where, f.FolderID)
		}
		rows = append(rows, []string{"Failure", config.TruncateString(fmt.Sprintf("%s %s: %s", f.ActionKind, where, f.Error), 100)})
	}
	return &table{headers: []string{"Field", "Value"}, rows: rows}
}
