package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/docdr/internal/config"
	"github.com/dl-alexandre/docdr/internal/restore"
	"github.com/dl-alexandre/docdr/internal/types"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <target-dir>",
	Short: "Restore backed up documents to a local directory",
	Long: `Restore the documents in the destination bucket under target-dir.

With one matching user the documents go straight into target-dir, otherwise
each user gets a sub-directory. Folders whose parent was lost are restored
under "lost and found". Files already present with the same size and
modification time are left alone, so an interrupted restore can be re-run.`,
	Example: `  docdr restore ./recovered
  docdr restore ./alice --user alice@example.com
  docdr restore ./recovered --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

var restoreFlags struct {
	user          string
	folders       []string
	folderPattern string
	dryRun        bool
}

func init() {
	f := restoreCmd.Flags()
	f.StringVar(&restoreFlags.user, "user", "", "Only restore this user (username or email)")
	f.StringSliceVar(&restoreFlags.folders, "folders", nil, "Only restore these top-level folders")
	f.StringVar(&restoreFlags.folderPattern, "folder-pattern", "", "Only restore top-level folders matching this regular expression")
	f.BoolVar(&restoreFlags.dryRun, "dry-run", false, "Print the tree that would be restored")

	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := newOutput(cmd)

	target, err := filepath.Abs(args[0])
	if err != nil {
		return invalidArgument(err.Error())
	}
	filter := types.Filter{
		UserQuery:     restoreFlags.user,
		FolderNames:   restoreFlags.folders,
		FolderPattern: restoreFlags.folderPattern,
	}
	if err := filter.Compile(); err != nil {
		return invalidArgument(err.Error())
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	engine := restore.NewEngine(s.store, s.layout, restoreOptions(cfg),
		restore.WithLogger(logger),
		restore.WithJournal(s.journal),
	)
	report, err := engine.Run(ctx, restore.Request{Target: target, Filter: filter, DryRun: restoreFlags.dryRun})
	if err != nil {
		return err
	}

	if report.DryRun && globalFlags.OutputFormat == types.OutputFormatTable {
		if err := out.WriteText(previewText(report)); err != nil {
			return err
		}
	} else if err := out.WriteSuccess("restore", restoreView{report}); err != nil {
		return err
	}

	if report.Partial() {
		failures := len(report.Errors)
		for _, u := range report.Users {
			failures += len(u.Failed) + len(u.FolderErrors)
		}
		return partialFailure("restore", report.RunID, failures)
	}
	return nil
}

func restoreOptions(c *config.Config) restore.Options {
	return restore.Options{
		FolderWorkers:   c.RestoreFolderWorkers,
		FileWorkers:     c.RestoreFileWorkers,
		DequeueTimeout:  c.GetDequeueTimeout(),
		StreamThreshold: c.StreamThreshold,
	}
}

// previewText joins the per-user trees of a dry run
func previewText(report *restore.Report) string {
	users := make([]string, 0, len(report.Previews))
	for u := range report.Previews {
		users = append(users, u)
	}
	sort.Strings(users)

	var b strings.Builder
	for _, u := range users {
		b.WriteString(report.Previews[u])
	}
	if b.Len() == 0 {
		return "Nothing to restore"
	}
	return strings.TrimRight(b.String(), "\n")
}

// restoreView renders a restore report
type restoreView struct {
	*restore.Report
}

func (v restoreView) AsTableRenderer() types.TableRenderer {
	rows := make([][]string, 0, len(v.Users))
	for _, u := range v.Users {
		rows = append(rows, []string{
			u.Username,
			fmt.Sprint(u.Folders),
			fmt.Sprint(u.Restored),
			fmt.Sprint(u.Skipped),
			config.FormatSize(u.BytesWritten),
			fmt.Sprint(len(u.Failed) + len(u.FolderErrors)),
		})
	}
	return &table{
		headers: []string{"User", "Folders", "Restored", "Skipped", "Written", "Failed"},
		rows:    rows,
		empty:   "No users matched",
	}
}
