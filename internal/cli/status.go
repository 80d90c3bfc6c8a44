package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/docdr/internal/backup/runmode"
	"github.com/dl-alexandre/docdr/internal/config"
	"github.com/dl-alexandre/docdr/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the run markers and what the next backup would do",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// Status is the state of the run markers in the bucket
type Status struct {
	OrganizationID       string         `json:"organizationId"`
	LastFullStart        time.Time      `json:"lastFullStart"`
	LastFullEnd          time.Time      `json:"lastFullEnd"`
	LastIncrementalStart time.Time      `json:"lastIncrementalStart"`
	LastIncrementalEnd   time.Time      `json:"lastIncrementalEnd"`
	NextStyle            types.RunStyle `json:"nextStyle"`
	IncrementalCutoff    time.Time      `json:"incrementalCutoff"`
	MaxDaysSinceLastFull int            `json:"maxDaysSinceLastFull"`
	MaxHoursToComplete   int            `json:"maxHoursToCompleteFull"`

	now time.Time
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	now := time.Now()
	status, err := loadStatus(ctx, runmode.New(s.store, s.layout, runmode.WithLogger(logger)), cfg, now)
	if err != nil {
		return err
	}
	status.OrganizationID = s.layout.OrganizationID()
	return newOutput(cmd).WriteSuccess("status", status)
}

type minder interface {
	Load(ctx context.Context) error
	Timestamp(style types.RunStyle, event types.RunEvent) time.Time
	Decide(ctx context.Context, maxDaysSinceLastFull, maxHoursToCompleteFull int) (types.RunStyle, error)
	IncrementalCutoff(ctx context.Context) (time.Time, error)
}

func loadStatus(ctx context.Context, m minder, c *config.Config, now time.Time) (*Status, error) {
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	next, err := m.Decide(ctx, c.MaxDaysSinceLastFull, c.MaxHoursToCompleteFull)
	if err != nil {
		return nil, err
	}
	cutoff, err := m.IncrementalCutoff(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		LastFullStart:        m.Timestamp(types.RunStyleFull, types.RunEventStart),
		LastFullEnd:          m.Timestamp(types.RunStyleFull, types.RunEventEnd),
		LastIncrementalStart: m.Timestamp(types.RunStyleIncremental, types.RunEventStart),
		LastIncrementalEnd:   m.Timestamp(types.RunStyleIncremental, types.RunEventEnd),
		NextStyle:            next,
		IncrementalCutoff:    cutoff,
		MaxDaysSinceLastFull: c.MaxDaysSinceLastFull,
		MaxHoursToComplete:   c.MaxHoursToCompleteFull,
		now:                  now,
	}, nil
}

func (s *Status) AsTableRenderer() types.TableRenderer {
	never := func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Local().Format("2006-01-02 15:04:05") + " (" + config.FormatTime(t, s.now) + ")"
	}
	return &table{
		headers: []string{"Field", "Value"},
		rows: [][]string{
			{"Organization", s.OrganizationID},
			{"Last full start", never(s.LastFullStart)},
			{"Last full end", never(s.LastFullEnd)},
			{"Last incremental start", never(s.LastIncrementalStart)},
			{"Last incremental end", never(s.LastIncrementalEnd)},
			{"Next run", string(s.NextStyle)},
			{"Incremental cutoff", never(s.IncrementalCutoff)},
		},
	}
}
