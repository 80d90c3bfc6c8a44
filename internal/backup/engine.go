// Package backup runs backups: it decides the run style, then drives either
// a full walk of every user tree or an activity-driven incremental pass
// through the reconcile and execute stages.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dl-alexandre/docdr/internal/backup/activity"
	"github.com/dl-alexandre/docdr/internal/backup/executor"
	"github.com/dl-alexandre/docdr/internal/backup/owner"
	"github.com/dl-alexandre/docdr/internal/backup/reconcile"
	"github.com/dl-alexandre/docdr/internal/backup/runmode"
	"github.com/dl-alexandre/docdr/internal/backup/walker"
	"github.com/dl-alexandre/docdr/internal/blobstore"
	"github.com/dl-alexandre/docdr/internal/journal"
	"github.com/dl-alexandre/docdr/internal/layout"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/pool"
	"github.com/dl-alexandre/docdr/internal/source"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"github.com/google/uuid"
)

// Options tune one backup run. Zero values take the defaults.
type Options struct {
	// Style forces the run style; empty lets the markers decide.
	Style  types.RunStyle
	Filter types.Filter
	// Since overrides the incremental cutoff.
	Since                  time.Time
	MaxDaysSinceLastFull   int
	MaxHoursToCompleteFull int

	WalkWorkers        int
	ReconcileWorkers   int
	ExecuteWorkers     int
	ConsolidateWorkers int
	DequeueTimeout     time.Duration
	ActionLimit        int
	StreamThreshold    int64
	SpoolDir           string
}

func (o Options) withDefaults() Options {
	if o.MaxDaysSinceLastFull <= 0 {
		o.MaxDaysSinceLastFull = utils.DefaultMaxDaysSinceLastFull
	}
	if o.MaxHoursToCompleteFull <= 0 {
		o.MaxHoursToCompleteFull = utils.DefaultMaxHoursToCompleteFull
	}
	return o
}

// Report describes a finished run
type Report struct {
	RunID        string               `json:"runId"`
	Style        types.RunStyle       `json:"style"`
	StartedAt    time.Time            `json:"startedAt"`
	FinishedAt   time.Time            `json:"finishedAt"`
	Users        int                  `json:"users"`
	Folders      int                  `json:"folders"`
	Pruned       int                  `json:"pruned"`
	WalkFailures int64                `json:"walkFailures"`
	Activity     *activity.Report     `json:"activity,omitempty"`
	Actions      executor.Summary     `json:"actions"`
	Failed       []types.ActionResult `json:"failed,omitempty"`
	Errors       []string             `json:"errors,omitempty"`
}

// Partial reports whether some of the work did not get done
func (r *Report) Partial() bool {
	if len(r.Failed) > 0 || len(r.Errors) > 0 || r.WalkFailures > 0 {
		return true
	}
	return r.Activity != nil && (r.Activity.Failures > 0 || r.Activity.Truncated > 0)
}

func (r *Report) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

type EngineOption func(*Engine)

func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logging.OrNoOp(l)
	}
}

// WithJournal records every run in db
func WithJournal(db *journal.DB) EngineOption {
	return func(e *Engine) {
		e.journal = db
	}
}

// WithClock replaces time.Now for run markers and reports
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

type Engine struct {
	src     source.Service
	store   blobstore.Store
	layout  layout.Layout
	opts    Options
	logger  logging.Logger
	journal *journal.DB
	now     func() time.Time
}

func NewEngine(src source.Service, store blobstore.Store, lay layout.Layout, opts Options, engineOpts ...EngineOption) *Engine {
	e := &Engine{
		src:    src,
		store:  store,
		layout: lay,
		opts:   opts.withDefaults(),
		logger: logging.NewNoOpLogger(),
		now:    time.Now,
	}
	for _, opt := range engineOpts {
		opt(e)
	}
	return e
}

// Minder returns a run-mode minder over the engine's store
func (e *Engine) Minder() *runmode.Minder {
	return runmode.New(e.store, e.layout, runmode.WithClock(e.now), runmode.WithLogger(e.logger))
}

// Run performs one backup. The error is set only when the run could not
// proceed; failures of single items are listed in the report.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), StartedAt: e.now().UTC()}
	logger := e.logger.WithTraceID(report.RunID)
	ctx = logging.ContextWithTraceID(ctx, report.RunID)

	e.journalStart(ctx, report)
	err := e.run(ctx, logger, report)
	report.FinishedAt = e.now().UTC()
	e.journalFinish(ctx, report, err)

	if err != nil {
		return report, err
	}
	logger.Info("Backup finished",
		logging.F("style", string(report.Style)),
		logging.F("users", report.Users),
		logging.F("copies", report.Actions.Copies),
		logging.F("deletes", report.Actions.Deletes),
		logging.F("failed", len(report.Failed)),
	)
	for _, f := range report.Failed {
		logger.Warn("Action failed", logging.F("action", f.Action.String()), logging.F("error", f.Error))
	}
	return report, nil
}

func (e *Engine) run(ctx context.Context, logger logging.Logger, report *Report) error {
	if err := e.opts.Filter.Compile(); err != nil {
		return err
	}
	minder := runmode.New(e.store, e.layout, runmode.WithClock(e.now), runmode.WithLogger(logger))

	style := e.opts.Style
	if style == "" {
		var err error
		style, err = minder.Decide(ctx, e.opts.MaxDaysSinceLastFull, e.opts.MaxHoursToCompleteFull)
		if err != nil {
			return fmt.Errorf("decide run style: %w", err)
		}
	}
	report.Style = style
	if style == types.RunStyleAbort {
		logger.Info("A full backup appears to be running, skipping this run")
		return nil
	}

	// a narrowed run does not speak for the whole organisation
	recordMarkers := e.opts.Filter.IsEmpty()
	if recordMarkers {
		if err := minder.RecordEvent(ctx, style, types.RunEventStart, report.StartedAt, nil); err != nil {
			return err
		}
	}

	users, err := e.src.ListUsers(ctx, e.opts.Filter, false)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	report.Users = len(users)

	exec := executor.New(e.src, e.store, e.layout,
		executor.WithLogger(logger),
		executor.WithStreamThreshold(e.opts.StreamThreshold),
		executor.WithSpoolDir(e.opts.SpoolDir),
	)

	switch style {
	case types.RunStyleFull:
		for _, user := range users {
			e.backupUser(ctx, logger, exec, user, report)
		}
	case types.RunStyleIncremental:
		if err := e.incremental(ctx, logger, exec, minder, users, report); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported run style %q", style)
	}

	report.Actions = exec.Summary()
	report.Failed = exec.Failed()

	if recordMarkers {
		extra := map[string]any{
			"runId":   report.RunID,
			"users":   report.Users,
			"copies":  report.Actions.Copies,
			"deletes": report.Actions.Deletes,
			"failed":  len(report.Failed),
		}
		if err := minder.RecordEvent(ctx, style, types.RunEventEnd, e.now(), extra); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) incremental(ctx context.Context, logger logging.Logger, exec *executor.Executor, minder *runmode.Minder, users []types.User, report *Report) error {
	since := e.opts.Since
	if since.IsZero() {
		var err error
		since, err = minder.IncrementalCutoff(ctx)
		if err != nil {
			return fmt.Errorf("incremental cutoff: %w", err)
		}
	}

	owners := owner.New(e.src, users)
	reconciler := reconcile.New(e.src, e.store, e.layout, logger)
	consolidator := activity.New(e.src, owners, reconciler,
		activity.WithWorkers(e.opts.ConsolidateWorkers),
		activity.WithLimit(e.opts.ActionLimit),
		activity.WithDequeueTimeout(e.opts.DequeueTimeout),
		activity.WithLogger(logger),
	)

	actions := pool.NewQueue[types.Action]()
	stage := exec.NewStage(actions, e.opts.ExecuteWorkers, e.opts.DequeueTimeout)
	stage.Start(ctx)
	activityReport, err := consolidator.Consolidate(ctx, since, actions)
	stage.Finish()
	if err != nil {
		return err
	}
	report.Activity = &activityReport
	return nil
}

// backupUser walks one user tree through the reconcile and execute stages,
// then prunes the folders the walk no longer saw.
func (e *Engine) backupUser(ctx context.Context, logger logging.Logger, exec *executor.Executor, user types.User, report *Report) {
	ctx = source.WithSubject(ctx, user.Email)
	logger.Info("Backing up user", logging.F("user", user.Username))

	if _, err := exec.UpdateUserInfo(ctx, user); err != nil {
		report.addError("user info of %s: %v", user.Username, err)
	}

	roots, err := e.roots(ctx, user)
	if err != nil {
		report.addError("roots of %s: %v", user.Username, err)
		return
	}

	snapshots := pool.NewQueue[types.FolderSnapshot]()
	actions := pool.NewQueue[types.Action]()
	w := walker.New(e.src, snapshots,
		walker.WithWorkers(e.opts.WalkWorkers),
		walker.WithDequeueTimeout(e.opts.DequeueTimeout),
		walker.WithLogger(logger),
	)
	reconciler := reconcile.New(e.src, e.store, e.layout, logger)
	plan := reconcile.NewStage(reconciler, user.Username, snapshots, actions, e.opts.ReconcileWorkers, e.opts.DequeueTimeout)
	execute := exec.NewStage(actions, e.opts.ExecuteWorkers, e.opts.DequeueTimeout)

	execute.Start(ctx)
	plan.Start(ctx)
	complete := true
	for _, root := range roots {
		if err := w.StartWalk(ctx, root); err != nil {
			report.addError("walk of %s: %v", user.Username, err)
			complete = false
		}
	}
	w.FinishWalk()
	plan.Finish()
	execute.Finish()

	walkFailures := w.Stats().Failed + plan.Stats().Failed
	report.WalkFailures += walkFailures
	report.Folders += len(w.Visited())

	if !complete || walkFailures > 0 || e.opts.Filter.HasFolderFilter() {
		logger.Debug("Skipping prune", logging.F("user", user.Username))
		return
	}
	keep := w.Visited()
	for id := range w.Empty() {
		delete(keep, id)
	}
	pruned, err := e.prune(ctx, exec, user.Username, keep)
	report.Pruned += pruned
	if err != nil {
		report.addError("prune of %s: %v", user.Username, err)
	}
}

// roots returns the folders a walk of user starts from: the user root, or
// the top-level folders the filter selects
func (e *Engine) roots(ctx context.Context, user types.User) ([]string, error) {
	if !e.opts.Filter.HasFolderFilter() {
		return []string{user.RootFolderID}, nil
	}
	contents, err := e.src.ListFolder(ctx, user.RootFolderID)
	if err != nil {
		return nil, err
	}
	var roots []string
	for _, f := range contents.Folders {
		if e.opts.Filter.MatchesFolder(f.Name) {
			roots = append(roots, f.ID)
		}
	}
	return roots, nil
}

// prune removes the stored folders of username that are not in keep
func (e *Engine) prune(ctx context.Context, exec *executor.Executor, username string, keep map[string]bool) (int, error) {
	folders, err := e.store.ListPrefixes(ctx, e.layout.UserPrefix(username))
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, id := range folders {
		if keep[id] {
			continue
		}
		if err := exec.Execute(ctx, types.RemoveFolderAction(username, id)); err == nil {
			pruned++
		}
	}
	return pruned, nil
}

func (e *Engine) journalStart(ctx context.Context, report *Report) {
	if e.journal == nil {
		return
	}
	filter, _ := json.Marshal(e.opts.Filter)
	if e.opts.Filter.IsEmpty() {
		filter = nil
	}
	err := e.journal.StartRun(ctx, journal.Run{
		ID:             report.RunID,
		Kind:           "backup",
		Style:          string(e.opts.Style),
		OrganizationID: e.layout.OrganizationID(),
		Filter:         string(filter),
		StartedAt:      report.StartedAt,
	})
	if err != nil {
		e.logger.Warn("Cannot journal run start", logging.F("error", err.Error()))
	}
}

func (e *Engine) journalFinish(ctx context.Context, report *Report, runErr error) {
	if e.journal == nil {
		return
	}
	status := journal.StatusOK
	errText := ""
	switch {
	case runErr != nil:
		status = journal.StatusFailed
		errText = runErr.Error()
	case report.Style == types.RunStyleAbort:
		status = journal.StatusSkipped
	case report.Partial():
		status = journal.StatusPartial
	}
	summary, _ := json.Marshal(report)

	// the run context may be cancelled already
	ctx = context.WithoutCancel(ctx)
	if err := e.journal.FinishRun(ctx, report.RunID, string(report.Style), status, string(summary), errText, report.FinishedAt); err != nil {
		e.logger.Warn("Cannot journal run end", logging.F("error", err.Error()))
	}

	failures := make([]journal.Failure, 0, len(report.Failed))
	for _, f := range report.Failed {
		failures = append(failures, journal.Failure{
			RunID:      report.RunID,
			ActionKind: string(f.Action.Kind),
			Username:   f.Action.Username,
			FolderID:   f.Action.FolderID,
			DocumentID: f.Action.DocumentID,
			Error:      f.Error,
		})
	}
	if err := e.journal.RecordFailures(ctx, report.RunID, failures); err != nil {
		e.logger.Warn("Cannot journal failures", logging.F("error", err.Error()))
	}
}
