package restore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dl-alexandre/docdr/internal/blobstore"
	"github.com/dl-alexandre/docdr/internal/journal"
	"github.com/dl-alexandre/docdr/internal/layout"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/metadata"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/google/uuid"
)

// Request says what to restore and where
type Request struct {
	Target string
	Filter types.Filter
	// DryRun plans and previews without writing anything locally
	DryRun bool
}

// Report describes a finished restore
type Report struct {
	RunID      string            `json:"runId"`
	Target     string            `json:"target"`
	DryRun     bool              `json:"dryRun,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Users      []*Result         `json:"users"`
	Previews   map[string]string `json:"-"`
	Errors     []string          `json:"errors,omitempty"`
}

// Partial reports whether some of the restore did not get done
func (r *Report) Partial() bool {
	if len(r.Errors) > 0 {
		return true
	}
	for _, u := range r.Users {
		if len(u.Failed) > 0 || len(u.FolderErrors) > 0 {
			return true
		}
	}
	return false
}

type EngineOption func(*Engine)

func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logging.OrNoOp(l)
	}
}

func WithJournal(db *journal.DB) EngineOption {
	return func(e *Engine) {
		e.journal = db
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine restores the users found in the blob store
type Engine struct {
	store   blobstore.Store
	layout  layout.Layout
	opts    Options
	logger  logging.Logger
	journal *journal.DB
	now     func() time.Time
}

func NewEngine(store blobstore.Store, lay layout.Layout, opts Options, engineOpts ...EngineOption) *Engine {
	e := &Engine{
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

// Run restores every stored user the filter selects. With more than one
// user each one gets its own directory under the target.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Target:    req.Target,
		DryRun:    req.DryRun,
		StartedAt: e.now().UTC(),
		Previews:  make(map[string]string),
	}
	logger := e.logger.WithTraceID(report.RunID)
	ctx = logging.ContextWithTraceID(ctx, report.RunID)

	e.journalStart(ctx, report, req.Filter)
	err := e.run(ctx, logger, req, report)
	report.FinishedAt = e.now().UTC()
	e.journalFinish(ctx, report, err)
	return report, err
}

func (e *Engine) run(ctx context.Context, logger logging.Logger, req Request, report *Report) error {
	if req.Target == "" {
		return fmt.Errorf("restore target is required")
	}
	if err := req.Filter.Compile(); err != nil {
		return err
	}
	users, err := e.Users(ctx, req.Filter)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		logger.Warn("No stored user matches", logging.F("query", req.Filter.UserQuery))
		return nil
	}

	r := NewReconciler(e.store, e.layout, e.opts, logger)
	for _, user := range users {
		target := req.Target
		if len(users) > 1 {
			target = filepath.Join(req.Target, safeName(user.Username, user.ID))
		}
		plan, err := r.PlanRestore(ctx, user.Username, target)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("plan of %s: %v", user.Username, err))
			continue
		}
		plan.Folders = selectFolders(plan, req.Filter)

		if req.DryRun {
			preview, err := r.Preview(ctx, plan)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("preview of %s: %v", user.Username, err))
				continue
			}
			report.Previews[user.Username] = preview
			report.Users = append(report.Users, &Result{Username: user.Username, Folders: len(plan.Folders)})
			continue
		}

		result, err := r.Restore(ctx, plan)
		report.Users = append(report.Users, result)
		if err != nil {
			return err
		}
	}
	return nil
}

// Users lists the stored users the filter selects, sorted by username
func (e *Engine) Users(ctx context.Context, filter types.Filter) ([]types.User, error) {
	names, err := e.store.ListPrefixes(ctx, e.layout.UsersPrefix())
	if err != nil {
		return nil, fmt.Errorf("list stored users: %w", err)
	}
	var users []types.User
	for _, name := range names {
		user := types.User{Username: name}
		obj, ok, err := blobstore.HeadIfExists(ctx, e.store, e.layout.UserInfoKey(name))
		if err != nil {
			return nil, fmt.Errorf("read user info of %s: %w", name, err)
		}
		if ok {
			if rec, err := metadata.Decode(obj.Metadata); err == nil {
				user.ID, _ = rec.String(metadata.KeyID)
				user.Email, _ = rec.String(metadata.KeyEmail)
				user.RootFolderID, _ = rec.String(metadata.KeyRootFolderID)
			}
		}
		if filter.MatchesUser(user) {
			users = append(users, user)
		}
	}
	return users, nil
}

// selectFolders keeps the folders below a top-level folder the filter
// selects. Lost and found folders cannot be placed and go with them.
func selectFolders(plan *Plan, filter types.Filter) []FolderPlan {
	if !filter.HasFolderFilter() {
		return plan.Folders
	}
	var kept []FolderPlan
	for _, f := range plan.Folders {
		if f.LostAndFound {
			continue
		}
		rel, err := filepath.Rel(plan.Target, f.Path)
		if err != nil || rel == "." {
			continue
		}
		top, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		if filter.MatchesFolder(top) {
			kept = append(kept, f)
		}
	}
	return kept
}

func (e *Engine) journalStart(ctx context.Context, report *Report, filter types.Filter) {
	if e.journal == nil {
		return
	}
	var filterJSON []byte
	if !filter.IsEmpty() {
		filterJSON, _ = json.Marshal(filter)
	}
	err := e.journal.StartRun(ctx, journal.Run{
		ID:             report.RunID,
		Kind:           "restore",
		OrganizationID: e.layout.OrganizationID(),
		Filter:         string(filterJSON),
		StartedAt:      report.StartedAt,
	})
	if err != nil {
		e.logger.Warn("Cannot journal restore start", logging.F("error", err.Error()))
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
	case report.Partial():
		status = journal.StatusPartial
	}
	style := ""
	if report.DryRun {
		style = "DRY-RUN"
	}
	summary, _ := json.Marshal(report)

	ctx = context.WithoutCancel(ctx)
	if err := e.journal.FinishRun(ctx, report.RunID, style, status, string(summary), errText, report.FinishedAt); err != nil {
		e.logger.Warn("Cannot journal restore end", logging.F("error", err.Error()))
	}

	var failures []journal.Failure
	for _, u := range report.Users {
		for _, f := range u.Failed {
			failures = append(failures, journal.Failure{
				RunID:      report.RunID,
				ActionKind: "restore-file",
				Username:   u.Username,
				DocumentID: f.Key,
				Error:      f.Error,
			})
		}
	}
	if len(failures) == 0 {
		return
	}
	if err := e.journal.RecordFailures(ctx, report.RunID, failures); err != nil {
		e.logger.Warn("Cannot journal restore failures", logging.F("error", err.Error()))
	}
}
