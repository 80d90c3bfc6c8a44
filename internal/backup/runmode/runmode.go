// Package runmode keeps the start and end markers of backup runs in the blob
// store and decides which kind of run comes next.
package runmode

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dl-alexandre/docdr/internal/blobstore"
	"github.com/dl-alexandre/docdr/internal/layout"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/metadata"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"gopkg.in/yaml.v3"
)

const recordContentType = "application/x-yaml"

type mark struct {
	style types.RunStyle
	event types.RunEvent
}

var marks = []mark{
	{types.RunStyleFull, types.RunEventStart},
	{types.RunStyleFull, types.RunEventEnd},
	{types.RunStyleIncremental, types.RunEventStart},
	{types.RunStyleIncremental, types.RunEventEnd},
}

type Option func(*Minder)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Minder) {
		m.now = now
	}
}

func WithLogger(l logging.Logger) Option {
	return func(m *Minder) {
		m.logger = logging.OrNoOp(l)
	}
}

// Minder reads and writes run markers. A missing marker reads as the zero
// time.
type Minder struct {
	store  blobstore.Store
	layout layout.Layout
	now    func() time.Time
	logger logging.Logger

	mu      sync.Mutex
	loaded  bool
	last    map[mark]time.Time
	current *types.RunRecord
}

func New(store blobstore.Store, lay layout.Layout, opts ...Option) *Minder {
	m := &Minder{
		store:  store,
		layout: lay,
		now:    time.Now,
		logger: logging.NewNoOpLogger(),
		last:   make(map[mark]time.Time, len(marks)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads every marker once. Later calls are no-ops.
func (m *Minder) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}
	for _, mk := range marks {
		start, err := m.readStart(ctx, mk)
		if err != nil {
			return err
		}
		m.last[mk] = start
	}
	m.loaded = true
	return nil
}

func (m *Minder) readStart(ctx context.Context, mk mark) (time.Time, error) {
	key := m.layout.RunRecordKey(mk.event, mk.style)
	obj, ok, err := blobstore.HeadIfExists(ctx, m.store, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("read run marker %s: %w", key, err)
	}
	if !ok {
		return time.Time{}, nil
	}
	rec, err := metadata.Decode(obj.Metadata)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode run marker %s: %w", key, err)
	}
	start, ok := rec.Time(metadata.KeyStartTime)
	if !ok {
		m.logger.Warn("Run marker without start time", logging.F("key", key))
		return time.Time{}, nil
	}
	return start, nil
}

// Timestamp returns the start time carried by a marker. END markers carry
// the start of the run that completed. Load must have been called.
func (m *Minder) Timestamp(style types.RunStyle, event types.RunEvent) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[mark{style, event}]
}

// Decide picks the next run style. A full run is due when none completed
// within maxDaysSinceLastFull days; it is skipped with ABORT when one started
// less than maxHoursToCompleteFull hours ago and may still be going.
func (m *Minder) Decide(ctx context.Context, maxDaysSinceLastFull, maxHoursToCompleteFull int) (types.RunStyle, error) {
	if err := m.Load(ctx); err != nil {
		return "", err
	}
	now := m.now()
	fullDue := now.Add(-time.Duration(maxDaysSinceLastFull) * 24 * time.Hour)
	stillRunning := now.Add(-time.Duration(maxHoursToCompleteFull) * time.Hour)

	lastFullEnd := m.Timestamp(types.RunStyleFull, types.RunEventEnd)
	lastFullStart := m.Timestamp(types.RunStyleFull, types.RunEventStart)

	style := types.RunStyleIncremental
	if lastFullEnd.Before(fullDue) {
		style = types.RunStyleFull
		if lastFullStart.After(stillRunning) {
			style = types.RunStyleAbort
		}
	}
	m.logger.Debug("Decided run style",
		logging.F("style", string(style)),
		logging.F("lastFullStart", lastFullStart.Format(time.RFC3339)),
		logging.F("lastFullEnd", lastFullEnd.Format(time.RFC3339)),
	)
	return style, nil
}

// IncrementalCutoff returns where the activity feed should be read from: the
// start of the latest completed run of either style, less a margin for
// events the source registers late. With no completed run it is the zero
// time.
func (m *Minder) IncrementalCutoff(ctx context.Context) (time.Time, error) {
	if err := m.Load(ctx); err != nil {
		return time.Time{}, err
	}
	last := m.Timestamp(types.RunStyleIncremental, types.RunEventEnd)
	if full := m.Timestamp(types.RunStyleFull, types.RunEventEnd); full.After(last) {
		last = full
	}
	if last.IsZero() {
		return last, nil
	}
	return last.Add(-utils.IncrementalOverlap), nil
}

// RecordEvent writes the marker of a run event. The first event recorded
// fixes the run's style and start time; at defaults to now.
func (m *Minder) RecordEvent(ctx context.Context, style types.RunStyle, event types.RunEvent, at time.Time, extra map[string]any) error {
	if at.IsZero() {
		at = m.now()
	}
	at = at.UTC()

	m.mu.Lock()
	if m.current == nil {
		m.current = &types.RunRecord{Style: style, StartTime: at}
	}
	run := *m.current
	m.mu.Unlock()

	run.Event = event
	run.Extra = extra
	rec := metadata.Record{
		metadata.KeyRunStyle:  string(run.Style),
		metadata.KeyStartTime: run.StartTime,
	}
	if event == types.RunEventEnd {
		run.EndTime = at
		rec[metadata.KeyEndTime] = at
	}

	body, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	md, err := metadata.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	key := m.layout.RunRecordKey(event, style)
	if err := m.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), recordContentType, md); err != nil {
		return fmt.Errorf("write run marker %s: %w", key, err)
	}

	m.mu.Lock()
	m.last[mark{style, event}] = run.StartTime
	m.mu.Unlock()
	m.logger.Info("Recorded run event",
		logging.F("style", string(style)),
		logging.F("event", string(event)),
		logging.F("start", run.StartTime.Format(time.RFC3339)),
	)
	return nil
}
