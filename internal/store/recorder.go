package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/automation-stack/ctrace/internal/aggregate"
	"github.com/automation-stack/ctrace/internal/procmeta"
)

// Recorder saves the final report of one run.
type Recorder struct {
	ctx    context.Context
	store  *SQLiteStore
	run    Run
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder for run. The run's start time is set now
// when zero.
func NewRecorder(ctx context.Context, store *SQLiteStore, run Run, logger *zap.Logger) *Recorder {
	r := &Recorder{ctx: ctx, store: store, run: run, logger: logger, now: time.Now}
	if r.run.StartedAt.IsZero() {
		r.run.StartedAt = r.now()
	}
	return r
}

// HandleReport stores the report.
func (r *Recorder) HandleReport(report *aggregate.Report, procs []procmeta.Process) error {
	r.run.EndedAt = r.now()

	id, err := r.store.SaveRun(r.ctx, r.run, report, procs)
	if err != nil {
		return err
	}
	r.run.ID = id
	r.logger.Debug("run saved", zap.String("run_id", id), zap.Int("rows", len(report.Rows)))
	return nil
}

// RunID returns the ID of the saved run, empty before HandleReport.
func (r *Recorder) RunID() string {
	return r.run.ID
}
