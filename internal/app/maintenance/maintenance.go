// Package maintenance runs the nightly housekeeping job: expired sessions are
// pruned and the vector indexes rebuilt.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/halogen-labs/halogen/pkg/logger"
)

// jobTimeout bounds one maintenance run. REINDEX on the vector indexes can
// take minutes on large profile tables.
const jobTimeout = 30 * time.Minute

// SessionPruner deletes sessions past their expiry.
type SessionPruner interface {
	PruneExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Reindexer rebuilds the embedding indexes. The in-memory store has none, so
// the field is optional.
type Reindexer interface {
	ReindexEmbeddings(ctx context.Context) error
}

// Job is the scheduled maintenance task.
type Job struct {
	sessions  SessionPruner
	reindexer Reindexer
	cron      *cron.Cron
	log       *logger.Logger
}

// NewJob creates the maintenance job. reindexer may be nil.
func NewJob(sessions SessionPruner, reindexer Reindexer, log *logger.Logger) *Job {
	return &Job{
		sessions:  sessions,
		reindexer: reindexer,
		cron:      cron.New(),
		log:       log,
	}
}

// Start schedules the job with the given cron expression and starts the
// scheduler. An empty schedule disables the job.
func (j *Job) Start(schedule string) error {
	if schedule == "" {
		j.log.Infof("maintenance job disabled")
		return nil
	}
	if _, err := j.cron.AddFunc(schedule, j.runScheduled); err != nil {
		return err
	}
	j.cron.Start()
	j.log.WithField("schedule", schedule).Infof("maintenance job scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (j *Job) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Job) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := j.Run(ctx); err != nil {
		j.log.WithError(err).Errorf("maintenance run failed")
	}
}

// Run executes one maintenance pass.
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	pruned, err := j.sessions.PruneExpiredSessions(ctx, time.Now())
	if err != nil {
		return err
	}

	if j.reindexer != nil {
		if err := j.reindexer.ReindexEmbeddings(ctx); err != nil {
			return err
		}
	}

	j.log.WithField("pruned_sessions", pruned).
		WithField("duration", time.Since(start).String()).
		Infof("maintenance run complete")
	return nil
}
