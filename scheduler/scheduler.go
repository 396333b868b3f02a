// Package scheduler runs recurring background jobs on cron expressions.
package scheduler

import (
	"context"
	"time"

	"wayfarer/logger"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a unit of scheduled work. Its error is logged, never retried.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	log     *logrus.Entry
}

// New builds a scheduler whose jobs never overlap with themselves: a run
// that fires while the previous one is still going is skipped.
func New(timeout time.Duration) *Scheduler {
	log := logger.Log.WithField("component", "scheduler")
	cl := cronLogger{log}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		timeout: timeout,
		log:     log,
	}
}

// Add registers job under name on the standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, job Job) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, s.wrap(name, job))
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		s.log.WithField("job", name).Info("Job started")
		if err := job(ctx); err != nil {
			s.log.WithError(err).WithField("job", name).Error("Job failed")
			return
		}
		s.log.WithField("job", name).WithField("took", time.Since(start).String()).Info("Job finished")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.WithField("next", e.Next).Info("Job scheduled")
	}
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
