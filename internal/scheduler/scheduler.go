// Package scheduler runs FocusPipe's periodic maintenance jobs.
//
// Jobs are registered with cron expressions; participant follow-ups are timed
// by the flow package, not here.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// Option configures a Scheduler.
type Option func(*[]cron.Option)

// WithLocation evaluates cron expressions in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(opts *[]cron.Option) {
		if loc != nil {
			*opts = append(*opts, cron.WithLocation(loc))
		}
	}
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cronOpts := []cron.Option{cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))}
	for _, opt := range opts {
		opt(&cronOpts)
	}
	c := cron.New(cronOpts...)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
