// Package sched runs the periodic notification sweeps.
package sched

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Dispatcher is the subset of the notification service the scheduler drives.
type Dispatcher interface {
	CheckDeadlines(ctx context.Context) error
	CheckOverdueRequests(ctx context.Context) error
	SendDailySummary(ctx context.Context) error
}

// Scheduler owns the three recurring jobs: the hourly deadline sweep, the
// half-hourly overdue sweep and the weekday-morning summary.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher Dispatcher
}

func New(dispatcher Dispatcher) *Scheduler {
	return &Scheduler{cron: cron.New(), dispatcher: dispatcher}
}

// Start registers the jobs and begins the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		run  func(ctx context.Context) error
	}{
		{"0 * * * *", "deadline sweep", s.dispatcher.CheckDeadlines},
		{"*/30 * * * *", "overdue sweep", s.dispatcher.CheckOverdueRequests},
		{"0 9 * * 1-5", "daily summary", s.dispatcher.SendDailySummary},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() {
			if err := job.run(context.Background()); err != nil {
				log.Printf("sched: %s failed: %v", job.name, err)
			}
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	log.Printf("sched: scheduler started with %d jobs", len(jobs))
	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("sched: scheduler stopped")
}
