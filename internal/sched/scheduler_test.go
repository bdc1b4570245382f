package sched

import (
	"context"
	"testing"
)

type fakeDispatcher struct {
	deadlines int
	overdue   int
	summaries int
}

func (f *fakeDispatcher) CheckDeadlines(context.Context) error      { f.deadlines++; return nil }
func (f *fakeDispatcher) CheckOverdueRequests(context.Context) error { f.overdue++; return nil }
func (f *fakeDispatcher) SendDailySummary(context.Context) error    { f.summaries++; return nil }

func TestSchedulerRegistersJobs(t *testing.T) {
	s := New(&fakeDispatcher{})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if got := len(s.cron.Entries()); got != 3 {
		t.Errorf("registered %d jobs, want 3", got)
	}
}
