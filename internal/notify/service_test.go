package notify

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"ndtdesk/api/internal/push"
	"ndtdesk/api/internal/store"
)

type fakeStore struct {
	deadlineCandidates func(daysAhead int, reminderType string) ([]store.ReminderCandidate, error)
	overdueCandidates  func() ([]store.ReminderCandidate, error)
	subscriptions      func(userIDs []string) ([]store.PushSubscription, error)
	settings           func(username string) (store.NotificationSettings, error)
	roleEmails         func(roles []string) ([]string, error)
	executorEmail      func(name string) (string, error)
	dailyStats         func(topN int) (store.DailyStats, error)

	reminders   []store.Reminder
	logEntries  []store.NotificationLogEntry
	deactivated []string
}

func (f *fakeStore) DeadlineCandidates(_ context.Context, daysAhead int, reminderType string) ([]store.ReminderCandidate, error) {
	if f.deadlineCandidates != nil {
		return f.deadlineCandidates(daysAhead, reminderType)
	}
	return nil, nil
}

func (f *fakeStore) OverdueCandidates(_ context.Context) ([]store.ReminderCandidate, error) {
	if f.overdueCandidates != nil {
		return f.overdueCandidates()
	}
	return nil, nil
}

func (f *fakeStore) RecordReminder(_ context.Context, requestID int64, reminderType, text string) error {
	f.reminders = append(f.reminders, store.Reminder{RequestID: requestID, Type: reminderType, Text: text})
	return nil
}

func (f *fakeStore) ActivePushSubscriptions(_ context.Context, userIDs []string) ([]store.PushSubscription, error) {
	if f.subscriptions != nil {
		return f.subscriptions(userIDs)
	}
	return nil, nil
}

func (f *fakeStore) DeactivatePushSubscription(_ context.Context, userID string) error {
	f.deactivated = append(f.deactivated, userID)
	return nil
}

func (f *fakeStore) GetSettings(_ context.Context, username string) (store.NotificationSettings, error) {
	if f.settings != nil {
		return f.settings(username)
	}
	return store.NotificationSettings{
		Username: username, EmailEnabled: true, PushEnabled: true,
		NotifyNewRequest: true, NotifyStatusChange: true, NotifyDeadline: true,
		NotifyOverdue: true, NotifyDailySummary: true,
	}, nil
}

func (f *fakeStore) RoleEmails(_ context.Context, roles []string) ([]string, error) {
	if f.roleEmails != nil {
		return f.roleEmails(roles)
	}
	return nil, nil
}

func (f *fakeStore) ExecutorEmail(_ context.Context, name string) (string, error) {
	if f.executorEmail != nil {
		return f.executorEmail(name)
	}
	return "", nil
}

func (f *fakeStore) RecordNotification(_ context.Context, entry store.NotificationLogEntry) error {
	f.logEntries = append(f.logEntries, entry)
	return nil
}

func (f *fakeStore) DailyStats(_ context.Context, topN int) (store.DailyStats, error) {
	if f.dailyStats != nil {
		return f.dailyStats(topN)
	}
	return store.DailyStats{}, nil
}

type sentMail struct {
	to      []string
	subject string
}

type fakeMailer struct {
	configured bool
	fail       map[string]bool
	sent       []sentMail
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func (f *fakeMailer) SendEmail(to []string, subject, body string) error {
	return f.send(to, subject)
}

func (f *fakeMailer) SendHTMLEmail(to []string, subject, htmlBody string) error {
	return f.send(to, subject)
}

func (f *fakeMailer) send(to []string, subject string) error {
	for _, addr := range to {
		if f.fail[addr] {
			return fmt.Errorf("smtp refused %s", addr)
		}
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject})
	return nil
}

type fakePusher struct {
	configured bool
	failWith   error
	payloads   []push.Payload
}

func (f *fakePusher) IsConfigured() bool { return f.configured }

func (f *fakePusher) Send(subscription string, payload push.Payload) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func newTestService(st *fakeStore, mailer *fakeMailer, pusher *fakePusher) *Service {
	return NewService(Config{AppName: "NDT Desk", AppURL: "http://app.local"}, st, mailer, pusher)
}

func strptr(s string) *string { return &s }

func TestInQuietHours(t *testing.T) {
	at := func(clock string) time.Time {
		parsed, err := time.Parse("15:04", clock)
		if err != nil {
			t.Fatalf("parse %s: %v", clock, err)
		}
		return parsed
	}

	cases := []struct {
		name       string
		start, end *string
		now        string
		want       bool
	}{
		{"no window", nil, nil, "12:00", false},
		{"inside", strptr("22:00"), strptr("07:00"), "23:30", true},
		{"inside after midnight", strptr("22:00"), strptr("07:00"), "03:00", true},
		{"outside", strptr("22:00"), strptr("07:00"), "12:00", false},
		{"non wrapping inside", strptr("12:00"), strptr("14:00"), "13:00", true},
		{"non wrapping outside", strptr("12:00"), strptr("14:00"), "15:00", false},
		{"degenerate window", strptr("10:00"), strptr("10:00"), "10:00", false},
		{"malformed start", strptr("late"), strptr("07:00"), "23:00", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			settings := store.NotificationSettings{QuietHoursStart: tc.start, QuietHoursEnd: tc.end}
			if got := inQuietHours(settings, at(tc.now)); got != tc.want {
				t.Errorf("inQuietHours(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestQuietHoursSpareCriticalPush(t *testing.T) {
	quiet := store.NotificationSettings{
		PushEnabled: true, NotifyNewRequest: true, NotifyOverdue: true,
		QuietHoursStart: strptr("22:00"), QuietHoursEnd: strptr("07:00"),
	}
	deadline := time.Now().AddDate(0, 0, -3)
	st := &fakeStore{
		subscriptions: func([]string) ([]store.PushSubscription, error) {
			return []store.PushSubscription{{UserID: "ivanov", Subscription: "{}", IsActive: true}}, nil
		},
		settings: func(username string) (store.NotificationSettings, error) {
			s := quiet
			s.Username = username
			return s, nil
		},
		overdueCandidates: func() ([]store.ReminderCandidate, error) {
			return []store.ReminderCandidate{{
				ID: 9, RequestNumber: "REQ-000009", Deadline: &deadline, DaysOverdue: 3.2,
			}}, nil
		},
	}
	pusher := &fakePusher{configured: true}
	svc := newTestService(st, &fakeMailer{}, pusher)
	svc.now = func() time.Time {
		return time.Date(2026, 1, 10, 23, 30, 0, 0, time.UTC)
	}

	// A routine push is silenced inside the quiet window.
	row := store.RequestRow{Request: store.Request{ID: 9, RequestNumber: "REQ-000009"}}
	svc.NotifyCreated(context.Background(), row)
	if len(pusher.payloads) != 0 {
		t.Fatalf("routine push should be silenced, got %d", len(pusher.payloads))
	}

	// The overdue escalation requires interaction and goes through anyway.
	if err := svc.CheckOverdueRequests(context.Background()); err != nil {
		t.Fatalf("CheckOverdueRequests: %v", err)
	}
	if len(pusher.payloads) != 1 {
		t.Fatalf("critical push should bypass quiet hours, got %d", len(pusher.payloads))
	}
	if !pusher.payloads[0].RequireInteraction {
		t.Error("overdue push should require interaction")
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"a@x", "", "b@x", "a@x"})
	if len(got) != 2 || got[0] != "a@x" || got[1] != "b@x" {
		t.Errorf("dedupe = %v", got)
	}
}

func TestCheckOverdueFloorsDaysAndRecordsReminder(t *testing.T) {
	deadline := time.Now().AddDate(0, 0, -6)
	st := &fakeStore{
		overdueCandidates: func() ([]store.ReminderCandidate, error) {
			return []store.ReminderCandidate{{
				ID: 7, RequestNumber: "REQ-000007", ExecutorEmail: "ivanov@x",
				Deadline: &deadline, DaysOverdue: 5.8,
			}}, nil
		},
	}
	mailer := &fakeMailer{configured: true}
	pusher := &fakePusher{configured: true}
	svc := newTestService(st, mailer, pusher)

	st.subscriptions = func([]string) ([]store.PushSubscription, error) {
		return []store.PushSubscription{{UserID: "ivanov", Subscription: "{}", IsActive: true}}, nil
	}

	if err := svc.CheckOverdueRequests(context.Background()); err != nil {
		t.Fatalf("CheckOverdueRequests: %v", err)
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailer.sent))
	}
	if want := "Request REQ-000007 is 5 day(s) overdue"; mailer.sent[0].subject != want {
		t.Errorf("subject = %q, want %q", mailer.sent[0].subject, want)
	}

	if len(pusher.payloads) != 1 {
		t.Fatalf("expected 1 push, got %d", len(pusher.payloads))
	}
	if pusher.payloads[0].Tag != "deadline-7" {
		t.Errorf("push tag = %q", pusher.payloads[0].Tag)
	}
	if !pusher.payloads[0].RequireInteraction {
		t.Error("overdue push should require interaction")
	}

	if len(st.reminders) != 1 || st.reminders[0].Type != TypeOverdue || st.reminders[0].RequestID != 7 {
		t.Errorf("reminders = %+v", st.reminders)
	}
	if len(st.logEntries) != 1 || st.logEntries[0].Type != TypeOverdue {
		t.Fatalf("log entries = %+v", st.logEntries)
	}
	if st.logEntries[0].EmailSent != 1 || st.logEntries[0].PushSent != 1 {
		t.Errorf("log counts = %+v", st.logEntries[0])
	}
}

func TestCheckDeadlinesSweepsBothWindows(t *testing.T) {
	var seen []string
	st := &fakeStore{
		deadlineCandidates: func(daysAhead int, reminderType string) ([]store.ReminderCandidate, error) {
			seen = append(seen, fmt.Sprintf("%d:%s", daysAhead, reminderType))
			return nil, nil
		},
	}
	svc := newTestService(st, &fakeMailer{}, &fakePusher{})

	if err := svc.CheckDeadlines(context.Background()); err != nil {
		t.Fatalf("CheckDeadlines: %v", err)
	}
	if len(seen) != 2 || seen[0] != "1:deadline_tomorrow" || seen[1] != "3:deadline_3days" {
		t.Errorf("sweeps = %v", seen)
	}
}

func TestStatusChangeEscalation(t *testing.T) {
	st := &fakeStore{
		subscriptions: func([]string) ([]store.PushSubscription, error) {
			return []store.PushSubscription{{UserID: "u1", Subscription: "{}", IsActive: true}}, nil
		},
	}
	pusher := &fakePusher{configured: true}
	svc := newTestService(st, &fakeMailer{}, pusher)

	row := store.RequestRow{Request: store.Request{ID: 3, RequestNumber: "REQ-000003"}}
	svc.NotifyStatusChanged(context.Background(), row,
		store.Status{Code: "testing", Name: "Testing"},
		store.Status{Code: "correction_required", Name: "Correction required"})

	if len(pusher.payloads) != 1 {
		t.Fatalf("expected 1 push, got %d", len(pusher.payloads))
	}
	if !pusher.payloads[0].RequireInteraction {
		t.Error("escalated status should require interaction")
	}
	if pusher.payloads[0].Tag != "status-3" {
		t.Errorf("tag = %q", pusher.payloads[0].Tag)
	}

	pusher.payloads = nil
	svc.NotifyStatusChanged(context.Background(), row,
		store.Status{Code: "new", Name: "New"},
		store.Status{Code: "in_progress", Name: "In progress"})
	if len(pusher.payloads) != 1 || pusher.payloads[0].RequireInteraction {
		t.Errorf("routine transition should not require interaction: %+v", pusher.payloads)
	}
}

func TestPushRespectsSettingsAndDropsGoneSubscriptions(t *testing.T) {
	st := &fakeStore{
		subscriptions: func([]string) ([]store.PushSubscription, error) {
			return []store.PushSubscription{
				{UserID: "on", Subscription: "{}", IsActive: true},
				{UserID: "off", Subscription: "{}", IsActive: true},
			}, nil
		},
		settings: func(username string) (store.NotificationSettings, error) {
			s := store.NotificationSettings{Username: username, PushEnabled: true, NotifyNewRequest: true}
			if username == "off" {
				s.PushEnabled = false
			}
			return s, nil
		},
	}
	pusher := &fakePusher{configured: true}
	svc := newTestService(st, &fakeMailer{}, pusher)

	sent := svc.sendPush(context.Background(), push.NewPayload("t", "b"),
		func(s store.NotificationSettings) bool { return s.NotifyNewRequest })
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}

	pusher.failWith = push.ErrSubscriptionGone
	_ = svc.sendPush(context.Background(), push.NewPayload("t", "b"),
		func(s store.NotificationSettings) bool { return s.NotifyNewRequest })
	if len(st.deactivated) != 1 || st.deactivated[0] != "on" {
		t.Errorf("deactivated = %v", st.deactivated)
	}
}

func TestBroadcastCountsSentAndTotal(t *testing.T) {
	st := &fakeStore{
		roleEmails: func(roles []string) ([]string, error) {
			return []string{"a@x", "b@x", "c@x"}, nil
		},
	}
	mailer := &fakeMailer{configured: true, fail: map[string]bool{"b@x": true}}
	svc := newTestService(st, mailer, &fakePusher{})

	sent, total, err := svc.Broadcast(context.Background(), "Maintenance", "Down at noon", Recipients{All: true})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if sent != 2 || total != 3 {
		t.Errorf("sent=%d total=%d, want 2/3", sent, total)
	}
	if len(st.logEntries) != 1 || st.logEntries[0].Type != TypeBroadcast || st.logEntries[0].EmailSent != 2 {
		t.Errorf("log = %+v", st.logEntries)
	}
}

func TestBroadcastRequiresRecipients(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeMailer{configured: true}, &fakePusher{})
	if _, _, err := svc.Broadcast(context.Background(), "s", "m", Recipients{}); err == nil {
		t.Error("expected error for empty recipients")
	}
}

func TestSendTestNotificationUnknownRecipient(t *testing.T) {
	st := &fakeStore{
		executorEmail: func(name string) (string, error) {
			return "", sql.ErrNoRows
		},
	}
	svc := newTestService(st, &fakeMailer{configured: true}, &fakePusher{})
	if _, _, err := svc.SendTestNotification(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unknown recipient")
	}
}
