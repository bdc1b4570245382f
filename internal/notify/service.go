// Package notify dispatches email and push notifications for request events,
// scheduled reminders and the daily summary.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"ndtdesk/api/internal/push"
	"ndtdesk/api/internal/store"
)

// Notification types recorded in the dispatch log.
const (
	TypeNewRequest       = "new_request"
	TypeStatusChange     = "status_change"
	TypeDeadlineTomorrow = "deadline_tomorrow"
	TypeDeadline3Days    = "deadline_3days"
	TypeOverdue          = "overdue"
	TypeDailySummary     = "daily_summary"
	TypeTest             = "test"
	TypeBroadcast        = "broadcast"
)

// Statuses that escalate the push notification to require interaction.
var escalatedStatuses = map[string]bool{
	"correction_required": true,
	"cancelled":           true,
}

// Roles that receive escalated notifications.
var escalationRoles = []string{"admin", "manager"}

// Store is the persistence surface the dispatcher needs.
type Store interface {
	DeadlineCandidates(ctx context.Context, daysAhead int, reminderType string) ([]store.ReminderCandidate, error)
	OverdueCandidates(ctx context.Context) ([]store.ReminderCandidate, error)
	RecordReminder(ctx context.Context, requestID int64, reminderType, text string) error
	ActivePushSubscriptions(ctx context.Context, userIDs []string) ([]store.PushSubscription, error)
	DeactivatePushSubscription(ctx context.Context, userID string) error
	GetSettings(ctx context.Context, username string) (store.NotificationSettings, error)
	RoleEmails(ctx context.Context, roles []string) ([]string, error)
	ExecutorEmail(ctx context.Context, name string) (string, error)
	RecordNotification(ctx context.Context, entry store.NotificationLogEntry) error
	DailyStats(ctx context.Context, topN int) (store.DailyStats, error)
}

// Mailer is the email transport.
type Mailer interface {
	IsConfigured() bool
	SendEmail(to []string, subject, body string) error
	SendHTMLEmail(to []string, subject, htmlBody string) error
}

// Pusher is the Web Push transport.
type Pusher interface {
	IsConfigured() bool
	Send(subscription string, payload push.Payload) error
}

// Config carries the display settings the dispatcher embeds in messages.
type Config struct {
	AppName     string
	AppURL      string
	SummaryTopN int
}

type Service struct {
	config Config
	store  Store
	mailer Mailer
	pusher Pusher
	now    func() time.Time
}

func NewService(config Config, st Store, mailer Mailer, pusher Pusher) *Service {
	if config.AppName == "" {
		config.AppName = "NDT Desk"
	}
	if config.SummaryTopN <= 0 {
		config.SummaryTopN = 10
	}
	return &Service{config: config, store: st, mailer: mailer, pusher: pusher, now: time.Now}
}

func (s *Service) requestURL(requestID int64) string {
	return fmt.Sprintf("%s/requests/%d", strings.TrimRight(s.config.AppURL, "/"), requestID)
}

// sendEmails delivers to every recipient independently. A failed recipient is
// logged and skipped; the returned count reflects successful deliveries only.
func (s *Service) sendEmails(recipients []string, subject, html string) int {
	if !s.mailer.IsConfigured() {
		return 0
	}
	sent := 0
	for _, to := range recipients {
		if to == "" {
			continue
		}
		if err := s.mailer.SendHTMLEmail([]string{to}, subject, html); err != nil {
			log.Printf("notify: email to %s failed: %v", to, err)
			continue
		}
		sent++
	}
	return sent
}

// sendPush fans the payload out to the active subscriptions whose owner has
// the event toggle enabled and is outside quiet hours. Payloads that require
// interaction are critical and ignore the quiet window. Expired subscriptions
// are deactivated as they are discovered.
func (s *Service) sendPush(ctx context.Context, payload push.Payload, enabled func(store.NotificationSettings) bool) int {
	if !s.pusher.IsConfigured() {
		return 0
	}
	subscriptions, err := s.store.ActivePushSubscriptions(ctx, nil)
	if err != nil {
		log.Printf("notify: list push subscriptions: %v", err)
		return 0
	}

	sent := 0
	for _, sub := range subscriptions {
		settings, err := s.store.GetSettings(ctx, sub.UserID)
		if err != nil {
			log.Printf("notify: settings for %s: %v", sub.UserID, err)
			continue
		}
		if !settings.PushEnabled || !enabled(settings) {
			continue
		}
		if !payload.RequireInteraction && inQuietHours(settings, s.now()) {
			continue
		}
		if err := s.pusher.Send(sub.Subscription, payload); err != nil {
			if err == push.ErrSubscriptionGone {
				if derr := s.store.DeactivatePushSubscription(ctx, sub.UserID); derr != nil {
					log.Printf("notify: deactivate subscription %s: %v", sub.UserID, derr)
				}
			} else {
				log.Printf("notify: push to %s failed: %v", sub.UserID, err)
			}
			continue
		}
		sent++
	}
	return sent
}

// inQuietHours reports whether now falls inside the user's quiet window.
// The window may wrap midnight; a missing or malformed bound disables it.
func inQuietHours(settings store.NotificationSettings, now time.Time) bool {
	if settings.QuietHoursStart == nil || settings.QuietHoursEnd == nil {
		return false
	}
	start, err := time.Parse("15:04", *settings.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", *settings.QuietHoursEnd)
	if err != nil {
		return false
	}
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	nowMin := now.Hour()*60 + now.Minute()
	if startMin == endMin {
		return false
	}
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	return nowMin >= startMin || nowMin < endMin
}

func (s *Service) adminEmails(ctx context.Context) []string {
	emails, err := s.store.RoleEmails(ctx, escalationRoles)
	if err != nil {
		log.Printf("notify: admin emails: %v", err)
		return nil
	}
	return emails
}

func (s *Service) record(ctx context.Context, notifType string, requestID int64, emailSent, pushSent int) {
	entry := store.NotificationLogEntry{Type: notifType, EmailSent: emailSent, PushSent: pushSent}
	if requestID != 0 {
		entry.RequestID = &requestID
	}
	if err := s.store.RecordNotification(ctx, entry); err != nil {
		log.Printf("notify: record %s: %v", notifType, err)
	}
}

func deadlineString(deadline *time.Time) string {
	if deadline == nil {
		return ""
	}
	return deadline.Format("2006-01-02")
}

// NotifyCreated announces a new request to the assigned executor and the
// admin audience.
func (s *Service) NotifyCreated(ctx context.Context, row store.RequestRow) {
	data := requestEmailData{
		AppName:       s.config.AppName,
		RequestNumber: row.RequestNumber,
		OrderNumber:   row.OrderNumber,
		Drawing:       row.Drawing,
		ControlType:   row.ControlTypeName,
		Executor:      row.ExecutorName,
		Deadline:      deadlineString(row.Deadline),
		RequestURL:    s.requestURL(row.ID),
	}
	html, err := renderTemplate(createdEmailTemplate, data)
	if err != nil {
		log.Printf("notify: render created template: %v", err)
		return
	}

	recipients := append([]string{row.ExecutorEmail}, s.adminEmails(ctx)...)
	emailSent := s.sendEmails(dedupe(recipients), "New testing request "+row.RequestNumber, html)

	payload := push.NewPayload("New testing request", fmt.Sprintf("%s: %s, %s", row.RequestNumber, row.OrderNumber, row.Drawing))
	payload.Tag = fmt.Sprintf("status-%d", row.ID)
	payload.Data = push.PayloadData{RequestID: row.ID, URL: s.requestURL(row.ID)}
	pushSent := s.sendPush(ctx, payload, func(st store.NotificationSettings) bool { return st.NotifyNewRequest })

	s.record(ctx, TypeNewRequest, row.ID, emailSent, pushSent)
}

// NotifyStatusChanged announces a status transition. Escalated target
// statuses make the push sticky.
func (s *Service) NotifyStatusChanged(ctx context.Context, row store.RequestRow, oldStatus, newStatus store.Status) {
	data := requestEmailData{
		AppName:       s.config.AppName,
		RequestNumber: row.RequestNumber,
		OrderNumber:   row.OrderNumber,
		Drawing:       row.Drawing,
		OldStatus:     oldStatus.Name,
		NewStatus:     newStatus.Name,
		RequestURL:    s.requestURL(row.ID),
	}
	html, err := renderTemplate(statusChangeEmailTemplate, data)
	if err != nil {
		log.Printf("notify: render status template: %v", err)
		return
	}

	// The executor always hears about the move; escalated statuses loop in
	// the admin audience as well.
	recipients := []string{row.ExecutorEmail}
	if escalatedStatuses[newStatus.Code] {
		recipients = append(recipients, s.adminEmails(ctx)...)
	}
	subject := fmt.Sprintf("Request %s: %s", row.RequestNumber, newStatus.Name)
	emailSent := s.sendEmails(dedupe(recipients), subject, html)

	payload := push.NewPayload("Status changed", fmt.Sprintf("%s: %s → %s", row.RequestNumber, oldStatus.Name, newStatus.Name))
	payload.Tag = fmt.Sprintf("status-%d", row.ID)
	payload.RequireInteraction = escalatedStatuses[newStatus.Code]
	payload.Data = push.PayloadData{RequestID: row.ID, URL: s.requestURL(row.ID)}
	pushSent := s.sendPush(ctx, payload, func(st store.NotificationSettings) bool { return st.NotifyStatusChange })

	s.record(ctx, TypeStatusChange, row.ID, emailSent, pushSent)
}

// CheckDeadlines runs the hourly sweep: requests due tomorrow and due in
// three days, each deduplicated per day by the reminder table.
func (s *Service) CheckDeadlines(ctx context.Context) error {
	if err := s.sweepDeadline(ctx, 1, TypeDeadlineTomorrow, "due tomorrow", true); err != nil {
		return err
	}
	return s.sweepDeadline(ctx, 3, TypeDeadline3Days, "due in 3 days", false)
}

// The one-day horizon escalates to the admin audience and makes the push
// sticky; the three-day horizon reminds only the executor.
func (s *Service) sweepDeadline(ctx context.Context, daysAhead int, reminderType, phrase string, escalate bool) error {
	candidates, err := s.store.DeadlineCandidates(ctx, daysAhead, reminderType)
	if err != nil {
		return fmt.Errorf("deadline sweep %s: %w", reminderType, err)
	}
	for _, c := range candidates {
		data := requestEmailData{
			AppName:       s.config.AppName,
			RequestNumber: c.RequestNumber,
			OrderNumber:   c.OrderNumber,
			Drawing:       c.Drawing,
			StatusName:    c.StatusName,
			Executor:      c.ExecutorName,
			Deadline:      deadlineString(c.Deadline),
			RequestURL:    s.requestURL(c.ID),
		}
		html, err := renderTemplate(deadlineEmailTemplate, data)
		if err != nil {
			log.Printf("notify: render deadline template: %v", err)
			continue
		}

		recipients := []string{c.ExecutorEmail}
		if escalate {
			recipients = append(recipients, s.adminEmails(ctx)...)
		}
		subject := fmt.Sprintf("Request %s is %s", c.RequestNumber, phrase)
		emailSent := s.sendEmails(dedupe(recipients), subject, html)

		payload := push.NewPayload("Deadline approaching", fmt.Sprintf("%s is %s", c.RequestNumber, phrase))
		payload.Tag = fmt.Sprintf("deadline-%d", c.ID)
		payload.RequireInteraction = escalate
		payload.Data = push.PayloadData{RequestID: c.ID, URL: s.requestURL(c.ID)}
		pushSent := s.sendPush(ctx, payload, func(st store.NotificationSettings) bool { return st.NotifyDeadline })

		text := fmt.Sprintf("Request %s %s (%s)", c.RequestNumber, phrase, deadlineString(c.Deadline))
		if err := s.store.RecordReminder(ctx, c.ID, reminderType, text); err != nil {
			log.Printf("notify: record reminder %s for %d: %v", reminderType, c.ID, err)
		}
		s.record(ctx, reminderType, c.ID, emailSent, pushSent)
	}
	return nil
}

// CheckOverdueRequests runs the half-hourly sweep over requests past their
// deadline, reminding each at most once per day.
func (s *Service) CheckOverdueRequests(ctx context.Context) error {
	candidates, err := s.store.OverdueCandidates(ctx)
	if err != nil {
		return fmt.Errorf("overdue sweep: %w", err)
	}
	for _, c := range candidates {
		days := int(math.Floor(c.DaysOverdue))
		data := requestEmailData{
			AppName:       s.config.AppName,
			RequestNumber: c.RequestNumber,
			OrderNumber:   c.OrderNumber,
			Drawing:       c.Drawing,
			StatusName:    c.StatusName,
			Executor:      c.ExecutorName,
			Deadline:      deadlineString(c.Deadline),
			DaysOverdue:   days,
			RequestURL:    s.requestURL(c.ID),
		}
		html, err := renderTemplate(overdueEmailTemplate, data)
		if err != nil {
			log.Printf("notify: render overdue template: %v", err)
			continue
		}

		subject := fmt.Sprintf("Request %s is %d day(s) overdue", c.RequestNumber, days)
		recipients := append([]string{c.ExecutorEmail}, s.adminEmails(ctx)...)
		emailSent := s.sendEmails(dedupe(recipients), subject, html)

		payload := push.NewPayload("Request overdue", fmt.Sprintf("%s is %d day(s) overdue", c.RequestNumber, days))
		payload.Tag = fmt.Sprintf("deadline-%d", c.ID)
		payload.RequireInteraction = true
		payload.Data = push.PayloadData{RequestID: c.ID, URL: s.requestURL(c.ID)}
		pushSent := s.sendPush(ctx, payload, func(st store.NotificationSettings) bool { return st.NotifyOverdue })

		text := fmt.Sprintf("Request %s overdue by %d day(s)", c.RequestNumber, days)
		if err := s.store.RecordReminder(ctx, c.ID, TypeOverdue, text); err != nil {
			log.Printf("notify: record overdue reminder for %d: %v", c.ID, err)
		}
		s.record(ctx, TypeOverdue, c.ID, emailSent, pushSent)
	}
	return nil
}

// SendDailySummary mails the morning digest to every recipient with the
// daily summary toggle on.
func (s *Service) SendDailySummary(ctx context.Context) error {
	stats, err := s.store.DailyStats(ctx, s.config.SummaryTopN)
	if err != nil {
		return fmt.Errorf("daily summary stats: %w", err)
	}

	data := summaryEmailData{
		AppName:            s.config.AppName,
		Date:               s.now().Format("2006-01-02"),
		Active:             stats.Active,
		NewYesterday:       stats.NewYesterday,
		CompletedYesterday: stats.CompletedYesterday,
		Overdue:            stats.Overdue,
		DueToday:           stats.DueToday,
		AppURL:             s.config.AppURL,
	}
	for _, c := range stats.OverdueRequests {
		data.OverdueRows = append(data.OverdueRows, summaryRow{
			RequestNumber: c.RequestNumber,
			OrderNumber:   c.OrderNumber,
			Deadline:      deadlineString(c.Deadline),
			Executor:      c.ExecutorName,
			DaysOverdue:   int(math.Floor(c.DaysOverdue)),
		})
	}
	for _, c := range stats.DueTodayRequests {
		data.DueTodayRows = append(data.DueTodayRows, summaryRow{
			RequestNumber: c.RequestNumber,
			OrderNumber:   c.OrderNumber,
			Deadline:      deadlineString(c.Deadline),
			Executor:      c.ExecutorName,
		})
	}

	html, err := renderTemplate(summaryEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render summary template: %w", err)
	}

	recipients, err := s.store.RoleEmails(ctx, escalationRoles)
	if err != nil {
		return fmt.Errorf("summary recipients: %w", err)
	}

	emailSent := 0
	for _, to := range recipients {
		settings, err := s.store.GetSettings(ctx, to)
		if err == nil && !settings.NotifyDailySummary {
			continue
		}
		emailSent += s.sendEmails([]string{to}, fmt.Sprintf("%s daily summary %s", s.config.AppName, data.Date), html)
	}

	s.record(ctx, TypeDailySummary, 0, emailSent, 0)
	return nil
}

// SendTestNotification delivers a test email and push to a single named
// recipient so operators can verify their channel setup.
func (s *Service) SendTestNotification(ctx context.Context, name string) (int, int, error) {
	emailAddr, err := s.store.ExecutorEmail(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, fmt.Errorf("recipient %q not found: %w", name, err)
		}
		return 0, 0, fmt.Errorf("resolve recipient: %w", err)
	}

	emailSent := 0
	if emailAddr != "" && s.mailer.IsConfigured() {
		body := fmt.Sprintf("This is a test notification from %s. If you can read this, email delivery works.", s.config.AppName)
		if err := s.mailer.SendEmail([]string{emailAddr}, s.config.AppName+" test notification", body); err != nil {
			log.Printf("notify: test email to %s failed: %v", emailAddr, err)
		} else {
			emailSent = 1
		}
	}

	pushSent := 0
	if s.pusher.IsConfigured() {
		subs, err := s.store.ActivePushSubscriptions(ctx, []string{name})
		if err != nil {
			log.Printf("notify: test subscriptions for %s: %v", name, err)
		}
		payload := push.NewPayload("Test notification", "Push delivery works.")
		payload.Data = push.PayloadData{URL: s.config.AppURL}
		for _, sub := range subs {
			if err := s.pusher.Send(sub.Subscription, payload); err != nil {
				log.Printf("notify: test push to %s failed: %v", sub.UserID, err)
				continue
			}
			pushSent++
		}
	}

	// Test probes are deliberately absent from the notification log.
	return emailSent, pushSent, nil
}

// Recipients selects the broadcast audience: everyone, an explicit email
// list, or a role.
type Recipients struct {
	All    bool
	Emails []string
	Role   string
}

// Broadcast sends a one-off announcement. Returns how many recipients were
// reached out of how many were addressed.
func (s *Service) Broadcast(ctx context.Context, subject, message string, recipients Recipients) (int, int, error) {
	var emails []string
	var err error
	switch {
	case recipients.All:
		emails, err = s.store.RoleEmails(ctx, nil)
	case len(recipients.Emails) > 0:
		emails = recipients.Emails
	case recipients.Role != "":
		emails, err = s.store.RoleEmails(ctx, []string{recipients.Role})
	default:
		return 0, 0, fmt.Errorf("no recipients")
	}
	if err != nil {
		return 0, 0, fmt.Errorf("resolve broadcast recipients: %w", err)
	}

	html, err := renderTemplate(broadcastEmailTemplate, broadcastEmailData{
		AppName: s.config.AppName,
		Subject: subject,
		Message: message,
		AppURL:  s.config.AppURL,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("render broadcast template: %w", err)
	}

	emails = dedupe(emails)
	sent := s.sendEmails(emails, subject, html)
	s.record(ctx, TypeBroadcast, 0, sent, 0)
	return sent, len(emails), nil
}

func dedupe(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
