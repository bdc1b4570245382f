package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// --- Reminder sweeps ---

const candidateColumns = `
	r.id, r.request_number, r.order_number, r.drawing, r.deadline,
	COALESCE(s.name, ''), COALESCE(e.full_name, ''), COALESCE(e.email, '')`

func scanCandidate(row rowScanner, extra ...any) (ReminderCandidate, error) {
	var item ReminderCandidate
	dest := []any{&item.ID, &item.RequestNumber, &item.OrderNumber, &item.Drawing,
		&item.Deadline, &item.StatusName, &item.ExecutorName, &item.ExecutorEmail}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return ReminderCandidate{}, fmt.Errorf("scan reminder candidate: %w", err)
	}
	return item, nil
}

// DeadlineCandidates lists non-final requests whose deadline falls exactly
// daysAhead days from today and that were not already reminded today with the
// given reminder type.
func (s *PostgresStore) DeadlineCandidates(ctx context.Context, daysAhead int, reminderType string) ([]ReminderCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+candidateColumns+`
		FROM requests r
		JOIN statuses s ON r.status_id = s.id
		LEFT JOIN executors e ON r.executor_id = e.id
		WHERE r.deadline = CURRENT_DATE + $1
		  AND NOT s.is_final
		  AND NOT EXISTS (
			SELECT 1 FROM reminders rem
			WHERE rem.request_id = r.id
			  AND rem.reminder_type = $2
			  AND rem.created_at::date = CURRENT_DATE
		  )
		ORDER BY r.id
	`, daysAhead, reminderType)
	if err != nil {
		return nil, fmt.Errorf("deadline candidates: %w", err)
	}
	defer rows.Close()

	items := make([]ReminderCandidate, 0)
	for rows.Next() {
		item, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deadline candidates: %w", err)
	}
	return items, nil
}

// OverdueCandidates lists non-final requests past their deadline, with the
// fractional days overdue, skipping requests already reminded today.
func (s *PostgresStore) OverdueCandidates(ctx context.Context) ([]ReminderCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+candidateColumns+`,
			EXTRACT(EPOCH FROM (NOW() - r.deadline::timestamptz)) / 86400.0
		FROM requests r
		JOIN statuses s ON r.status_id = s.id
		LEFT JOIN executors e ON r.executor_id = e.id
		WHERE r.deadline < CURRENT_DATE
		  AND NOT s.is_final
		  AND NOT EXISTS (
			SELECT 1 FROM reminders rem
			WHERE rem.request_id = r.id
			  AND rem.reminder_type = 'overdue'
			  AND rem.created_at::date = CURRENT_DATE
		  )
		ORDER BY r.deadline
	`)
	if err != nil {
		return nil, fmt.Errorf("overdue candidates: %w", err)
	}
	defer rows.Close()

	items := make([]ReminderCandidate, 0)
	for rows.Next() {
		var item ReminderCandidate
		dest := []any{&item.ID, &item.RequestNumber, &item.OrderNumber, &item.Drawing,
			&item.Deadline, &item.StatusName, &item.ExecutorName, &item.ExecutorEmail, &item.DaysOverdue}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan overdue candidate: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overdue candidates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RecordReminder(ctx context.Context, requestID int64, reminderType, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (request_id, reminder_type, reminder_text)
		VALUES ($1, $2, $3)
	`, requestID, reminderType, text)
	if err != nil {
		return fmt.Errorf("record reminder: %w", err)
	}
	return nil
}

// --- Push subscriptions ---

func (s *PostgresStore) UpsertPushSubscription(ctx context.Context, userID, subscription string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (user_id, subscription, is_active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (user_id) DO UPDATE
		SET subscription = EXCLUDED.subscription, is_active = TRUE, updated_at = NOW()
	`, userID, subscription)
	if err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivatePushSubscription(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE push_subscriptions SET is_active = FALSE, updated_at = NOW() WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("deactivate push subscription: %w", err)
	}
	return nil
}

// ActivePushSubscriptions returns the active subscriptions, optionally
// narrowed to the given user ids.
func (s *PostgresStore) ActivePushSubscriptions(ctx context.Context, userIDs []string) ([]PushSubscription, error) {
	query := `
		SELECT user_id, subscription, is_active, created_at, updated_at
		FROM push_subscriptions
		WHERE is_active`
	args := []any{}
	if len(userIDs) > 0 {
		query += ` AND user_id = ANY($1)`
		args = append(args, userIDs)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	items := make([]PushSubscription, 0)
	for rows.Next() {
		var item PushSubscription
		if err := rows.Scan(&item.UserID, &item.Subscription, &item.IsActive, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push subscriptions: %w", err)
	}
	return items, nil
}

// --- Notification settings ---

func defaultSettings(username string) NotificationSettings {
	return NotificationSettings{
		Username:           username,
		EmailEnabled:       true,
		PushEnabled:        true,
		NotifyNewRequest:   true,
		NotifyStatusChange: true,
		NotifyDeadline:     true,
		NotifyOverdue:      true,
		NotifyDailySummary: true,
	}
}

// GetSettings returns the stored settings for a user, or the defaults when
// the user has never saved any.
func (s *PostgresStore) GetSettings(ctx context.Context, username string) (NotificationSettings, error) {
	var item NotificationSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT username, email_enabled, push_enabled, notify_new_request,
			notify_status_change, notify_deadline, notify_overdue,
			notify_daily_summary, quiet_hours_start, quiet_hours_end
		FROM user_notification_settings
		WHERE username=$1
	`, username).Scan(&item.Username, &item.EmailEnabled, &item.PushEnabled,
		&item.NotifyNewRequest, &item.NotifyStatusChange, &item.NotifyDeadline,
		&item.NotifyOverdue, &item.NotifyDailySummary, &item.QuietHoursStart, &item.QuietHoursEnd)
	if err == sql.ErrNoRows {
		return defaultSettings(username), nil
	}
	if err != nil {
		return NotificationSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return item, nil
}

// UpdateSettings merges the supplied fields over the stored (or default)
// settings and writes the row back.
func (s *PostgresStore) UpdateSettings(ctx context.Context, username string, update SettingsUpdate) (NotificationSettings, error) {
	current, err := s.GetSettings(ctx, username)
	if err != nil {
		return NotificationSettings{}, err
	}

	if update.EmailEnabled != nil {
		current.EmailEnabled = *update.EmailEnabled
	}
	if update.PushEnabled != nil {
		current.PushEnabled = *update.PushEnabled
	}
	if update.NotifyNewRequest != nil {
		current.NotifyNewRequest = *update.NotifyNewRequest
	}
	if update.NotifyStatusChange != nil {
		current.NotifyStatusChange = *update.NotifyStatusChange
	}
	if update.NotifyDeadline != nil {
		current.NotifyDeadline = *update.NotifyDeadline
	}
	if update.NotifyOverdue != nil {
		current.NotifyOverdue = *update.NotifyOverdue
	}
	if update.NotifyDailySummary != nil {
		current.NotifyDailySummary = *update.NotifyDailySummary
	}
	if update.QuietHoursStart != nil {
		current.QuietHoursStart = update.QuietHoursStart
	}
	if update.QuietHoursEnd != nil {
		current.QuietHoursEnd = update.QuietHoursEnd
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_notification_settings (
			username, email_enabled, push_enabled, notify_new_request,
			notify_status_change, notify_deadline, notify_overdue,
			notify_daily_summary, quiet_hours_start, quiet_hours_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (username) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			push_enabled = EXCLUDED.push_enabled,
			notify_new_request = EXCLUDED.notify_new_request,
			notify_status_change = EXCLUDED.notify_status_change,
			notify_deadline = EXCLUDED.notify_deadline,
			notify_overdue = EXCLUDED.notify_overdue,
			notify_daily_summary = EXCLUDED.notify_daily_summary,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			updated_at = NOW()
	`, current.Username, current.EmailEnabled, current.PushEnabled,
		current.NotifyNewRequest, current.NotifyStatusChange, current.NotifyDeadline,
		current.NotifyOverdue, current.NotifyDailySummary, current.QuietHoursStart, current.QuietHoursEnd)
	if err != nil {
		return NotificationSettings{}, fmt.Errorf("update settings: %w", err)
	}
	return current, nil
}

// --- Notification log ---

func (s *PostgresStore) RecordNotification(ctx context.Context, entry NotificationLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_log (type, request_id, email_sent, push_sent, sms_sent)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.Type, entry.RequestID, entry.EmailSent, entry.PushSent, entry.SMSSent)
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotificationLog(ctx context.Context, requestID int64, notifType string, limit int) ([]NotificationLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, type, request_id, email_sent, push_sent, sms_sent, timestamp
		FROM notification_log
		WHERE 1=1`
	args := []any{}
	if requestID != 0 {
		args = append(args, requestID)
		query += fmt.Sprintf(" AND request_id = $%d", len(args))
	}
	if notifType != "" {
		args = append(args, notifType)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notification log: %w", err)
	}
	defer rows.Close()

	items := make([]NotificationLogEntry, 0)
	for rows.Next() {
		var item NotificationLogEntry
		if err := rows.Scan(&item.ID, &item.Type, &item.RequestID, &item.EmailSent,
			&item.PushSent, &item.SMSSent, &item.Timestamp); err != nil {
			return nil, fmt.Errorf("scan notification log entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification log: %w", err)
	}
	return items, nil
}

// NotificationStats aggregates dispatch counts per type since the given time.
func (s *PostgresStore) NotificationStats(ctx context.Context, since time.Time) ([]NotificationTypeStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*), COALESCE(SUM(email_sent), 0), COALESCE(SUM(push_sent), 0), COALESCE(SUM(sms_sent), 0)
		FROM notification_log
		WHERE timestamp >= $1
		GROUP BY type
		ORDER BY type
	`, since)
	if err != nil {
		return nil, fmt.Errorf("notification stats: %w", err)
	}
	defer rows.Close()

	items := make([]NotificationTypeStat, 0)
	for rows.Next() {
		var item NotificationTypeStat
		if err := rows.Scan(&item.Type, &item.Total, &item.EmailSent, &item.PushSent, &item.SMSSent); err != nil {
			return nil, fmt.Errorf("scan notification stat: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification stats: %w", err)
	}
	return items, nil
}

// --- Recipient resolution ---

// RoleEmails resolves the distinct emails of active executors whose linked
// user holds one of the given roles. Empty roles means all active executors
// with an email.
func (s *PostgresStore) RoleEmails(ctx context.Context, roles []string) ([]string, error) {
	query := `
		SELECT DISTINCT e.email
		FROM executors e
		WHERE e.is_active AND e.email IS NOT NULL AND e.email != ''`
	args := []any{}
	if len(roles) > 0 {
		query = `
		SELECT DISTINCT e.email
		FROM executors e
		JOIN user_permissions up ON up.username = e.short_name
		WHERE e.is_active AND e.email IS NOT NULL AND e.email != ''
		  AND up.role = ANY($1)`
		args = append(args, roles)
	}
	query += ` ORDER BY e.email`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("role emails: %w", err)
	}
	defer rows.Close()

	emails := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan role email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role emails: %w", err)
	}
	return emails, nil
}

// ExecutorEmail looks a single recipient up by short or full name.
func (s *PostgresStore) ExecutorEmail(ctx context.Context, name string) (string, error) {
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT email FROM executors
		WHERE is_active AND (short_name = $1 OR full_name = $1)
		LIMIT 1
	`, name).Scan(&email)
	if err != nil {
		return "", err
	}
	return email.String, nil
}

// --- Daily summary ---

// DailyStats gathers the morning summary in a fixed read order: active count,
// new yesterday, completed yesterday, overdue list, due-today list.
func (s *PostgresStore) DailyStats(ctx context.Context, topN int) (DailyStats, error) {
	if topN <= 0 {
		topN = 10
	}
	var stats DailyStats

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM requests r
		JOIN statuses s ON r.status_id = s.id
		WHERE NOT s.is_final
	`).Scan(&stats.Active)
	if err != nil {
		return DailyStats{}, fmt.Errorf("daily stats active: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requests WHERE created_at::date = CURRENT_DATE - 1
	`).Scan(&stats.NewYesterday)
	if err != nil {
		return DailyStats{}, fmt.Errorf("daily stats new yesterday: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM requests r
		JOIN statuses s ON r.status_id = s.id
		WHERE s.code = 'completed' AND r.updated_at::date = CURRENT_DATE - 1
	`).Scan(&stats.CompletedYesterday)
	if err != nil {
		return DailyStats{}, fmt.Errorf("daily stats completed yesterday: %w", err)
	}

	overdueRows, err := s.db.QueryContext(ctx, `
		SELECT `+candidateColumns+`,
			EXTRACT(EPOCH FROM (NOW() - r.deadline::timestamptz)) / 86400.0
		FROM requests r
		JOIN statuses s ON r.status_id = s.id
		LEFT JOIN executors e ON r.executor_id = e.id
		WHERE r.deadline < CURRENT_DATE AND NOT s.is_final
		ORDER BY r.deadline
		LIMIT $1
	`, topN)
	if err != nil {
		return DailyStats{}, fmt.Errorf("daily stats overdue: %w", err)
	}
	defer overdueRows.Close()
	stats.OverdueRequests = make([]ReminderCandidate, 0)
	for overdueRows.Next() {
		var item ReminderCandidate
		if err := overdueRows.Scan(&item.ID, &item.RequestNumber, &item.OrderNumber, &item.Drawing,
			&item.Deadline, &item.StatusName, &item.ExecutorName, &item.ExecutorEmail, &item.DaysOverdue); err != nil {
			return DailyStats{}, fmt.Errorf("scan daily overdue: %w", err)
		}
		stats.OverdueRequests = append(stats.OverdueRequests, item)
	}
	if err := overdueRows.Err(); err != nil {
		return DailyStats{}, fmt.Errorf("iterate daily overdue: %w", err)
	}
	stats.Overdue = len(stats.OverdueRequests)

	dueRows, err := s.db.QueryContext(ctx, `
		SELECT `+candidateColumns+`
		FROM requests r
		JOIN statuses s ON r.status_id = s.id
		LEFT JOIN executors e ON r.executor_id = e.id
		WHERE r.deadline = CURRENT_DATE AND NOT s.is_final
		ORDER BY r.id
	`)
	if err != nil {
		return DailyStats{}, fmt.Errorf("daily stats due today: %w", err)
	}
	defer dueRows.Close()
	stats.DueTodayRequests = make([]ReminderCandidate, 0)
	for dueRows.Next() {
		item, err := scanCandidate(dueRows)
		if err != nil {
			return DailyStats{}, err
		}
		stats.DueTodayRequests = append(stats.DueTodayRequests, item)
	}
	if err := dueRows.Err(); err != nil {
		return DailyStats{}, fmt.Errorf("iterate daily due today: %w", err)
	}
	stats.DueToday = len(stats.DueTodayRequests)

	return stats, nil
}
