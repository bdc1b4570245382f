package store

import "time"

type Status struct {
	ID                 int64    `json:"id"`
	Code               string   `json:"code"`
	Name               string   `json:"name"`
	Color              string   `json:"color"`
	Icon               string   `json:"icon"`
	IsFinal            bool     `json:"is_final"`
	AllowedTransitions []string `json:"allowed_transitions"`
	SortOrder          int      `json:"sort_order"`
	IsActive           bool     `json:"is_active"`
}

type ControlType struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	IsActive bool   `json:"is_active"`
}

type Station struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type Organization struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type Executor struct {
	ID        int64  `json:"id"`
	FullName  string `json:"full_name"`
	ShortName string `json:"short_name"`
	Email     string `json:"email"`
	IsActive  bool   `json:"is_active"`
}

type Request struct {
	ID                      int64      `json:"id"`
	RequestNumber           string     `json:"request_number"`
	Date                    *time.Time `json:"date"`
	OrderNumber             string     `json:"order_number"`
	Drawing                 string     `json:"drawing"`
	Certificate             string     `json:"certificate"`
	Material                string     `json:"material"`
	Quantity                int        `json:"quantity"`
	Operation               string     `json:"operation"`
	StationID               *int64     `json:"station_id"`
	ControlTypeID           *int64     `json:"control_type_id"`
	ExecutorID              *int64     `json:"executor_id"`
	OrganizationID          *int64     `json:"organization_id"`
	StatusID                int64      `json:"status_id"`
	TechRequirements        string     `json:"tech_requirements"`
	SurfacePreparation      string     `json:"surface_preparation"`
	EnglishRequired         bool       `json:"english_required"`
	Notes                   string     `json:"notes"`
	Priority                int        `json:"priority"`
	Deadline                *time.Time `json:"deadline"`
	ControlDate             *time.Time `json:"control_date"`
	ProtocolNumber          string     `json:"protocol_number"`
	ProtocolDate            *time.Time `json:"protocol_date"`
	DefectsFound            bool       `json:"defects_found"`
	RouteCardMark           string     `json:"route_card_mark"`
	ProductionMark          string     `json:"production_mark"`
	CorrectionLetterNumber  string     `json:"correction_letter_number"`
	CorrectedProtocolNumber string     `json:"corrected_protocol_number"`
	CorrectionCompleted     bool       `json:"correction_completed"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
	CreatedBy               string     `json:"created_by"`
	UpdatedBy               string     `json:"updated_by"`
}

// RequestRow is the denormalized list/detail shape with joined display names.
type RequestRow struct {
	Request
	StatusCode       string `json:"status_code"`
	StatusName       string `json:"status_name"`
	StatusColor      string `json:"status_color"`
	StatusIcon       string `json:"status_icon"`
	StationName      string `json:"station_name"`
	ControlTypeName  string `json:"control_type_name"`
	ControlTypeFull  string `json:"control_type_full"`
	ExecutorName     string `json:"executor_name"`
	ExecutorEmail    string `json:"executor_email"`
	OrganizationName string `json:"organization_name"`
	DocumentsCount   int    `json:"documents_count"`
	CommentsCount    int    `json:"comments_count"`
}

// RequestFilter narrows ListRequests; zero values mean "no filter".
type RequestFilter struct {
	StatusID      int64
	ControlTypeID int64
	StationID     int64
	ExecutorID    int64
	Priority      int
}

type HistoryEntry struct {
	ID         int64     `json:"id"`
	RequestID  int64     `json:"request_id"`
	ActionType string    `json:"action_type"`
	FieldName  string    `json:"field_name,omitempty"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	Actor      string    `json:"user"`
	CreatedAt  time.Time `json:"timestamp"`
}

// FieldChange is one field-level diff recorded against a request update.
type FieldChange struct {
	Field    string
	OldValue string
	NewValue string
}

// StatusChange accompanies an update that moves a request between statuses.
type StatusChange struct {
	OldStatusID int64
	NewStatusID int64
}

type Comment struct {
	ID         int64     `json:"id"`
	RequestID  int64     `json:"request_id"`
	Text       string    `json:"comment_text"`
	CreatedBy  string    `json:"created_by"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

type Document struct {
	ID           int64     `json:"id"`
	RequestID    int64     `json:"request_id"`
	StorageKey   string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	UploadedBy   string    `json:"uploaded_by"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type RequestTemplate struct {
	ID               int64     `json:"id"`
	TemplateName     string    `json:"template_name"`
	OrderNumber      string    `json:"order_number"`
	Drawing          string    `json:"drawing"`
	Material         string    `json:"material"`
	StationID        *int64    `json:"station_id"`
	ControlTypeID    *int64    `json:"control_type_id"`
	TechRequirements string    `json:"tech_requirements"`
	Notes            string    `json:"notes"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	StationName      string    `json:"station_name"`
	ControlTypeName  string    `json:"control_type_name"`
}

type Reminder struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"request_id"`
	Type      string    `json:"reminder_type"`
	Text      string    `json:"reminder_text"`
	SentAt    time.Time `json:"sent_at"`
	CreatedAt time.Time `json:"created_at"`
}

type PushSubscription struct {
	UserID       string    `json:"user_id"`
	Subscription string    `json:"subscription"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type NotificationSettings struct {
	Username           string  `json:"username"`
	EmailEnabled       bool    `json:"email_enabled"`
	PushEnabled        bool    `json:"push_enabled"`
	NotifyNewRequest   bool    `json:"notify_new_request"`
	NotifyStatusChange bool    `json:"notify_status_change"`
	NotifyDeadline     bool    `json:"notify_deadline"`
	NotifyOverdue      bool    `json:"notify_overdue"`
	NotifyDailySummary bool    `json:"notify_daily_summary"`
	QuietHoursStart    *string `json:"quiet_hours_start"`
	QuietHoursEnd      *string `json:"quiet_hours_end"`
}

// SettingsUpdate carries only the fields the caller supplied; nil means keep.
type SettingsUpdate struct {
	EmailEnabled       *bool   `json:"email_enabled"`
	PushEnabled        *bool   `json:"push_enabled"`
	NotifyNewRequest   *bool   `json:"notify_new_request"`
	NotifyStatusChange *bool   `json:"notify_status_change"`
	NotifyDeadline     *bool   `json:"notify_deadline"`
	NotifyOverdue      *bool   `json:"notify_overdue"`
	NotifyDailySummary *bool   `json:"notify_daily_summary"`
	QuietHoursStart    *string `json:"quiet_hours_start"`
	QuietHoursEnd      *string `json:"quiet_hours_end"`
}

type NotificationLogEntry struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	RequestID *int64    `json:"request_id"`
	EmailSent int       `json:"email_sent"`
	PushSent  int       `json:"push_sent"`
	SMSSent   int       `json:"sms_sent"`
	Timestamp time.Time `json:"timestamp"`
}

type NotificationTypeStat struct {
	Type      string `json:"type"`
	Total     int    `json:"total"`
	EmailSent int    `json:"email_sent"`
	PushSent  int    `json:"push_sent"`
	SMSSent   int    `json:"sms_sent"`
}

// ReminderCandidate is a request picked up by a scheduled sweep, joined with
// the recipient data the dispatcher needs.
type ReminderCandidate struct {
	ID            int64
	RequestNumber string
	OrderNumber   string
	Drawing       string
	Deadline      *time.Time
	StatusName    string
	ExecutorName  string
	ExecutorEmail string
	DaysOverdue   float64
}

type StatusCount struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
	Count int    `json:"count"`
}

type ControlTypeCount struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	Count int    `json:"count"`
}

type ExecutorCount struct {
	FullName  string `json:"full_name"`
	ShortName string `json:"short_name"`
	Count     int    `json:"count"`
	Completed int    `json:"completed"`
}

type PriorityCount struct {
	Priority int    `json:"priority"`
	Name     string `json:"priority_name"`
	Count    int    `json:"count"`
}

type Stats struct {
	Total          int                `json:"total"`
	Active         int                `json:"active"`
	CompletedMonth int                `json:"completed_month"`
	Corrections    int                `json:"corrections"`
	Overdue        int                `json:"overdue"`
	ByStatus       []StatusCount      `json:"byStatus"`
	ByControlType  []ControlTypeCount `json:"byControlType"`
	ByExecutor     []ExecutorCount    `json:"byExecutor"`
	ByPriority     []PriorityCount    `json:"byPriority"`
}

// DailyStats feeds the morning summary email. The five reads happen in a
// fixed order: active, new-yesterday, completed-yesterday, overdue, due-today.
type DailyStats struct {
	Active             int
	NewYesterday       int
	CompletedYesterday int
	Overdue            int
	DueToday           int
	OverdueRequests    []ReminderCandidate
	DueTodayRequests   []ReminderCandidate
}
