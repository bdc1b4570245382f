package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ndtdesk/api/internal/blob"
	"ndtdesk/api/internal/notify"
	"ndtdesk/api/internal/search"
	"ndtdesk/api/internal/store"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Ping(ctx context.Context) error

	ListStatuses(ctx context.Context) ([]store.Status, error)
	GetStatus(ctx context.Context, statusID int64) (store.Status, error)
	StatusByCode(ctx context.Context, code string) (store.Status, error)
	ListControlTypes(ctx context.Context) ([]store.ControlType, error)
	ListStations(ctx context.Context) ([]store.Station, error)
	ListOrganizations(ctx context.Context) ([]store.Organization, error)
	ListExecutors(ctx context.Context) ([]store.Executor, error)

	CreateRequest(ctx context.Context, item store.Request) (store.Request, error)
	GetRequest(ctx context.Context, requestID int64) (store.Request, error)
	GetRequestRow(ctx context.Context, requestID int64) (store.RequestRow, error)
	ListRequests(ctx context.Context, filter store.RequestFilter) ([]store.RequestRow, error)
	UpdateRequest(ctx context.Context, item store.Request, changes []store.FieldChange, statusChange *store.StatusChange, actor string) error
	AllowedTransitions(ctx context.Context, requestID int64) ([]store.Status, error)

	ListHistory(ctx context.Context, requestID int64, limit int) ([]store.HistoryEntry, error)
	CreateComment(ctx context.Context, item store.Comment) (int64, error)
	ListComments(ctx context.Context, requestID int64) ([]store.Comment, error)
	CreateDocument(ctx context.Context, item store.Document) (int64, error)
	ListDocuments(ctx context.Context, requestID int64) ([]store.Document, error)

	CreateTemplate(ctx context.Context, item store.RequestTemplate) (int64, error)
	ListTemplates(ctx context.Context) ([]store.RequestTemplate, error)

	GetStats(ctx context.Context) (store.Stats, error)

	UpsertPushSubscription(ctx context.Context, userID, subscription string) error
	DeactivatePushSubscription(ctx context.Context, userID string) error
	GetSettings(ctx context.Context, username string) (store.NotificationSettings, error)
	UpdateSettings(ctx context.Context, username string, update store.SettingsUpdate) (store.NotificationSettings, error)
	ListNotificationLog(ctx context.Context, requestID int64, notifType string, limit int) ([]store.NotificationLogEntry, error)
	NotificationStats(ctx context.Context, since time.Time) ([]store.NotificationTypeStat, error)
}

// Notifier dispatches email and push for request events.
type Notifier interface {
	NotifyCreated(ctx context.Context, row store.RequestRow)
	NotifyStatusChanged(ctx context.Context, row store.RequestRow, oldStatus, newStatus store.Status)
	SendTestNotification(ctx context.Context, name string) (int, int, error)
	Broadcast(ctx context.Context, subject, message string, recipients notify.Recipients) (int, int, error)
}

// Broadcaster pushes realtime events to connected clients.
type Broadcaster interface {
	Broadcast(eventType string, data any)
	ClientCount() int
}

// SearchIndex is the search facade the service feeds and queries.
type SearchIndex interface {
	Search(q search.Query) search.Response
	IndexRequest(record search.RequestRecord)
}

// Cache is the optional response cache for dictionaries and stats.
type Cache interface {
	Get(ctx context.Context, name string, dest any) error
	Set(ctx context.Context, name string, value any) error
	Invalidate(ctx context.Context, names ...string) error
}

type Service struct {
	store    Store
	searcher SearchIndex
	notifier Notifier
	hub      Broadcaster
	blobs    blob.Store
	cache    Cache
}

func NewService(st Store, searcher SearchIndex, notifier Notifier, hub Broadcaster, blobs blob.Store, cache Cache) *Service {
	return &Service{store: st, searcher: searcher, notifier: notifier, hub: hub, blobs: blobs, cache: cache}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

const (
	cacheDictionaries = "dictionaries"
	cacheStats        = "stats"
)

// Dictionaries returns all active reference data in one payload.
func (s *Service) Dictionaries(ctx context.Context) (map[string]any, error) {
	if s.cache != nil {
		var cached map[string]any
		if err := s.cache.Get(ctx, cacheDictionaries, &cached); err == nil {
			return cached, nil
		}
	}

	statuses, err := s.store.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	controlTypes, err := s.store.ListControlTypes(ctx)
	if err != nil {
		return nil, err
	}
	stations, err := s.store.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	organizations, err := s.store.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	executors, err := s.store.ListExecutors(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"statuses":      statuses,
		"controlTypes":  controlTypes,
		"stations":      stations,
		"organizations": organizations,
		"executors":     executors,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheDictionaries, payload); err != nil {
			log.Printf("app: cache dictionaries: %v", err)
		}
	}
	return payload, nil
}

// Stats returns the dashboard aggregation, cached briefly.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	if s.cache != nil {
		var cached store.Stats
		if err := s.cache.Get(ctx, cacheStats, &cached); err == nil {
			return cached, nil
		}
	}
	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return store.Stats{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheStats, stats); err != nil {
			log.Printf("app: cache stats: %v", err)
		}
	}
	return stats, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cacheStats); err != nil {
		log.Printf("app: invalidate stats cache: %v", err)
	}
}

func (s *Service) ListRequests(ctx context.Context, filter store.RequestFilter) ([]store.RequestRow, error) {
	return s.store.ListRequests(ctx, filter)
}

func (s *Service) GetRequest(ctx context.Context, requestID int64) (store.RequestRow, error) {
	return s.store.GetRequestRow(ctx, requestID)
}

// RequestDetail is the composite payload for the request detail view.
type RequestDetail struct {
	Request   store.RequestRow     `json:"request"`
	Documents []store.Document     `json:"documents"`
	Comments  []store.Comment      `json:"comments"`
	History   []store.HistoryEntry `json:"history"`
}

const detailHistoryLimit = 50

func (s *Service) GetRequestDetail(ctx context.Context, requestID int64) (RequestDetail, error) {
	row, err := s.store.GetRequestRow(ctx, requestID)
	if err != nil {
		return RequestDetail{}, err
	}
	documents, err := s.store.ListDocuments(ctx, requestID)
	if err != nil {
		return RequestDetail{}, err
	}
	comments, err := s.store.ListComments(ctx, requestID)
	if err != nil {
		return RequestDetail{}, err
	}
	history, err := s.store.ListHistory(ctx, requestID, detailHistoryLimit)
	if err != nil {
		return RequestDetail{}, err
	}
	if documents == nil {
		documents = []store.Document{}
	}
	if comments == nil {
		comments = []store.Comment{}
	}
	if history == nil {
		history = []store.HistoryEntry{}
	}
	return RequestDetail{Request: row, Documents: documents, Comments: comments, History: history}, nil
}

func (s *Service) AllowedTransitions(ctx context.Context, requestID int64) ([]store.Status, error) {
	return s.store.AllowedTransitions(ctx, requestID)
}

func (s *Service) History(ctx context.Context, requestID int64, limit int) ([]store.HistoryEntry, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, requestID, limit)
}

// parseDate accepts the wire format YYYY-MM-DD, with RFC 3339 as a fallback.
func parseDate(raw string) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse("2006-01-02", trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	return nil, fmt.Errorf("invalid date %q", raw)
}

// CreateRequestInput is the JSON body for creating a request.
type CreateRequestInput struct {
	Date               *string `json:"date"`
	OrderNumber        string  `json:"order_number"`
	Drawing            string  `json:"drawing"`
	Certificate        string  `json:"certificate"`
	Material           string  `json:"material"`
	Quantity           int     `json:"quantity"`
	Operation          string  `json:"operation"`
	StationID          *int64  `json:"station_id"`
	ControlTypeID      *int64  `json:"control_type_id"`
	ExecutorID         *int64  `json:"executor_id"`
	OrganizationID     *int64  `json:"organization_id"`
	StatusID           int64   `json:"status_id"`
	TechRequirements   string  `json:"tech_requirements"`
	SurfacePreparation string  `json:"surface_preparation"`
	EnglishRequired    bool    `json:"english_required"`
	Notes              string  `json:"notes"`
	Priority           int     `json:"priority"`
	Deadline           *string `json:"deadline"`
}

// CreateRequest validates the input, persists the request with its CREATE
// history entry, then fans out notifications, realtime and search indexing.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput, actor string) (store.RequestRow, error) {
	if strings.TrimSpace(input.OrderNumber) == "" {
		return store.RequestRow{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "order_number is required", nil)
	}
	if strings.TrimSpace(input.Drawing) == "" {
		return store.RequestRow{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "drawing is required", nil)
	}
	if input.Quantity < 0 {
		return store.RequestRow{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "quantity must not be negative", nil)
	}
	priority := input.Priority
	if priority == 0 {
		priority = 2
	}
	if priority < 1 || priority > 3 {
		return store.RequestRow{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "priority must be between 1 and 3", nil)
	}

	date, err := parseDate(strValue(input.Date))
	if err != nil {
		return store.RequestRow{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	deadline, err := parseDate(strValue(input.Deadline))
	if err != nil {
		return store.RequestRow{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	statusID := input.StatusID
	if statusID == 0 {
		status, err := s.store.StatusByCode(ctx, "new")
		if err != nil {
			return store.RequestRow{}, fmt.Errorf("default status: %w", err)
		}
		statusID = status.ID
	}

	item := store.Request{
		Date:               date,
		OrderNumber:        input.OrderNumber,
		Drawing:            input.Drawing,
		Certificate:        input.Certificate,
		Material:           input.Material,
		Quantity:           input.Quantity,
		Operation:          input.Operation,
		StationID:          input.StationID,
		ControlTypeID:      input.ControlTypeID,
		ExecutorID:         input.ExecutorID,
		OrganizationID:     input.OrganizationID,
		StatusID:           statusID,
		TechRequirements:   input.TechRequirements,
		SurfacePreparation: input.SurfacePreparation,
		EnglishRequired:    input.EnglishRequired,
		Notes:              input.Notes,
		Priority:           priority,
		Deadline:           deadline,
		CreatedBy:          actor,
	}

	created, err := s.store.CreateRequest(ctx, item)
	if err != nil {
		return store.RequestRow{}, err
	}

	row, err := s.store.GetRequestRow(ctx, created.ID)
	if err != nil {
		return store.RequestRow{}, err
	}

	s.afterCreate(row)
	return row, nil
}

// afterCreate runs the post-commit side effects. Failures never surface to
// the caller; the request itself is already durable.
func (s *Service) afterCreate(row store.RequestRow) {
	if s.notifier != nil {
		go s.notifier.NotifyCreated(context.Background(), row)
	}
	if s.hub != nil {
		s.hub.Broadcast("request_created", row)
	}
	s.indexRequest(row)
	s.invalidateStats(context.Background())
}

func (s *Service) indexRequest(row store.RequestRow) {
	if s.searcher == nil {
		return
	}
	s.searcher.IndexRequest(search.RequestRecord{
		ID:             row.ID,
		RequestNumber:  row.RequestNumber,
		OrderNumber:    row.OrderNumber,
		Drawing:        row.Drawing,
		Material:       row.Material,
		ProtocolNumber: row.ProtocolNumber,
		Notes:          row.Notes,
		StatusName:     row.StatusName,
		ExecutorName:   row.ExecutorName,
	})
}

// UpdateRequestInput carries only the fields the caller supplied; nil means
// leave unchanged.
type UpdateRequestInput struct {
	Date                    *string `json:"date"`
	OrderNumber             *string `json:"order_number"`
	Drawing                 *string `json:"drawing"`
	Certificate             *string `json:"certificate"`
	Material                *string `json:"material"`
	Quantity                *int    `json:"quantity"`
	Operation               *string `json:"operation"`
	StationID               *int64  `json:"station_id"`
	ControlTypeID           *int64  `json:"control_type_id"`
	ExecutorID              *int64  `json:"executor_id"`
	OrganizationID          *int64  `json:"organization_id"`
	StatusID                *int64  `json:"status_id"`
	TechRequirements        *string `json:"tech_requirements"`
	SurfacePreparation      *string `json:"surface_preparation"`
	EnglishRequired         *bool   `json:"english_required"`
	Notes                   *string `json:"notes"`
	Priority                *int    `json:"priority"`
	Deadline                *string `json:"deadline"`
	ControlDate             *string `json:"control_date"`
	ProtocolNumber          *string `json:"protocol_number"`
	ProtocolDate            *string `json:"protocol_date"`
	DefectsFound            *bool   `json:"defects_found"`
	RouteCardMark           *string `json:"route_card_mark"`
	ProductionMark          *string `json:"production_mark"`
	CorrectionLetterNumber  *string `json:"correction_letter_number"`
	CorrectedProtocolNumber *string `json:"corrected_protocol_number"`
	CorrectionCompleted     *bool   `json:"correction_completed"`
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func renderBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func renderDate(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.Format("2006-01-02")
}

func renderID(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// UpdateRequest applies a partial update with per-field history, enforcing
// the status transition policy, then fans out side effects.
func (s *Service) UpdateRequest(ctx context.Context, requestID int64, input UpdateRequestInput, actor string) (store.RequestRow, error) {
	current, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return store.RequestRow{}, err
	}

	next := current
	var changes []store.FieldChange

	changeStr := func(field string, target *string, value *string) {
		if value == nil || *target == *value {
			return
		}
		changes = append(changes, store.FieldChange{Field: field, OldValue: *target, NewValue: *value})
		*target = *value
	}
	changeInt := func(field string, target *int, value *int) {
		if value == nil || *target == *value {
			return
		}
		changes = append(changes, store.FieldChange{Field: field, OldValue: strconv.Itoa(*target), NewValue: strconv.Itoa(*value)})
		*target = *value
	}
	changeBool := func(field string, target *bool, value *bool) {
		if value == nil || *target == *value {
			return
		}
		changes = append(changes, store.FieldChange{Field: field, OldValue: renderBool(*target), NewValue: renderBool(*value)})
		*target = *value
	}
	changeID := func(field string, target **int64, value *int64) {
		if value == nil {
			return
		}
		old := renderID(*target)
		now := strconv.FormatInt(*value, 10)
		if old == now {
			return
		}
		changes = append(changes, store.FieldChange{Field: field, OldValue: old, NewValue: now})
		*target = value
	}
	changeDate := func(field string, target **time.Time, value *string) error {
		if value == nil {
			return nil
		}
		parsed, err := parseDate(*value)
		if err != nil {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
		old := renderDate(*target)
		now := renderDate(parsed)
		if old == now {
			return nil
		}
		changes = append(changes, store.FieldChange{Field: field, OldValue: old, NewValue: now})
		*target = parsed
		return nil
	}

	if err := changeDate("date", &next.Date, input.Date); err != nil {
		return store.RequestRow{}, err
	}
	changeStr("order_number", &next.OrderNumber, input.OrderNumber)
	changeStr("drawing", &next.Drawing, input.Drawing)
	changeStr("certificate", &next.Certificate, input.Certificate)
	changeStr("material", &next.Material, input.Material)
	changeInt("quantity", &next.Quantity, input.Quantity)
	changeStr("operation", &next.Operation, input.Operation)
	changeID("station_id", &next.StationID, input.StationID)
	changeID("control_type_id", &next.ControlTypeID, input.ControlTypeID)
	changeID("executor_id", &next.ExecutorID, input.ExecutorID)
	changeID("organization_id", &next.OrganizationID, input.OrganizationID)
	changeStr("tech_requirements", &next.TechRequirements, input.TechRequirements)
	changeStr("surface_preparation", &next.SurfacePreparation, input.SurfacePreparation)
	changeBool("english_required", &next.EnglishRequired, input.EnglishRequired)
	changeStr("notes", &next.Notes, input.Notes)
	if input.Priority != nil && (*input.Priority < 1 || *input.Priority > 3) {
		return store.RequestRow{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "priority must be between 1 and 3", nil)
	}
	changeInt("priority", &next.Priority, input.Priority)
	if err := changeDate("deadline", &next.Deadline, input.Deadline); err != nil {
		return store.RequestRow{}, err
	}
	if err := changeDate("control_date", &next.ControlDate, input.ControlDate); err != nil {
		return store.RequestRow{}, err
	}
	changeStr("protocol_number", &next.ProtocolNumber, input.ProtocolNumber)
	if err := changeDate("protocol_date", &next.ProtocolDate, input.ProtocolDate); err != nil {
		return store.RequestRow{}, err
	}
	changeBool("defects_found", &next.DefectsFound, input.DefectsFound)
	changeStr("route_card_mark", &next.RouteCardMark, input.RouteCardMark)
	changeStr("production_mark", &next.ProductionMark, input.ProductionMark)
	changeStr("correction_letter_number", &next.CorrectionLetterNumber, input.CorrectionLetterNumber)
	changeStr("corrected_protocol_number", &next.CorrectedProtocolNumber, input.CorrectedProtocolNumber)
	changeBool("correction_completed", &next.CorrectionCompleted, input.CorrectionCompleted)

	// Status moves bypass the field diff: they get their own history entry
	// and must pass the transition policy.
	var statusChange *store.StatusChange
	var oldStatus, newStatus store.Status
	if input.StatusID != nil && *input.StatusID != current.StatusID {
		oldStatus, err = s.store.GetStatus(ctx, current.StatusID)
		if err != nil {
			return store.RequestRow{}, fmt.Errorf("load current status: %w", err)
		}
		newStatus, err = s.store.GetStatus(ctx, *input.StatusID)
		if err != nil {
			return store.RequestRow{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown status", nil)
		}
		if !transitionAllowed(oldStatus, newStatus) {
			return store.RequestRow{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
				fmt.Sprintf("transition from %s to %s is not allowed", oldStatus.Code, newStatus.Code),
				map[string]any{
					"from":    oldStatus.Code,
					"to":      newStatus.Code,
					"allowed": oldStatus.AllowedTransitions,
				})
		}
		next.StatusID = newStatus.ID
		statusChange = &store.StatusChange{OldStatusID: oldStatus.ID, NewStatusID: newStatus.ID}
	}

	if len(changes) == 0 && statusChange == nil {
		return s.store.GetRequestRow(ctx, requestID)
	}

	if err := s.store.UpdateRequest(ctx, next, changes, statusChange, actor); err != nil {
		return store.RequestRow{}, err
	}

	row, err := s.store.GetRequestRow(ctx, requestID)
	if err != nil {
		return store.RequestRow{}, err
	}

	s.afterUpdate(row, statusChange, oldStatus, newStatus)
	return row, nil
}

// transitionAllowed fails closed: an empty or malformed allow-set permits
// nothing.
func transitionAllowed(from, to store.Status) bool {
	for _, code := range from.AllowedTransitions {
		if code == to.Code {
			return true
		}
	}
	return false
}

func (s *Service) afterUpdate(row store.RequestRow, statusChange *store.StatusChange, oldStatus, newStatus store.Status) {
	if statusChange != nil {
		if s.notifier != nil {
			go s.notifier.NotifyStatusChanged(context.Background(), row, oldStatus, newStatus)
		}
		if s.hub != nil {
			s.hub.Broadcast("status_changed", map[string]any{
				"request":    row,
				"old_status": oldStatus.Code,
				"new_status": newStatus.Code,
			})
		}
	} else if s.hub != nil {
		s.hub.Broadcast("request_updated", row)
	}
	s.indexRequest(row)
	s.invalidateStats(context.Background())
}

// --- Comments ---

func (s *Service) ListComments(ctx context.Context, requestID int64) ([]store.Comment, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, requestID)
}

func (s *Service) AddComment(ctx context.Context, requestID int64, text string, isInternal bool, actor string) (store.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return store.Comment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment_text is required", nil)
	}
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return store.Comment{}, err
	}

	item := store.Comment{RequestID: requestID, Text: text, CreatedBy: actor, IsInternal: isInternal}
	id, err := s.store.CreateComment(ctx, item)
	if err != nil {
		return store.Comment{}, err
	}
	item.ID = id
	item.CreatedAt = time.Now()

	if s.hub != nil {
		s.hub.Broadcast("comment_added", item)
	}
	return item, nil
}

// --- Documents ---

func (s *Service) ListDocuments(ctx context.Context, requestID int64) ([]store.Document, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, requestID)
}

// SaveDocument streams the upload to blob storage and records it with its
// FILE_UPLOAD history entry.
func (s *Service) SaveDocument(ctx context.Context, requestID int64, originalName, contentType string, size int64, r io.Reader, actor string) (store.Document, error) {
	if strings.TrimSpace(originalName) == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file name is required", nil)
	}
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return store.Document{}, err
	}

	key := blob.NewKey(requestID, originalName)
	if err := s.blobs.Save(ctx, key, r, size, contentType); err != nil {
		return store.Document{}, fmt.Errorf("store upload: %w", err)
	}

	item := store.Document{
		RequestID:    requestID,
		StorageKey:   key,
		OriginalName: originalName,
		FileType:     contentType,
		FileSize:     size,
		UploadedBy:   actor,
	}
	id, err := s.store.CreateDocument(ctx, item)
	if err != nil {
		// The blob is orphaned; drop it so storage does not leak.
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			log.Printf("app: delete orphaned blob %s: %v", key, derr)
		}
		return store.Document{}, err
	}
	item.ID = id
	item.UploadedAt = time.Now()

	if s.hub != nil {
		s.hub.Broadcast("document_uploaded", item)
	}
	return item, nil
}

func (s *Service) OpenDocument(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.blobs.Open(ctx, key)
}

// --- Templates ---

func (s *Service) ListTemplates(ctx context.Context) ([]store.RequestTemplate, error) {
	return s.store.ListTemplates(ctx)
}

func (s *Service) CreateTemplate(ctx context.Context, item store.RequestTemplate) (store.RequestTemplate, error) {
	if strings.TrimSpace(item.TemplateName) == "" {
		return store.RequestTemplate{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "template_name is required", nil)
	}
	id, err := s.store.CreateTemplate(ctx, item)
	if err != nil {
		return store.RequestTemplate{}, err
	}
	item.ID = id
	item.CreatedAt = time.Now()
	return item, nil
}

// --- Search ---

func (s *Service) Search(ctx context.Context, text string, limit, offset int) search.Response {
	if s.searcher == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.searcher.Search(search.Query{Text: text, Limit: limit, Offset: offset})
}

// --- Notifications ---

func (s *Service) NotificationSettings(ctx context.Context, username string) (store.NotificationSettings, error) {
	return s.store.GetSettings(ctx, username)
}

func (s *Service) UpdateNotificationSettings(ctx context.Context, username string, update store.SettingsUpdate) (store.NotificationSettings, error) {
	return s.store.UpdateSettings(ctx, username, update)
}

func (s *Service) SubscribePush(ctx context.Context, userID, subscription string) error {
	if strings.TrimSpace(subscription) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "subscription is required", nil)
	}
	return s.store.UpsertPushSubscription(ctx, userID, subscription)
}

func (s *Service) UnsubscribePush(ctx context.Context, userID string) error {
	return s.store.DeactivatePushSubscription(ctx, userID)
}

func (s *Service) SendTestNotification(ctx context.Context, name string) (int, int, error) {
	if s.notifier == nil {
		return 0, 0, domainError(http.StatusServiceUnavailable, "NOTIFY_UNAVAILABLE", "Notifications not configured", nil)
	}
	return s.notifier.SendTestNotification(ctx, name)
}

func (s *Service) BroadcastMessage(ctx context.Context, subject, message string, recipients notify.Recipients) (int, int, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(message) == "" {
		return 0, 0, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "subject and message are required", nil)
	}
	if s.notifier == nil {
		return 0, 0, domainError(http.StatusServiceUnavailable, "NOTIFY_UNAVAILABLE", "Notifications not configured", nil)
	}
	return s.notifier.Broadcast(ctx, subject, message, recipients)
}

func (s *Service) NotificationLog(ctx context.Context, requestID int64, notifType string, limit int) ([]store.NotificationLogEntry, error) {
	return s.store.ListNotificationLog(ctx, requestID, notifType, limit)
}

func (s *Service) NotificationStats(ctx context.Context, since time.Time) ([]store.NotificationTypeStat, error) {
	return s.store.NotificationStats(ctx, since)
}

// RealtimeStatus reports the websocket channel state.
func (s *Service) RealtimeStatus() map[string]any {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	return map[string]any{"enabled": s.hub != nil, "clients": clients}
}
