package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Dictionaries ---

func (s *PostgresStore) ListStatuses(ctx context.Context) ([]Status, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, color, icon, is_final, allowed_transitions, sort_order, is_active
		FROM statuses
		WHERE is_active
		ORDER BY sort_order
	`)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	items := make([]Status, 0)
	for rows.Next() {
		item, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner) (Status, error) {
	var item Status
	var transitions []byte
	if err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Color, &item.Icon,
		&item.IsFinal, &transitions, &item.SortOrder, &item.IsActive); err != nil {
		return Status{}, fmt.Errorf("scan status: %w", err)
	}
	item.AllowedTransitions = decodeTransitions(transitions)
	return item, nil
}

// decodeTransitions fails closed: malformed JSON yields no transitions.
func decodeTransitions(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return []string{}
	}
	return codes
}

func (s *PostgresStore) GetStatus(ctx context.Context, statusID int64) (Status, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, color, icon, is_final, allowed_transitions, sort_order, is_active
		FROM statuses
		WHERE id=$1
	`, statusID)
	return scanStatus(row)
}

func (s *PostgresStore) StatusByCode(ctx context.Context, code string) (Status, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, color, icon, is_final, allowed_transitions, sort_order, is_active
		FROM statuses
		WHERE code=$1
	`, code)
	return scanStatus(row)
}

func (s *PostgresStore) ListControlTypes(ctx context.Context) ([]ControlType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, full_name, is_active
		FROM control_types
		WHERE is_active
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("list control types: %w", err)
	}
	defer rows.Close()

	items := make([]ControlType, 0)
	for rows.Next() {
		var item ControlType
		if err := rows.Scan(&item.ID, &item.Code, &item.Name, &item.FullName, &item.IsActive); err != nil {
			return nil, fmt.Errorf("scan control type: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate control types: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListStations(ctx context.Context) ([]Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, is_active FROM stations WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	items := make([]Station, 0)
	for rows.Next() {
		var item Station
		if err := rows.Scan(&item.ID, &item.Name, &item.IsActive); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, is_active FROM organizations WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	items := make([]Organization, 0)
	for rows.Next() {
		var item Organization
		if err := rows.Scan(&item.ID, &item.Name, &item.IsActive); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListExecutors(ctx context.Context) ([]Executor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, short_name, COALESCE(email, ''), is_active
		FROM executors
		WHERE is_active
		ORDER BY full_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list executors: %w", err)
	}
	defer rows.Close()

	items := make([]Executor, 0)
	for rows.Next() {
		var item Executor
		if err := rows.Scan(&item.ID, &item.FullName, &item.ShortName, &item.Email, &item.IsActive); err != nil {
			return nil, fmt.Errorf("scan executor: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executors: %w", err)
	}
	return items, nil
}

// --- Requests ---

const requestColumns = `
	r.id, r.request_number, r.date, r.order_number, r.drawing, r.certificate, r.material,
	r.quantity, r.operation, r.station_id, r.control_type_id, r.executor_id, r.organization_id,
	r.status_id, r.tech_requirements, r.surface_preparation, r.english_required, r.notes,
	r.priority, r.deadline, r.control_date, r.protocol_number, r.protocol_date, r.defects_found,
	r.route_card_mark, r.production_mark, r.correction_letter_number, r.corrected_protocol_number,
	r.correction_completed, r.created_at, r.updated_at, r.created_by, r.updated_by`

func scanRequestFields(row rowScanner, item *Request, extra ...any) error {
	dest := []any{
		&item.ID, &item.RequestNumber, &item.Date, &item.OrderNumber, &item.Drawing,
		&item.Certificate, &item.Material, &item.Quantity, &item.Operation,
		&item.StationID, &item.ControlTypeID, &item.ExecutorID, &item.OrganizationID,
		&item.StatusID, &item.TechRequirements, &item.SurfacePreparation, &item.EnglishRequired,
		&item.Notes, &item.Priority, &item.Deadline, &item.ControlDate, &item.ProtocolNumber,
		&item.ProtocolDate, &item.DefectsFound, &item.RouteCardMark, &item.ProductionMark,
		&item.CorrectionLetterNumber, &item.CorrectedProtocolNumber, &item.CorrectionCompleted,
		&item.CreatedAt, &item.UpdatedAt, &item.CreatedBy, &item.UpdatedBy,
	}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

// CreateRequest inserts the request, assigns its request number and writes the
// CREATE history entry in one transaction: the request is never visible
// without its audit trail.
func (s *PostgresStore) CreateRequest(ctx context.Context, item Request) (Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Request{}, fmt.Errorf("begin create request: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO requests (
			date, order_number, drawing, certificate, material, quantity, operation,
			station_id, control_type_id, executor_id, organization_id, status_id,
			tech_requirements, surface_preparation, english_required, notes, priority,
			deadline, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
		RETURNING id, created_at, updated_at
	`, item.Date, item.OrderNumber, item.Drawing, item.Certificate, item.Material,
		item.Quantity, item.Operation, item.StationID, item.ControlTypeID, item.ExecutorID,
		item.OrganizationID, item.StatusID, item.TechRequirements, item.SurfacePreparation,
		item.EnglishRequired, item.Notes, item.Priority, item.Deadline, item.CreatedBy,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Request{}, fmt.Errorf("insert request: %w", err)
	}

	item.RequestNumber = fmt.Sprintf("REQ-%06d", item.ID)
	if _, err := tx.ExecContext(ctx, `UPDATE requests SET request_number=$2 WHERE id=$1`, item.ID, item.RequestNumber); err != nil {
		return Request{}, fmt.Errorf("assign request number: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (request_id, action_type, comment, actor)
		VALUES ($1, 'CREATE', 'Request created', $2)
	`, item.ID, item.CreatedBy); err != nil {
		return Request{}, fmt.Errorf("insert create history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Request{}, fmt.Errorf("commit create request: %w", err)
	}
	item.UpdatedBy = item.CreatedBy
	return item, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID int64) (Request, error) {
	var item Request
	err := scanRequestFields(s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests r
		WHERE r.id=$1
	`, requestID), &item)
	if err != nil {
		return Request{}, err
	}
	return item, nil
}

const requestJoins = `
	LEFT JOIN statuses s ON r.status_id = s.id
	LEFT JOIN stations st ON r.station_id = st.id
	LEFT JOIN control_types ct ON r.control_type_id = ct.id
	LEFT JOIN executors e ON r.executor_id = e.id
	LEFT JOIN organizations o ON r.organization_id = o.id`

const requestRowColumns = requestColumns + `,
	COALESCE(s.code, ''), COALESCE(s.name, ''), COALESCE(s.color, ''), COALESCE(s.icon, ''),
	COALESCE(st.name, ''), COALESCE(ct.name, ''), COALESCE(ct.full_name, ''),
	COALESCE(e.full_name, ''), COALESCE(e.email, ''), COALESCE(o.name, ''),
	(SELECT COUNT(*) FROM documents d WHERE d.request_id = r.id),
	(SELECT COUNT(*) FROM comments c WHERE c.request_id = r.id)`

func scanRequestRow(row rowScanner) (RequestRow, error) {
	var item RequestRow
	err := scanRequestFields(row, &item.Request,
		&item.StatusCode, &item.StatusName, &item.StatusColor, &item.StatusIcon,
		&item.StationName, &item.ControlTypeName, &item.ControlTypeFull,
		&item.ExecutorName, &item.ExecutorEmail, &item.OrganizationName,
		&item.DocumentsCount, &item.CommentsCount)
	if err != nil {
		return RequestRow{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetRequestRow(ctx context.Context, requestID int64) (RequestRow, error) {
	return scanRequestRow(s.db.QueryRowContext(ctx, `
		SELECT `+requestRowColumns+`
		FROM requests r`+requestJoins+`
		WHERE r.id=$1
	`, requestID))
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]RequestRow, error) {
	query := `SELECT ` + requestRowColumns + ` FROM requests r` + requestJoins + ` WHERE 1=1`
	args := []any{}

	addFilter := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", clause, len(args))
	}
	if filter.StatusID != 0 {
		addFilter("r.status_id", filter.StatusID)
	}
	if filter.ControlTypeID != 0 {
		addFilter("r.control_type_id", filter.ControlTypeID)
	}
	if filter.StationID != 0 {
		addFilter("r.station_id", filter.StationID)
	}
	if filter.ExecutorID != 0 {
		addFilter("r.executor_id", filter.ExecutorID)
	}
	if filter.Priority != 0 {
		addFilter("r.priority", filter.Priority)
	}
	query += " ORDER BY r.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	items := make([]RequestRow, 0)
	for rows.Next() {
		item, err := scanRequestRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}

// UpdateRequest persists the merged request together with its history entries:
// one UPDATE row per changed field plus one STATUS_CHANGE row when the status
// moved. All writes share a transaction so the audit trail is all-or-nothing.
func (s *PostgresStore) UpdateRequest(ctx context.Context, item Request, changes []FieldChange, statusChange *StatusChange, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update request: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE requests SET
			date=$2, order_number=$3, drawing=$4, certificate=$5, material=$6,
			quantity=$7, operation=$8, station_id=$9, control_type_id=$10,
			executor_id=$11, organization_id=$12, status_id=$13, tech_requirements=$14,
			surface_preparation=$15, english_required=$16, notes=$17, priority=$18,
			deadline=$19, control_date=$20, protocol_number=$21, protocol_date=$22,
			defects_found=$23, route_card_mark=$24, production_mark=$25,
			correction_letter_number=$26, corrected_protocol_number=$27,
			correction_completed=$28, updated_by=$29, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Date, item.OrderNumber, item.Drawing, item.Certificate, item.Material,
		item.Quantity, item.Operation, item.StationID, item.ControlTypeID, item.ExecutorID,
		item.OrganizationID, item.StatusID, item.TechRequirements, item.SurfacePreparation,
		item.EnglishRequired, item.Notes, item.Priority, item.Deadline, item.ControlDate,
		item.ProtocolNumber, item.ProtocolDate, item.DefectsFound, item.RouteCardMark,
		item.ProductionMark, item.CorrectionLetterNumber, item.CorrectedProtocolNumber,
		item.CorrectionCompleted, actor)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	for _, change := range changes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history (request_id, action_type, field_name, old_value, new_value, actor)
			VALUES ($1, 'UPDATE', $2, $3, $4, $5)
		`, item.ID, change.Field, change.OldValue, change.NewValue, actor); err != nil {
			return fmt.Errorf("insert update history: %w", err)
		}
	}

	if statusChange != nil {
		comment := fmt.Sprintf("Status changed from %d to %d", statusChange.OldStatusID, statusChange.NewStatusID)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history (request_id, action_type, old_value, new_value, comment, actor)
			VALUES ($1, 'STATUS_CHANGE', $2, $3, $4, $5)
		`, item.ID, fmt.Sprint(statusChange.OldStatusID), fmt.Sprint(statusChange.NewStatusID), comment, actor); err != nil {
			return fmt.Errorf("insert status change history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update request: %w", err)
	}
	return nil
}

// AllowedTransitions resolves the statuses reachable from the request's
// current status, ordered by sort order. Unknown codes are ignored; an empty
// or malformed allow-set yields an empty list.
func (s *PostgresStore) AllowedTransitions(ctx context.Context, requestID int64) ([]Status, error) {
	var transitions []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT s.allowed_transitions
		FROM requests r
		JOIN statuses s ON r.status_id = s.id
		WHERE r.id=$1
	`, requestID).Scan(&transitions)
	if err != nil {
		return nil, err
	}

	codes := decodeTransitions(transitions)
	if len(codes) == 0 {
		return []Status{}, nil
	}

	placeholders := make([]string, len(codes))
	args := make([]any, len(codes))
	for i, code := range codes {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = code
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, color, icon, is_final, allowed_transitions, sort_order, is_active
		FROM statuses
		WHERE code IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY sort_order
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list allowed transitions: %w", err)
	}
	defer rows.Close()

	items := make([]Status, 0, len(codes))
	for rows.Next() {
		item, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowed transitions: %w", err)
	}
	return items, nil
}

// --- History ---

func (s *PostgresStore) ListHistory(ctx context.Context, requestID int64, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, action_type, field_name, old_value, new_value, comment, actor, created_at
		FROM history
		WHERE request_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, requestID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryEntry, 0)
	for rows.Next() {
		var item HistoryEntry
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ActionType, &item.FieldName,
			&item.OldValue, &item.NewValue, &item.Comment, &item.Actor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

// --- Comments and documents ---

func (s *PostgresStore) CreateComment(ctx context.Context, item Comment) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create comment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO comments (request_id, comment_text, created_by, is_internal)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, item.RequestID, item.Text, item.CreatedBy, item.IsInternal).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert comment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (request_id, action_type, comment, actor)
		VALUES ($1, 'COMMENT', 'Comment added', $2)
	`, item.RequestID, item.CreatedBy); err != nil {
		return 0, fmt.Errorf("insert comment history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create comment: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, requestID int64) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, comment_text, created_by, is_internal, created_at
		FROM comments
		WHERE request_id=$1
		ORDER BY created_at DESC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.RequestID, &item.Text, &item.CreatedBy, &item.IsInternal, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, item Document) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO documents (request_id, storage_key, original_name, file_type, file_size, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, item.RequestID, item.StorageKey, item.OriginalName, item.FileType, item.FileSize, item.UploadedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (request_id, action_type, comment, actor)
		VALUES ($1, 'FILE_UPLOAD', $2, $3)
	`, item.RequestID, "File uploaded: "+item.OriginalName, item.UploadedBy); err != nil {
		return 0, fmt.Errorf("insert upload history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create document: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, requestID int64) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, storage_key, original_name, file_type, file_size, uploaded_by, uploaded_at
		FROM documents
		WHERE request_id=$1
		ORDER BY uploaded_at DESC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.RequestID, &item.StorageKey, &item.OriginalName,
			&item.FileType, &item.FileSize, &item.UploadedBy, &item.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// --- Templates ---

func (s *PostgresStore) CreateTemplate(ctx context.Context, item RequestTemplate) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO request_templates (template_name, order_number, drawing, material,
			station_id, control_type_id, tech_requirements, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, item.TemplateName, item.OrderNumber, item.Drawing, item.Material,
		item.StationID, item.ControlTypeID, item.TechRequirements, item.Notes, item.CreatedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert template: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]RequestTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.template_name, t.order_number, t.drawing, t.material,
			t.station_id, t.control_type_id, t.tech_requirements, t.notes,
			t.created_by, t.created_at,
			COALESCE(st.name, ''), COALESCE(ct.name, '')
		FROM request_templates t
		LEFT JOIN stations st ON t.station_id = st.id
		LEFT JOIN control_types ct ON t.control_type_id = ct.id
		ORDER BY t.template_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	items := make([]RequestTemplate, 0)
	for rows.Next() {
		var item RequestTemplate
		if err := rows.Scan(&item.ID, &item.TemplateName, &item.OrderNumber, &item.Drawing,
			&item.Material, &item.StationID, &item.ControlTypeID, &item.TechRequirements,
			&item.Notes, &item.CreatedBy, &item.CreatedAt, &item.StationName, &item.ControlTypeName); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return items, nil
}

// --- Stats ---

// GetStats aggregates the dashboard counters with a fixed read order:
// totals, by status, by control type, by executor, by priority.
func (s *PostgresStore) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE s.code IN ('new', 'in_progress', 'testing')),
			COUNT(*) FILTER (WHERE s.code = 'completed' AND r.created_at >= NOW() - INTERVAL '30 days'),
			COUNT(*) FILTER (WHERE s.code = 'correction_required'),
			COUNT(*) FILTER (WHERE r.deadline < CURRENT_DATE AND s.code NOT IN ('completed', 'cancelled', 'archived'))
		FROM requests r
		JOIN statuses s ON r.status_id = s.id
		WHERE s.code != 'archived'
	`).Scan(&stats.Total, &stats.Active, &stats.CompletedMonth, &stats.Corrections, &stats.Overdue)
	if err != nil {
		return Stats{}, fmt.Errorf("stats totals: %w", err)
	}

	statusRows, err := s.db.QueryContext(ctx, `
		SELECT s.name, s.color, s.icon, COUNT(r.id)
		FROM statuses s
		LEFT JOIN requests r ON r.status_id = s.id
		WHERE s.is_active
		GROUP BY s.id
		ORDER BY s.sort_order
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats by status: %w", err)
	}
	defer statusRows.Close()
	stats.ByStatus = make([]StatusCount, 0)
	for statusRows.Next() {
		var item StatusCount
		if err := statusRows.Scan(&item.Name, &item.Color, &item.Icon, &item.Count); err != nil {
			return Stats{}, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus = append(stats.ByStatus, item)
	}
	if err := statusRows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate status counts: %w", err)
	}

	typeRows, err := s.db.QueryContext(ctx, `
		SELECT ct.name, ct.code, COUNT(r.id)
		FROM control_types ct
		LEFT JOIN requests r ON r.control_type_id = ct.id
		WHERE ct.is_active
		GROUP BY ct.id
		ORDER BY ct.code
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats by control type: %w", err)
	}
	defer typeRows.Close()
	stats.ByControlType = make([]ControlTypeCount, 0)
	for typeRows.Next() {
		var item ControlTypeCount
		if err := typeRows.Scan(&item.Name, &item.Code, &item.Count); err != nil {
			return Stats{}, fmt.Errorf("scan control type count: %w", err)
		}
		stats.ByControlType = append(stats.ByControlType, item)
	}
	if err := typeRows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate control type counts: %w", err)
	}

	executorRows, err := s.db.QueryContext(ctx, `
		SELECT e.full_name, e.short_name, COUNT(r.id),
			COUNT(r.id) FILTER (WHERE s.code = 'completed')
		FROM executors e
		LEFT JOIN requests r ON r.executor_id = e.id
		LEFT JOIN statuses s ON r.status_id = s.id
		WHERE e.is_active
		GROUP BY e.id
		ORDER BY COUNT(r.id) DESC
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats by executor: %w", err)
	}
	defer executorRows.Close()
	stats.ByExecutor = make([]ExecutorCount, 0)
	for executorRows.Next() {
		var item ExecutorCount
		if err := executorRows.Scan(&item.FullName, &item.ShortName, &item.Count, &item.Completed); err != nil {
			return Stats{}, fmt.Errorf("scan executor count: %w", err)
		}
		stats.ByExecutor = append(stats.ByExecutor, item)
	}
	if err := executorRows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate executor counts: %w", err)
	}

	priorityRows, err := s.db.QueryContext(ctx, `
		SELECT r.priority, COUNT(*)
		FROM requests r
		JOIN statuses s ON r.status_id = s.id
		WHERE s.code != 'archived'
		GROUP BY r.priority
		ORDER BY r.priority
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats by priority: %w", err)
	}
	defer priorityRows.Close()
	stats.ByPriority = make([]PriorityCount, 0)
	for priorityRows.Next() {
		var item PriorityCount
		if err := priorityRows.Scan(&item.Priority, &item.Count); err != nil {
			return Stats{}, fmt.Errorf("scan priority count: %w", err)
		}
		item.Name = PriorityName(item.Priority)
		stats.ByPriority = append(stats.ByPriority, item)
	}
	if err := priorityRows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate priority counts: %w", err)
	}

	return stats, nil
}

// PriorityName maps the 1..3 priority scale to its display name.
func PriorityName(priority int) string {
	switch priority {
	case 1:
		return "High"
	case 3:
		return "Low"
	default:
		return "Medium"
	}
}
