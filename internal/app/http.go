package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ndtdesk/api/internal/notify"
	"ndtdesk/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	wsHandler  http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string, wsHandler http.Handler) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, wsHandler: wsHandler}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// userName identifies the acting user from the proxy-provided header.
func userName(r *http.Request) string {
	name := strings.TrimSpace(r.Header.Get("X-User-Name"))
	if name == "" {
		return "anonymous"
	}
	return name
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if strings.HasPrefix(r.URL.Path, "/ws") && s.wsHandler != nil {
		s.wsHandler.ServeHTTP(w, r)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/uploads/") {
		s.handleDownload(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/dictionaries" {
		payload, err := s.service.Dictionaries(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load dictionaries", nil)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/stats" {
		payload, err := s.service.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load stats", nil)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/requests/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit, ok := queryInt(w, r, "limit", 20)
		if !ok {
			return
		}
		offset, ok := queryInt(w, r, "offset", 0)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q, limit, offset))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/requests" {
		s.handleListRequests(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/requests" {
		var body CreateRequestInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		row, err := s.service.CreateRequest(r.Context(), body, userName(r))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, row)
		return
	}

	if parts := splitPath(r.URL.Path); len(parts) >= 3 && parts[0] == "api" && parts[1] == "requests" {
		requestID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "request id must be an integer", nil)
			return
		}
		s.handleRequestSubtree(w, r, requestID, parts[3:])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/templates" {
		items, err := s.service.ListTemplates(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list templates", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"templates": items})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/templates" {
		var body store.RequestTemplate
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		body.CreatedBy = userName(r)
		created, err := s.service.CreateTemplate(r.Context(), body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	// Aliases kept for the service worker, which registers against the
	// short push paths.
	if r.Method == http.MethodPost && r.URL.Path == "/api/push/subscribe" {
		s.handlePushSubscribe(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/push/unsubscribe" {
		s.handlePushUnsubscribe(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/notifications/") {
		s.handleNotifications(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleListRequests(w http.ResponseWriter, r *http.Request) {
	var filter store.RequestFilter
	query := r.URL.Query()

	parseID := func(name string) (int64, bool) {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			return 0, true
		}
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be an integer", nil)
			return 0, false
		}
		return parsed, true
	}

	var ok bool
	if filter.StatusID, ok = parseID("status_id"); !ok {
		return
	}
	if filter.ControlTypeID, ok = parseID("control_type_id"); !ok {
		return
	}
	if filter.StationID, ok = parseID("station_id"); !ok {
		return
	}
	if filter.ExecutorID, ok = parseID("executor_id"); !ok {
		return
	}
	priority, ok := queryInt(w, r, "priority", 0)
	if !ok {
		return
	}
	filter.Priority = priority

	items, err := s.service.ListRequests(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list requests", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": items})
}

func (s *HTTPServer) handleRequestSubtree(w http.ResponseWriter, r *http.Request, requestID int64, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		detail, err := s.service.GetRequestDetail(r.Context(), requestID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, detail)

	case len(rest) == 0 && r.Method == http.MethodPut:
		var body UpdateRequestInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		row, err := s.service.UpdateRequest(r.Context(), requestID, body, userName(r))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, row)

	case len(rest) == 1 && (rest[0] == "allowed-transitions" || rest[0] == "transitions") && r.Method == http.MethodGet:
		items, err := s.service.AllowedTransitions(r.Context(), requestID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transitions": items})

	case len(rest) == 1 && rest[0] == "history" && r.Method == http.MethodGet:
		limit, ok := queryInt(w, r, "limit", 50)
		if !ok {
			return
		}
		items, err := s.service.History(r.Context(), requestID, limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": items})

	case len(rest) == 1 && rest[0] == "comments" && r.Method == http.MethodGet:
		items, err := s.service.ListComments(r.Context(), requestID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comments": items})

	case len(rest) == 1 && rest[0] == "comments" && r.Method == http.MethodPost:
		var body struct {
			Text       string `json:"comment_text"`
			IsInternal bool   `json:"is_internal"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.AddComment(r.Context(), requestID, body.Text, body.IsInternal, userName(r))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, item)

	case len(rest) == 1 && rest[0] == "documents" && r.Method == http.MethodGet:
		items, err := s.service.ListDocuments(r.Context(), requestID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": items})

	case len(rest) == 1 && rest[0] == "documents" && r.Method == http.MethodPost:
		s.handleUpload(w, r, requestID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

const maxUploadSize = 32 << 20 // 32 MiB

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, requestID int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart form", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	item, err := s.service.SaveDocument(r.Context(), requestID, header.Filename, contentType, header.Size, file, userName(r))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/uploads/")
	if key == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	reader, err := s.service.OpenDocument(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		log.Printf("app: stream %s: %v", key, err)
	}
}

func (s *HTTPServer) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subscription json.RawMessage `json:"subscription"`
		UserID       string          `json:"userId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	userID := strings.TrimSpace(body.UserID)
	if userID == "" {
		userID = userName(r)
	}
	if err := s.service.SubscribePush(r.Context(), userID, string(body.Subscription)); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := s.service.UnsubscribePush(r.Context(), userName(r)); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/notifications")

	switch {
	case path == "/settings" && r.Method == http.MethodGet:
		settings, err := s.service.NotificationSettings(r.Context(), userName(r))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, settings)

	case path == "/settings" && r.Method == http.MethodPut:
		var body store.SettingsUpdate
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		settings, err := s.service.UpdateNotificationSettings(r.Context(), userName(r), body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, settings)

	case path == "/push/subscribe" && r.Method == http.MethodPost:
		s.handlePushSubscribe(w, r)

	case path == "/push/unsubscribe" && r.Method == http.MethodPost:
		s.handlePushUnsubscribe(w, r)

	case path == "/test" && r.Method == http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Name) == "" {
			body.Name = userName(r)
		}
		emailSent, pushSent, err := s.service.SendTestNotification(r.Context(), body.Name)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"email_sent": emailSent, "push_sent": pushSent})

	case path == "/broadcast" && r.Method == http.MethodPost:
		var body struct {
			Subject    string          `json:"subject"`
			Message    string          `json:"message"`
			Recipients json.RawMessage `json:"recipients"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		recipients, err := parseRecipients(body.Recipients)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		sent, total, err := s.service.BroadcastMessage(r.Context(), body.Subject, body.Message, recipients)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sent": sent, "total": total})

	case path == "/log" && r.Method == http.MethodGet:
		requestID := int64(0)
		if raw := strings.TrimSpace(r.URL.Query().Get("request_id")); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "request_id must be an integer", nil)
				return
			}
			requestID = parsed
		}
		limit, ok := queryInt(w, r, "limit", 50)
		if !ok {
			return
		}
		notifType := strings.TrimSpace(r.URL.Query().Get("type"))
		items, err := s.service.NotificationLog(r.Context(), requestID, notifType, limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"log": items})

	case path == "/stats" && r.Method == http.MethodGet:
		days, ok := queryInt(w, r, "days", 7)
		if !ok {
			return
		}
		since := time.Now().AddDate(0, 0, -days)
		items, err := s.service.NotificationStats(r.Context(), since)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stats": items, "since": since})

	case path == "/status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"realtime": s.service.RealtimeStatus()})

	// In-app notification inbox never made it past the service worker; the
	// client still polls this endpoint.
	case path == "/pending" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"pending": []any{}})

	// Close events are telemetry only.
	case path == "/closed" && r.Method == http.MethodPost:
		log.Printf("notifications: client closed a notification (user=%s)", userName(r))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// parseRecipients accepts "all", a role string, or an explicit email array.
func parseRecipients(raw json.RawMessage) (notify.Recipients, error) {
	if len(raw) == 0 {
		return notify.Recipients{}, fmt.Errorf("recipients is required")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "all" {
			return notify.Recipients{All: true}, nil
		}
		if strings.TrimSpace(single) == "" {
			return notify.Recipients{}, fmt.Errorf("recipients is required")
		}
		return notify.Recipients{Role: single}, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return notify.Recipients{}, fmt.Errorf("recipients is required")
		}
		return notify.Recipients{Emails: list}, nil
	}

	return notify.Recipients{}, fmt.Errorf("recipients must be \"all\", a role, or an email list")
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be an integer", nil)
		return 0, false
	}
	return parsed, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin, strings.HasPrefix(r.URL.Path, "/uploads/") || strings.HasPrefix(r.URL.Path, "/ws"))
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string, raw bool) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-User-Name")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	if !raw {
		header.Set("Cache-Control", "no-store")
		header.Set("Content-Type", "application/json")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	// Unexpected failures surface their message; callers are trusted
	// operators on the internal network.
	return http.StatusInternalServerError, "SERVER_ERROR", err.Error(), nil
}
