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

	"orienta/api/internal/auth"
	"orienta/api/internal/blob"
	"orienta/api/internal/session"
	"orienta/api/internal/store"
)

// Session identifies the authenticated owner of a request. Tokens come from
// the external auth provider: either HMAC-signed payloads over the shared
// secret, or opaque session IDs resolved against the provider's redis.
type Session struct {
	OwnerID   string
	OwnerName string
}

type sessionResolver interface {
	Lookup(ctx context.Context, sessionID string) (session.Owner, error)
}

type attachmentStore interface {
	Put(ctx context.Context, caseID string, reader io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, ref string) (io.ReadCloser, string, error)
}

type HTTPServer struct {
	service       *Service
	sessionSecret []byte
	sessions      sessionResolver
	attachments   attachmentStore
	corsOrigin    string
}

func NewHTTPServer(service *Service, sessionSecret, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:       service,
		sessionSecret: []byte(sessionSecret),
		corsOrigin:    corsOrigin,
	}
}

// WithSessionStore enables opaque-session lookup via the auth provider's redis.
func (s *HTTPServer) WithSessionStore(sessions *session.RedisStore) *HTTPServer {
	s.sessions = sessions
	return s
}

// WithAttachments enables attachment upload/download endpoints.
func (s *HTTPServer) WithAttachments(attachments *blob.Store) *HTTPServer {
	s.attachments = attachments
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
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
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/cases":
		s.handleSearchCases(w, r, sess)
	case r.Method == http.MethodPost && r.URL.Path == "/api/cases":
		s.handleCreateCase(w, r, sess)
	case r.Method == http.MethodPatch && r.URL.Path == "/api/cases":
		s.handleUpdateCase(w, r, sess)
	case r.Method == http.MethodDelete && r.URL.Path == "/api/cases":
		s.handleDeleteCase(w, r, sess)
	case r.Method == http.MethodGet && r.URL.Path == "/api/interventions":
		s.handleListInterventions(w, r, sess)
	case r.Method == http.MethodPost && r.URL.Path == "/api/interventions":
		s.handleCreateIntervention(w, r, sess)
	case r.Method == http.MethodPatch && r.URL.Path == "/api/interventions":
		s.handleUpdateIntervention(w, r, sess)
	case r.Method == http.MethodDelete && r.URL.Path == "/api/interventions":
		s.handleDeleteIntervention(w, r, sess)
	case r.Method == http.MethodPost && r.URL.Path == "/api/interventions/reconcile":
		s.handleReconcile(w, r, sess)
	case r.Method == http.MethodPost && r.URL.Path == "/api/attachments":
		s.handleUploadAttachment(w, r, sess)
	case r.Method == http.MethodGet && r.URL.Path == "/api/attachments":
		s.handleDownloadAttachment(w, r, sess)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSearchCases(w http.ResponseWriter, r *http.Request, sess Session) {
	query := r.URL.Query()
	input := SearchCasesInput{
		Query:       strings.TrimSpace(query.Get("q")),
		Institution: strings.TrimSpace(query.Get("institution")),
		Domain:      strings.TrimSpace(query.Get("domain")),
	}
	if raw := strings.TrimSpace(query.Get("contexts")); raw != "" {
		input.Contexts = strings.Split(raw, ",")
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative integer", nil)
			return
		}
		input.Limit = parsed
	}

	cases, err := s.service.SearchCases(r.Context(), sess.OwnerID, input)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	items := make([]map[string]any, 0, len(cases))
	for _, item := range cases {
		items = append(items, caseJSON(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": items})
}

func (s *HTTPServer) handleCreateCase(w http.ResponseWriter, r *http.Request, sess Session) {
	var body CreateCaseInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	created, err := s.service.CreateCase(r.Context(), sess.OwnerID, body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"case": caseJSON(created)})
}

func (s *HTTPServer) handleUpdateCase(w http.ResponseWriter, r *http.Request, sess Session) {
	var body UpdateCaseInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	updated, err := s.service.UpdateCase(r.Context(), sess.OwnerID, body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": caseJSON(updated)})
}

func (s *HTTPServer) handleDeleteCase(w http.ResponseWriter, r *http.Request, sess Session) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.DeleteCase(r.Context(), sess.OwnerID, body.ID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deletedId": body.ID})
}

func (s *HTTPServer) handleListInterventions(w http.ResponseWriter, r *http.Request, sess Session) {
	caseID := strings.TrimSpace(r.URL.Query().Get("caseId"))
	rows, err := s.service.ListInterventions(r.Context(), sess.OwnerID, caseID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":   rowsJSON(rows),
		"groups": groupsJSON(Group(rows)),
	})
}

func (s *HTTPServer) handleCreateIntervention(w http.ResponseWriter, r *http.Request, sess Session) {
	var body CreateInterventionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	rows, err := s.service.CreateInterventionBatch(r.Context(), sess.OwnerID, body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"rows":         rowsJSON(rows),
		"totalCreated": len(rows),
	})
}

func (s *HTTPServer) handleUpdateIntervention(w http.ResponseWriter, r *http.Request, sess Session) {
	var body UpdateInterventionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	updated, err := s.service.UpdateIntervention(r.Context(), sess.OwnerID, body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"row": rowJSON(updated)})
}

func (s *HTTPServer) handleDeleteIntervention(w http.ResponseWriter, r *http.Request, sess Session) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.DeleteIntervention(r.Context(), sess.OwnerID, body.ID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deletedId": body.ID})
}

func (s *HTTPServer) handleReconcile(w http.ResponseWriter, r *http.Request, sess Session) {
	var body ReconcileInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Reconcile(r.Context(), sess.OwnerID, body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	failures := make([]OperationFailure, 0, len(result.Failures))
	failures = append(failures, result.Failures...)
	writeJSON(w, http.StatusOK, map[string]any{
		"applied": map[string]any{
			"updated": len(result.Updated),
			"created": len(result.Created),
			"deleted": len(result.DeletedIDs),
		},
		"failures": failures,
		"rows":     rowsJSON(result.Rows),
		"groups":   groupsJSON(Group(result.Rows)),
	})
}

func (s *HTTPServer) handleUploadAttachment(w http.ResponseWriter, r *http.Request, sess Session) {
	if s.attachments == nil {
		writeError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Attachment storage not configured", nil)
		return
	}
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
		return
	}
	caseID := strings.TrimSpace(r.FormValue("caseId"))
	if _, err := s.service.GetCase(r.Context(), sess.OwnerID, caseID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ref, err := s.attachments.Put(r.Context(), caseID, file, header.Size, contentType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not store attachment", nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"attachmentRef": ref})
}

func (s *HTTPServer) handleDownloadAttachment(w http.ResponseWriter, r *http.Request, sess Session) {
	if s.attachments == nil {
		writeError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Attachment storage not configured", nil)
		return
	}
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "ref is required", nil)
		return
	}
	// Refs are case-scoped keys; verify the case half belongs to the caller.
	parts := strings.Split(ref, "/")
	if len(parts) != 3 || parts[0] != "cases" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "malformed attachment ref", nil)
		return
	}
	if _, err := s.service.GetCase(r.Context(), sess.OwnerID, parts[1]); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	reader, contentType, err := s.attachments.Get(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Attachment not found", nil)
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}

	if claims, err := auth.ParseToken(s.sessionSecret, token); err == nil {
		return Session{OwnerID: claims.Sub, OwnerName: claims.Name}, true
	}

	if s.sessions != nil {
		owner, err := s.sessions.Lookup(r.Context(), token)
		if err == nil {
			return Session{OwnerID: owner.ID, OwnerName: owner.DisplayName}, true
		}
		if !errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
			return Session{}, false
		}
	}

	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	return Session{}, false
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
		setCORSHeaders(writer.Header(), s.corsOrigin)
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

func setCORSHeaders(header http.Header, origin string) {
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
}

func caseJSON(item store.Case) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"initials":    item.Initials,
		"institution": item.InstitutionName,
		"searchKey":   item.SearchKey,
		"createdAt":   item.CreatedAt.Format(time.RFC3339),
		"updatedAt":   item.UpdatedAt.Format(time.RFC3339),
	}
}

func rowJSON(row store.InterventionRow) map[string]any {
	item := map[string]any{
		"id":             row.ID,
		"caseId":         row.CaseID,
		"date":           row.Date.Format(dateLayout),
		"domain":         string(row.Domain),
		"context":        string(row.Context),
		"originType":     row.OriginType,
		"title":          row.Title,
		"text":           row.OriginalText,
		"normalizedText": row.NormalizedText,
		"createdAt":      row.CreatedAt.Format(time.RFC3339),
		"updatedAt":      row.UpdatedAt.Format(time.RFC3339),
	}
	if row.Summary != "" {
		item["summary"] = row.Summary
	}
	if row.AttachmentRef != "" {
		item["attachmentRef"] = row.AttachmentRef
	}
	return item
}

func rowsJSON(rows []store.InterventionRow) []map[string]any {
	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, rowJSON(row))
	}
	return items
}

func groupsJSON(groups []LogicalIntervention) []map[string]any {
	items := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		contexts := make([]string, 0, len(group.Contexts))
		for _, c := range group.Contexts {
			contexts = append(contexts, string(c))
		}
		items = append(items, map[string]any{
			"groupKey":     group.GroupKey,
			"memberRowIds": group.MemberRowIDs,
			"domain":       string(group.Domain),
			"contexts":     contexts,
			"date":         group.Date.Format(dateLayout),
			"title":        group.Title,
			"text":         group.Text,
		})
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
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

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrConflict) {
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	}
	if errors.Is(err, store.ErrConstraint) {
		return http.StatusConflict, "CONSTRAINT_ERROR", "Storage rejected the domain/context value; schema may be out of date", nil
	}
	if errors.Is(err, store.ErrPermission) {
		return http.StatusForbidden, "FORBIDDEN", "Storage access denied", nil
	}
	if errors.Is(err, store.ErrUnavailable) {
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage unavailable", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
