package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"atelier/api/internal/auth"
	"atelier/api/internal/blueprint"
	"atelier/api/internal/export"
	"atelier/api/internal/search"
	"atelier/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
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

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/guest" {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.GuestSignIn(r.Context(), body.Name)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":     session.Token,
			"userId":    session.UserID,
			"userName":  session.UserName,
			"expiresAt": session.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		query := search.Query{Text: strings.TrimSpace(r.URL.Query().Get("q"))}
		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
			query.Limit = limit
		}
		if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
			query.Offset = offset
		}
		writeJSON(w, http.StatusOK, s.service.SearchWorkshops(query))
		return
	}

	segments := splitPath(r.URL.Path)
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "workshops" {
		s.handleWorkshops(w, r, segments[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleWorkshops(w http.ResponseWriter, r *http.Request, rest []string) {
	// /api/workshops
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			workshops, err := s.service.ListWorkshops(r.Context())
			if err != nil {
				writeMappedError(w, err)
				return
			}
			payload := make([]map[string]any, 0, len(workshops))
			for _, workshop := range workshops {
				payload = append(payload, workshopPayload(workshop))
			}
			writeJSON(w, http.StatusOK, map[string]any{"workshops": payload})

		case http.MethodPost:
			session, ok := s.requireSession(w, r)
			if !ok {
				return
			}
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			workshop, err := s.service.CreateWorkshop(r.Context(), session, body.Name)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, workshopPayload(workshop))

		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// GET /api/workshops/by-share/{shareId}
	if len(rest) == 2 && rest[0] == "by-share" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		workshop, err := s.service.JoinByShareID(r.Context(), rest[1], r.URL.Query().Get("passcode"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, workshopPayload(workshop))
		return
	}

	workshopID := rest[0]
	rest = rest[1:]

	// GET /api/workshops/{id}
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		workshop, err := s.service.GetWorkshop(r.Context(), workshopID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, workshopPayload(workshop))
		return
	}

	switch rest[0] {
	case "link":
		if r.Method != http.MethodGet || len(rest) != 1 {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		workshop, err := s.service.GetWorkshop(r.Context(), workshopID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"shareId": workshop.ShareID,
			"url":     s.service.ShareableLink(workshop),
		})
		return

	case "share":
		s.handleShare(w, r, workshopID, rest[1:])
		return

	case "versions":
		s.handleVersions(w, r, workshopID, rest[1:])
		return

	case "diff":
		if r.Method != http.MethodGet || len(rest) != 1 {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		oldSeq, errOld := strconv.ParseInt(r.URL.Query().Get("old"), 10, 64)
		newSeq, errNew := strconv.ParseInt(r.URL.Query().Get("new"), 10, 64)
		if errOld != nil || errNew != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "old and new query parameters must be version numbers", nil)
			return
		}
		comparison, err := s.service.DiffVersions(r.Context(), workshopID, oldSeq, newSeq)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, comparison)
		return

	case "stakeholders":
		s.handleStakeholders(w, r, workshopID, rest[1:])
		return

	case "progress":
		if r.Method != http.MethodGet || len(rest) != 1 {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if _, err := s.service.GetWorkshop(r.Context(), workshopID); err != nil {
			writeMappedError(w, err)
			return
		}
		progress, err := s.service.ApprovalProgress(r.Context(), workshopID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, progress)
		return

	case "export":
		if r.Method != http.MethodGet || len(rest) != 1 {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		format := export.Format(r.URL.Query().Get("format"))
		if format == "" {
			format = export.FormatHTML
		}
		result, err := s.service.ExportBlueprint(r.Context(), workshopID, format)
		if err != nil {
			if errors.Is(err, export.ErrUnsupportedFormat) {
				writeError(w, http.StatusBadRequest, "VALIDATION", "unsupported export format", nil)
				return
			}
			if errors.Is(err, export.ErrPDFDependencyMissing) {
				writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil)
				return
			}
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleShare(w http.ResponseWriter, r *http.Request, workshopID string, rest []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	// POST /api/workshops/{id}/share/passcode
	if r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "passcode" {
		var body struct {
			Passcode string `json:"passcode"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SetSharePasscode(r.Context(), session, workshopID, body.Passcode); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// DELETE /api/workshops/{id}/share
	if r.Method == http.MethodDelete && len(rest) == 0 {
		if err := s.service.RevokeShare(r.Context(), session, workshopID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleVersions(w http.ResponseWriter, r *http.Request, workshopID string, rest []string) {
	if len(rest) != 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch r.Method {
	case http.MethodPost:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var bp blueprint.Blueprint
		if err := decodeBody(r, &bp); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		version, err := s.service.SaveBlueprint(r.Context(), session, workshopID, bp)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"workshopId":     version.WorkshopID,
			"sequenceNumber": version.SequenceNumber,
			"content":        version.Content,
			"createdAt":      version.CreatedAt.UTC().Format(time.RFC3339),
		})

	case http.MethodGet:
		versions, err := s.service.ListVersions(r.Context(), workshopID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(versions))
		for _, version := range versions {
			payload = append(payload, map[string]any{
				"sequenceNumber": version.SequenceNumber,
				"title":          version.Title,
				"createdAt":      version.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": payload})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleStakeholders(w http.ResponseWriter, r *http.Request, workshopID string, rest []string) {
	// GET list does not require a session; everything else does.
	if r.Method == http.MethodGet && len(rest) == 0 {
		if _, err := s.service.GetWorkshop(r.Context(), workshopID); err != nil {
			writeMappedError(w, err)
			return
		}
		stakeholders, err := s.service.ListStakeholders(r.Context(), workshopID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(stakeholders))
		for _, stakeholder := range stakeholders {
			payload = append(payload, stakeholderPayload(stakeholder))
		}
		writeJSON(w, http.StatusOK, map[string]any{"stakeholders": payload})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPost && len(rest) == 0 {
		var body AddStakeholderInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		stakeholder, err := s.service.AddStakeholder(r.Context(), session, workshopID, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, stakeholderPayload(stakeholder))
		return
	}

	if len(rest) == 1 {
		stakeholderID := rest[0]
		switch r.Method {
		case http.MethodPatch:
			var body UpdateStakeholderInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.UpdateStakeholder(r.Context(), session, workshopID, stakeholderID, body); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return

		case http.MethodDelete:
			if err := s.service.RemoveStakeholder(r.Context(), session, workshopID, stakeholderID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func workshopPayload(workshop store.Workshop) map[string]any {
	payload := map[string]any{
		"id":        workshop.ID,
		"ownerId":   workshop.OwnerID,
		"shareId":   workshop.ShareID,
		"name":      workshop.Name,
		"createdAt": workshop.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt": workshop.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if workshop.CurrentContent != nil {
		payload["currentContent"] = workshop.CurrentContent
	}
	return payload
}

func stakeholderPayload(stakeholder store.Stakeholder) map[string]any {
	return map[string]any{
		"id":        stakeholder.ID,
		"role":      stakeholder.Role,
		"email":     stakeholder.Email,
		"status":    stakeholder.Status,
		"comment":   stakeholder.Comment,
		"createdAt": stakeholder.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "AUTH", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "AUTH", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
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

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
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

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "AUTH", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
