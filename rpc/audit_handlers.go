package rpc

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"meritlend/audit"
)

var errInvalidLimit = errors.New("limit must be a positive integer")

type auditEventPayload struct {
	ID         uint   `json:"id"`
	Type       string `json:"type"`
	Attributes string `json:"attributes,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) int {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return writeBadRequest(w, errInvalidLimit)
		}
		limit = parsed
	}

	var (
		records []audit.EventRecord
		err     error
	)
	if eventType := strings.TrimSpace(r.URL.Query().Get("type")); eventType != "" {
		records, err = s.audit.ByType(eventType, limit)
	} else {
		records, err = s.audit.Recent(limit)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return http.StatusInternalServerError
	}

	payload := make([]auditEventPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, auditEventPayload{
			ID:         record.ID,
			Type:       record.Type,
			Attributes: record.Attributes,
			CreatedAt:  record.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, payload)
	return http.StatusOK
}
