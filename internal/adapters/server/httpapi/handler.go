// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/slate/internal/adapters/server/common"
	"github.com/hylla/slate/internal/app"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// schemaHashHeader carries the schema document hash on GET /schema.
const schemaHashHeader = "X-Schema-Hash"

// ActorHeader names the caller recorded on change events when a body omits actor_id.
const ActorHeader = "X-Slate-Actor"

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service common.Service
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter.
func NewHandler(service common.Service) *Handler {
	return &Handler{service: service}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "board service is not configured",
		})
		return
	}

	if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
		r = r.WithContext(app.WithActor(r.Context(), actor))
	}

	segments := splitPath(r.URL.Path)
	switch {
	case len(segments) == 1 && segments[0] == "boards":
		switch r.Method {
		case http.MethodGet:
			h.handleListBoards(w, r)
		case http.MethodPost:
			h.handleCreateBoard(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(segments) == 1 && segments[0] == "schema":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleSchema(w, r)
	case len(segments) == 2 && segments[0] == "boards":
		switch r.Method {
		case http.MethodGet:
			h.handleGetBoard(w, r, segments[1])
		case http.MethodPatch:
			h.handleUpdateBoard(w, r, segments[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch)
		}
	case len(segments) == 3 && segments[0] == "boards" && (segments[2] == "archive" || segments[2] == "restore"):
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleBoardLifecycle(w, r, segments[1], segments[2])
	case len(segments) == 2 && segments[0] == "lists":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w, http.MethodPatch)
			return
		}
		h.handleRenameList(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "lists" && segments[2] == "archive":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleArchiveList(w, r, segments[1])
	case len(segments) == 2 && segments[0] == "cards":
		switch r.Method {
		case http.MethodGet:
			h.handleGetCard(w, r, segments[1])
		case http.MethodPatch:
			h.handleUpdateCard(w, r, segments[1])
		case http.MethodDelete:
			h.handleDeleteCard(w, r, segments[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case len(segments) == 3 && segments[0] == "cards" && segments[2] == "restore":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleRestoreCard(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "boards" && segments[2] == "lists":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleCreateList(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "boards" && segments[2] == "events":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListEvents(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "lists" && segments[2] == "cards":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleCreateCard(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "lists" && segments[2] == "move":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleMoveList(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "cards" && segments[2] == "move":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleMoveCard(w, r, segments[1])
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleListBoards serves GET `/boards`.
func (h *Handler) handleListBoards(w http.ResponseWriter, r *http.Request) {
	includeArchived, err := parseBoolQuery(r, "include_archived")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	boards, err := h.service.ListBoards(r.Context(), includeArchived)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": boards})
}

// handleCreateBoard serves POST `/boards`.
func (h *Handler) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req common.CreateBoardRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	board, err := h.service.CreateBoard(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

// handleGetBoard serves GET `/boards/{id}`.
func (h *Handler) handleGetBoard(w http.ResponseWriter, r *http.Request, boardID string) {
	includeArchived, err := parseBoolQuery(r, "include_archived")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	detail, err := h.service.GetBoard(r.Context(), boardID, includeArchived)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleUpdateBoard serves PATCH `/boards/{id}`.
func (h *Handler) handleUpdateBoard(w http.ResponseWriter, r *http.Request, boardID string) {
	var req common.UpdateBoardRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BoardID = boardID
	board, err := h.service.UpdateBoard(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// handleBoardLifecycle serves POST `/boards/{id}/archive` and `/boards/{id}/restore`.
func (h *Handler) handleBoardLifecycle(w http.ResponseWriter, r *http.Request, boardID, action string) {
	var (
		board common.Board
		err   error
	)
	if action == "archive" {
		board, err = h.service.ArchiveBoard(r.Context(), boardID)
	} else {
		board, err = h.service.RestoreBoard(r.Context(), boardID)
	}
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// handleCreateList serves POST `/boards/{id}/lists`.
func (h *Handler) handleCreateList(w http.ResponseWriter, r *http.Request, boardID string) {
	var req common.CreateListRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BoardID = boardID
	list, err := h.service.CreateList(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

// handleListEvents serves GET `/boards/{id}/events`.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request, boardID string) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: fmt.Sprintf("limit %q must be a non-negative integer", raw),
			})
			return
		}
		limit = parsed
	}
	events, err := h.service.ListChangeEvents(r.Context(), boardID, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleCreateCard serves POST `/lists/{id}/cards`.
func (h *Handler) handleCreateCard(w http.ResponseWriter, r *http.Request, listID string) {
	var req common.CreateCardRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ListID = listID
	card, err := h.service.CreateCard(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// handleRenameList serves PATCH `/lists/{id}`.
func (h *Handler) handleRenameList(w http.ResponseWriter, r *http.Request, listID string) {
	var req common.RenameListRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ListID = listID
	list, err := h.service.RenameList(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleArchiveList serves POST `/lists/{id}/archive`.
func (h *Handler) handleArchiveList(w http.ResponseWriter, r *http.Request, listID string) {
	list, err := h.service.ArchiveList(r.Context(), listID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetCard serves GET `/cards/{id}`.
func (h *Handler) handleGetCard(w http.ResponseWriter, r *http.Request, cardID string) {
	card, err := h.service.GetCard(r.Context(), cardID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// handleUpdateCard serves PATCH `/cards/{id}`.
func (h *Handler) handleUpdateCard(w http.ResponseWriter, r *http.Request, cardID string) {
	var req common.UpdateCardRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.CardID = cardID
	card, err := h.service.UpdateCard(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// handleDeleteCard serves DELETE `/cards/{id}?mode=archive|hard`.
func (h *Handler) handleDeleteCard(w http.ResponseWriter, r *http.Request, cardID string) {
	req := common.DeleteCardRequest{
		CardID: cardID,
		Mode:   strings.TrimSpace(r.URL.Query().Get("mode")),
	}
	if err := h.service.DeleteCard(r.Context(), req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRestoreCard serves POST `/cards/{id}/restore`.
func (h *Handler) handleRestoreCard(w http.ResponseWriter, r *http.Request, cardID string) {
	card, err := h.service.RestoreCard(r.Context(), cardID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// handleMoveList serves POST `/lists/{id}/move`.
func (h *Handler) handleMoveList(w http.ResponseWriter, r *http.Request, listID string) {
	var req common.MoveListRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if req.ToIndex == nil {
		writeMissingTargetIndex(w)
		return
	}
	req.ListID = listID
	list, err := h.service.MoveList(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleMoveCard serves POST `/cards/{id}/move`.
func (h *Handler) handleMoveCard(w http.ResponseWriter, r *http.Request, cardID string) {
	var req common.MoveCardRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if req.ToIndex == nil {
		writeMissingTargetIndex(w)
		return
	}
	req.CardID = cardID
	card, err := h.service.MoveCard(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// handleSchema serves GET `/schema` as plain text, or JSON with `?format=json`.
func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Schema(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.Header().Set(schemaHashHeader, doc.Hash)
	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		writeJSON(w, http.StatusOK, doc)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc.Text)
}

// splitPath canonicalizes one request path into non-empty segments.
func splitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil
		}
	}
	return parts
}

// parseBoolQuery reads one optional boolean query parameter.
func parseBoolQuery(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s %q must be a boolean: %w", key, raw, common.ErrInvalidRequest)
	}
	return v, nil
}

func writeMissingTargetIndex(w http.ResponseWriter) {
	writeJSONError(w, http.StatusBadRequest, APIError{
		Code:    "invalid_request",
		Message: "to_index is required",
		Hint:    "Send the drop index in the destination container.",
	})
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
			Hint:    "Reload the container and retry the move.",
			Context: map[string]any{"retryable": true},
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
