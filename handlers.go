package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// maxBodyBytes caps decision request bodies.
const maxBodyBytes = 1 << 20

// livenessMessage is the body served on the root path.
const livenessMessage = "Review system is running!"

// RepoWriter persists a file in the remote repository.
type RepoWriter interface {
	WriteFile(ctx context.Context, path, content, message string) (json.RawMessage, error)
}

// Handler handles HTTP requests for review decisions.
type Handler struct {
	writer RepoWriter
	logger *zap.Logger
}

// NewHandler creates a Handler with dependencies.
func NewHandler(writer RepoWriter, logger *zap.Logger) *Handler {
	return &Handler{writer: writer, logger: logger}
}

// handleRoot processes GET /.
func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, livenessMessage)
}

// handleApprove processes POST /approve.
func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	approval, err := decodeApproval(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		recordDecision("approve", "invalid")
		writeJSON(w, http.StatusBadRequest, DecisionResponse{Error: err.Error()})
		return
	}

	content, err := renderRecord(approval)
	if err != nil {
		recordDecision("approve", "invalid")
		writeJSON(w, http.StatusBadRequest, DecisionResponse{Error: ErrInvalidData.Error()})
		return
	}

	result, err := h.writer.WriteFile(r.Context(), approval.Path(), string(content), approval.CommitMessage())
	if err != nil {
		recordDecision("approve", "failed")
		h.logger.Error("error approving item",
			zap.String("id", approval.ID),
			zap.String("request_id", requestID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, DecisionResponse{Error: err.Error()})
		return
	}

	recordDecision("approve", "ok")
	h.logger.Info("item approved",
		zap.String("id", approval.ID),
		zap.String("path", approval.Path()),
		zap.String("request_id", requestID(r.Context())),
	)
	writeJSON(w, http.StatusOK, DecisionResponse{Success: true, Result: result})
}

// handleReject processes POST /reject. The body is read leniently and only
// logged.
func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)

	recordDecision("reject", "ok")
	h.logger.Info("item rejected",
		zap.Any("id", req.ID),
		zap.Any("name", req.Name),
		zap.String("request_id", requestID(r.Context())),
	)
	writeJSON(w, http.StatusOK, DecisionResponse{Success: true})
}

// decodeApproval reads an approve request from body and validates it. An
// empty body decodes as an empty object. Member names match exactly, so
// "ID" or "Data" are ignored.
func decodeApproval(body io.Reader) (*Approval, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(body)
	if err := dec.Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := ensureSingleJSON(dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	req, err := newApproveRequest(fields)
	if err != nil {
		return nil, err
	}
	return req.Validate()
}

// ensureSingleJSON ensures only a single JSON object is in the request body.
func ensureSingleJSON(dec *json.Decoder) error {
	// Check for extra JSON tokens
	if t, err := dec.Token(); err != io.EOF || t != nil {
		return fmt.Errorf("request body must only contain a single JSON object")
	}
	return nil
}
