package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/pkg/durable"
)

// CallRequest is the body of POST /calls.
type CallRequest struct {
	Source  string          `json:"source"`
	Target  string          `json:"target"`
	Payload durable.Payload `json:"payload"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		respondError(w, http.StatusUnprocessableEntity, "target is required")
		return
	}
	if req.Payload == nil {
		req.Payload = durable.Payload{}
	}

	wf, err := s.runtime.Context().Call(r.Context(), req.Source, req.Target, req.Payload)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, wf)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	if workflowID == "" {
		respondError(w, http.StatusBadRequest, "workflow ID is required")
		return
	}

	wf, err := s.runtime.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if wf == nil {
		s.respondDomainError(w, r, core.ErrNotFound("workflow", workflowID))
		return
	}
	respondJSON(w, http.StatusOK, wf)
}
