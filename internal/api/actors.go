package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/config"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/pkg/durable"
)

// SourceHTTP marks invocations that arrived over the API.
const SourceHTTP = "http"

const maxBodyBytes = 1 << 20

// SendRequest is the body of POST /actors/{actorID}/messages.
type SendRequest struct {
	Payload durable.Payload `json:"payload"`
	DedupID string          `json:"dedupId,omitempty"`
}

// CoalesceRequest is the body of POST /actors/{actorID}/coalesce.
type CoalesceRequest struct {
	Request  durable.Payload `json:"request"`
	WindowMs int64           `json:"windowMs,omitempty"`
}

// SignalRequest is the body of POST /actors/{actorID}/signals.
type SignalRequest struct {
	Type    string          `json:"type"`
	Payload durable.Payload `json:"payload"`
}

// AlarmRequest is the body of POST /actors/{actorID}/alarms.
type AlarmRequest struct {
	Name  string        `json:"name"`
	Delay durable.Delay `json:"delay"`
}

// AcceptedResponse acknowledges an asynchronous request.
type AcceptedResponse struct {
	ActorID  string     `json:"actorId"`
	EventID  string     `json:"eventId,omitempty"`
	BatchID  string     `json:"batchId,omitempty"`
	FireTime *time.Time `json:"fireTime,omitempty"`
}

// StateResponse is the body of GET /actors/{actorID}/state.
type StateResponse struct {
	ActorID     string           `json:"actorId"`
	Version     int64            `json:"version"`
	Data        json.RawMessage  `json:"data"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	LastEventID string           `json:"lastEventId,omitempty"`
	Alarms      map[string]int64 `json:"alarms,omitempty"`
}

// decodeBody decodes a JSON object into dst. An empty body leaves dst
// untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return core.ErrValidation(core.CodeInvalidPayload, fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func actorID(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "actorID"))
	if id == "" {
		return "", core.ErrValidation(core.CodeInvalidPayload, "actor id is required")
	}
	return id, nil
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	id, err := actorID(r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	payload := durable.Payload{}
	if err := decodeBody(r, &payload); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	result, err := s.invoker.Invoke(r.Context(), durable.Invocation{
		ActorID: id,
		Payload: payload,
		Mode:    durable.ModeSync,
		Source:  SourceHTTP,
	})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id, err := actorID(r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	var req SendRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if req.Payload == nil {
		req.Payload = durable.Payload{}
	}

	eventID, err := s.runtime.Send(r.Context(), id, req.Payload, req.DedupID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, AcceptedResponse{ActorID: id, EventID: eventID})
}

func (s *Server) handleCoalesce(w http.ResponseWriter, r *http.Request) {
	id, err := actorID(r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	var req CoalesceRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if req.Request == nil {
		respondError(w, http.StatusUnprocessableEntity, "request is required")
		return
	}
	if req.WindowMs < 0 {
		respondError(w, http.StatusUnprocessableEntity, "windowMs must not be negative")
		return
	}

	batchID, err := s.runtime.Coalesce(r.Context(), id, req.Request, time.Duration(req.WindowMs)*time.Millisecond)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, AcceptedResponse{ActorID: id, BatchID: batchID})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	id, err := actorID(r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	var req SignalRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		respondError(w, http.StatusUnprocessableEntity, "type is required")
		return
	}

	if err := s.runtime.Signal(r.Context(), id, req.Type, req.Payload); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, AcceptedResponse{ActorID: id})
}

func (s *Server) handleSetAlarm(w http.ResponseWriter, r *http.Request) {
	id, err := actorID(r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	var req AlarmRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}

	fireTime, err := s.runtime.SetAlarm(r.Context(), id, req.Name, req.Delay)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, AcceptedResponse{ActorID: id, FireTime: &fireTime})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	id, err := actorID(r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	st, err := s.runtime.Load(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	etag := config.CalculateETag([]byte(fmt.Sprintf("%s:%d", st.ActorID, st.Version)))
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	respondJSON(w, http.StatusOK, StateResponse{
		ActorID:     st.ActorID,
		Version:     st.Version,
		Data:        st.Data,
		UpdatedAt:   st.UpdatedAt,
		LastEventID: st.LastEventID,
		Alarms:      st.Alarms,
	})
}
