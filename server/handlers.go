package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/joomcode/errorx"
	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/bulk"
	"github.com/joomcode/redisbulk/keyspace"
	"github.com/joomcode/redisbulk/redis"
)

type filterRequest struct {
	Match string `json:"match"`
	Type  string `json:"type"`
	// Count is SCAN COUNT hint; keyspace.DefaultCount when omitted.
	Count *int `json:"count"`
}

type paramsRequest struct {
	// TTL in seconds.
	TTL int64 `json:"ttl"`
}

type createRequest struct {
	Kind   string        `json:"kind"`
	Filter filterRequest `json:"filter"`
	Params paramsRequest `json:"params"`
}

type createResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var errBadRequest = errorx.NewNamespace("http").NewType("bad_request")

func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	who := owner(r)
	if who == "" {
		s.writeError(w, errBadRequest.New("session is required"))
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errBadRequest.Wrap(err, "malformed body"))
		return
	}
	kind, err := bulk.ParseKind(req.Kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	desc := bulk.Descriptor{
		DatabaseID: mux.Vars(r)["databaseId"],
		Kind:       kind,
		Filter: keyspace.Filter{
			Match: req.Filter.Match,
			Type:  req.Filter.Type,
			Count: keyspace.DefaultCount,
		},
		Params: bulk.Params{TTL: time.Duration(req.Params.TTL) * time.Second},
	}
	if req.Filter.Count != nil {
		desc.Filter.Count = *req.Filter.Count
	}

	action, err := s.registry.AddAction(r.Context(), who, desc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("bulk action created",
		zap.String("action_id", action.ID()),
		zap.String("owner", who),
		zap.String("database", desc.DatabaseID),
		zap.String("kind", string(kind)))
	writeJSON(w, http.StatusCreated, createResponse{ID: action.ID()})
}

func (s *Server) getAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := s.snapshot(id, owner(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// snapshot returns view of live or recently finished action on behalf of owner.
func (s *Server) snapshot(id, who string) (bulk.Snapshot, error) {
	action, err := s.registry.GetOwned(id, who)
	if err == nil {
		return action.Snapshot(), nil
	}
	if !errorx.IsNotFound(err) {
		return bulk.Snapshot{}, err
	}
	snap, ok := s.hub.Last(id)
	if !ok {
		return bulk.Snapshot{}, err
	}
	if snap.Owner != who {
		return bulk.Snapshot{}, bulk.ErrForbidden.New("action belongs to other owner").
			WithProperty(bulk.EKActionID, id).
			WithProperty(bulk.EKOwner, who)
	}
	return snap, nil
}

func (s *Server) abortAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Abort(id, owner(r)); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("bulk action abort requested", zap.String("action_id", id))
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusOf(err error) int {
	switch {
	case errorx.IsOfType(err, errBadRequest),
		errorx.IsOfType(err, bulk.ErrInvalidAction),
		errorx.IsOfType(err, keyspace.ErrInvalidFilter):
		return http.StatusBadRequest
	case errorx.IsNotFound(err):
		return http.StatusNotFound
	case errorx.IsOfType(err, bulk.ErrForbidden):
		return http.StatusForbidden
	case errorx.IsOfType(err, bulk.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	case errorx.HasTrait(err, redis.ErrTraitConnectivity):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
