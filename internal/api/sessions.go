package api

import (
	"errors"
	"net/http"

	"strikedesk/internal/booking"
	"strikedesk/internal/desk"
	"strikedesk/internal/models"

	"github.com/gorilla/mux"
)

// CenterRequest is the body of PUT /api/sessions/{id}/center.
type CenterRequest struct {
	CenterID int `json:"centerId"`
}

// LookupRequest is the body of POST /api/sessions/{id}/lookup.
type LookupRequest struct {
	Phone string `json:"phone"`
}

// ToggleResponse reports whether the toggle changed the selection.
type ToggleResponse struct {
	Session desk.Snapshot `json:"session"`
	Changed bool          `json:"changed"`
}

// SubmitResponse is returned by POST /api/sessions/{id}/submit. On a partial failure
// Receipt is nil and Error explains what still has to be retried.
type SubmitResponse struct {
	Receipt *booking.Receipt `json:"receipt,omitempty"`
	Session desk.Snapshot    `json:"session"`
	Error   string           `json:"error,omitempty"`
}

func (s *HTTPServer) session(w http.ResponseWriter, r *http.Request) (*desk.Session, bool) {
	sess, err := s.deps.Sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return nil, false
	}
	return sess, true
}

// handleOpenSession POST /api/sessions
func (s *HTTPServer) handleOpenSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.deps.Sessions.Open()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// handleGetSession GET /api/sessions/{id}
func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleCloseSession DELETE /api/sessions/{id}
func (s *HTTPServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Sessions.Close(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, desk.ErrSessionNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChooseCenter PUT /api/sessions/{id}/center
func (s *HTTPServer) handleChooseCenter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req CenterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	snap, err := sess.ChooseCenter(r.Context(), req.CenterID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleToggleSlot POST /api/sessions/{id}/slots/toggle
func (s *HTTPServer) handleToggleSlot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var slot models.Slot
	if err := decodeBody(r, &slot); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if slot.Date == "" || slot.Time == "" {
		writeError(w, http.StatusBadRequest, "date and time are required")
		return
	}

	snap, changed, err := sess.ToggleSlot(slot)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{Session: snap, Changed: changed})
}

// handleLookup POST /api/sessions/{id}/lookup
func (s *HTTPServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req LookupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	snap, err := sess.Lookup(r.Context(), req.Phone)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleDetails PUT /api/sessions/{id}/details
func (s *HTTPServer) handleDetails(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var d desk.Details
	if err := decodeBody(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	snap, err := sess.UpdateDetails(d)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleReset POST /api/sessions/{id}/reset
func (s *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Reset())
}

// handleSubmit POST /api/sessions/{id}/submit
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	receipt, snap, err := sess.Submit(r.Context())
	if err != nil {
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			s.writeFailure(w, r, err)
			return
		}
		// the form is kept so the operator can retry; return it with the error
		status := errorStatus(err)
		s.logger.Error().Err(err).Str("session", sess.ID).Msg("submit failed")
		writeJSON(w, status, SubmitResponse{Session: snap, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{Receipt: receipt, Session: snap})
}
