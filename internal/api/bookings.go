package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"strikedesk/internal/export"
	"strikedesk/internal/lifecycle"
	"strikedesk/internal/models"

	"github.com/gorilla/mux"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TransitionResponse carries the updated booking. Warning is set when the status
// change went through but a follow-up step did not.
type TransitionResponse struct {
	Booking *models.Booking `json:"booking"`
	Warning string          `json:"warning,omitempty"`
}

// handleListBookings GET /api/bookings?phone=&center=
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Lifecycle.Load(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if at := s.deps.Lifecycle.LoadedAt(); !at.IsZero() {
		w.Header().Set("X-Loaded-At", at.UTC().Format(time.RFC3339))
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, filterBookings(list, q.Get("phone"), q.Get("center")))
}

// filterBookings keeps bookings whose phone contains phone (ignoring case) and whose
// center id contains center. Empty filters match everything.
func filterBookings(list []models.Booking, phone, center string) []models.Booking {
	phone = strings.ToLower(strings.TrimSpace(phone))
	center = strings.TrimSpace(center)
	if phone == "" && center == "" {
		return list
	}
	out := make([]models.Booking, 0, len(list))
	for _, b := range list {
		if phone != "" && !strings.Contains(strings.ToLower(b.BookedBy), phone) {
			continue
		}
		if center != "" && !strings.Contains(strconv.Itoa(int(b.Center)), center) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// handleActivate POST /api/bookings/{id}/activate
func (s *HTTPServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Lifecycle.Activate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, lifecycle.ErrOversDecrement) && b != nil {
			writeJSON(w, http.StatusOK, TransitionResponse{Booking: b, Warning: err.Error()})
			return
		}
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionResponse{Booking: b})
}

// handleCancel POST /api/bookings/{id}/cancel
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Lifecycle.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionResponse{Booking: b})
}

// handleListReconciliation GET /api/reconciliation
func (s *HTTPServer) handleListReconciliation(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Reconciliation.ListOpen(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleRetryReconciliation POST /api/reconciliation/{id}/retry
func (s *HTTPServer) handleRetryReconciliation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Reconciliation.Retry(r.Context(), id, s.deps.Replayer); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
}

// handleExportBookings GET /api/export/bookings.xlsx
func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Lifecycle.Load(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteBookingsXLSX(&buf, list, s.deps.Catalog.Get()); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeXLSX(w, "bookings", buf.Bytes())
}

// handleExportMemberships GET /api/export/memberships.xlsx?phone=
func (s *HTTPServer) handleExportMemberships(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Memberships.GetMemberships(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteMembershipsXLSX(&buf, list, s.deps.Catalog.Get()); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeXLSX(w, "memberships", buf.Bytes())
}

// handleExportSheets POST /api/export/sheets
func (s *HTTPServer) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sheets == nil {
		writeError(w, http.StatusServiceUnavailable, "google sheets export is not configured")
		return
	}
	list, err := s.deps.Lifecycle.Load(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	n, err := s.deps.Sheets.PushBookings(r.Context(), list)
	if err != nil {
		s.logger.Error().Err(err).Msg("sheets export failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rows": n})
}

func writeXLSX(w http.ResponseWriter, name string, data []byte) {
	filename := fmt.Sprintf("%s_%s.xlsx", name, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
