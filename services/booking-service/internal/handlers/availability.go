package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mkleinsma/boekmij/services/booking-service/internal/booking"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/model"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/storage"
)

type AvailabilityHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewAvailabilityHandler(svc *booking.Service, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, logger: logger}
}

type windowPayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type dayPayload struct {
	Weekday int             `json:"weekday"`
	Windows []windowPayload `json:"windows"`
}

type replaceAvailabilityRequest struct {
	EmployeeID string       `json:"employee_id"`
	Days       []dayPayload `json:"days"`
}

// parseClock accepts HH:MM wall-clock values and returns minutes since
// midnight. 24:00 is allowed as an end-of-day marker.
func parseClock(v string) (int, error) {
	t := strings.TrimSpace(v)
	if t == "24:00" {
		return 24 * 60, nil
	}
	parsed, err := time.Parse("15:04", t)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", v)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

func minutesToClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func (h *AvailabilityHandler) Replace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req replaceAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	companyID := companyIDFromRequest(r)
	employeeID := strings.TrimSpace(req.EmployeeID)
	if companyID == "" || employeeID == "" {
		http.Error(w, "company_id and employee_id required", http.StatusBadRequest)
		return
	}

	days := make([]storage.DaySchedule, 0, len(req.Days))
	for _, d := range req.Days {
		if d.Weekday < 0 || d.Weekday > 6 {
			http.Error(w, "weekday must be 0 (Sunday) through 6 (Saturday)", http.StatusBadRequest)
			return
		}
		day := storage.DaySchedule{Weekday: time.Weekday(d.Weekday)}
		for _, win := range d.Windows {
			startMin, err := parseClock(win.Start)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			endMin, err := parseClock(win.End)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			day.Windows = append(day.Windows, model.AvailabilityWindow{
				EmployeeID:  employeeID,
				Weekday:     day.Weekday,
				StartMinute: startMin,
				EndMinute:   endMin,
			})
		}
		days = append(days, day)
	}

	if err := h.svc.ReplaceAvailability(r.Context(), companyID, employeeID, days); err != nil {
		writeBookingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type availabilityItem struct {
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func (h *AvailabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromRequest(r)
	employeeID := strings.TrimSpace(r.URL.Query().Get("employee_id"))
	if companyID == "" || employeeID == "" {
		http.Error(w, "company_id and employee_id required", http.StatusBadRequest)
		return
	}

	windows, err := h.svc.ListAvailability(r.Context(), companyID, employeeID)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	items := make([]availabilityItem, 0, len(windows))
	for _, win := range windows {
		items = append(items, availabilityItem{
			Weekday: int(win.Weekday),
			Start:   minutesToClock(win.StartMinute),
			End:     minutesToClock(win.EndMinute),
		})
	}
	writeJSON(w, http.StatusOK, items)
}
