package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mkleinsma/boekmij/services/booking-service/internal/booking"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/model"
)

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

func companyIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Company-Id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("company_id"))
}

// writeBookingError maps the core failure kinds to distinct statuses so the
// calendar UI and the voice agent can react differently per kind.
func writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, booking.ErrOutsideAvailability):
		http.Error(w, "requested time is outside availability", http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrSlotTaken):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, booking.ErrCustomerSync):
		http.Error(w, "customer sync conflict, retry", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type customerPayload struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type createBookingRequest struct {
	EmployeeID string          `json:"employee_id"`
	StartTime  string          `json:"start_time"`
	EndTime    string          `json:"end_time"`
	Customer   customerPayload `json:"customer"`
}

type appointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	EmployeeID    string `json:"employee_id"`
	EmployeeName  string `json:"employee_name,omitempty"`
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
}

type slotItem struct {
	StartTime string `json:"start"`
	EndTime   string `json:"end"`
}

type slotsResponse struct {
	EmployeeID string     `json:"employee_id"`
	Date       string     `json:"date"`
	Slots      []slotItem `json:"slots"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromRequest(r)
	employeeID := strings.TrimSpace(r.URL.Query().Get("employee_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if companyID == "" || employeeID == "" || dateStr == "" {
		http.Error(w, "company_id, employee_id, and date are required", http.StatusBadRequest)
		return
	}

	date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	duration := booking.DefaultSlotDuration
	if v := strings.TrimSpace(r.URL.Query().Get("duration_minutes")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 8*60 {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
		duration = time.Duration(n) * time.Minute
	}

	intervals, err := h.svc.AvailableSlots(r.Context(), companyID, employeeID, date, duration)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	resp := slotsResponse{
		EmployeeID: employeeID,
		Date:       dateStr,
		Slots:      make([]slotItem, 0, len(intervals)),
	}
	for _, iv := range intervals {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime: iv.Start.UTC().Format(time.RFC3339),
			EndTime:   iv.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	companyID := companyIDFromRequest(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}

	conf, err := h.svc.Create(r.Context(), booking.CreateRequest{
		CompanyID:  companyID,
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		Start:      start,
		End:        end,
		Customer: booking.CustomerIdentity{
			ID:        strings.TrimSpace(req.Customer.ID),
			Email:     strings.TrimSpace(req.Customer.Email),
			FirstName: req.Customer.FirstName,
			LastName:  req.Customer.LastName,
			Phone:     req.Customer.Phone,
		},
	})
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, confirmationResponse(conf))
}

type cancelBookingRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	companyID := companyIDFromRequest(r)
	appt, err := h.svc.Cancel(r.Context(), companyID, strings.TrimSpace(req.AppointmentID), strings.TrimSpace(req.Reason))
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentToResponse(appt))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
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

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.svc.ListAppointments(r.Context(), companyID, employeeID, limit)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, appointmentToResponse(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

func confirmationResponse(conf booking.Confirmation) appointmentResponse {
	resp := appointmentToResponse(conf.Appointment)
	resp.EmployeeName = conf.Employee.Name
	resp.CustomerName = conf.Customer.Name
	resp.CustomerEmail = conf.Customer.Email
	return resp
}

func appointmentToResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID: appt.ID,
		EmployeeID:    appt.EmployeeID,
		CustomerID:    appt.CustomerID,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        appt.Status,
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
