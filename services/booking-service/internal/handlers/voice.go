package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mkleinsma/boekmij/services/booking-service/internal/booking"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/slots"
)

// VoiceHandler adapts the booking core to webhook tool calls from a voice
// assistant. The assistant's LLM invokes a named tool with string arguments;
// we reply with text its TTS engine speaks back to the caller, so every
// response here is a full sentence rather than a data structure.
type VoiceHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewVoiceHandler(svc *booking.Service, logger *slog.Logger) *VoiceHandler {
	return &VoiceHandler{svc: svc, logger: logger}
}

type voiceToolCall struct {
	ToolCallID string            `json:"tool_call_id"`
	ToolName   string            `json:"tool_name"`
	Arguments  map[string]string `json:"arguments"`
}

type voiceToolResponse struct {
	ToolCallID string `json:"tool_call_id"`
	Response   string `json:"response"`
}

func (h *VoiceHandler) ToolCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var call voiceToolCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	companyID := companyIDFromRequest(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	var text string
	switch call.ToolName {
	case "get_available_slots":
		text = h.availableSlots(r.Context(), companyID, call.Arguments)
	case "create_booking":
		text = h.createBooking(r.Context(), companyID, call.Arguments)
	default:
		h.logger.Warn("voice tool call for unknown tool", "tool_name", call.ToolName)
		text = "I'm sorry, I can't help with that request."
	}

	writeJSON(w, http.StatusOK, voiceToolResponse{ToolCallID: call.ToolCallID, Response: text})
}

func (h *VoiceHandler) availableSlots(ctx context.Context, companyID string, args map[string]string) string {
	employeeID := strings.TrimSpace(args["employee_id"])
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(args["date"]), time.UTC)
	if employeeID == "" || err != nil {
		return "I need to know the staff member and the date to look up openings."
	}
	duration := booking.DefaultSlotDuration
	if raw := strings.TrimSpace(args["duration_minutes"]); raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			duration = time.Duration(n) * time.Minute
		}
	}

	intervals, err := h.svc.AvailableSlots(ctx, companyID, employeeID, date, duration)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return "I couldn't find that staff member. Could you check the name?"
		}
		h.logger.Error("voice slots lookup failed", "error", err)
		return "Something went wrong looking up the schedule. Please try again in a moment."
	}
	if len(intervals) == 0 {
		return fmt.Sprintf("There are no openings on %s. Would another day work?", date.Format("Monday January 2"))
	}

	return fmt.Sprintf("On %s I have %s. Which time works for you?",
		date.Format("Monday January 2"), speakTimes(intervals, 3))
}

func (h *VoiceHandler) createBooking(ctx context.Context, companyID string, args map[string]string) string {
	employeeID := strings.TrimSpace(args["employee_id"])
	start, startErr := time.Parse(time.RFC3339, strings.TrimSpace(args["start_time"]))
	end, endErr := time.Parse(time.RFC3339, strings.TrimSpace(args["end_time"]))
	if employeeID == "" || startErr != nil || endErr != nil {
		return "I need the staff member, a start time, and an end time to book that."
	}

	first, last := splitName(args["customer_name"])
	conf, err := h.svc.Create(ctx, booking.CreateRequest{
		CompanyID:  companyID,
		EmployeeID: employeeID,
		Start:      start,
		End:        end,
		Customer: booking.CustomerIdentity{
			Email:     strings.TrimSpace(args["customer_email"]),
			FirstName: first,
			LastName:  last,
			Phone:     strings.TrimSpace(args["customer_phone"]),
		},
	})
	if err == nil {
		return fmt.Sprintf("You're all set. I've booked you with %s on %s at %s.",
			conf.Employee.Name,
			conf.Appointment.StartTime.Format("Monday January 2"),
			conf.Appointment.StartTime.Format("3:04 PM"))
	}

	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		if alts, altErr := h.svc.AvailableSlots(ctx, companyID, employeeID, day, end.Sub(start)); altErr == nil && len(alts) > 0 {
			return fmt.Sprintf("That time was just taken. I could do %s instead. Would any of those work?",
				speakTimes(alts, 3))
		}
		return "That time was just taken and I don't see another opening that day. Would another day work?"
	case errors.Is(err, booking.ErrOutsideAvailability):
		return "They aren't working at that time. Would you like me to check another day?"
	case errors.Is(err, booking.ErrNotFound):
		return "I couldn't find that staff member. Could you check the name?"
	case errors.Is(err, booking.ErrInvalidInput):
		return "I didn't quite catch those details. Could you repeat the time you'd like?"
	default:
		h.logger.Error("voice booking failed", "error", err)
		return "I wasn't able to complete the booking just now. Please try again in a moment."
	}
}

// speakTimes renders up to max slot start times as a spoken list,
// e.g. "9:00 AM, 9:30 AM, or 10:00 AM".
func speakTimes(intervals []slots.Interval, max int) string {
	if max > len(intervals) {
		max = len(intervals)
	}
	parts := make([]string, 0, max)
	for _, iv := range intervals[:max] {
		parts = append(parts, iv.Start.Format("3:04 PM"))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", or " + parts[len(parts)-1]
}

func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i], strings.TrimSpace(full[i+1:])
	}
	return full, ""
}
