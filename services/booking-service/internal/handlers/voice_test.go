package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/mkleinsma/boekmij/services/booking-service/internal/model"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/slots"
)

func voiceCall(t *testing.T, h *VoiceHandler, toolName string, args map[string]string) voiceToolResponse {
	t.Helper()
	body, err := json.Marshal(voiceToolCall{ToolCallID: "tc_1", ToolName: toolName, Arguments: args})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice/tool-call", strings.NewReader(string(body)))
	req.Header.Set("X-Company-Id", companyID)
	rec := httptest.NewRecorder()
	h.ToolCall(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp voiceToolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "tc_1", resp.ToolCallID)
	return resp
}

func TestVoiceToolCall_UnknownTool(t *testing.T) {
	h := NewVoiceHandler(nil, slog.Default())
	resp := voiceCall(t, h, "order_pizza", nil)
	require.Contains(t, resp.Response, "can't help")
}

func TestVoiceToolCall_GetSlotsMissingArgs(t *testing.T) {
	h := NewVoiceHandler(nil, slog.Default())
	resp := voiceCall(t, h, "get_available_slots", map[string]string{"date": "not-a-date"})
	require.Contains(t, resp.Response, "staff member")
}

func TestVoiceToolCall_GetSlotsSpeaksTimes(t *testing.T) {
	svc, mock := newHandlerService(t)
	h := NewVoiceHandler(svc, slog.Default())

	mock.ExpectQuery("FROM employees").WithArgs(employeeID, companyID).WillReturnRows(employeeRows())
	mock.ExpectQuery("FROM employee_availability").WithArgs(employeeID, 1).WillReturnRows(windowRows())
	mock.ExpectQuery("FROM appointments").
		WithArgs(employeeID, monday, monday.AddDate(0, 0, 1)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "company_id", "employee_id", "customer_id",
			"start_time", "end_time", "status", "cancelled_at", "cancellation_reason", "created_at",
		}))

	resp := voiceCall(t, h, "get_available_slots", map[string]string{
		"employee_id": employeeID,
		"date":        "2026-01-05",
	})
	require.Contains(t, resp.Response, "Monday January 5")
	require.Contains(t, resp.Response, "9:00 AM")
	require.Contains(t, resp.Response, "10:00 AM")
}

func TestVoiceToolCall_GetSlotsEmptyDay(t *testing.T) {
	svc, mock := newHandlerService(t)
	h := NewVoiceHandler(svc, slog.Default())

	mock.ExpectQuery("FROM employees").WithArgs(employeeID, companyID).WillReturnRows(employeeRows())
	mock.ExpectQuery("FROM employee_availability").WithArgs(employeeID, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "employee_id", "weekday", "start_minute", "end_minute"}))

	resp := voiceCall(t, h, "get_available_slots", map[string]string{
		"employee_id": employeeID,
		"date":        "2026-01-04",
	})
	require.Contains(t, resp.Response, "no openings")
}

func TestVoiceToolCall_CreateBookingConfirms(t *testing.T) {
	svc, mock := newHandlerService(t)
	h := NewVoiceHandler(svc, slog.Default())

	start := monday.Add(9 * time.Hour)
	end := start.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM employees").WithArgs(employeeID, companyID).WillReturnRows(employeeRows())
	mock.ExpectQuery("FROM customers").WithArgs("jan@example.com", companyID).WillReturnRows(customerRows())
	mock.ExpectQuery("FROM employee_availability").WithArgs(employeeID, 1).WillReturnRows(windowRows())
	mock.ExpectQuery("SELECT EXISTS").WithArgs(employeeID, start, end).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(companyID, employeeID, customerID, start, end, model.StatusBooked).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(apptID))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	resp := voiceCall(t, h, "create_booking", map[string]string{
		"employee_id":    employeeID,
		"start_time":     start.Format(time.RFC3339),
		"end_time":       end.Format(time.RFC3339),
		"customer_name":  "Jan Jansen",
		"customer_email": "jan@example.com",
	})
	require.Contains(t, resp.Response, "You're all set")
	require.Contains(t, resp.Response, "Anna de Vries")
}

func TestVoiceToolCall_SlotTakenOffersAlternatives(t *testing.T) {
	svc, mock := newHandlerService(t)
	h := NewVoiceHandler(svc, slog.Default())

	start := monday.Add(9 * time.Hour)
	end := start.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM employees").WithArgs(employeeID, companyID).WillReturnRows(employeeRows())
	mock.ExpectQuery("FROM customers").WithArgs("jan@example.com", companyID).WillReturnRows(customerRows())
	mock.ExpectQuery("FROM employee_availability").WithArgs(employeeID, 1).WillReturnRows(windowRows())
	mock.ExpectQuery("SELECT EXISTS").WithArgs(employeeID, start, end).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	// The retry lookup for alternatives.
	mock.ExpectQuery("FROM employees").WithArgs(employeeID, companyID).WillReturnRows(employeeRows())
	mock.ExpectQuery("FROM employee_availability").WithArgs(employeeID, 1).WillReturnRows(windowRows())
	mock.ExpectQuery("FROM appointments").
		WithArgs(employeeID, monday, monday.AddDate(0, 0, 1)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "company_id", "employee_id", "customer_id",
			"start_time", "end_time", "status", "cancelled_at", "cancellation_reason", "created_at",
		}).AddRow(apptID, companyID, employeeID, customerID, start, end, model.StatusBooked, nil, "", monday))

	resp := voiceCall(t, h, "create_booking", map[string]string{
		"employee_id":    employeeID,
		"start_time":     start.Format(time.RFC3339),
		"end_time":       end.Format(time.RFC3339),
		"customer_name":  "Jan Jansen",
		"customer_email": "jan@example.com",
	})
	require.Contains(t, resp.Response, "just taken")
	require.Contains(t, resp.Response, "9:30 AM")
}

func TestVoiceToolCall_OutsideAvailability(t *testing.T) {
	svc, mock := newHandlerService(t)
	h := NewVoiceHandler(svc, slog.Default())

	start := monday.Add(20 * time.Hour)
	end := start.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM employees").WithArgs(employeeID, companyID).WillReturnRows(employeeRows())
	mock.ExpectQuery("FROM customers").WithArgs("jan@example.com", companyID).WillReturnRows(customerRows())
	mock.ExpectQuery("FROM employee_availability").WithArgs(employeeID, 1).WillReturnRows(windowRows())
	mock.ExpectRollback()

	resp := voiceCall(t, h, "create_booking", map[string]string{
		"employee_id":    employeeID,
		"start_time":     start.Format(time.RFC3339),
		"end_time":       end.Format(time.RFC3339),
		"customer_email": "jan@example.com",
	})
	require.Contains(t, resp.Response, "another day")
}

func TestVoiceToolCall_ConstraintRace(t *testing.T) {
	svc, mock := newHandlerService(t)
	h := NewVoiceHandler(svc, slog.Default())

	start := monday.Add(11*time.Hour + 30*time.Minute)
	end := start.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM employees").WithArgs(employeeID, companyID).WillReturnRows(employeeRows())
	mock.ExpectQuery("FROM customers").WithArgs("jan@example.com", companyID).WillReturnRows(customerRows())
	mock.ExpectQuery("FROM employee_availability").WithArgs(employeeID, 1).WillReturnRows(windowRows())
	mock.ExpectQuery("SELECT EXISTS").WithArgs(employeeID, start, end).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(companyID, employeeID, customerID, start, end, model.StatusBooked).
		WillReturnError(&pgconn.PgError{Code: "23P01"})
	mock.ExpectRollback()

	// Alternatives lookup finds nothing free at the end of the window.
	mock.ExpectQuery("FROM employees").WithArgs(employeeID, companyID).WillReturnRows(employeeRows())
	mock.ExpectQuery("FROM employee_availability").WithArgs(employeeID, 1).
		WillReturnRows(pgxmock.NewRows([]string{"id", "employee_id", "weekday", "start_minute", "end_minute"}))

	resp := voiceCall(t, h, "create_booking", map[string]string{
		"employee_id":    employeeID,
		"start_time":     start.Format(time.RFC3339),
		"end_time":       end.Format(time.RFC3339),
		"customer_email": "jan@example.com",
	})
	require.Contains(t, resp.Response, "another day")
}

func TestSpeakTimes(t *testing.T) {
	iv := func(h, m int) slots.Interval {
		start := monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
		return slots.Interval{Start: start, End: start.Add(30 * time.Minute)}
	}

	require.Equal(t, "9:00 AM", speakTimes([]slots.Interval{iv(9, 0)}, 3))
	require.Equal(t, "9:00 AM, or 9:30 AM", speakTimes([]slots.Interval{iv(9, 0), iv(9, 30)}, 3))
	require.Equal(t, "9:00 AM, 9:30 AM, or 10:00 AM",
		speakTimes([]slots.Interval{iv(9, 0), iv(9, 30), iv(10, 0), iv(10, 30)}, 3))
}

func TestSplitName(t *testing.T) {
	first, last := splitName("Jan Jansen")
	require.Equal(t, "Jan", first)
	require.Equal(t, "Jansen", last)

	first, last = splitName("Madonna")
	require.Equal(t, "Madonna", first)
	require.Empty(t, last)

	first, last = splitName("  Anne  van Dijk ")
	require.Equal(t, "Anne", first)
	require.Equal(t, "van Dijk", last)

	first, last = splitName("")
	require.Empty(t, first)
	require.Empty(t, last)
}

func TestVoiceToolCall_BadRequests(t *testing.T) {
	h := NewVoiceHandler(nil, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice/tool-call", strings.NewReader("{"))
	req.Header.Set("X-Company-Id", companyID)
	rec := httptest.NewRecorder()
	h.ToolCall(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := fmt.Sprintf(`{"tool_call_id": "tc_1", "tool_name": "get_available_slots", "arguments": {"employee_id": %q, "date": "2026-01-05"}}`, employeeID)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/voice/tool-call", strings.NewReader(body))
	rec = httptest.NewRecorder()
	h.ToolCall(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
