package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/metrics"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/model"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/outbox"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/slots"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/storage"
)

const (
	DefaultSlotDuration = 30 * time.Minute

	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Service owns slot generation and the booking transaction. It is the single
// authority on availability containment and overlap conflicts; every entry
// point (calendar UI handlers, voice tools) goes through it.
type Service struct {
	db        storage.Querier
	employees *storage.EmployeeRepository
	customers *storage.CustomerRepository
	windows   *storage.AvailabilityRepository
	appts     *storage.AppointmentRepository
	outbox    *outbox.Repository
	logger    *slog.Logger
	metrics   *metrics.BookingMetrics
	now       func() time.Time
}

// NewService wires the booking core. now is the injected clock; pass nil for
// the system clock.
func NewService(db storage.Querier, outboxRepo *outbox.Repository, logger *slog.Logger, m *metrics.BookingMetrics, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:        db,
		employees: storage.NewEmployeeRepository(db),
		customers: storage.NewCustomerRepository(db),
		windows:   storage.NewAvailabilityRepository(db),
		appts:     storage.NewAppointmentRepository(db),
		outbox:    outboxRepo,
		logger:    logger,
		metrics:   m,
		now:       now,
	}
}

// AvailableSlots returns the bookable intervals for the employee on the given
// date, ascending and non-overlapping. Having no windows for the weekday is a
// normal outcome and yields an empty list. Read-only; the booking transaction
// remains the authoritative gate.
func (s *Service) AvailableSlots(ctx context.Context, companyID, employeeID string, date time.Time, duration time.Duration) ([]slots.Interval, error) {
	if duration <= 0 {
		duration = DefaultSlotDuration
	}

	if _, err := s.employees.Get(ctx, companyID, employeeID); err != nil {
		if storage.IsNotFound(err) {
			s.metrics.ObserveSlotQuery("not_found", 0)
			return nil, fmt.Errorf("employee %s: %w", employeeID, ErrNotFound)
		}
		return nil, err
	}

	windows, err := s.windows.ListForWeekday(ctx, employeeID, date.Weekday())
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		s.metrics.ObserveSlotQuery("ok", 0)
		return nil, nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	booked, err := s.appts.ListBookedBetween(ctx, employeeID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	busy := make([]slots.Interval, 0, len(booked))
	for _, a := range booked {
		busy = append(busy, slots.Interval{Start: a.StartTime, End: a.EndTime})
	}

	var candidates []slots.Interval
	for _, w := range windows {
		win := slots.Anchor(w, date)
		for _, start := range slots.AvailableSlots(win.Start, win.End, duration, duration, busy, s.now().UTC()) {
			candidates = append(candidates, slots.Interval{Start: start, End: start.Add(duration)})
		}
	}
	merged := slots.Merge(candidates)
	s.metrics.ObserveSlotQuery("ok", len(merged))
	return merged, nil
}

// CustomerIdentity identifies the booking customer either by an existing id
// or by contact details. When only contact details are given and the email is
// unknown, a customer record is synthesized.
type CustomerIdentity struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

type CreateRequest struct {
	CompanyID  string
	EmployeeID string
	Start      time.Time
	End        time.Time
	Customer   CustomerIdentity
}

// Confirmation is the created appointment with the resolved employee and
// customer embedded.
type Confirmation struct {
	Appointment model.Appointment
	Employee    model.Employee
	Customer    model.Customer
}

// Create validates and atomically books an appointment. The conflict check
// and insert run inside one transaction, and the appointments exclusion
// constraint guarantees at most one winner among concurrent overlapping
// attempts; the loser gets ErrSlotTaken.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Confirmation, error) {
	if err := validateCreate(req); err != nil {
		s.metrics.ObserveBooking("invalid_input")
		return Confirmation{}, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Confirmation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	employee, err := s.employees.GetTx(ctx, tx, req.CompanyID, req.EmployeeID)
	if err != nil {
		if storage.IsNotFound(err) {
			s.metrics.ObserveBooking("not_found")
			return Confirmation{}, fmt.Errorf("employee %s: %w", req.EmployeeID, ErrNotFound)
		}
		return Confirmation{}, err
	}

	customer, err := s.resolveCustomerTx(ctx, tx, req.CompanyID, req.Customer)
	if err != nil {
		s.metrics.ObserveBooking("customer_error")
		return Confirmation{}, err
	}

	windows, err := s.windows.ListForWeekdayTx(ctx, tx, req.EmployeeID, req.Start.Weekday())
	if err != nil {
		return Confirmation{}, err
	}
	if len(windows) == 0 {
		s.metrics.ObserveBooking("outside_availability")
		return Confirmation{}, ErrDayClosed
	}
	if !slots.ContainedInWindows(req.Start, req.End, windows) {
		s.metrics.ObserveBooking("outside_availability")
		return Confirmation{}, ErrOutsideAvailability
	}

	overlap, err := s.appts.ExistsOverlappingTx(ctx, tx, req.EmployeeID, req.Start, req.End)
	if err != nil {
		return Confirmation{}, err
	}
	if overlap {
		s.metrics.ObserveBooking("slot_taken")
		return Confirmation{}, ErrSlotTaken
	}

	appt := &model.Appointment{
		CompanyID:  req.CompanyID,
		EmployeeID: req.EmployeeID,
		CustomerID: customer.ID,
		StartTime:  req.Start.UTC(),
		EndTime:    req.End.UTC(),
		Status:     model.StatusBooked,
	}
	id, err := s.appts.CreateTx(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			// Lost the race against a concurrent booking; the exclusion
			// constraint is the authority.
			s.metrics.ObserveBooking("slot_taken")
			return Confirmation{}, ErrSlotTaken
		}
		return Confirmation{}, err
	}
	appt.ID = id

	payload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"company_id":     req.CompanyID,
		"employee_id":    employee.ID,
		"employee_name":  employee.Name,
		"customer_id":    customer.ID,
		"customer_name":  customer.Name,
		"customer_email": customer.Email,
		"customer_phone": customer.Phone,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
	})
	if err != nil {
		return Confirmation{}, err
	}
	if err := s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		return Confirmation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Confirmation{}, err
	}

	s.metrics.ObserveBooking("ok")
	s.logger.Info("appointment booked",
		"appointment_id", id,
		"employee_id", employee.ID,
		"customer_id", customer.ID,
		"start_time", appt.StartTime.Format(time.RFC3339),
	)
	return Confirmation{Appointment: *appt, Employee: employee, Customer: customer}, nil
}

func validateCreate(req CreateRequest) error {
	if strings.TrimSpace(req.CompanyID) == "" || strings.TrimSpace(req.EmployeeID) == "" {
		return fmt.Errorf("company_id and employee_id required: %w", ErrInvalidInput)
	}
	if req.Start.IsZero() || req.End.IsZero() || !req.End.After(req.Start) {
		return fmt.Errorf("end_time must be after start_time: %w", ErrInvalidInput)
	}
	if req.Customer.ID == "" && strings.TrimSpace(req.Customer.Email) == "" {
		return fmt.Errorf("customer id or email required: %w", ErrInvalidInput)
	}
	return nil
}

// resolveCustomerTx applies find-or-create semantics. Lookups by email are
// first-match (oldest row) since email is not unique; repeated bookings from
// the same address therefore land on the same customer.
func (s *Service) resolveCustomerTx(ctx context.Context, tx pgx.Tx, companyID string, identity CustomerIdentity) (model.Customer, error) {
	if identity.ID != "" {
		customer, err := s.customers.GetTx(ctx, tx, identity.ID)
		if err != nil {
			if storage.IsNotFound(err) {
				return model.Customer{}, fmt.Errorf("customer %s: %w", identity.ID, ErrNotFound)
			}
			return model.Customer{}, err
		}
		return customer, nil
	}

	email := strings.TrimSpace(identity.Email)
	customer, err := s.customers.FirstByEmailTx(ctx, tx, companyID, email)
	if err == nil {
		return customer, nil
	}
	if !storage.IsNotFound(err) {
		return model.Customer{}, err
	}

	name := strings.TrimSpace(strings.TrimSpace(identity.FirstName) + " " + strings.TrimSpace(identity.LastName))
	if name == "" {
		name = "Guest"
	}
	customer = model.Customer{
		CompanyID:   companyID,
		ExternalRef: uuid.NewString(),
		Name:        name,
		Email:       email,
		Phone:       strings.TrimSpace(identity.Phone),
	}
	id, err := s.customers.CreateTx(ctx, tx, customer)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return model.Customer{}, fmt.Errorf("customer create race: %w", ErrCustomerSync)
		}
		return model.Customer{}, err
	}
	customer.ID = id
	return customer, nil
}

// Cancel marks an appointment cancelled so it stops blocking slots.
// Cancelling an already-cancelled appointment is idempotent.
func (s *Service) Cancel(ctx context.Context, companyID, appointmentID, reason string) (model.Appointment, error) {
	if strings.TrimSpace(companyID) == "" || strings.TrimSpace(appointmentID) == "" {
		return model.Appointment{}, fmt.Errorf("company_id and appointment_id required: %w", ErrInvalidInput)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.appts.GetForUpdateTx(ctx, tx, companyID, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
		}
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusCancelled {
		return appt, nil
	}

	cancelledAt, err := s.appts.CancelTx(ctx, tx, companyID, appointmentID, reason)
	if err != nil {
		return model.Appointment{}, err
	}

	// The cancellation notice goes to the customer, so carry their contact
	// details in the event rather than forcing the consumer to look them up.
	customer, err := s.customers.GetTx(ctx, tx, appt.CustomerID)
	if err != nil && !storage.IsNotFound(err) {
		return model.Appointment{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"company_id":     appt.CompanyID,
		"employee_id":    appt.EmployeeID,
		"customer_id":    appt.CustomerID,
		"customer_name":  customer.Name,
		"customer_email": customer.Email,
		"customer_phone": customer.Phone,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
		"reason":         reason,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     EventAppointmentCancelled,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	appt.Status = model.StatusCancelled
	cancelled := cancelledAt.UTC()
	appt.CancelledAt = &cancelled
	appt.CancelReason = reason
	return appt, nil
}

// ListAppointments returns the employee's appointments for calendar views,
// newest first.
func (s *Service) ListAppointments(ctx context.Context, companyID, employeeID string, limit int) ([]model.Appointment, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, fmt.Errorf("employee_id required: %w", ErrInvalidInput)
	}
	return s.appts.ListByEmployee(ctx, companyID, employeeID, limit)
}

// ReplaceAvailability swaps out the employee's windows for the named weekdays
// in one shot. Days not named are untouched; a named day with no windows
// becomes closed.
func (s *Service) ReplaceAvailability(ctx context.Context, companyID, employeeID string, days []storage.DaySchedule) error {
	for _, d := range days {
		if d.Weekday < time.Sunday || d.Weekday > time.Saturday {
			return fmt.Errorf("weekday %d out of range: %w", d.Weekday, ErrInvalidInput)
		}
		for _, w := range d.Windows {
			if w.StartMinute < 0 || w.EndMinute > 24*60 || w.StartMinute >= w.EndMinute {
				return fmt.Errorf("window %d-%d invalid: %w", w.StartMinute, w.EndMinute, ErrInvalidInput)
			}
		}
	}

	if _, err := s.employees.Get(ctx, companyID, employeeID); err != nil {
		if storage.IsNotFound(err) {
			return fmt.Errorf("employee %s: %w", employeeID, ErrNotFound)
		}
		return err
	}
	return s.windows.ReplaceForDays(ctx, employeeID, days)
}

func (s *Service) ListAvailability(ctx context.Context, companyID, employeeID string) ([]model.AvailabilityWindow, error) {
	if _, err := s.employees.Get(ctx, companyID, employeeID); err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("employee %s: %w", employeeID, ErrNotFound)
		}
		return nil, err
	}
	return s.windows.ListForEmployee(ctx, employeeID)
}
