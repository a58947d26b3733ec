package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/model"
)

type AppointmentRepository struct {
	db Querier
}

func NewAppointmentRepository(db Querier) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

const appointmentColumns = `id::text, company_id::text, employee_id::text, customer_id::text,
		start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func (r *AppointmentRepository) CreateTx(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments (company_id, employee_id, customer_id, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text
	`, appt.CompanyID, appt.EmployeeID, appt.CustomerID, appt.StartTime, appt.EndTime, appt.Status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ExistsOverlappingTx reports whether any non-cancelled appointment for the
// employee intersects [start,end). Half-open semantics: touching boundaries do
// not conflict.
func (r *AppointmentRepository) ExistsOverlappingTx(ctx context.Context, tx pgx.Tx, employeeID string, start, end time.Time) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE employee_id = $1
				AND status <> 'cancelled'
				AND start_time < $3
				AND end_time > $2
		)
	`, employeeID, start, end).Scan(&exists)
	return exists, err
}

// ListBookedBetween returns the employee's non-cancelled appointments
// intersecting [from,to), ordered by start time. Used as the busy set for
// slot generation; read-only, no locking.
func (r *AppointmentRepository) ListBookedBetween(ctx context.Context, employeeID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE employee_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *AppointmentRepository) ListByEmployee(ctx context.Context, companyID, employeeID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE company_id = $1 AND employee_id = $2
		ORDER BY start_time DESC
		LIMIT $3
	`, companyID, employeeID, limit)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *AppointmentRepository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, companyID, appointmentID string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND company_id = $2
		FOR UPDATE
	`, appointmentID, companyID))
}

func (r *AppointmentRepository) CancelTx(ctx context.Context, tx pgx.Tx, companyID, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND company_id = $2
		RETURNING cancelled_at
	`, appointmentID, companyID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.CompanyID,
		&appt.EmployeeID,
		&appt.CustomerID,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}
