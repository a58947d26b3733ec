package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/model"
)

type AvailabilityRepository struct {
	db Querier
}

func NewAvailabilityRepository(db Querier) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// DaySchedule is the declared set of windows for one weekday, used by the
// wholesale replace operation.
type DaySchedule struct {
	Weekday time.Weekday
	Windows []model.AvailabilityWindow
}

const windowColumns = `id::text, employee_id::text, weekday, start_minute, end_minute`

func (r *AvailabilityRepository) ListForWeekday(ctx context.Context, employeeID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+windowColumns+`
		FROM employee_availability
		WHERE employee_id = $1 AND weekday = $2
		ORDER BY start_minute ASC
	`, employeeID, int(weekday))
	if err != nil {
		return nil, err
	}
	return scanWindows(rows)
}

func (r *AvailabilityRepository) ListForWeekdayTx(ctx context.Context, tx pgx.Tx, employeeID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+windowColumns+`
		FROM employee_availability
		WHERE employee_id = $1 AND weekday = $2
		ORDER BY start_minute ASC
	`, employeeID, int(weekday))
	if err != nil {
		return nil, err
	}
	return scanWindows(rows)
}

func (r *AvailabilityRepository) ListForEmployee(ctx context.Context, employeeID string) ([]model.AvailabilityWindow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+windowColumns+`
		FROM employee_availability
		WHERE employee_id = $1
		ORDER BY weekday ASC, start_minute ASC
	`, employeeID)
	if err != nil {
		return nil, err
	}
	return scanWindows(rows)
}

// ReplaceForDays deletes every window on the named weekdays and re-inserts the
// declared ones, all in one transaction. Weekdays not named keep their rows,
// so after commit exactly the declared days carry exactly the declared
// windows.
func (r *AvailabilityRepository) ReplaceForDays(ctx context.Context, employeeID string, days []DaySchedule) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	weekdays := make([]int, 0, len(days))
	for _, d := range days {
		weekdays = append(weekdays, int(d.Weekday))
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM employee_availability
		WHERE employee_id = $1 AND weekday = ANY($2)
	`, employeeID, weekdays); err != nil {
		return err
	}

	for _, d := range days {
		for _, w := range d.Windows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO employee_availability (employee_id, weekday, start_minute, end_minute)
				VALUES ($1, $2, $3, $4)
			`, employeeID, int(d.Weekday), w.StartMinute, w.EndMinute); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

func scanWindows(rows pgx.Rows) ([]model.AvailabilityWindow, error) {
	defer rows.Close()
	var out []model.AvailabilityWindow
	for rows.Next() {
		var w model.AvailabilityWindow
		var weekday int
		if err := rows.Scan(&w.ID, &w.EmployeeID, &weekday, &w.StartMinute, &w.EndMinute); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(weekday)
		out = append(out, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
