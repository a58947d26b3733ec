package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/model"
)

type EmployeeRepository struct {
	db Querier
}

func NewEmployeeRepository(db Querier) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

const employeeColumns = `id::text, company_id::text, name, email, created_at`

func (r *EmployeeRepository) Get(ctx context.Context, companyID, employeeID string) (model.Employee, error) {
	return scanEmployee(r.db.QueryRow(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE id = $1 AND company_id = $2
	`, employeeID, companyID))
}

func (r *EmployeeRepository) GetTx(ctx context.Context, tx pgx.Tx, companyID, employeeID string) (model.Employee, error) {
	return scanEmployee(tx.QueryRow(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE id = $1 AND company_id = $2
	`, employeeID, companyID))
}

func scanEmployee(row pgx.Row) (model.Employee, error) {
	var e model.Employee
	err := row.Scan(&e.ID, &e.CompanyID, &e.Name, &e.Email, &e.CreatedAt)
	if err != nil {
		return model.Employee{}, err
	}
	return e, nil
}
