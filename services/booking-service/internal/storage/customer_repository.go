package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/mkleinsma/boekmij/services/booking-service/internal/model"
)

type CustomerRepository struct {
	db Querier
}

func NewCustomerRepository(db Querier) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `id::text, COALESCE(company_id::text, ''), external_ref::text, name, email, COALESCE(phone, ''), created_at`

func (r *CustomerRepository) GetTx(ctx context.Context, tx pgx.Tx, customerID string) (model.Customer, error) {
	return scanCustomer(tx.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1
	`, customerID))
}

// FirstByEmailTx returns the oldest customer row matching the email. Email is
// not unique at the storage layer, so first-match wins and later duplicates
// are tolerated.
func (r *CustomerRepository) FirstByEmailTx(ctx context.Context, tx pgx.Tx, companyID, email string) (model.Customer, error) {
	return scanCustomer(tx.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE email = $1 AND (company_id = $2 OR company_id IS NULL)
		ORDER BY created_at ASC
		LIMIT 1
	`, email, companyID))
}

func (r *CustomerRepository) CreateTx(ctx context.Context, tx pgx.Tx, c model.Customer) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO customers (company_id, external_ref, name, email, phone)
		VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5)
		RETURNING id::text
	`, c.CompanyID, c.ExternalRef, c.Name, c.Email, c.Phone).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func scanCustomer(row pgx.Row) (model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.CompanyID, &c.ExternalRef, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		return model.Customer{}, err
	}
	return c, nil
}
