package storage

import (
	"context"
	"encoding/json"

	"github.com/mkleinsma/boekmij/libs/db"
)

type Notification struct {
	AppointmentID string
	CompanyID     string
	Kind          string
	Channel       string
	Recipient     string
	Payload       map[string]any
	Status        string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, company_id, kind, channel, recipient, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.AppointmentID, n.CompanyID, n.Kind, n.Channel, n.Recipient, payload, n.Status)
	return err
}
