package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue-api/internal/repository"
)

// DoctorDirectory resolves contact details from the doctors table owned by
// the identity service. Read-only here.
type DoctorDirectory struct {
	db *sqlx.DB
}

func NewDoctorDirectory(db *sqlx.DB) *DoctorDirectory {
	return &DoctorDirectory{db: db}
}

func (d *DoctorDirectory) Email(ctx context.Context, doctorID uuid.UUID) (string, error) {
	var email string
	err := d.db.GetContext(ctx, &email, `SELECT email FROM doctors WHERE id = $1`, doctorID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up doctor email: %w", err)
	}
	return email, nil
}
