package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsdeck/opsdeck/internal/model"
)

// CreateOperator inserts a new operator account.
func (db *PostgresStore) CreateOperator(ctx context.Context, op model.Operator) (model.Operator, error) {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO operators (id, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4)`,
		op.ID, op.Email, op.PasswordHash, op.CreatedAt,
	)
	if err != nil {
		return model.Operator{}, fmt.Errorf("storage: create operator: %w", err)
	}
	return op, nil
}

// GetOperatorByEmail retrieves an operator by email.
func (db *PostgresStore) GetOperatorByEmail(ctx context.Context, email string) (model.Operator, error) {
	var op model.Operator
	err := db.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM operators WHERE email = $1`, email,
	).Scan(&op.ID, &op.Email, &op.PasswordHash, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Operator{}, ErrNotFound
		}
		return model.Operator{}, fmt.Errorf("storage: get operator by email: %w", err)
	}
	return op, nil
}
